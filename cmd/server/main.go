package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"tablio/internal/api"
	"tablio/internal/auth"
	"tablio/internal/availability"
	"tablio/internal/changerequest"
	"tablio/internal/config"
	"tablio/internal/database"
	"tablio/internal/export"
	"tablio/internal/fanout"
	"tablio/internal/metrics"
	"tablio/internal/notify"
	"tablio/internal/paycapsule"
	"tablio/internal/rulecache"
	"tablio/internal/service"
	"tablio/internal/token"
)

func main() {
	issueSession := flag.String("issue-session", "",
		"issue a staff session token (format staffID:tenantID:restaurantID:role) and exit")
	flag.Parse()

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("TABLIO_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	sessions, err := auth.NewSessions(cfg.Secrets.SessionSecret, cfg.SessionTTL())
	if err != nil {
		logger.Fatal().Err(err).Msg("session service init failed")
	}

	if *issueSession != "" {
		printSession(sessions, *issueSession, logger)
		return
	}

	tokens, err := token.NewService(cfg.Secrets.LinkTokenSecret)
	if err != nil {
		logger.Fatal().Err(err).Msg("link token service init failed")
	}

	paymentKey, err := hex.DecodeString(cfg.Secrets.PaymentTokenKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment_token_key must be hex")
	}
	capsules, err := paycapsule.NewService(paymentKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("payment capsule service init failed")
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.Enabled && cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	rules := rulecache.New(db, rdb, cfg.RedisCacheTTL(), logger)

	validator := availability.NewValidator(rules, db, db, logger)
	registry := fanout.New(logger)
	notifier := notify.NewService(notify.LogOnly{Logger: logger}, notify.Config{
		RatePerSecond: cfg.Notify.RatePerSecond,
		Burst:         cfg.Notify.Burst,
		MaxRetries:    cfg.Notify.MaxRetries,
	}, logger)

	bookings := service.NewBookingService(db, validator, registry, notifier, logger)
	changeRequests := changerequest.NewWorkflow(db, bookings, registry, notifier, logger)
	daySheets := export.NewDaySheet(db, logger)

	server := api.NewHTTPServer(bookings, changeRequests, tokens, capsules, sessions, registry, daySheets, rules, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.HealthCheckPort == 0 {
		cfg.Monitoring.HealthCheckPort = 8090
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		if cfg.Monitoring.PrometheusPort == 0 {
			cfg.Monitoring.PrometheusPort = 9090
		}
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}

	if cfg.Backup.Enabled {
		go startBackupLoop(ctx, db, cfg, &logger)
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.Router(),
		ReadTimeout:  cfg.ServerReadTimeout(),
		WriteTimeout: cfg.ServerWriteTimeout(),
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Int("port", cfg.Server.Port).Msg("tablio server started")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// printSession is an operator convenience: staff sessions are provisioned
// out of band rather than through a login endpoint.
func printSession(sessions *auth.Sessions, spec string, logger zerolog.Logger) {
	var staffID, tenantID, restaurantID int64
	var role string
	if _, err := fmt.Sscanf(spec, "%d:%d:%d:%s", &staffID, &tenantID, &restaurantID, &role); err != nil {
		logger.Fatal().Err(err).Msg("expected staffID:tenantID:restaurantID:role")
	}
	tok, err := sessions.Issue(staffID, tenantID, restaurantID, role)
	if err != nil {
		logger.Fatal().Err(err).Msg("issue session failed")
	}
	fmt.Println(tok)
}

func startBackupLoop(ctx context.Context, db *database.DB, cfg *config.Config, logger *zerolog.Logger) {
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = "backups"
	}
	if cfg.Backup.IntervalHours <= 0 {
		cfg.Backup.IntervalHours = 24
	}
	if cfg.Backup.RetentionDays <= 0 {
		cfg.Backup.RetentionDays = 14
	}

	if err := os.MkdirAll(cfg.Backup.Path, 0o755); err != nil {
		logger.Error().Err(err).Msg("failed to create backup directory")
		return
	}

	interval := time.Duration(cfg.Backup.IntervalHours) * time.Hour
	retention := time.Duration(cfg.Backup.RetentionDays) * 24 * time.Hour

	// First backup after a short delay so startup stays fast.
	select {
	case <-time.After(1 * time.Minute):
		runBackupTask(db, cfg, retention, logger)
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			runBackupTask(db, cfg, retention, logger)
		case <-ctx.Done():
			return
		}
	}
}

func runBackupTask(db *database.DB, cfg *config.Config, retention time.Duration, logger *zerolog.Logger) {
	timestamp := time.Now().Format("20060102_150405")
	dest := filepath.Join(cfg.Backup.Path, fmt.Sprintf("tablio_%s.db", timestamp))

	if err := db.Backup(dest); err != nil {
		logger.Error().Err(err).Msg("backup failed")
	}

	deleted, err := db.CleanupBackups(cfg.Backup.Path, retention)
	if err != nil {
		logger.Error().Err(err).Msg("backup cleanup failed")
	} else if deleted > 0 {
		logger.Info().Int("deleted", deleted).Msg("cleaned up old backups")
	}
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if err := db.PingContext(ctxPing); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
