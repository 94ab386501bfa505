// Package notify delivers rendered customer notifications through an
// outbound channel (email/SMS gateway). Delivery never blocks or fails the
// mutation that triggered it; failures are logged and swallowed upstream.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Outbound is the external delivery collaborator. It accepts rendered
// content and reports success or failure.
type Outbound interface {
	Send(ctx context.Context, customerID int64, subject, body string) error
}

// Notifier is what the booking core calls to reach a customer.
type Notifier interface {
	NotifyCustomer(ctx context.Context, customerID int64, subject, body string) error
}

// Config tunes delivery pacing and retries.
type Config struct {
	// RatePerSecond is the outbound send rate. Default 20.
	RatePerSecond float64
	// Burst is the token bucket size. Default 30.
	Burst int
	// MaxRetries is how many times a failed send is retried. Default 2.
	MaxRetries int
	// RetryDelay is the pause between attempts. Default 2s.
	RetryDelay time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RatePerSecond: 20,
		Burst:         30,
		MaxRetries:    2,
		RetryDelay:    2 * time.Second,
	}
}

// Service paces outbound sends with a token bucket and retries transient
// failures a bounded number of times.
type Service struct {
	outbound Outbound
	limiter  *rate.Limiter
	config   Config
	logger   zerolog.Logger
}

// NewService creates a notifier over the outbound collaborator.
func NewService(outbound Outbound, config Config, logger zerolog.Logger) *Service {
	if config.RatePerSecond <= 0 {
		config.RatePerSecond = 20
	}
	if config.Burst <= 0 {
		config.Burst = 30
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = 2 * time.Second
	}
	return &Service{
		outbound: outbound,
		limiter:  rate.NewLimiter(rate.Limit(config.RatePerSecond), config.Burst),
		config:   config,
		logger:   logger.With().Str("component", "notify").Logger(),
	}
}

// NotifyCustomer sends one notification, waiting for the rate limiter and
// retrying transient failures.
func (s *Service) NotifyCustomer(ctx context.Context, customerID int64, subject, body string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(s.config.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = s.outbound.Send(ctx, customerID, subject, body)
		if lastErr == nil {
			s.logger.Debug().
				Int64("customer_id", customerID).
				Str("subject", subject).
				Msg("notification sent")
			return nil
		}

		s.logger.Warn().
			Err(lastErr).
			Int64("customer_id", customerID).
			Int("attempt", attempt+1).
			Msg("notification send failed")
	}

	return fmt.Errorf("send notification: %w", lastErr)
}

// LogOnly is an Outbound that only logs, for deployments without a
// configured gateway.
type LogOnly struct {
	Logger zerolog.Logger
}

func (l LogOnly) Send(_ context.Context, customerID int64, subject, _ string) error {
	l.Logger.Info().
		Int64("customer_id", customerID).
		Str("subject", subject).
		Msg("outbound notification (log only)")
	return nil
}
