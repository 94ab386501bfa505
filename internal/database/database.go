// Package database is the persistence collaborator: tenant-scoped CRUD over
// sqlite for bookings, tables, scheduling rules and change requests.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

// DB wraps the sqlite connection.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

var (
	ErrNotFound               = errors.New("not found")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// dateFormat is how dates are stored (date component only).
const dateFormat = "2006-01-02"

// NewDB opens (or creates) the database and ensures the schema exists.
func NewDB(path string, logger zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	instance := &DB{
		DB:     db,
		logger: logger.With().Str("component", "database").Logger(),
	}

	if err := instance.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	instance.logger.Info().Str("path", path).Msg("database initialized")
	return instance, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS restaurant_tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			capacity INTEGER NOT NULL DEFAULT 2,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			restaurant_id INTEGER NOT NULL,
			table_id INTEGER,
			customer_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_time TEXT NOT NULL,
			end_time TEXT NOT NULL,
			guests INTEGER NOT NULL DEFAULT 1,
			status TEXT NOT NULL DEFAULT 'pending',
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY(table_id) REFERENCES restaurant_tables(id)
		)`,

		`CREATE TABLE IF NOT EXISTS opening_hours (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			open BOOLEAN NOT NULL DEFAULT 1,
			opens_at TEXT NOT NULL DEFAULT '11:00',
			closes_at TEXT NOT NULL DEFAULT '23:00',
			UNIQUE(restaurant_id, day_of_week)
		)`,

		`CREATE TABLE IF NOT EXISTS cutoff_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER NOT NULL,
			day_of_week INTEGER NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT 1,
			hours_before_booking INTEGER NOT NULL DEFAULT 1,
			UNIQUE(restaurant_id, day_of_week)
		)`,

		`CREATE TABLE IF NOT EXISTS special_periods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			restaurant_id INTEGER NOT NULL,
			start_date TEXT NOT NULL,
			end_date TEXT NOT NULL,
			closed BOOLEAN NOT NULL DEFAULT 0,
			opens_at TEXT,
			closes_at TEXT,
			reason TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS change_requests (
			id TEXT PRIMARY KEY,
			booking_id INTEGER NOT NULL,
			date TEXT,
			start_time TEXT,
			end_time TEXT,
			guests INTEGER,
			status TEXT NOT NULL DEFAULT 'pending',
			requester_note TEXT,
			responder_note TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			responded_at DATETIME,
			FOREIGN KEY(booking_id) REFERENCES bookings(id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_table_date ON bookings(table_id, date, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_restaurant_date ON bookings(restaurant_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_tenant ON bookings(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tables_restaurant ON restaurant_tables(restaurant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_opening_hours_restaurant ON opening_hours(restaurant_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_cutoff_restaurant ON cutoff_rules(restaurant_id, day_of_week)`,
		`CREATE INDEX IF NOT EXISTS idx_special_periods_range ON special_periods(restaurant_id, start_date, end_date)`,
		`CREATE INDEX IF NOT EXISTS idx_change_requests_booking ON change_requests(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_change_requests_status ON change_requests(status)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("executing %q: %w", query, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}
