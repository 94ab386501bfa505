package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tablio/internal/models"
)

// CreateBooking inserts a booking and sets its ID, timestamps and version.
func (db *DB) CreateBooking(ctx context.Context, b *models.Booking) error {
	now := time.Now()
	res, err := db.ExecContext(ctx, `
		INSERT INTO bookings (
			tenant_id, restaurant_id, table_id, customer_id,
			date, start_time, end_time, guests, status, notes,
			created_at, updated_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.TenantID, b.RestaurantID, b.TableID, b.CustomerID,
		b.Date.Format(dateFormat), b.StartTime, b.EndTime, b.Guests, b.Status, b.Notes,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("booking id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	b.Version = 1
	return nil
}

// GetBooking returns a booking scoped to its tenant, or ErrNotFound.
func (db *DB) GetBooking(ctx context.Context, tenantID, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, tenant_id, restaurant_id, table_id, customer_id,
		       date, start_time, end_time, guests, status, notes,
		       created_at, updated_at, version
		FROM bookings
		WHERE id = ? AND tenant_id = ?`,
		id, tenantID,
	)
	return scanBooking(row)
}

// UpdateBookingWithVersion rewrites the mutable booking fields when the
// stored version still matches. ErrConcurrentModification signals a lost race.
func (db *DB) UpdateBookingWithVersion(ctx context.Context, b *models.Booking, version int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET table_id = ?, date = ?, start_time = ?, end_time = ?,
		    guests = ?, status = ?, notes = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND tenant_id = ? AND version = ?`,
		b.TableID, b.Date.Format(dateFormat), b.StartTime, b.EndTime,
		b.Guests, b.Status, b.Notes, time.Now(),
		b.ID, b.TenantID, version,
	)
	if err != nil {
		return fmt.Errorf("update booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update booking rows: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentModification
	}
	b.Version = version + 1
	return nil
}

// GetTableBookings returns all bookings on a table for a given date.
func (db *DB) GetTableBookings(ctx context.Context, tableID int64, date time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, restaurant_id, table_id, customer_id,
		       date, start_time, end_time, guests, status, notes,
		       created_at, updated_at, version
		FROM bookings
		WHERE table_id = ? AND date = ?
		ORDER BY start_time`,
		tableID, date.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("query table bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

// GetRestaurantBookings returns all bookings for a restaurant on a date.
func (db *DB) GetRestaurantBookings(ctx context.Context, restaurantID int64, date time.Time) ([]models.Booking, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, tenant_id, restaurant_id, table_id, customer_id,
		       date, start_time, end_time, guests, status, notes,
		       created_at, updated_at, version
		FROM bookings
		WHERE restaurant_id = ? AND date = ?
		ORDER BY start_time`,
		restaurantID, date.Format(dateFormat),
	)
	if err != nil {
		return nil, fmt.Errorf("query restaurant bookings: %w", err)
	}
	defer rows.Close()
	return collectBookings(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	var tableID sql.NullInt64
	var notes sql.NullString
	var dateStr string

	err := row.Scan(
		&b.ID, &b.TenantID, &b.RestaurantID, &tableID, &b.CustomerID,
		&dateStr, &b.StartTime, &b.EndTime, &b.Guests, &b.Status, &notes,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan booking: %w", err)
	}

	if tableID.Valid {
		b.TableID = &tableID.Int64
	}
	if notes.Valid {
		b.Notes = notes.String
	}
	b.Date, err = time.Parse(dateFormat, dateStr)
	if err != nil {
		return nil, fmt.Errorf("parse booking date %q: %w", dateStr, err)
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}
