package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tablio/internal/models"
)

// CreateTable inserts a restaurant table and sets its ID.
func (db *DB) CreateTable(ctx context.Context, t *models.Table) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO restaurant_tables (restaurant_id, name, capacity, created_at)
		VALUES (?, ?, ?, ?)`,
		t.RestaurantID, t.Name, t.Capacity, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert table: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("table id: %w", err)
	}
	t.ID = id
	return nil
}

// GetTable returns a table by ID, or nil when it does not exist.
func (db *DB) GetTable(ctx context.Context, tableID int64) (*models.Table, error) {
	var t models.Table
	err := db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, name, capacity, created_at
		FROM restaurant_tables WHERE id = ?`,
		tableID,
	).Scan(&t.ID, &t.RestaurantID, &t.Name, &t.Capacity, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get table: %w", err)
	}
	return &t, nil
}

// SetOpeningHours creates or replaces the weekly rule for a day.
func (db *DB) SetOpeningHours(ctx context.Context, r *models.OpeningHoursRule) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO opening_hours (restaurant_id, day_of_week, open, opens_at, closes_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(restaurant_id, day_of_week) DO UPDATE SET
			open = excluded.open,
			opens_at = excluded.opens_at,
			closes_at = excluded.closes_at`,
		r.RestaurantID, r.DayOfWeek, r.Open, r.OpensAt, r.ClosesAt,
	)
	if err != nil {
		return fmt.Errorf("set opening hours: %w", err)
	}
	return nil
}

// GetOpeningHours returns the weekly rule for a day, or nil when absent.
func (db *DB) GetOpeningHours(ctx context.Context, restaurantID int64, dayOfWeek int) (*models.OpeningHoursRule, error) {
	var r models.OpeningHoursRule
	err := db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, day_of_week, open, opens_at, closes_at
		FROM opening_hours
		WHERE restaurant_id = ? AND day_of_week = ?`,
		restaurantID, dayOfWeek,
	).Scan(&r.ID, &r.RestaurantID, &r.DayOfWeek, &r.Open, &r.OpensAt, &r.ClosesAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get opening hours: %w", err)
	}
	return &r, nil
}

// SetCutOffRule creates or replaces the cut-off rule for a day.
func (db *DB) SetCutOffRule(ctx context.Context, r *models.CutOffRule) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO cutoff_rules (restaurant_id, day_of_week, enabled, hours_before_booking)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(restaurant_id, day_of_week) DO UPDATE SET
			enabled = excluded.enabled,
			hours_before_booking = excluded.hours_before_booking`,
		r.RestaurantID, r.DayOfWeek, r.Enabled, r.HoursBeforeBooking,
	)
	if err != nil {
		return fmt.Errorf("set cut-off rule: %w", err)
	}
	return nil
}

// GetCutOffRule returns the cut-off rule for a day, or nil when absent.
func (db *DB) GetCutOffRule(ctx context.Context, restaurantID int64, dayOfWeek int) (*models.CutOffRule, error) {
	var r models.CutOffRule
	err := db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, day_of_week, enabled, hours_before_booking
		FROM cutoff_rules
		WHERE restaurant_id = ? AND day_of_week = ?`,
		restaurantID, dayOfWeek,
	).Scan(&r.ID, &r.RestaurantID, &r.DayOfWeek, &r.Enabled, &r.HoursBeforeBooking)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cut-off rule: %w", err)
	}
	return &r, nil
}

// CreateSpecialPeriod inserts an override period and sets its ID.
func (db *DB) CreateSpecialPeriod(ctx context.Context, p *models.SpecialPeriod) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO special_periods (restaurant_id, start_date, end_date, closed, opens_at, closes_at, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.RestaurantID, p.StartDate.Format(dateFormat), p.EndDate.Format(dateFormat),
		p.Closed, p.OpensAt, p.ClosesAt, p.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert special period: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("special period id: %w", err)
	}
	p.ID = id
	return nil
}

// GetSpecialPeriod returns the override covering a date, or nil when none does.
func (db *DB) GetSpecialPeriod(ctx context.Context, restaurantID int64, date time.Time) (*models.SpecialPeriod, error) {
	var p models.SpecialPeriod
	var opensAt, closesAt, reason sql.NullString
	var startStr, endStr string

	err := db.QueryRowContext(ctx, `
		SELECT id, restaurant_id, start_date, end_date, closed, opens_at, closes_at, reason
		FROM special_periods
		WHERE restaurant_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY id DESC
		LIMIT 1`,
		restaurantID, date.Format(dateFormat), date.Format(dateFormat),
	).Scan(&p.ID, &p.RestaurantID, &startStr, &endStr, &p.Closed, &opensAt, &closesAt, &reason)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get special period: %w", err)
	}

	if p.StartDate, err = time.Parse(dateFormat, startStr); err != nil {
		return nil, fmt.Errorf("parse period start %q: %w", startStr, err)
	}
	if p.EndDate, err = time.Parse(dateFormat, endStr); err != nil {
		return nil, fmt.Errorf("parse period end %q: %w", endStr, err)
	}
	if opensAt.Valid {
		p.OpensAt = opensAt.String
	}
	if closesAt.Valid {
		p.ClosesAt = closesAt.String
	}
	if reason.Valid {
		p.Reason = reason.String
	}
	return &p, nil
}
