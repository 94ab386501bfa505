package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tablio/internal/models"
)

// CreateChangeRequest inserts a pending change request.
func (db *DB) CreateChangeRequest(ctx context.Context, cr *models.ChangeRequest) error {
	var dateStr *string
	if cr.Date != nil {
		s := cr.Date.Format(dateFormat)
		dateStr = &s
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, `
		INSERT INTO change_requests (
			id, booking_id, date, start_time, end_time, guests,
			status, requester_note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cr.ID, cr.BookingID, dateStr, cr.StartTime, cr.EndTime, cr.Guests,
		cr.Status, cr.RequesterNote, now,
	)
	if err != nil {
		return fmt.Errorf("insert change request: %w", err)
	}
	cr.CreatedAt = now
	return nil
}

const changeRequestColumns = `id, booking_id, date, start_time, end_time, guests,
       status, requester_note, responder_note, created_at, responded_at`

// scanChangeRequest reads one change request row from a row or rows scanner.
func scanChangeRequest(scan func(dest ...any) error) (*models.ChangeRequest, error) {
	var cr models.ChangeRequest
	var dateStr, startTime, endTime, reqNote, respNote sql.NullString
	var guests sql.NullInt64
	var respondedAt sql.NullTime

	err := scan(
		&cr.ID, &cr.BookingID, &dateStr, &startTime, &endTime, &guests,
		&cr.Status, &reqNote, &respNote, &cr.CreatedAt, &respondedAt,
	)
	if err != nil {
		return nil, err
	}

	if dateStr.Valid {
		d, err := time.Parse(dateFormat, dateStr.String)
		if err != nil {
			return nil, fmt.Errorf("parse change request date %q: %w", dateStr.String, err)
		}
		cr.Date = &d
	}
	if startTime.Valid {
		cr.StartTime = &startTime.String
	}
	if endTime.Valid {
		cr.EndTime = &endTime.String
	}
	if guests.Valid {
		g := int(guests.Int64)
		cr.Guests = &g
	}
	if reqNote.Valid {
		cr.RequesterNote = reqNote.String
	}
	if respNote.Valid {
		cr.ResponderNote = respNote.String
	}
	if respondedAt.Valid {
		cr.RespondedAt = &respondedAt.Time
	}
	return &cr, nil
}

// GetChangeRequest returns a change request by ID, or ErrNotFound.
func (db *DB) GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+changeRequestColumns+`
		FROM change_requests WHERE id = ?`,
		id,
	)
	cr, err := scanChangeRequest(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get change request: %w", err)
	}
	return cr, nil
}

// ResolveChangeRequest transitions a request out of pending exactly once.
// The status guard in the WHERE clause makes the transition atomic: a request
// already resolved reports ErrConcurrentModification.
func (db *DB) ResolveChangeRequest(ctx context.Context, id, status, responderNote string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE change_requests
		SET status = ?, responder_note = ?, responded_at = ?
		WHERE id = ? AND status = ?`,
		status, responderNote, time.Now(), id, models.ChangeRequestPending,
	)
	if err != nil {
		return fmt.Errorf("resolve change request: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve change request rows: %w", err)
	}
	if affected == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// GetPendingChangeRequests lists unresolved requests for a booking, oldest
// first.
func (db *DB) GetPendingChangeRequests(ctx context.Context, bookingID int64) ([]models.ChangeRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+changeRequestColumns+`
		FROM change_requests
		WHERE booking_id = ? AND status = ?
		ORDER BY created_at`,
		bookingID, models.ChangeRequestPending,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending change requests: %w", err)
	}
	defer rows.Close()

	var out []models.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan pending change request: %w", err)
		}
		out = append(out, *cr)
	}
	return out, rows.Err()
}
