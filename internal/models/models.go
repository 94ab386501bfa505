package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Booking statuses.
const (
	StatusPending        = "pending"
	StatusConfirmed      = "confirmed"
	StatusWaitingPayment = "waiting_payment"
	StatusCancelled      = "cancelled"
	StatusCompleted      = "completed"
	StatusNoShow         = "no_show"
)

// Capability token actions.
const (
	ActionManage         = "manage"
	ActionCancel         = "cancel"
	ActionChange         = "change"
	ActionChangeResponse = "change-response"
)

// Booking represents a reservation record owned by a restaurant/tenant pair.
type Booking struct {
	ID           int64     `json:"id"`
	TenantID     int64     `json:"tenant_id"`
	RestaurantID int64     `json:"restaurant_id"`
	TableID      *int64    `json:"table_id,omitempty"`
	CustomerID   int64     `json:"customer_id"`
	Date         time.Time `json:"date"`       // date component only
	StartTime    string    `json:"start_time"` // "19:00"
	EndTime      string    `json:"end_time"`   // "21:00"
	Guests       int       `json:"guests"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

// IsOccupying reports whether the booking holds its table slot.
// Cancelled, completed and no-show bookings release the slot.
func (b *Booking) IsOccupying() bool {
	switch b.Status {
	case StatusPending, StatusConfirmed, StatusWaitingPayment:
		return true
	}
	return false
}

// StartsAt returns the absolute start instant of the booking.
func (b *Booking) StartsAt() time.Time {
	m, err := MinuteOfDay(b.StartTime)
	if err != nil {
		return b.Date
	}
	return time.Date(b.Date.Year(), b.Date.Month(), b.Date.Day(), 0, m, 0, 0, b.Date.Location())
}

// HasStarted reports whether the booking's start time has passed.
// Anonymous link actions are refused once this is true.
func (b *Booking) HasStarted(now time.Time) bool {
	return !now.Before(b.StartsAt())
}

// Table represents a bookable table in a restaurant.
type Table struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	Name         string    `json:"name"`
	Capacity     int       `json:"capacity"`
	CreatedAt    time.Time `json:"created_at"`
}

// Change request statuses.
const (
	ChangeRequestPending  = "pending"
	ChangeRequestApproved = "approved"
	ChangeRequestRejected = "rejected"
)

// ChangeRequest is a customer-proposed booking modification awaiting a
// restaurant decision. Any subset of date/time/guests may be requested;
// unset fields keep the booking's current value.
type ChangeRequest struct {
	ID            string     `json:"id"` // uuid
	BookingID     int64      `json:"booking_id"`
	Date          *time.Time `json:"date,omitempty"`
	StartTime     *string    `json:"start_time,omitempty"`
	EndTime       *string    `json:"end_time,omitempty"`
	Guests        *int       `json:"guests,omitempty"`
	Status        string     `json:"status"`
	RequesterNote string     `json:"requester_note,omitempty"`
	ResponderNote string     `json:"responder_note,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
}

// IsResolved reports whether the request has left the pending state.
func (cr *ChangeRequest) IsResolved() bool {
	return cr.Status != ChangeRequestPending
}

// OpeningHoursRule is the weekly base schedule for a restaurant.
type OpeningHoursRule struct {
	ID           int64  `json:"id"`
	RestaurantID int64  `json:"restaurant_id"`
	DayOfWeek    int    `json:"day_of_week"` // 1 = Monday ... 7 = Sunday
	Open         bool   `json:"open"`
	OpensAt      string `json:"opens_at"`  // "11:00"
	ClosesAt     string `json:"closes_at"` // "23:00"
}

// CutOffRule sets the minimum lead time before a booking start on a weekday.
type CutOffRule struct {
	ID                 int64 `json:"id"`
	RestaurantID       int64 `json:"restaurant_id"`
	DayOfWeek          int   `json:"day_of_week"`
	Enabled            bool  `json:"enabled"`
	HoursBeforeBooking int   `json:"hours_before_booking"`
}

// SpecialPeriod overrides the weekly schedule for a date range. A covering
// period replaces the base rule entirely: Closed forces the day closed, and
// explicit hours replace the base open/close times.
type SpecialPeriod struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant_id"`
	StartDate    time.Time `json:"start_date"`
	EndDate      time.Time `json:"end_date"`
	Closed       bool      `json:"closed"`
	OpensAt      string    `json:"opens_at,omitempty"`
	ClosesAt     string    `json:"closes_at,omitempty"`
	Reason       string    `json:"reason,omitempty"`
}

// Covers reports whether the period includes the given date (inclusive range).
func (p *SpecialPeriod) Covers(date time.Time) bool {
	d := DateOnly(date)
	return !d.Before(DateOnly(p.StartDate)) && !d.After(DateOnly(p.EndDate))
}

// DateOnly truncates a time to its date component.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ISOWeekday returns the day of week with Monday = 1 and Sunday = 7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MinuteOfDay parses an "HH:MM" clock string into minutes from midnight.
func MinuteOfDay(clock string) (int, error) {
	parts := strings.Split(clock, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time format: %s", clock)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour: %w", err)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute: %w", err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time out of range: %s", clock)
	}
	return hour*60 + minute, nil
}
