// Package availability implements the conflict-resolution engine: business
// hours, cut-off windows, table conflicts and capacity checks.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tablio/internal/domain"
	"tablio/internal/models"
)

// TurnoverBuffer is the minimum idle interval required between consecutive
// bookings on the same table.
const TurnoverBuffer = 60 * time.Minute

// DefaultCutOff is the minimum lead time applied when no cut-off rule exists
// for the day or the rule is disabled.
const DefaultCutOff = time.Hour

// RuleStore resolves scheduling rules for a restaurant. Absent rules are
// returned as nil without error.
type RuleStore interface {
	GetOpeningHours(ctx context.Context, restaurantID int64, dayOfWeek int) (*models.OpeningHoursRule, error)
	GetCutOffRule(ctx context.Context, restaurantID int64, dayOfWeek int) (*models.CutOffRule, error)
	GetSpecialPeriod(ctx context.Context, restaurantID int64, date time.Time) (*models.SpecialPeriod, error)
}

// BookingStore lists existing bookings on a table for a date.
type BookingStore interface {
	GetTableBookings(ctx context.Context, tableID int64, date time.Time) ([]models.Booking, error)
}

// TableStore resolves table records.
type TableStore interface {
	GetTable(ctx context.Context, tableID int64) (*models.Table, error)
}

// Candidate describes a proposed booking slot to validate.
type Candidate struct {
	RestaurantID     int64
	TableID          *int64
	ExcludeBookingID int64 // skip this booking in the conflict scan (self, when modifying)
	Date             time.Time
	StartTime        string
	EndTime          string
	Guests           int
}

// Validator runs the three gates in order. The first failing gate determines
// the rejection reason; gates are never retried.
type Validator struct {
	rules    RuleStore
	bookings BookingStore
	tables   TableStore
	logger   zerolog.Logger
	now      func() time.Time
}

// NewValidator creates a validator over the given stores.
func NewValidator(rules RuleStore, bookings BookingStore, tables TableStore, logger zerolog.Logger) *Validator {
	return &Validator{
		rules:    rules,
		bookings: bookings,
		tables:   tables,
		logger:   logger.With().Str("component", "availability").Logger(),
		now:      time.Now,
	}
}

// Validate checks a candidate slot against all gates. It returns a
// *domain.AvailabilityError on rejection, or a wrapped storage error.
func (v *Validator) Validate(ctx context.Context, c Candidate) error {
	startMin, err := models.MinuteOfDay(c.StartTime)
	if err != nil {
		return fmt.Errorf("candidate start time: %w", err)
	}
	endMin, err := models.MinuteOfDay(c.EndTime)
	if err != nil {
		return fmt.Errorf("candidate end time: %w", err)
	}
	if endMin <= startMin {
		return fmt.Errorf("candidate end %s not after start %s", c.EndTime, c.StartTime)
	}

	if err := v.checkOpen(ctx, c.RestaurantID, c.Date, startMin); err != nil {
		return err
	}
	if err := v.checkCutOff(ctx, c.RestaurantID, c.Date, startMin); err != nil {
		return err
	}
	if c.TableID != nil {
		if err := v.checkTable(ctx, c, *c.TableID, startMin, endMin); err != nil {
			return err
		}
	}
	return nil
}

// checkOpen resolves the effective opening hours for the date. A special
// period covering the date replaces the base weekly rule entirely: a closed
// override forces closed even over an open base day, and explicit hours
// replace the base open/close times. Only the start time must fall inside
// the window: a booking may run past closing (last seating at 22:00 for a
// 23:00 close serves until 23:30).
func (v *Validator) checkOpen(ctx context.Context, restaurantID int64, date time.Time, startMin int) error {
	period, err := v.rules.GetSpecialPeriod(ctx, restaurantID, date)
	if err != nil {
		return fmt.Errorf("get special period: %w", err)
	}

	var opensAt, closesAt string
	switch {
	case period != nil:
		if period.Closed {
			return &domain.AvailabilityError{Reason: domain.ReasonClosed, Detail: "special period"}
		}
		opensAt, closesAt = period.OpensAt, period.ClosesAt
	default:
		rule, err := v.rules.GetOpeningHours(ctx, restaurantID, models.ISOWeekday(date))
		if err != nil {
			return fmt.Errorf("get opening hours: %w", err)
		}
		if rule == nil || !rule.Open {
			return &domain.AvailabilityError{Reason: domain.ReasonClosed}
		}
		opensAt, closesAt = rule.OpensAt, rule.ClosesAt
	}

	openMin, err := models.MinuteOfDay(opensAt)
	if err != nil {
		return fmt.Errorf("parse opening time: %w", err)
	}
	closeMin, err := models.MinuteOfDay(closesAt)
	if err != nil {
		return fmt.Errorf("parse closing time: %w", err)
	}

	if startMin < openMin || startMin >= closeMin {
		return &domain.AvailabilityError{
			Reason: domain.ReasonClosed,
			Detail: fmt.Sprintf("open %s-%s", opensAt, closesAt),
		}
	}
	return nil
}

// checkCutOff enforces the minimum lead time before the booking start.
// The current time must be strictly before start minus the lead.
func (v *Validator) checkCutOff(ctx context.Context, restaurantID int64, date time.Time, startMin int) error {
	lead := DefaultCutOff

	rule, err := v.rules.GetCutOffRule(ctx, restaurantID, models.ISOWeekday(date))
	if err != nil {
		return fmt.Errorf("get cut-off rule: %w", err)
	}
	if rule != nil && rule.Enabled {
		lead = time.Duration(rule.HoursBeforeBooking) * time.Hour
	}

	start := time.Date(date.Year(), date.Month(), date.Day(), 0, startMin, 0, 0, date.Location())
	if !v.now().Before(start.Add(-lead)) {
		return &domain.AvailabilityError{
			Reason: domain.ReasonCutOff,
			Detail: fmt.Sprintf("lead time %s", lead),
		}
	}
	return nil
}

// checkTable flags a conflict when the candidate range intersects an existing
// occupying booking's range expanded by the turnover buffer, then verifies
// the table capacity.
func (v *Validator) checkTable(ctx context.Context, c Candidate, tableID int64, startMin, endMin int) error {
	existing, err := v.bookings.GetTableBookings(ctx, tableID, c.Date)
	if err != nil {
		return fmt.Errorf("get table bookings: %w", err)
	}

	buffer := int(TurnoverBuffer.Minutes())
	for i := range existing {
		b := &existing[i]
		if b.ID == c.ExcludeBookingID || !b.IsOccupying() {
			continue
		}
		bStart, err := models.MinuteOfDay(b.StartTime)
		if err != nil {
			v.logger.Warn().Int64("booking_id", b.ID).Str("start", b.StartTime).Msg("skipping booking with bad start time")
			continue
		}
		bEnd, err := models.MinuteOfDay(b.EndTime)
		if err != nil {
			v.logger.Warn().Int64("booking_id", b.ID).Str("end", b.EndTime).Msg("skipping booking with bad end time")
			continue
		}
		// [startMin, endMin) vs the buffered [bStart-buffer, bEnd+buffer).
		if startMin < bEnd+buffer && bStart-buffer < endMin {
			return &domain.AvailabilityError{
				Reason: domain.ReasonTableConflict,
				Detail: fmt.Sprintf("booking %d %s-%s", b.ID, b.StartTime, b.EndTime),
			}
		}
	}

	table, err := v.tables.GetTable(ctx, tableID)
	if err != nil {
		return fmt.Errorf("get table: %w", err)
	}
	if table == nil {
		return fmt.Errorf("table %d not found", tableID)
	}
	if c.Guests > table.Capacity {
		return &domain.AvailabilityError{
			Reason: domain.ReasonCapacity,
			Detail: fmt.Sprintf("table seats %d", table.Capacity),
		}
	}
	return nil
}
