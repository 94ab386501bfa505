// Package service orchestrates booking mutations: authorize, validate,
// commit, broadcast, notify.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tablio/internal/availability"
	"tablio/internal/domain"
	"tablio/internal/fanout"
	"tablio/internal/metrics"
	"tablio/internal/models"
	"tablio/internal/notify"
)

// Repository is the persistence collaborator for bookings.
type Repository interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, tenantID, id int64) (*models.Booking, error)
	UpdateBookingWithVersion(ctx context.Context, b *models.Booking, version int64) error
}

// Validator runs the availability gates over a candidate slot.
type Validator interface {
	Validate(ctx context.Context, c availability.Candidate) error
}

// Publisher broadcasts lifecycle events to live staff connections.
type Publisher interface {
	Publish(restaurantID int64, event fanout.Event)
}

// Actor identifies who requested a mutation. Staff act through a session;
// anonymous actors act through validated capability tokens and are subject
// to the booking's lifecycle boundary.
type Actor struct {
	Staff bool
}

// UpdateParams is the field-subset diff applied to a booking. Unset fields
// keep the current value.
type UpdateParams struct {
	Date      *time.Time
	StartTime *string
	EndTime   *string
	Guests    *int
	TableID   *int64
	Notes     *string
}

// BookingService coordinates the mutation path. The window between validate
// and commit is not atomically closed; the version check on commit narrows
// the race but the storage layer owns the real uniqueness guarantee.
type BookingService struct {
	repo      Repository
	validator Validator
	publisher Publisher
	notifier  notify.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewBookingService creates the orchestration service.
func NewBookingService(repo Repository, validator Validator, publisher Publisher, notifier notify.Notifier, logger zerolog.Logger) *BookingService {
	return &BookingService{
		repo:      repo,
		validator: validator,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With().Str("component", "booking_service").Logger(),
		now:       time.Now,
	}
}

// Create validates and commits a new booking, then broadcasts it.
func (s *BookingService) Create(ctx context.Context, b *models.Booking) error {
	if b.Status == "" {
		b.Status = models.StatusPending
	}

	err := s.validator.Validate(ctx, availability.Candidate{
		RestaurantID: b.RestaurantID,
		TableID:      b.TableID,
		Date:         b.Date,
		StartTime:    b.StartTime,
		EndTime:      b.EndTime,
		Guests:       b.Guests,
	})
	if err != nil {
		return s.rejected(err)
	}

	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookingMutation("create")
	s.broadcast(fanout.EventNew, b)
	s.notifyAsync(b.CustomerID, "Booking received",
		fmt.Sprintf("Your booking for %s at %s is %s.", b.Date.Format("2006-01-02"), b.StartTime, b.Status))

	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("restaurant_id", b.RestaurantID).
		Str("status", b.Status).
		Msg("booking created")
	return nil
}

// Get returns a booking scoped to its tenant.
func (s *BookingService) Get(ctx context.Context, tenantID, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, tenantID, id)
}

// Update applies a field-subset diff to a booking through the validator.
// Anonymous actors are refused once the booking's start time has passed.
func (s *BookingService) Update(ctx context.Context, actor Actor, tenantID, id int64, p UpdateParams) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkLifecycle(actor, b); err != nil {
		return nil, err
	}

	updated := *b
	if p.Date != nil {
		updated.Date = models.DateOnly(*p.Date)
	}
	if p.StartTime != nil {
		updated.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		updated.EndTime = *p.EndTime
	}
	if p.Guests != nil {
		updated.Guests = *p.Guests
	}
	if p.TableID != nil {
		updated.TableID = p.TableID
	}
	if p.Notes != nil {
		updated.Notes = *p.Notes
	}

	err = s.validator.Validate(ctx, availability.Candidate{
		RestaurantID:     updated.RestaurantID,
		TableID:          updated.TableID,
		ExcludeBookingID: updated.ID,
		Date:             updated.Date,
		StartTime:        updated.StartTime,
		EndTime:          updated.EndTime,
		Guests:           updated.Guests,
	})
	if err != nil {
		return nil, s.rejected(err)
	}

	if err := s.repo.UpdateBookingWithVersion(ctx, &updated, b.Version); err != nil {
		return nil, fmt.Errorf("commit booking update: %w", err)
	}

	metrics.IncBookingMutation("update")
	s.broadcast(fanout.EventChanged, &updated)
	s.notifyAsync(updated.CustomerID, "Booking updated",
		fmt.Sprintf("Your booking is now %s %s-%s.", updated.Date.Format("2006-01-02"), updated.StartTime, updated.EndTime))

	s.logger.Info().
		Int64("booking_id", updated.ID).
		Bool("staff", actor.Staff).
		Msg("booking updated")
	return &updated, nil
}

// Cancel marks a booking cancelled and broadcasts the cancellation.
func (s *BookingService) Cancel(ctx context.Context, actor Actor, tenantID, id int64) (*models.Booking, error) {
	b, err := s.repo.GetBooking(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkLifecycle(actor, b); err != nil {
		return nil, err
	}
	if b.Status == models.StatusCancelled {
		return nil, &domain.LifecycleError{Reason: "booking already cancelled"}
	}

	updated := *b
	updated.Status = models.StatusCancelled
	if err := s.repo.UpdateBookingWithVersion(ctx, &updated, b.Version); err != nil {
		return nil, fmt.Errorf("commit cancellation: %w", err)
	}

	metrics.IncBookingMutation("cancel")
	s.broadcast(fanout.EventCancelled, &updated)
	s.notifyAsync(updated.CustomerID, "Booking cancelled",
		fmt.Sprintf("Your booking for %s at %s was cancelled.", updated.Date.Format("2006-01-02"), updated.StartTime))

	s.logger.Info().
		Int64("booking_id", updated.ID).
		Bool("staff", actor.Staff).
		Msg("booking cancelled")
	return &updated, nil
}

// checkLifecycle enforces the anonymous actor boundary: once the booking has
// started, or is no longer occupying its slot, signed-link mutation is over.
func (s *BookingService) checkLifecycle(actor Actor, b *models.Booking) error {
	if actor.Staff {
		return nil
	}
	if b.HasStarted(s.now()) {
		return &domain.LifecycleError{Reason: "booking has already started"}
	}
	if !b.IsOccupying() {
		return &domain.LifecycleError{Reason: "booking is no longer active"}
	}
	return nil
}

// rejected records validator rejections in metrics and passes them through.
func (s *BookingService) rejected(err error) error {
	if ae, ok := domain.IsAvailability(err); ok {
		metrics.IncValidatorRejection(ae.Reason)
	}
	return err
}

func (s *BookingService) broadcast(eventType string, b *models.Booking) {
	event, err := fanout.NewEvent(eventType, b.RestaurantID, b)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("build event")
		return
	}
	s.publisher.Publish(b.RestaurantID, event)
}

// notifyAsync delivers a customer notification off the mutation path.
// Failures are logged and swallowed.
func (s *BookingService) notifyAsync(customerID int64, subject, body string) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.notifier.NotifyCustomer(ctx, customerID, subject, body); err != nil {
			s.logger.Warn().Err(err).Int64("customer_id", customerID).Msg("customer notification failed")
		}
	}()
}
