// Package changerequest implements the two-party approval workflow for
// customer-proposed booking modifications.
package changerequest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tablio/internal/database"
	"tablio/internal/domain"
	"tablio/internal/fanout"
	"tablio/internal/metrics"
	"tablio/internal/models"
	"tablio/internal/notify"
	"tablio/internal/service"
)

// Repository persists change requests.
type Repository interface {
	CreateChangeRequest(ctx context.Context, cr *models.ChangeRequest) error
	GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error)
	GetPendingChangeRequests(ctx context.Context, bookingID int64) ([]models.ChangeRequest, error)
	ResolveChangeRequest(ctx context.Context, id, status, responderNote string) error
}

// Bookings is the mutation path an approved proposal is applied through.
// It runs the same availability validation as a direct staff edit.
type Bookings interface {
	Get(ctx context.Context, tenantID, id int64) (*models.Booking, error)
	Update(ctx context.Context, actor service.Actor, tenantID, id int64, p service.UpdateParams) (*models.Booking, error)
}

// Publisher broadcasts workflow events to live staff connections.
type Publisher interface {
	Publish(restaurantID int64, event fanout.Event)
}

// Proposal is the customer-requested field subset. Unset fields keep the
// booking's current values. Table reassignment is never possible through
// this path.
type Proposal struct {
	Date      *time.Time
	StartTime *string
	EndTime   *string
	Guests    *int
	Note      string
}

// Workflow drives a change request from pending to its terminal state.
type Workflow struct {
	repo      Repository
	bookings  Bookings
	publisher Publisher
	notifier  notify.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// NewWorkflow creates the change request workflow.
func NewWorkflow(repo Repository, bookings Bookings, publisher Publisher, notifier notify.Notifier, logger zerolog.Logger) *Workflow {
	return &Workflow{
		repo:      repo,
		bookings:  bookings,
		publisher: publisher,
		notifier:  notifier,
		logger:    logger.With().Str("component", "change_request").Logger(),
		now:       time.Now,
	}
}

// Create records a customer proposal against a booking. Proposals are
// refused once the booking's start time has passed.
func (w *Workflow) Create(ctx context.Context, tenantID, bookingID int64, p Proposal) (*models.ChangeRequest, error) {
	if p.Date == nil && p.StartTime == nil && p.EndTime == nil && p.Guests == nil {
		return nil, fmt.Errorf("proposal requests no changes")
	}

	booking, err := w.bookings.Get(ctx, tenantID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.HasStarted(w.now()) {
		return nil, &domain.LifecycleError{Reason: "booking has already started"}
	}
	if !booking.IsOccupying() {
		return nil, &domain.LifecycleError{Reason: "booking is no longer active"}
	}

	cr := &models.ChangeRequest{
		ID:            uuid.NewString(),
		BookingID:     bookingID,
		Date:          p.Date,
		StartTime:     p.StartTime,
		EndTime:       p.EndTime,
		Guests:        p.Guests,
		Status:        models.ChangeRequestPending,
		RequesterNote: p.Note,
	}
	if err := w.repo.CreateChangeRequest(ctx, cr); err != nil {
		return nil, fmt.Errorf("create change request: %w", err)
	}

	w.broadcast(fanout.EventChangeRequest, booking.RestaurantID, cr)
	w.logger.Info().
		Str("change_request_id", cr.ID).
		Int64("booking_id", bookingID).
		Msg("change request created")
	return cr, nil
}

// Get returns a change request by ID.
func (w *Workflow) Get(ctx context.Context, id string) (*models.ChangeRequest, error) {
	return w.repo.GetChangeRequest(ctx, id)
}

// Pending lists the unresolved requests against a booking, oldest first.
// The booking lookup scopes the listing to the caller's tenant.
func (w *Workflow) Pending(ctx context.Context, tenantID, bookingID int64) ([]models.ChangeRequest, error) {
	if _, err := w.bookings.Get(ctx, tenantID, bookingID); err != nil {
		return nil, err
	}
	return w.repo.GetPendingChangeRequests(ctx, bookingID)
}

// Approve applies the proposal to the booking through the validated mutation
// path, then marks the request approved and notifies the customer. A request
// already out of pending fails with a lifecycle error.
func (w *Workflow) Approve(ctx context.Context, tenantID int64, id, responderNote string) (*models.ChangeRequest, error) {
	cr, err := w.repo.GetChangeRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.IsResolved() {
		return nil, &domain.LifecycleError{Reason: "change request already resolved"}
	}

	booking, err := w.bookings.Get(ctx, tenantID, cr.BookingID)
	if err != nil {
		return nil, err
	}

	// Only the fields the proposal specified; a table is never reassigned here.
	diff := service.UpdateParams{
		Date:      cr.Date,
		StartTime: cr.StartTime,
		EndTime:   cr.EndTime,
		Guests:    cr.Guests,
	}
	if _, err := w.bookings.Update(ctx, service.Actor{Staff: true}, tenantID, cr.BookingID, diff); err != nil {
		// The request stays pending so staff can still reject it.
		return nil, err
	}

	if err := w.resolve(ctx, cr, models.ChangeRequestApproved, responderNote); err != nil {
		return nil, err
	}

	metrics.IncChangeRequestDecision("approved")
	w.broadcast(fanout.EventChangeResponse, booking.RestaurantID, cr)
	w.notifyAsync(booking.CustomerID, "Change request approved",
		approvalMessage(cr, responderNote))

	w.logger.Info().
		Str("change_request_id", cr.ID).
		Int64("booking_id", cr.BookingID).
		Msg("change request approved")
	return cr, nil
}

// Reject marks the request rejected and leaves the booking untouched.
func (w *Workflow) Reject(ctx context.Context, tenantID int64, id, responderNote string) (*models.ChangeRequest, error) {
	cr, err := w.repo.GetChangeRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if cr.IsResolved() {
		return nil, &domain.LifecycleError{Reason: "change request already resolved"}
	}

	booking, err := w.bookings.Get(ctx, tenantID, cr.BookingID)
	if err != nil {
		return nil, err
	}

	if err := w.resolve(ctx, cr, models.ChangeRequestRejected, responderNote); err != nil {
		return nil, err
	}

	metrics.IncChangeRequestDecision("rejected")
	w.broadcast(fanout.EventChangeResponse, booking.RestaurantID, cr)

	msg := "Your change request was declined."
	if responderNote != "" {
		msg = fmt.Sprintf("Your change request was declined: %s", responderNote)
	}
	w.notifyAsync(booking.CustomerID, "Change request declined", msg)

	w.logger.Info().
		Str("change_request_id", cr.ID).
		Int64("booking_id", cr.BookingID).
		Msg("change request rejected")
	return cr, nil
}

// resolve performs the single allowed transition out of pending. The
// storage-level status guard turns a concurrent second resolution into a
// lifecycle error.
func (w *Workflow) resolve(ctx context.Context, cr *models.ChangeRequest, status, responderNote string) error {
	if err := w.repo.ResolveChangeRequest(ctx, cr.ID, status, responderNote); err != nil {
		if errors.Is(err, database.ErrConcurrentModification) {
			return &domain.LifecycleError{Reason: "change request already resolved"}
		}
		return fmt.Errorf("resolve change request: %w", err)
	}
	now := w.now()
	cr.Status = status
	cr.ResponderNote = responderNote
	cr.RespondedAt = &now
	return nil
}

func approvalMessage(cr *models.ChangeRequest, note string) string {
	msg := "Your change request was approved."
	if cr.Date != nil {
		msg += fmt.Sprintf(" New date: %s.", cr.Date.Format("2006-01-02"))
	}
	if cr.StartTime != nil {
		msg += fmt.Sprintf(" New time: %s.", *cr.StartTime)
	}
	if note != "" {
		msg += " " + note
	}
	return msg
}

func (w *Workflow) broadcast(eventType string, restaurantID int64, cr *models.ChangeRequest) {
	event, err := fanout.NewEvent(eventType, restaurantID, cr)
	if err != nil {
		w.logger.Error().Err(err).Str("event_type", eventType).Msg("build event")
		return
	}
	w.publisher.Publish(restaurantID, event)
}

func (w *Workflow) notifyAsync(customerID int64, subject, body string) {
	if w.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.notifier.NotifyCustomer(ctx, customerID, subject, body); err != nil {
			w.logger.Warn().Err(err).Int64("customer_id", customerID).Msg("customer notification failed")
		}
	}()
}
