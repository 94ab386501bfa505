package changerequest

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"tablio/internal/database"
	"tablio/internal/domain"
	"tablio/internal/fanout"
	"tablio/internal/models"
	"tablio/internal/service"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateChangeRequest(ctx context.Context, cr *models.ChangeRequest) error {
	return m.Called(ctx, cr).Error(0)
}

func (m *mockRepo) GetChangeRequest(ctx context.Context, id string) (*models.ChangeRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChangeRequest), args.Error(1)
}

func (m *mockRepo) GetPendingChangeRequests(ctx context.Context, bookingID int64) ([]models.ChangeRequest, error) {
	args := m.Called(ctx, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChangeRequest), args.Error(1)
}

func (m *mockRepo) ResolveChangeRequest(ctx context.Context, id, status, responderNote string) error {
	return m.Called(ctx, id, status, responderNote).Error(0)
}

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) Get(ctx context.Context, tenantID, id int64) (*models.Booking, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockBookings) Update(ctx context.Context, actor service.Actor, tenantID, id int64, p service.UpdateParams) (*models.Booking, error) {
	args := m.Called(ctx, actor, tenantID, id, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(restaurantID int64, event fanout.Event) {
	m.Called(restaurantID, event)
}

func futureBooking() *models.Booking {
	return &models.Booking{
		ID:           42,
		TenantID:     7,
		RestaurantID: 3,
		CustomerID:   100,
		Date:         models.DateOnly(time.Now().AddDate(0, 0, 7)),
		StartTime:    "19:00",
		EndTime:      "21:00",
		Guests:       2,
		Status:       models.StatusConfirmed,
		Version:      1,
	}
}

func pendingRequest() *models.ChangeRequest {
	guests := 4
	return &models.ChangeRequest{
		ID:        "cr-1",
		BookingID: 42,
		Guests:    &guests,
		Status:    models.ChangeRequestPending,
		CreatedAt: time.Now(),
	}
}

func newTestWorkflow(repo *mockRepo, bookings *mockBookings, publisher *mockPublisher) *Workflow {
	return NewWorkflow(repo, bookings, publisher, nil, zerolog.New(io.Discard))
}

func TestCreateProposal(t *testing.T) {
	ctx := context.Background()

	t.Run("records pending request and broadcasts", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		publisher := new(mockPublisher)
		w := newTestWorkflow(repo, bookings, publisher)

		bookings.On("Get", ctx, int64(7), int64(42)).Return(futureBooking(), nil).Once()
		repo.On("CreateChangeRequest", ctx, mock.MatchedBy(func(cr *models.ChangeRequest) bool {
			return cr.Status == models.ChangeRequestPending && cr.BookingID == 42 && cr.ID != ""
		})).Return(nil).Once()
		publisher.On("Publish", int64(3), mock.AnythingOfType("fanout.Event")).Once()

		guests := 4
		cr, err := w.Create(ctx, 7, 42, Proposal{Guests: &guests, Note: "bringing friends"})
		assert.NoError(t, err)
		assert.Equal(t, models.ChangeRequestPending, cr.Status)
		repo.AssertExpectations(t)
	})

	t.Run("empty proposal refused", func(t *testing.T) {
		w := newTestWorkflow(new(mockRepo), new(mockBookings), new(mockPublisher))
		_, err := w.Create(ctx, 7, 42, Proposal{Note: "no changes"})
		assert.Error(t, err)
	})

	t.Run("refused after booking start", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		started := futureBooking()
		started.Date = models.DateOnly(time.Now().AddDate(0, 0, -1))
		bookings.On("Get", ctx, int64(7), int64(42)).Return(started, nil).Once()

		guests := 4
		_, err := w.Create(ctx, 7, 42, Proposal{Guests: &guests})
		assert.True(t, domain.IsLifecycle(err))
		repo.AssertNotCalled(t, "CreateChangeRequest", mock.Anything, mock.Anything)
	})
}

func TestApprove(t *testing.T) {
	ctx := context.Background()

	t.Run("applies diff through validated path and resolves", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		publisher := new(mockPublisher)
		w := newTestWorkflow(repo, bookings, publisher)

		cr := pendingRequest()
		booking := futureBooking()
		repo.On("GetChangeRequest", ctx, "cr-1").Return(cr, nil).Once()
		bookings.On("Get", ctx, int64(7), int64(42)).Return(booking, nil).Once()
		bookings.On("Update", ctx, service.Actor{Staff: true}, int64(7), int64(42),
			mock.MatchedBy(func(p service.UpdateParams) bool {
				return p.Guests != nil && *p.Guests == 4 && p.TableID == nil
			})).Return(booking, nil).Once()
		repo.On("ResolveChangeRequest", ctx, "cr-1", models.ChangeRequestApproved, "see you then").Return(nil).Once()
		publisher.On("Publish", int64(3), mock.AnythingOfType("fanout.Event")).Once()

		resolved, err := w.Approve(ctx, 7, "cr-1", "see you then")
		assert.NoError(t, err)
		assert.Equal(t, models.ChangeRequestApproved, resolved.Status)
		assert.NotNil(t, resolved.RespondedAt)
		repo.AssertExpectations(t)
		bookings.AssertExpectations(t)
	})

	t.Run("already resolved fails with lifecycle error", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		cr := pendingRequest()
		cr.Status = models.ChangeRequestRejected
		repo.On("GetChangeRequest", ctx, "cr-1").Return(cr, nil).Once()

		_, err := w.Approve(ctx, 7, "cr-1", "")
		assert.True(t, domain.IsLifecycle(err))
		bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost resolution race is a lifecycle error", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		cr := pendingRequest()
		booking := futureBooking()
		repo.On("GetChangeRequest", ctx, "cr-1").Return(cr, nil).Once()
		bookings.On("Get", ctx, int64(7), int64(42)).Return(booking, nil).Once()
		bookings.On("Update", ctx, mock.Anything, int64(7), int64(42), mock.Anything).Return(booking, nil).Once()
		repo.On("ResolveChangeRequest", ctx, "cr-1", models.ChangeRequestApproved, "").
			Return(database.ErrConcurrentModification).Once()

		_, err := w.Approve(ctx, 7, "cr-1", "")
		assert.True(t, domain.IsLifecycle(err))
	})

	t.Run("availability rejection leaves request pending", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		cr := pendingRequest()
		repo.On("GetChangeRequest", ctx, "cr-1").Return(cr, nil).Once()
		bookings.On("Get", ctx, int64(7), int64(42)).Return(futureBooking(), nil).Once()
		bookings.On("Update", ctx, mock.Anything, int64(7), int64(42), mock.Anything).
			Return(nil, &domain.AvailabilityError{Reason: domain.ReasonTableConflict}).Once()

		_, err := w.Approve(ctx, 7, "cr-1", "")
		_, ok := domain.IsAvailability(err)
		assert.True(t, ok)
		repo.AssertNotCalled(t, "ResolveChangeRequest", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReject(t *testing.T) {
	ctx := context.Background()

	t.Run("resolves without touching the booking", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		publisher := new(mockPublisher)
		w := newTestWorkflow(repo, bookings, publisher)

		cr := pendingRequest()
		repo.On("GetChangeRequest", ctx, "cr-1").Return(cr, nil).Once()
		bookings.On("Get", ctx, int64(7), int64(42)).Return(futureBooking(), nil).Once()
		repo.On("ResolveChangeRequest", ctx, "cr-1", models.ChangeRequestRejected, "fully booked").Return(nil).Once()
		publisher.On("Publish", int64(3), mock.AnythingOfType("fanout.Event")).Once()

		resolved, err := w.Reject(ctx, 7, "cr-1", "fully booked")
		assert.NoError(t, err)
		assert.Equal(t, models.ChangeRequestRejected, resolved.Status)
		bookings.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("second resolution attempt fails", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		cr := pendingRequest()
		cr.Status = models.ChangeRequestApproved
		repo.On("GetChangeRequest", ctx, "cr-1").Return(cr, nil).Once()

		_, err := w.Reject(ctx, 7, "cr-1", "")
		assert.True(t, domain.IsLifecycle(err))
	})
}

func TestPending(t *testing.T) {
	ctx := context.Background()

	t.Run("lists unresolved requests for the booking", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		bookings.On("Get", ctx, int64(7), int64(42)).Return(futureBooking(), nil).Once()
		repo.On("GetPendingChangeRequests", ctx, int64(42)).Return([]models.ChangeRequest{*pendingRequest()}, nil).Once()

		pending, err := w.Pending(ctx, 7, 42)
		assert.NoError(t, err)
		assert.Len(t, pending, 1)
		assert.Equal(t, "cr-1", pending[0].ID)
	})

	t.Run("foreign tenant cannot list", func(t *testing.T) {
		repo := new(mockRepo)
		bookings := new(mockBookings)
		w := newTestWorkflow(repo, bookings, new(mockPublisher))

		bookings.On("Get", ctx, int64(8), int64(42)).Return(nil, database.ErrNotFound).Once()

		_, err := w.Pending(ctx, 8, 42)
		assert.ErrorIs(t, err, database.ErrNotFound)
		repo.AssertNotCalled(t, "GetPendingChangeRequests", mock.Anything, mock.Anything)
	})
}
