package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"tablio/internal/auth"
	"tablio/internal/changerequest"
	"tablio/internal/domain"
	"tablio/internal/fanout"
	"tablio/internal/models"
	"tablio/internal/paycapsule"
	"tablio/internal/service"
	"tablio/internal/token"
)

type mockBookings struct {
	mock.Mock
}

func (m *mockBookings) Create(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
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

func (m *mockBookings) Cancel(ctx context.Context, actor service.Actor, tenantID, id int64) (*models.Booking, error) {
	args := m.Called(ctx, actor, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

type mockChangeRequests struct {
	mock.Mock
}

func (m *mockChangeRequests) Create(ctx context.Context, tenantID, bookingID int64, p changerequest.Proposal) (*models.ChangeRequest, error) {
	args := m.Called(ctx, tenantID, bookingID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChangeRequest), args.Error(1)
}

func (m *mockChangeRequests) Get(ctx context.Context, id string) (*models.ChangeRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChangeRequest), args.Error(1)
}

func (m *mockChangeRequests) Pending(ctx context.Context, tenantID, bookingID int64) ([]models.ChangeRequest, error) {
	args := m.Called(ctx, tenantID, bookingID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ChangeRequest), args.Error(1)
}

func (m *mockChangeRequests) Approve(ctx context.Context, tenantID int64, id, note string) (*models.ChangeRequest, error) {
	args := m.Called(ctx, tenantID, id, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChangeRequest), args.Error(1)
}

func (m *mockChangeRequests) Reject(ctx context.Context, tenantID int64, id, note string) (*models.ChangeRequest, error) {
	args := m.Called(ctx, tenantID, id, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChangeRequest), args.Error(1)
}

type mockExporter struct {
	mock.Mock
}

func (m *mockExporter) Write(ctx context.Context, w io.Writer, restaurantID int64, date time.Time) error {
	return m.Called(ctx, w, restaurantID, date).Error(0)
}

type mockRules struct {
	mock.Mock
}

func (m *mockRules) SetOpeningHours(ctx context.Context, r *models.OpeningHoursRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRules) SetCutOffRule(ctx context.Context, r *models.CutOffRule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRules) CreateSpecialPeriod(ctx context.Context, p *models.SpecialPeriod) error {
	return m.Called(ctx, p).Error(0)
}

type testServer struct {
	server         *HTTPServer
	bookings       *mockBookings
	changeRequests *mockChangeRequests
	exporter       *mockExporter
	rules          *mockRules
	tokens         *token.Service
	sessions       *auth.Sessions
	capsules       *paycapsule.Service
	registry       *fanout.Fanout
	handler        http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	tokens, err := token.NewService("link-secret")
	assert.NoError(t, err)
	sessions, err := auth.NewSessions("session-secret", time.Hour)
	assert.NoError(t, err)
	capsules, err := paycapsule.NewService(bytes.Repeat([]byte{0x42}, 32))
	assert.NoError(t, err)

	ts := &testServer{
		bookings:       new(mockBookings),
		changeRequests: new(mockChangeRequests),
		exporter:       new(mockExporter),
		rules:          new(mockRules),
		tokens:         tokens,
		sessions:       sessions,
		capsules:       capsules,
		registry:       fanout.New(logger),
	}
	ts.server = NewHTTPServer(ts.bookings, ts.changeRequests, tokens, capsules, sessions, ts.registry, ts.exporter, ts.rules, logger)
	ts.handler = ts.server.Router()
	return ts
}

func (ts *testServer) staffToken(t *testing.T) string {
	t.Helper()
	tok, err := ts.sessions.Issue(9, 7, 3, auth.RoleManager)
	assert.NoError(t, err)
	return tok
}

func storedBooking() *models.Booking {
	tableID := int64(5)
	return &models.Booking{
		ID:           42,
		TenantID:     7,
		RestaurantID: 3,
		TableID:      &tableID,
		CustomerID:   100,
		Date:         time.Date(2026, 9, 10, 0, 0, 0, 0, time.UTC),
		StartTime:    "19:00",
		EndTime:      "21:00",
		Guests:       2,
		Status:       models.StatusConfirmed,
		Version:      1,
	}
}

func TestCreateBookingEndpoint(t *testing.T) {
	t.Run("staff creates booking and receives capability links", func(t *testing.T) {
		ts := newTestServer(t)
		ts.bookings.On("Create", mock.Anything, mock.MatchedBy(func(b *models.Booking) bool {
			return b.TenantID == 7 && b.RestaurantID == 3 && b.Guests == 2
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*models.Booking).ID = 42
		}).Return(nil).Once()

		body, _ := json.Marshal(CreateBookingRequest{
			CustomerID: 100, Date: "2026-09-10", StartTime: "19:00", EndTime: "21:00", Guests: 2,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		var resp BookingResponse
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, int64(42), resp.Booking.ID)
		assert.Len(t, resp.Links, 4)
		assert.True(t, ts.tokens.Verify(resp.Links[models.ActionCancel], 42, 7, 3, models.ActionCancel))
	})

	t.Run("no session is unauthorized", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader([]byte(`{}`)))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		ts.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("availability rejection maps to conflict", func(t *testing.T) {
		ts := newTestServer(t)
		ts.bookings.On("Create", mock.Anything, mock.Anything).
			Return(&domain.AvailabilityError{Reason: domain.ReasonTableConflict}).Once()

		body, _ := json.Marshal(CreateBookingRequest{
			CustomerID: 100, Date: "2026-09-10", StartTime: "19:00", EndTime: "21:00", Guests: 2,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/bookings", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
		var resp map[string]string
		assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, domain.ReasonTableConflict, resp["reason"])
	})

	t.Run("unknown json fields rejected", func(t *testing.T) {
		ts := newTestServer(t)
		req := httptest.NewRequest(http.MethodPost, "/api/bookings",
			bytes.NewReader([]byte(`{"surprise": true}`)))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetBookingEndpoint(t *testing.T) {
	t.Run("manage link grants read access", func(t *testing.T) {
		ts := newTestServer(t)
		ts.bookings.On("Get", mock.Anything, int64(7), int64(42)).Return(storedBooking(), nil).Once()

		link := ts.tokens.Generate(42, 7, 3, models.ActionManage)
		req := httptest.NewRequest(http.MethodGet,
			"/api/bookings/42?token="+link+"&tenant=7&restaurant=3", http.NoBody)
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("cancel token does not grant manage access", func(t *testing.T) {
		ts := newTestServer(t)
		link := ts.tokens.Generate(42, 7, 3, models.ActionCancel)
		req := httptest.NewRequest(http.MethodGet,
			"/api/bookings/42?token="+link+"&tenant=7&restaurant=3", http.NoBody)
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		ts.bookings.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("token for another booking rejected", func(t *testing.T) {
		ts := newTestServer(t)
		link := ts.tokens.Generate(41, 7, 3, models.ActionManage)
		req := httptest.NewRequest(http.MethodGet,
			"/api/bookings/42?token="+link+"&tenant=7&restaurant=3", http.NoBody)
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestUpdateBookingEndpoint(t *testing.T) {
	t.Run("anonymous lifecycle refusal maps to forbidden", func(t *testing.T) {
		ts := newTestServer(t)
		ts.bookings.On("Update", mock.Anything, service.Actor{Staff: false}, int64(7), int64(42), mock.Anything).
			Return(nil, &domain.LifecycleError{Reason: "booking has already started"}).Once()

		link := ts.tokens.Generate(42, 7, 3, models.ActionManage)
		body, _ := json.Marshal(UpdateBookingRequest{Guests: intPtr(4)})
		req := httptest.NewRequest(http.MethodPatch,
			"/api/bookings/42?token="+link+"&tenant=7&restaurant=3", bytes.NewReader(body))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("staff update passes staff actor", func(t *testing.T) {
		ts := newTestServer(t)
		updated := storedBooking()
		updated.Guests = 4
		ts.bookings.On("Update", mock.Anything, service.Actor{Staff: true}, int64(7), int64(42),
			mock.MatchedBy(func(p service.UpdateParams) bool {
				return p.Guests != nil && *p.Guests == 4
			})).Return(updated, nil).Once()

		body, _ := json.Marshal(UpdateBookingRequest{Guests: intPtr(4)})
		req := httptest.NewRequest(http.MethodPatch, "/api/bookings/42", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		ts.bookings.AssertExpectations(t)
	})
}

func TestCancelBookingEndpoint(t *testing.T) {
	ts := newTestServer(t)
	cancelled := storedBooking()
	cancelled.Status = models.StatusCancelled
	ts.bookings.On("Cancel", mock.Anything, service.Actor{Staff: false}, int64(7), int64(42)).
		Return(cancelled, nil).Once()

	link := ts.tokens.Generate(42, 7, 3, models.ActionCancel)
	req := httptest.NewRequest(http.MethodPost,
		"/api/bookings/42/cancel?token="+link+"&tenant=7&restaurant=3", http.NoBody)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp BookingResponse
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, models.StatusCancelled, resp.Booking.Status)
}

func intPtr(v int) *int { return &v }
