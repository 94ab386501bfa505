// Package api exposes the booking mutation surface over HTTP. Staff act
// through bearer session tokens; customers act through per-action
// capability links carried in query parameters.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tablio/internal/auth"
	"tablio/internal/changerequest"
	"tablio/internal/database"
	"tablio/internal/domain"
	"tablio/internal/fanout"
	"tablio/internal/metrics"
	"tablio/internal/models"
	"tablio/internal/paycapsule"
	"tablio/internal/service"
	"tablio/internal/token"
)

// Bookings is the booking mutation surface the handlers call.
type Bookings interface {
	Create(ctx context.Context, b *models.Booking) error
	Get(ctx context.Context, tenantID, id int64) (*models.Booking, error)
	Update(ctx context.Context, actor service.Actor, tenantID, id int64, p service.UpdateParams) (*models.Booking, error)
	Cancel(ctx context.Context, actor service.Actor, tenantID, id int64) (*models.Booking, error)
}

// ChangeRequests is the change request workflow surface.
type ChangeRequests interface {
	Create(ctx context.Context, tenantID, bookingID int64, p changerequest.Proposal) (*models.ChangeRequest, error)
	Get(ctx context.Context, id string) (*models.ChangeRequest, error)
	Pending(ctx context.Context, tenantID, bookingID int64) ([]models.ChangeRequest, error)
	Approve(ctx context.Context, tenantID int64, id, responderNote string) (*models.ChangeRequest, error)
	Reject(ctx context.Context, tenantID int64, id, responderNote string) (*models.ChangeRequest, error)
}

// Exporter renders day sheets.
type Exporter interface {
	Write(ctx context.Context, w io.Writer, restaurantID int64, date time.Time) error
}

// Rules is the scheduling rule write surface. Implementations invalidate
// any cached rules on write.
type Rules interface {
	SetOpeningHours(ctx context.Context, r *models.OpeningHoursRule) error
	SetCutOffRule(ctx context.Context, r *models.CutOffRule) error
	CreateSpecialPeriod(ctx context.Context, p *models.SpecialPeriod) error
}

// Registry tracks live event subscribers per restaurant.
type Registry interface {
	Subscribe(restaurantID int64, conn fanout.Conn)
	Unsubscribe(conn fanout.Conn)
}

// HTTPServer wires the handlers to the domain services.
type HTTPServer struct {
	bookings       Bookings
	changeRequests ChangeRequests
	tokens         *token.Service
	capsules       *paycapsule.Service
	sessions       *auth.Sessions
	registry       Registry
	exporter       Exporter
	rules          Rules
	logger         zerolog.Logger
}

// NewHTTPServer creates the API server.
func NewHTTPServer(
	bookings Bookings,
	changeRequests ChangeRequests,
	tokens *token.Service,
	capsules *paycapsule.Service,
	sessions *auth.Sessions,
	registry Registry,
	exporter Exporter,
	rules Rules,
	logger zerolog.Logger,
) *HTTPServer {
	return &HTTPServer{
		bookings:       bookings,
		changeRequests: changeRequests,
		tokens:         tokens,
		capsules:       capsules,
		sessions:       sessions,
		registry:       registry,
		exporter:       exporter,
		rules:          rules,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// Router builds the request mux.
func (s *HTTPServer) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/bookings", s.handleCreateBooking)
	mux.HandleFunc("GET /api/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("PATCH /api/bookings/{id}", s.handleUpdateBooking)
	mux.HandleFunc("POST /api/bookings/{id}/cancel", s.handleCancelBooking)
	mux.HandleFunc("POST /api/bookings/{id}/change-requests", s.handleCreateChangeRequest)
	mux.HandleFunc("GET /api/bookings/{id}/change-requests", s.handleListChangeRequests)
	mux.HandleFunc("POST /api/change-requests/{id}/respond", s.handleRespondChangeRequest)
	mux.HandleFunc("GET /api/bookings/{id}/payment-link", s.handlePaymentLink)
	mux.HandleFunc("POST /api/payment/verify", s.handlePaymentVerify)
	mux.HandleFunc("GET /api/restaurants/{id}/export", s.handleExport)
	mux.HandleFunc("PUT /api/restaurants/{id}/rules/opening-hours", s.handleSetOpeningHours)
	mux.HandleFunc("PUT /api/restaurants/{id}/rules/cutoff", s.handleSetCutOffRule)
	mux.HandleFunc("POST /api/restaurants/{id}/special-periods", s.handleCreateSpecialPeriod)
	mux.HandleFunc("GET /ws/restaurants/{id}", s.handleWebSocket)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps domain failures to HTTP statuses. Availability
// rejections are 409 with a machine-readable reason; lifecycle refusals
// and authorization failures are 403.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	if avErr, ok := domain.IsAvailability(err); ok {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":  avErr.Error(),
			"reason": avErr.Reason,
		})
		return
	}
	if domain.IsLifecycle(err) || domain.IsAuthorization(err) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, database.ErrConcurrentModification) {
		writeError(w, http.StatusConflict, "booking was modified concurrently; retry")
		return
	}
	s.logger.Error().Err(err).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

// caller is the resolved identity of a request.
type caller struct {
	actor        service.Actor
	tenantID     int64
	restaurantID int64
}

// staffCaller resolves a bearer session token. Used on staff-only routes.
func (s *HTTPServer) staffCaller(r *http.Request) (caller, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return caller{}, auth.ErrInvalidSession
	}
	claims, err := s.sessions.Validate(strings.TrimPrefix(header, prefix))
	if err != nil {
		return caller{}, err
	}
	return caller{
		actor:        service.Actor{Staff: true},
		tenantID:     claims.TenantID,
		restaurantID: claims.RestaurantID,
	}, nil
}

// resolveCaller accepts either a staff session or a capability token bound
// to the booking and action. Anonymous links carry token, tenant and
// restaurant in query parameters.
func (s *HTTPServer) resolveCaller(r *http.Request, bookingID int64, action string) (caller, error) {
	if r.Header.Get("Authorization") != "" {
		return s.staffCaller(r)
	}

	q := r.URL.Query()
	presented := q.Get("token")
	tenantID, err1 := strconv.ParseInt(q.Get("tenant"), 10, 64)
	restaurantID, err2 := strconv.ParseInt(q.Get("restaurant"), 10, 64)
	if presented == "" || err1 != nil || err2 != nil {
		return caller{}, &domain.AuthorizationError{Reason: "missing credentials"}
	}
	if !s.tokens.Verify(presented, bookingID, tenantID, restaurantID, action) {
		metrics.IncTokenFailure()
		return caller{}, &domain.AuthorizationError{Reason: "invalid link token"}
	}
	return caller{
		actor:        service.Actor{Staff: false},
		tenantID:     tenantID,
		restaurantID: restaurantID,
	}, nil
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func decodeBody(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
