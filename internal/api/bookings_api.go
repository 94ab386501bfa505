package api

import (
	"net/http"
	"time"

	"tablio/internal/metrics"
	"tablio/internal/models"
	"tablio/internal/service"
)

// CreateBookingRequest is the request body for POST /api/bookings.
type CreateBookingRequest struct {
	CustomerID int64  `json:"customer_id"`
	TableID    *int64 `json:"table_id,omitempty"`
	Date       string `json:"date"`       // Format: YYYY-MM-DD
	StartTime  string `json:"start_time"` // Format: HH:MM
	EndTime    string `json:"end_time"`   // Format: HH:MM
	Guests     int    `json:"guests"`
	Notes      string `json:"notes,omitempty"`
}

// BookingResponse is a booking plus the capability links a customer needs.
type BookingResponse struct {
	Booking *models.Booking   `json:"booking"`
	Links   map[string]string `json:"links,omitempty"`
}

// UpdateBookingRequest is the request body for PATCH /api/bookings/{id}.
// Absent fields keep the booking's current value.
type UpdateBookingRequest struct {
	Date      *string `json:"date,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Guests    *int    `json:"guests,omitempty"`
	TableID   *int64  `json:"table_id,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// handleCreateBooking creates a booking on behalf of staff.
// POST /api/bookings
func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_booking")

	c, err := s.staffCaller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	var req CreateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	if req.Guests <= 0 {
		writeError(w, http.StatusBadRequest, "guests must be positive")
		return
	}

	booking := &models.Booking{
		TenantID:     c.tenantID,
		RestaurantID: c.restaurantID,
		TableID:      req.TableID,
		CustomerID:   req.CustomerID,
		Date:         date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Guests:       req.Guests,
		Notes:        req.Notes,
	}
	if err := s.bookings.Create(r.Context(), booking); err != nil {
		s.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BookingResponse{
		Booking: booking,
		Links:   s.capabilityLinks(booking),
	})
}

// handleGetBooking returns a booking to staff or a manage-link holder.
// GET /api/bookings/{id}
func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("get_booking")

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	c, err := s.resolveCaller(r, id, models.ActionManage)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	booking, err := s.bookings.Get(r.Context(), c.tenantID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: booking})
}

// handleUpdateBooking applies a partial update. Staff may update any
// booking; manage-link holders are bound by the lifecycle boundary.
// PATCH /api/bookings/{id}
func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("update_booking")

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	c, err := s.resolveCaller(r, id, models.ActionManage)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	var req UpdateBookingRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	params := service.UpdateParams{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Guests:    req.Guests,
		TableID:   req.TableID,
		Notes:     req.Notes,
	}
	if req.Date != nil {
		date, err := time.Parse("2006-01-02", *req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		params.Date = &date
	}

	booking, err := s.bookings.Update(r.Context(), c.actor, c.tenantID, id, params)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: booking})
}

// handleCancelBooking cancels a booking for staff or a cancel-link holder.
// POST /api/bookings/{id}/cancel
func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_booking")

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	c, err := s.resolveCaller(r, id, models.ActionCancel)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	booking, err := s.bookings.Cancel(r.Context(), c.actor, c.tenantID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, BookingResponse{Booking: booking})
}

// capabilityLinks mints the per-action tokens embedded in customer emails.
func (s *HTTPServer) capabilityLinks(b *models.Booking) map[string]string {
	links := make(map[string]string, 4)
	for _, action := range []string{
		models.ActionManage,
		models.ActionCancel,
		models.ActionChange,
		models.ActionChangeResponse,
	} {
		links[action] = s.tokens.Generate(b.ID, b.TenantID, b.RestaurantID, action)
	}
	return links
}
