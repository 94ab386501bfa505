package api

import (
	"net/http"
	"time"

	"tablio/internal/changerequest"
	"tablio/internal/metrics"
	"tablio/internal/models"
)

// CreateChangeRequestBody is the request body for proposing a change.
type CreateChangeRequestBody struct {
	Date      *string `json:"date,omitempty"` // Format: YYYY-MM-DD
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Guests    *int    `json:"guests,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// RespondChangeRequestBody carries the restaurant's decision.
type RespondChangeRequestBody struct {
	Decision string `json:"decision"` // "approve" or "reject"
	Note     string `json:"note,omitempty"`
}

// handleCreateChangeRequest records a customer proposal against a booking.
// Reached through the change capability link.
// POST /api/bookings/{id}/change-requests
func (s *HTTPServer) handleCreateChangeRequest(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_change_request")

	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	c, err := s.resolveCaller(r, id, models.ActionChange)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	var body CreateChangeRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	proposal := changerequest.Proposal{
		StartTime: body.StartTime,
		EndTime:   body.EndTime,
		Guests:    body.Guests,
		Note:      body.Note,
	}
	if body.Date != nil {
		date, err := time.Parse("2006-01-02", *body.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
		proposal.Date = &date
	}

	cr, err := s.changeRequests.Create(r.Context(), c.tenantID, id, proposal)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

// handleListChangeRequests lists the pending proposals against a booking so
// staff can act on them from the booking view.
// GET /api/bookings/{id}/change-requests
func (s *HTTPServer) handleListChangeRequests(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("list_change_requests")

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

	pending, err := s.changeRequests.Pending(r.Context(), c.tenantID, id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if pending == nil {
		pending = []models.ChangeRequest{}
	}
	writeJSON(w, http.StatusOK, pending)
}

// handleRespondChangeRequest resolves a pending request. Staff respond
// through their session; the emailed decision link carries a
// change-response token bound to the underlying booking.
// POST /api/change-requests/{id}/respond
func (s *HTTPServer) handleRespondChangeRequest(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("respond_change_request")

	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid change request id")
		return
	}

	cr, err := s.changeRequests.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	c, err := s.resolveCaller(r, cr.BookingID, models.ActionChangeResponse)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "not authorized")
		return
	}

	var body RespondChangeRequestBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var resolved *models.ChangeRequest
	switch body.Decision {
	case "approve":
		resolved, err = s.changeRequests.Approve(r.Context(), c.tenantID, id, body.Note)
	case "reject":
		resolved, err = s.changeRequests.Reject(r.Context(), c.tenantID, id, body.Note)
	default:
		writeError(w, http.StatusBadRequest, "decision must be approve or reject")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}
