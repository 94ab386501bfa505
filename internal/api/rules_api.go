package api

import (
	"net/http"
	"time"

	"tablio/internal/metrics"
	"tablio/internal/models"
)

// OpeningHoursBody is the request body for setting a weekly rule.
type OpeningHoursBody struct {
	DayOfWeek int    `json:"day_of_week"` // ISO: 1=Monday .. 7=Sunday
	Open      bool   `json:"open"`
	OpensAt   string `json:"opens_at,omitempty"`
	ClosesAt  string `json:"closes_at,omitempty"`
}

// CutOffRuleBody is the request body for setting a cut-off rule.
type CutOffRuleBody struct {
	DayOfWeek          int  `json:"day_of_week"`
	Enabled            bool `json:"enabled"`
	HoursBeforeBooking int  `json:"hours_before_booking"`
}

// SpecialPeriodBody is the request body for creating an override period.
type SpecialPeriodBody struct {
	StartDate string `json:"start_date"` // Format: YYYY-MM-DD
	EndDate   string `json:"end_date"`
	Closed    bool   `json:"closed"`
	OpensAt   string `json:"opens_at,omitempty"`
	ClosesAt  string `json:"closes_at,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// ruleRestaurantID resolves the staff caller and checks the path restaurant
// against the session scope. Shared by the rule-write handlers.
func (s *HTTPServer) ruleRestaurantID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	c, err := s.staffCaller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return 0, false
	}
	restaurantID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid restaurant id")
		return 0, false
	}
	if restaurantID != c.restaurantID {
		writeError(w, http.StatusForbidden, "session is scoped to a different restaurant")
		return 0, false
	}
	return restaurantID, true
}

// handleSetOpeningHours replaces the weekly rule for one day. Cached rules
// for the restaurant are invalidated on write.
// PUT /api/restaurants/{id}/rules/opening-hours
func (s *HTTPServer) handleSetOpeningHours(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_opening_hours")

	restaurantID, ok := s.ruleRestaurantID(w, r)
	if !ok {
		return
	}

	var body OpeningHoursBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DayOfWeek < 1 || body.DayOfWeek > 7 {
		writeError(w, http.StatusBadRequest, "day_of_week must be 1-7")
		return
	}
	if body.Open {
		for _, v := range []string{body.OpensAt, body.ClosesAt} {
			if _, err := models.MinuteOfDay(v); err != nil {
				writeError(w, http.StatusBadRequest, "opens_at and closes_at must be HH:MM")
				return
			}
		}
	}

	rule := &models.OpeningHoursRule{
		RestaurantID: restaurantID,
		DayOfWeek:    body.DayOfWeek,
		Open:         body.Open,
		OpensAt:      body.OpensAt,
		ClosesAt:     body.ClosesAt,
	}
	if err := s.rules.SetOpeningHours(r.Context(), rule); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleSetCutOffRule replaces the cut-off rule for one day.
// PUT /api/restaurants/{id}/rules/cutoff
func (s *HTTPServer) handleSetCutOffRule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("set_cutoff_rule")

	restaurantID, ok := s.ruleRestaurantID(w, r)
	if !ok {
		return
	}

	var body CutOffRuleBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.DayOfWeek < 1 || body.DayOfWeek > 7 {
		writeError(w, http.StatusBadRequest, "day_of_week must be 1-7")
		return
	}
	if body.HoursBeforeBooking < 0 {
		writeError(w, http.StatusBadRequest, "hours_before_booking must not be negative")
		return
	}

	rule := &models.CutOffRule{
		RestaurantID:       restaurantID,
		DayOfWeek:          body.DayOfWeek,
		Enabled:            body.Enabled,
		HoursBeforeBooking: body.HoursBeforeBooking,
	}
	if err := s.rules.SetCutOffRule(r.Context(), rule); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleCreateSpecialPeriod records a date-range override. A closed period
// needs no hours; an open one replaces the base hours for its dates.
// POST /api/restaurants/{id}/special-periods
func (s *HTTPServer) handleCreateSpecialPeriod(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_special_period")

	restaurantID, ok := s.ruleRestaurantID(w, r)
	if !ok {
		return
	}

	var body SpecialPeriodBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	start, err := time.Parse("2006-01-02", body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start_date; expected YYYY-MM-DD")
		return
	}
	end, err := time.Parse("2006-01-02", body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end_date; expected YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end_date before start_date")
		return
	}
	if !body.Closed {
		for _, v := range []string{body.OpensAt, body.ClosesAt} {
			if _, err := models.MinuteOfDay(v); err != nil {
				writeError(w, http.StatusBadRequest, "opens_at and closes_at must be HH:MM")
				return
			}
		}
	}

	period := &models.SpecialPeriod{
		RestaurantID: restaurantID,
		StartDate:    start,
		EndDate:      end,
		Closed:       body.Closed,
		OpensAt:      body.OpensAt,
		ClosesAt:     body.ClosesAt,
		Reason:       body.Reason,
	}
	if err := s.rules.CreateSpecialPeriod(r.Context(), period); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, period)
}
