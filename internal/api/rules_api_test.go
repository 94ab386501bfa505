package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"tablio/internal/models"
)

func TestSetOpeningHoursEndpoint(t *testing.T) {
	t.Run("staff replaces the weekly rule", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rules.On("SetOpeningHours", mock.Anything, &models.OpeningHoursRule{
			RestaurantID: 3, DayOfWeek: 5, Open: true, OpensAt: "18:00", ClosesAt: "23:00",
		}).Return(nil).Once()

		body, _ := json.Marshal(OpeningHoursBody{DayOfWeek: 5, Open: true, OpensAt: "18:00", ClosesAt: "23:00"})
		req := httptest.NewRequest(http.MethodPut, "/api/restaurants/3/rules/opening-hours", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		ts.rules.AssertExpectations(t)
	})

	t.Run("foreign restaurant refused", func(t *testing.T) {
		ts := newTestServer(t)
		body, _ := json.Marshal(OpeningHoursBody{DayOfWeek: 5, Open: true, OpensAt: "18:00", ClosesAt: "23:00"})
		req := httptest.NewRequest(http.MethodPut, "/api/restaurants/4/rules/opening-hours", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		ts.rules.AssertNotCalled(t, "SetOpeningHours", mock.Anything, mock.Anything)
	})

	t.Run("bad hours refused", func(t *testing.T) {
		ts := newTestServer(t)
		body, _ := json.Marshal(OpeningHoursBody{DayOfWeek: 5, Open: true, OpensAt: "6pm", ClosesAt: "23:00"})
		req := httptest.NewRequest(http.MethodPut, "/api/restaurants/3/rules/opening-hours", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("anonymous cannot write rules", func(t *testing.T) {
		ts := newTestServer(t)
		body, _ := json.Marshal(OpeningHoursBody{DayOfWeek: 5, Open: false})
		req := httptest.NewRequest(http.MethodPut, "/api/restaurants/3/rules/opening-hours", bytes.NewReader(body))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSetCutOffRuleEndpoint(t *testing.T) {
	t.Run("staff sets the lead time", func(t *testing.T) {
		ts := newTestServer(t)
		ts.rules.On("SetCutOffRule", mock.Anything, &models.CutOffRule{
			RestaurantID: 3, DayOfWeek: 6, Enabled: true, HoursBeforeBooking: 3,
		}).Return(nil).Once()

		body, _ := json.Marshal(CutOffRuleBody{DayOfWeek: 6, Enabled: true, HoursBeforeBooking: 3})
		req := httptest.NewRequest(http.MethodPut, "/api/restaurants/3/rules/cutoff", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		ts.rules.AssertExpectations(t)
	})

	t.Run("negative lead refused", func(t *testing.T) {
		ts := newTestServer(t)
		body, _ := json.Marshal(CutOffRuleBody{DayOfWeek: 6, Enabled: true, HoursBeforeBooking: -1})
		req := httptest.NewRequest(http.MethodPut, "/api/restaurants/3/rules/cutoff", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCreateSpecialPeriodEndpoint(t *testing.T) {
	t.Run("closed holiday period recorded", func(t *testing.T) {
		ts := newTestServer(t)
		start := time.Date(2026, 12, 24, 0, 0, 0, 0, time.UTC)
		end := time.Date(2026, 12, 26, 0, 0, 0, 0, time.UTC)
		ts.rules.On("CreateSpecialPeriod", mock.Anything, mock.MatchedBy(func(p *models.SpecialPeriod) bool {
			return p.RestaurantID == 3 && p.Closed && p.StartDate.Equal(start) && p.EndDate.Equal(end)
		})).Return(nil).Once()

		body, _ := json.Marshal(SpecialPeriodBody{
			StartDate: "2026-12-24", EndDate: "2026-12-26", Closed: true, Reason: "holidays",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/restaurants/3/special-periods", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		ts.rules.AssertExpectations(t)
	})

	t.Run("inverted range refused", func(t *testing.T) {
		ts := newTestServer(t)
		body, _ := json.Marshal(SpecialPeriodBody{
			StartDate: "2026-12-26", EndDate: "2026-12-24", Closed: true,
		})
		req := httptest.NewRequest(http.MethodPost, "/api/restaurants/3/special-periods", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("open period needs valid hours", func(t *testing.T) {
		ts := newTestServer(t)
		body, _ := json.Marshal(SpecialPeriodBody{
			StartDate: "2026-12-24", EndDate: "2026-12-26", OpensAt: "noon", ClosesAt: "22:00",
		})
		req := httptest.NewRequest(http.MethodPost, "/api/restaurants/3/special-periods", bytes.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+ts.staffToken(t))
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
