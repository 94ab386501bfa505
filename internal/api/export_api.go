package api

import (
	"fmt"
	"net/http"
	"time"

	"tablio/internal/export"
	"tablio/internal/metrics"
)

// handleExport streams the xlsx day sheet for a restaurant. Staff only,
// and only for the restaurant their session is scoped to.
// GET /api/restaurants/{id}/export?date=YYYY-MM-DD
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")

	c, err := s.staffCaller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	restaurantID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid restaurant id")
		return
	}
	if restaurantID != c.restaurantID {
		writeError(w, http.StatusForbidden, "session is scoped to a different restaurant")
		return
	}

	dateStr := r.URL.Query().Get("date")
	date := time.Now()
	if dateStr != "" {
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", export.Filename(restaurantID, date)))

	if err := s.exporter.Write(r.Context(), w, restaurantID, date); err != nil {
		// Headers are already gone; all we can do is log.
		s.logger.Error().Err(err).Int64("restaurant_id", restaurantID).Msg("export failed")
	}
}
