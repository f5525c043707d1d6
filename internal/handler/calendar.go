package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/daybook/internal/calendar"
)

// CalendarHandler serves the public calendar API.
type CalendarHandler struct {
	svc    *calendar.Service
	logger *slog.Logger
}

func NewCalendarHandler(svc *calendar.Service, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{svc: svc, logger: logger}
}

// GetMonth handles GET /api/calendar/{year}/{month}
func (h *CalendarHandler) GetMonth(w http.ResponseWriter, r *http.Request) {
	mk, err := parseMonthKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	month, err := h.svc.GetMonth(r.Context(), mk)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, month.Redacted())
}

// GetDay handles GET /api/calendar/{year}/{month}/{day}
func (h *CalendarHandler) GetDay(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.svc.GetDay(r.Context(), key)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, rec.Redacted())
}

// SubmitBooking handles POST /api/calendar/{year}/{month}/{day}/bookings
func (h *CalendarHandler) SubmitBooking(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req calendar.BookingRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	act, err := h.svc.SubmitBookingRequest(r.Context(), key, req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, act)
}
