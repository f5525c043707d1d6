package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/daybook/internal/calendar"
	"github.com/dukerupert/daybook/internal/model"
)

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps calendar errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *calendar.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request", "fields": verr.Fields})
	case errors.Is(err, calendar.ErrInvalidRequest), errors.Is(err, calendar.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, calendar.ErrNotBookable),
		errors.Is(err, calendar.ErrOrphanPolicyRequired),
		errors.Is(err, calendar.ErrPendingActivities):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, calendar.ErrStoreUnavailable):
		logger.Error("calendar store", "error", err)
		writeError(w, http.StatusServiceUnavailable, "calendar temporarily unavailable")
	default:
		logger.Error("calendar", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func parseMonthKey(r *http.Request) (model.MonthKey, error) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("invalid year")
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		return model.MonthKey{}, fmt.Errorf("invalid month")
	}
	return model.NewMonthKey(year, time.Month(month))
}

func parseDayKey(r *http.Request) (model.DayKey, error) {
	mk, err := parseMonthKey(r)
	if err != nil {
		return model.DayKey{}, err
	}
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil {
		return model.DayKey{}, fmt.Errorf("invalid day")
	}
	return model.NewDayKey(mk.Year, mk.Month, day)
}

func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}
