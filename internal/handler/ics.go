package handler

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukerupert/daybook/internal/calendar"
	"github.com/dukerupert/daybook/internal/export"
	"github.com/dukerupert/daybook/internal/model"
)

const (
	defaultFeedMonths = 3
	maxFeedMonths     = 12
)

// ICSHandler serves approved activities as an iCalendar feed.
type ICSHandler struct {
	svc    *calendar.Service
	opts   export.ICSOptions
	now    func() time.Time
	logger *slog.Logger
}

func NewICSHandler(svc *calendar.Service, opts export.ICSOptions, logger *slog.Logger) *ICSHandler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &ICSHandler{svc: svc, opts: opts, now: time.Now, logger: logger}
}

// Feed handles GET /calendar.ics?months=N, covering the current month and
// the N-1 that follow.
func (h *ICSHandler) Feed(w http.ResponseWriter, r *http.Request) {
	n := defaultFeedMonths
	if s := r.URL.Query().Get("months"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > maxFeedMonths {
			writeError(w, http.StatusBadRequest, "months must be between 1 and 12")
			return
		}
		n = v
	}

	now := h.now().In(h.opts.Location)
	mk := model.MonthKey{Year: now.Year(), Month: now.Month()}

	months := make([]export.MonthData, 0, n)
	for i := 0; i < n; i++ {
		days, err := h.svc.GetMonth(r.Context(), mk)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		months = append(months, export.MonthData{Key: mk, Days: days})
		mk = mk.Next()
	}

	opts := h.opts
	opts.Now = now
	var buf bytes.Buffer
	if err := export.ICS(&buf, months, opts); err != nil {
		h.logger.Error("render calendar", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to render calendar")
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="daybook.ics"`)
	w.Write(buf.Bytes())
}
