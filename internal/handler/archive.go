package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/daybook/internal/archive"
	"github.com/dukerupert/daybook/internal/auth"
	"github.com/dukerupert/daybook/internal/model"
)

// Archiver stores and restores month snapshots.
type Archiver interface {
	Enabled() bool
	Archive(ctx context.Context, mk model.MonthKey) (*model.Archive, error)
	Restore(ctx context.Context, id int64) (model.MonthKey, error)
	List(month string, limit int) ([]model.Archive, error)
}

type ArchiveHandler struct {
	archiver Archiver
	logger   *slog.Logger
}

func NewArchiveHandler(a Archiver, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archiver: a, logger: logger}
}

// Create handles POST /api/admin/calendar/{year}/{month}/archive
func (h *ArchiveHandler) Create(w http.ResponseWriter, r *http.Request) {
	mk, err := parseMonthKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.archiver.Archive(r.Context(), mk)
	if err != nil {
		h.writeArchiveError(w, "archive month", err)
		return
	}
	h.logger.Info("archive created", "month", mk.String(), "id", rec.ID, "by", auth.Subject(r.Context()))
	writeJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/admin/archives?month=YYYY-MM&limit=N
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	if month != "" {
		if _, err := model.ParseMonthKey(month); err != nil {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}
	}
	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	archives, err := h.archiver.List(month, limit)
	if err != nil {
		h.logger.Error("list archives", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}
	if archives == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, archives)
}

// Restore handles POST /api/admin/archives/{id}/restore
func (h *ArchiveHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	mk, err := h.archiver.Restore(r.Context(), id)
	if err != nil {
		h.writeArchiveError(w, "restore archive", err)
		return
	}
	h.logger.Info("archive restored", "id", id, "month", mk.String(), "by", auth.Subject(r.Context()))
	writeJSON(w, http.StatusOK, map[string]string{"month": mk.String()})
}

func (h *ArchiveHandler) writeArchiveError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, archive.ErrDisabled):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(op, "error", err)
		writeError(w, http.StatusBadGateway, op+" failed")
	}
}
