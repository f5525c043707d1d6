package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dukerupert/daybook/internal/auth"
	"github.com/dukerupert/daybook/internal/calendar"
	"github.com/dukerupert/daybook/internal/export"
	"github.com/dukerupert/daybook/internal/ledger"
	"github.com/dukerupert/daybook/internal/model"
)

// AdminHandler serves calendar administration. Routes are expected behind
// RequireAuth and RequireAdmin.
type AdminHandler struct {
	svc    *calendar.Service
	logger *slog.Logger
}

func NewAdminHandler(svc *calendar.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

type addActivityResponse struct {
	Activity model.Activity  `json:"activity"`
	Day      model.DayRecord `json:"day"`
}

type approvalRequest struct {
	Approved       bool `json:"approved"`
	ForceAvailable bool `json:"forceAvailable"`
}

type statusRequest struct {
	Status  model.Status        `json:"status"`
	Reason  string              `json:"reason"`
	Orphans ledger.OrphanPolicy `json:"orphans"`
}

// GetMonth handles GET /api/admin/calendar/{year}/{month}
func (h *AdminHandler) GetMonth(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, month)
}

// AddActivity handles POST /api/admin/calendar/{year}/{month}/{day}/activities
func (h *AdminHandler) AddActivity(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var in calendar.ActivityInput
	if !decodeJSON(w, r, &in) {
		return
	}

	act, day, err := h.svc.AdminAddActivity(r.Context(), key, in)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "add_activity", key.String(), "activity_id", act.ID, "approved", act.Approved)
	writeJSON(w, http.StatusCreated, addActivityResponse{Activity: act, Day: day})
}

// SetApproval handles PUT /api/admin/calendar/{year}/{month}/{day}/activities/{id}/approval
func (h *AdminHandler) SetApproval(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req approvalRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id := r.PathValue("id")
	day, err := h.svc.AdminSetApproval(r.Context(), key, id, req.Approved, req.ForceAvailable)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "set_approval", key.String(), "activity_id", id, "approved", req.Approved)
	writeJSON(w, http.StatusOK, day)
}

// Deny handles POST /api/admin/calendar/{year}/{month}/{day}/activities/{id}/deny
func (h *AdminHandler) Deny(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	day, err := h.svc.AdminDenyActivity(r.Context(), key, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "deny", key.String(), "activity_id", id)
	writeJSON(w, http.StatusOK, day)
}

// DeleteActivity handles DELETE /api/admin/calendar/{year}/{month}/{day}/activities/{id}
func (h *AdminHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	day, err := h.svc.AdminDeleteActivity(r.Context(), key, id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "delete_activity", key.String(), "activity_id", id)
	writeJSON(w, http.StatusOK, day)
}

// SetStatus handles PUT /api/admin/calendar/{year}/{month}/{day}/status
func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	key, err := parseDayKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	day, err := h.svc.AdminSetDayStatus(r.Context(), key, req.Status, req.Reason, req.Orphans)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "set_status", key.String(), "status", req.Status)
	writeJSON(w, http.StatusOK, day)
}

// InitializeMonth handles POST /api/admin/calendar/{year}/{month}/initialize
func (h *AdminHandler) InitializeMonth(w http.ResponseWriter, r *http.Request) {
	mk, err := parseMonthKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	month, err := h.svc.AdminInitializeMonth(r.Context(), mk)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "initialize_month", mk.String())
	writeJSON(w, http.StatusOK, month)
}

// Seed handles POST /api/admin/calendar/{year}/{month}/seed
func (h *AdminHandler) Seed(w http.ResponseWriter, r *http.Request) {
	mk, err := parseMonthKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	month, err := h.svc.SeedDemoMonth(r.Context(), mk)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	h.audit(r, "seed_month", mk.String())
	writeJSON(w, http.StatusOK, month)
}

// ExportWorkbook handles GET /api/admin/calendar/{year}/{month}/export.xlsx
func (h *AdminHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
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

	f, err := export.MonthWorkbook(mk, month)
	if err != nil {
		h.logger.Error("build workbook", "month", mk.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build workbook")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="daybook-%s.xlsx"`, mk))
	if err := f.Write(w); err != nil {
		h.logger.Error("write workbook", "month", mk.String(), "error", err)
	}
}

// audit records which admin performed an action.
func (h *AdminHandler) audit(r *http.Request, action, target string, args ...any) {
	args = append([]any{"action", action, "target", target, "by", auth.Subject(r.Context())}, args...)
	h.logger.Info("admin action", args...)
}
