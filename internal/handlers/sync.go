package handlers

import (
	"net/http"
	"strconv"

	apperrors "chaseinvest/internal/errors"
	"chaseinvest/internal/models"
	"chaseinvest/internal/services"
)

// Sync pulls every account's holdings into the journal. A run where some
// accounts failed still answers 200 with the errors listed.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	if h.syncService == nil {
		writeError(w, h.log, apperrors.Internal("sync is not configured", nil))
		return
	}

	result, err := h.syncService.Run(r.Context())
	if result != nil {
		h.record(r, services.AuditSyncRun, "sync", strconv.FormatInt(result.HistoryID, 10), result)
	}
	if err != nil {
		if result == nil {
			writeError(w, h.log, err)
			return
		}
		appErr := apperrors.Wrap(apperrors.ErrUpstream, "no account synced", err)
		writeJSON(w, apperrors.HTTPStatus(appErr), map[string]any{
			"error":  appErr.Message,
			"result": result,
		})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// limitParam reads the limit query parameter: 10 when absent, at most 100.
func limitParam(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 10, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, apperrors.ValidationField("limit", "limit must be a positive integer")
	}
	return min(n, 100), nil
}

// SyncHistory returns the most recent sync runs.
func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	runs, err := h.syncHistoryRepo.GetRecent(limit)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if runs == nil {
		runs = []*models.SyncHistory{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// AuditLog returns recent audit entries, optionally filtered by the action
// query parameter.
func (h *Handler) AuditLog(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []*services.AuditEntry{})
		return
	}
	limit, err := limitParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var entries []*services.AuditEntry
	if action := r.URL.Query().Get("action"); action != "" {
		entries, err = h.audit.GetByAction(services.AuditAction(action), limit, 0)
	} else {
		entries, err = h.audit.GetRecent(limit)
	}
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
