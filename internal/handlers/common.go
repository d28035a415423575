package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"chaseinvest/internal/chase"
	apperrors "chaseinvest/internal/errors"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
	"chaseinvest/internal/vault"
)

const maxBodyBytes = 1 << 16

// upstreamErrors are brokerage failures whose text is safe to return.
var upstreamErrors = []error{
	chase.ErrLoginFieldsMissing,
	chase.ErrUnknownPageState,
	chase.ErrAccountsUnavailable,
	chase.ErrHoldingsUnavailable,
	chase.ErrQuoteUnavailable,
	chase.ErrOrderStatusUnavailable,
	chase.ErrOrderPageUnavailable,
	chase.ErrPreviewUnavailable,
	chase.ErrSubmitUnavailable,
	chase.ErrPromptNotDismissed,
}

// toAppError maps domain errors to API errors.
func toAppError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, chase.ErrNotAuthenticated):
		return apperrors.Unauthorized("")
	case errors.Is(err, chase.ErrNoMFAPending):
		return apperrors.Wrap(apperrors.ErrConflict, "no one-time code was requested", err)
	case errors.Is(err, sync.ErrRunning):
		return apperrors.Wrap(apperrors.ErrConflict, "sync already running", err)
	case errors.Is(err, chase.ErrInvalidOrder):
		return apperrors.Validation(err.Error())
	case errors.Is(err, vault.ErrNoCredentials):
		return apperrors.Validation("no credentials given or stored")
	case errors.Is(err, chase.ErrAccountNotFound):
		return apperrors.NotFound("account")
	case errors.Is(err, chase.ErrLandingTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(apperrors.ErrTimeout, "brokerage did not respond in time", err)
	}

	for _, target := range upstreamErrors {
		if errors.Is(err, target) {
			return apperrors.Wrap(apperrors.ErrUpstream, target.Error(), err)
		}
	}
	return apperrors.Internal("internal server error", err)
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err and writes it as a JSON error body.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	appErr := toAppError(err)
	status := apperrors.HTTPStatus(appErr)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "error", err)
	}

	body := map[string]any{"error": apperrors.Message(appErr)}
	var ae *apperrors.AppError
	if errors.As(appErr, &ae) && ae.Details != nil {
		body["details"] = ae.Details
	}
	writeJSON(w, status, body)
}

// decodeJSON decodes the request body into v. An empty body leaves v as is.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Validation("invalid JSON body: " + err.Error())
	}
	return nil
}

// pagination reads page and per_page query parameters.
func pagination(r *http.Request) repository.Pagination {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return repository.PageToPagination(page, perPage)
}

// record writes an API audit entry for the request.
func (h *Handler) record(r *http.Request, action services.AuditAction, entityType, entityID string, details any) {
	h.audit.LogAction(action, entityType, entityID, details, services.SourceAPI, r.RemoteAddr, r.UserAgent())
}

// Health reports liveness, whether the brokerage session is logged in and
// the last sync run.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":        "ok",
		"authenticated": h.broker.Authenticated(),
		"mfa_pending":   h.broker.MFAPending(),
	}
	if h.syncHistoryRepo != nil {
		last, err := h.syncHistoryRepo.GetLatest()
		if err != nil {
			h.log.Warn("reading last sync", "error", err)
		} else if last != nil {
			resp["last_sync"] = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
