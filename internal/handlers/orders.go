package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"chaseinvest/internal/chase"
	apperrors "chaseinvest/internal/errors"
	"chaseinvest/internal/middleware"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
)

// orderRequest is the body of POST /accounts/{id}/orders. Enum fields are
// parsed case-insensitively and accept the short forms GTC and IOC.
type orderRequest struct {
	Symbol     string  `json:"symbol"`
	Quantity   int     `json:"quantity"`
	Side       string  `json:"side"`
	PriceType  string  `json:"price_type"`
	Duration   string  `json:"duration"`
	LimitPrice float64 `json:"limit_price"`
	StopPrice  float64 `json:"stop_price"`
	AfterHours *bool   `json:"after_hours"`
	DryRun     *bool   `json:"dry_run"`
}

type orderResponse struct {
	ID       string               `json:"id,omitempty"`
	DryRun   bool                 `json:"dry_run"`
	Summary  string               `json:"summary"`
	Messages *chase.OrderMessages `json:"messages"`
	Error    string               `json:"error,omitempty"`
}

// toChase parses o into an order for accountID. Orders default to a dry run.
func (o *orderRequest) toChase(accountID string, afterHours bool) (chase.OrderRequest, error) {
	var errs middleware.ValidationErrors

	side, err := chase.ParseOrderSide(o.Side)
	if err != nil {
		errs.Add("side", err.Error())
	}
	price, err := chase.ParsePriceType(o.PriceType)
	if err != nil {
		errs.Add("price_type", err.Error())
	}
	dur := chase.DurationDay
	if o.Duration != "" {
		if dur, err = chase.ParseDuration(o.Duration); err != nil {
			errs.Add("duration", err.Error())
		}
	}
	sym := strings.ToUpper(strings.TrimSpace(o.Symbol))
	if !middleware.ValidateSymbol(sym) {
		errs.Add("symbol", "invalid symbol")
	}
	if errs.HasErrors() {
		return chase.OrderRequest{}, errs
	}

	req := chase.OrderRequest{
		AccountID:  accountID,
		Symbol:     sym,
		Quantity:   o.Quantity,
		Side:       side,
		PriceType:  price,
		Duration:   dur,
		LimitPrice: o.LimitPrice,
		StopPrice:  o.StopPrice,
		AfterHours: afterHours,
		DryRun:     true,
	}
	if o.AfterHours != nil {
		req.AfterHours = *o.AfterHours
	}
	if o.DryRun != nil {
		req.DryRun = *o.DryRun
	}
	return req, nil
}

// PlaceOrder places or previews an order and journals the attempt. The
// response always carries the per-screen messages; it is an error status
// only when the flow could not run to an outcome.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	var body orderRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	req, err := body.toChase(id, h.afterHours)
	if err != nil {
		var verrs middleware.ValidationErrors
		if errors.As(err, &verrs) {
			verrs.WriteJSON(w)
			return
		}
		writeError(w, h.log, err)
		return
	}

	msgs, flowErr := h.broker.PlaceOrder(r.Context(), req)
	if msgs == nil {
		msgs = &chase.OrderMessages{}
	}

	rec := sync.OrderRecord(req, msgs, flowErr)
	if _, err := h.orderRepo.Create(rec); err != nil {
		h.log.Error("journaling order", "account", id, "symbol", req.Symbol, "error", err)
	}

	h.record(r, services.OrderAction(req.DryRun, flowErr), "order", rec.ID, map[string]any{
		"account":  id,
		"symbol":   rec.Symbol,
		"side":     rec.Side,
		"quantity": rec.Quantity,
	})

	resp := orderResponse{
		ID:       rec.ID,
		DryRun:   req.DryRun,
		Summary:  msgs.Summary(),
		Messages: msgs,
	}
	status := http.StatusOK
	if flowErr != nil {
		appErr := toAppError(flowErr)
		status = apperrors.HTTPStatus(appErr)
		resp.Error = apperrors.Message(appErr)
		if status >= http.StatusInternalServerError {
			h.log.Error("order flow failed", "account", id, "error", flowErr)
		}
	} else if !req.DryRun {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

// OrderStatuses returns the live order summaries of an account.
func (h *Handler) OrderStatuses(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	list, err := h.broker.OrderStatuses(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// OrderJournal returns the journaled order attempts of an account.
func (h *Handler) OrderJournal(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.orderRepo.ListByAccount(id, pagination(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// JournalEntry returns one journaled order attempt.
func (h *Handler) JournalEntry(w http.ResponseWriter, r *http.Request) {
	rec, err := h.orderRepo.GetByID(chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if rec == nil {
		writeError(w, h.log, apperrors.NotFound("order"))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
