package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"chaseinvest/internal/chase"
	apperrors "chaseinvest/internal/errors"
	"chaseinvest/internal/middleware"
	"chaseinvest/internal/models"
	"chaseinvest/internal/sync"
)

// accountID reads and validates the {id} path parameter.
func accountID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if !middleware.ValidateAccountID(id) {
		return "", apperrors.ValidationField("id", "invalid account id")
	}
	return id, nil
}

// symbolParam reads and validates the {symbol} path parameter.
func symbolParam(r *http.Request) (string, error) {
	sym := strings.ToUpper(chi.URLParam(r, "symbol"))
	if !middleware.ValidateSymbol(sym) {
		return "", apperrors.ValidationField("symbol", "invalid symbol")
	}
	return sym, nil
}

// ListAccounts returns the live account list and refreshes the stored
// account rows.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	list, err := h.broker.ListAccounts(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	for i := range list.Accounts {
		h.storeAccount(&list.Accounts[i])
	}
	writeJSON(w, http.StatusOK, list)
}

// GetAccount returns the details of one account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	list, err := h.broker.ListAccounts(r.Context())
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	acct, err := list.Details(id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	h.storeAccount(acct)
	writeJSON(w, http.StatusOK, acct)
}

// StoredAccounts returns the accounts recorded by earlier reads and syncs.
func (h *Handler) StoredAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountRepo.List()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *Handler) storeAccount(a *chase.Account) {
	err := h.accountRepo.Upsert(&models.Account{
		AccountID:    string(a.ID),
		Mask:         a.Mask,
		Nickname:     a.Nickname,
		DetailType:   a.DetailType,
		AccountValue: a.AccountValue.Float64(),
		IsIRA:        a.IRA,
	})
	if err != nil {
		h.log.Warn("storing account", "account", a.ID, "error", err)
	}
}

// ensureAccount stores a placeholder row for an account read before it was
// ever listed, so snapshots can reference it.
func (h *Handler) ensureAccount(id string) {
	existing, err := h.accountRepo.GetByID(id)
	if err != nil || existing != nil {
		return
	}
	if err := h.accountRepo.Upsert(&models.Account{AccountID: id}); err != nil {
		h.log.Warn("storing account", "account", id, "error", err)
	}
}

type holdingsResponse struct {
	AccountID  string                  `json:"account_id"`
	AsOf       chase.Timestamp         `json:"as_of"`
	TotalValue float64                 `json:"total_value"`
	Positions  []chase.PositionSummary `json:"positions"`
	Skipped    string                  `json:"skipped,omitempty"`
}

// Holdings returns the live positions of an account and stores a snapshot.
// Positions that cannot be summarised are reported in skipped.
func (h *Handler) Holdings(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	holdings, err := h.broker.Holdings(r.Context(), id)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	summaries, sumErr := holdings.Summaries()
	resp := holdingsResponse{
		AccountID:  id,
		AsOf:       holdings.AsOf,
		TotalValue: holdings.TotalValue(),
		Positions:  summaries,
	}
	if sumErr != nil {
		resp.Skipped = sumErr.Error()
	}

	h.ensureAccount(id)
	if err := h.holdingRepo.InsertSnapshot(sync.Snapshots(id, holdings, summaries)); err != nil {
		h.log.Warn("storing holdings snapshot", "account", id, "error", err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HoldingHistory returns stored snapshots of one symbol in an account.
func (h *Handler) HoldingHistory(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	sym, err := symbolParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.holdingRepo.BySymbol(id, sym, pagination(r))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Quote returns a live quote read through the account's order page and
// stores it.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := accountID(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	sym, err := symbolParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	q, err := h.broker.Quote(r.Context(), id, sym)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	if _, err := h.quoteRepo.Create(quoteRecord(sym, q)); err != nil {
		h.log.Warn("storing quote", "symbol", sym, "error", err)
	}
	writeJSON(w, http.StatusOK, q)
}

// LatestQuote returns the newest stored quote of a symbol.
func (h *Handler) LatestQuote(w http.ResponseWriter, r *http.Request) {
	sym, err := symbolParam(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	q, err := h.quoteRepo.Latest(sym)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	if q == nil {
		writeError(w, h.log, apperrors.NotFound("quote"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quote": q, "spread": q.Spread()})
}

func quoteRecord(symbol string, q *chase.Quote) *models.Quote {
	rec := &models.Quote{
		Symbol:         symbol,
		Description:    q.Description,
		AskPrice:       q.AskPrice.Float64(),
		BidPrice:       q.BidPrice.Float64(),
		LastTradePrice: q.LastTradePrice.Float64(),
		ChangeAmount:   q.ChangeAmount.Float64(),
		ChangePercent:  q.ChangePercent.Float64(),
		CapturedAt:     time.Now().UTC(),
	}
	if !q.AsOf.IsZero() {
		t := q.AsOf.UTC()
		rec.AsOf = &t
	}
	return rec
}
