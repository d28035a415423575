// Package models contains the journal records persisted by the local store.
package models

import "time"

// Sync statuses.
const (
	SyncRunning = "running"
	SyncSuccess = "success"
	SyncPartial = "partial"
	SyncFailed  = "failed"
)

// Credential is a sealed set of logon details for one browser profile.
type Credential struct {
	ID                int64     `json:"id"`
	Profile           string    `json:"profile"`
	UsernameEncrypted []byte    `json:"-"`
	UsernameNonce     []byte    `json:"-"`
	PasswordEncrypted []byte    `json:"-"`
	PasswordNonce     []byte    `json:"-"`
	LastFour          string    `json:"last_four"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Account is the last known metadata of a brokerage account.
type Account struct {
	AccountID    string    `json:"account_id"`
	Mask         string    `json:"mask"`
	Nickname     string    `json:"nickname"`
	DetailType   string    `json:"detail_type"`
	AccountValue float64   `json:"account_value"`
	IsIRA        bool      `json:"is_ira"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HoldingSnapshot is one position as captured during a sync or an on-demand read.
type HoldingSnapshot struct {
	ID          int64      `json:"id"`
	AccountID   string     `json:"account_id"`
	SyncID      *int64     `json:"sync_id,omitempty"`
	Kind        string     `json:"kind"` // "cash_sweep" or "equity"
	Symbol      string     `json:"symbol"`
	Description string     `json:"description"`
	Quantity    float64    `json:"quantity"`
	Value       float64    `json:"value"`
	AsOf        *time.Time `json:"as_of,omitempty"`
	CapturedAt  time.Time  `json:"captured_at"`
}

// Quote is a stored quote snapshot.
type Quote struct {
	ID             int64      `json:"id"`
	Symbol         string     `json:"symbol"`
	Description    string     `json:"description"`
	AskPrice       float64    `json:"ask_price"`
	BidPrice       float64    `json:"bid_price"`
	LastTradePrice float64    `json:"last_trade_price"`
	ChangeAmount   float64    `json:"change_amount"`
	ChangePercent  float64    `json:"change_percent"`
	AsOf           *time.Time `json:"as_of,omitempty"`
	CapturedAt     time.Time  `json:"captured_at"`
}

// Spread returns the ask minus the bid, or 0 when either side is missing.
func (q *Quote) Spread() float64 {
	if q.AskPrice <= 0 || q.BidPrice <= 0 {
		return 0
	}
	return q.AskPrice - q.BidPrice
}

// OrderRecord journals one order attempt and what each screen reported.
type OrderRecord struct {
	ID         string  `json:"id"`
	AccountID  string  `json:"account_id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	PriceType  string  `json:"price_type"`
	Duration   string  `json:"duration"`
	Quantity   int     `json:"quantity"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	StopPrice  float64 `json:"stop_price,omitempty"`
	DryRun     bool    `json:"dry_run"`
	AfterHours bool    `json:"after_hours"`

	OrderInvalid      string `json:"order_invalid"`
	Warning           string `json:"warning"`
	OrderPreview      string `json:"order_preview"`
	AfterHoursWarning string `json:"after_hours_warning"`
	OrderConfirmation string `json:"order_confirmation"`
	ErrorMessage      string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// SyncHistory tracks sync runs for auditing.
type SyncHistory struct {
	ID              int64      `json:"id"`
	Status          string     `json:"status"`
	AccountsSynced  int        `json:"accounts_synced"`
	PositionsSynced int        `json:"positions_synced"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Duration returns how long the sync ran, or 0 while it is still running.
func (h *SyncHistory) Duration() time.Duration {
	if h.CompletedAt == nil {
		return 0
	}
	return h.CompletedAt.Sub(h.StartedAt)
}
