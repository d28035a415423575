package chase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chaseinvest/internal/browser"
)

const (
	holdingsCaptureLimit = 30 * time.Second
	quoteCaptureLimit    = 30 * time.Second
)

// Holdings is the positions payload for one account.
type Holdings struct {
	AccountID string `json:"-"`

	AsOf                        Timestamp         `json:"asOfTimestamp"`
	AssetAllocationToolEligible bool              `json:"assetAllocationToolEligibleIndicator"`
	CashSweepPositionSummary    json.RawMessage   `json:"cashSweepPositionSummary,omitempty"`
	CustomPositionAllowed       bool              `json:"customPositionAllowedIndicator"`
	ErrorResponses              []json.RawMessage `json:"errorResponses,omitempty"`
	PerformanceAllowed          bool              `json:"performanceAllowedIndicator"`
	Positions                   []Position        `json:"positions"`
	PositionsSummary            json.RawMessage   `json:"positionsSummary,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// Quote is a point-in-time price snapshot for one symbol.
type Quote struct {
	AskPrice          FlexibleFloat `json:"askPriceAmount"`
	AskExchangeCode   string        `json:"askExchangeCode"`
	AskQuantity       FlexibleFloat `json:"askQuantity"`
	BidPrice          FlexibleFloat `json:"bidPriceAmount"`
	BidExchangeCode   string        `json:"bidExchangeCode"`
	BidQuantity       FlexibleFloat `json:"bidQuantity"`
	ChangeAmount      FlexibleFloat `json:"changeAmount"`
	ChangePercent     FlexibleFloat `json:"changePercent"`
	LastTradePrice    FlexibleFloat `json:"lastTradePriceAmount"`
	LastTradeQuantity FlexibleFloat `json:"lastTradeQuantity"`
	LastExchangeCode  string        `json:"lastTradeExchangeCode"`
	AsOf              Timestamp     `json:"asOfTimestamp"`
	Description       string        `json:"securityDescriptionText"`
	Symbol            string        `json:"securitySymbolCode"`

	Raw json.RawMessage `json:"-"`
}

// SymbolService reads holdings and quotes.
type SymbolService struct {
	session *Session
	log     *slog.Logger
}

// NewSymbolService creates a SymbolService over an authenticated session.
func NewSymbolService(s *Session) *SymbolService {
	return &SymbolService{
		session: s,
		log:     s.log.With("component", "symbols"),
	}
}

// Holdings opens the positions page for accountID and decodes the positions
// response it fetches.
func (s *SymbolService) Holdings(ctx context.Context, accountID string) (*Holdings, error) {
	var resp *browser.Response
	err := s.session.withPage(func(page browser.Page) error {
		var err error
		resp, err = page.Capture(ctx, browser.URLPrefix(holdingsJSON), holdingsCaptureLimit, func(ctx context.Context) error {
			return page.Navigate(ctx, accountHoldingsPage(accountID))
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w for account %s: %v", ErrHoldingsUnavailable, accountID, err)
	}

	h, err := parseHoldings(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w for account %s: %v", ErrHoldingsUnavailable, accountID, err)
	}
	h.AccountID = accountID

	s.log.Info("holdings loaded", "account", accountID, "positions", len(h.Positions))
	return h, nil
}

func parseHoldings(body []byte) (*Holdings, error) {
	var h Holdings
	if err := json.Unmarshal(body, &h); err != nil {
		return nil, fmt.Errorf("decoding positions: %w", err)
	}
	h.Raw = append(json.RawMessage(nil), body...)
	return &h, nil
}

// Quote enters symbol on the order-entry page of accountID and decodes the
// quote response the page fetches.
func (s *SymbolService) Quote(ctx context.Context, accountID, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrQuoteUnavailable)
	}

	var resp *browser.Response
	err := s.session.withPage(func(page browser.Page) error {
		var err error
		resp, err = page.Capture(ctx, browser.URLPrefix(quoteEndpoint(symbol)), quoteCaptureLimit, func(ctx context.Context) error {
			return enterSymbol(ctx, page, accountID, symbol)
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w for %s: %v", ErrQuoteUnavailable, symbol, err)
	}

	q, err := parseQuote(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w for %s: %v", ErrQuoteUnavailable, symbol, err)
	}

	s.log.Info("quote loaded", "symbol", q.Symbol, "ask", q.AskPrice.Float64(), "last", q.LastTradePrice.Float64())
	return q, nil
}

func parseQuote(body []byte) (*Quote, error) {
	var q Quote
	if err := json.Unmarshal(body, &q); err != nil {
		return nil, fmt.Errorf("decoding quote: %w", err)
	}
	if q.Symbol == "" {
		return nil, errors.New("quote has no security symbol")
	}
	q.Raw = append(json.RawMessage(nil), body...)
	return &q, nil
}

// enterSymbol loads the order-entry page and submits symbol in the lookup box.
func enterSymbol(ctx context.Context, page browser.Page, accountID, symbol string) error {
	if err := page.Navigate(ctx, orderPage(accountID)); err != nil {
		return err
	}
	if err := page.WaitVisible(ctx, selBuyLabel, orderPageTimeout); err != nil {
		return err
	}
	if err := page.WaitVisible(ctx, selSymbolInput, orderPageTimeout); err != nil {
		return err
	}
	if err := page.SetValue(ctx, selSymbolInput, symbol); err != nil {
		return err
	}
	return page.PressEnter(ctx, selSymbolInput)
}
