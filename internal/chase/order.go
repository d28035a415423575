package chase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"chaseinvest/internal/browser"
)

// PriceType is the pricing instruction of an order.
type PriceType string

const (
	PriceLimit     PriceType = "LIMIT"
	PriceMarket    PriceType = "MARKET"
	PriceStop      PriceType = "STOP"
	PriceStopLimit PriceType = "STOP_LIMIT"
)

// Duration is how long an order stays working.
type Duration string

const (
	DurationDay               Duration = "DAY"
	DurationGoodTillCancelled Duration = "GOOD_TILL_CANCELLED"
	DurationOnOpen            Duration = "ON_THE_OPEN"
	DurationOnClose           Duration = "ON_THE_CLOSE"
	DurationImmediateOrCancel Duration = "IMMEDIATE_OR_CANCEL"
)

// OrderSide is the direction of an order.
type OrderSide string

const (
	SideBuy     OrderSide = "BUY"
	SideSell    OrderSide = "SELL"
	SideSellAll OrderSide = "SELL_ALL"
)

// TypeCode is the account funding type an order draws on.
type TypeCode string

const (
	TypeCash   TypeCode = "CASH"
	TypeMargin TypeCode = "MARGIN"
)

// Labels of the order-entry form controls.
var (
	sideLabels = map[OrderSide]string{
		SideBuy:     "Buy",
		SideSell:    "Sell",
		SideSellAll: "Sell All",
	}
	priceLabels = map[PriceType]string{
		PriceLimit:     "Limit",
		PriceMarket:    "Market",
		PriceStop:      "Stop",
		PriceStopLimit: "Stop Limit",
	}
	durationLabels = map[Duration]string{
		DurationDay:               "Day",
		DurationGoodTillCancelled: "Good 'til canceled",
		DurationOnOpen:            "On open",
		DurationOnClose:           "On close",
		DurationImmediateOrCancel: "Immediate or Cancel",
	}
)

// ParsePriceType parses s case-insensitively.
func ParsePriceType(s string) (PriceType, error) {
	p := PriceType(strings.ToUpper(s))
	if _, ok := priceLabels[p]; !ok {
		return "", fmt.Errorf("%w: unknown price type %q", ErrInvalidOrder, s)
	}
	return p, nil
}

// ParseDuration parses s case-insensitively. "GTC" and "IOC" are accepted.
func ParseDuration(s string) (Duration, error) {
	switch strings.ToUpper(s) {
	case "GTC":
		return DurationGoodTillCancelled, nil
	case "IOC":
		return DurationImmediateOrCancel, nil
	}
	d := Duration(strings.ToUpper(s))
	if _, ok := durationLabels[d]; !ok {
		return "", fmt.Errorf("%w: unknown duration %q", ErrInvalidOrder, s)
	}
	return d, nil
}

// ParseOrderSide parses s case-insensitively.
func ParseOrderSide(s string) (OrderSide, error) {
	side := OrderSide(strings.ToUpper(s))
	if _, ok := sideLabels[side]; !ok {
		return "", fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, s)
	}
	return side, nil
}

// Order-entry page selectors.
const (
	selBuyLabel          = "//label[text()='Buy']"
	selSymbolInput       = "#equitySymbolLookup-block-autocomplete-validate-input-field"
	selQuoteNote         = ".NOTE"
	selSpinner           = "#element-id"
	selLimitPrice        = "#tradeLimitPrice-text-input-field"
	selStopPrice         = "#tradeStopPrice-text-input-field"
	selQuantity          = "#tradeQuantity-text-input-field"
	selExecutionOptions  = "#tradeExecutionOptions-iconwrap"
	selPreviewButton     = "#previewOrder"
	selInvalidOrder      = "#entry-trade-wrapper > div > div:nth-child(1) > div > div"
	selWarningOverlay    = "#equityOverlayContent > div > div"
	selSoftWarning       = "#previewSoftWarning > ul"
	selAcceptWarning     = "#equityOverlayContent .button--primary"
	selPreview           = ".trade-wrapper"
	selSubmitOrder       = "#submitOrder"
	selAfterHoursWarning = "#afterHoursModal > div.markets-message > div"
	selConfirmAfterHours = "#confirmAfterHoursOrder"
	selConfirmation      = "#equityConfirmation > div"
	selConfirmationTitle = "#equityConfirmation > div .alert__title-text"
)

// Messages reported in OrderMessages slots.
const (
	MsgPageLoaded         = "Order page loaded correctly."
	MsgNoInvalidMessage   = "No invalid order message found."
	MsgNoWarning          = "No warning page found."
	MsgNoPreview          = "No order preview page found."
	MsgNoAfterHours       = "No after hours warning page found."
	MsgNoConfirmation     = "No order confirmation page found. Order Failed."
	MsgNoConfirmationText = "Alert Text not found."
)

const (
	orderPageAttempts    = 4
	orderPageTimeout     = 20 * time.Second
	quoteNoteTimeout     = 10 * time.Second
	orderStepTimeout     = 5 * time.Second
	submitTimeout        = 10 * time.Second
	afterHoursTimeout    = 2 * time.Second
	orderStatusTimeLimit = 30 * time.Second
)

// OrderRequest describes an order to place.
type OrderRequest struct {
	AccountID  string    `json:"account_id"`
	Symbol     string    `json:"symbol"`
	Quantity   int       `json:"quantity"`
	PriceType  PriceType `json:"price_type"`
	Duration   Duration  `json:"duration"`
	Side       OrderSide `json:"side"`
	LimitPrice float64   `json:"limit_price,omitempty"`
	StopPrice  float64   `json:"stop_price,omitempty"`

	// AfterHours accepts the after-hours warning when it appears.
	AfterHours bool `json:"after_hours"`

	// DryRun stops at the preview screen without submitting.
	DryRun bool `json:"dry_run"`
}

// Validate checks the combinations the order form accepts.
func (r *OrderRequest) Validate() error {
	if strings.TrimSpace(r.AccountID) == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidOrder)
	}
	if strings.TrimSpace(r.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if r.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if _, ok := sideLabels[r.Side]; !ok {
		return fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, r.Side)
	}
	if _, ok := priceLabels[r.PriceType]; !ok {
		return fmt.Errorf("%w: unknown price type %q", ErrInvalidOrder, r.PriceType)
	}
	if _, ok := durationLabels[r.Duration]; !ok {
		return fmt.Errorf("%w: unknown duration %q", ErrInvalidOrder, r.Duration)
	}

	switch r.PriceType {
	case PriceMarket:
		if r.Duration != DurationDay && r.Duration != DurationOnClose {
			return fmt.Errorf("%w: market orders must be DAY or ON_THE_CLOSE", ErrInvalidOrder)
		}
	case PriceStop, PriceStopLimit:
		if r.Duration != DurationDay && r.Duration != DurationGoodTillCancelled {
			return fmt.Errorf("%w: stop orders must be DAY or GOOD_TILL_CANCELLED", ErrInvalidOrder)
		}
	}

	if (r.PriceType == PriceLimit || r.PriceType == PriceStopLimit) && r.LimitPrice <= 0 {
		return fmt.Errorf("%w: limit price is required", ErrInvalidOrder)
	}
	if (r.PriceType == PriceStop || r.PriceType == PriceStopLimit) && r.StopPrice <= 0 {
		return fmt.Errorf("%w: stop price is required", ErrInvalidOrder)
	}
	return nil
}

// OrderMessages collects what each screen of the order flow showed.
type OrderMessages struct {
	OrderInvalid      string `json:"order_invalid"`
	Warning           string `json:"warning"`
	OrderPreview      string `json:"order_preview"`
	AfterHoursWarning string `json:"after_hours_warning"`
	OrderConfirmation string `json:"order_confirmation"`
}

// Map returns the messages keyed the way the site labels each screen.
func (m *OrderMessages) Map() map[string]string {
	return map[string]string{
		"ORDER INVALID":       m.OrderInvalid,
		"WARNING":             m.Warning,
		"ORDER PREVIEW":       m.OrderPreview,
		"AFTER HOURS WARNING": m.AfterHoursWarning,
		"ORDER CONFIRMATION":  m.OrderConfirmation,
	}
}

// Summary returns the most relevant message: the confirmation when present,
// otherwise the preview, otherwise the invalid-order text.
func (m *OrderMessages) Summary() string {
	switch {
	case m.OrderConfirmation != "":
		return m.OrderConfirmation
	case m.OrderPreview != "":
		return m.OrderPreview
	default:
		return m.OrderInvalid
	}
}

// OrderSummary is one entry of the order status list.
type OrderSummary struct {
	OrderID     FlexibleString `json:"orderIdentifier"`
	TradeAction string         `json:"tradeActionCode"`
	Status      string         `json:"orderStatusCode"`
	Symbol      string         `json:"securitySymbolCode,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw record alongside the decoded fields.
func (o *OrderSummary) UnmarshalJSON(data []byte) error {
	type plain OrderSummary
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = OrderSummary(v)
	o.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// OrderStatusList is the order summaries payload for one account.
type OrderStatusList struct {
	AccountID string         `json:"-"`
	Orders    []OrderSummary `json:"orderSummaries"`
}

// OrderService places orders and reads order status.
type OrderService struct {
	session       *Session
	log           *slog.Logger
	acceptWarning bool
}

// NewOrderService creates an OrderService. acceptWarning controls whether soft
// warnings on the preview screen are accepted or end the flow.
func NewOrderService(s *Session, acceptWarning bool) *OrderService {
	return &OrderService{
		session:       s,
		log:           s.log.With("component", "orders"),
		acceptWarning: acceptWarning,
	}
}

// OrderStatuses opens the order status page and decodes the summaries it fetches.
func (o *OrderService) OrderStatuses(ctx context.Context, accountID string) (*OrderStatusList, error) {
	var resp *browser.Response
	err := o.session.withPage(func(page browser.Page) error {
		var err error
		resp, err = page.Capture(ctx, browser.URLPrefix(orderInfo), orderStatusTimeLimit, func(ctx context.Context) error {
			return page.Navigate(ctx, orderStatusPage(accountID))
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotAuthenticated) {
			return nil, err
		}
		return nil, fmt.Errorf("%w for account %s: %v", ErrOrderStatusUnavailable, accountID, err)
	}

	var list OrderStatusList
	if err := json.Unmarshal(resp.Body, &list); err != nil {
		return nil, fmt.Errorf("%w: decoding order summaries: %v", ErrOrderStatusUnavailable, err)
	}
	list.AccountID = accountID
	return &list, nil
}

// PlaceOrder fills the order-entry form and walks the preview, warning and
// confirmation screens. The returned messages are always non-nil and record
// what each screen showed; the error is set only when the flow could not run
// to an outcome. A dry run stops at the preview and never submits.
func (o *OrderService) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderMessages, error) {
	msgs := &OrderMessages{}
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))

	if err := req.Validate(); err != nil {
		msgs.OrderInvalid = strings.TrimPrefix(err.Error(), ErrInvalidOrder.Error()+": ")
		return msgs, err
	}

	err := o.session.withPage(func(page browser.Page) error {
		return o.placeOrder(ctx, page, req, msgs)
	})

	log := o.log.With("account", req.AccountID, "symbol", req.Symbol, "side", req.Side, "quantity", req.Quantity, "dry_run", req.DryRun)
	if err != nil {
		log.Error("order flow failed", "error", err)
		return msgs, err
	}
	log.Info("order flow finished", "result", msgs.Summary())
	return msgs, nil
}

func (o *OrderService) placeOrder(ctx context.Context, page browser.Page, req OrderRequest, msgs *OrderMessages) error {
	if err := o.loadOrderPage(ctx, page, req, msgs); err != nil {
		return err
	}

	if err := clickLabel(ctx, page, sideLabels[req.Side]); err != nil {
		return fmt.Errorf("choosing side: %w", err)
	}
	if err := clickLabel(ctx, page, priceLabels[req.PriceType]); err != nil {
		return fmt.Errorf("choosing price type: %w", err)
	}

	if req.PriceType == PriceLimit || req.PriceType == PriceStopLimit {
		if err := page.SetValue(ctx, selLimitPrice, formatPrice(req.LimitPrice)); err != nil {
			return fmt.Errorf("entering limit price: %w", err)
		}
	}
	if req.PriceType == PriceStop || req.PriceType == PriceStopLimit {
		if err := page.SetValue(ctx, selStopPrice, formatPrice(req.StopPrice)); err != nil {
			return fmt.Errorf("entering stop price: %w", err)
		}
	}

	if err := page.WaitVisible(ctx, selQuantity, orderStepTimeout); err != nil {
		return fmt.Errorf("finding quantity field: %w", err)
	}
	if err := page.SetValue(ctx, selQuantity, strconv.Itoa(req.Quantity)); err != nil {
		return fmt.Errorf("entering quantity: %w", err)
	}

	if req.Duration == DurationImmediateOrCancel {
		if err := page.Click(ctx, selExecutionOptions); err != nil {
			return fmt.Errorf("opening execution options: %w", err)
		}
	}
	if err := clickLabel(ctx, page, durationLabels[req.Duration]); err != nil {
		return fmt.Errorf("choosing duration: %w", err)
	}

	if err := page.WaitVisible(ctx, selPreviewButton, orderStepTimeout); err != nil {
		return ErrPreviewUnavailable
	}
	if err := page.Click(ctx, selPreviewButton); err != nil {
		return fmt.Errorf("%w: %v", ErrPreviewUnavailable, err)
	}

	if text, err := page.Text(ctx, selInvalidOrder, orderStepTimeout); err == nil {
		msgs.OrderInvalid = strings.TrimSpace(text)
		return nil
	}
	msgs.OrderInvalid = MsgNoInvalidMessage

	if done, err := o.softWarning(ctx, page, msgs); err != nil || done {
		return err
	}

	if text, err := page.Text(ctx, selPreview, orderStepTimeout); err == nil {
		msgs.OrderPreview = strings.TrimSpace(text)
		if req.DryRun {
			return nil
		}
		if err := page.WaitVisible(ctx, selSubmitOrder, submitTimeout); err != nil {
			return ErrSubmitUnavailable
		}
		if err := page.Click(ctx, selSubmitOrder); err != nil {
			return fmt.Errorf("%w: %v", ErrSubmitUnavailable, err)
		}
	} else {
		msgs.OrderPreview = MsgNoPreview
	}

	if text, err := page.Text(ctx, selAfterHoursWarning, orderStepTimeout); err == nil {
		msgs.AfterHoursWarning = strings.TrimSpace(text)
		if !req.AfterHours {
			return nil
		}
		if err := page.WaitVisible(ctx, selConfirmAfterHours, afterHoursTimeout); err != nil {
			return fmt.Errorf("%w: after hours warning", ErrPromptNotDismissed)
		}
		if err := page.Click(ctx, selConfirmAfterHours); err != nil {
			return fmt.Errorf("%w: %v", ErrPromptNotDismissed, err)
		}
	} else {
		msgs.AfterHoursWarning = MsgNoAfterHours
	}

	if err := page.WaitVisible(ctx, selConfirmation, orderStepTimeout); err != nil {
		msgs.OrderConfirmation = MsgNoConfirmation
		return nil
	}
	text, err := page.Text(ctx, selConfirmationTitle, orderStepTimeout)
	if err != nil {
		msgs.OrderConfirmation = MsgNoConfirmationText
		return nil
	}
	msgs.OrderConfirmation = strings.TrimSpace(strings.ReplaceAll(text, "\n", " "))
	return nil
}

// loadOrderPage opens the order-entry page and waits for the symbol quote
// note, retrying the whole load a few times.
func (o *OrderService) loadOrderPage(ctx context.Context, page browser.Page, req OrderRequest, msgs *OrderMessages) error {
	for i := 0; i < orderPageAttempts; i++ {
		err := o.tryLoadOrderPage(ctx, page, req)
		if err == nil {
			msgs.OrderInvalid = MsgPageLoaded
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs.OrderInvalid = fmt.Sprintf("Order page did not load correctly cannot continue. Tried %d times.", i+1)
		o.log.Warn("order page did not load", "attempt", i+1, "error", err)
	}
	return ErrOrderPageUnavailable
}

func (o *OrderService) tryLoadOrderPage(ctx context.Context, page browser.Page, req OrderRequest) error {
	if err := page.Navigate(ctx, orderPage(req.AccountID)); err != nil {
		return err
	}
	if err := page.Reload(ctx); err != nil {
		return err
	}
	if err := page.WaitVisible(ctx, selBuyLabel, orderPageTimeout); err != nil {
		return err
	}
	if err := page.SetValue(ctx, selSymbolInput, req.Symbol); err != nil {
		return err
	}
	if err := page.PressEnter(ctx, selSymbolInput); err != nil {
		return err
	}
	if err := page.WaitVisible(ctx, selQuoteNote, quoteNoteTimeout); err != nil {
		return err
	}
	return page.WaitGone(ctx, selSpinner, orderPageTimeout)
}

// softWarning handles the overlay of soft warnings shown after preview. done
// is true when the warning was left in place and the flow should stop.
func (o *OrderService) softWarning(ctx context.Context, page browser.Page, msgs *OrderMessages) (done bool, err error) {
	if err := page.WaitVisible(ctx, selWarningOverlay, orderStepTimeout); err != nil {
		msgs.Warning = MsgNoWarning
		return false, nil
	}

	text, err := page.Text(ctx, selSoftWarning, time.Second)
	if err != nil {
		msgs.Warning = MsgNoWarning
		return false, nil
	}
	msgs.Warning = strings.TrimSpace(text)

	if !o.acceptWarning {
		return true, nil
	}
	if err := page.WaitVisible(ctx, selAcceptWarning, orderStepTimeout); err != nil {
		return false, fmt.Errorf("%w: no accept button", ErrPromptNotDismissed)
	}
	if err := page.Click(ctx, selAcceptWarning); err != nil {
		return false, fmt.Errorf("%w: %v", ErrPromptNotDismissed, err)
	}
	return false, nil
}

func clickLabel(ctx context.Context, page browser.Page, label string) error {
	sel := labelSelector(label)
	if err := page.WaitVisible(ctx, sel, orderStepTimeout); err != nil {
		return err
	}
	return page.Click(ctx, sel)
}

// labelSelector builds an XPath for a label with exact text. Labels containing
// an apostrophe are quoted with concat().
func labelSelector(label string) string {
	if !strings.Contains(label, "'") {
		return "//label[text()='" + label + "']"
	}
	parts := strings.Split(label, "'")
	quoted := make([]string, 0, 2*len(parts))
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `"'"`)
		}
		quoted = append(quoted, "'"+p+"'")
	}
	return "//label[text()=concat(" + strings.Join(quoted, ", ") + ")]"
}

// formatPrice renders p with no rounding; the site decides what precision it
// accepts and says so on the invalid-order screen.
func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
