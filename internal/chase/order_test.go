package chase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chaseinvest/internal/browser/browsertest"
)

const previewText = "Buy 1 AAPL Limit $100.00 Day Estimated total $100.00"

// orderFormPage returns a page with a fully loaded order-entry form whose
// preview and submit buttons lead to the preview and confirmation screens.
func orderFormPage() *browsertest.Page {
	p := browsertest.New()
	p.Show(selBuyLabel, selSymbolInput, selQuoteNote)
	for _, l := range sideLabels {
		p.Show(labelSelector(l))
	}
	for _, l := range priceLabels {
		p.Show(labelSelector(l))
	}
	for _, l := range durationLabels {
		p.Show(labelSelector(l))
	}
	p.Show(selLimitPrice, selStopPrice, selQuantity, selExecutionOptions, selPreviewButton)

	p.OnClick(selPreviewButton, func(p *browsertest.Page) {
		p.SetText(selPreview, previewText)
		p.Show(selSubmitOrder)
	})
	p.OnClick(selSubmitOrder, func(p *browsertest.Page) {
		p.Show(selConfirmation)
		p.SetText(selConfirmationTitle, "Your order\nhas been received")
	})
	return p
}

func limitBuy() OrderRequest {
	return OrderRequest{
		AccountID:  "123456789",
		Symbol:     "aapl",
		Quantity:   1,
		PriceType:  PriceLimit,
		Duration:   DurationDay,
		Side:       SideBuy,
		LimitPrice: 100,
	}
}

func TestOrderService_PlaceOrder_DryRun_NeverSubmits(t *testing.T) {
	page := orderFormPage()
	svc := NewOrderService(authedSession(page), false)

	req := limitBuy()
	req.DryRun = true
	msgs, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}

	if page.Clicked(selSubmitOrder) {
		t.Fatal("dry run clicked the submit button")
	}
	if msgs.OrderPreview != previewText {
		t.Errorf("OrderPreview = %q, want %q", msgs.OrderPreview, previewText)
	}
	if msgs.OrderInvalid != MsgNoInvalidMessage {
		t.Errorf("OrderInvalid = %q, want %q", msgs.OrderInvalid, MsgNoInvalidMessage)
	}
	if msgs.Warning != MsgNoWarning {
		t.Errorf("Warning = %q, want %q", msgs.Warning, MsgNoWarning)
	}
	if msgs.OrderConfirmation != "" {
		t.Errorf("OrderConfirmation = %q, want empty", msgs.OrderConfirmation)
	}
	if got := page.Value(selSymbolInput); got != "AAPL" {
		t.Errorf("symbol input = %q, want %q", got, "AAPL")
	}
	if got := page.Value(selLimitPrice); got != "100" {
		t.Errorf("limit price = %q, want %q", got, "100")
	}
	if got := page.Value(selQuantity); got != "1" {
		t.Errorf("quantity = %q, want %q", got, "1")
	}
}

func TestOrderService_PlaceOrder_Submits(t *testing.T) {
	page := orderFormPage()
	svc := NewOrderService(authedSession(page), false)

	msgs, err := svc.PlaceOrder(context.Background(), limitBuy())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}

	if !page.Clicked(selSubmitOrder) {
		t.Error("submit button was not clicked")
	}
	if msgs.AfterHoursWarning != MsgNoAfterHours {
		t.Errorf("AfterHoursWarning = %q, want %q", msgs.AfterHoursWarning, MsgNoAfterHours)
	}
	if want := "Your order has been received"; msgs.OrderConfirmation != want {
		t.Errorf("OrderConfirmation = %q, want %q", msgs.OrderConfirmation, want)
	}
	if msgs.Summary() != msgs.OrderConfirmation {
		t.Errorf("Summary() = %q, want the confirmation", msgs.Summary())
	}
	if !page.Clicked(labelSelector("Buy")) || !page.Clicked(labelSelector("Limit")) || !page.Clicked(labelSelector("Day")) {
		t.Errorf("form choices not clicked: %v", page.Clicks)
	}
}

func TestOrderService_PlaceOrder_StopLimitFillsBothPrices(t *testing.T) {
	page := orderFormPage()
	svc := NewOrderService(authedSession(page), false)

	req := limitBuy()
	req.Side = SideSell
	req.PriceType = PriceStopLimit
	req.Duration = DurationGoodTillCancelled
	req.LimitPrice = 95.5
	req.StopPrice = 96
	req.DryRun = true

	if _, err := svc.PlaceOrder(context.Background(), req); err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if got := page.Value(selLimitPrice); got != "95.5" {
		t.Errorf("limit price = %q, want %q", got, "95.5")
	}
	if got := page.Value(selStopPrice); got != "96" {
		t.Errorf("stop price = %q, want %q", got, "96")
	}
	if !page.Clicked(labelSelector("Good 'til canceled")) {
		t.Errorf("duration not clicked: %v", page.Clicks)
	}
}

func TestOrderService_PlaceOrder_EntersPricesUnrounded(t *testing.T) {
	tests := []struct {
		name      string
		limit     float64
		stop      float64
		wantLimit string
		wantStop  string
	}{
		{"sub-penny", 0.0049, 0.0051, "0.0049", "0.0051"},
		{"four decimals", 0.1234, 0.2, "0.1234", "0.2"},
		{"three decimals", 12.345, 12.5, "12.345", "12.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := orderFormPage()
			svc := NewOrderService(authedSession(page), false)

			req := limitBuy()
			req.PriceType = PriceStopLimit
			req.LimitPrice = tt.limit
			req.StopPrice = tt.stop
			req.DryRun = true

			if _, err := svc.PlaceOrder(context.Background(), req); err != nil {
				t.Fatalf("PlaceOrder() error = %v, want nil", err)
			}
			if got := page.Value(selLimitPrice); got != tt.wantLimit {
				t.Errorf("limit price = %q, want %q", got, tt.wantLimit)
			}
			if got := page.Value(selStopPrice); got != tt.wantStop {
				t.Errorf("stop price = %q, want %q", got, tt.wantStop)
			}
		})
	}
}

func TestOrderService_PlaceOrder_ImmediateOrCancelOpensOptions(t *testing.T) {
	page := orderFormPage()
	svc := NewOrderService(authedSession(page), false)

	req := limitBuy()
	req.Duration = DurationImmediateOrCancel
	req.DryRun = true

	if _, err := svc.PlaceOrder(context.Background(), req); err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if !page.Clicked(selExecutionOptions) {
		t.Error("execution options were not opened")
	}
	if !page.Clicked(labelSelector("Immediate or Cancel")) {
		t.Error("immediate-or-cancel was not chosen")
	}
}

func TestOrderService_PlaceOrder_InvalidOrderMessage(t *testing.T) {
	page := orderFormPage()
	page.OnClick(selPreviewButton, func(p *browsertest.Page) {
		p.SetText(selInvalidOrder, "  Insufficient buying power.  ")
	})
	svc := NewOrderService(authedSession(page), false)

	msgs, err := svc.PlaceOrder(context.Background(), limitBuy())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if msgs.OrderInvalid != "Insufficient buying power." {
		t.Errorf("OrderInvalid = %q", msgs.OrderInvalid)
	}
	if msgs.OrderPreview != "" || page.Clicked(selSubmitOrder) {
		t.Error("flow continued past the invalid order message")
	}
}

func softWarningPage() *browsertest.Page {
	page := orderFormPage()
	page.OnClick(selPreviewButton, func(p *browsertest.Page) {
		p.Show(selWarningOverlay, selAcceptWarning)
		p.SetText(selSoftWarning, "Your limit price is far from the market.")
	})
	page.OnClick(selAcceptWarning, func(p *browsertest.Page) {
		p.Hide(selWarningOverlay, selAcceptWarning)
		p.SetText(selPreview, previewText)
		p.Show(selSubmitOrder)
	})
	return page
}

func TestOrderService_PlaceOrder_SoftWarningNotAccepted(t *testing.T) {
	page := softWarningPage()
	svc := NewOrderService(authedSession(page), false)

	msgs, err := svc.PlaceOrder(context.Background(), limitBuy())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if msgs.Warning != "Your limit price is far from the market." {
		t.Errorf("Warning = %q", msgs.Warning)
	}
	if page.Clicked(selAcceptWarning) || page.Clicked(selSubmitOrder) {
		t.Error("warning was accepted without acceptWarning")
	}
}

func TestOrderService_PlaceOrder_SoftWarningAccepted(t *testing.T) {
	page := softWarningPage()
	svc := NewOrderService(authedSession(page), true)

	req := limitBuy()
	req.DryRun = true
	msgs, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if !page.Clicked(selAcceptWarning) {
		t.Error("warning was not accepted")
	}
	if msgs.OrderPreview != previewText {
		t.Errorf("OrderPreview = %q, want %q", msgs.OrderPreview, previewText)
	}
}

func afterHoursPage() *browsertest.Page {
	page := orderFormPage()
	page.OnClick(selSubmitOrder, func(p *browsertest.Page) {
		p.SetText(selAfterHoursWarning, "The market is closed.")
		p.Show(selConfirmAfterHours)
	})
	page.OnClick(selConfirmAfterHours, func(p *browsertest.Page) {
		p.Show(selConfirmation)
		p.SetText(selConfirmationTitle, "Order received")
	})
	return page
}

func TestOrderService_PlaceOrder_AfterHoursDeclined(t *testing.T) {
	page := afterHoursPage()
	svc := NewOrderService(authedSession(page), false)

	msgs, err := svc.PlaceOrder(context.Background(), limitBuy())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if msgs.AfterHoursWarning != "The market is closed." {
		t.Errorf("AfterHoursWarning = %q", msgs.AfterHoursWarning)
	}
	if page.Clicked(selConfirmAfterHours) {
		t.Error("after hours order confirmed without AfterHours")
	}
	if msgs.OrderConfirmation != "" {
		t.Errorf("OrderConfirmation = %q, want empty", msgs.OrderConfirmation)
	}
}

func TestOrderService_PlaceOrder_AfterHoursAccepted(t *testing.T) {
	page := afterHoursPage()
	svc := NewOrderService(authedSession(page), false)

	req := limitBuy()
	req.AfterHours = true
	msgs, err := svc.PlaceOrder(context.Background(), req)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if !page.Clicked(selConfirmAfterHours) {
		t.Error("after hours warning was not confirmed")
	}
	if msgs.OrderConfirmation != "Order received" {
		t.Errorf("OrderConfirmation = %q", msgs.OrderConfirmation)
	}
}

func TestOrderService_PlaceOrder_NoConfirmation(t *testing.T) {
	page := orderFormPage()
	page.OnClick(selSubmitOrder, func(p *browsertest.Page) {})
	svc := NewOrderService(authedSession(page), false)

	msgs, err := svc.PlaceOrder(context.Background(), limitBuy())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v, want nil", err)
	}
	if msgs.OrderConfirmation != MsgNoConfirmation {
		t.Errorf("OrderConfirmation = %q, want %q", msgs.OrderConfirmation, MsgNoConfirmation)
	}
}

func TestOrderService_PlaceOrder_PageNeverLoads(t *testing.T) {
	page := orderFormPage()
	page.Hide(selQuoteNote)
	svc := NewOrderService(authedSession(page), false)

	msgs, err := svc.PlaceOrder(context.Background(), limitBuy())
	if !errors.Is(err, ErrOrderPageUnavailable) {
		t.Fatalf("PlaceOrder() error = %v, want %v", err, ErrOrderPageUnavailable)
	}
	if msgs == nil {
		t.Fatal("PlaceOrder() returned nil messages")
	}
	if !strings.Contains(msgs.OrderInvalid, "Tried 4 times") {
		t.Errorf("OrderInvalid = %q, want attempt count", msgs.OrderInvalid)
	}
	if len(page.Navigations) != orderPageAttempts {
		t.Errorf("navigations = %d, want %d", len(page.Navigations), orderPageAttempts)
	}
}

func TestOrderService_PlaceOrder_NoPreviewButton(t *testing.T) {
	page := orderFormPage()
	page.Hide(selPreviewButton)
	svc := NewOrderService(authedSession(page), false)

	_, err := svc.PlaceOrder(context.Background(), limitBuy())
	if !errors.Is(err, ErrPreviewUnavailable) {
		t.Errorf("PlaceOrder() error = %v, want %v", err, ErrPreviewUnavailable)
	}
}

func TestOrderService_PlaceOrder_InvalidRequestTouchesNothing(t *testing.T) {
	page := orderFormPage()
	svc := NewOrderService(authedSession(page), false)

	req := limitBuy()
	req.PriceType = PriceMarket
	req.Duration = DurationGoodTillCancelled

	msgs, err := svc.PlaceOrder(context.Background(), req)
	if !errors.Is(err, ErrInvalidOrder) {
		t.Fatalf("PlaceOrder() error = %v, want %v", err, ErrInvalidOrder)
	}
	if msgs.OrderInvalid == "" {
		t.Error("OrderInvalid is empty for a rejected request")
	}
	if len(page.Navigations) != 0 {
		t.Errorf("navigations = %v, want none", page.Navigations)
	}
}

func TestOrderRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(r *OrderRequest)
		wantErr bool
	}{
		{"limit day", func(r *OrderRequest) {}, false},
		{"market day", func(r *OrderRequest) { r.PriceType = PriceMarket; r.LimitPrice = 0 }, false},
		{"market on close", func(r *OrderRequest) { r.PriceType = PriceMarket; r.Duration = DurationOnClose }, false},
		{"market gtc", func(r *OrderRequest) { r.PriceType = PriceMarket; r.Duration = DurationGoodTillCancelled }, true},
		{"market on open", func(r *OrderRequest) { r.PriceType = PriceMarket; r.Duration = DurationOnOpen }, true},
		{"stop gtc", func(r *OrderRequest) { r.PriceType = PriceStop; r.StopPrice = 90; r.Duration = DurationGoodTillCancelled }, false},
		{"stop ioc", func(r *OrderRequest) { r.PriceType = PriceStop; r.StopPrice = 90; r.Duration = DurationImmediateOrCancel }, true},
		{"stop limit on close", func(r *OrderRequest) { r.PriceType = PriceStopLimit; r.StopPrice = 90; r.Duration = DurationOnClose }, true},
		{"stop without price", func(r *OrderRequest) { r.PriceType = PriceStop }, true},
		{"limit without price", func(r *OrderRequest) { r.LimitPrice = 0 }, true},
		{"limit ioc", func(r *OrderRequest) { r.Duration = DurationImmediateOrCancel }, false},
		{"zero quantity", func(r *OrderRequest) { r.Quantity = 0 }, true},
		{"no symbol", func(r *OrderRequest) { r.Symbol = " " }, true},
		{"no account", func(r *OrderRequest) { r.AccountID = "" }, true},
		{"unknown side", func(r *OrderRequest) { r.Side = "SHORT" }, true},
		{"sell all", func(r *OrderRequest) { r.Side = SideSellAll }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := limitBuy()
			tt.modify(&req)
			err := req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidOrder) {
				t.Errorf("Validate() error = %v, want %v", err, ErrInvalidOrder)
			}
		})
	}
}

func TestParseEnums(t *testing.T) {
	if d, err := ParseDuration("gtc"); err != nil || d != DurationGoodTillCancelled {
		t.Errorf("ParseDuration(gtc) = %v, %v", d, err)
	}
	if d, err := ParseDuration("on_the_close"); err != nil || d != DurationOnClose {
		t.Errorf("ParseDuration(on_the_close) = %v, %v", d, err)
	}
	if p, err := ParsePriceType("stop_limit"); err != nil || p != PriceStopLimit {
		t.Errorf("ParsePriceType(stop_limit) = %v, %v", p, err)
	}
	if s, err := ParseOrderSide("sell_all"); err != nil || s != SideSellAll {
		t.Errorf("ParseOrderSide(sell_all) = %v, %v", s, err)
	}
	if _, err := ParseOrderSide("short"); !errors.Is(err, ErrInvalidOrder) {
		t.Errorf("ParseOrderSide(short) error = %v, want %v", err, ErrInvalidOrder)
	}
}

func TestLabelSelector(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"Buy", "//label[text()='Buy']"},
		{"Good 'til canceled", `//label[text()=concat('Good ', "'", 'til canceled')]`},
	}
	for _, tt := range tests {
		if got := labelSelector(tt.label); got != tt.want {
			t.Errorf("labelSelector(%q) = %q, want %q", tt.label, got, tt.want)
		}
	}
}

func TestOrderService_OrderStatuses(t *testing.T) {
	page := browsertest.New()
	page.Respond(orderInfo, 200, loadFixture(t, "order_summaries.json"))
	svc := NewOrderService(authedSession(page), false)

	list, err := svc.OrderStatuses(context.Background(), "123456789")
	if err != nil {
		t.Fatalf("OrderStatuses() error = %v, want nil", err)
	}
	if len(list.Orders) != 2 {
		t.Fatalf("OrderStatuses() returned %d orders, want 2", len(list.Orders))
	}
	first := list.Orders[0]
	if first.OrderID != "100200300" || first.TradeAction != "BUY" || first.Status != "EXECUTED" {
		t.Errorf("first order = %+v", first)
	}
	if len(first.Raw) == 0 {
		t.Error("raw order record was not kept")
	}
	if page.Navigations[0] != orderStatusPage("123456789") {
		t.Errorf("navigated to %q, want the order status page", page.Navigations[0])
	}
}
