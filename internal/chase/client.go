package chase

import (
	"context"
	"log/slog"

	"chaseinvest/internal/browser"
)

// Client bundles a session with the services that read and trade through it.
type Client struct {
	*Session

	accounts *AccountService
	symbols  *SymbolService
	orders   *OrderService
}

// NewClient creates a Client over s. acceptWarnings is passed to the order
// service.
func NewClient(s *Session, acceptWarnings bool) *Client {
	return &Client{
		Session:  s,
		accounts: NewAccountService(s),
		symbols:  NewSymbolService(s),
		orders:   NewOrderService(s, acceptWarnings),
	}
}

// OpenClient starts a browser and returns a Client over it.
func OpenClient(ctx context.Context, opts browser.Options, acceptWarnings bool, logger *slog.Logger) (*Client, error) {
	s, err := Open(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return NewClient(s, acceptWarnings), nil
}

// ListAccounts returns the investment accounts.
func (c *Client) ListAccounts(ctx context.Context) (*AccountList, error) {
	return c.accounts.List(ctx)
}

// Holdings returns the positions of accountID.
func (c *Client) Holdings(ctx context.Context, accountID string) (*Holdings, error) {
	return c.symbols.Holdings(ctx, accountID)
}

// Quote returns a quote for symbol, read through the order page of accountID.
func (c *Client) Quote(ctx context.Context, accountID, symbol string) (*Quote, error) {
	return c.symbols.Quote(ctx, accountID, symbol)
}

// PlaceOrder places or previews an order.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderMessages, error) {
	return c.orders.PlaceOrder(ctx, req)
}

// OrderStatuses returns the order summaries of accountID.
func (c *Client) OrderStatuses(ctx context.Context, accountID string) (*OrderStatusList, error) {
	return c.orders.OrderStatuses(ctx, accountID)
}
