package chase

import "net/url"

// Site endpoints. The hash-routed pages are single-page-app routes; the /svc
// endpoints are the JSON calls those pages make.
const (
	loginPage   = "https://secure05c.chase.com/web/auth/#/logon/logon/chaseOnline"
	landingPage = "https://secure.chase.com/web/auth/dashboard#/dashboard/overview"

	holdingsJSON = "https://secure.chase.com/svc/wr/dwm/secure/gateway/investments/servicing/inquiry-maintenance/digital-investment-positions/v1/positions"
	orderInfo    = "https://secure.chase.com/svc/wr/dwm/secure/gateway/investments/servicing/inquiry-maintenance/digital-trade-orders/v1/summaries"
	quoteBase    = "https://secure.chase.com/svc/wr/dwm/secure/gateway/investments/servicing/inquiry-maintenance/digital-equity-quote/v1/quotes"

	// investmentListPath is the cache entry inside the dashboard payload that
	// carries investment accounts.
	investmentListPath = "/svc/rr/accounts/secure/v1/account/detail/inv/list"
)

// accountInfoURLs are the dashboard data endpoints, tried in order.
var accountInfoURLs = []string{
	"https://secure.chase.com/svc/rl/accounts/secure/v1/dashboard/data/list",
	"https://secure09ea.chase.com/svc/rl/accounts/secure/v1/dashboard/data/list",
}

func accountHoldingsPage(accountID string) string {
	return "https://secure.chase.com/web/auth/dashboard#/dashboard/oi-portfolio/positions/render;ai=" + accountID
}

func orderPage(accountID string) string {
	return "https://secure.chase.com/web/auth/dashboard#/dashboard/trade/equity/entry;ai=" + accountID + ";sym="
}

func orderStatusPage(accountID string) string {
	return "https://secure.chase.com/web/auth/dashboard#/dashboard/trade/order/status;ai=" + accountID + ";orderStatus=ALL"
}

func quoteEndpoint(symbol string) string {
	q := url.Values{}
	q.Set("securitySymbolCode", symbol)
	q.Set("securityValidateIndicator", "true")
	return quoteBase + "?" + q.Encode()
}
