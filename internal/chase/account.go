package chase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chaseinvest/internal/browser"
	"chaseinvest/internal/util"
)

const (
	accountAttempts     = 3
	accountRetryDelay   = time.Second
	accountCaptureLimit = 30 * time.Second
)

// InvestmentSummary is the aggregate value across all investment accounts.
type InvestmentSummary struct {
	AccountValue       FlexibleFloat `json:"accountValue"`
	AccountValueChange FlexibleFloat `json:"accountValueChange"`
}

// Account is the display metadata of one brokerage account.
type Account struct {
	ID                 FlexibleString `json:"accountId"`
	Mask               string         `json:"mask"`
	Nickname           string         `json:"nickname"`
	DetailType         string         `json:"detailType"`
	AccountValue       FlexibleFloat  `json:"accountValue"`
	AccountValueChange FlexibleFloat  `json:"accountValueChange"`
	EDA                bool           `json:"eda"`
	IRA                bool           `json:"ira"`
	ViewBalance        bool           `json:"viewBalance"`
	PriorYearIRA       bool           `json:"priorYearIra"`
	ShowTransfer       bool           `json:"showXfer"`
}

// AccountList is the investment section of the dashboard payload.
type AccountList struct {
	Summary  InvestmentSummary `json:"investmentSummary"`
	Accounts []Account         `json:"accounts"`
}

// Connectors maps each account connector id to its mask.
func (l *AccountList) Connectors() map[string]string {
	out := make(map[string]string, len(l.Accounts))
	for _, a := range l.Accounts {
		out[string(a.ID)] = a.Mask
	}
	return out
}

// IDs returns the connector ids in the order the site lists them.
func (l *AccountList) IDs() []string {
	ids := make([]string, 0, len(l.Accounts))
	for _, a := range l.Accounts {
		ids = append(ids, string(a.ID))
	}
	return ids
}

// Details returns the account with the given connector id.
func (l *AccountList) Details(id string) (*Account, error) {
	for i := range l.Accounts {
		if string(l.Accounts[i].ID) == id {
			return &l.Accounts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
}

// dashboardPayload is the dashboard data list response. Each cache entry is
// a pre-fetched response for another endpoint.
type dashboardPayload struct {
	Cache []struct {
		URL      string          `json:"url"`
		Response json.RawMessage `json:"response"`
	} `json:"cache"`
}

// AccountService lists accounts from the dashboard payload.
type AccountService struct {
	session *Session
	log     *slog.Logger

	attempts   int
	retryDelay time.Duration
}

// NewAccountService creates an AccountService over an authenticated session.
func NewAccountService(s *Session) *AccountService {
	return &AccountService{
		session:    s,
		log:        s.log.With("component", "accounts"),
		attempts:   accountAttempts,
		retryDelay: accountRetryDelay,
	}
}

// List reloads the dashboard and extracts the investment account list.
func (a *AccountService) List(ctx context.Context) (*AccountList, error) {
	var list *AccountList
	err := a.session.withPage(func(page browser.Page) error {
		for _, url := range accountInfoURLs {
			l, err := a.fetch(ctx, page, url)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				a.log.Warn("account list not captured", "url", url, "error", err)
				continue
			}
			if l != nil {
				list = l
				return nil
			}
		}
		return ErrAccountsUnavailable
	})
	if err != nil {
		return nil, err
	}

	a.log.Info("accounts loaded", "count", len(list.Accounts), "total_value", list.Summary.AccountValue.Float64())
	return list, nil
}

// fetch captures url while reloading the page. A nil list with nil error
// means the payload arrived without an investment section.
func (a *AccountService) fetch(ctx context.Context, page browser.Page, url string) (*AccountList, error) {
	var list *AccountList
	err := util.Retry(ctx, a.attempts, a.retryDelay, func(attempt int) error {
		resp, err := page.Capture(ctx, browser.URLPrefix(url), accountCaptureLimit, page.Reload)
		if err != nil {
			a.log.Debug("capture failed", "url", url, "attempt", attempt+1, "error", err)
			return err
		}
		list, err = parseAccountList(resp)
		return err
	})
	return list, err
}

var errBadStatus = errors.New("unexpected response status")

func parseAccountList(resp *browser.Response) (*AccountList, error) {
	var payload dashboardPayload
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("decoding dashboard payload: %w", err)
	}

	for _, entry := range payload.Cache {
		if entry.URL != investmentListPath {
			continue
		}
		if !resp.OK() {
			return nil, fmt.Errorf("%w: %d", errBadStatus, resp.Status)
		}
		var body struct {
			ChaseInvestments *AccountList `json:"chaseInvestments"`
		}
		if err := json.Unmarshal(entry.Response, &body); err != nil {
			return nil, fmt.Errorf("decoding investment accounts: %w", err)
		}
		return body.ChaseInvestments, nil
	}
	return nil, nil
}
