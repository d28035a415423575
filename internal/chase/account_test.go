package chase

import (
	"context"
	"errors"
	"testing"

	"chaseinvest/internal/browser"
	"chaseinvest/internal/browser/browsertest"
)

func newTestAccountService(page *browsertest.Page) *AccountService {
	svc := NewAccountService(authedSession(page))
	svc.retryDelay = 0
	return svc
}

func TestAccountService_List_DecodesInvestmentAccounts(t *testing.T) {
	page := browsertest.New()
	page.Respond(accountInfoURLs[0], 200, loadFixture(t, "dashboard.json"))
	svc := newTestAccountService(page)

	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}

	if len(list.Accounts) != 2 {
		t.Fatalf("List() returned %d accounts, want 2", len(list.Accounts))
	}
	if got := list.Summary.AccountValue.Float64(); got != 15234.56 {
		t.Errorf("AccountValue = %v, want 15234.56", got)
	}
	if page.Reloads != 1 {
		t.Errorf("Reloads = %d, want 1", page.Reloads)
	}

	first := list.Accounts[0]
	if first.ID != "123456789" {
		t.Errorf("ID = %q, want %q", first.ID, "123456789")
	}
	if first.AccountValue.Float64() != 10000 {
		t.Errorf("AccountValue = %v, want 10000", first.AccountValue)
	}
	if !first.ShowTransfer || first.IRA {
		t.Errorf("flags = %+v, want showXfer without ira", first)
	}
}

func TestAccountList_ConnectorsAndDetails(t *testing.T) {
	page := browsertest.New()
	page.Respond(accountInfoURLs[0], 200, loadFixture(t, "dashboard.json"))
	list, err := newTestAccountService(page).List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}

	connectors := list.Connectors()
	want := map[string]string{"123456789": "1234", "987654321": "5678"}
	if len(connectors) != len(want) {
		t.Fatalf("Connectors() = %v, want %v", connectors, want)
	}
	for id, mask := range want {
		if connectors[id] != mask {
			t.Errorf("Connectors()[%s] = %q, want %q", id, connectors[id], mask)
		}
	}

	ids := list.IDs()
	if len(ids) != 2 || ids[0] != "123456789" || ids[1] != "987654321" {
		t.Errorf("IDs() = %v, want site order", ids)
	}

	acct, err := list.Details("987654321")
	if err != nil {
		t.Fatalf("Details() error = %v", err)
	}
	if acct.Nickname != "Roth IRA" || !acct.IRA || !acct.PriorYearIRA {
		t.Errorf("Details() = %+v, want the Roth IRA", acct)
	}

	if _, err := list.Details("000"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Details() error = %v, want %v", err, ErrAccountNotFound)
	}
}

func TestAccountService_List_FallsBackToSecondURL(t *testing.T) {
	page := browsertest.New()
	page.Respond(accountInfoURLs[0], 200, loadFixture(t, "dashboard_no_investments.json"))
	page.Respond(accountInfoURLs[1], 200, loadFixture(t, "dashboard.json"))
	svc := newTestAccountService(page)

	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v, want nil", err)
	}
	if len(list.Accounts) != 2 {
		t.Errorf("List() returned %d accounts, want 2", len(list.Accounts))
	}
}

func TestAccountService_List_NothingCaptured_ReturnsError(t *testing.T) {
	page := browsertest.New()
	svc := newTestAccountService(page)

	_, err := svc.List(context.Background())
	if !errors.Is(err, ErrAccountsUnavailable) {
		t.Errorf("List() error = %v, want %v", err, ErrAccountsUnavailable)
	}
	if want := accountAttempts * len(accountInfoURLs); page.Reloads != want {
		t.Errorf("Reloads = %d, want %d", page.Reloads, want)
	}
}

func TestParseAccountList_BadStatus(t *testing.T) {
	resp := &browser.Response{
		URL:    accountInfoURLs[0],
		Status: 500,
		Body:   loadFixture(t, "dashboard.json"),
	}
	if _, err := parseAccountList(resp); !errors.Is(err, errBadStatus) {
		t.Errorf("parseAccountList() error = %v, want %v", err, errBadStatus)
	}
}
