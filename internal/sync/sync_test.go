package sync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"chaseinvest/internal/chase"
	"chaseinvest/internal/database"
	"chaseinvest/internal/models"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/vault"
)

type fakeBroker struct {
	authenticated bool
	mfa           bool
	loginErr      error
	code          string

	accounts    *chase.AccountList
	accountsErr error
	holdings    map[string]*chase.Holdings
}

func (f *fakeBroker) Login(ctx context.Context, username, password, lastFour string) (bool, error) {
	if f.loginErr != nil {
		return false, f.loginErr
	}
	if !f.mfa {
		f.authenticated = true
	}
	return f.mfa, nil
}

func (f *fakeBroker) SubmitCode(ctx context.Context, code string) error {
	f.code = code
	f.authenticated = true
	return nil
}

func (f *fakeBroker) Authenticated() bool { return f.authenticated }

func (f *fakeBroker) ListAccounts(ctx context.Context) (*chase.AccountList, error) {
	return f.accounts, f.accountsErr
}

func (f *fakeBroker) Holdings(ctx context.Context, accountID string) (*chase.Holdings, error) {
	h, ok := f.holdings[accountID]
	if !ok {
		return nil, chase.ErrHoldingsUnavailable
	}
	return h, nil
}

func mustHoldings(t *testing.T, body string) *chase.Holdings {
	t.Helper()
	var h chase.Holdings
	if err := json.Unmarshal([]byte(body), &h); err != nil {
		t.Fatalf("decoding holdings: %v", err)
	}
	return &h
}

type testRepos struct {
	accounts *repository.AccountRepository
	holdings *repository.HoldingRepository
	history  *repository.SyncHistoryRepository
}

func newTestService(t *testing.T, broker Brokerage) (*Service, testRepos) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.RunMigrations(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repos := testRepos{
		accounts: repository.NewAccountRepository(db),
		holdings: repository.NewHoldingRepository(db),
		history:  repository.NewSyncHistoryRepository(db),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(broker, repos.accounts, repos.holdings, repos.history, logger), repos
}

const twoAccounts = `{
	"investmentSummary": {"accountValue": 3000},
	"accounts": [
		{"accountId": 111, "mask": "1111", "nickname": "Individual", "accountValue": 2000},
		{"accountId": "222", "mask": "2222", "nickname": "IRA", "accountValue": 1000, "ira": true}
	]
}`

func accountList(t *testing.T) *chase.AccountList {
	t.Helper()
	var l chase.AccountList
	if err := json.Unmarshal([]byte(twoAccounts), &l); err != nil {
		t.Fatalf("decoding accounts: %v", err)
	}
	return &l
}

func TestService_Run_StoresAccountsAndSnapshots(t *testing.T) {
	broker := &fakeBroker{
		authenticated: true,
		accounts:      accountList(t),
		holdings: map[string]*chase.Holdings{
			"111": mustHoldings(t, `{
				"asOfTimestamp": "2024-03-01T20:00:00.000Z",
				"positions": [
					{"instrumentLongName": "Cash and Sweep Funds", "marketValue": {"baseValueAmount": 100}},
					{"instrumentLongName": "APPLE INC", "assetCategoryName": "EQUITY", "marketValue": {"baseValueAmount": 1900},
					 "tradedUnitQuantity": 10, "positionComponents": [{"securityIdDetail": [{"symbolSecurityIdentifier": "AAPL"}]}]},
					{"instrumentLongName": "BOND", "assetCategoryName": "FIXED INCOME", "marketValue": {"baseValueAmount": 5}}
				]
			}`),
			"222": mustHoldings(t, `{"positions": []}`),
		},
	}
	svc, repos := newTestService(t, broker)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.AccountsSynced != 2 || result.PositionsSynced != 2 || result.Skipped != 1 {
		t.Errorf("Run() = %+v", result)
	}

	acct, err := repos.accounts.GetByID("222")
	if err != nil || acct == nil {
		t.Fatalf("GetByID() = %v, %v", acct, err)
	}
	if !acct.IsIRA || acct.Mask != "2222" {
		t.Errorf("stored account = %+v", acct)
	}

	snaps, err := repos.holdings.Latest("111")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("Latest() returned %d, want 2", len(snaps))
	}
	if snaps[0].Symbol != "AAPL" || snaps[0].Kind != "equity" || snaps[0].Quantity != 10 {
		t.Errorf("snapshot = %+v", snaps[0])
	}
	if snaps[0].SyncID == nil || *snaps[0].SyncID != result.HistoryID {
		t.Errorf("SyncID = %v, want %d", snaps[0].SyncID, result.HistoryID)
	}
	if snaps[0].AsOf == nil {
		t.Error("AsOf was not stored")
	}

	history, _ := repos.history.GetByID(result.HistoryID)
	if history.Status != models.SyncSuccess {
		t.Errorf("history status = %q, want %q", history.Status, models.SyncSuccess)
	}
}

func TestService_Run_PartialFailure(t *testing.T) {
	broker := &fakeBroker{
		authenticated: true,
		accounts:      accountList(t),
		holdings: map[string]*chase.Holdings{
			"111": mustHoldings(t, `{"positions": []}`),
		},
	}
	svc, repos := newTestService(t, broker)

	result, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v, want nil", err)
	}
	if result.AccountsSynced != 1 || len(result.Errors) != 1 {
		t.Errorf("Run() = %+v, want one synced and one error", result)
	}

	history, _ := repos.history.GetByID(result.HistoryID)
	if history.Status != models.SyncPartial || !strings.Contains(history.ErrorMessage, "222") {
		t.Errorf("history = %+v, want partial naming account 222", history)
	}
}

func TestService_Run_AllAccountsFail(t *testing.T) {
	broker := &fakeBroker{authenticated: true, accounts: accountList(t)}
	svc, repos := newTestService(t, broker)

	result, err := svc.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want error")
	}

	history, _ := repos.history.GetByID(result.HistoryID)
	if history.Status != models.SyncFailed {
		t.Errorf("history status = %q, want %q", history.Status, models.SyncFailed)
	}
}

func TestService_Run_NotAuthenticated(t *testing.T) {
	svc, repos := newTestService(t, &fakeBroker{})

	_, err := svc.Run(context.Background())
	if !errors.Is(err, chase.ErrNotAuthenticated) {
		t.Errorf("Run() error = %v, want %v", err, chase.ErrNotAuthenticated)
	}

	latest, _ := repos.history.GetLatest()
	if latest == nil || latest.Status != models.SyncFailed {
		t.Errorf("latest history = %+v, want failed", latest)
	}
}

func TestService_Run_AccountsUnavailable(t *testing.T) {
	broker := &fakeBroker{authenticated: true, accountsErr: chase.ErrAccountsUnavailable}
	svc, _ := newTestService(t, broker)

	if _, err := svc.Run(context.Background()); !errors.Is(err, chase.ErrAccountsUnavailable) {
		t.Errorf("Run() error = %v, want %v", err, chase.ErrAccountsUnavailable)
	}
}

func TestService_Run_RejectsConcurrentRun(t *testing.T) {
	svc, _ := newTestService(t, &fakeBroker{authenticated: true, accounts: &chase.AccountList{}})
	svc.running.Store(true)

	if _, err := svc.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Errorf("Run() error = %v, want %v", err, ErrRunning)
	}
}

func TestService_Login(t *testing.T) {
	creds := vault.Credentials{Username: "jdoe", Password: "hunter2", LastFour: "1234"}

	t.Run("no code needed", func(t *testing.T) {
		broker := &fakeBroker{}
		svc, _ := newTestService(t, broker)
		if err := svc.Login(context.Background(), creds, nil); err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if !broker.authenticated {
			t.Error("broker not authenticated")
		}
	})

	t.Run("code from source", func(t *testing.T) {
		broker := &fakeBroker{mfa: true}
		svc, _ := newTestService(t, broker)
		err := svc.Login(context.Background(), creds, func(ctx context.Context) (string, error) {
			return "123456", nil
		})
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if broker.code != "123456" {
			t.Errorf("submitted code = %q, want %q", broker.code, "123456")
		}
	})

	t.Run("code needed without source", func(t *testing.T) {
		svc, _ := newTestService(t, &fakeBroker{mfa: true})
		if err := svc.Login(context.Background(), creds, nil); !errors.Is(err, ErrCodeRequired) {
			t.Errorf("Login() error = %v, want %v", err, ErrCodeRequired)
		}
	})

	t.Run("already authenticated", func(t *testing.T) {
		broker := &fakeBroker{authenticated: true, loginErr: errors.New("should not be called")}
		svc, _ := newTestService(t, broker)
		if err := svc.Login(context.Background(), creds, nil); err != nil {
			t.Errorf("Login() error = %v, want nil", err)
		}
	})
}

func TestOrderRecord(t *testing.T) {
	req := chase.OrderRequest{
		AccountID:  "111",
		Symbol:     " aapl ",
		Quantity:   3,
		Side:       chase.SideBuy,
		PriceType:  chase.PriceLimit,
		Duration:   chase.DurationDay,
		LimitPrice: 150,
		DryRun:     true,
	}

	t.Run("preview", func(t *testing.T) {
		rec := OrderRecord(req, &chase.OrderMessages{OrderPreview: "Buy 3 AAPL"}, nil)
		if rec.Symbol != "AAPL" {
			t.Errorf("Symbol = %q, want AAPL", rec.Symbol)
		}
		if rec.OrderPreview != "Buy 3 AAPL" || rec.ErrorMessage != "" {
			t.Errorf("OrderRecord() = %+v, want preview and no error", rec)
		}
		if !rec.DryRun || rec.LimitPrice != 150 || rec.Side != string(chase.SideBuy) {
			t.Errorf("OrderRecord() lost request fields: %+v", rec)
		}
	})

	t.Run("flow error without messages", func(t *testing.T) {
		rec := OrderRecord(req, nil, errors.New("order page did not load"))
		if rec.ErrorMessage != "order page did not load" {
			t.Errorf("ErrorMessage = %q, want the flow error", rec.ErrorMessage)
		}
	})
}
