// Package sync pulls accounts and holdings from the brokerage into the local
// journal.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"chaseinvest/internal/chase"
	"chaseinvest/internal/models"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/vault"
)

var (
	// ErrRunning is returned when a sync is already in progress.
	ErrRunning = errors.New("sync already running")

	// ErrCodeRequired is returned when login needs a one-time code and no
	// code source was given.
	ErrCodeRequired = errors.New("one-time code required")
)

// Brokerage is the part of the brokerage client the sync service drives.
type Brokerage interface {
	Login(ctx context.Context, username, password, lastFour string) (bool, error)
	SubmitCode(ctx context.Context, code string) error
	Authenticated() bool
	ListAccounts(ctx context.Context) (*chase.AccountList, error)
	Holdings(ctx context.Context, accountID string) (*chase.Holdings, error)
}

// CodeSource supplies the one-time code after Login has requested one.
type CodeSource func(ctx context.Context) (string, error)

// Service orchestrates brokerage synchronization.
type Service struct {
	broker      Brokerage
	accountRepo *repository.AccountRepository
	holdingRepo *repository.HoldingRepository
	historyRepo *repository.SyncHistoryRepository
	log         *slog.Logger

	running atomic.Bool
}

// NewService creates a new sync service.
func NewService(
	broker Brokerage,
	accountRepo *repository.AccountRepository,
	holdingRepo *repository.HoldingRepository,
	historyRepo *repository.SyncHistoryRepository,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		broker:      broker,
		accountRepo: accountRepo,
		holdingRepo: holdingRepo,
		historyRepo: historyRepo,
		log:         logger.With("component", "sync"),
	}
}

// Result contains the result of a sync operation.
type Result struct {
	HistoryID       int64         `json:"history_id"`
	AccountsSynced  int           `json:"accounts_synced"`
	PositionsSynced int           `json:"positions_synced"`
	Skipped         int           `json:"skipped_positions"`
	Duration        time.Duration `json:"duration"`
	Errors          []string      `json:"errors,omitempty"`
}

// Login logs in with creds unless the session is already authenticated.
// When the site asks for a one-time code, code is consulted.
func (s *Service) Login(ctx context.Context, creds vault.Credentials, code CodeSource) error {
	if s.broker.Authenticated() {
		return nil
	}

	mfa, err := s.broker.Login(ctx, creds.Username, creds.Password, creds.LastFour)
	if err != nil {
		return err
	}
	if !mfa {
		return nil
	}
	if code == nil {
		return ErrCodeRequired
	}

	c, err := code(ctx)
	if err != nil {
		return fmt.Errorf("reading one-time code: %w", err)
	}
	return s.broker.SubmitCode(ctx, c)
}

// Run lists accounts and stores a holdings snapshot for each. A failure on
// one account is recorded and the others still sync.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunning
	}
	defer s.running.Store(false)

	start := time.Now()
	historyID, err := s.historyRepo.Start()
	if err != nil {
		return nil, fmt.Errorf("starting sync history: %w", err)
	}
	result := &Result{HistoryID: historyID}

	if !s.broker.Authenticated() {
		s.failSync(historyID, chase.ErrNotAuthenticated.Error())
		return nil, chase.ErrNotAuthenticated
	}

	list, err := s.broker.ListAccounts(ctx)
	if err != nil {
		s.failSync(historyID, fmt.Sprintf("listing accounts: %v", err))
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	for _, acct := range list.Accounts {
		if err := ctx.Err(); err != nil {
			s.failSync(historyID, err.Error())
			return nil, err
		}

		id := string(acct.ID)
		count, skipped, err := s.syncAccount(ctx, historyID, &acct)
		if err != nil {
			s.log.Error("account sync failed", "account", id, "error", err)
			result.Errors = append(result.Errors, fmt.Sprintf("account %s: %v", id, err))
			continue
		}
		result.AccountsSynced++
		result.PositionsSynced += count
		result.Skipped += skipped
	}

	if result.AccountsSynced == 0 && len(list.Accounts) > 0 {
		msg := strings.Join(result.Errors, "; ")
		s.failSync(historyID, msg)
		return result, fmt.Errorf("no account synced: %s", msg)
	}

	if err := s.historyRepo.Complete(historyID, result.AccountsSynced, result.PositionsSynced, strings.Join(result.Errors, "; ")); err != nil {
		s.log.Error("completing sync history", "error", err)
	}
	result.Duration = time.Since(start)

	s.log.Info("sync finished",
		"accounts", result.AccountsSynced,
		"positions", result.PositionsSynced,
		"skipped", result.Skipped,
		"duration", result.Duration)
	return result, nil
}

// syncAccount stores the account row and its holdings snapshot.
func (s *Service) syncAccount(ctx context.Context, historyID int64, acct *chase.Account) (stored, skipped int, err error) {
	id := string(acct.ID)
	if err := s.accountRepo.Upsert(&models.Account{
		AccountID:    id,
		Mask:         acct.Mask,
		Nickname:     acct.Nickname,
		DetailType:   acct.DetailType,
		AccountValue: acct.AccountValue.Float64(),
		IsIRA:        acct.IRA,
	}); err != nil {
		return 0, 0, fmt.Errorf("storing account: %w", err)
	}

	h, err := s.broker.Holdings(ctx, id)
	if err != nil {
		return 0, 0, err
	}

	summaries, sumErr := h.Summaries()
	if sumErr != nil {
		skipped = len(h.Positions) - len(summaries)
		s.log.Warn("positions skipped", "account", id, "count", skipped, "error", sumErr)
	}

	snapshots := Snapshots(id, h, summaries)
	for _, snap := range snapshots {
		snap.SyncID = &historyID
	}
	if err := s.holdingRepo.InsertSnapshot(snapshots); err != nil {
		return 0, skipped, fmt.Errorf("storing holdings: %w", err)
	}

	s.log.Info("account synced", "account", id, "mask", acct.Mask, "positions", len(snapshots), "value", h.TotalValue())
	return len(snapshots), skipped, nil
}

// Snapshots converts position summaries into journal rows captured now.
func Snapshots(accountID string, h *chase.Holdings, summaries []chase.PositionSummary) []*models.HoldingSnapshot {
	now := time.Now().UTC()
	var asOf *time.Time
	if !h.AsOf.IsZero() {
		t := h.AsOf.Time
		asOf = &t
	}

	out := make([]*models.HoldingSnapshot, 0, len(summaries))
	for _, sum := range summaries {
		out = append(out, &models.HoldingSnapshot{
			AccountID:   accountID,
			Kind:        sum.Kind.String(),
			Symbol:      sum.Symbol,
			Description: sum.Description,
			Quantity:    sum.Quantity,
			Value:       sum.Value,
			AsOf:        asOf,
			CapturedAt:  now,
		})
	}
	return out
}

// OrderRecord converts an order request and what its flow showed into a
// journal row. flowErr is the error PlaceOrder returned, if any.
func OrderRecord(req chase.OrderRequest, msgs *chase.OrderMessages, flowErr error) *models.OrderRecord {
	rec := &models.OrderRecord{
		AccountID:  req.AccountID,
		Symbol:     strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:       string(req.Side),
		PriceType:  string(req.PriceType),
		Duration:   string(req.Duration),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		DryRun:     req.DryRun,
		AfterHours: req.AfterHours,
	}
	if msgs != nil {
		rec.OrderInvalid = msgs.OrderInvalid
		rec.Warning = msgs.Warning
		rec.OrderPreview = msgs.OrderPreview
		rec.AfterHoursWarning = msgs.AfterHoursWarning
		rec.OrderConfirmation = msgs.OrderConfirmation
	}
	if flowErr != nil {
		rec.ErrorMessage = flowErr.Error()
	}
	return rec
}

// failSync marks a sync as failed.
func (s *Service) failSync(historyID int64, errorMsg string) {
	if err := s.historyRepo.Fail(historyID, errorMsg); err != nil {
		s.log.Error("recording sync failure", "error", err)
	}
}
