// Package handlers provides the HTTP handlers of the local brokerage API.
package handlers

import (
	"context"
	"log/slog"

	"chaseinvest/internal/chase"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
	"chaseinvest/internal/vault"
)

// Brokerage is the brokerage client the handlers drive. *chase.Client
// satisfies it.
type Brokerage interface {
	Login(ctx context.Context, username, password, lastFour string) (bool, error)
	SubmitCode(ctx context.Context, code string) error
	Authenticated() bool
	MFAPending() bool
	ListAccounts(ctx context.Context) (*chase.AccountList, error)
	Holdings(ctx context.Context, accountID string) (*chase.Holdings, error)
	Quote(ctx context.Context, accountID, symbol string) (*chase.Quote, error)
	PlaceOrder(ctx context.Context, req chase.OrderRequest) (*chase.OrderMessages, error)
	OrderStatuses(ctx context.Context, accountID string) (*chase.OrderStatusList, error)
}

// CredentialSource returns the logon details used when a login request
// carries none.
type CredentialSource func(ctx context.Context) (vault.Credentials, error)

// Dependencies holds all handler dependencies.
type Dependencies struct {
	Broker      Brokerage
	Credentials CredentialSource
	SyncService *sync.Service
	Audit       *services.AuditService
	Logger      *slog.Logger

	// Repositories
	AccountRepo     *repository.AccountRepository
	HoldingRepo     *repository.HoldingRepository
	QuoteRepo       *repository.QuoteRepository
	OrderRepo       *repository.OrderRepository
	SyncHistoryRepo *repository.SyncHistoryRepository

	// APIToken is embedded in the code-entry link when set.
	APIToken string
	// PublicURL is the base of the code-entry link. Empty means
	// http://ServerAddr.
	PublicURL string
	// ServerAddr is the configured listen address.
	ServerAddr string

	// AfterHours is the default for orders that do not say.
	AfterHours bool
}

// NewDependencies creates an empty Dependencies container.
// Use the builder methods to set what the routes need.
func NewDependencies(broker Brokerage) *Dependencies {
	return &Dependencies{Broker: broker, Logger: slog.Default()}
}

// WithCredentials sets the fallback credential source.
func (d *Dependencies) WithCredentials(src CredentialSource) *Dependencies {
	d.Credentials = src
	return d
}

// WithSyncService sets the sync service.
func (d *Dependencies) WithSyncService(s *sync.Service) *Dependencies {
	d.SyncService = s
	return d
}

// WithAudit sets the audit log. Without one, actions are not audited.
func (d *Dependencies) WithAudit(a *services.AuditService) *Dependencies {
	d.Audit = a
	return d
}

// WithLogger sets the logger.
func (d *Dependencies) WithLogger(l *slog.Logger) *Dependencies {
	if l != nil {
		d.Logger = l
	}
	return d
}

// WithRepositories sets the journal repositories.
func (d *Dependencies) WithRepositories(
	accounts *repository.AccountRepository,
	holdings *repository.HoldingRepository,
	quotes *repository.QuoteRepository,
	orders *repository.OrderRepository,
	history *repository.SyncHistoryRepository,
) *Dependencies {
	d.AccountRepo = accounts
	d.HoldingRepo = holdings
	d.QuoteRepo = quotes
	d.OrderRepo = orders
	d.SyncHistoryRepo = history
	return d
}

// WithCodeLink sets how the code-entry link is built.
func (d *Dependencies) WithCodeLink(publicURL, serverAddr, apiToken string) *Dependencies {
	d.PublicURL = publicURL
	d.ServerAddr = serverAddr
	d.APIToken = apiToken
	return d
}

// WithAfterHours sets the after-hours default for orders.
func (d *Dependencies) WithAfterHours(v bool) *Dependencies {
	d.AfterHours = v
	return d
}
