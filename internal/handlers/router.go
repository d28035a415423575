package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"chaseinvest/internal/middleware"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
)

// Handler serves the local API over one brokerage session.
type Handler struct {
	broker      Brokerage
	creds       CredentialSource
	syncService *sync.Service
	audit       *services.AuditService
	log         *slog.Logger

	accountRepo     *repository.AccountRepository
	holdingRepo     *repository.HoldingRepository
	quoteRepo       *repository.QuoteRepository
	orderRepo       *repository.OrderRepository
	syncHistoryRepo *repository.SyncHistoryRepository

	publicURL  string
	serverAddr string
	apiToken   string
	afterHours bool
}

// New creates a Handler from d.
func New(d *Dependencies) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		broker:          d.Broker,
		creds:           d.Credentials,
		syncService:     d.SyncService,
		audit:           d.Audit,
		log:             logger.With("component", "api"),
		accountRepo:     d.AccountRepo,
		holdingRepo:     d.HoldingRepo,
		quoteRepo:       d.QuoteRepo,
		orderRepo:       d.OrderRepo,
		syncHistoryRepo: d.SyncHistoryRepo,
		publicURL:       d.PublicURL,
		serverAddr:      d.ServerAddr,
		apiToken:        d.APIToken,
		afterHours:      d.AfterHours,
	}
}

// Routes builds the router. limiter applies to every route; the login,
// code and order routes share strict on top.
func (h *Handler) Routes(limiter, strict *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(h.log))
	r.Use(middleware.SecurityHeaders)
	r.Use(limiter.Limit)
	r.Use(middleware.NewTokenAuth(h.apiToken, "/health").RequireToken)

	r.Get("/health", h.Health)

	// Code entry, reached from the QR code on a phone
	r.Get("/mfa", h.CodePage)
	r.Get("/mfa/qr", h.MFAQRCode)

	r.Group(func(r chi.Router) {
		r.Use(strict.Limit)
		r.Post("/login", h.Login)
		r.Post("/login/code", h.SubmitCode)
		r.Post("/mfa", h.CodeForm)
		r.Post("/accounts/{id}/orders", h.PlaceOrder)
	})

	r.Get("/accounts", h.ListAccounts)
	r.Get("/accounts/stored", h.StoredAccounts)
	r.Get("/accounts/{id}", h.GetAccount)
	r.Get("/accounts/{id}/holdings", h.Holdings)
	r.Get("/accounts/{id}/holdings/{symbol}/history", h.HoldingHistory)
	r.Get("/accounts/{id}/quotes/{symbol}", h.Quote)
	r.Get("/accounts/{id}/orders", h.OrderStatuses)
	r.Get("/accounts/{id}/journal", h.OrderJournal)

	r.Get("/journal/{orderID}", h.JournalEntry)
	r.Get("/quotes/{symbol}", h.LatestQuote)

	r.Post("/sync", h.Sync)
	r.Get("/sync/history", h.SyncHistory)

	r.Get("/audit", h.AuditLog)

	return r
}
