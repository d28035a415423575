// Command chasectl logs in to the brokerage and runs one read or order
// command against it.
//
// Usage:
//
//	chasectl [-config path] <command> [options]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"chaseinvest/internal/chase"
	"chaseinvest/internal/config"
	"chaseinvest/internal/database"
	"chaseinvest/internal/repository"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
	"chaseinvest/internal/util"
	"chaseinvest/internal/vault"
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: chasectl [-config path] <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  save-login  Store credentials in the vault (reads CHASE_USERNAME, CHASE_PASSWORD, CHASE_LAST_FOUR)\n")
	fmt.Fprintf(os.Stderr, "  forget      Delete stored credentials\n")
	fmt.Fprintf(os.Stderr, "  login       Log in and report the result\n")
	fmt.Fprintf(os.Stderr, "  accounts    List accounts\n")
	fmt.Fprintf(os.Stderr, "  holdings    Show positions (-account)\n")
	fmt.Fprintf(os.Stderr, "  quote       Show a quote (-account -symbol)\n")
	fmt.Fprintf(os.Stderr, "  orders      Show order statuses (-account)\n")
	fmt.Fprintf(os.Stderr, "  order       Preview an order, or place it with -submit\n")
	fmt.Fprintf(os.Stderr, "  sync        Store holdings of every account in the journal\n")
	fmt.Fprintf(os.Stderr, "  audit       Show recent audit entries (-limit -action)\n")
	fmt.Fprintf(os.Stderr, "\n")
}

// app is what every command runs against.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	vault  *vault.Vault
	audit  *services.AuditService
	repos  repos
	stdin  io.Reader
	stdout io.Writer
}

type repos struct {
	accounts *repository.AccountRepository
	holdings *repository.HoldingRepository
	history  *repository.SyncHistoryRepository
	orders   *repository.OrderRepository
}

func main() {
	configPath := flag.String("config", os.Getenv("CHASE_CONFIG"), "path to YAML config file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, cmd string, args []string) error {
	db, err := database.New(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.RunMigrations(); err != nil {
		return err
	}

	enc, err := vault.NewEncryptor(cfg.Storage.EncryptionSecret)
	if err != nil {
		return err
	}

	a := &app{
		cfg:   cfg,
		log:   logger,
		vault: vault.New(enc, repository.NewCredentialRepository(db)),
		audit: services.NewAuditService(db, logger),
		repos: repos{
			accounts: repository.NewAccountRepository(db),
			holdings: repository.NewHoldingRepository(db),
			history:  repository.NewSyncHistoryRepository(db),
			orders:   repository.NewOrderRepository(db),
		},
		stdin:  os.Stdin,
		stdout: os.Stdout,
	}

	switch cmd {
	case "save-login":
		return a.saveLogin()
	case "forget":
		return a.forget()
	case "audit":
		return a.auditLog(args)
	case "login", "accounts", "holdings", "quote", "orders", "order", "sync":
		return a.withClient(ctx, cmd, args)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// saveLogin stores the configured credentials under the vault profile.
func (a *app) saveLogin() error {
	creds := vault.Credentials{
		Username: a.cfg.Credentials.Username,
		Password: a.cfg.Credentials.Password,
		LastFour: a.cfg.Credentials.LastFour,
	}
	if err := a.vault.Save(a.cfg.VaultProfile(), creds); err != nil {
		return err
	}
	a.audit.LogAction(services.AuditCredentialsSaved, "vault", a.cfg.VaultProfile(), nil, services.SourceCLI, "", "")
	fmt.Fprintf(a.stdout, "credentials stored for profile %q\n", a.cfg.VaultProfile())
	return nil
}

func (a *app) forget() error {
	if err := a.vault.Forget(a.cfg.VaultProfile()); err != nil {
		return err
	}
	a.audit.LogAction(services.AuditCredentialsForgotten, "vault", a.cfg.VaultProfile(), nil, services.SourceCLI, "", "")
	fmt.Fprintf(a.stdout, "credentials removed for profile %q\n", a.cfg.VaultProfile())
	return nil
}

// auditLog prints recent audit entries, newest first.
func (a *app) auditLog(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	limit := fs.Int("limit", 20, "number of entries")
	action := fs.String("action", "", "only entries with this action")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var entries []*services.AuditEntry
	var err error
	if *action != "" {
		entries, err = a.audit.GetByAction(services.AuditAction(*action), *limit, 0)
	} else {
		entries, err = a.audit.GetRecent(*limit)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintln(a.stdout, services.FormatEntry(e))
	}
	return nil
}

// withClient opens the browser, logs in and dispatches cmd.
func (a *app) withClient(ctx context.Context, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	account := fs.String("account", "", "account id")
	symbol := fs.String("symbol", "", "ticker symbol")
	of := registerOrderFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := chase.OpenClient(ctx, a.cfg.BrowserOptions(), a.cfg.Orders.AcceptWarnings, a.log)
	if err != nil {
		return err
	}
	defer client.Close()

	svc := sync.NewService(client, a.repos.accounts, a.repos.holdings, a.repos.history, a.log)
	fixed := vault.Credentials{
		Username: a.cfg.Credentials.Username,
		Password: a.cfg.Credentials.Password,
		LastFour: a.cfg.Credentials.LastFour,
	}
	creds, err := a.vault.Source(a.cfg.VaultProfile(), fixed)(ctx)
	if err != nil {
		return err
	}
	if err := svc.Login(ctx, creds, promptCode(a.stdin, os.Stderr)); err != nil {
		a.audit.LogAction(services.AuditLoginFailed, "session", "", map[string]string{"error": err.Error()}, services.SourceCLI, "", "")
		return fmt.Errorf("login: %w", err)
	}
	a.audit.LogAction(services.AuditLoginStarted, "session", "", nil, services.SourceCLI, "", "")

	switch cmd {
	case "login":
		fmt.Fprintln(a.stdout, "logged in")
		return nil
	case "accounts":
		return a.accounts(ctx, client)
	case "holdings":
		return a.holdings(ctx, client, *account)
	case "quote":
		return a.quote(ctx, client, *account, *symbol)
	case "orders":
		return a.orderStatuses(ctx, client, *account)
	case "order":
		req, err := of.request(*account, *symbol, a.cfg.Orders.AfterHours)
		if err != nil {
			return err
		}
		return a.placeOrder(ctx, client, req)
	case "sync":
		result, err := svc.Run(ctx)
		if result != nil {
			a.audit.LogAction(services.AuditSyncRun, "sync", strconv.FormatInt(result.HistoryID, 10), result, services.SourceCLI, "", "")
			printJSON(a.stdout, result)
		}
		return err
	}
	return nil
}
