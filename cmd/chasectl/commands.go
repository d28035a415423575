package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"chaseinvest/internal/chase"
	"chaseinvest/internal/models"
	"chaseinvest/internal/services"
	"chaseinvest/internal/sync"
)

// promptCode reads the one-time code from in after prompting on out.
func promptCode(in io.Reader, out io.Writer) sync.CodeSource {
	return func(ctx context.Context) (string, error) {
		fmt.Fprint(out, "Enter the code sent to your phone: ")
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		code := strings.TrimSpace(line)
		if code == "" {
			return "", errors.New("no code entered")
		}
		return code, nil
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func requireAccount(account string) error {
	if account == "" {
		return errors.New("-account is required")
	}
	return nil
}

func (a *app) accounts(ctx context.Context, client *chase.Client) error {
	list, err := client.ListAccounts(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tMASK\tNICKNAME\tVALUE")
	for _, acct := range list.Accounts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", acct.ID, acct.Mask, acct.Nickname, acct.AccountValue.Float64())
		err := a.repos.accounts.Upsert(&models.Account{
			AccountID:    string(acct.ID),
			Mask:         acct.Mask,
			Nickname:     acct.Nickname,
			DetailType:   acct.DetailType,
			AccountValue: acct.AccountValue.Float64(),
			IsIRA:        acct.IRA,
		})
		if err != nil {
			a.log.Warn("storing account", "account", acct.ID, "error", err)
		}
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%.2f\n", list.Summary.AccountValue.Float64())
	return tw.Flush()
}

func (a *app) holdings(ctx context.Context, client *chase.Client, account string) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	h, err := client.Holdings(ctx, account)
	if err != nil {
		return err
	}

	summaries, sumErr := h.Summaries()
	if sumErr != nil {
		a.log.Warn("positions skipped", "error", sumErr)
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tSYMBOL\tQUANTITY\tVALUE\tDESCRIPTION")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%s\t%g\t%.2f\t%s\n", s.Kind, s.Symbol, s.Quantity, s.Value, s.Description)
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%.2f\t\n", h.TotalValue())
	return tw.Flush()
}

func (a *app) quote(ctx context.Context, client *chase.Client, account, symbol string) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	if symbol == "" {
		return errors.New("-symbol is required")
	}
	q, err := client.Quote(ctx, account, symbol)
	if err != nil {
		return err
	}
	printJSON(a.stdout, q)
	return nil
}

func (a *app) orderStatuses(ctx context.Context, client *chase.Client, account string) error {
	if err := requireAccount(account); err != nil {
		return err
	}
	list, err := client.OrderStatuses(ctx, account)
	if err != nil {
		return err
	}
	printJSON(a.stdout, list)
	return nil
}

// placeOrder runs the order flow, journals it and prints every screen's
// message. The messages are printed even when the flow fails.
func (a *app) placeOrder(ctx context.Context, client *chase.Client, req chase.OrderRequest) error {
	msgs, flowErr := client.PlaceOrder(ctx, req)

	rec := sync.OrderRecord(req, msgs, flowErr)
	if _, err := a.repos.orders.Create(rec); err != nil {
		a.log.Warn("journaling order", "error", err)
	}

	a.audit.LogAction(services.OrderAction(req.DryRun, flowErr), "order", rec.ID, map[string]any{
		"account":  rec.AccountID,
		"symbol":   rec.Symbol,
		"side":     rec.Side,
		"quantity": rec.Quantity,
	}, services.SourceCLI, "", "")

	for _, key := range []string{"ORDER INVALID", "WARNING", "ORDER PREVIEW", "AFTER HOURS WARNING", "ORDER CONFIRMATION"} {
		fmt.Fprintf(a.stdout, "%s: %s\n", key, msgs.Map()[key])
	}
	return flowErr
}

// orderFlags are the options of the order command.
type orderFlags struct {
	quantity   *int
	side       *string
	priceType  *string
	duration   *string
	limitPrice *float64
	stopPrice  *float64
	afterHours *bool
	submit     *bool
}

func registerOrderFlags(fs *flag.FlagSet) *orderFlags {
	return &orderFlags{
		quantity:   fs.Int("qty", 0, "number of shares"),
		side:       fs.String("side", "BUY", "BUY, SELL or SELL_ALL"),
		priceType:  fs.String("type", "MARKET", "LIMIT, MARKET, STOP or STOP_LIMIT"),
		duration:   fs.String("duration", "DAY", "DAY, GTC, ON_THE_OPEN, ON_THE_CLOSE or IOC"),
		limitPrice: fs.Float64("limit", 0, "limit price"),
		stopPrice:  fs.Float64("stop", 0, "stop price"),
		afterHours: fs.Bool("after-hours", false, "accept the after-hours warning"),
		submit:     fs.Bool("submit", false, "place the order instead of stopping at the preview"),
	}
}

// request builds the order. Without -submit it is a dry run.
func (f *orderFlags) request(account, symbol string, afterHours bool) (chase.OrderRequest, error) {
	side, err := chase.ParseOrderSide(*f.side)
	if err != nil {
		return chase.OrderRequest{}, err
	}
	price, err := chase.ParsePriceType(*f.priceType)
	if err != nil {
		return chase.OrderRequest{}, err
	}
	dur, err := chase.ParseDuration(*f.duration)
	if err != nil {
		return chase.OrderRequest{}, err
	}

	req := chase.OrderRequest{
		AccountID:  account,
		Symbol:     symbol,
		Quantity:   *f.quantity,
		Side:       side,
		PriceType:  price,
		Duration:   dur,
		LimitPrice: *f.limitPrice,
		StopPrice:  *f.stopPrice,
		AfterHours: afterHours || *f.afterHours,
		DryRun:     !*f.submit,
	}
	return req, req.Validate()
}
