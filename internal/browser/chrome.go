package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"golang.org/x/time/rate"
)

const (
	// actionTimeout bounds single actions when the caller set no deadline.
	actionTimeout = 30 * time.Second
	pollInterval  = 100 * time.Millisecond
)

// Chrome is a Page backed by a local Chrome instance driven over the
// DevTools protocol.
type Chrome struct {
	opts    Options
	log     *slog.Logger
	limiter *rate.Limiter

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.Mutex
	captures map[*capture]struct{}
	closed   bool
}

type capture struct {
	match Matcher

	// Guarded by Chrome.mu.
	requestID network.RequestID
	url       string
	status    int

	done chan captureResult
	once sync.Once
}

type captureResult struct {
	resp *Response
	err  error
}

func (c *capture) finish(resp *Response, err error) {
	c.once.Do(func() {
		c.done <- captureResult{resp: resp, err: err}
	})
}

// NewChrome starts Chrome with opts and opens a tab with network events enabled.
func NewChrome(ctx context.Context, opts Options, logger *slog.Logger) (*Chrome, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "browser")

	userDataDir, err := opts.UserDataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving profile path: %w", err)
	}
	if userDataDir != "" {
		if err := os.MkdirAll(userDataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating profile directory: %w", err)
		}
	}

	interval := opts.NavigationInterval
	if interval <= 0 {
		interval = defaultNavigationInterval
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts.allocatorOptions(userDataDir)...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	c := &Chrome{
		opts:        opts,
		log:         logger,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		ctx:         tabCtx,
		cancel:      cancel,
		allocCancel: allocCancel,
		captures:    make(map[*capture]struct{}),
	}

	chromedp.ListenTarget(tabCtx, c.onEvent)

	if err := c.run(ctx, network.Enable()); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("starting browser: %w", err)
	}

	logger.Info("browser started", "headless", opts.Headless, "docker", opts.Docker, "profile", userDataDir)
	return c, nil
}

// run executes actions on the tab, bounded by the caller's context.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(actionTimeout)
	}
	runCtx, cancelDeadline := context.WithDeadline(runCtx, deadline)
	defer cancelDeadline()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Chrome) runWithin(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	err := c.run(ctx, actions...)
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func by(sel string) chromedp.QueryOption {
	if IsXPath(sel) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// Navigate implements Page.
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	c.log.Debug("navigate", "url", url)
	return c.run(ctx, chromedp.Navigate(url))
}

// Reload implements Page.
func (c *Chrome) Reload(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	return c.run(ctx, chromedp.Reload())
}

// URL implements Page.
func (c *Chrome) URL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// WaitVisible implements Page.
func (c *Chrome) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	return c.runWithin(ctx, timeout, chromedp.WaitVisible(sel, by(sel)))
}

// WaitGone implements Page. A node that never existed counts as gone.
func (c *Chrome) WaitGone(ctx context.Context, sel string, timeout time.Duration) error {
	expr := goneExpr(sel)
	deadline := time.Now().Add(timeout)
	for {
		var gone bool
		if err := c.run(ctx, chromedp.Evaluate(expr, &gone)); err != nil {
			return err
		}
		if gone {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Click implements Page.
func (c *Chrome) Click(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.Click(sel, by(sel), chromedp.NodeVisible))
}

// Type implements Page.
func (c *Chrome) Type(ctx context.Context, sel, text string) error {
	for _, r := range text {
		if err := c.run(ctx, chromedp.SendKeys(sel, string(r), by(sel))); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.keyDelay()):
		}
	}
	return nil
}

func (c *Chrome) keyDelay() time.Duration {
	lo, hi := c.opts.KeyDelayMin, c.opts.KeyDelayMax
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

// SetValue implements Page.
func (c *Chrome) SetValue(ctx context.Context, sel, value string) error {
	actions := []chromedp.Action{chromedp.Clear(sel, by(sel))}
	if value != "" {
		actions = append(actions, chromedp.SendKeys(sel, value, by(sel)))
	}
	return c.run(ctx, actions...)
}

// PressEnter implements Page.
func (c *Chrome) PressEnter(ctx context.Context, sel string) error {
	return c.run(ctx, chromedp.SendKeys(sel, kb.Enter, by(sel)))
}

// Text implements Page.
func (c *Chrome) Text(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	var text string
	err := c.runWithin(ctx, timeout,
		chromedp.WaitVisible(sel, by(sel)),
		chromedp.TextContent(sel, &text, by(sel)),
	)
	return text, err
}

// Attribute implements Page.
func (c *Chrome) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := c.run(ctx, chromedp.AttributeValue(sel, name, &value, &ok, by(sel)))
	return value, ok, err
}

// Eval implements Page. The expression must evaluate to a JSON value.
func (c *Chrome) Eval(ctx context.Context, expr string, out any) error {
	if out == nil {
		out = new(json.RawMessage)
	}
	return c.run(ctx, chromedp.Evaluate(expr, out))
}

// Fidget implements Page.
func (c *Chrome) Fidget(ctx context.Context) error {
	dy := 900 + rand.Intn(600)
	if rand.Intn(2) == 0 {
		dy = -dy
	}
	x := float64(rand.Intn(400))
	y := float64(rand.Intn(400))
	var ignored bool
	return c.run(ctx,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d), true", dy), &ignored),
		chromedp.MouseClickXY(x, y),
	)
}

// Capture implements Page.
func (c *Chrome) Capture(ctx context.Context, match Matcher, timeout time.Duration, trigger func(ctx context.Context) error) (*Response, error) {
	w := &capture{match: match, done: make(chan captureResult, 1)}

	c.mu.Lock()
	c.captures[w] = struct{}{}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.captures, w)
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := trigger(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}

	select {
	case res := <-w.done:
		return res.resp, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	}
}

func (c *Chrome) onEvent(ev any) {
	switch ev := ev.(type) {
	case *network.EventResponseReceived:
		if ev.Response == nil {
			return
		}
		c.mu.Lock()
		for w := range c.captures {
			if w.requestID == "" && w.match(ev.Response.URL) {
				w.requestID = ev.RequestID
				w.url = ev.Response.URL
				w.status = int(ev.Response.Status)
				break
			}
		}
		c.mu.Unlock()

	case *network.EventLoadingFinished:
		w := c.captureFor(ev.RequestID)
		if w == nil {
			return
		}
		// Commands cannot be issued from the listener goroutine.
		go c.fetchBody(w)

	case *network.EventLoadingFailed:
		if w := c.captureFor(ev.RequestID); w != nil {
			w.finish(nil, fmt.Errorf("loading %s failed: %s", w.url, ev.ErrorText))
		}
	}
}

func (c *Chrome) captureFor(id network.RequestID) *capture {
	c.mu.Lock()
	defer c.mu.Unlock()
	for w := range c.captures {
		if w.requestID == id {
			return w
		}
	}
	return nil
}

func (c *Chrome) fetchBody(w *capture) {
	c.mu.Lock()
	id, url, status := w.requestID, w.url, w.status
	c.mu.Unlock()

	var body []byte
	err := c.run(context.Background(), chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		body, err = network.GetResponseBody(id).Do(ctx)
		return err
	}))
	if err != nil {
		w.finish(nil, fmt.Errorf("reading response body for %s: %w", url, err))
		return
	}
	c.log.Debug("captured response", "url", url, "status", status, "bytes", len(body))
	w.finish(&Response{URL: url, Status: status, Body: body}, nil)
}

// Close implements Page.
func (c *Chrome) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := chromedp.Cancel(c.ctx)
	c.cancel()
	c.allocCancel()
	c.log.Info("browser closed")
	return err
}

func goneExpr(sel string) string {
	quoted, _ := json.Marshal(sel)
	if IsXPath(sel) {
		return fmt.Sprintf(`(() => {
			const el = document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
			return !el || el.offsetParent === null;
		})()`, quoted)
	}
	return fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		return !el || el.offsetParent === null;
	})()`, quoted)
}
