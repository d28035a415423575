// Package browsertest provides a scripted browser.Page for tests.
//
// A Page holds a current URL, a set of visible selectors with their text and
// attributes, and canned network responses. Hooks fire on navigation and
// clicks so a test can model the site's page transitions.
package browsertest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"chaseinvest/internal/browser"
)

// Page is a scripted browser.Page. The zero value is not usable; use New.
type Page struct {
	mu sync.Mutex

	url     string
	visible map[string]bool
	texts   map[string]string
	attrs   map[string]map[string]string
	values  map[string]string

	responses map[string]*browser.Response

	onNavigate []func(p *Page, url string)
	onClick    map[string]func(p *Page)
	onEval     func(p *Page, expr string) (any, error)

	// Recorded interactions.
	Navigations []string
	Clicks      []string
	Typed       map[string]string
	Evals       []string
	Reloads     int
	Closed      bool
}

// New returns an empty page at about:blank.
func New() *Page {
	return &Page{
		url:       "about:blank",
		visible:   make(map[string]bool),
		texts:     make(map[string]string),
		attrs:     make(map[string]map[string]string),
		values:    make(map[string]string),
		responses: make(map[string]*browser.Response),
		onClick:   make(map[string]func(p *Page)),
		Typed:     make(map[string]string),
	}
}

// SetURL moves the page to url without firing navigation hooks.
func (p *Page) SetURL(url string) {
	p.url = url
}

// Show marks selectors as visible.
func (p *Page) Show(sels ...string) {
	for _, s := range sels {
		p.visible[s] = true
	}
}

// Hide marks selectors as not visible.
func (p *Page) Hide(sels ...string) {
	for _, s := range sels {
		delete(p.visible, s)
	}
}

// SetText makes sel visible with the given text content.
func (p *Page) SetText(sel, text string) {
	p.visible[sel] = true
	p.texts[sel] = text
}

// SetAttr sets an attribute on sel.
func (p *Page) SetAttr(sel, name, value string) {
	if p.attrs[sel] == nil {
		p.attrs[sel] = make(map[string]string)
	}
	p.attrs[sel][name] = value
}

// Value returns the last value set on sel.
func (p *Page) Value(sel string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[sel]
}

// Respond registers a response served to Capture calls whose matcher accepts url.
func (p *Page) Respond(url string, status int, body []byte) {
	p.responses[url] = &browser.Response{URL: url, Status: status, Body: body}
}

// OnNavigate registers a hook run after every navigation or reload.
func (p *Page) OnNavigate(fn func(p *Page, url string)) {
	p.onNavigate = append(p.onNavigate, fn)
}

// OnClick registers a hook run when sel is clicked.
func (p *Page) OnClick(sel string, fn func(p *Page)) {
	p.onClick[sel] = fn
}

// OnEval sets the handler for Eval. Its result is JSON-encoded into out.
func (p *Page) OnEval(fn func(p *Page, expr string) (any, error)) {
	p.onEval = fn
}

// Clicked reports whether sel was clicked at least once.
func (p *Page) Clicked(sel string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.Clicks {
		if c == sel {
			return true
		}
	}
	return false
}

// Navigate implements browser.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.url = url
	p.Navigations = append(p.Navigations, url)
	hooks := p.onNavigate
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p, url)
	}
	return ctx.Err()
}

// Reload implements browser.Page.
func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	p.Reloads++
	url := p.url
	hooks := p.onNavigate
	p.mu.Unlock()
	for _, fn := range hooks {
		fn(p, url)
	}
	return ctx.Err()
}

// URL implements browser.Page.
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, ctx.Err()
}

// WaitVisible implements browser.Page. It never sleeps.
func (p *Page) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible[sel] {
		return nil
	}
	return browser.ErrTimeout
}

// WaitGone implements browser.Page.
func (p *Page) WaitGone(ctx context.Context, sel string, timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.visible[sel] {
		return browser.ErrTimeout
	}
	return nil
}

// Click implements browser.Page.
func (p *Page) Click(ctx context.Context, sel string) error {
	p.mu.Lock()
	if !p.visible[sel] {
		p.mu.Unlock()
		return fmt.Errorf("click %q: %w", sel, browser.ErrTimeout)
	}
	p.Clicks = append(p.Clicks, sel)
	hook := p.onClick[sel]
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

// Type implements browser.Page.
func (p *Page) Type(ctx context.Context, sel, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[sel] {
		return fmt.Errorf("type into %q: %w", sel, browser.ErrTimeout)
	}
	p.Typed[sel] += text
	p.values[sel] += text
	return nil
}

// SetValue implements browser.Page.
func (p *Page) SetValue(ctx context.Context, sel, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[sel] {
		return fmt.Errorf("set value of %q: %w", sel, browser.ErrTimeout)
	}
	p.values[sel] = value
	return nil
}

// PressEnter implements browser.Page.
func (p *Page) PressEnter(ctx context.Context, sel string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[sel] {
		return fmt.Errorf("press enter in %q: %w", sel, browser.ErrTimeout)
	}
	return nil
}

// Text implements browser.Page.
func (p *Page) Text(ctx context.Context, sel string, timeout time.Duration) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.visible[sel] {
		return "", browser.ErrTimeout
	}
	return p.texts[sel], nil
}

// Attribute implements browser.Page.
func (p *Page) Attribute(ctx context.Context, sel, name string) (string, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.attrs[sel][name]
	return v, ok, nil
}

// Eval implements browser.Page.
func (p *Page) Eval(ctx context.Context, expr string, out any) error {
	p.mu.Lock()
	p.Evals = append(p.Evals, expr)
	fn := p.onEval
	p.mu.Unlock()

	var result any = true
	if fn != nil {
		var err error
		if result, err = fn(p, expr); err != nil {
			return err
		}
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Capture implements browser.Page. The trigger runs first so navigation
// hooks can register responses.
func (p *Page) Capture(ctx context.Context, match browser.Matcher, timeout time.Duration, trigger func(ctx context.Context) error) (*browser.Response, error) {
	if err := trigger(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, resp := range p.responses {
		if match(url) {
			return resp, nil
		}
	}
	return nil, browser.ErrTimeout
}

// Fidget implements browser.Page.
func (p *Page) Fidget(ctx context.Context) error {
	return nil
}

// Close implements browser.Page.
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// HasEval reports whether any evaluated expression contains substr.
func (p *Page) HasEval(substr string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.Evals {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}
