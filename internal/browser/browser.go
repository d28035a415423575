// Package browser provides the page automation surface used to drive the
// brokerage website.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTimeout indicates a wait expired before the page reached the expected state.
	ErrTimeout = errors.New("timed out waiting for page")

	// ErrClosed indicates the browser has already been shut down.
	ErrClosed = errors.New("browser closed")
)

// Response is a network response captured while a page action ran.
type Response struct {
	URL    string
	Status int
	Body   []byte
}

// OK returns true for a 2xx status.
func (r *Response) OK() bool {
	return r.Status >= 200 && r.Status < 300
}

// Matcher decides whether a network response URL is the one being waited for.
type Matcher func(url string) bool

// URLPrefix matches responses whose URL starts with prefix.
func URLPrefix(prefix string) Matcher {
	return func(url string) bool {
		return strings.HasPrefix(url, prefix)
	}
}

// Page is a single browser tab. Selectors may be CSS or XPath (a selector
// starting with "/" is treated as XPath).
type Page interface {
	// Navigate loads url and waits for the document to be ready.
	Navigate(ctx context.Context, url string) error

	// Reload reloads the current document.
	Reload(ctx context.Context) error

	// URL returns the current location, including the fragment.
	URL(ctx context.Context) (string, error)

	// WaitVisible waits until sel is visible. It returns ErrTimeout when
	// timeout elapses first.
	WaitVisible(ctx context.Context, sel string, timeout time.Duration) error

	// WaitGone waits until sel is absent or hidden.
	WaitGone(ctx context.Context, sel string, timeout time.Duration) error

	// Click clicks the first node matching sel.
	Click(ctx context.Context, sel string) error

	// Type sends text one key at a time with a human-like delay.
	Type(ctx context.Context, sel, text string) error

	// SetValue replaces the value of an input.
	SetValue(ctx context.Context, sel, value string) error

	// PressEnter sends the Enter key to sel.
	PressEnter(ctx context.Context, sel string) error

	// Text returns the text content of sel once it is visible.
	Text(ctx context.Context, sel string, timeout time.Duration) (string, error)

	// Attribute returns an attribute of sel and whether it was present.
	Attribute(ctx context.Context, sel, name string) (string, bool, error)

	// Eval runs a JavaScript expression and decodes its result into out.
	// out may be nil.
	Eval(ctx context.Context, expr string, out any) error

	// Capture runs trigger and waits for a network response accepted by
	// match. The body is returned once the response has finished loading.
	Capture(ctx context.Context, match Matcher, timeout time.Duration, trigger func(ctx context.Context) error) (*Response, error)

	// Fidget scrolls and clicks somewhere harmless.
	Fidget(ctx context.Context) error

	// Close shuts the page and its browser down.
	Close() error
}

// IsXPath reports whether sel should be resolved as XPath.
func IsXPath(sel string) bool {
	return strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(")
}
