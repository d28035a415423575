package chase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chaseinvest/internal/browser"
)

// Logon and MFA page selectors.
const (
	selUsername      = "#userId-input-field-input"
	selPassword      = "#password-input-field-input"
	selSignIn        = "#signin-button"
	selOptionsList   = "#optionsList"
	selApproveText   = "//*[contains(text(), 'approve')]"
	selRadioGroup    = "mds-radio-group"
	selNextContent   = "#next-content"
	selOTPInput      = "#otpInput"
	selLegacyMenu    = "#header-simplerAuth-dropdownoptions-styledselect"
	selLegacySubmit  = "button[type=\"submit\"]"
	selLegacyOTP     = "#otpcode_input-input-field"
	selLegacyPass    = "#password_input-input-field"
	selOptOutSkip    = "//button[contains(., 'Skip this step next time')]"
	selOptOutSave    = "//button[contains(., 'Save and go to account')]"
	radioButtonsAttr = "radio-buttons"
)

// chooseContactExpr clicks the text-message or push option in the MFA
// chooser, looking through its shadow root too, and returns the chosen label.
const chooseContactExpr = `(() => {
	const root = document.querySelector('#optionsList');
	if (!root) return '';
	const nodes = [...root.querySelectorAll('*')];
	if (root.shadowRoot) nodes.push(...root.shadowRoot.querySelectorAll('*'));
	for (const el of nodes) {
		const label = el.getAttribute('label') || '';
		if (label.includes('Get a text') || label.includes('push notification')) {
			el.click();
			return label;
		}
	}
	return '';
})()`

const selectRadioExpr = `(() => {
	const el = document.querySelector('mds-radio-group');
	el.setAttribute('selected-index', '%d');
	el.dispatchEvent(new Event('change', { bubbles: true }));
	return true;
})()`

// Timing holds the waits used during login. The defaults follow the pace of
// the site; tests shrink them.
type Timing struct {
	Settle         time.Duration
	FieldTimeout   time.Duration
	ChooserTimeout time.Duration
	ShortTimeout   time.Duration
	PushApproval   time.Duration
	Landing        time.Duration
	Poll           time.Duration
}

// DefaultTiming returns the production login timings.
func DefaultTiming() Timing {
	return Timing{
		Settle:         2 * time.Second,
		FieldTimeout:   30 * time.Second,
		ChooserTimeout: 15 * time.Second,
		ShortTimeout:   5 * time.Second,
		PushApproval:   120 * time.Second,
		Landing:        60 * time.Second,
		Poll:           time.Second,
	}
}

// Session owns the browser page and its authenticated state. All page access
// goes through the session so one page is never driven by two callers.
type Session struct {
	page   browser.Page
	log    *slog.Logger
	timing Timing

	mu            sync.Mutex
	password      string
	mfaPending    bool
	authenticated bool
}

// NewSession wraps an existing page.
func NewSession(page browser.Page, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		page:   page,
		log:    logger.With("component", "session"),
		timing: DefaultTiming(),
	}
}

// Open starts a browser with opts and returns a session over it.
func Open(ctx context.Context, opts browser.Options, logger *slog.Logger) (*Session, error) {
	page, err := browser.NewChrome(ctx, opts, logger)
	if err != nil {
		return nil, err
	}
	return NewSession(page, logger), nil
}

// SetTiming replaces the login timings.
func (s *Session) SetTiming(t Timing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timing = t
}

// Authenticated reports whether login has completed.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

// MFAPending reports whether a code is expected via SubmitCode.
func (s *Session) MFAPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mfaPending
}

// Close shuts the browser down.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated = false
	s.mfaPending = false
	return s.page.Close()
}

// withPage runs fn with exclusive use of an authenticated page.
func (s *Session) withPage(fn func(page browser.Page) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated {
		return ErrNotAuthenticated
	}
	return fn(s.page)
}

// Login submits credentials. It returns true when a one-time code has been
// sent and must be passed to SubmitCode, false when the dashboard loaded
// (including after a push approval). lastFour selects the phone number the
// code is sent to.
func (s *Session) Login(ctx context.Context, username, password, lastFour string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.authenticated = false
	s.mfaPending = false
	s.password = password

	mfa, err := s.login(ctx, username, password, lastFour)
	if err != nil {
		s.log.Error("login failed", "error", err)
		return false, fmt.Errorf("first step of login: %w", err)
	}

	if mfa {
		s.mfaPending = true
		s.log.Info("one-time code requested", "phone", "xxx-xxx-"+lastFour)
	} else {
		s.authenticated = true
		s.log.Info("logged in")
	}
	return mfa, nil
}

func (s *Session) login(ctx context.Context, username, password, lastFour string) (bool, error) {
	p := s.page
	t := s.timing

	if err := p.Navigate(ctx, loginPage); err != nil {
		return false, fmt.Errorf("opening logon page: %w", err)
	}
	if err := sleep(ctx, t.Settle); err != nil {
		return false, err
	}

	if err := p.WaitVisible(ctx, selUsername, t.FieldTimeout); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLoginFieldsMissing, err)
	}
	if err := p.WaitVisible(ctx, selPassword, t.FieldTimeout); err != nil {
		return false, fmt.Errorf("%w: %v", ErrLoginFieldsMissing, err)
	}

	s.fidget(ctx)
	if err := p.Type(ctx, selUsername, username); err != nil {
		return false, fmt.Errorf("typing username: %w", err)
	}
	s.fidget(ctx)
	if err := p.Type(ctx, selPassword, password); err != nil {
		return false, fmt.Errorf("typing password: %w", err)
	}
	s.fidget(ctx)

	if err := p.WaitVisible(ctx, selSignIn, t.ShortTimeout); err != nil {
		return false, fmt.Errorf("finding sign-in button: %w", err)
	}
	if err := p.Click(ctx, selSignIn); err != nil {
		return false, fmt.Errorf("clicking sign-in: %w", err)
	}
	if err := sleep(ctx, t.Settle); err != nil {
		return false, err
	}

	if s.onLanding(ctx) {
		return false, nil
	}

	if err := p.WaitVisible(ctx, selOptionsList, t.ChooserTimeout); err == nil {
		handled, mfa, err := s.contactChooser(ctx, lastFour)
		if err != nil {
			return false, err
		}
		if handled {
			return mfa, nil
		}
	} else if err := p.WaitVisible(ctx, selLegacyMenu, t.ShortTimeout); err == nil {
		if err := s.legacyChooser(ctx, lastFour); err != nil {
			return false, err
		}
		return true, nil
	}

	if err := s.skipOptOut(ctx); err != nil {
		return false, err
	}

	if s.onLanding(ctx) {
		return false, nil
	}
	return false, ErrUnknownPageState
}

// contactChooser drives the current MFA chooser. handled is false when
// neither the push nor the text flow appeared.
func (s *Session) contactChooser(ctx context.Context, lastFour string) (handled, mfa bool, err error) {
	p := s.page
	t := s.timing

	var label string
	if err := p.Eval(ctx, chooseContactExpr, &label); err != nil {
		return false, false, fmt.Errorf("choosing contact method: %w", err)
	}
	s.log.Debug("contact method chosen", "label", label)
	if err := sleep(ctx, t.Poll); err != nil {
		return false, false, err
	}

	if err := p.WaitVisible(ctx, selApproveText, 2*time.Second); err == nil {
		s.log.Warn("approve the sign-in from the phone app", "timeout", t.PushApproval)
		if s.waitLanding(ctx, t.PushApproval) {
			return true, false, nil
		}
		if err := ctx.Err(); err != nil {
			return false, false, err
		}
	}

	if err := p.WaitVisible(ctx, selRadioGroup, t.ChooserTimeout); err != nil {
		return false, false, nil
	}
	if err := s.selectPhone(ctx, lastFour); err != nil {
		return false, false, err
	}
	if err := p.WaitVisible(ctx, selNextContent, t.ShortTimeout); err != nil {
		return false, false, fmt.Errorf("finding next button: %w", err)
	}
	if err := p.Click(ctx, selNextContent); err != nil {
		return false, false, fmt.Errorf("clicking next: %w", err)
	}
	return true, true, nil
}

type radioButton struct {
	Label string `json:"label"`
}

// selectPhone picks the radio button whose label ends in lastFour. A missing
// match leaves the site's default selection.
func (s *Session) selectPhone(ctx context.Context, lastFour string) error {
	raw, ok, err := s.page.Attribute(ctx, selRadioGroup, radioButtonsAttr)
	if err != nil {
		return fmt.Errorf("reading phone options: %w", err)
	}
	if !ok || raw == "" {
		return nil
	}

	var buttons []radioButton
	if err := json.Unmarshal([]byte(raw), &buttons); err != nil {
		return fmt.Errorf("decoding phone options: %w", err)
	}

	want := "xxx-xxx-" + lastFour
	for i, b := range buttons {
		if strings.Contains(b.Label, want) {
			if err := s.page.Eval(ctx, fmt.Sprintf(selectRadioExpr, i), nil); err != nil {
				return fmt.Errorf("selecting phone option: %w", err)
			}
			s.log.Info("selected phone option", "label", b.Label)
			return sleep(ctx, s.timing.Poll/2)
		}
	}
	s.log.Warn("no phone option matched", "last_four", lastFour)
	return nil
}

func (s *Session) legacyChooser(ctx context.Context, lastFour string) error {
	p := s.page
	if err := p.Click(ctx, selLegacyMenu); err != nil {
		return fmt.Errorf("opening contact menu: %w", err)
	}
	option := fmt.Sprintf("//li[@role='presentation'][contains(., '%s')]", lastFour)
	if err := p.WaitVisible(ctx, option, s.timing.ShortTimeout); err == nil {
		if err := p.Click(ctx, option); err != nil {
			return fmt.Errorf("choosing phone: %w", err)
		}
	}
	if err := p.WaitVisible(ctx, selLegacySubmit, s.timing.ShortTimeout); err != nil {
		return fmt.Errorf("finding submit button: %w", err)
	}
	return p.Click(ctx, selLegacySubmit)
}

// SubmitCode completes login with the one-time code sent by Login.
func (s *Session) SubmitCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.mfaPending {
		return ErrNoMFAPending
	}

	if err := s.submitCode(ctx, strings.TrimSpace(code)); err != nil {
		s.log.Error("code submission failed", "error", err)
		if errors.Is(err, ErrLandingTimeout) {
			// The page state is unknown; a new code needs a fresh Login.
			s.mfaPending = false
			s.password = ""
		}
		return err
	}
	s.mfaPending = false
	s.authenticated = true
	s.log.Info("logged in")
	return nil
}

func (s *Session) submitCode(ctx context.Context, code string) error {
	p := s.page
	t := s.timing

	if err := sleep(ctx, t.Settle); err != nil {
		return err
	}

	switch {
	case p.WaitVisible(ctx, selOTPInput, t.ChooserTimeout) == nil:
		if err := p.Type(ctx, selOTPInput, code); err != nil {
			return fmt.Errorf("entering code: %w", err)
		}
		if err := p.Click(ctx, selNextContent); err != nil {
			return fmt.Errorf("clicking next: %w", err)
		}
	case p.WaitVisible(ctx, selLegacyOTP, t.ChooserTimeout) == nil:
		if err := p.Type(ctx, selLegacyOTP, code); err != nil {
			return fmt.Errorf("entering code: %w", err)
		}
		if err := p.Type(ctx, selLegacyPass, s.password); err != nil {
			return fmt.Errorf("re-entering password: %w", err)
		}
		if err := p.Click(ctx, selLegacySubmit); err != nil {
			return fmt.Errorf("submitting code: %w", err)
		}
	default:
		s.log.Warn("no code entry field found")
	}

	if err := sleep(ctx, t.Settle); err != nil {
		return err
	}
	if err := s.skipOptOut(ctx); err != nil {
		return err
	}

	if !s.waitLanding(ctx, t.Landing) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w after %s", ErrLandingTimeout, t.Landing)
	}
	return nil
}

// skipOptOut dismisses the "verify this device" opt-out page when shown.
func (s *Session) skipOptOut(ctx context.Context) error {
	p := s.page
	if err := p.WaitVisible(ctx, selOptOutSkip, s.timing.Poll); err != nil {
		return nil
	}
	if err := p.Click(ctx, selOptOutSkip); err != nil {
		return fmt.Errorf("skipping device verification: %w", err)
	}
	if err := p.WaitVisible(ctx, selOptOutSave, s.timing.ShortTimeout); err != nil {
		return fmt.Errorf("finding save button: %w", err)
	}
	return p.Click(ctx, selOptOutSave)
}

func (s *Session) onLanding(ctx context.Context) bool {
	u, err := s.page.URL(ctx)
	return err == nil && strings.Contains(u, landingPage)
}

// waitLanding polls until the dashboard loads or timeout elapses.
func (s *Session) waitLanding(ctx context.Context, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.onLanding(ctx) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		if sleep(ctx, s.timing.Poll) != nil {
			return false
		}
	}
}

func (s *Session) fidget(ctx context.Context) {
	if err := s.page.Fidget(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Debug("fidget failed", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
