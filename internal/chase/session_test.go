package chase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chaseinvest/internal/browser"
	"chaseinvest/internal/browser/browsertest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(page browser.Page) *Session {
	s := NewSession(page, discardLogger())
	s.SetTiming(Timing{})
	return s
}

// authedSession returns a session that skips login.
func authedSession(page browser.Page) *Session {
	s := newTestSession(page)
	s.authenticated = true
	return s
}

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %s: %v", name, err)
	}
	return data
}

// logonPage returns a page showing the logon form. signIn runs when the
// sign-in button is clicked.
func logonPage(signIn func(p *browsertest.Page)) *browsertest.Page {
	p := browsertest.New()
	p.Show(selUsername, selPassword, selSignIn)
	p.OnClick(selSignIn, signIn)
	return p
}

func TestSession_Login_NoMFA_ReturnsFalse(t *testing.T) {
	page := logonPage(func(p *browsertest.Page) {
		p.SetURL(landingPage)
	})
	s := newTestSession(page)

	mfa, err := s.Login(context.Background(), "jdoe", "hunter2", "1234")
	if err != nil {
		t.Fatalf("Login() error = %v, want nil", err)
	}
	if mfa {
		t.Error("Login() = true, want false")
	}
	if !s.Authenticated() {
		t.Error("Authenticated() = false after login")
	}
	if page.Typed[selUsername] != "jdoe" {
		t.Errorf("username = %q, want %q", page.Typed[selUsername], "jdoe")
	}
	if page.Typed[selPassword] != "hunter2" {
		t.Errorf("password = %q, want %q", page.Typed[selPassword], "hunter2")
	}
	if len(page.Navigations) == 0 || page.Navigations[0] != loginPage {
		t.Errorf("first navigation = %v, want logon page", page.Navigations)
	}
}

func textChooserPage() *browsertest.Page {
	page := logonPage(func(p *browsertest.Page) {
		p.Show(selOptionsList)
	})
	page.SetAttr(selRadioGroup, radioButtonsAttr, `[{"label":"xxx-xxx-1111"},{"label":"xxx-xxx-1234"}]`)
	page.OnEval(func(p *browsertest.Page, expr string) (any, error) {
		if expr == chooseContactExpr {
			p.Show(selRadioGroup, selNextContent)
			return "Get a text. We'll text a one-time code to your phone.", nil
		}
		return true, nil
	})
	return page
}

func TestSession_Login_TextMFA_SelectsPhone(t *testing.T) {
	page := textChooserPage()
	s := newTestSession(page)

	mfa, err := s.Login(context.Background(), "jdoe", "hunter2", "1234")
	if err != nil {
		t.Fatalf("Login() error = %v, want nil", err)
	}
	if !mfa {
		t.Fatal("Login() = false, want true")
	}
	if !s.MFAPending() {
		t.Error("MFAPending() = false, want true")
	}
	if s.Authenticated() {
		t.Error("Authenticated() = true before code submission")
	}
	if !page.HasEval("'1'") {
		t.Error("second phone option was not selected")
	}
	if !page.Clicked(selNextContent) {
		t.Error("next button was not clicked")
	}
}

func TestSession_SubmitCode_CompletesLogin(t *testing.T) {
	page := textChooserPage()
	s := newTestSession(page)

	if _, err := s.Login(context.Background(), "jdoe", "hunter2", "1234"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	page.Show(selOTPInput)
	page.OnClick(selNextContent, func(p *browsertest.Page) {
		p.SetURL(landingPage)
	})

	if err := s.SubmitCode(context.Background(), " 123456 "); err != nil {
		t.Fatalf("SubmitCode() error = %v, want nil", err)
	}
	if page.Typed[selOTPInput] != "123456" {
		t.Errorf("code = %q, want %q", page.Typed[selOTPInput], "123456")
	}
	if !s.Authenticated() {
		t.Error("Authenticated() = false after code submission")
	}
	if s.MFAPending() {
		t.Error("MFAPending() = true after code submission")
	}
}

func TestSession_SubmitCode_SkipsOptOutPage(t *testing.T) {
	page := textChooserPage()
	s := newTestSession(page)

	if _, err := s.Login(context.Background(), "jdoe", "hunter2", "1234"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	page.Show(selOTPInput)
	page.OnClick(selNextContent, func(p *browsertest.Page) {
		p.Show(selOptOutSkip)
	})
	page.OnClick(selOptOutSkip, func(p *browsertest.Page) {
		p.Show(selOptOutSave)
	})
	page.OnClick(selOptOutSave, func(p *browsertest.Page) {
		p.SetURL(landingPage)
	})

	if err := s.SubmitCode(context.Background(), "123456"); err != nil {
		t.Fatalf("SubmitCode() error = %v, want nil", err)
	}
	if !page.Clicked(selOptOutSave) {
		t.Error("opt-out page was not dismissed")
	}
}

func TestSession_SubmitCode_NoLanding_ReturnsTimeout(t *testing.T) {
	page := textChooserPage()
	s := newTestSession(page)

	if _, err := s.Login(context.Background(), "jdoe", "hunter2", "1234"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	page.Show(selOTPInput)

	err := s.SubmitCode(context.Background(), "000000")
	if !errors.Is(err, ErrLandingTimeout) {
		t.Errorf("SubmitCode() error = %v, want %v", err, ErrLandingTimeout)
	}
	if s.Authenticated() {
		t.Error("Authenticated() = true after failed code submission")
	}
	if s.MFAPending() {
		t.Error("MFAPending() = true after landing timeout, want a fresh Login required")
	}
	if page.Closed {
		t.Error("page closed after failed code submission, want it left open for a retry")
	}
	if err := s.SubmitCode(context.Background(), "000000"); !errors.Is(err, ErrNoMFAPending) {
		t.Errorf("second SubmitCode() error = %v, want %v", err, ErrNoMFAPending)
	}
}

func TestSession_SubmitCode_WithoutLogin_ReturnsError(t *testing.T) {
	s := newTestSession(browsertest.New())

	err := s.SubmitCode(context.Background(), "123456")
	if !errors.Is(err, ErrNoMFAPending) {
		t.Errorf("SubmitCode() error = %v, want %v", err, ErrNoMFAPending)
	}
}

func TestSession_Login_PushApproval_ReturnsFalse(t *testing.T) {
	page := logonPage(func(p *browsertest.Page) {
		p.Show(selOptionsList)
	})
	page.OnEval(func(p *browsertest.Page, expr string) (any, error) {
		if expr == chooseContactExpr {
			p.Show(selApproveText)
			// The user approves on the phone immediately.
			p.SetURL(landingPage)
			return "Get a push notification", nil
		}
		return true, nil
	})
	s := newTestSession(page)

	mfa, err := s.Login(context.Background(), "jdoe", "hunter2", "1234")
	if err != nil {
		t.Fatalf("Login() error = %v, want nil", err)
	}
	if mfa {
		t.Error("Login() = true, want false after push approval")
	}
	if !s.Authenticated() {
		t.Error("Authenticated() = false after push approval")
	}
}

func TestSession_Login_LegacyChooser(t *testing.T) {
	option := "//li[@role='presentation'][contains(., '1234')]"
	page := logonPage(func(p *browsertest.Page) {
		p.Show(selLegacyMenu)
	})
	page.OnClick(selLegacyMenu, func(p *browsertest.Page) {
		p.Show(option, selLegacySubmit)
	})
	s := newTestSession(page)

	mfa, err := s.Login(context.Background(), "jdoe", "hunter2", "1234")
	if err != nil {
		t.Fatalf("Login() error = %v, want nil", err)
	}
	if !mfa {
		t.Fatal("Login() = false, want true")
	}
	if !page.Clicked(option) {
		t.Error("phone option was not chosen")
	}

	page.Show(selLegacyOTP, selLegacyPass)
	page.OnClick(selLegacySubmit, func(p *browsertest.Page) {
		p.SetURL(landingPage)
	})
	if err := s.SubmitCode(context.Background(), "654321"); err != nil {
		t.Fatalf("SubmitCode() error = %v, want nil", err)
	}
	if page.Typed[selLegacyOTP] != "654321" {
		t.Errorf("code = %q, want %q", page.Typed[selLegacyOTP], "654321")
	}
	if page.Typed[selLegacyPass] != "hunter2" {
		t.Errorf("password re-entry = %q, want %q", page.Typed[selLegacyPass], "hunter2")
	}
}

func TestSession_Login_UnknownPage_ReturnsError(t *testing.T) {
	page := logonPage(func(p *browsertest.Page) {
		p.SetURL("https://secure05c.chase.com/web/auth/#/logon/recognizeUser/esasi")
	})
	s := newTestSession(page)

	_, err := s.Login(context.Background(), "jdoe", "hunter2", "1234")
	if !errors.Is(err, ErrUnknownPageState) {
		t.Errorf("Login() error = %v, want %v", err, ErrUnknownPageState)
	}
	if s.Authenticated() || s.MFAPending() {
		t.Error("session state changed after failed login")
	}
	if page.Closed {
		t.Error("Login() closed the browser; the caller owns Close")
	}
}

func TestSession_Login_MissingFields_ReturnsError(t *testing.T) {
	s := newTestSession(browsertest.New())

	_, err := s.Login(context.Background(), "jdoe", "hunter2", "1234")
	if !errors.Is(err, ErrLoginFieldsMissing) {
		t.Errorf("Login() error = %v, want %v", err, ErrLoginFieldsMissing)
	}
	if !strings.Contains(err.Error(), "first step of login") {
		t.Errorf("Login() error = %q, want login step context", err)
	}
}

func TestSession_Close_ClosesPage(t *testing.T) {
	page := browsertest.New()
	s := authedSession(page)

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !page.Closed {
		t.Error("page was not closed")
	}
	if s.Authenticated() {
		t.Error("Authenticated() = true after Close")
	}
}

func TestSession_UnauthenticatedCalls_ReturnError(t *testing.T) {
	s := newTestSession(browsertest.New())
	ctx := context.Background()

	if _, err := NewAccountService(s).List(ctx); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("List() error = %v, want %v", err, ErrNotAuthenticated)
	}
	if _, err := NewSymbolService(s).Holdings(ctx, "1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Holdings() error = %v, want %v", err, ErrNotAuthenticated)
	}
	if _, err := NewSymbolService(s).Quote(ctx, "1", "AAPL"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Quote() error = %v, want %v", err, ErrNotAuthenticated)
	}
	if _, err := NewOrderService(s, false).OrderStatuses(ctx, "1"); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("OrderStatuses() error = %v, want %v", err, ErrNotAuthenticated)
	}
}
