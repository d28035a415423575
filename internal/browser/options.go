package browser

import (
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	// DefaultUserAgent is presented to the site instead of the headless default.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/142.0.0.0 Safari/537.36"

	// ProfileDirName is the directory created under the profile path when a
	// persistent profile is requested.
	ProfileDirName = "ChaseProfile"

	defaultNavigationInterval = 750 * time.Millisecond
	defaultWidth              = 1920
	defaultHeight             = 1080
)

// Options configures the Chrome instance.
type Options struct {
	Headless bool
	Docker   bool

	// Title names the persistent profile. Empty means a throwaway profile.
	Title       string
	ProfilePath string

	UserAgent string
	Width     int
	Height    int

	// NavigationInterval is the minimum spacing between page loads.
	NavigationInterval time.Duration

	// KeyDelayMin and KeyDelayMax bound the random pause between typed keys.
	KeyDelayMin time.Duration
	KeyDelayMax time.Duration

	// ExecPath overrides the Chrome binary.
	ExecPath string
}

// DefaultOptions returns headless options with a throwaway profile.
func DefaultOptions() Options {
	return Options{
		Headless:           true,
		ProfilePath:        ".",
		UserAgent:          DefaultUserAgent,
		Width:              defaultWidth,
		Height:             defaultHeight,
		NavigationInterval: defaultNavigationInterval,
		KeyDelayMin:        50 * time.Millisecond,
		KeyDelayMax:        500 * time.Millisecond,
	}
}

// UserDataDir returns the profile directory, or "" when the profile is not persistent.
func (o Options) UserDataDir() (string, error) {
	if o.Title == "" {
		return "", nil
	}
	base := o.ProfilePath
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	return filepath.Join(abs, ProfileDirName), nil
}

// allocatorOptions builds the chromedp flags for o.
func (o Options) allocatorOptions(userDataDir string) []chromedp.ExecAllocatorOption {
	ua := o.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	w, h := o.Width, o.Height
	if w == 0 || h == 0 {
		w, h = defaultWidth, defaultHeight
	}

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(w, h),
		chromedp.Flag("disable-session-crashed-bubble", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-features", "TranslateUI,VizDisplayCompositor"),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	}

	switch {
	case o.Docker:
		opts = append(opts,
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("headless", false),
		)
	case o.Headless:
		opts = append(opts,
			chromedp.Flag("headless", "new"),
			chromedp.UserAgent(ua),
			chromedp.NoSandbox,
			chromedp.DisableGPU,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-site-isolation-trials", true),
		)
	default:
		opts = append(opts,
			chromedp.Flag("headless", false),
			chromedp.Flag("start-maximized", true),
			chromedp.UserAgent(ua),
		)
	}

	if userDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(userDataDir))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}
