// Package browser provides the live, authenticated browsing surface the
// harvester drives. It wraps chromedp and exposes the narrow capability set
// the rest of the system needs: navigation, waits, reads, in-page script
// evaluation (required for request signing) and cookie access.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

// Config controls how the surface attaches to a browser.
type Config struct {
	// DevtoolsURL attaches to an already running, logged-in instance.
	DevtoolsURL string
	// UserDataDir is used when launching a local instance instead.
	UserDataDir string
	UserAgent   string
	Headless    bool
	NavTimeout  time.Duration
}

// Surface is a single exclusively-owned browser tab. It is not safe for
// concurrent use; exactly one component may drive it at a time.
type Surface struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	navTimeout  time.Duration
	logger      *zap.Logger
}

// New attaches to a remote instance when cfg.DevtoolsURL is set, otherwise
// launches a local instance using cfg.UserDataDir. The target profile must
// already carry a valid session; this package never performs a login.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Surface, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 25 * time.Second
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.DevtoolsURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.DevtoolsURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("enable-automation", false),
		)
		if cfg.UserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.UserDataDir))
		}
		if cfg.UserAgent != "" {
			opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("browser warmup: %w", err)
	}

	return &Surface{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		navTimeout:  cfg.NavTimeout,
		logger:      logger,
	}, nil
}

// Close tears down the tab and allocator contexts.
func (s *Surface) Close() {
	s.tabCancel()
	s.allocCancel()
}

func (s *Surface) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("surface action canceled: %w", ctx.Err())
		}
		return err
	}
	return nil
}

// Navigate loads the URL and waits for the document body.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, s.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Location returns the current page URL.
func (s *Surface) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, s.navTimeout, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// WaitVisible blocks until the selector is visible or the timeout expires.
func (s *Surface) WaitVisible(ctx context.Context, sel string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.navTimeout
	}
	if err := s.run(ctx, timeout, chromedp.WaitVisible(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %q: %w", sel, err)
	}
	return nil
}

// Click clicks the first element matching the selector.
func (s *Surface) Click(ctx context.Context, sel string) error {
	if err := s.run(ctx, s.navTimeout, chromedp.Click(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("click %q: %w", sel, err)
	}
	return nil
}

// SendKeys types text into the element matching the selector.
func (s *Surface) SendKeys(ctx context.Context, sel, text string) error {
	if err := s.run(ctx, s.navTimeout,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, text, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("send keys to %q: %w", sel, err)
	}
	return nil
}

// PressEnter submits via the keyboard.
func (s *Surface) PressEnter(ctx context.Context) error {
	if err := s.run(ctx, s.navTimeout, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return nil
}

// PressEscape dismisses overlays via the keyboard.
func (s *Surface) PressEscape(ctx context.Context) error {
	if err := s.run(ctx, s.navTimeout, chromedp.KeyEvent(kb.Escape)); err != nil {
		return fmt.Errorf("press escape: %w", err)
	}
	return nil
}

// ScrollBy scrolls the main viewport by the given number of pixels.
func (s *Surface) ScrollBy(ctx context.Context, pixels int) error {
	expr := fmt.Sprintf("window.scrollBy({top: %d, behavior: 'smooth'})", pixels)
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, nil)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Text returns the rendered text of the first matching element, or an empty
// string when no element matches.
func (s *Surface) Text(ctx context.Context, sel string) (string, error) {
	var text string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.innerText : ""; })()`, sel)
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, &text)); err != nil {
		return "", fmt.Errorf("read text %q: %w", sel, err)
	}
	return text, nil
}

// HTML returns the outer HTML of the first matching element, or an empty
// string when no element matches.
func (s *Surface) HTML(ctx context.Context, sel string) (string, error) {
	var html string
	expr := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); return el ? el.outerHTML : ""; })()`, sel)
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, &html)); err != nil {
		return "", fmt.Errorf("read html %q: %w", sel, err)
	}
	return html, nil
}

// Evaluate runs the expression in the page and unmarshals the JSON result
// into out. Passing a nil out discards the result. This is the capability the
// signed API client borrows to invoke the platform's in-page signing routine.
func (s *Surface) Evaluate(ctx context.Context, expr string, out any) error {
	if out == nil {
		out = &json.RawMessage{}
	}
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, out)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

// Cookies returns the current session cookies as a name/value map.
func (s *Surface) Cookies(ctx context.Context) (map[string]string, error) {
	cookies := make(map[string]string)
	action := chromedp.ActionFunc(func(c context.Context) error {
		all, err := network.GetCookies().Do(c)
		if err != nil {
			return err
		}
		for _, ck := range all {
			cookies[ck.Name] = ck.Value
		}
		return nil
	})
	if err := s.run(ctx, s.navTimeout, action); err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return cookies, nil
}

// TypeHumanlike types text one rune at a time with small delays, matching how
// a person fills the search box. Delays come from the caller's pacing policy
// indirectly; here a fixed small gap keeps keystroke events ordered.
func (s *Surface) TypeHumanlike(ctx context.Context, sel, text string) error {
	if err := s.run(ctx, s.navTimeout, chromedp.Clear(sel, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("clear %q: %w", sel, err)
	}
	for _, r := range text {
		err := s.run(ctx, s.navTimeout, chromedp.ActionFunc(func(c context.Context) error {
			return input.InsertText(string(r)).Do(c)
		}))
		if err != nil {
			return fmt.Errorf("type rune: %w", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(60 * time.Millisecond):
		}
	}
	return nil
}
