// Package chrome drives a Chrome tab through the DevTools protocol and exposes
// it as a browser.Page.
package chrome

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/example/recreserve/internal/browser"
	"github.com/example/recreserve/internal/internaltypes"
)

const (
	DefaultElementTimeout = 10 * time.Second
	navigateTimeout       = 60 * time.Second
	userAgent             = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

type Options struct {
	Headless bool
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	// RemoteURL attaches to an already running browser (ws:// or http:// DevTools URL)
	// instead of starting one.
	RemoteURL string
	// ElementTimeout bounds every element lookup.
	ElementTimeout time.Duration
	Logger         *slog.Logger
}

// Session owns one browser and one tab. Close releases both.
type Session struct {
	tab     context.Context
	cancel  func()
	timeout time.Duration
	log     *slog.Logger
}

// Launch starts (or attaches to) a browser and opens a tab. The browser lives
// until Close or until ctx is cancelled.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timeout := opts.ElementTimeout
	if timeout <= 0 {
		timeout = DefaultElementTimeout
	}

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, opts.RemoteURL)
	} else {
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(opts)...)
	}

	tab, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) { log.Debug(fmt.Sprintf(format, args...)) }),
		chromedp.WithErrorf(func(format string, args ...any) { log.Warn(fmt.Sprintf(format, args...)) }),
	)
	s := &Session{
		tab:     tab,
		timeout: timeout,
		log:     log,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}

	// The first Run starts the browser.
	if err := chromedp.Run(tab); err != nil {
		s.cancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	log.Info("browser started", "headless", opts.Headless, "remote", opts.RemoteURL != "")
	return s, nil
}

func allocatorOptions(opts Options) []chromedp.ExecAllocatorOption {
	o := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-gpu", true),
		chromedp.WindowSize(1280, 1024),
		chromedp.UserAgent(userAgent),
	)
	if opts.ExecPath != "" {
		o = append(o, chromedp.ExecPath(opts.ExecPath))
	}
	return o
}

// Close shuts the tab and the browser down. It is safe to call more than once.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.tab)
	s.cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, navigateTimeout, browser.Selector{}, chromedp.Navigate(url))
}

func (s *Session) Click(ctx context.Context, sel browser.Selector) error {
	return s.run(ctx, s.timeout, sel, chromedp.Click(sel.Query, queryOptions(sel, chromedp.NodeVisible)...))
}

func (s *Session) Fill(ctx context.Context, sel browser.Selector, value string) error {
	opts := queryOptions(sel, chromedp.NodeVisible)
	return s.run(ctx, s.timeout, sel,
		chromedp.Clear(sel.Query, opts...),
		chromedp.SendKeys(sel.Query, value, opts...),
	)
}

func (s *Session) Attribute(ctx context.Context, sel browser.Selector, name string) (string, bool, error) {
	var (
		value string
		ok    bool
	)
	err := s.run(ctx, s.timeout, sel, chromedp.AttributeValue(sel.Query, name, &value, &ok, queryOptions(sel, chromedp.NodeReady)...))
	return value, ok, err
}

// Visible does not wait: it reports whether the element is rendered right now.
func (s *Session) Visible(ctx context.Context, sel browser.Selector) (bool, error) {
	var visible bool
	if err := s.run(ctx, s.timeout, browser.Selector{}, chromedp.Evaluate(visibleExpr(sel), &visible)); err != nil {
		return false, err
	}
	return visible, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var png []byte
	if err := s.run(ctx, s.timeout, browser.Selector{}, chromedp.CaptureScreenshot(&png)); err != nil {
		return nil, err
	}
	return png, nil
}

// run executes actions on the tab, bounded by timeout and by ctx. A timeout
// on an element action is reported as ErrElementNotFound.
func (s *Session) run(ctx context.Context, timeout time.Duration, sel browser.Selector, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(s.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.tab.Err() != nil {
		return fmt.Errorf("browser closed: %w", err)
	}
	if errors.Is(err, context.DeadlineExceeded) && sel.Query != "" {
		return fmt.Errorf("%w: %s after %s", internaltypes.ErrElementNotFound, sel, timeout)
	}
	return err
}

func queryOptions(sel browser.Selector, wait chromedp.QueryOption) []chromedp.QueryOption {
	return []chromedp.QueryOption{by(sel.By), wait}
}

func by(b browser.By) chromedp.QueryOption {
	switch b {
	case browser.ByID:
		return chromedp.ByID
	case browser.ByCSS:
		return chromedp.ByQuery
	default:
		return chromedp.BySearch
	}
}

// nodeExpr is a JS expression yielding the first node matching sel, or null.
func nodeExpr(sel browser.Selector) string {
	q, _ := json.Marshal(sel.Query)
	switch sel.By {
	case browser.ByID:
		return fmt.Sprintf("document.getElementById(%s)", q)
	case browser.ByCSS:
		return fmt.Sprintf("document.querySelector(%s)", q)
	default:
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", q)
	}
}

func visibleExpr(sel browser.Selector) string {
	return `(() => {
	const el = ` + nodeExpr(sel) + `;
	if (!el) return false;
	const style = window.getComputedStyle(el);
	if (style.display === "none" || style.visibility === "hidden") return false;
	const rect = el.getBoundingClientRect();
	return rect.width > 0 && rect.height > 0;
})()`
}

var _ browser.Page = (*Session)(nil)
