package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Session is one Chrome tab. It is not safe for concurrent use.
type Session struct {
	ctx        context.Context
	cancel     context.CancelFunc
	navTimeout time.Duration
}

var _ lead.Session = (*Session)(nil)

// run executes actions on the tab, bounded by both the caller's ctx and timeout.
func (s *Session) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func isXPath(selector string) bool {
	return strings.HasPrefix(selector, "/")
}

func queryOption(selector string) chromedp.QueryOption {
	if isXPath(selector) {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

// findExpr returns a JS expression evaluating to the first element matching
// selector, or null.
func findExpr(selector string) string {
	quoted, _ := json.Marshal(selector)
	if isXPath(selector) {
		return fmt.Sprintf("document.evaluate(%s, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue", quoted)
	}
	return fmt.Sprintf("document.querySelector(%s)", quoted)
}

func timeoutErr(err error, what string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", lead.ErrNavigationTimeout, what, err)
	}
	return err
}

// Open navigates to url and waits for the body to be ready.
func (s *Session) Open(ctx context.Context, url string) error {
	err := s.run(ctx, s.navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return timeoutErr(err, "open "+url)
	}
	return nil
}

// WaitFor blocks until selector is present or timeout elapses.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.run(ctx, timeout, chromedp.WaitReady(selector, queryOption(selector))); err != nil {
		return timeoutErr(err, "wait for "+selector)
	}
	return nil
}

// Exists reports whether selector currently matches an element.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var ok bool
	expr := findExpr(selector) + " !== null"
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, &ok)); err != nil {
		return false, fmt.Errorf("exists %s: %w", selector, err)
	}
	return ok, nil
}

// HTML returns the outer HTML of the document.
func (s *Session) HTML(ctx context.Context) (string, error) {
	var doc string
	if err := s.run(ctx, s.navTimeout, chromedp.OuterHTML("html", &doc, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("outer html: %w", err)
	}
	return doc, nil
}

// ScrollBy scrolls down by fraction of the viewport height.
func (s *Session) ScrollBy(ctx context.Context, fraction float64) error {
	expr := fmt.Sprintf("window.scrollBy(0, window.innerHeight * %g)", fraction)
	return s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, nil))
}

// ScrollToBottom scrolls to the end of the document.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	return s.run(ctx, s.navTimeout, chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil))
}

// Screenshot captures selector as PNG, or the viewport when selector is empty.
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	var buf []byte
	var action chromedp.Action
	if selector == "" {
		action = chromedp.CaptureScreenshot(&buf)
	} else {
		action = chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, queryOption(selector))
	}
	if err := s.run(ctx, s.navTimeout, action); err != nil {
		return nil, fmt.Errorf("screenshot %q: %w", selector, timeoutErr(err, "screenshot"))
	}
	return buf, nil
}

// Click clicks the first visible element matching selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.run(ctx, s.navTimeout, chromedp.Click(selector, chromedp.NodeVisible, queryOption(selector))); err != nil {
		return fmt.Errorf("click %s: %w", selector, timeoutErr(err, "click"))
	}
	return nil
}

// Origin returns the viewport coordinates of selector's top-left corner.
func (s *Session) Origin(ctx context.Context, selector string) (lead.Point, error) {
	var rect *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	expr := fmt.Sprintf(`(() => { const el = %s; if (!el) return null; const r = el.getBoundingClientRect(); return {x: r.left, y: r.top}; })()`, findExpr(selector))
	if err := s.run(ctx, s.navTimeout, chromedp.Evaluate(expr, &rect)); err != nil {
		return lead.Point{}, fmt.Errorf("origin %s: %w", selector, err)
	}
	if rect == nil {
		return lead.Point{}, fmt.Errorf("origin %s: element not found", selector)
	}
	return lead.Point{X: rect.X, Y: rect.Y}, nil
}

// RunScript evaluates code and decodes its result into out (which may be nil).
func (s *Session) RunScript(ctx context.Context, code string, out any) error {
	return s.run(ctx, s.navTimeout, chromedp.Evaluate(code, out))
}

// MoveTo dispatches a mouse move to p.
func (s *Session) MoveTo(ctx context.Context, p lead.Point) error {
	return s.run(ctx, s.navTimeout, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y).Do(ctx)
	}))
}

// ClickAt presses and releases the left button at p.
func (s *Session) ClickAt(ctx context.Context, p lead.Point) error {
	return s.run(ctx, s.navTimeout, chromedp.MouseClickXY(p.X, p.Y))
}

// Close shuts the tab and its browser down.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.ctx)
	s.cancel()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
