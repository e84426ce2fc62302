// Package browsertest provides a scripted in-memory lead.Session for tests.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// ErrNoPage is returned when a URL has no scripted page.
var ErrNoPage = errors.New("browsertest: no page scripted for url")

// Transition replaces the current page when a selector is clicked.
type Transition struct {
	URL  string
	HTML string
}

// Session is a deterministic lead.Session backed by HTML strings.
// Pages are keyed by URL; a URL prefix ending in "*" matches any suffix.
type Session struct {
	mu          sync.Mutex
	pages       map[string]string
	clicks      map[string]Transition
	afterClicks map[int]Transition
	current     string
	currentURL  string
	navigations []string
	clicked     []string
	moves       []lead.Point
	pointer     []lead.Point
	scrolls     []float64
	scripts     []string
	closed      bool
	screenshot  []byte
	origin      lead.Point
	openErr     error
}

// New returns an empty Session.
func New() *Session {
	return &Session{
		pages:       make(map[string]string),
		clicks:      make(map[string]Transition),
		afterClicks: make(map[int]Transition),
		screenshot:  []byte("\x89PNG fake"),
	}
}

// AddPage scripts the HTML returned after navigating to url.
func (s *Session) AddPage(url, page string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages[url] = page
	return s
}

// OnClick scripts the page shown after clicking selector.
func (s *Session) OnClick(selector string, next Transition) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicks[selector] = next
	return s
}

// AfterPointerClicks scripts the page shown once n pointer clicks happened.
func (s *Session) AfterPointerClicks(n int, next Transition) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.afterClicks[n] = next
	return s
}

// SetOrigin sets the value returned by Origin.
func (s *Session) SetOrigin(p lead.Point) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origin = p
	return s
}

// FailOpen makes every Open call return err.
func (s *Session) FailOpen(err error) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
	return s
}

// Open loads the scripted page for url.
func (s *Session) Open(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.navigations = append(s.navigations, url)
	if s.openErr != nil {
		return s.openErr
	}
	page, ok := s.lookup(url)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPage, url)
	}
	s.current = page
	s.currentURL = url
	return nil
}

func (s *Session) lookup(url string) (string, bool) {
	if page, ok := s.pages[url]; ok {
		return page, true
	}
	for key, page := range s.pages {
		if strings.HasSuffix(key, "*") && strings.HasPrefix(url, strings.TrimSuffix(key, "*")) {
			return page, true
		}
	}
	return "", false
}

// WaitFor returns immediately: nil when selector matches, otherwise a
// deadline error wrapping lead.ErrNavigationTimeout.
func (s *Session) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	ok, err := s.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("wait for %q: %w: %w", selector, lead.ErrNavigationTimeout, context.DeadlineExceeded)
	}
	return nil
}

// Exists evaluates selector against the current page. Selectors starting
// with "/" are XPath.
func (s *Session) Exists(_ context.Context, selector string) (bool, error) {
	s.mu.Lock()
	page := s.current
	s.mu.Unlock()
	if strings.HasPrefix(selector, "/") {
		root, err := htmlquery.Parse(strings.NewReader(page))
		if err != nil {
			return false, fmt.Errorf("parse page: %w", err)
		}
		nodes, err := htmlquery.QueryAll(root, selector)
		if err != nil {
			return false, fmt.Errorf("browsertest: xpath %q: %w", selector, err)
		}
		return len(nodes) > 0, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return false, fmt.Errorf("parse page: %w", err)
	}
	return doc.Find(selector).Length() > 0, nil
}

// HTML returns the current page.
func (s *Session) HTML(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, nil
}

// ScrollBy records the scroll.
func (s *Session) ScrollBy(_ context.Context, fraction float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls = append(s.scrolls, fraction)
	return nil
}

// ScrollToBottom records a full-page scroll as fraction -1.
func (s *Session) ScrollToBottom(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scrolls = append(s.scrolls, -1)
	return nil
}

// Screenshot returns fixed bytes when selector exists or is empty.
func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	if selector == "" {
		return append([]byte(nil), s.screenshot...), nil
	}
	ok, err := s.Exists(ctx, selector)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("screenshot %q: element not found", selector)
	}
	return append([]byte(nil), s.screenshot...), nil
}

// Click applies a scripted transition for selector, if any.
func (s *Session) Click(ctx context.Context, selector string) error {
	ok, err := s.Exists(ctx, selector)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("click %q: element not found", selector)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clicked = append(s.clicked, selector)
	if next, ok := s.clicks[selector]; ok {
		s.apply(next)
	}
	return nil
}

func (s *Session) apply(next Transition) {
	s.current = next.HTML
	if next.URL != "" {
		s.currentURL = next.URL
	}
}

// Origin returns the scripted element origin.
func (s *Session) Origin(ctx context.Context, selector string) (lead.Point, error) {
	ok, err := s.Exists(ctx, selector)
	if err != nil {
		return lead.Point{}, err
	}
	if !ok {
		return lead.Point{}, fmt.Errorf("origin %q: element not found", selector)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.origin, nil
}

// RunScript records the script.
func (s *Session) RunScript(_ context.Context, code string, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts = append(s.scripts, code)
	return nil
}

// MoveTo records a pointer move.
func (s *Session) MoveTo(_ context.Context, p lead.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.moves = append(s.moves, p)
	return nil
}

// ClickAt records a pointer click.
func (s *Session) ClickAt(_ context.Context, p lead.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pointer = append(s.pointer, p)
	if next, ok := s.afterClicks[len(s.pointer)]; ok {
		s.apply(next)
	}
	return nil
}

// Close marks the session closed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Navigations returns every URL passed to Open.
func (s *Session) Navigations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.navigations...)
}

// Clicked returns every selector passed to Click.
func (s *Session) Clicked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.clicked...)
}

// Moves returns recorded pointer moves.
func (s *Session) Moves() []lead.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lead.Point(nil), s.moves...)
}

// PointerClicks returns recorded pointer clicks.
func (s *Session) PointerClicks() []lead.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]lead.Point(nil), s.pointer...)
}

// Scrolls returns recorded scroll fractions (-1 for scroll-to-bottom).
func (s *Session) Scrolls() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.scrolls...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Factory hands out scripted sessions and counts how many were opened.
type Factory struct {
	mu       sync.Mutex
	build    func() *Session
	err      error
	opened   int
	sessions []*Session
}

// NewFactory returns a Factory calling build for every session.
func NewFactory(build func() *Session) *Factory {
	return &Factory{build: build}
}

// FailingFactory returns a Factory whose NewSession always fails with err.
func FailingFactory(err error) *Factory {
	return &Factory{err: err}
}

// NewSession returns the next scripted session.
func (f *Factory) NewSession(_ context.Context) (lead.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if f.err != nil {
		return nil, f.err
	}
	sess := f.build()
	f.sessions = append(f.sessions, sess)
	return sess, nil
}

// Opened returns how many sessions were requested.
func (f *Factory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

// Sessions returns the sessions handed out so far.
func (f *Factory) Sessions() []*Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Session(nil), f.sessions...)
}
