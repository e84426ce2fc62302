// Package browser drives a real Chrome instance via chromedp and exposes each
// tab as a lead.Session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// DefaultUserAgents is the pool a session's user agent is drawn from.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0",
}

// stealthScript runs before any page script in every new document.
const stealthScript = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined});
window.chrome = window.chrome || {runtime: {}};
Object.defineProperty(navigator, 'languages', {get: () => ['ru-RU', 'ru', 'en-US', 'en']});`

// ErrClosed is returned by NewSession after Close.
var ErrClosed = errors.New("browser: closed")

// Config controls how Chrome is launched.
type Config struct {
	Headless          bool
	ExecPath          string
	ProxyServer       string
	UserAgents        []string
	WindowWidth       int
	WindowHeight      int
	NavigationTimeout time.Duration
}

// DefaultConfig returns a headless launch with a 1366x768 window.
func DefaultConfig() Config {
	return Config{
		Headless:          true,
		UserAgents:        DefaultUserAgents,
		WindowWidth:       1366,
		WindowHeight:      768,
		NavigationTimeout: 30 * time.Second,
	}
}

// Browser launches one Chrome process per session from a shared allocator.
type Browser struct {
	cfg    Config
	logger *zap.Logger

	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	pick   func(n int) int
}

// New validates cfg and prepares the exec allocator. Chrome itself starts
// lazily on the first NewSession.
func New(cfg Config, logger *zap.Logger) (*Browser, error) {
	if cfg.NavigationTimeout <= 0 {
		return nil, fmt.Errorf("browser: navigation timeout must be positive")
	}
	if cfg.WindowWidth <= 0 || cfg.WindowHeight <= 0 {
		return nil, fmt.Errorf("browser: window size must be positive, got %dx%d", cfg.WindowWidth, cfg.WindowHeight)
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = DefaultUserAgents
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	return &Browser{
		cfg:         cfg,
		logger:      logger,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		pick:        rand.IntN,
	}, nil
}

func allocatorOptions(cfg Config) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("lang", "ru-RU"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyServer))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

func (b *Browser) userAgent() string {
	return b.cfg.UserAgents[b.pick(len(b.cfg.UserAgents))]
}

// NewSession starts a fresh Chrome process and returns its first tab with the
// stealth patches applied.
func (b *Browser) NewSession(ctx context.Context) (lead.Session, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	tabCtx, tabCancel := chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(b.logger.Sugar().Debugf),
		chromedp.WithErrorf(b.logger.Sugar().Warnf),
	)

	ua := b.userAgent()
	setup := chromedp.ActionFunc(func(ctx context.Context) error {
		if err := emulation.SetUserAgentOverride(ua).WithAcceptLanguage("ru-RU,ru;q=0.9").Do(ctx); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
		if _, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx); err != nil {
			return fmt.Errorf("install stealth script: %w", err)
		}
		return nil
	})

	// The first Run launches Chrome and must use the long-lived tab context.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	s := &Session{ctx: tabCtx, cancel: tabCancel, navTimeout: b.cfg.NavigationTimeout}
	if err := s.run(ctx, b.cfg.NavigationTimeout, setup); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("prepare tab: %w", err)
	}
	b.logger.Debug("browser session started", zap.String("user_agent", ua))
	return s, nil
}

// Close kills any Chrome processes still owned by the allocator.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.allocCancel()
}
