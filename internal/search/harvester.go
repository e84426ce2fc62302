// Package search turns a query into a filtered list of candidate sites by
// scraping the search engine's result page.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/captcha"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/pacing"
	"github.com/JakeFAU/leadscout/internal/skiplist"
)

// DefaultStrategies are tried in order: organic titles, the generic
// organic link, then ad redirect links.
var DefaultStrategies = []string{
	".serp-item .OrganicTitle-Link",
	".Organic .Link",
	`a[href*="yabs.yandex.ru"]`,
}

// Config controls the search request and result scraping.
type Config struct {
	BaseURL        string
	Region         string
	ResultMarker   string
	ResultsTimeout time.Duration
	Strategies     []string
	Scrolls        int
	ScrollFraction float64
}

// DefaultConfig targets yandex.ru with the Moscow region.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://yandex.ru/search/",
		Region:         "213",
		ResultMarker:   ".serp-item",
		ResultsTimeout: 20 * time.Second,
		Strategies:     DefaultStrategies,
		Scrolls:        2,
		ScrollFraction: 0.7,
	}
}

// ChallengeResolver clears a challenge on the current page, if any.
type ChallengeResolver interface {
	Resolve(ctx context.Context, sess lead.Session) captcha.Outcome
}

// Harvester scrapes candidate URLs from the search result page.
type Harvester struct {
	cfg      Config
	skip     *skiplist.List
	resolver ChallengeResolver
	throttle lead.Throttle
	pacer    pacing.Pacer
	logger   *zap.Logger
}

// New constructs a Harvester. resolver and throttle may be nil.
func New(cfg Config, skip *skiplist.List, resolver ChallengeResolver, throttle lead.Throttle, pacer pacing.Pacer, logger *zap.Logger) *Harvester {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ResultMarker == "" {
		cfg.ResultMarker = def.ResultMarker
	}
	if cfg.ResultsTimeout <= 0 {
		cfg.ResultsTimeout = def.ResultsTimeout
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = def.Strategies
	}
	if cfg.Scrolls < 0 {
		cfg.Scrolls = 0
	}
	if cfg.ScrollFraction <= 0 {
		cfg.ScrollFraction = def.ScrollFraction
	}
	if pacer == nil {
		pacer = pacing.NewHuman()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Harvester{
		cfg:      cfg,
		skip:     skip,
		resolver: resolver,
		throttle: throttle,
		pacer:    pacer,
		logger:   logger,
	}
}

// SearchURL builds the result page URL for query.
func (h *Harvester) SearchURL(query string) string {
	v := url.Values{}
	v.Set("text", query)
	if h.cfg.Region != "" {
		v.Set("lr", h.cfg.Region)
	}
	return h.cfg.BaseURL + "?" + v.Encode()
}

// Harvest returns at most maxResults unique candidates for query. A page
// that never shows result markers yields an empty list, not an error.
func (h *Harvester) Harvest(ctx context.Context, sess lead.Session, query string, maxResults int) []lead.Candidate {
	candidates := []lead.Candidate{}
	if maxResults <= 0 {
		return candidates
	}
	searchURL := h.SearchURL(query)
	logger := h.logger.With(zap.String("query", query))

	if h.throttle != nil {
		if err := h.throttle.Wait(ctx, searchURL); err != nil {
			logger.Warn("search throttle", zap.Error(err))
			return candidates
		}
	}
	if err := sess.Open(ctx, searchURL); err != nil {
		logger.Warn("open search page", zap.Error(err))
		return candidates
	}
	h.pacer.Pause(ctx, pacing.General)

	if h.resolver != nil {
		if out := h.resolver.Resolve(ctx, sess); !out.Cleared() {
			logger.Warn("search page challenge unresolved, continuing", zap.String("state", string(out.State)))
		}
	}

	if err := sess.WaitFor(ctx, h.cfg.ResultMarker, h.cfg.ResultsTimeout); err != nil {
		logger.Warn("no search results", zap.Error(err))
		return candidates
	}
	for i := 0; i < h.cfg.Scrolls; i++ {
		if err := sess.ScrollBy(ctx, h.cfg.ScrollFraction); err != nil {
			logger.Debug("scroll failed", zap.Error(err))
		}
		h.pacer.Pause(ctx, pacing.General)
	}

	page, err := sess.HTML(ctx)
	if err != nil {
		logger.Warn("snapshot search page", zap.Error(err))
		return candidates
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		logger.Warn("parse search page", zap.Error(err))
		return candidates
	}
	base, _ := url.Parse(searchURL)

	seen := make(map[string]struct{})
	for rank, selector := range h.cfg.Strategies {
		if len(candidates) >= maxResults {
			break
		}
		found, err := h.applyStrategy(doc, base, selector, rank, maxResults-len(candidates), seen)
		if err != nil {
			logger.Warn("search strategy skipped", zap.String("selector", selector), zap.Error(err))
			continue
		}
		candidates = append(candidates, found...)
	}

	metrics.ObserveCandidates(len(candidates))
	logger.Info("search harvested", zap.Int("candidates", len(candidates)))
	return candidates
}

// applyStrategy collects up to limit new candidates matched by selector,
// in document order. A panic while walking the DOM fails only this strategy.
func (h *Harvester) applyStrategy(
	doc *goquery.Document,
	base *url.URL,
	selector string,
	rank int,
	limit int,
	seen map[string]struct{},
) (found []lead.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			found, err = nil, fmt.Errorf("strategy panicked: %v", r)
		}
	}()
	matcher, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector: %w", err)
	}

	// Candidates are only committed to seen once the strategy completes.
	local := make(map[string]struct{})
	doc.FindMatcher(matcher).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		href, ok := sel.Attr("href")
		if !ok || href == "" {
			return true
		}
		if base != nil {
			if ref, err := base.Parse(href); err == nil {
				href = ref.String()
			}
		}
		cleaned, ok := h.CleanURL(href)
		if !ok {
			return true
		}
		if _, dup := seen[cleaned]; dup {
			return true
		}
		if _, dup := local[cleaned]; dup {
			return true
		}
		local[cleaned] = struct{}{}
		found = append(found, lead.Candidate{Raw: href, URL: cleaned, Rank: rank})
		return len(found) < limit
	})
	for u := range local {
		seen[u] = struct{}{}
	}
	return found, nil
}
