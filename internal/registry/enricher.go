// Package registry resolves tax IDs to financial fields by scraping the
// business registry site.
package registry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/leadscout/internal/extract"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/pacing"
)

// FieldSpec maps a label on the company card to an output field.
type FieldSpec struct {
	Label string
	Title string
	// Required fields abort the lookup when missing.
	Required bool
}

// DefaultFields read revenue (required), net profit and headcount.
var DefaultFields = []FieldSpec{
	{Label: "Revenue", Title: "Выручка", Required: true},
	{Label: "Profit", Title: "Чистая прибыль"},
	{Label: "Employees", Title: "Среднесписочная численность"},
}

// Config controls registry navigation.
type Config struct {
	BaseURL        string
	EntityType     string
	ResultSelector string
	NotFoundText   string
	ResultTimeout  time.Duration
	DetailTimeout  time.Duration
	PollInterval   time.Duration
	Fields         []FieldSpec
}

// DefaultConfig targets datanewton.ru legal-entity search.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "https://datanewton.ru/search",
		EntityType:     "ul",
		ResultSelector: ".row.h-100 .caption",
		NotFoundText:   "ничего не найдено",
		ResultTimeout:  20 * time.Second,
		DetailTimeout:  20 * time.Second,
		PollInterval:   500 * time.Millisecond,
		Fields:         DefaultFields,
	}
}

var errNoMatch = errors.New("registry has no entry")

// Enricher looks tax IDs up on the registry.
type Enricher struct {
	cfg      Config
	throttle lead.Throttle
	pacer    pacing.Pacer
	logger   *zap.Logger
}

// New constructs an Enricher. throttle may be nil.
func New(cfg Config, throttle lead.Throttle, pacer pacing.Pacer, logger *zap.Logger) *Enricher {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.EntityType == "" {
		cfg.EntityType = def.EntityType
	}
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = def.ResultSelector
	}
	if cfg.NotFoundText == "" {
		cfg.NotFoundText = def.NotFoundText
	}
	if cfg.ResultTimeout <= 0 {
		cfg.ResultTimeout = def.ResultTimeout
	}
	if cfg.DetailTimeout <= 0 {
		cfg.DetailTimeout = def.DetailTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if len(cfg.Fields) == 0 {
		cfg.Fields = def.Fields
	}
	if pacer == nil {
		pacer = pacing.NewHuman()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{cfg: cfg, throttle: throttle, pacer: pacer, logger: logger}
}

// SearchURL builds the registry search URL for inn.
func (e *Enricher) SearchURL(inn string) string {
	v := url.Values{}
	v.Set("query", inn)
	v.Set("type", e.cfg.EntityType)
	return e.cfg.BaseURL + "?" + v.Encode()
}

// Lookup opens the first registry entry for inn and reads its financial
// fields. Every failure yields the not-found placeholder; Lookup never
// returns an error.
func (e *Enricher) Lookup(ctx context.Context, sess lead.Session, inn string) lead.FinancialRecord {
	logger := e.logger.With(zap.String("inn", inn))
	record, err := e.lookup(ctx, sess, inn)
	switch {
	case err == nil:
		metrics.ObserveRegistryLookup("found")
		logger.Debug("registry record found", zap.Int("fields", len(record.Fields)))
		return record
	case errors.Is(err, errNoMatch):
		metrics.ObserveRegistryLookup("not_found")
		logger.Info("registry has no entry")
	case errors.Is(err, lead.ErrNavigationTimeout):
		metrics.ObserveRegistryLookup("timeout")
		logger.Warn("registry lookup timed out", zap.Error(err))
	default:
		metrics.ObserveRegistryLookup("error")
		logger.Warn("registry lookup failed", zap.Error(err))
	}
	return lead.NotFound(err.Error())
}

func (e *Enricher) lookup(ctx context.Context, sess lead.Session, inn string) (lead.FinancialRecord, error) {
	searchURL := e.SearchURL(inn)
	if e.throttle != nil {
		if err := e.throttle.Wait(ctx, searchURL); err != nil {
			return lead.FinancialRecord{}, err
		}
	}
	if err := sess.Open(ctx, searchURL); err != nil {
		return lead.FinancialRecord{}, fmt.Errorf("open registry search: %w", err)
	}
	if err := e.awaitResults(ctx, sess); err != nil {
		return lead.FinancialRecord{}, err
	}

	e.pacer.Pause(ctx, pacing.PreClick)
	if err := sess.Click(ctx, e.cfg.ResultSelector); err != nil {
		return lead.FinancialRecord{}, fmt.Errorf("open first entry: %w", err)
	}

	required := e.cfg.Fields[0]
	for _, f := range e.cfg.Fields {
		if f.Required {
			required = f
			break
		}
	}
	if err := sess.WaitFor(ctx, labelXPath(required.Title), e.cfg.DetailTimeout); err != nil {
		return lead.FinancialRecord{}, fmt.Errorf("wait for %s: %w", required.Label, err)
	}

	page, err := sess.HTML(ctx)
	if err != nil {
		return lead.FinancialRecord{}, fmt.Errorf("snapshot company card: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return lead.FinancialRecord{}, fmt.Errorf("parse company card: %w", err)
	}
	return ParseCard(doc, e.cfg.Fields)
}

// awaitResults polls until the result list or the nothing-found message
// appears, bounded by ResultTimeout.
func (e *Enricher) awaitResults(ctx context.Context, sess lead.Session) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ResultTimeout)
	defer cancel()
	for {
		ok, err := sess.Exists(ctx, e.cfg.ResultSelector)
		if err != nil {
			return fmt.Errorf("probe results: %w", err)
		}
		if ok {
			return nil
		}
		if page, err := sess.HTML(ctx); err == nil && containsFold(page, e.cfg.NotFoundText) {
			return errNoMatch
		}
		if err := pacing.Sleep(ctx, e.cfg.PollInterval); err != nil {
			return fmt.Errorf("wait for registry results: %w: %w", lead.ErrNavigationTimeout, err)
		}
	}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func labelXPath(title string) string {
	return fmt.Sprintf("//div[contains(text(),'%s')]", title)
}

// ParseCard reads each field's value from the div following its label.
// Optional fields are silently omitted when absent.
func ParseCard(doc *goquery.Document, fields []FieldSpec) (lead.FinancialRecord, error) {
	var record lead.FinancialRecord
	for _, f := range fields {
		value, ok := labeledValue(doc, f.Title)
		if !ok {
			if f.Required {
				return lead.FinancialRecord{}, fmt.Errorf("%s: %w", f.Label, errNoMatch)
			}
			continue
		}
		record.Fields = append(record.Fields, lead.Field{Label: f.Label, Value: value})
	}
	return record, nil
}

func labeledValue(doc *goquery.Document, title string) (string, bool) {
	var value string
	doc.Find("div").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(ownText(sel), title) {
			return true
		}
		value = extract.Text(sel.NextAllFiltered("div").First())
		return value == ""
	})
	return value, value != ""
}

func ownText(sel *goquery.Selection) string {
	var b strings.Builder
	for c := sel.Nodes[0].FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
