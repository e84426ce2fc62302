// Package extract pulls phone numbers and tax IDs out of loaded pages.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Config toggles optional extraction filters.
type Config struct {
	// INNChecksum drops tax IDs whose control digits do not verify.
	INNChecksum bool
}

// Contacts is the extraction output for one page.
type Contacts struct {
	Phones []string
	INNs   []string
}

// Extractor reads the current page of a session and extracts contacts.
type Extractor struct {
	cfg    Config
	logger *zap.Logger
}

// New constructs an Extractor.
func New(cfg Config, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{cfg: cfg, logger: logger}
}

// Extract snapshots the session DOM and runs both extractors over it.
func (e *Extractor) Extract(ctx context.Context, sess lead.Session) (Contacts, error) {
	page, err := sess.HTML(ctx)
	if err != nil {
		return Contacts{}, fmt.Errorf("snapshot page: %w", err)
	}
	return e.ExtractHTML(page)
}

// ExtractHTML runs both extractors over raw HTML.
func (e *Extractor) ExtractHTML(page string) (Contacts, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return Contacts{}, fmt.Errorf("parse page: %w", err)
	}
	contacts := Contacts{
		Phones: ExtractPhones(doc),
		INNs:   ExtractINNs(doc),
	}
	if e.cfg.INNChecksum {
		kept := contacts.INNs[:0]
		for _, inn := range contacts.INNs {
			if ValidINNChecksum(inn) {
				kept = append(kept, inn)
				continue
			}
			e.logger.Debug("inn dropped by checksum", zap.String("inn", inn), zap.Error(lead.ErrValidationRejected))
		}
		contacts.INNs = kept
	}
	return contacts, nil
}
