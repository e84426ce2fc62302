package lead

import (
	"strings"
	"time"
)

// Candidate is a URL produced by the search harvester.
type Candidate struct {
	Raw  string `json:"raw"`
	URL  string `json:"url"`
	Rank int    `json:"rank"`
}

// Field is one labeled financial value scraped from the registry.
type Field struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// NotFoundText is rendered for tax IDs the registry could not resolve.
const NotFoundText = "not found"

// FinancialRecord holds the registry fields resolved for one tax ID.
// A record with no fields is the "not found" placeholder.
type FinancialRecord struct {
	Fields []Field `json:"fields,omitempty"`
	Reason string  `json:"reason,omitempty"`
}

// NotFound builds the placeholder record, keeping the reason for diagnostics.
func NotFound(reason string) FinancialRecord {
	return FinancialRecord{Reason: reason}
}

// Found reports whether at least one field was resolved.
func (r FinancialRecord) Found() bool {
	return len(r.Fields) > 0
}

// String renders the record as "Label: value" lines.
func (r FinancialRecord) String() string {
	if !r.Found() {
		return NotFoundText
	}
	lines := make([]string, 0, len(r.Fields))
	for _, f := range r.Fields {
		lines = append(lines, f.Label+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}

// Stage names one step of per-URL processing.
type Stage string

// Pipeline stages in execution order.
const (
	StageHarvest   Stage = "harvest"
	StageSkip      Stage = "skip"
	StageNavigate  Stage = "navigate"
	StageChallenge Stage = "challenge"
	StageExtract   Stage = "extract"
	StageEnrich    Stage = "enrich"
)

// Status tags the outcome of a stage.
type Status string

// Stage status values.
const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// StageOutcome records what happened in one stage for one URL.
type StageOutcome struct {
	Stage  Stage  `json:"stage"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// ExtractionResult is the per-URL output of the pipeline.
// When Skipped is true, Phones, INNs and Revenues are empty.
type ExtractionResult struct {
	URL      string                     `json:"url"`
	Phones   []string                   `json:"phones"`
	INNs     []string                   `json:"inns"`
	Revenues map[string]FinancialRecord `json:"revenues"`
	Skipped  bool                       `json:"skipped"`
	Error    string                     `json:"error,omitempty"`
	Stages   []StageOutcome             `json:"stages,omitempty"`
}

// NewResult returns an empty result for url with non-nil collections.
func NewResult(url string) ExtractionResult {
	return ExtractionResult{
		URL:      url,
		Phones:   []string{},
		INNs:     []string{},
		Revenues: map[string]FinancialRecord{},
	}
}

// Failed reports whether processing ended with an error marker.
func (r ExtractionResult) Failed() bool {
	return r.Error != ""
}

// Request is one search submitted by an identity.
type Request struct {
	Identity   string `json:"identity"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// Report aggregates everything produced for one request.
type Report struct {
	ID         string             `json:"id"`
	Identity   string             `json:"identity"`
	Query      string             `json:"query"`
	Candidates []Candidate        `json:"candidates"`
	Results    []ExtractionResult `json:"results"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
}

// Point is a viewport coordinate in CSS pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add offsets p by q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}
