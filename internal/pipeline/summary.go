package pipeline

import (
	"time"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// Summary is the notification published for each finished report.
type Summary struct {
	ReportID   string    `json:"report_id"`
	Identity   string    `json:"identity"`
	Query      string    `json:"query"`
	URLs       int       `json:"urls"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Phones     int       `json:"phones"`
	INNs       int       `json:"inns"`
	Enriched   int       `json:"enriched"`
	FinishedAt time.Time `json:"finished_at"`
}

// Summarize counts the outcomes in report.
func Summarize(report lead.Report) Summary {
	s := Summary{
		ReportID:   report.ID,
		Identity:   report.Identity,
		Query:      report.Query,
		URLs:       len(report.Results),
		FinishedAt: report.FinishedAt,
	}
	for _, r := range report.Results {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Failed():
			s.Failed++
		}
		s.Phones += len(r.Phones)
		s.INNs += len(r.INNs)
		for _, rec := range r.Revenues {
			if rec.Found() {
				s.Enriched++
			}
		}
	}
	return s
}

// Attributes tags the Pub/Sub message so subscribers can filter without
// decoding the body.
func (s Summary) Attributes() map[string]string {
	return map[string]string{
		"report_id": s.ReportID,
		"identity":  s.Identity,
	}
}
