package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// ReportStore keeps finished reports in memory.
type ReportStore struct {
	mu      sync.RWMutex
	reports map[string]lead.Report
}

// NewReportStore constructs a ReportStore.
func NewReportStore() *ReportStore {
	return &ReportStore{reports: make(map[string]lead.Report)}
}

// SaveReport stores or replaces a report by ID.
func (s *ReportStore) SaveReport(_ context.Context, report lead.Report) error {
	if report.ID == "" {
		return fmt.Errorf("report id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = report
	return nil
}

// GetReport returns the report with the given ID.
func (s *ReportStore) GetReport(_ context.Context, id string) (lead.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	report, ok := s.reports[id]
	if !ok {
		return lead.Report{}, fmt.Errorf("%w: %s", lead.ErrReportNotFound, id)
	}
	return report, nil
}
