package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/JakeFAU/leadscout/internal/lead"
)

// ReportStore writes each report as reports/<id>.json under BaseDir.
type ReportStore struct {
	baseDir string
}

// NewReportStore creates a filesystem-backed report store.
func NewReportStore(cfg Config) (*ReportStore, error) {
	baseDir, err := prepareDir(cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	return &ReportStore{baseDir: baseDir}, nil
}

func (s *ReportStore) path(id string) (string, error) {
	return resolve(s.baseDir, "reports/"+id+".json")
}

// SaveReport writes the report JSON, replacing any previous version.
func (s *ReportStore) SaveReport(_ context.Context, report lead.Report) error {
	if report.ID == "" {
		return errors.New("report id is required")
	}
	fullPath, err := s.path(report.ID)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(fullPath, bytes.NewReader(payload))
}

// GetReport reads a report back by ID.
func (s *ReportStore) GetReport(_ context.Context, id string) (lead.Report, error) {
	fullPath, err := s.path(id)
	if err != nil {
		return lead.Report{}, fmt.Errorf("%w: %s", lead.ErrReportNotFound, id)
	}
	// #nosec G304 -- fullPath is confined to the base directory by resolve.
	payload, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return lead.Report{}, fmt.Errorf("%w: %s", lead.ErrReportNotFound, id)
	}
	if err != nil {
		return lead.Report{}, fmt.Errorf("read report: %w", err)
	}
	var report lead.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return lead.Report{}, fmt.Errorf("decode report: %w", err)
	}
	return report, nil
}
