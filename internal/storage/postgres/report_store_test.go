package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func sampleReport() lead.Report {
	started := time.Unix(1700000000, 0).UTC()
	return lead.Report{
		ID:         "0190a1b2-c3d4-7e5f",
		Identity:   "12345",
		Query:      "строительство бань Москва",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Minute),
		Results: []lead.ExtractionResult{{
			URL:    "https://bani.example.ru/",
			Phones: []string{"+74951234567"},
			INNs:   []string{"5003052454"},
			Revenues: map[string]lead.FinancialRecord{
				"5003052454": {Fields: []lead.Field{{Label: "Revenue", Value: "12 млн ₽"}}},
			},
		}},
	}
}

func TestSaveReportUpsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)

	report := sampleReport()
	payload, err := json.Marshal(report)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO reports").
		WithArgs(report.ID, report.Identity, report.Query, 1, report.StartedAt, report.FinishedAt, payload).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.SaveReport(context.Background(), report))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReportDecodesPayload(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "")
	require.NoError(t, err)

	report := sampleReport()
	payload, err := json.Marshal(report)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM reports").
		WithArgs(report.ID).
		WillReturnRows(mock.NewRows([]string{"payload"}).AddRow(payload))

	got, err := store.GetReport(context.Background(), report.ID)
	require.NoError(t, err)
	require.Equal(t, report.Query, got.Query)
	require.Equal(t, "Revenue: 12 млн ₽", got.Results[0].Revenues["5003052454"].String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReportNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewReportStoreWithPool(mock, "reports")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT payload FROM reports").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.GetReport(context.Background(), "missing")
	require.ErrorIs(t, err, lead.ErrReportNotFound)

	mock.ExpectQuery("SELECT payload FROM reports").
		WithArgs("boom").
		WillReturnError(errors.New("connection reset"))
	_, err = store.GetReport(context.Background(), "boom")
	require.Error(t, err)
	require.NotErrorIs(t, err, lead.ErrReportNotFound)
}

func TestEnsureSchemaAndValidation(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewReportStoreWithPool(mock, "reports; DROP TABLE x")
	require.Error(t, err)

	store, err := NewReportStoreWithPool(mock, "lead_reports")
	require.NoError(t, err)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS lead_reports").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.Error(t, store.SaveReport(context.Background(), lead.Report{}))
	require.NoError(t, mock.ExpectationsWereMet())
}
