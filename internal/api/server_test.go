package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/storage/memory"
)

const reportID = "01909c1e-7f3a-7b3c-9d4e-1a2b3c4d5e6f"

type fakeRunner struct {
	mu     sync.Mutex
	err    error
	report lead.Report
	got    []lead.Request
	panics bool
}

func (f *fakeRunner) Run(_ context.Context, req lead.Request) (lead.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("pipeline exploded")
	}
	f.got = append(f.got, req)
	if f.err != nil {
		return lead.Report{}, f.err
	}
	rep := f.report
	rep.Identity = req.Identity
	rep.Query = req.Query
	return rep, nil
}

func (f *fakeRunner) requests() []lead.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lead.Request(nil), f.got...)
}

func newTestServer(runner Runner, reports lead.ReportStore, auth config.AuthConfig) *Server {
	return NewServer(runner, reports, auth, zap.NewNop())
}

func postSearch(t *testing.T, srv *Server, identity, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/searches", bytes.NewBufferString(body))
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSubmitSearchSucceeds(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{report: lead.Report{
		ID: reportID,
		Results: []lead.ExtractionResult{{
			URL:      "https://okna.example/",
			Phones:   []string{"+74951234567"},
			INNs:     []string{"7707083893"},
			Revenues: map[string]lead.FinancialRecord{"7707083893": lead.NotFound("no match")},
		}},
	}}
	srv := newTestServer(runner, nil, config.AuthConfig{})

	rec := postSearch(t, srv, "42", `{"query":" пластиковые окна ","max_results":3}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var got lead.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Equal(t, reportID, got.ID)
	require.Equal(t, "42", got.Identity)
	require.Equal(t, []string{"+74951234567"}, got.Results[0].Phones)

	require.Equal(t, []lead.Request{{Identity: "42", Query: "пластиковые окна", MaxResults: 3}}, runner.requests())
}

func TestSubmitSearchBadRequests(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity string
		body     string
		want     string
	}{
		{"missing identity", "", `{"query":"окна"}`, "X-Client-ID"},
		{"invalid json", "42", `{oops`, "invalid JSON"},
		{"blank query", "42", `{"query":"   "}`, "query required"},
		{"negative max", "42", `{"query":"окна","max_results":-1}`, "max_results"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			runner := &fakeRunner{}
			rec := postSearch(t, newTestServer(runner, nil, config.AuthConfig{}), tc.identity, tc.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Contains(t, rec.Body.String(), tc.want)
			require.Empty(t, runner.requests())
		})
	}
}

func TestSubmitSearchIdentityAllowList(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	srv := newTestServer(runner, nil, config.AuthConfig{AllowedIdentities: []string{"42"}})

	rec := postSearch(t, srv, "13", `{"query":"окна"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, runner.requests())

	rec = postSearch(t, srv, "42", `{"query":"окна"}`)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitSearchMapsRunnerErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{lead.ErrGlobalLimit, http.StatusTooManyRequests},
		{lead.ErrIdentityLimit, http.StatusTooManyRequests},
		{fmt.Errorf("%w: chrome missing", lead.ErrSessionUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: bad", lead.ErrValidationRejected), http.StatusBadRequest},
		{context.Canceled, http.StatusRequestTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.err.Error(), func(t *testing.T) {
			t.Parallel()
			srv := newTestServer(&fakeRunner{err: tc.err}, nil, config.AuthConfig{})
			rec := postSearch(t, srv, "42", `{"query":"окна"}`)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestSubmitSearchWithoutRunner(t *testing.T) {
	t.Parallel()

	rec := postSearch(t, newTestServer(nil, nil, config.AuthConfig{}), "42", `{"query":"окна"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	srv := newTestServer(runner, nil, config.AuthConfig{Enabled: true, APIKey: "secret"})

	rec := postSearch(t, srv, "42", `{"query":"окна"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postSearch(t, srv, "42", `{"query":"окна"}`, "X-API-Key", "secret")
	require.Equal(t, http.StatusOK, rec.Code)

	health := httptest.NewRecorder()
	srv.Handler().ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, health.Code)
}

func TestGetReport(t *testing.T) {
	t.Parallel()

	store := memory.NewReportStore()
	require.NoError(t, store.SaveReport(context.Background(), lead.Report{ID: reportID, Query: "окна"}))
	srv := newTestServer(&fakeRunner{}, store, config.AuthConfig{})

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	rec := get("/v1/searches/" + reportID)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "окна")

	rec = get("/v1/searches/01909c1e-0000-7000-8000-000000000000")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = get("/v1/searches/not-a-uuid")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetReportWithoutStore(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{}, nil, config.AuthConfig{})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/searches/"+reportID, nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{}, nil, config.AuthConfig{})
	for path, want := range map[string]string{
		"/healthz": "ok",
		"/readyz":  "ready",
		"/metrics": "leadscout_",
	} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Contains(t, rec.Body.String(), want, path)
	}

	rec := httptest.NewRecorder()
	newTestServer(nil, nil, config.AuthConfig{}).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{panics: true}, nil, config.AuthConfig{})
	rec := postSearch(t, srv, "42", `{"query":"окна"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestRequestIDMiddlewareKeepsIncomingID(t *testing.T) {
	t.Parallel()

	srv := newTestServer(&fakeRunner{}, nil, config.AuthConfig{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, "caller-id", rec.Header().Get("X-Request-ID"))
}
