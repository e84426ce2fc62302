package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/id/uuid"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
)

// IdentityHeader carries the calling identity used for admission control.
const IdentityHeader = "X-Client-ID"

const reportLookupTimeout = 5 * time.Second

// Runner executes one lead request.
type Runner interface {
	Run(ctx context.Context, req lead.Request) (lead.Report, error)
}

// Server wires HTTP handlers to the pipeline and report store.
type Server struct {
	router  chi.Router
	runner  Runner
	reports lead.ReportStore
	auth    config.AuthConfig
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. reports may be
// nil, in which case report lookups answer 503.
func NewServer(runner Runner, reports lead.ReportStore, auth config.AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runner:  runner,
		reports: reports,
		auth:    auth,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1/searches", func(r chi.Router) {
		if auth.Enabled {
			r.Use(apiKeyMiddleware(auth.APIKey))
		}
		r.Post("/", s.submitSearch)
		r.Get("/{report_id}", s.getReport)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// submitSearch handles POST /v1/searches. It blocks until the search finishes
// and answers 200 with the report, 400 for a missing identity or query, 403
// for identities outside the allow-list, 429 on admission rejection, 503 when
// no browser session can be opened, and 500 otherwise.
func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	identity := strings.TrimSpace(r.Header.Get(IdentityHeader))
	if identity == "" {
		writeError(w, http.StatusBadRequest, "missing "+IdentityHeader+" header")
		return
	}
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query required")
		return
	}
	if req.MaxResults < 0 {
		writeError(w, http.StatusBadRequest, "max_results must not be negative")
		return
	}
	if !s.auth.IdentityAllowed(identity) {
		writeError(w, http.StatusForbidden, "identity not allowed")
		return
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not configured")
		return
	}

	report, err := s.runner.Run(r.Context(), lead.Request{
		Identity:   identity,
		Query:      strings.TrimSpace(req.Query),
		MaxResults: req.MaxResults,
	})
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("search failed", zap.String("identity", identity), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, lead.ErrAdmissionRejected):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, lead.ErrValidationRejected):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, lead.ErrSessionUnavailable):
		return http.StatusServiceUnavailable, "browser session unavailable"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, "request canceled"
	default:
		return http.StatusInternalServerError, "search failed"
	}
}

// getReport handles GET /v1/searches/{report_id}: 200 with the report, 400 for
// malformed IDs, 404 for unknown ones, 503 without a report store.
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report store unavailable")
		return
	}
	reportID := chi.URLParam(r, "report_id")
	if !uuid.Valid(reportID) {
		writeError(w, http.StatusBadRequest, "invalid report id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), reportLookupTimeout)
	defer cancel()

	report, err := s.reports.GetReport(ctx, reportID)
	if err != nil {
		if errors.Is(err, lead.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		s.logger.Error("get report failed", zap.String("report_id", reportID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
