// Package pipeline sequences one lead request: admission, session, harvest,
// and per-URL navigate → challenge → extract → enrich.
//
// Failures are recorded as tagged stage outcomes on each URL's result. The
// only request-fatal conditions are admission rejection and failing to open a
// browser session.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/captcha"
	"github.com/JakeFAU/leadscout/internal/extract"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/logging"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/pacing"
	"github.com/JakeFAU/leadscout/internal/skiplist"
)

// Harvester turns a query into candidate URLs.
type Harvester interface {
	Harvest(ctx context.Context, sess lead.Session, query string, maxResults int) []lead.Candidate
}

// ChallengeResolver clears a challenge on the current page.
type ChallengeResolver interface {
	Resolve(ctx context.Context, sess lead.Session) captcha.Outcome
}

// ContactExtractor reads phones and INNs from the current page.
type ContactExtractor interface {
	Extract(ctx context.Context, sess lead.Session) (extract.Contacts, error)
}

// Enricher resolves an INN to financial fields. It never fails; unresolved
// INNs yield a placeholder record.
type Enricher interface {
	Lookup(ctx context.Context, sess lead.Session, inn string) lead.FinancialRecord
}

// Admitter gates concurrent requests.
type Admitter interface {
	Acquire(identity string) (func(), error)
}

// Config tunes request defaults.
type Config struct {
	DefaultMaxResults int
	MaxResultsCap     int
	// Topic receives a Summary per finished report. Empty disables publishing.
	Topic           string
	DeliveryTimeout time.Duration
}

// Deps are the collaborators of an Orchestrator. Reports and Publisher are
// optional.
type Deps struct {
	Sessions  lead.SessionFactory
	Admission Admitter
	Harvester Harvester
	Resolver  ChallengeResolver
	Extractor ContactExtractor
	Enricher  Enricher
	Skip      *skiplist.List
	Throttle  lead.Throttle
	Pacer     pacing.Pacer
	IDs       lead.IDGenerator
	Clock     lead.Clock
	Reports   lead.ReportStore
	Publisher lead.Publisher
	Logger    *zap.Logger
}

// Orchestrator runs requests end to end.
type Orchestrator struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

// New validates deps and returns an Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	var missing []string
	for name, ok := range map[string]bool{
		"sessions":  deps.Sessions != nil,
		"admission": deps.Admission != nil,
		"harvester": deps.Harvester != nil,
		"resolver":  deps.Resolver != nil,
		"extractor": deps.Extractor != nil,
		"enricher":  deps.Enricher != nil,
		"ids":       deps.IDs != nil,
		"clock":     deps.Clock != nil,
	} {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("pipeline: missing dependencies: %s", strings.Join(missing, ", "))
	}
	if deps.Pacer == nil {
		deps.Pacer = pacing.NewHuman()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = 5
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 10 * time.Second
	}
	return &Orchestrator{cfg: cfg, deps: deps, log: deps.Logger.Named("pipeline")}, nil
}

func (o *Orchestrator) maxResults(requested int) int {
	n := requested
	if n <= 0 {
		n = o.cfg.DefaultMaxResults
	}
	if o.cfg.MaxResultsCap > 0 && n > o.cfg.MaxResultsCap {
		n = o.cfg.MaxResultsCap
	}
	return n
}

// Run admits req, opens a dedicated session, harvests candidates and
// processes them. Rejected requests never open a session.
func (o *Orchestrator) Run(ctx context.Context, req lead.Request) (lead.Report, error) {
	if strings.TrimSpace(req.Identity) == "" || strings.TrimSpace(req.Query) == "" {
		return lead.Report{}, fmt.Errorf("%w: identity and query are required", lead.ErrValidationRejected)
	}

	release, err := o.deps.Admission.Acquire(req.Identity)
	if err != nil {
		metrics.ObserveRequest(admissionOutcome(err))
		o.log.Info("request rejected", zap.String("identity", req.Identity), zap.Error(err))
		return lead.Report{}, err
	}
	defer release()

	metrics.IncInFlight()
	defer metrics.DecInFlight()

	id, err := o.deps.IDs.NewID()
	if err != nil {
		metrics.ObserveRequest("error")
		return lead.Report{}, fmt.Errorf("generate report id: %w", err)
	}
	ctx = lead.WithRequestID(ctx, id)
	log := logging.ForRequest(ctx, o.log).With(zap.String("identity", req.Identity))

	report := lead.Report{
		ID:        id,
		Identity:  req.Identity,
		Query:     req.Query,
		StartedAt: o.deps.Clock.Now(),
	}
	defer func() {
		metrics.ObserveRequestDuration(o.deps.Clock.Now().Sub(report.StartedAt))
	}()

	sess, err := o.deps.Sessions.NewSession(ctx)
	if err != nil {
		metrics.ObserveRequest("session_unavailable")
		log.Error("browser session unavailable", zap.Error(err))
		return lead.Report{}, fmt.Errorf("%w: %w", lead.ErrSessionUnavailable, err)
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Warn("close session", zap.Error(cerr))
		}
	}()

	limit := o.maxResults(req.MaxResults)
	log.Info("request started", zap.String("query", req.Query), zap.Int("max_results", limit))

	report.Candidates = o.deps.Harvester.Harvest(ctx, sess, req.Query, limit)
	urls := make([]string, 0, len(report.Candidates))
	for _, c := range report.Candidates {
		urls = append(urls, c.URL)
	}
	report.Results = o.Process(ctx, sess, urls)
	report.FinishedAt = o.deps.Clock.Now()

	o.deliver(ctx, log, report)
	metrics.ObserveRequest("completed")
	log.Info("request finished",
		zap.Int("candidates", len(report.Candidates)),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func admissionOutcome(err error) string {
	switch {
	case errors.Is(err, lead.ErrIdentityLimit):
		return "rejected_identity"
	case errors.Is(err, lead.ErrGlobalLimit):
		return "rejected_global"
	default:
		return "rejected"
	}
}

// deliver stores and publishes the report. Both sinks are best-effort.
func (o *Orchestrator) deliver(ctx context.Context, log *zap.Logger, report lead.Report) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.DeliveryTimeout)
	defer cancel()

	if o.deps.Reports != nil {
		if err := o.deps.Reports.SaveReport(ctx, report); err != nil {
			metrics.ObserveReportDeliveryFailure("report_store")
			log.Warn("save report", zap.Error(err))
		}
	}
	if o.deps.Publisher != nil && o.cfg.Topic != "" {
		msgID, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, Summarize(report))
		if err != nil {
			metrics.ObserveReportDeliveryFailure("publisher")
			log.Warn("publish report summary", zap.Error(err))
			return
		}
		log.Debug("report summary published", zap.String("message_id", msgID))
	}
}

// Process handles urls in order on sess and returns exactly one result per
// URL. A failure on one URL never affects the others.
func (o *Orchestrator) Process(ctx context.Context, sess lead.Session, urls []string) []lead.ExtractionResult {
	results := make([]lead.ExtractionResult, 0, len(urls))
	for _, raw := range urls {
		res := o.processOne(ctx, sess, raw)
		metrics.ObserveURL(raw, urlStatus(res))
		results = append(results, res)
	}
	return results
}

func urlStatus(res lead.ExtractionResult) string {
	switch {
	case res.Skipped:
		return string(lead.StatusSkipped)
	case res.Failed():
		return string(lead.StatusFailed)
	default:
		return string(lead.StatusOK)
	}
}

// processOne runs the stages for one URL. A panic is converted into a failed
// result that keeps the stages recorded so far.
func (o *Orchestrator) processOne(ctx context.Context, sess lead.Session, raw string) (res lead.ExtractionResult) {
	res = lead.NewResult(raw)
	log := logging.ForRequest(ctx, o.log).With(zap.String("url", raw))
	stage := lead.StageSkip

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic in %s: %v", stage, r)
			log.Error("url processing panicked", zap.Error(err))
			stages := res.Stages
			res = lead.NewResult(raw)
			res.Stages = append(stages, lead.StageOutcome{Stage: stage, Status: lead.StatusFailed, Reason: err.Error()})
			res.Error = err.Error()
		}
	}()

	fail := func(err error) lead.ExtractionResult {
		log.Warn("url failed", zap.String("stage", string(stage)), zap.Error(err))
		res.Stages = append(res.Stages, lead.StageOutcome{Stage: stage, Status: lead.StatusFailed, Reason: err.Error()})
		res.Error = err.Error()
		return res
	}
	ok := func(reason string) {
		res.Stages = append(res.Stages, lead.StageOutcome{Stage: stage, Status: lead.StatusOK, Reason: reason})
	}

	if o.deps.Skip.Contains(raw) {
		log.Debug("url skipped")
		res.Skipped = true
		res.Stages = append(res.Stages, lead.StageOutcome{
			Stage: lead.StageSkip, Status: lead.StatusSkipped, Reason: lead.ErrSkippedDomain.Error(),
		})
		return res
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	stage = lead.StageNavigate
	if err := o.navigate(ctx, sess, raw); err != nil {
		return fail(err)
	}
	ok("")

	stage = lead.StageChallenge
	outcome := o.deps.Resolver.Resolve(ctx, sess)
	if outcome.Cleared() {
		ok(string(outcome.State))
	} else {
		// Soft: the page may still be partly readable.
		reason := string(outcome.State)
		if outcome.Err != nil {
			reason = outcome.Err.Error()
		}
		res.Stages = append(res.Stages, lead.StageOutcome{Stage: stage, Status: lead.StatusFailed, Reason: reason})
		log.Warn("challenge unresolved, continuing", zap.String("state", string(outcome.State)))
	}

	stage = lead.StageExtract
	contacts, err := o.deps.Extractor.Extract(ctx, sess)
	if err != nil {
		return fail(err)
	}
	if contacts.Phones != nil {
		res.Phones = contacts.Phones
	}
	if contacts.INNs != nil {
		res.INNs = contacts.INNs
	}
	ok(fmt.Sprintf("%d phones, %d inns", len(res.Phones), len(res.INNs)))

	stage = lead.StageEnrich
	found := 0
	for _, inn := range res.INNs {
		var record lead.FinancialRecord
		if err := ctx.Err(); err != nil {
			record = lead.NotFound(err.Error())
		} else {
			record = o.deps.Enricher.Lookup(ctx, sess, inn)
		}
		if record.Found() {
			found++
		}
		res.Revenues[inn] = record
	}
	if len(res.INNs) > 0 {
		ok(fmt.Sprintf("%d of %d resolved", found, len(res.INNs)))
	}
	return res
}

func (o *Orchestrator) navigate(ctx context.Context, sess lead.Session, raw string) error {
	if o.deps.Throttle != nil {
		if err := o.deps.Throttle.Wait(ctx, raw); err != nil {
			return fmt.Errorf("throttle: %w", err)
		}
	}
	if err := sess.Open(ctx, raw); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	o.deps.Pacer.Pause(ctx, pacing.General)
	if err := sess.ScrollToBottom(ctx); err != nil {
		logging.ForRequest(ctx, o.log).Debug("scroll to bottom", zap.String("url", raw), zap.Error(err))
	}
	o.deps.Pacer.Pause(ctx, pacing.General)
	return nil
}
