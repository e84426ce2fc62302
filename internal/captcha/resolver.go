package captcha

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/clock"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/metrics"
	"github.com/JakeFAU/leadscout/internal/pacing"
)

// DefaultComment is sent to human solvers with every task.
const DefaultComment = "Пожалуйста, кликните на все объекты, указанные в задании"

// Selectors locate the challenge widgets.
type Selectors struct {
	Checkbox       string
	CheckboxButton string
	Image          string
	// Instructions is optional; when it matches, its screenshot is sent
	// as imginstructions.
	Instructions string
	Submit       string
	Container    string
}

// DefaultSelectors match Yandex SmartCaptcha markup.
var DefaultSelectors = Selectors{
	Checkbox:       ".CheckboxCaptcha",
	CheckboxButton: ".CheckboxCaptcha-Button",
	Image:          ".AdvancedCaptcha-Image",
	Instructions:   ".AdvancedCaptcha-SilhouetteTask",
	Submit:         ".CaptchaButton_view_action",
	Container:      ".AdvancedCaptcha",
}

// Config tunes the resolver.
type Config struct {
	Selectors    Selectors
	Comment      string
	PollInterval time.Duration
	MaxPolls     int
	// ImageTimeout bounds the wait for the challenge image to render.
	ImageTimeout time.Duration
	// ArtifactPrefix is the blob path prefix for failure screenshots.
	ArtifactPrefix string
}

// DefaultConfig polls every 5s for up to 24 attempts.
func DefaultConfig() Config {
	return Config{
		Selectors:      DefaultSelectors,
		Comment:        DefaultComment,
		PollInterval:   5 * time.Second,
		MaxPolls:       24,
		ImageTimeout:   20 * time.Second,
		ArtifactPrefix: "captcha",
	}
}

// Resolver drives the challenge state machine against one session.
type Resolver struct {
	cfg    Config
	solver Solver
	pacer  pacing.Pacer
	blobs  lead.BlobStore
	clock  lead.Clock
	logger *zap.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithArtifacts stores a page screenshot whenever resolution fails.
func WithArtifacts(store lead.BlobStore) Option {
	return func(r *Resolver) {
		r.blobs = store
	}
}

// WithClock overrides the clock used for artifact names.
func WithClock(c lead.Clock) Option {
	return func(r *Resolver) {
		r.clock = c
	}
}

// NewResolver constructs a Resolver. Zero values in cfg fall back to
// DefaultConfig.
func NewResolver(cfg Config, solver Solver, pacer pacing.Pacer, logger *zap.Logger, opts ...Option) *Resolver {
	def := DefaultConfig()
	if cfg.Selectors == (Selectors{}) {
		cfg.Selectors = def.Selectors
	}
	if cfg.Comment == "" {
		cfg.Comment = def.Comment
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = def.MaxPolls
	}
	if cfg.ImageTimeout <= 0 {
		cfg.ImageTimeout = def.ImageTimeout
	}
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = def.ArtifactPrefix
	}
	if pacer == nil {
		pacer = pacing.NewHuman()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		cfg:    cfg,
		solver: solver,
		pacer:  pacer,
		clock:  clock.System{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve probes the current page for challenges and tries to clear them.
// It never returns an error: failures are reported through the Outcome and
// the caller continues with whatever the page offers.
func (r *Resolver) Resolve(ctx context.Context, sess lead.Session) Outcome {
	out := Outcome{}
	out.enter(StateNone)

	clickErr := r.clickCheckbox(ctx, sess, &out)

	sel := r.cfg.Selectors
	graphical, err := sess.Exists(ctx, sel.Image)
	if err != nil {
		r.fail(ctx, sess, &out, StateFailed, fmt.Errorf("probe challenge image: %w", err))
		return r.finish(out)
	}
	if !graphical {
		if clickErr != nil {
			r.fail(ctx, sess, &out, StateFailed, fmt.Errorf("click checkbox: %w", clickErr))
			return r.finish(out)
		}
		// A clicked checkbox with nothing behind it is taken as passed.
		if out.State == StateCheckboxClicked {
			out.enter(StateSolved)
		}
		return r.finish(out)
	}
	out.enter(StateGraphicalDetected)

	if r.solver == nil {
		r.fail(ctx, sess, &out, StateFailed, errors.New("no solver configured"))
		return r.finish(out)
	}
	if err := sess.WaitFor(ctx, sel.Image, r.cfg.ImageTimeout); err != nil {
		r.fail(ctx, sess, &out, StateFailed, fmt.Errorf("wait for challenge image: %w", err))
		return r.finish(out)
	}

	task, err := r.captureTask(ctx, sess)
	if err != nil {
		r.fail(ctx, sess, &out, StateFailed, err)
		return r.finish(out)
	}
	taskID, err := r.solver.CreateTask(ctx, task)
	if err != nil {
		r.fail(ctx, sess, &out, StateFailed, fmt.Errorf("create task: %w", err))
		return r.finish(out)
	}
	out.TaskID = taskID
	out.enter(StateTaskSubmitted)
	r.logger.Info("captcha task submitted", zap.Int64("task_id", taskID))

	points, state, err := r.poll(ctx, taskID, &out)
	if err != nil {
		r.fail(ctx, sess, &out, state, err)
		return r.finish(out)
	}

	if err := r.replay(ctx, sess, points); err != nil {
		r.fail(ctx, sess, &out, StateFailed, fmt.Errorf("replay solution: %w", err))
		return r.finish(out)
	}

	still, err := sess.Exists(ctx, r.challengeSelector())
	switch {
	case err != nil:
		r.fail(ctx, sess, &out, StateFailed, fmt.Errorf("confirm challenge cleared: %w", err))
	case still:
		r.fail(ctx, sess, &out, StateFailed, errors.New("challenge still present after submit"))
	default:
		out.enter(StateSolved)
	}
	return r.finish(out)
}

// clickCheckbox presses the checkbox challenge when present. A click error is
// only fatal when no graphical challenge follows.
func (r *Resolver) clickCheckbox(ctx context.Context, sess lead.Session, out *Outcome) error {
	sel := r.cfg.Selectors
	present, err := sess.Exists(ctx, sel.Checkbox)
	if err != nil || !present {
		return nil
	}
	out.enter(StateCheckboxDetected)
	r.pacer.Pause(ctx, pacing.PreClick)
	if err := sess.Click(ctx, sel.CheckboxButton); err != nil {
		r.logger.Warn("checkbox click failed", zap.Error(err))
		return err
	}
	out.enter(StateCheckboxClicked)
	r.pacer.Pause(ctx, pacing.Settle)
	return nil
}

func (r *Resolver) captureTask(ctx context.Context, sess lead.Session) (Task, error) {
	sel := r.cfg.Selectors
	body, err := sess.Screenshot(ctx, sel.Image)
	if err != nil {
		return Task{}, fmt.Errorf("capture challenge image: %w", err)
	}
	task := Task{Body: body, Comment: r.cfg.Comment}
	if sel.Instructions == "" {
		return task, nil
	}
	if ok, err := sess.Exists(ctx, sel.Instructions); err == nil && ok {
		instructions, err := sess.Screenshot(ctx, sel.Instructions)
		if err != nil {
			r.logger.Debug("instructions capture failed", zap.Error(err))
			return task, nil
		}
		task.Instructions = instructions
	}
	return task, nil
}

// poll asks for the task result every PollInterval, at most MaxPolls times.
func (r *Resolver) poll(ctx context.Context, taskID int64, out *Outcome) ([]lead.Point, State, error) {
	out.enter(StatePolling)
	for attempt := 1; attempt <= r.cfg.MaxPolls; attempt++ {
		if err := pacing.Sleep(ctx, r.cfg.PollInterval); err != nil {
			return nil, StateTimeout, fmt.Errorf("%w: %w", lead.ErrCaptchaUnresolved, err)
		}
		res, err := r.solver.TaskResult(ctx, taskID)
		if err != nil {
			return nil, StateFailed, fmt.Errorf("poll task %d: %w", taskID, err)
		}
		if res.Ready {
			return res.Coordinates, StatePolling, nil
		}
		r.logger.Debug("captcha task processing", zap.Int64("task_id", taskID), zap.Int("attempt", attempt))
	}
	return nil, StateTimeout, fmt.Errorf("%w: no solution after %d polls", lead.ErrCaptchaUnresolved, r.cfg.MaxPolls)
}

// replay clicks each solution point relative to the challenge image, then
// submits the answer.
func (r *Resolver) replay(ctx context.Context, sess lead.Session, points []lead.Point) error {
	sel := r.cfg.Selectors
	origin, err := sess.Origin(ctx, sel.Image)
	if err != nil {
		return err
	}
	for _, p := range points {
		target := origin.Add(p)
		r.pacer.Pause(ctx, pacing.Step)
		if err := sess.MoveTo(ctx, target); err != nil {
			return err
		}
		r.pacer.Pause(ctx, pacing.Step)
		if err := sess.ClickAt(ctx, target); err != nil {
			return err
		}
	}
	if sel.Submit != "" {
		if ok, err := sess.Exists(ctx, sel.Submit); err == nil && ok {
			r.pacer.Pause(ctx, pacing.PreClick)
			if err := sess.Click(ctx, sel.Submit); err != nil {
				return err
			}
		}
	}
	r.pacer.Pause(ctx, pacing.Settle)
	return nil
}

func (r *Resolver) challengeSelector() string {
	if r.cfg.Selectors.Container != "" {
		return r.cfg.Selectors.Container
	}
	return r.cfg.Selectors.Image
}

func (r *Resolver) fail(ctx context.Context, sess lead.Session, out *Outcome, state State, err error) {
	if !errors.Is(err, lead.ErrCaptchaUnresolved) {
		err = fmt.Errorf("%w: %w", lead.ErrCaptchaUnresolved, err)
	}
	out.enter(state)
	out.Err = err
	out.Artifact = r.storeArtifact(ctx, sess, state)
}

// storeArtifact saves a viewport screenshot; failures are only logged.
func (r *Resolver) storeArtifact(ctx context.Context, sess lead.Session, state State) string {
	if r.blobs == nil {
		return ""
	}
	// The request context may already be done after a timeout.
	ctx = context.WithoutCancel(ctx)
	shot, err := sess.Screenshot(ctx, "")
	if err != nil {
		r.logger.Warn("failure screenshot", zap.Error(err))
		return ""
	}
	requestID := lead.RequestID(ctx)
	if requestID == "" {
		requestID = "adhoc"
	}
	path := fmt.Sprintf("%s/%s/%s-%s.png", r.cfg.ArtifactPrefix, requestID, r.clock.Now().UTC().Format("20060102T150405.000Z"), state)
	uri, err := r.blobs.PutObject(ctx, path, "image/png", bytes.NewReader(shot))
	if err != nil {
		r.logger.Warn("store failure screenshot", zap.String("path", path), zap.Error(err))
		return ""
	}
	return uri
}

func (r *Resolver) finish(out Outcome) Outcome {
	metrics.ObserveCaptcha(string(out.State))
	switch out.State {
	case StateNone:
	case StateSolved:
		r.logger.Info("captcha solved", zap.Any("trail", out.Trail))
	default:
		r.logger.Warn("captcha unresolved",
			zap.String("state", string(out.State)),
			zap.Int64("task_id", out.TaskID),
			zap.Error(out.Err))
	}
	return out
}
