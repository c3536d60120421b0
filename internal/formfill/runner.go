// internal/formfill/runner.go
package formfill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	sessionCloseTimeout     = 15 * time.Second
	defaultConfirmTimeout   = 10 * time.Second
	confirmPollInterval     = 250 * time.Millisecond
	defaultReadinessTimeout = 30 * time.Second
)

// Runner submits a form once per target using a fixed plan.
// Targets are processed strictly one at a time, in order.
type Runner struct {
	factory  SessionFactory
	logger   *zap.Logger
	policy   FailurePolicy
	limiter  *rate.Limiter
	recorder Recorder
	now      func() time.Time
	newRunID func() string

	state   atomic.Int32
	running atomic.Bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithPolicy sets the failure policy. The default is PolicyAbort.
func WithPolicy(p FailurePolicy) Option {
	return func(r *Runner) { r.policy = p }
}

// WithMinInterval enforces a minimum gap between session openings.
func WithMinInterval(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.limiter = rate.NewLimiter(rate.Every(d), 1)
		} else {
			r.limiter = nil
		}
	}
}

// WithRecorder streams per-target and batch outcomes to rec.
func WithRecorder(rec Recorder) Option {
	return func(r *Runner) { r.recorder = rec }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithRunIDs overrides the run ID generator.
func WithRunIDs(gen func() string) Option {
	return func(r *Runner) { r.newRunID = gen }
}

// NewRunner creates a Runner that opens one session per target from factory.
func NewRunner(factory SessionFactory, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		factory:  factory,
		logger:   logger.Named("formfill"),
		policy:   PolicyAbort,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the lifecycle state of the most recent run.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run submits the form for every target in order. The returned error is only
// non-nil when the run could not start; target failures are reported through
// the BatchResult.
func (r *Runner) Run(ctx context.Context, targets []SubmissionTarget, plan FormFieldPlan) (*BatchResult, error) {
	if len(targets) == 0 {
		return nil, ErrNoTargets
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if !r.running.CompareAndSwap(false, true) {
		return nil, errors.New("batch already running")
	}
	defer r.running.Store(false)

	r.state.Store(int32(StateRunning))

	result := &BatchResult{
		RunID:     r.newRunID(),
		StartedAt: r.now(),
		Targets:   make([]TargetResult, 0, len(targets)),
	}
	log := r.logger.With(zap.String("run_id", result.RunID))
	log.Info("Starting form batch.",
		zap.Int("targets", len(targets)),
		zap.String("url", plan.URL),
		zap.String("policy", string(r.policy)))

	var failures []error
	stopped := false

	for _, target := range targets {
		if stopped {
			tr := TargetResult{Target: target, Status: TargetSkipped}
			result.Targets = append(result.Targets, tr)
			r.recordTarget(ctx, result.RunID, tr)
			continue
		}

		tr := r.process(ctx, log, target, plan)
		result.Targets = append(result.Targets, tr)
		r.recordTarget(ctx, result.RunID, tr)

		if tr.Status == TargetFailed {
			failures = append(failures, tr.Err)
			if r.policy != PolicyContinue || ctx.Err() != nil {
				stopped = true
			}
		}
	}

	result.FinishedAt = r.now()
	switch len(failures) {
	case 0:
		result.Status = BatchCompleted
		r.state.Store(int32(StateCompleted))
	case 1:
		result.Status = BatchAborted
		result.Err = failures[0]
		r.state.Store(int32(StateAborted))
	default:
		result.Status = BatchAborted
		result.Err = errors.Join(failures...)
		r.state.Store(int32(StateAborted))
	}

	submitted, failed, skipped := result.Counts()
	if result.Success() {
		log.Info("Form batch completed.", zap.Int("submitted", submitted))
	} else {
		log.Error("Form batch aborted.",
			zap.Int("submitted", submitted),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped),
			zap.Error(result.Err))
	}

	if r.recorder != nil {
		if err := r.recorder.RecordBatch(context.WithoutCancel(ctx), result); err != nil {
			log.Warn("Could not record batch outcome.", zap.Error(err))
		}
	}
	return result, nil
}

// process runs one target to completion and never panics the batch.
func (r *Runner) process(ctx context.Context, log *zap.Logger, target SubmissionTarget, plan FormFieldPlan) TargetResult {
	tr := TargetResult{Target: target, StartedAt: r.now()}
	log = log.With(zap.Int("index", target.Index), zap.String("identifier", target.Identifier))

	err := r.pace(ctx)
	if err == nil {
		log.Info("Filling out form.", zap.String("reference", target.Reference))
		tr.SessionID, err = r.submit(ctx, log, target, plan)
	}

	tr.FinishedAt = r.now()
	if err != nil {
		tr.Status = TargetFailed
		tr.Err = &TargetError{Index: target.Index, Identifier: target.Identifier, Err: err}
		log.Warn("Form submission failed.", zap.Error(err))
		return tr
	}
	tr.Status = TargetSubmitted
	log.Info("Successfully submitted form.", zap.Duration("took", tr.FinishedAt.Sub(tr.StartedAt)))
	return tr
}

func (r *Runner) pace(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.limiter == nil {
		return nil
	}
	return r.limiter.Wait(ctx)
}

// submit owns the session for exactly one target. The session is closed on
// every path out of this function.
func (r *Runner) submit(ctx context.Context, log *zap.Logger, target SubmissionTarget, plan FormFieldPlan) (sessionID string, err error) {
	session, err := r.factory.NewSession(ctx)
	if err != nil {
		return "", &SessionError{Op: "start", Err: err}
	}
	sessionID = session.ID()
	log = log.With(zap.String("session_id", sessionID))

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
		defer cancel()
		if cerr := session.Close(closeCtx); cerr != nil {
			if err == nil {
				err = &SessionError{Op: "close", Err: cerr}
				return
			}
			log.Warn("Failed to close browser session after error.", zap.Error(cerr))
		}
	}()

	err = r.fill(ctx, log, session, target, plan)
	return sessionID, err
}

func (r *Runner) fill(ctx context.Context, log *zap.Logger, session BrowserSession, target SubmissionTarget, plan FormFieldPlan) error {
	if err := session.Open(ctx, plan.URL); err != nil {
		return asNavigationError(err, plan.URL, "open")
	}
	if err := r.waitReady(ctx, session, plan); err != nil {
		return err
	}
	for _, step := range plan.Steps {
		if err := applyStep(ctx, session, step, target); err != nil {
			return err
		}
		log.Debug("Applied form step.", zap.String("step", step.Label()))
	}
	return r.confirm(ctx, session, plan)
}

func (r *Runner) waitReady(ctx context.Context, session BrowserSession, plan FormFieldPlan) error {
	rd := plan.Readiness
	if rd.Locator != nil {
		timeout := rd.Timeout
		if timeout <= 0 {
			timeout = defaultReadinessTimeout
		}
		if err := session.WaitVisible(ctx, *rd.Locator, timeout); err != nil {
			return asNavigationError(err, plan.URL, "ready")
		}
		return nil
	}
	if rd.SettleDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(rd.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return &NavigationError{URL: plan.URL, Phase: "ready", Err: ctx.Err()}
	case <-timer.C:
		return nil
	}
}

func applyStep(ctx context.Context, session BrowserSession, step Step, target SubmissionTarget) error {
	switch step.Action {
	case ActionType:
		elems, err := session.FindAll(ctx, step.Locator)
		if err != nil {
			return asLocatorError(err, step)
		}
		if len(elems) == 0 {
			return &ElementLocatorError{Step: step.Label(), Locator: step.Locator, Found: 0}
		}
		value := step.Value(target)
		for _, el := range elems {
			if err := el.SetText(ctx, value); err != nil {
				return fmt.Errorf("step %q: set text: %w", step.Label(), err)
			}
		}
	case ActionClick:
		el, err := session.Find(ctx, step.Locator)
		if err != nil {
			return asLocatorError(err, step)
		}
		if err := el.Click(ctx); err != nil {
			return fmt.Errorf("step %q: click: %w", step.Label(), err)
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidPlan, step.Action)
	}
	return nil
}

func (r *Runner) confirm(ctx context.Context, session BrowserSession, plan FormFieldPlan) error {
	c := plan.Confirmation
	if c.Text == "" {
		return nil
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultConfirmTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(confirmPollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		text, err := session.PageText(cctx)
		if err == nil && strings.Contains(text, c.Text) {
			return nil
		}
		if err != nil {
			lastErr = err
		}
		select {
		case <-cctx.Done():
			cause := fmt.Errorf("confirmation text %q not found: %w", c.Text, cctx.Err())
			if lastErr != nil {
				cause = fmt.Errorf("%w (last read error: %v)", cause, lastErr)
			}
			return &NavigationError{URL: plan.URL, Phase: "confirm", Err: cause}
		case <-ticker.C:
		}
	}
}

func (r *Runner) recordTarget(ctx context.Context, runID string, tr TargetResult) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordTarget(context.WithoutCancel(ctx), runID, tr); err != nil {
		r.logger.Warn("Could not record target outcome.",
			zap.String("run_id", runID),
			zap.String("identifier", tr.Target.Identifier),
			zap.Error(err))
	}
}

func asNavigationError(err error, url, phase string) error {
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return err
	}
	return &NavigationError{URL: url, Phase: phase, Err: err}
}

func asLocatorError(err error, step Step) error {
	var locErr *ElementLocatorError
	if errors.As(err, &locErr) {
		return err
	}
	return &ElementLocatorError{Step: step.Label(), Locator: step.Locator, Err: err}
}
