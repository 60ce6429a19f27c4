// Package workflow drives the portal wizards end to end. A run is all or
// nothing: the first required step that fails aborts it, and teardown runs on
// every exit path.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/classify"
)

// Step is one stage of a workflow. An optional step may fail without
// aborting the run.
type Step struct {
	Name     string
	Optional bool
	Run      func(ctx context.Context, out *Outcome) error
}

// Workflow is an ordered list of steps.
type Workflow interface {
	Name() string
	Steps() []Step
}

// Outcome summarizes a run.
type Outcome struct {
	Workflow   string
	Success    bool
	Completed  []string
	FailedStep string
	Err        error
	Verdict    *classify.Verdict
	Message    string
	Started    time.Time
	Duration   time.Duration
}

// Recorder saves a named screenshot and returns its path, or "" on failure.
type Recorder interface {
	Capture(ctx context.Context, name string) string
}

// Orchestrator runs workflows and tears down after each one.
type Orchestrator struct {
	logger          *zap.Logger
	shots           Recorder
	teardown        []func(ctx context.Context) error
	teardownTimeout time.Duration
	now             func() time.Time
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithTeardown adds a cleanup function run after every workflow, in
// reverse registration order.
func WithTeardown(f func(ctx context.Context) error) OrchestratorOption {
	return func(o *Orchestrator) { o.teardown = append(o.teardown, f) }
}

// WithScreenshots captures "<step>_failed" when a step fails.
func WithScreenshots(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.shots = r }
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(logger *zap.Logger, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		logger:          logger.Named("orchestrator"),
		teardownTimeout: 30 * time.Second,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes every step of wf in order. The returned error is the failing
// step's error wrapped with its name; the Outcome is filled either way.
func (o *Orchestrator) Run(ctx context.Context, wf Workflow) (out Outcome, err error) {
	out = Outcome{Workflow: wf.Name(), Started: o.now()}
	log := o.logger.With(zap.String("workflow", wf.Name()))
	log.Info("Workflow started")

	defer func() {
		o.runTeardown(ctx, log)
		out.Duration = o.now().Sub(out.Started)
		if err != nil {
			log.Error("Workflow failed", zap.String("step", out.FailedStep), zap.Duration("took", out.Duration), zap.Error(err))
			return
		}
		log.Info("Workflow completed", zap.Duration("took", out.Duration))
	}()

	for _, step := range wf.Steps() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return o.abort(ctx, &out, step.Name, ctxErr)
		}
		log.Info("Step started", zap.String("step", step.Name))
		stepErr := step.Run(ctx, &out)
		if stepErr == nil {
			out.Completed = append(out.Completed, step.Name)
			continue
		}
		if step.Optional && ctx.Err() == nil {
			log.Warn("Optional step skipped", zap.String("step", step.Name), zap.Error(stepErr))
			continue
		}
		return o.abort(ctx, &out, step.Name, stepErr)
	}
	out.Success = true
	return out, nil
}

func (o *Orchestrator) abort(ctx context.Context, out *Outcome, step string, cause error) (Outcome, error) {
	if o.shots != nil && !errors.Is(cause, context.Canceled) {
		o.shots.Capture(context.WithoutCancel(ctx), step+"_failed")
	}
	out.FailedStep = step
	out.Err = fmt.Errorf("step %s: %w", step, cause)
	return *out, out.Err
}

func (o *Orchestrator) runTeardown(ctx context.Context, log *zap.Logger) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.teardownTimeout)
	defer cancel()
	for i := len(o.teardown) - 1; i >= 0; i-- {
		if err := o.teardown[i](tctx); err != nil {
			log.Warn("Teardown step failed", zap.Error(err))
		}
	}
}
