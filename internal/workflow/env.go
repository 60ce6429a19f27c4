package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/classify"
	"github.com/xkilldash9x/availity-rpa/internal/config"
	"github.com/xkilldash9x/availity-rpa/internal/formfill"
)

// CodeSource hands the run its one-time code. mfa.Client implements it.
type CodeSource interface {
	RequestSession(ctx context.Context) (string, error)
	WaitForCode(ctx context.Context, id string) (string, error)
}

// Env is everything a workflow step touches: one browser page and the
// engine built over it.
type Env struct {
	Driver   automation.Driver
	Resolver *automation.Resolver
	Actuator *automation.Actuator
	Frames   *automation.FrameNavigator
	Pipeline *formfill.Pipeline
	Kit      formfill.Kit
	Scanner  *classify.Scanner
	MFA      CodeSource
	Shots    Recorder

	Portal   config.PortalConfig
	Timeouts config.TimeoutConfig
	Logger   *zap.Logger

	// LoginPoll is how often the post-MFA URL change is checked.
	LoginPoll time.Duration
	// Settle is the fixed wait after page transitions.
	Settle time.Duration
	// Poll is how often multi-frame lookups re-query the page.
	Poll time.Duration
	// OptionalWait bounds lookups for controls the portal only sometimes shows.
	OptionalWait time.Duration
}

type envSettings struct {
	policy       automation.Policy
	delays       formfill.Delays
	pollInterval time.Duration
	scanOpts     []classify.ScannerOption
	loginPoll    time.Duration
	settle       time.Duration
	optionalWait time.Duration
}

// EnvOption tunes NewEnv, mostly for tests.
type EnvOption func(*envSettings)

// WithPolicy replaces the actuation policy derived from config.
func WithPolicy(p automation.Policy) EnvOption {
	return func(s *envSettings) { s.policy = p }
}

// WithDelays replaces the widget settle times.
func WithDelays(d formfill.Delays) EnvOption {
	return func(s *envSettings) { s.delays = d }
}

// WithPollInterval sets how often element waits re-query the page.
func WithPollInterval(d time.Duration) EnvOption {
	return func(s *envSettings) { s.pollInterval = d }
}

// WithScannerOptions passes options to the result scanner.
func WithScannerOptions(opts ...classify.ScannerOption) EnvOption {
	return func(s *envSettings) { s.scanOpts = append(s.scanOpts, opts...) }
}

// WithLoginPoll sets the post-MFA URL check interval.
func WithLoginPoll(d time.Duration) EnvOption {
	return func(s *envSettings) { s.loginPoll = d }
}

// WithSettle sets the fixed wait after page transitions.
func WithSettle(d time.Duration) EnvOption {
	return func(s *envSettings) { s.settle = d }
}

// WithOptionalWait bounds the wait for controls that may never show.
func WithOptionalWait(d time.Duration) EnvOption {
	return func(s *envSettings) { s.optionalWait = d }
}

// NewEnv wires the engine over d. Failed actions and failed fields are
// captured by shots.
func NewEnv(cfg *config.Config, d automation.Driver, codes CodeSource, shots Recorder, logger *zap.Logger, opts ...EnvOption) *Env {
	delays := formfill.DefaultDelays()
	if cfg.Actuation.DateKeystrokeDelay > 0 {
		delays.DateKey = cfg.Actuation.DateKeystrokeDelay
	}
	settings := envSettings{
		policy:       automation.PolicyFromConfig(cfg.Actuation),
		delays:       delays,
		pollInterval: 500 * time.Millisecond,
		scanOpts:     []classify.ScannerOption{classify.WithWait(cfg.Timeouts.Element)},
		loginPoll:    3 * time.Second,
		settle:       3 * time.Second,
		optionalWait: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	capture := func(ctx context.Context, name string) {
		if shots != nil {
			shots.Capture(context.WithoutCancel(ctx), name)
		}
	}

	resolver := automation.NewResolver(d, logger, automation.WithPollInterval(settings.pollInterval))
	actuator := automation.NewActuator(d, settings.policy, logger, automation.WithFailureHook(capture))
	frames := automation.NewFrameNavigator(d, logger)

	return &Env{
		Driver:   d,
		Resolver: resolver,
		Actuator: actuator,
		Frames:   frames,
		Pipeline: formfill.NewPipeline(logger, formfill.WithFieldFailureHook(capture)),
		Kit: formfill.Kit{
			Resolver: resolver,
			Actuator: actuator,
			Timeout:  cfg.Timeouts.Element,
			Delays:   settings.delays,
			Logger:   logger.Named("fillers"),
		},
		Scanner:   classify.NewScanner(d, frames, logger, settings.scanOpts...),
		MFA:       codes,
		Shots:     shots,
		Portal:    cfg.Portal,
		Timeouts:  cfg.Timeouts,
		Logger:    logger.Named("portal"),
		LoginPoll: settings.loginPoll,
		Settle:    settings.settle,
		Poll:      settings.pollInterval,

		OptionalWait: settings.optionalWait,
	}
}

func (e *Env) pause(ctx context.Context, d time.Duration) error {
	return e.Actuator.Policy().Pause(ctx, d)
}

func (e *Env) capture(ctx context.Context, name string) {
	if e.Shots != nil {
		e.Shots.Capture(ctx, name)
	}
}
