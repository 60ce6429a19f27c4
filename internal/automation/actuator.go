package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Method is one interaction technique in the cascade.
type Method string

const (
	MethodNative  Method = "native"
	MethodScript  Method = "script"
	MethodPointer Method = "pointer"
	MethodKeys    Method = "keys"
)

// InteractionAttempt records one (method, outcome) pair. It is only used for
// logging and retry bookkeeping.
type InteractionAttempt struct {
	Target string
	Method Method
	Round  int
	Err    error
	Took   time.Duration
}

// Succeeded reports whether the attempt worked.
func (a InteractionAttempt) Succeeded() bool { return a.Err == nil }

// FailureHook is invoked once when an action is abandoned. The workflow uses
// it to capture a diagnostic screenshot.
type FailureHook func(ctx context.Context, name string)

// Actuator performs clicks and typing with a fallback cascade.
type Actuator struct {
	driver    Driver
	policy    Policy
	logger    *zap.Logger
	onFailure FailureHook
	record    func(InteractionAttempt)
}

// ActuatorOption configures an Actuator.
type ActuatorOption func(*Actuator)

// WithFailureHook installs a hook fired when an action is abandoned.
func WithFailureHook(h FailureHook) ActuatorOption {
	return func(a *Actuator) { a.onFailure = h }
}

// WithAttemptRecorder receives every InteractionAttempt.
func WithAttemptRecorder(f func(InteractionAttempt)) ActuatorOption {
	return func(a *Actuator) { a.record = f }
}

// NewActuator creates an actuator over d.
func NewActuator(d Driver, p Policy, logger *zap.Logger, opts ...ActuatorOption) *Actuator {
	a := &Actuator{
		driver: d,
		policy: p,
		logger: logger.Named("actuator"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the retry policy in effect.
func (a *Actuator) Policy() Policy { return a.policy }

// Click scrolls el into view once, then runs native, script and pointer
// clicks per round until one succeeds or the rounds are exhausted.
func (a *Actuator) Click(ctx context.Context, el Element, desc string) error {
	if err := a.driver.ScrollIntoView(ctx, el); err != nil {
		a.logger.Debug("Scroll into view failed", zap.String("target", desc), zap.Error(err))
	}
	if err := a.policy.Pause(ctx, a.policy.ScrollSettle); err != nil {
		return err
	}

	methods := []struct {
		method Method
		do     func(context.Context, Element) error
	}{
		{MethodNative, a.driver.ClickNative},
		{MethodScript, a.driver.ClickScript},
		{MethodPointer, a.driver.ClickPointer},
	}

	var lastErr error
	for round := 1; round <= a.policy.Rounds; round++ {
		for i, m := range methods {
			start := time.Now()
			err := m.do(ctx, el)
			a.note(InteractionAttempt{Target: desc, Method: m.method, Round: round, Err: err, Took: time.Since(start)})
			if err == nil {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < len(methods)-1 {
				if err := a.policy.Pause(ctx, a.policy.MethodDelay); err != nil {
					return err
				}
			}
		}
		if round < a.policy.Rounds {
			if err := a.policy.Pause(ctx, a.policy.RoundDelay); err != nil {
				return err
			}
		}
	}
	return a.fail(ctx, "click", desc, lastErr)
}

// Type focuses el and submits text one character at a time.
func (a *Actuator) Type(ctx context.Context, el Element, text, desc string) error {
	return a.TypeWithDelay(ctx, el, text, a.policy.KeystrokeDelay, desc)
}

// TypeWithDelay is Type with an explicit inter-character delay.
func (a *Actuator) TypeWithDelay(ctx context.Context, el Element, text string, delay time.Duration, desc string) error {
	if err := a.driver.Focus(ctx, el); err != nil {
		a.logger.Debug("Focus failed before typing", zap.String("target", desc), zap.Error(err))
	}
	start := time.Now()
	for _, r := range text {
		if err := a.driver.SendKeys(ctx, el, string(r)); err != nil {
			a.note(InteractionAttempt{Target: desc, Method: MethodKeys, Round: 1, Err: err, Took: time.Since(start)})
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return a.fail(ctx, "type", desc, err)
		}
		if err := a.policy.Pause(ctx, delay); err != nil {
			return err
		}
	}
	a.note(InteractionAttempt{Target: desc, Method: MethodKeys, Round: 1, Took: time.Since(start)})
	return nil
}

// Press sends a single key such as KeyEnter to el.
func (a *Actuator) Press(ctx context.Context, el Element, key, desc string) error {
	if err := a.driver.SendKeys(ctx, el, key); err != nil {
		a.note(InteractionAttempt{Target: desc, Method: MethodKeys, Round: 1, Err: err})
		return a.fail(ctx, "press", desc, err)
	}
	return nil
}

// ClearAndType empties el and types text.
func (a *Actuator) ClearAndType(ctx context.Context, el Element, text, desc string) error {
	if err := a.driver.Clear(ctx, el); err != nil {
		a.logger.Debug("Clear failed before typing", zap.String("target", desc), zap.Error(err))
	}
	return a.Type(ctx, el, text, desc)
}

func (a *Actuator) note(at InteractionAttempt) {
	if at.Err != nil {
		a.logger.Debug("Interaction attempt failed",
			zap.String("target", at.Target), zap.String("method", string(at.Method)),
			zap.Int("round", at.Round), zap.Error(at.Err))
	}
	if a.record != nil {
		a.record(at)
	}
}

func (a *Actuator) fail(ctx context.Context, action, desc string, cause error) error {
	a.logger.Warn("Action abandoned", zap.String("action", action), zap.String("target", desc), zap.Error(cause))
	if a.onFailure != nil {
		a.onFailure(ctx, action+"_failed_"+desc)
	}
	return fmt.Errorf("%s %q: %w", action, desc, errors.Join(ErrActionFailed, cause))
}
