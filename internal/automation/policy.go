package automation

import (
	"context"
	"time"

	"github.com/xkilldash9x/availity-rpa/internal/config"
)

// Policy paces and bounds the actuator. Rounds bound the click cascade; the
// delays are settle times between methods, rounds and keystrokes.
type Policy struct {
	Rounds         int
	MethodDelay    time.Duration
	RoundDelay     time.Duration
	ScrollSettle   time.Duration
	KeystrokeDelay time.Duration

	// Sleep overrides the context-aware timer. Tests use it to observe pacing.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy mirrors the configuration defaults.
func DefaultPolicy() Policy {
	return Policy{
		Rounds:         3,
		MethodDelay:    500 * time.Millisecond,
		RoundDelay:     time.Second,
		ScrollSettle:   time.Second,
		KeystrokeDelay: 100 * time.Millisecond,
	}
}

// PolicyFromConfig builds a Policy from the actuation section.
func PolicyFromConfig(cfg config.ActuationConfig) Policy {
	p := Policy{
		Rounds:         cfg.Rounds,
		MethodDelay:    cfg.MethodDelay,
		RoundDelay:     cfg.RoundDelay,
		ScrollSettle:   cfg.ScrollSettle,
		KeystrokeDelay: cfg.KeystrokeDelay,
	}
	if p.Rounds <= 0 {
		p.Rounds = 1
	}
	return p
}

// ZeroDelayPolicy keeps the round count but never sleeps.
func ZeroDelayPolicy() Policy {
	return Policy{Rounds: 3}
}

// Pause waits for d or until ctx is done.
func (p Policy) Pause(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
