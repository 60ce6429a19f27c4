package automation

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ContentFrameIndex is the iframe that hosts the portal's forms. The portal
// renders a navigation iframe first and the application iframe second.
const ContentFrameIndex = 1

// FrameNavigator hands out scopes for the portal's documents. A scope obtained
// before a page transition must not be reused after it.
type FrameNavigator struct {
	driver       Driver
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewFrameNavigator creates a navigator over d.
func NewFrameNavigator(d Driver, logger *zap.Logger) *FrameNavigator {
	return &FrameNavigator{driver: d, logger: logger.Named("frames"), pollInterval: 500 * time.Millisecond}
}

// EnterContentFrame returns the scope of the second iframe on the page.
func (n *FrameNavigator) EnterContentFrame(ctx context.Context) (Scope, error) {
	frames, err := n.driver.Frames(ctx)
	if err != nil {
		return Scope{}, fmt.Errorf("listing frames: %w", err)
	}
	if len(frames) <= ContentFrameIndex {
		return Scope{}, fmt.Errorf("found %d iframe(s), need at least %d: %w", len(frames), ContentFrameIndex+1, ErrStructural)
	}
	scope := frames[ContentFrameIndex]
	n.logger.Debug("Entered content frame", zap.String("scope", scope.Name()), zap.Int("frames", len(frames)))
	return scope, nil
}

// AwaitContentFrame retries EnterContentFrame until the frame appears or
// timeout elapses. The portal injects its iframes after the shell loads.
func (n *FrameNavigator) AwaitContentFrame(ctx context.Context, timeout time.Duration) (Scope, error) {
	deadline := time.Now().Add(timeout)
	for {
		scope, err := n.EnterContentFrame(ctx)
		if err == nil {
			return scope, nil
		}
		if time.Now().After(deadline) {
			return Scope{}, err
		}
		timer := time.NewTimer(n.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Scope{}, ctx.Err()
		case <-timer.C:
		}
	}
}

// ReturnToTop returns the top-level scope.
func (n *FrameNavigator) ReturnToTop() Scope { return Top() }

// AllScopes returns the top-level scope followed by every iframe scope.
func (n *FrameNavigator) AllScopes(ctx context.Context) ([]Scope, error) {
	frames, err := n.driver.Frames(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing frames: %w", err)
	}
	return append([]Scope{Top()}, frames...), nil
}
