package formfill

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// Delays are the settle times the fillers wait for the portal's widgets.
type Delays struct {
	Open     time.Duration // after opening a dropdown
	Results  time.Duration // after typing a search query
	Selected time.Duration // after choosing an option
	Retry    time.Duration // between search-input lookups
	DateKey  time.Duration // between keystrokes in masked date inputs
}

// DefaultDelays are tuned to the portal's select2 widgets.
func DefaultDelays() Delays {
	return Delays{Open: 2 * time.Second, Results: 2 * time.Second, Selected: 2 * time.Second, Retry: time.Second, DateKey: 150 * time.Millisecond}
}

// Kit is what every filler needs to reach the page.
type Kit struct {
	Resolver *automation.Resolver
	Actuator *automation.Actuator
	Timeout  time.Duration
	Delays   Delays
	Logger   *zap.Logger
}

func (k Kit) driver() automation.Driver { return k.Resolver.Driver() }

func (k Kit) log() *zap.Logger {
	if k.Logger == nil {
		return zap.NewNop()
	}
	return k.Logger
}

func (k Kit) await(ctx context.Context, scope automation.Scope, t automation.Target) (automation.Element, error) {
	return k.Resolver.Await(ctx, scope, t, k.Timeout)
}

func pause(ctx context.Context, d time.Duration) error {
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

// firstUsable runs each selector in order and returns the first visible,
// enabled match.
func firstUsable(ctx context.Context, d automation.Driver, scope automation.Scope, sels []automation.Selector) (automation.Element, bool) {
	for _, sel := range sels {
		els, err := d.Query(ctx, scope, sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			if el.Usable() {
				return el, true
			}
		}
	}
	return automation.Element{}, false
}

// DateMask is the empty value of the portal's masked date inputs.
const DateMask = "__/__/____"

// placeholderWords mark a dropdown that still shows its prompt.
var placeholderWords = []string{"select", "choose", "pick", "search"}

func isPlaceholder(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return true
	}
	for _, w := range placeholderWords {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}

// matchesEither reports whether a contains b or b contains a, ignoring case.
func matchesEither(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func filledValue(v string) bool {
	v = strings.TrimSpace(v)
	return v != "" && v != DateMask
}
