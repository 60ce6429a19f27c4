package automation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Strategy is one way of locating a Target. A miss is (Element{}, false, nil);
// an error is reserved for driver failures.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, d Driver, scope Scope, t Target) (Element, bool, error)
}

// Resolver walks an ordered strategy chain and stops at the first hit.
type Resolver struct {
	driver       Driver
	strategies   []Strategy
	logger       *zap.Logger
	pollInterval time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithStrategies replaces the default chain.
func WithStrategies(s ...Strategy) ResolverOption {
	return func(r *Resolver) { r.strategies = s }
}

// WithPollInterval sets how often Await retries the chain.
func WithPollInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) { r.pollInterval = d }
}

// DefaultStrategies is the fixed cascade: attribute match, label proximity,
// text scan, ordinal fallback.
func DefaultStrategies() []Strategy {
	return []Strategy{AttributeMatch{}, LabelProximity{}, TextScan{}, Ordinal{}}
}

// NewResolver creates a resolver over d with the default chain.
func NewResolver(d Driver, logger *zap.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		driver:       d,
		strategies:   DefaultStrategies(),
		logger:       logger.Named("resolver"),
		pollInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Driver returns the driver the resolver queries.
func (r *Resolver) Driver() Driver { return r.driver }

// Resolve runs the chain once.
func (r *Resolver) Resolve(ctx context.Context, scope Scope, t Target) (Element, error) {
	for _, s := range r.strategies {
		if err := ctx.Err(); err != nil {
			return Element{}, err
		}
		el, ok, err := s.Resolve(ctx, r.driver, scope, t)
		if err != nil {
			if ctx.Err() != nil {
				return Element{}, ctx.Err()
			}
			r.logger.Debug("Strategy errored, trying next",
				zap.String("target", t.Name), zap.String("strategy", s.Name()), zap.Error(err))
			continue
		}
		if ok {
			r.logger.Debug("Resolved target",
				zap.String("target", t.Name), zap.String("strategy", s.Name()), zap.String("element", el.Describe()))
			return el, nil
		}
	}
	return Element{}, fmt.Errorf("%s in %s: %w", t.Name, scope.Name(), ErrNotFound)
}

// Await retries Resolve until it succeeds or timeout elapses.
func (r *Resolver) Await(ctx context.Context, scope Scope, t Target, timeout time.Duration) (Element, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		el, err := r.Resolve(ctx, scope, t)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, ErrNotFound) {
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return Element{}, err
		}
		select {
		case <-ctx.Done():
			return Element{}, fmt.Errorf("%s in %s after %s: %w", t.Name, scope.Name(), timeout, ErrNotFound)
		case <-ticker.C:
		}
	}
	return Element{}, fmt.Errorf("%s in %s after %s: %w", t.Name, scope.Name(), timeout, ErrNotFound)
}

// -- Strategies --

// AttributeMatch tries the target's explicit selectors, then [id*=p] and
// [name*=p] for each pattern.
type AttributeMatch struct{}

func (AttributeMatch) Name() string { return "attribute" }

func (AttributeMatch) Resolve(ctx context.Context, d Driver, scope Scope, t Target) (Element, bool, error) {
	for _, sel := range t.Selectors {
		els, err := d.Query(ctx, scope, sel)
		if err != nil {
			return Element{}, false, err
		}
		if el, ok := firstUsable(els, t); ok {
			return el, true, nil
		}
	}
	for _, p := range t.Patterns {
		css := fmt.Sprintf(`[id*="%s"], [name*="%s"]`, cssString(p), cssString(p))
		els, err := d.Query(ctx, scope, CSS(css))
		if err != nil {
			return Element{}, false, err
		}
		if el, ok := firstUsable(els, t); ok {
			return el, true, nil
		}
	}
	return Element{}, false, nil
}

// LabelProximity finds a labeled container whose text includes LabelHint and
// returns the first usable control inside it. A <label for=...> resolves to
// the element it names.
type LabelProximity struct{}

func (LabelProximity) Name() string { return "label" }

func (LabelProximity) Resolve(ctx context.Context, d Driver, scope Scope, t Target) (Element, bool, error) {
	if t.LabelHint == "" {
		return Element{}, false, nil
	}
	container := t.Container
	if container == "" {
		container = `label, .form-group, [class*="form-group"], fieldset`
	}
	containers, err := d.Query(ctx, scope, CSS(container))
	if err != nil {
		return Element{}, false, err
	}
	hint := strings.ToLower(t.LabelHint)
	for _, c := range containers {
		if !strings.Contains(strings.ToLower(c.Text), hint) {
			continue
		}
		if strings.EqualFold(c.Tag, "label") {
			if forID := c.Attr("for"); forID != "" {
				els, err := d.Query(ctx, scope, CSS(fmt.Sprintf(`[id="%s"]`, cssString(forID))))
				if err != nil {
					return Element{}, false, err
				}
				if el, ok := firstUsable(els, t); ok {
					return el, true, nil
				}
			}
		}
		els, err := d.QueryWithin(ctx, c, t.within())
		if err != nil {
			return Element{}, false, err
		}
		if el, ok := firstUsable(els, t); ok {
			return el, true, nil
		}
	}
	return Element{}, false, nil
}

// TextScan inspects every member of the control family for an exact, then a
// partial, match of LabelHint or an expected value.
type TextScan struct{}

func (TextScan) Name() string { return "text" }

func (TextScan) Resolve(ctx context.Context, d Driver, scope Scope, t Target) (Element, bool, error) {
	needles := make([]string, 0, len(t.Expected)+1)
	if t.LabelHint != "" {
		needles = append(needles, strings.ToLower(strings.TrimSpace(t.LabelHint)))
	}
	for _, e := range t.Expected {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			needles = append(needles, e)
		}
	}
	if len(needles) == 0 {
		return Element{}, false, nil
	}
	els, err := d.Query(ctx, scope, CSS(t.family()))
	if err != nil {
		return Element{}, false, err
	}

	for _, exact := range []bool{true, false} {
		for _, el := range els {
			if !el.Usable() || excluded(el, t) {
				continue
			}
			if textMatches(el, needles, exact) {
				return el, true, nil
			}
		}
	}
	return Element{}, false, nil
}

// Ordinal picks the FallbackIndex-th member of the control family. The
// indices are positional facts about one external page layout.
type Ordinal struct{}

func (Ordinal) Name() string { return "ordinal" }

func (Ordinal) Resolve(ctx context.Context, d Driver, scope Scope, t Target) (Element, bool, error) {
	if t.FallbackIndex < 0 {
		return Element{}, false, nil
	}
	els, err := d.Query(ctx, scope, CSS(t.family()))
	if err != nil {
		return Element{}, false, err
	}
	if t.FallbackIndex >= len(els) {
		return Element{}, false, nil
	}
	el := els[t.FallbackIndex]
	if !el.Usable() {
		return Element{}, false, nil
	}
	return el, true, nil
}

// -- helpers --

func firstUsable(els []Element, t Target) (Element, bool) {
	for _, el := range els {
		if el.Usable() && !excluded(el, t) {
			return el, true
		}
	}
	return Element{}, false
}

func excluded(el Element, t Target) bool {
	for _, x := range t.Exclude {
		x = strings.ToLower(x)
		if strings.Contains(strings.ToLower(el.ID), x) || strings.Contains(strings.ToLower(el.Name), x) {
			return true
		}
	}
	return false
}

func textMatches(el Element, needles []string, exact bool) bool {
	fields := []string{el.Text, el.Value, el.Placeholder, el.AriaLabel}
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		if f == "" {
			continue
		}
		for _, n := range needles {
			if exact && f == n {
				return true
			}
			if !exact && strings.Contains(f, n) {
				return true
			}
		}
	}
	return false
}

// cssString escapes a value for use inside a double-quoted CSS attribute selector.
func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
