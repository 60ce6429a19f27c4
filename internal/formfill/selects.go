package formfill

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// Selectors for the portal's select2 widgets.
var (
	DefaultSearchInputs = []automation.Selector{
		automation.CSS("input.select2-input"),
		automation.CSS("div.select2-search input"),
		automation.CSS(".select2-dropdown input"),
		automation.CSS("input[class*='select2']"),
	}
	DefaultResults = []automation.Selector{
		automation.CSS(".select2-results li"),
		automation.CSS(".select2-results div"),
		automation.CSS(".select2-result"),
		automation.CSS("[class*='select2-result']"),
	}
)

const chosenCSS = ".select2-chosen, .select2-selection__rendered"

const defaultSearchAttempts = 3

var errNotConfirmed = errors.New("selection not confirmed")

// chosenText is what a dropdown currently displays as its selection.
func (k Kit) chosenText(ctx context.Context, container automation.Element) (string, error) {
	if els, err := k.driver().QueryWithin(ctx, container, chosenCSS); err == nil {
		for _, el := range els {
			if el.Text != "" {
				return el.Text, nil
			}
		}
	}
	live, err := k.driver().Inspect(ctx, container)
	if err != nil {
		return "", err
	}
	return live.Text, nil
}

// clickOption clicks the first listed result matching a preference, in
// preference order. With first set and no preference matching, the first
// visible result is clicked instead.
func (k Kit) clickOption(ctx context.Context, scope automation.Scope, results []automation.Selector, prefs []string, first bool) (string, error) {
	if len(results) == 0 {
		results = DefaultResults
	}
	for _, sel := range results {
		els, err := k.driver().Query(ctx, scope, sel)
		if err != nil {
			continue
		}
		var visible []automation.Element
		for _, el := range els {
			if el.Visible && el.Text != "" {
				visible = append(visible, el)
			}
		}
		if len(visible) == 0 {
			continue
		}
		for _, want := range prefs {
			for _, el := range visible {
				if matchesEither(el.Text, want) {
					k.log().Info("Clicking matching option", zap.String("option", el.Text))
					return el.Text, k.Actuator.Click(ctx, el, "option "+want)
				}
			}
		}
		if first {
			k.log().Info("No matching option, clicking first result", zap.String("option", visible[0].Text))
			return visible[0].Text, k.Actuator.Click(ctx, visible[0], "first option")
		}
	}
	return "", fmt.Errorf("dropdown option %v: %w", prefs, automation.ErrNotFound)
}

// SearchSelect drives a select2 autocomplete: open it, type the query into
// its search box, then choose by Enter, ArrowDown+Enter, or by clicking the
// best result, checking the displayed choice after each.
type SearchSelect struct {
	Kit            Kit
	Target         automation.Target
	Value          string
	SearchInputs   []automation.Selector
	Results        []automation.Selector
	SearchAttempts int
}

func (s SearchSelect) searchInput(ctx context.Context, scope automation.Scope) (automation.Element, error) {
	sels := s.SearchInputs
	if len(sels) == 0 {
		sels = DefaultSearchInputs
	}
	attempts := s.SearchAttempts
	if attempts <= 0 {
		attempts = defaultSearchAttempts
	}
	for i := 1; i <= attempts; i++ {
		if el, ok := firstUsable(ctx, s.Kit.driver(), scope, sels); ok {
			return el, nil
		}
		s.Kit.log().Debug("Search input not visible yet", zap.String("field", s.Target.Name), zap.Int("attempt", i))
		if i < attempts {
			if err := pause(ctx, s.Kit.Delays.Retry); err != nil {
				return automation.Element{}, err
			}
		}
	}
	return automation.Element{}, fmt.Errorf("%s search input after %d attempts: %w", s.Target.Name, attempts, automation.ErrNotFound)
}

func (s SearchSelect) Fill(ctx context.Context, scope automation.Scope) error {
	if s.Value == "" {
		return fmt.Errorf("%s: no value to select", s.Target.Name)
	}
	container, err := s.Kit.await(ctx, scope, s.Target)
	if err != nil {
		return err
	}
	if err := s.Kit.Actuator.Click(ctx, container, s.Target.Name+" dropdown"); err != nil {
		return err
	}
	if err := pause(ctx, s.Kit.Delays.Open); err != nil {
		return err
	}

	input, err := s.searchInput(ctx, scope)
	if err != nil {
		return err
	}
	if err := s.Kit.Actuator.ClearAndType(ctx, input, s.Value, s.Target.Name+" search"); err != nil {
		return err
	}
	if err := pause(ctx, s.Kit.Delays.Results); err != nil {
		return err
	}

	methods := []struct {
		name string
		do   func() error
	}{
		{"enter", func() error {
			return s.Kit.Actuator.Press(ctx, input, automation.KeyEnter, s.Target.Name+" search")
		}},
		{"arrow-down+enter", func() error {
			if err := s.Kit.Actuator.Press(ctx, input, automation.KeyArrowDown, s.Target.Name+" search"); err != nil {
				return err
			}
			return s.Kit.Actuator.Press(ctx, input, automation.KeyEnter, s.Target.Name+" search")
		}},
		{"click-result", func() error {
			_, err := s.Kit.clickOption(ctx, scope, s.Results, []string{s.Value}, true)
			return err
		}},
	}

	for _, m := range methods {
		if err := m.do(); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.Kit.log().Debug("Selection method failed", zap.String("field", s.Target.Name), zap.String("method", m.name), zap.Error(err))
			continue
		}
		if err := pause(ctx, s.Kit.Delays.Selected); err != nil {
			return err
		}
		if ok, _ := s.confirm(ctx, container); ok {
			s.Kit.log().Info("Selection confirmed", zap.String("field", s.Target.Name), zap.String("method", m.name))
			return nil
		}
	}
	return fmt.Errorf("%s = %q: %w", s.Target.Name, s.Value, errors.Join(automation.ErrActionFailed, errNotConfirmed))
}

func (s SearchSelect) confirm(ctx context.Context, container automation.Element) (bool, error) {
	text, err := s.Kit.chosenText(ctx, container)
	if err != nil {
		return false, err
	}
	return matchesEither(text, s.Value) || !isPlaceholder(text), nil
}

// Verify reports whether the dropdown shows the expected value or any
// non-placeholder choice.
func (s SearchSelect) Verify(ctx context.Context, scope automation.Scope) (bool, error) {
	container, err := s.Kit.Resolver.Resolve(ctx, scope, s.Target)
	if err != nil {
		return false, err
	}
	return s.confirm(ctx, container)
}

// OptionSelect opens a dropdown and clicks an option directly, without
// typing. Options are tried in order; FirstOption and Keyboard enable the
// first-result and ArrowDown+Enter fallbacks.
type OptionSelect struct {
	Kit         Kit
	Target      automation.Target
	Options     []string
	Results     []automation.Selector
	FirstOption bool
	Keyboard    bool
	// Expect, when set, is what the displayed choice must contain. Otherwise
	// any non-placeholder choice counts.
	Expect []string
}

func (o OptionSelect) Fill(ctx context.Context, scope automation.Scope) error {
	trigger, err := o.Kit.await(ctx, scope, o.Target)
	if err != nil {
		return err
	}
	if len(o.Expect) > 0 {
		if ok, _ := o.confirm(ctx, trigger); ok {
			o.Kit.log().Info("Dropdown already shows expected value", zap.String("field", o.Target.Name))
			return nil
		}
	}
	if err := o.Kit.Actuator.Click(ctx, trigger, o.Target.Name+" dropdown"); err != nil {
		return err
	}
	if err := pause(ctx, o.Kit.Delays.Open); err != nil {
		return err
	}

	var lastErr error
	if len(o.Options) > 0 || o.FirstOption {
		if _, lastErr = o.Kit.clickOption(ctx, scope, o.Results, o.Options, o.FirstOption); lastErr == nil {
			if err := pause(ctx, o.Kit.Delays.Selected); err != nil {
				return err
			}
			if ok, _ := o.confirm(ctx, trigger); ok {
				return nil
			}
			lastErr = errNotConfirmed
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if o.Keyboard {
		o.Kit.log().Info("Selecting with keyboard navigation", zap.String("field", o.Target.Name))
		if err := o.Kit.Actuator.Press(ctx, trigger, automation.KeyArrowDown, o.Target.Name); err != nil {
			return err
		}
		if err := o.Kit.Actuator.Press(ctx, trigger, automation.KeyEnter, o.Target.Name); err != nil {
			return err
		}
		if err := pause(ctx, o.Kit.Delays.Selected); err != nil {
			return err
		}
		if ok, _ := o.confirm(ctx, trigger); ok {
			return nil
		}
		lastErr = errNotConfirmed
	}
	if lastErr == nil {
		lastErr = errNotConfirmed
	}
	return fmt.Errorf("%s: %w", o.Target.Name, errors.Join(automation.ErrActionFailed, lastErr))
}

func (o OptionSelect) confirm(ctx context.Context, trigger automation.Element) (bool, error) {
	text, err := o.Kit.chosenText(ctx, trigger)
	if err != nil {
		return false, err
	}
	if len(o.Expect) > 0 {
		for _, e := range o.Expect {
			if matchesEither(text, e) {
				return true, nil
			}
		}
		return false, nil
	}
	for _, opt := range o.Options {
		if matchesEither(text, opt) {
			return true, nil
		}
	}
	return !isPlaceholder(text), nil
}

// Verify reports whether the dropdown shows an acceptable choice.
func (o OptionSelect) Verify(ctx context.Context, scope automation.Scope) (bool, error) {
	trigger, err := o.Kit.Resolver.Resolve(ctx, scope, o.Target)
	if err != nil {
		return false, err
	}
	return o.confirm(ctx, trigger)
}
