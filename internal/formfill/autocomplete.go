package formfill

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// DefaultSuggestions are the option rows of the portal's React typeaheads.
var DefaultSuggestions = []automation.Selector{
	automation.XPath("(//div[contains(@class, 'dropdown-item') or contains(@class, 'option') or @role='option'])[1]"),
}

// Autocomplete types into a typeahead input and takes a suggestion: the first
// listed option matching Value, then the first listed option, then
// ArrowDown+Enter when Keyboard is set.
type Autocomplete struct {
	Kit         Kit
	Target      automation.Target
	Value       string
	Suggestions []automation.Selector
	Keyboard    bool
}

func (a Autocomplete) Fill(ctx context.Context, scope automation.Scope) error {
	if a.Value == "" {
		return fmt.Errorf("%s: no value to type", a.Target.Name)
	}
	input, err := a.Kit.await(ctx, scope, a.Target)
	if err != nil {
		return err
	}
	return a.FillElement(ctx, scope, input)
}

// FillElement runs the fill against an input the caller already located.
func (a Autocomplete) FillElement(ctx context.Context, scope automation.Scope, input automation.Element) error {
	if err := a.Kit.Actuator.ClearAndType(ctx, input, a.Value, a.Target.Name); err != nil {
		return err
	}
	if err := pause(ctx, a.Kit.Delays.Results); err != nil {
		return err
	}

	if len(a.Suggestions) > 0 {
		chosen, err := a.Kit.clickOption(ctx, scope, a.Suggestions, []string{a.Value}, true)
		if err == nil {
			a.Kit.log().Info("Suggestion chosen", zap.String("field", a.Target.Name), zap.String("option", chosen))
			return pause(ctx, a.Kit.Delays.Selected)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !a.Keyboard {
			return err
		}
		a.Kit.log().Debug("No suggestion listed, using keyboard", zap.String("field", a.Target.Name), zap.Error(err))
	}
	if !a.Keyboard {
		return nil
	}
	if err := a.Kit.Actuator.Press(ctx, input, automation.KeyArrowDown, a.Target.Name); err != nil {
		return err
	}
	if err := a.Kit.Actuator.Press(ctx, input, automation.KeyEnter, a.Target.Name); err != nil {
		return err
	}
	return pause(ctx, a.Kit.Delays.Selected)
}

// Verify reports whether the input carries a value.
func (a Autocomplete) Verify(ctx context.Context, scope automation.Scope) (bool, error) {
	el, err := a.Kit.Resolver.Resolve(ctx, scope, a.Target)
	if err != nil {
		return false, err
	}
	live, err := a.Kit.driver().Inspect(ctx, el)
	if err != nil {
		return false, err
	}
	return filledValue(live.Value), nil
}

// DefaultProviderPreferences are the rendering providers tried in order.
var DefaultProviderPreferences = []string{"KOLLIPARA", "MOMOH"}

// ProviderSelect picks a rendering provider: each preference in order, then
// the first listed option, then keyboard navigation.
func ProviderSelect(kit Kit, target automation.Target, prefs ...string) OptionSelect {
	if len(prefs) == 0 {
		prefs = DefaultProviderPreferences
	}
	return OptionSelect{
		Kit:         kit,
		Target:      target,
		Options:     prefs,
		FirstOption: true,
		Keyboard:    true,
	}
}
