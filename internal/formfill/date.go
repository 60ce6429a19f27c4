package formfill

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// Selectors for the portal's masked date inputs and their picker buttons.
var (
	DefaultDateInputs = []automation.Selector{
		automation.CSS("input[id*='fromDate']"),
		automation.CSS("input[id*='FromDate']"),
		automation.CSS("input[name*='fromDate']"),
		automation.CSS("input[placeholder*='__/__/____']"),
		automation.CSS("input.hasDatepicker"),
		automation.CSS("input[ng-model*='fromDate']"),
	}
	DefaultPickerButtons = []automation.Selector{
		automation.CSS("button[ng-click='dfc.dateFocus()']"),
		automation.CSS("button[aria-label='Calendar'], button.btn-default[type='button']"),
	}
)

// DateField types a MM/DD/YYYY value into a masked date input. The mask
// swallows keystrokes unpredictably, so the value is also assigned by script
// and, when the input still shows the mask, assigned again.
type DateField struct {
	Kit     Kit
	Target  automation.Target
	Value   string
	Pickers []automation.Selector
	// OpenPicker clicks the calendar button first; some pages only unlock
	// the input after it.
	OpenPicker bool
}

// DateTarget is the default Target for the service start date.
func DateTarget(name string) automation.Target {
	t := automation.NewTarget(name, automation.TypedInput)
	t.Selectors = DefaultDateInputs
	t.Patterns = []string{"fromDate", "FromDate"}
	return t
}

func (f DateField) Fill(ctx context.Context, scope automation.Scope) error {
	if f.Value == "" {
		return fmt.Errorf("%s: no date to enter", f.Target.Name)
	}
	log := f.Kit.log().With(zap.String("field", f.Target.Name))

	if f.OpenPicker {
		pickers := f.Pickers
		if len(pickers) == 0 {
			pickers = DefaultPickerButtons
		}
		if btn, ok := firstUsable(ctx, f.Kit.driver(), scope, pickers); ok {
			if err := f.Kit.Actuator.Click(ctx, btn, f.Target.Name+" calendar"); err != nil {
				log.Debug("Calendar button click failed", zap.Error(err))
			} else if err := pause(ctx, f.Kit.Delays.Retry); err != nil {
				return err
			}
		}
	}

	el, err := f.Kit.await(ctx, scope, f.Target)
	if err != nil {
		return err
	}
	d := f.Kit.driver()
	for _, attr := range []string{"readonly", "disabled"} {
		if err := d.RemoveAttribute(ctx, el, attr); err != nil {
			log.Debug("Could not remove attribute", zap.String("attribute", attr), zap.Error(err))
		}
	}
	if err := d.Clear(ctx, el); err != nil {
		log.Debug("Clear failed", zap.Error(err))
	}
	if err := f.Kit.Actuator.TypeWithDelay(ctx, el, f.Value, f.Kit.Delays.DateKey, f.Target.Name); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("Typing date failed, assigning by script", zap.Error(err))
	}
	if err := d.SetValue(ctx, el, f.Value); err != nil {
		log.Debug("Script assignment failed", zap.Error(err))
	}
	if err := f.Kit.Actuator.Press(ctx, el, automation.KeyTab, f.Target.Name); err != nil {
		log.Debug("Tab after date failed", zap.Error(err))
	}

	if ok, _ := f.check(ctx, el); ok {
		log.Info("Date entered", zap.String("value", f.Value))
		return nil
	}
	log.Warn("Date input still empty, retrying by script")
	if err := d.SetValue(ctx, el, f.Value); err != nil {
		return fmt.Errorf("%s: %w", f.Target.Name, err)
	}
	if ok, err := f.check(ctx, el); !ok {
		if err == nil {
			err = errors.New("value not accepted")
		}
		return fmt.Errorf("%s: %w", f.Target.Name, err)
	}
	return nil
}

func (f DateField) check(ctx context.Context, el automation.Element) (bool, error) {
	live, err := f.Kit.driver().Inspect(ctx, el)
	if err != nil {
		return false, err
	}
	return filledValue(live.Value), nil
}

// Verify reports whether the input holds something other than the empty mask.
func (f DateField) Verify(ctx context.Context, scope automation.Scope) (bool, error) {
	el, err := f.Kit.Resolver.Resolve(ctx, scope, f.Target)
	if err != nil {
		return false, err
	}
	return f.check(ctx, el)
}
