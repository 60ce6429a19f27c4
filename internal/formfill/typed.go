package formfill

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// TypedField types Value into a text input one character at a time.
type TypedField struct {
	Kit      Kit
	Target   automation.Target
	Value    string
	PressTab bool
}

func (f TypedField) Fill(ctx context.Context, scope automation.Scope) error {
	if f.Value == "" {
		return fmt.Errorf("%s: no value to type", f.Target.Name)
	}
	el, err := f.Kit.await(ctx, scope, f.Target)
	if err != nil {
		return err
	}
	if err := f.Kit.Actuator.ClearAndType(ctx, el, f.Value, f.Target.Name); err != nil {
		return err
	}
	if f.PressTab {
		if err := f.Kit.Actuator.Press(ctx, el, automation.KeyTab, f.Target.Name); err != nil {
			f.Kit.log().Debug("Tab after typing failed", zap.String("field", f.Target.Name), zap.Error(err))
		}
	}
	f.Kit.log().Info("Typed field", zap.String("field", f.Target.Name))
	return nil
}

// Verify reports whether the input currently carries a real value.
func (f TypedField) Verify(ctx context.Context, scope automation.Scope) (bool, error) {
	el, err := f.Kit.Resolver.Resolve(ctx, scope, f.Target)
	if err != nil {
		return false, err
	}
	live, err := f.Kit.driver().Inspect(ctx, el)
	if err != nil {
		return false, err
	}
	return filledValue(live.Value), nil
}
