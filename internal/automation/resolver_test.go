package automation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/mocks"
)

func visible(el automation.Element) automation.Element {
	el.Visible = true
	el.Enabled = true
	return el
}

// countingStrategy records invocations and returns a fixed outcome.
type countingStrategy struct {
	name  string
	calls int
	el    automation.Element
	hit   bool
	err   error
}

func (s *countingStrategy) Name() string { return s.name }

func (s *countingStrategy) Resolve(ctx context.Context, d automation.Driver, scope automation.Scope, t automation.Target) (automation.Element, bool, error) {
	s.calls++
	return s.el, s.hit, s.err
}

func TestResolver_ShortCircuitsOnFirstHit(t *testing.T) {
	first := &countingStrategy{name: "first"}
	second := &countingStrategy{name: "second", hit: true, el: automation.Element{Ref: "e1"}}
	third := &countingStrategy{name: "third", hit: true, el: automation.Element{Ref: "e2"}}

	r := automation.NewResolver(mocks.NewFakeDriver(), zaptest.NewLogger(t),
		automation.WithStrategies(first, second, third))

	el, err := r.Resolve(context.Background(), automation.Top(), automation.NewTarget("x", automation.TypedInput))
	require.NoError(t, err)
	assert.Equal(t, "e1", el.Ref)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls, "strategies after a hit must not run")
}

func TestResolver_StrategyErrorFallsThrough(t *testing.T) {
	broken := &countingStrategy{name: "broken", err: errors.New("cdp: node gone")}
	ok := &countingStrategy{name: "ok", hit: true, el: automation.Element{Ref: "e9"}}

	r := automation.NewResolver(mocks.NewFakeDriver(), zaptest.NewLogger(t), automation.WithStrategies(broken, ok))
	el, err := r.Resolve(context.Background(), automation.Top(), automation.NewTarget("x", automation.TypedInput))
	require.NoError(t, err)
	assert.Equal(t, "e9", el.Ref)
}

func TestResolver_AllMissIsNotFound(t *testing.T) {
	r := automation.NewResolver(mocks.NewFakeDriver(), zaptest.NewLogger(t))
	target := automation.NewTarget("member id", automation.TypedInput)
	target.Patterns = []string{"memberId"}
	target.LabelHint = "Member ID"

	_, err := r.Resolve(context.Background(), automation.Top(), target)
	require.Error(t, err)
	assert.ErrorIs(t, err, automation.ErrNotFound)
	assert.Contains(t, err.Error(), "member id")
}

func TestAttributeMatch_ExplicitSelectorThenPattern(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	hidden := d.Add(top, automation.CSS("#patientDob"), automation.Element{Tag: "INPUT", ID: "patientDob"})
	byPattern := d.Add(top, automation.CSS(`[id*="dob"], [name*="dob"]`), visible(automation.Element{Tag: "INPUT", ID: "dob-1"}))

	target := automation.NewTarget("dob", automation.TypedInput)
	target.Selectors = []automation.Selector{automation.CSS("#patientDob")}
	target.Patterns = []string{"dob"}

	el, ok, err := automation.AttributeMatch{}.Resolve(context.Background(), d, top, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, byPattern.Ref, el.Ref, "hidden explicit match must be skipped")
	assert.NotEqual(t, hidden.Ref, el.Ref)
}

func TestAttributeMatch_ExcludeDropsCandidate(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	d.Add(top, automation.CSS(`[id*="date"], [name*="date"]`), visible(automation.Element{Tag: "INPUT", ID: "birthDate"}))
	want := d.Add(top, automation.CSS(`[id*="date"], [name*="date"]`), visible(automation.Element{Tag: "INPUT", ID: "serviceDate"}))

	target := automation.NewTarget("service date", automation.TypedInput)
	target.Patterns = []string{"date"}
	target.Exclude = []string{"birth"}

	el, ok, err := automation.AttributeMatch{}.Resolve(context.Background(), d, top, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Ref, el.Ref)
}

func TestLabelProximity_FollowsLabelFor(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	container := `label, .form-group, [class*="form-group"], fieldset`
	d.Add(top, automation.CSS(container), visible(automation.Element{
		Tag: "LABEL", Text: "Patient Date of Birth", Attrs: map[string]string{"for": "dob-input"},
	}))
	input := d.Add(top, automation.CSS(`[id="dob-input"]`), visible(automation.Element{Tag: "INPUT", ID: "dob-input"}))

	target := automation.NewTarget("dob", automation.TypedInput)
	target.LabelHint = "date of birth"

	el, ok, err := automation.LabelProximity{}.Resolve(context.Background(), d, top, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, input.Ref, el.Ref)
}

func TestLabelProximity_SearchesInsideContainer(t *testing.T) {
	d := mocks.NewFakeDriver()
	scope := d.SetFrames(2)[1]
	group := d.Add(scope, automation.CSS(".form-group"), visible(automation.Element{Tag: "DIV", Text: "Organization *"}))
	combo := d.AddChild(group, "div.select2-container", visible(automation.Element{Tag: "DIV", Class: "select2-container"}))

	target := automation.NewTarget("organization", automation.SearchSelect)
	target.LabelHint = "Organization"
	target.Container = ".form-group"
	target.Within = "div.select2-container"

	el, ok, err := automation.LabelProximity{}.Resolve(context.Background(), d, scope, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, combo.Ref, el.Ref)
	assert.Equal(t, "iframe_1", el.Scope.Name())
}

func TestTextScan_ExactBeatsPartial(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	family := `button, [role="button"], input[type="submit"], a.btn`
	d.Add(top, automation.CSS(family), visible(automation.Element{Tag: "BUTTON", Text: "Submit Later"}))
	exact := d.Add(top, automation.CSS(family), visible(automation.Element{Tag: "BUTTON", Text: " Submit "}))

	target := automation.NewTarget("submit", automation.Button)
	target.LabelHint = "Submit"

	el, ok, err := automation.TextScan{}.Resolve(context.Background(), d, top, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, exact.Ref, el.Ref)
}

func TestTextScan_MatchesExpectedValue(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	family := `input:not([type="hidden"]), textarea`
	want := d.Add(top, automation.CSS(family), visible(automation.Element{Tag: "INPUT", Value: "12 - Home"}))

	target := automation.NewTarget("place of service", automation.TypedInput)
	target.Expected = []string{"home"}

	el, ok, err := automation.TextScan{}.Resolve(context.Background(), d, top, target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Ref, el.Ref)
}

func TestOrdinal(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	family := `select, [role="combobox"], div.select2-container`
	for i := 0; i < 3; i++ {
		d.Add(top, automation.CSS(family), visible(automation.Element{Tag: "SELECT"}))
	}
	disabled := d.Add(top, automation.CSS(family), automation.Element{Tag: "SELECT", Visible: true})

	tests := []struct {
		name  string
		index int
		hit   bool
	}{
		{"disabled", automation.NoFallback, false},
		{"in range", 2, true},
		{"out of range", 9, false},
		{"unusable member", 3, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := automation.NewTarget("payer", automation.SingleSelect)
			target.FallbackIndex = tt.index
			el, ok, err := automation.Ordinal{}.Resolve(context.Background(), d, top, target)
			require.NoError(t, err)
			assert.Equal(t, tt.hit, ok)
			if ok {
				assert.NotEqual(t, disabled.Ref, el.Ref)
			}
		})
	}
}

func TestResolver_AwaitSeesLateElement(t *testing.T) {
	d := mocks.NewFakeDriver()
	top := automation.Top()
	target := automation.NewTarget("email", automation.TypedInput)
	target.Selectors = []automation.Selector{automation.CSS("#email")}

	late := &countingStrategy{name: "late"}
	r := automation.NewResolver(d, zaptest.NewLogger(t),
		automation.WithPollInterval(5*time.Millisecond),
		automation.WithStrategies(automation.AttributeMatch{}, late))

	go func() {
		time.Sleep(20 * time.Millisecond)
		d.Add(top, automation.CSS("#email"), visible(automation.Element{Tag: "INPUT", ID: "email"}))
	}()

	el, err := r.Await(context.Background(), top, target, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "email", el.ID)
	assert.Positive(t, late.calls)
}

func TestResolver_AwaitTimesOut(t *testing.T) {
	r := automation.NewResolver(mocks.NewFakeDriver(), zaptest.NewLogger(t), automation.WithPollInterval(5*time.Millisecond))
	target := automation.NewTarget("ghost", automation.Button)
	target.LabelHint = "Ghost"

	start := time.Now()
	_, err := r.Await(context.Background(), automation.Top(), target, 40*time.Millisecond)
	assert.ErrorIs(t, err, automation.ErrNotFound)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolver_AwaitHonoursCancel(t *testing.T) {
	r := automation.NewResolver(mocks.NewFakeDriver(), zaptest.NewLogger(t), automation.WithPollInterval(5*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Await(ctx, automation.Top(), automation.NewTarget("x", automation.Button), time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
