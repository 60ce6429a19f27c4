package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

type stepList struct {
	name  string
	steps []workflow.Step
}

func (s stepList) Name() string           { return s.name }
func (s stepList) Steps() []workflow.Step { return s.steps }

type shotLog struct {
	mu    sync.Mutex
	names []string
}

func (s *shotLog) Capture(_ context.Context, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names = append(s.names, name)
	return "screenshots/" + name + ".png"
}

func ok(ran *[]string, name string) workflow.Step {
	return workflow.Step{Name: name, Run: func(context.Context, *workflow.Outcome) error {
		*ran = append(*ran, name)
		return nil
	}}
}

func TestOrchestrator_RunsEveryStep(t *testing.T) {
	var ran []string
	wf := stepList{name: "demo", steps: []workflow.Step{ok(&ran, "a"), ok(&ran, "b"), ok(&ran, "c")}}

	out, err := workflow.NewOrchestrator(zaptest.NewLogger(t)).Run(context.Background(), wf)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, []string{"a", "b", "c"}, out.Completed)
	assert.Equal(t, "demo", out.Workflow)
	assert.Empty(t, out.FailedStep)
}

func TestOrchestrator_FirstRequiredFailureAborts(t *testing.T) {
	var ran, teardown []string
	boom := errors.New("boom")
	shots := &shotLog{}
	wf := stepList{name: "demo", steps: []workflow.Step{
		ok(&ran, "a"),
		{Name: "b", Run: func(context.Context, *workflow.Outcome) error { return boom }},
		ok(&ran, "c"),
	}}
	o := workflow.NewOrchestrator(zaptest.NewLogger(t),
		workflow.WithScreenshots(shots),
		workflow.WithTeardown(func(context.Context) error { teardown = append(teardown, "browser"); return nil }),
		workflow.WithTeardown(func(context.Context) error { teardown = append(teardown, "log"); return errors.New("sync failed") }),
	)

	out, err := o.Run(context.Background(), wf)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.EqualError(t, err, "step b: boom")
	assert.False(t, out.Success)
	assert.Equal(t, "b", out.FailedStep)
	assert.Equal(t, []string{"a"}, ran)
	assert.Equal(t, []string{"b_failed"}, shots.names)
	assert.Equal(t, []string{"log", "browser"}, teardown, "teardown runs in reverse, even when one fails")
}

func TestOrchestrator_OptionalFailureContinues(t *testing.T) {
	var ran []string
	wf := stepList{name: "demo", steps: []workflow.Step{
		{Name: "cookies", Optional: true, Run: func(context.Context, *workflow.Outcome) error { return errors.New("no banner") }},
		ok(&ran, "login"),
	}}

	out, err := workflow.NewOrchestrator(zaptest.NewLogger(t)).Run(context.Background(), wf)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, []string{"login"}, out.Completed)
}

func TestOrchestrator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	shots := &shotLog{}
	tornDown := false
	wf := stepList{name: "demo", steps: []workflow.Step{
		{Name: "a", Run: func(context.Context, *workflow.Outcome) error { cancel(); return nil }},
		{Name: "b", Optional: true, Run: func(context.Context, *workflow.Outcome) error { return nil }},
	}}
	o := workflow.NewOrchestrator(zaptest.NewLogger(t),
		workflow.WithScreenshots(shots),
		workflow.WithTeardown(func(ctx context.Context) error {
			tornDown = ctx.Err() == nil
			return nil
		}),
	)

	out, err := o.Run(ctx, wf)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "b", out.FailedStep)
	assert.Empty(t, shots.names, "a cancelled run takes no failure screenshot")
	assert.True(t, tornDown, "teardown gets a live context")
}

func TestOrchestrator_StepsWriteOutcome(t *testing.T) {
	wf := stepList{name: "demo", steps: []workflow.Step{
		{Name: "classify", Run: func(_ context.Context, out *workflow.Outcome) error {
			out.Message = "Active Coverage"
			return nil
		}},
	}}
	out, err := workflow.NewOrchestrator(zaptest.NewLogger(t)).Run(context.Background(), wf)
	require.NoError(t, err)
	assert.Equal(t, "Active Coverage", out.Message)
}
