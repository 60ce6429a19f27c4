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
	"github.com/xkilldash9x/availity-rpa/internal/config"
	"github.com/xkilldash9x/availity-rpa/internal/mocks"
)

func configWithRounds(n int) config.ActuationConfig {
	cfg := config.NewDefaultConfig().Actuation
	cfg.Rounds = n
	return cfg
}

func TestFrameNavigator_EnterContentFrame(t *testing.T) {
	tests := []struct {
		name    string
		frames  int
		wantErr bool
	}{
		{"no frames", 0, true},
		{"only navigation frame", 1, true},
		{"two frames", 2, false},
		{"extra frames", 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := mocks.NewFakeDriver()
			d.SetFrames(tt.frames)
			n := automation.NewFrameNavigator(d, zaptest.NewLogger(t))

			scope, err := n.EnterContentFrame(context.Background())
			if tt.wantErr {
				assert.ErrorIs(t, err, automation.ErrStructural)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, automation.ContentFrameIndex, scope.Index())
			assert.Equal(t, "iframe_1", scope.Name())
			assert.False(t, scope.IsTop())
		})
	}
}

func TestFrameNavigator_FramesErrorIsNotStructural(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.FramesErr = errors.New("target closed")
	n := automation.NewFrameNavigator(d, zaptest.NewLogger(t))

	_, err := n.EnterContentFrame(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, automation.ErrStructural)
}

func TestFrameNavigator_AwaitContentFrame(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.SetFrames(1)
	n := automation.NewFrameNavigator(d, zaptest.NewLogger(t))

	go func() {
		time.Sleep(50 * time.Millisecond)
		d.SetFrames(2)
	}()

	scope, err := n.AwaitContentFrame(context.Background(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, scope.Index())
}

func TestFrameNavigator_AwaitContentFrameTimesOut(t *testing.T) {
	d := mocks.NewFakeDriver()
	n := automation.NewFrameNavigator(d, zaptest.NewLogger(t))

	_, err := n.AwaitContentFrame(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, automation.ErrStructural)
}

func TestFrameNavigator_AllScopesStartsWithTop(t *testing.T) {
	d := mocks.NewFakeDriver()
	d.SetFrames(3)
	n := automation.NewFrameNavigator(d, zaptest.NewLogger(t))

	scopes, err := n.AllScopes(context.Background())
	require.NoError(t, err)
	require.Len(t, scopes, 4)
	assert.True(t, scopes[0].IsTop())
	assert.Equal(t, "main_page", scopes[0].Name())
	assert.Equal(t, "iframe_2", scopes[3].Name())
	assert.True(t, n.ReturnToTop().IsTop())
}

func TestElementDescribe(t *testing.T) {
	el := automation.Element{Tag: "INPUT", ID: "dob", Name: "birth", Scope: automation.FrameScope(1, nil)}
	assert.Equal(t, "input#dob[name=birth]@iframe_1", el.Describe())
	assert.Equal(t, "xpath://a", automation.XPath("//a").String())
	assert.Equal(t, "#a", automation.CSS("#a").String())
}
