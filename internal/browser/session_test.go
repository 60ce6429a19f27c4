// internal/browser/session_test.go
package browser_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/browser"
	"github.com/xkilldash9x/availity-rpa/internal/config"
)

const shellPage = `<!doctype html><html><body>
<iframe src="/nav"></iframe>
<iframe src="/app"></iframe>
</body></html>`

const navPage = `<!doctype html><html><body><a href="#">Home</a></body></html>`

const appPage = `<!doctype html><html><body>
<div class="form-group"><label for="memberId">Member ID</label><input id="memberId" name="memberId"></div>
<button id="go" onclick="document.getElementById('out').innerText='Clicked'">Submit</button>
<div id="out"></div>
</body></html>`

func findChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser integration test in short mode")
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary on PATH")
	return ""
}

func portalServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	page := func(body string) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, body)
		}
	}
	mux.HandleFunc("/", page(shellPage))
	mux.HandleFunc("/nav", page(navPage))
	mux.HandleFunc("/app", page(appPage))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestSession(t *testing.T) *browser.Session {
	t.Helper()
	execPath := findChrome(t)
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))

	cfg := config.NewDefaultConfig()
	cfg.Browser.Headless = true
	cfg.Browser.ExecPath = execPath
	cfg.Timeouts.PostLoadWait = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mgr, err := browser.NewManager(ctx, logger, cfg)
	require.NoError(t, err)
	s, err := mgr.NewSession(ctx)
	require.NoError(t, err)

	t.Cleanup(func() {
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelClose()
		_ = s.Close(closeCtx)
		_ = mgr.Shutdown(closeCtx)
	})
	return s
}

func TestSession_FrameScopedInteraction(t *testing.T) {
	s := newTestSession(t)
	srv := portalServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	require.NoError(t, s.Navigate(ctx, srv.URL))
	require.NoError(t, s.WaitReady(ctx))

	nav := automation.NewFrameNavigator(s, zaptest.NewLogger(t))
	scope, err := nav.AwaitContentFrame(ctx, 10*time.Second)
	require.NoError(t, err)

	r := automation.NewResolver(s, zaptest.NewLogger(t))
	member := automation.NewTarget("member id", automation.TypedInput)
	member.LabelHint = "Member ID"
	el, err := r.Await(ctx, scope, member, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "memberId", el.ID)
	assert.NotEmpty(t, el.Ref)

	top, err := s.Query(ctx, automation.Top(), automation.CSS("#memberId"))
	require.NoError(t, err)
	assert.Empty(t, top, "iframe content must not leak into the top scope")

	act := automation.NewActuator(s, automation.ZeroDelayPolicy(), zaptest.NewLogger(t))
	require.NoError(t, act.Type(ctx, el, "W123", "member id"))
	live, err := s.Inspect(ctx, el)
	require.NoError(t, err)
	assert.Equal(t, "W123", live.Value)

	btn := automation.NewTarget("submit", automation.Button)
	btn.LabelHint = "Submit"
	b, err := r.Resolve(ctx, scope, btn)
	require.NoError(t, err)
	require.NoError(t, act.Click(ctx, b, "submit"))

	out, err := s.Query(ctx, scope, automation.XPath("//div[@id='out']"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Clicked", out[0].Text)

	shot, err := s.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot)
}

func TestSession_ClosedRejectsCalls(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Close(context.Background()))
	require.NoError(t, s.Close(context.Background()))

	_, err := s.Location(context.Background())
	assert.ErrorIs(t, err, browser.ErrSessionClosed)
}
