// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/config"
)

// actionTimeout bounds a single CDP-level action. chromedp selectors wait for
// their node, so without it a detached element would block until the caller's
// deadline.
const actionTimeout = 10 * time.Second

var _ automation.Driver = (*Session)(nil)

// ErrSessionClosed is returned by every call after Close.
var ErrSessionClosed = errors.New("browser session is closed")

// Session is one browser tab driven over CDP.
type Session struct {
	id       string
	logger   *zap.Logger
	timeouts config.TimeoutConfig

	allocatorCtx context.Context
	tabCtx       context.Context
	tabCancel    context.CancelFunc
	onClose      func()

	mu     sync.Mutex
	closed bool
}

func newSession(allocCtx context.Context, cfg *config.Config, logger *zap.Logger) *Session {
	id := uuid.New().String()
	return &Session{
		id:           id,
		logger:       logger.Named("session").With(zap.String("session_id", id[:8])),
		timeouts:     cfg.Timeouts,
		allocatorCtx: allocCtx,
	}
}

func (s *Session) initialize(ctx context.Context, userAgent string) error {
	s.mu.Lock()
	if s.tabCtx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session already initialized")
	}
	s.tabCtx, s.tabCancel = chromedp.NewContext(s.allocatorCtx)
	s.mu.Unlock()

	if err := s.run(ctx, applyStealth(userAgent, s.logger)); err != nil {
		s.tabCancel()
		return fmt.Errorf("failed to prepare tab: %w", err)
	}
	s.logger.Info("Browser session initialized.")
	return nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// run executes actions on the tab while honouring ctx. The derived context is
// a child of the tab context, so cancelling it never closes the tab.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	tab := s.tabCtx
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *Session) runBounded(ctx context.Context, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	return s.run(ctx, actions...)
}

// -- navigation --

func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating", zap.String("url", url))
	navCtx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()
	if err := s.run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return s.settle(ctx)
}

func (s *Session) WaitReady(ctx context.Context) error {
	var ready bool
	if err := s.run(ctx, chromedp.Poll(readyStateScript, &ready,
		chromedp.WithPollingInterval(250*time.Millisecond),
		chromedp.WithPollingTimeout(s.timeouts.Long),
	)); err != nil {
		return fmt.Errorf("waiting for document ready: %w", err)
	}
	return s.settle(ctx)
}

func (s *Session) settle(ctx context.Context) error {
	if s.timeouts.PostLoadWait <= 0 {
		return nil
	}
	timer := time.NewTimer(s.timeouts.PostLoadWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.runBounded(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *Session) Reload(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.timeouts.Navigation)
	defer cancel()
	if err := s.run(navCtx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return s.settle(ctx)
}

// -- frames and queries --

func (s *Session) Frames(ctx context.Context) ([]automation.Scope, error) {
	var nodes []*cdp.Node
	if err := s.runBounded(ctx, chromedp.Nodes("iframe", &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("listing iframes: %w", err)
	}
	scopes := make([]automation.Scope, len(nodes))
	for i, n := range nodes {
		scopes[i] = automation.FrameScope(i, n)
	}
	return scopes, nil
}

func (s *Session) evalElements(ctx context.Context, scope automation.Scope, script string) ([]automation.Element, error) {
	var els []automation.Element
	if err := s.runBounded(ctx, chromedp.Evaluate(script, &els)); err != nil {
		return nil, err
	}
	for i := range els {
		els[i].Scope = scope
	}
	return els, nil
}

func (s *Session) Query(ctx context.Context, scope automation.Scope, sel automation.Selector) ([]automation.Element, error) {
	els, err := s.evalElements(ctx, scope, queryScript(scope, sel))
	if err != nil {
		return nil, fmt.Errorf("query %s in %s: %w", sel, scope.Name(), err)
	}
	return els, nil
}

func (s *Session) QueryWithin(ctx context.Context, parent automation.Element, css string) ([]automation.Element, error) {
	els, err := s.evalElements(ctx, parent.Scope, queryWithinScript(parent, css))
	if err != nil {
		return nil, fmt.Errorf("query %s within %s: %w", css, parent.Describe(), err)
	}
	return els, nil
}

func (s *Session) Inspect(ctx context.Context, el automation.Element) (automation.Element, error) {
	var out automation.Element
	if err := s.runBounded(ctx, chromedp.Evaluate(elementScript(el, inspectBody), &out)); err != nil {
		return automation.Element{}, fmt.Errorf("inspect %s: %w", el.Describe(), err)
	}
	out.Scope = el.Scope
	return out, nil
}

func (s *Session) script(ctx context.Context, el automation.Element, body string) error {
	var ok bool
	return s.runBounded(ctx, chromedp.Evaluate(elementScript(el, body), &ok))
}

// -- actions --

func (s *Session) ScrollIntoView(ctx context.Context, el automation.Element) error {
	return s.script(ctx, el, scrollBody)
}

func (s *Session) Focus(ctx context.Context, el automation.Element) error {
	return s.script(ctx, el, focusBody)
}

// fromScope anchors a chromedp selector in the element's document.
func fromScope(scope automation.Scope) ([]chromedp.QueryOption, error) {
	opts := []chromedp.QueryOption{chromedp.ByQuery}
	if scope.IsTop() {
		return opts, nil
	}
	node, ok := scope.Handle().(*cdp.Node)
	if !ok || node == nil {
		return nil, fmt.Errorf("%s has no frame node", scope.Name())
	}
	return append(opts, chromedp.FromNode(node)), nil
}

func (s *Session) ClickNative(ctx context.Context, el automation.Element) error {
	opts, err := fromScope(el.Scope)
	if err != nil {
		return err
	}
	return s.runBounded(ctx, chromedp.Click(refSelector(el.Ref), opts...))
}

func (s *Session) ClickScript(ctx context.Context, el automation.Element) error {
	return s.script(ctx, el, clickBody)
}

// ClickPointer presses and releases the left button at the centre of the
// element's content box.
func (s *Session) ClickPointer(ctx context.Context, el automation.Element) error {
	opts, err := fromScope(el.Scope)
	if err != nil {
		return err
	}
	var nodes []*cdp.Node
	return s.runBounded(ctx,
		chromedp.Nodes(refSelector(el.Ref), &nodes, opts...),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if len(nodes) == 0 {
				return fmt.Errorf("%s: no node", el.Describe())
			}
			box, err := dom.GetBoxModel().WithNodeID(nodes[0].NodeID).Do(ctx)
			if err != nil {
				return fmt.Errorf("box model: %w", err)
			}
			x, y := quadCenter(box.Content)
			if err := input.DispatchMouseEvent(input.MouseMoved, x, y).Do(ctx); err != nil {
				return err
			}
			if err := input.DispatchMouseEvent(input.MousePressed, x, y).
				WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
				return err
			}
			return input.DispatchMouseEvent(input.MouseReleased, x, y).
				WithButton(input.Left).WithClickCount(1).Do(ctx)
		}),
	)
}

func quadCenter(q dom.Quad) (float64, float64) {
	if len(q) < 8 {
		return 0, 0
	}
	return (q[0] + q[2] + q[4] + q[6]) / 4, (q[1] + q[3] + q[5] + q[7]) / 4
}

func (s *Session) SendKeys(ctx context.Context, el automation.Element, keys string) error {
	opts, err := fromScope(el.Scope)
	if err != nil {
		return err
	}
	return s.runBounded(ctx, chromedp.SendKeys(refSelector(el.Ref), keys, opts...))
}

func (s *Session) SetValue(ctx context.Context, el automation.Element, value string) error {
	return s.script(ctx, el, setValueBody(value))
}

func (s *Session) Clear(ctx context.Context, el automation.Element) error {
	return s.script(ctx, el, clearBody)
}

func (s *Session) RemoveAttribute(ctx context.Context, el automation.Element, name string) error {
	return s.script(ctx, el, removeAttributeBody(name))
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.runBounded(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

// Close terminates the tab. It is safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, tab, onClose := s.tabCancel, s.tabCtx, s.onClose
	s.mu.Unlock()

	if onClose != nil {
		defer onClose()
	}
	if cancel == nil {
		return nil
	}
	cancel()

	waitCtx, cancelWait := context.WithTimeout(ctx, 10*time.Second)
	defer cancelWait()
	select {
	case <-tab.Done():
		s.logger.Debug("Browser session closed.")
		return nil
	case <-waitCtx.Done():
		s.logger.Warn("Timed out waiting for tab to close.", zap.Error(waitCtx.Err()))
		return waitCtx.Err()
	}
}
