// Package automation holds the browser-independent core of the portal engine:
// the element resolver, the resilient actuator and the frame navigator. All of
// it talks to the page through the Driver interface and an explicit Scope, so
// no operation depends on which document the browser happens to be focused on.
package automation

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/chromedp/kb"
)

// Keys understood by Driver.SendKeys in addition to printable characters.
const (
	KeyEnter     = kb.Enter
	KeyTab       = kb.Tab
	KeyArrowDown = kb.ArrowDown
	KeyEscape    = kb.Escape
)

// TopIndex is the frame index of the top-level document.
const TopIndex = -1

// Scope addresses one document: the top-level page or one of its iframes.
// Every Driver call takes a Scope; there is no ambient "current frame".
type Scope struct {
	index  int
	handle any
}

// Top returns the scope of the top-level document.
func Top() Scope { return Scope{index: TopIndex} }

// FrameScope builds the scope of the iframe at index. handle is whatever the
// Driver needs to address the frame again (a DOM node for chromedp).
func FrameScope(index int, handle any) Scope {
	return Scope{index: index, handle: handle}
}

// Index is the 0-based iframe index, or TopIndex.
func (s Scope) Index() int { return s.index }

// IsTop reports whether the scope is the top-level document.
func (s Scope) IsTop() bool { return s.index == TopIndex }

// Handle returns the driver-specific frame handle. It is nil for Top.
func (s Scope) Handle() any { return s.handle }

// Name is the location label used in logs and verdicts.
func (s Scope) Name() string {
	if s.IsTop() {
		return "main_page"
	}
	return fmt.Sprintf("iframe_%d", s.index)
}

func (s Scope) String() string { return s.Name() }

// Selector is either a CSS selector or an XPath expression.
type Selector struct {
	CSS   string
	XPath string
}

// CSS builds a CSS selector.
func CSS(s string) Selector { return Selector{CSS: s} }

// XPath builds an XPath selector.
func XPath(s string) Selector { return Selector{XPath: s} }

func (s Selector) String() string {
	if s.XPath != "" {
		return "xpath:" + s.XPath
	}
	return s.CSS
}

// Element is a handle to a DOM element plus the snapshot of its state taken
// when it was queried. Ref is stable for the element's lifetime in its
// document; the snapshot is not, so use Driver.Inspect to re-read live state.
type Element struct {
	Ref   string `json:"ref"`
	Scope Scope  `json:"-"`

	Tag             string            `json:"tag"`
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Class           string            `json:"className"`
	Type            string            `json:"type"`
	Text            string            `json:"text"`
	Value           string            `json:"value"`
	Placeholder     string            `json:"placeholder"`
	AriaLabel       string            `json:"ariaLabel"`
	Visible         bool              `json:"visible"`
	Enabled         bool              `json:"enabled"`
	ReadOnly        bool              `json:"readOnly"`
	BackgroundColor string            `json:"backgroundColor"`
	Attrs           map[string]string `json:"attrs"`
}

// Usable reports whether the element can be interacted with.
func (e Element) Usable() bool { return e.Visible && e.Enabled }

// Attr returns an attribute from the snapshot.
func (e Element) Attr(name string) string {
	if e.Attrs == nil {
		return ""
	}
	return e.Attrs[name]
}

// Describe is a short label for logs.
func (e Element) Describe() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(e.Tag))
	if e.ID != "" {
		b.WriteString("#" + e.ID)
	}
	if e.Name != "" {
		b.WriteString("[name=" + e.Name + "]")
	}
	b.WriteString("@" + e.Scope.Name())
	return b.String()
}

// Driver is the page surface the engine drives. Implementations must be safe
// to call from a single goroutine at a time; the engine never interleaves calls.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context) error
	Location(ctx context.Context) (string, error)
	Reload(ctx context.Context) error

	// Frames lists the iframes of the top-level document in document order.
	Frames(ctx context.Context) ([]Scope, error)

	// Query returns every element in scope matching sel, in document order.
	Query(ctx context.Context, scope Scope, sel Selector) ([]Element, error)
	// QueryWithin returns descendants of parent matching a CSS selector.
	QueryWithin(ctx context.Context, parent Element, css string) ([]Element, error)
	// Inspect re-reads the live state of el.
	Inspect(ctx context.Context, el Element) (Element, error)

	ScrollIntoView(ctx context.Context, el Element) error
	Focus(ctx context.Context, el Element) error
	ClickNative(ctx context.Context, el Element) error
	ClickScript(ctx context.Context, el Element) error
	ClickPointer(ctx context.Context, el Element) error
	SendKeys(ctx context.Context, el Element, keys string) error
	// SetValue assigns the value by script and fires input, change and blur.
	SetValue(ctx context.Context, el Element, value string) error
	Clear(ctx context.Context, el Element) error
	RemoveAttribute(ctx context.Context, el Element, name string) error

	Screenshot(ctx context.Context) ([]byte, error)
}
