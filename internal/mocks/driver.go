// File: internal/mocks/driver.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// ClickEvent records one click attempt against the fake page.
type ClickEvent struct {
	Ref    string
	Method automation.Method
}

// KeyEvent records one SendKeys call.
type KeyEvent struct {
	Ref  string
	Keys string
}

// FakeDriver is an in-memory automation.Driver. Elements are registered under
// the exact selector string the code under test will query with. Printable
// keys append to the element's value; named keys are only recorded.
//
// Hooks run without the lock held, so they may call back into the driver.
type FakeDriver struct {
	mu sync.Mutex

	frames   []automation.Scope
	elements map[string]*automation.Element
	index    map[string][]string
	children map[string][]string
	nextRef  int

	location  string
	navigated []string
	reloads   int
	shots     int

	clicks []ClickEvent
	keys   []KeyEvent

	// ClickErr decides whether a click attempt fails. nil means every click works.
	ClickErr func(el automation.Element, m automation.Method) error
	// OnClick runs after a successful click.
	OnClick func(d *FakeDriver, el automation.Element)
	// OnKey runs after every SendKeys call.
	OnKey func(d *FakeDriver, el automation.Element, keys string)
	// QueryErr fails Query for the given selector strings.
	QueryErr map[string]error
	// FramesErr fails Frames.
	FramesErr error
	// NavigateErr fails Navigate.
	NavigateErr error
	// ScreenshotErr fails Screenshot.
	ScreenshotErr error
}

var _ automation.Driver = (*FakeDriver)(nil)

// NewFakeDriver returns an empty page with no iframes.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		elements: make(map[string]*automation.Element),
		index:    make(map[string][]string),
		children: make(map[string][]string),
		QueryErr: make(map[string]error),
	}
}

// SetFrames replaces the page's iframes with n empty frames.
func (d *FakeDriver) SetFrames(n int) []automation.Scope {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frames = make([]automation.Scope, n)
	for i := range d.frames {
		d.frames[i] = automation.FrameScope(i, i)
	}
	return append([]automation.Scope(nil), d.frames...)
}

// Frame returns the scope of iframe i. It panics when i is out of range.
func (d *FakeDriver) Frame(i int) automation.Scope {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.frames[i]
}

func indexKey(scope automation.Scope, sel string) string {
	return fmt.Sprintf("%d|%s", scope.Index(), sel)
}

// Add registers el in scope under sel and returns it with its Ref and Scope
// set. Visible and Enabled are the caller's responsibility.
func (d *FakeDriver) Add(scope automation.Scope, sel automation.Selector, el automation.Element) automation.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	el = d.store(scope, el)
	key := indexKey(scope, sel.String())
	d.index[key] = append(d.index[key], el.Ref)
	return el
}

// Also registers an existing element under another selector.
func (d *FakeDriver) Also(el automation.Element, sel automation.Selector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := indexKey(el.Scope, sel.String())
	d.index[key] = append(d.index[key], el.Ref)
}

// AddChild registers el as a descendant of parent matched by css.
func (d *FakeDriver) AddChild(parent automation.Element, css string, el automation.Element) automation.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	el = d.store(parent.Scope, el)
	key := parent.Ref + "|" + css
	d.children[key] = append(d.children[key], el.Ref)
	return el
}

func (d *FakeDriver) store(scope automation.Scope, el automation.Element) automation.Element {
	if el.Ref == "" {
		d.nextRef++
		el.Ref = fmt.Sprintf("e%d", d.nextRef)
	}
	el.Scope = scope
	if el.Attrs == nil {
		el.Attrs = map[string]string{}
	}
	cp := el
	d.elements[el.Ref] = &cp
	return el
}

// Update mutates the stored state of the element with ref.
func (d *FakeDriver) Update(ref string, f func(el *automation.Element)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.elements[ref]; ok {
		f(el)
	}
}

// Remove detaches the element with ref. Later queries skip it and actions fail.
func (d *FakeDriver) Remove(ref string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.elements, ref)
}

// Get returns the current state of the element with ref.
func (d *FakeDriver) Get(ref string) (automation.Element, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[ref]
	if !ok {
		return automation.Element{}, false
	}
	return *el, true
}

// Clicks returns every click attempt in order.
func (d *FakeDriver) Clicks() []ClickEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ClickEvent(nil), d.clicks...)
}

// Keys returns every SendKeys call in order.
func (d *FakeDriver) Keys() []KeyEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]KeyEvent(nil), d.keys...)
}

// Navigated returns every URL passed to Navigate.
func (d *FakeDriver) Navigated() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.navigated...)
}

// SetLocation changes the URL reported by Location.
func (d *FakeDriver) SetLocation(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.location = url
}

// Reloads counts Reload calls.
func (d *FakeDriver) Reloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reloads
}

// Screenshots counts Screenshot calls.
func (d *FakeDriver) Screenshots() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shots
}

var errDetached = errors.New("element is detached")

func (d *FakeDriver) live(ref string) (automation.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	el, ok := d.elements[ref]
	if !ok {
		return automation.Element{}, errDetached
	}
	return *el, nil
}

// -- automation.Driver --

func (d *FakeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	if d.NavigateErr != nil {
		return d.NavigateErr
	}
	d.location = url
	return nil
}

func (d *FakeDriver) WaitReady(ctx context.Context) error { return ctx.Err() }

func (d *FakeDriver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location, nil
}

func (d *FakeDriver) Reload(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reloads++
	return nil
}

func (d *FakeDriver) Frames(ctx context.Context) ([]automation.Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FramesErr != nil {
		return nil, d.FramesErr
	}
	return append([]automation.Scope(nil), d.frames...), nil
}

func (d *FakeDriver) Query(ctx context.Context, scope automation.Scope, sel automation.Selector) ([]automation.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.QueryErr[sel.String()]; err != nil {
		return nil, err
	}
	return d.collect(d.index[indexKey(scope, sel.String())]), nil
}

func (d *FakeDriver) QueryWithin(ctx context.Context, parent automation.Element, css string) ([]automation.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collect(d.children[parent.Ref+"|"+css]), nil
}

func (d *FakeDriver) collect(refs []string) []automation.Element {
	var out []automation.Element
	for _, ref := range refs {
		if el, ok := d.elements[ref]; ok {
			out = append(out, *el)
		}
	}
	return out
}

func (d *FakeDriver) Inspect(ctx context.Context, el automation.Element) (automation.Element, error) {
	return d.live(el.Ref)
}

func (d *FakeDriver) ScrollIntoView(ctx context.Context, el automation.Element) error {
	_, err := d.live(el.Ref)
	return err
}

func (d *FakeDriver) Focus(ctx context.Context, el automation.Element) error {
	_, err := d.live(el.Ref)
	return err
}

func (d *FakeDriver) ClickNative(ctx context.Context, el automation.Element) error {
	return d.click(el, automation.MethodNative)
}

func (d *FakeDriver) ClickScript(ctx context.Context, el automation.Element) error {
	return d.click(el, automation.MethodScript)
}

func (d *FakeDriver) ClickPointer(ctx context.Context, el automation.Element) error {
	return d.click(el, automation.MethodPointer)
}

func (d *FakeDriver) click(el automation.Element, m automation.Method) error {
	d.mu.Lock()
	d.clicks = append(d.clicks, ClickEvent{Ref: el.Ref, Method: m})
	cur, ok := d.elements[el.Ref]
	var snapshot automation.Element
	if ok {
		snapshot = *cur
	}
	hook, decide := d.OnClick, d.ClickErr
	d.mu.Unlock()

	if !ok {
		return errDetached
	}
	if decide != nil {
		if err := decide(snapshot, m); err != nil {
			return err
		}
	}
	if hook != nil {
		hook(d, snapshot)
	}
	return nil
}

func (d *FakeDriver) SendKeys(ctx context.Context, el automation.Element, keys string) error {
	d.mu.Lock()
	d.keys = append(d.keys, KeyEvent{Ref: el.Ref, Keys: keys})
	cur, ok := d.elements[el.Ref]
	if ok && isPrintable(keys) {
		cur.Value += keys
	}
	var snapshot automation.Element
	if ok {
		snapshot = *cur
	}
	hook := d.OnKey
	d.mu.Unlock()

	if !ok {
		return errDetached
	}
	if hook != nil {
		hook(d, snapshot, keys)
	}
	return nil
}

func isPrintable(keys string) bool {
	switch keys {
	case automation.KeyEnter, automation.KeyTab, automation.KeyArrowDown, automation.KeyEscape:
		return false
	}
	return true
}

func (d *FakeDriver) SetValue(ctx context.Context, el automation.Element, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.elements[el.Ref]
	if !ok {
		return errDetached
	}
	cur.Value = value
	return nil
}

func (d *FakeDriver) Clear(ctx context.Context, el automation.Element) error {
	return d.SetValue(ctx, el, "")
}

func (d *FakeDriver) RemoveAttribute(ctx context.Context, el automation.Element, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cur, ok := d.elements[el.Ref]
	if !ok {
		return errDetached
	}
	delete(cur.Attrs, name)
	if name == "readonly" {
		cur.ReadOnly = false
	}
	return nil
}

func (d *FakeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shots++
	if d.ScreenshotErr != nil {
		return nil, d.ScreenshotErr
	}
	return []byte("\x89PNG fake"), nil
}
