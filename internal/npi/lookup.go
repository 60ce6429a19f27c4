// Package npi looks providers up on the public NPI registry and records what it
// finds against the run inputs.
package npi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

var (
	// ErrNoResults is returned when the registry lists nobody under the name.
	ErrNoResults = errors.New("no registry results")
	// ErrInvalidQuery is returned when a first or last name is missing.
	ErrInvalidQuery = errors.New("first and last name are required")
)

// Status is the enumeration state shown on a provider's detail page.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
	StatusUnknown  Status = "Unknown"
)

// Query names the provider to search for.
type Query struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ParseFullName splits a "LAST, FIRST" provider name.
func ParseFullName(full string) (Query, error) {
	last, first, ok := strings.Cut(full, ",")
	q := Query{FirstName: strings.TrimSpace(first), LastName: strings.TrimSpace(last)}
	if !ok || q.FirstName == "" || q.LastName == "" {
		return Query{}, fmt.Errorf("provider name %q is not \"LAST, FIRST\": %w", full, ErrInvalidQuery)
	}
	return q, nil
}

// Provider is a registry hit.
type Provider struct {
	NPI    string `json:"npi"`
	Name   string `json:"provider_name,omitempty"`
	Status Status `json:"status"`
}

// Lookup finds a provider by name.
type Lookup interface {
	Lookup(ctx context.Context, q Query) (Provider, error)
}

var (
	firstNameInput = target("first_name", automation.TypedInput, automation.CSS("#firstName"))
	lastNameInput  = target("last_name", automation.TypedInput, automation.CSS("#lastName"))
	searchButton   = target("search", automation.Button, automation.CSS("[name='search']"))
	resultButton   = target("npi_result", automation.Button,
		automation.XPath("//table[contains(@class, 'table-hover')]//button[@class='btn btn-link']"))
)

// nameSelectors are tried in order on the detail page.
var nameSelectors = []automation.Selector{
	automation.XPath("//h2[contains(@class, 'provider-name')]"),
	automation.XPath("//div[contains(@class, 'provider-name')]"),
	automation.XPath("//span[contains(text(), 'Provider Name')]/following-sibling::*"),
	automation.XPath("//td[contains(text(), 'Provider Name')]/following-sibling::td"),
	automation.XPath("//div[@class='row']//strong[contains(text(), 'Name')]/parent::*/following-sibling::*"),
	automation.XPath("//h1"),
	automation.XPath("//h2"),
	automation.XPath("//h3"),
}

func target(name string, kind automation.Kind, sels ...automation.Selector) automation.Target {
	t := automation.NewTarget(name, kind)
	t.Selectors = sels
	return t
}

// BrowserLookup drives the registry search page.
type BrowserLookup struct {
	driver   automation.Driver
	resolver *automation.Resolver
	actuator *automation.Actuator
	url      string
	wait     time.Duration
	settle   time.Duration
	logger   *zap.Logger
}

// Option tunes a BrowserLookup.
type Option func(*BrowserLookup)

// WithWait bounds the wait for the search form and the result table.
func WithWait(d time.Duration) Option {
	return func(b *BrowserLookup) { b.wait = d }
}

// WithSettle sets the pause after opening the detail page.
func WithSettle(d time.Duration) Option {
	return func(b *BrowserLookup) { b.settle = d }
}

// WithActuator replaces the default actuator, mostly so tests can drop delays.
func WithActuator(a *automation.Actuator) Option {
	return func(b *BrowserLookup) { b.actuator = a }
}

// WithResolver replaces the default resolver.
func WithResolver(r *automation.Resolver) Option {
	return func(b *BrowserLookup) { b.resolver = r }
}

// NewBrowserLookup searches registryURL through d.
func NewBrowserLookup(d automation.Driver, registryURL string, logger *zap.Logger, opts ...Option) *BrowserLookup {
	logger = logger.Named("npi")
	b := &BrowserLookup{
		driver: d,
		url:    registryURL,
		wait:   15 * time.Second,
		settle: 3 * time.Second,
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.resolver == nil {
		b.resolver = automation.NewResolver(d, logger)
	}
	if b.actuator == nil {
		b.actuator = automation.NewActuator(d, automation.DefaultPolicy(), logger)
	}
	return b
}

// Lookup searches for q, opens the first hit and reads its detail page.
func (b *BrowserLookup) Lookup(ctx context.Context, q Query) (Provider, error) {
	if strings.TrimSpace(q.FirstName) == "" || strings.TrimSpace(q.LastName) == "" {
		return Provider{}, ErrInvalidQuery
	}
	log := b.logger.With(zap.String("first_name", q.FirstName), zap.String("last_name", q.LastName))
	log.Info("Searching NPI registry")

	if err := b.driver.Navigate(ctx, b.url); err != nil {
		return Provider{}, fmt.Errorf("opening registry: %w", err)
	}
	if err := b.driver.WaitReady(ctx); err != nil {
		log.Warn("Registry page did not report ready", zap.Error(err))
	}

	top := automation.Top()
	if err := b.fill(ctx, firstNameInput, q.FirstName); err != nil {
		return Provider{}, err
	}
	if err := b.fill(ctx, lastNameInput, q.LastName); err != nil {
		return Provider{}, err
	}
	search, err := b.resolver.Await(ctx, top, searchButton, b.wait)
	if err != nil {
		return Provider{}, err
	}
	if err := b.actuator.Click(ctx, search, searchButton.Name); err != nil {
		return Provider{}, err
	}

	hit, err := b.resolver.Await(ctx, top, resultButton, b.wait)
	if errors.Is(err, automation.ErrNotFound) {
		log.Info("No registry results")
		return Provider{}, fmt.Errorf("%s %s: %w", q.FirstName, q.LastName, ErrNoResults)
	}
	if err != nil {
		return Provider{}, err
	}
	number := strings.TrimSpace(hit.Text)
	if number == "" {
		return Provider{}, fmt.Errorf("%s %s: result has no NPI: %w", q.FirstName, q.LastName, ErrNoResults)
	}

	if err := b.actuator.Click(ctx, hit, resultButton.Name); err != nil {
		return Provider{}, err
	}
	if err := b.actuator.Policy().Pause(ctx, b.settle); err != nil {
		return Provider{}, err
	}

	p := Provider{
		NPI:    number,
		Name:   b.providerName(ctx),
		Status: b.status(ctx),
	}
	log.Info("Found provider", zap.String("npi", p.NPI), zap.String("name", p.Name), zap.String("status", string(p.Status)))
	return p, nil
}

func (b *BrowserLookup) fill(ctx context.Context, t automation.Target, value string) error {
	el, err := b.resolver.Await(ctx, automation.Top(), t, b.wait)
	if err != nil {
		return err
	}
	return b.actuator.ClearAndType(ctx, el, value, t.Name)
}

// providerName returns the first plausible heading on the detail page, or "".
func (b *BrowserLookup) providerName(ctx context.Context) string {
	for _, sel := range nameSelectors {
		els, err := b.driver.Query(ctx, automation.Top(), sel)
		if err != nil {
			continue
		}
		for _, el := range els {
			text := strings.TrimSpace(el.Text)
			if plausibleName(text) {
				return text
			}
		}
	}
	return ""
}

func plausibleName(text string) bool {
	if len(text) <= 2 || strings.HasPrefix(strings.ToLower(text), "provider information for") {
		return false
	}
	return strings.ContainsFunc(text, func(r rune) bool { return !unicode.IsDigit(r) })
}

func (b *BrowserLookup) status(ctx context.Context) Status {
	els, err := b.driver.Query(ctx, automation.Top(), automation.CSS("body"))
	if err != nil || len(els) == 0 {
		return StatusUnknown
	}
	return StatusFromText(els[0].Text)
}

// StatusFromText reads the enumeration state out of a detail page's text.
func StatusFromText(text string) Status {
	text = strings.ToLower(text)
	switch {
	case strings.Contains(text, "inactive"):
		return StatusInactive
	case strings.Contains(text, "active"):
		return StatusActive
	default:
		return StatusUnknown
	}
}
