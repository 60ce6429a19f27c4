package classify

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// CandidateSelectors are the containers the portal renders status messages in.
var CandidateSelectors = []string{
	`div[class*="alert"]`,
	`div[class*="notification"]`,
	`div[class*="message"]`,
	`div[class*="banner"]`,
	`div[class*="MuiAlert"]`,
	`div[class*="error"]`,
	`div[class*="success"]`,
	`div[class*="warning"]`,
	`div[class*="status"]`,
	`div[class*="badge"]`,
	`span[class*="badge"]`,
	`div[class*="coverage"]`,
	`span[class*="coverage"]`,
}

// Candidate is one rendered status-like element.
type Candidate struct {
	Text            string
	BackgroundColor string
	Location        string
}

// ScopeLister lists every document that may hold a status message.
type ScopeLister interface {
	AllScopes(ctx context.Context) ([]automation.Scope, error)
}

// Scanner collects status candidates from every document and classifies them.
type Scanner struct {
	driver       automation.Driver
	scopes       ScopeLister
	logger       *zap.Logger
	wait         time.Duration
	pollInterval time.Duration
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithWait sets how long Scan keeps polling for a confident verdict.
func WithWait(d time.Duration) ScannerOption {
	return func(s *Scanner) { s.wait = d }
}

// WithPollInterval sets the delay between scans.
func WithPollInterval(d time.Duration) ScannerOption {
	return func(s *Scanner) { s.pollInterval = d }
}

// NewScanner creates a scanner that waits up to 20s by default.
func NewScanner(d automation.Driver, scopes ScopeLister, logger *zap.Logger, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		driver:       d,
		scopes:       scopes,
		logger:       logger.Named("classify"),
		wait:         20 * time.Second,
		pollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan polls until a candidate classifies confidently or the wait elapses.
// It always returns a verdict: the first confident one, else Unknown for the
// first candidate seen, else NoResponse, or Error when the page could not be read.
func (s *Scanner) Scan(ctx context.Context) Verdict {
	ctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	var (
		seen    []Candidate
		lastErr error
	)
	for {
		cands, err := s.Collect(ctx)
		switch {
		case err != nil:
			if ctx.Err() == nil {
				lastErr = err
			}
		case len(cands) > 0:
			lastErr = nil
			seen = cands
			s.logger.Info("Analyzing status candidates", zap.Int("count", len(cands)))
			for _, c := range cands {
				if v, ok := Classify(c.Text, c.BackgroundColor); ok {
					v.Location = c.Location
					s.logger.Info("Eligibility verdict",
						zap.String("status", string(v.Status)),
						zap.Int("flag", v.Flag),
						zap.String("method", string(v.DetectionMethod)),
						zap.String("location", v.Location))
					return v
				}
				s.logger.Debug("Candidate not classified", zap.String("text", c.Text), zap.String("background", c.BackgroundColor))
			}
		}

		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return s.fallback(ctx, seen, lastErr)
		case <-timer.C:
		}
	}
}

func (s *Scanner) fallback(ctx context.Context, seen []Candidate, lastErr error) Verdict {
	if len(seen) > 0 {
		first := seen[0]
		v := newVerdict(Unknown, Unclassified, first.Text)
		v.BackgroundColor = first.BackgroundColor
		v.BackgroundHex = NormalizeColor(first.BackgroundColor)
		v.Location = first.Location
		s.logger.Warn("Status elements found but none classified", zap.String("text", first.Text))
		return v
	}
	if lastErr != nil && !errors.Is(lastErr, context.DeadlineExceeded) {
		s.logger.Error("Reading eligibility response failed", zap.Error(lastErr))
		return ErrorVerdict(lastErr)
	}
	if parent := context.Cause(ctx); errors.Is(parent, context.Canceled) {
		return ErrorVerdict(parent)
	}
	s.logger.Warn("No eligibility response detected")
	return NoResponseVerdict()
}

// Collect gathers visible status candidates from the top document and every
// iframe, in selector order. A frame that cannot be read is skipped; an error
// is returned only when the top document cannot be read.
func (s *Scanner) Collect(ctx context.Context) ([]Candidate, error) {
	scopes, err := s.scopes.AllScopes(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Debug("Listing frames failed, scanning top document only", zap.Error(err))
		scopes = []automation.Scope{automation.Top()}
	}

	var out []Candidate
	for _, scope := range scopes {
		found, err := s.collectScope(ctx, scope)
		if err != nil {
			if scope.IsTop() || ctx.Err() != nil {
				return nil, err
			}
			s.logger.Debug("Skipping unreadable frame", zap.String("scope", scope.Name()), zap.Error(err))
			continue
		}
		out = append(out, found...)
	}
	return out, nil
}

func (s *Scanner) collectScope(ctx context.Context, scope automation.Scope) ([]Candidate, error) {
	seen := make(map[string]bool)
	var out []Candidate
	for _, sel := range CandidateSelectors {
		els, err := s.driver.Query(ctx, scope, automation.CSS(sel))
		if err != nil {
			return nil, err
		}
		for _, el := range els {
			text := strings.TrimSpace(el.Text)
			if !el.Visible || len(text) <= 2 || seen[el.Ref] {
				continue
			}
			seen[el.Ref] = true
			out = append(out, Candidate{Text: text, BackgroundColor: el.BackgroundColor, Location: scope.Name()})
		}
	}
	return out, nil
}
