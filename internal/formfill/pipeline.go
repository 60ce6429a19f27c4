// Package formfill fills one wizard page at a time. Each field reports its own
// completion flag; missing required flags are reconciled against the live DOM
// before the page is allowed to advance.
package formfill

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// Field is one control on a page. Verify reads the live DOM and must not
// change it.
type Field struct {
	Name     string
	Required bool
	Fill     func(ctx context.Context, scope automation.Scope) error
	Verify   func(ctx context.Context, scope automation.Scope) (bool, error)
}

// Filler is implemented by the stock field fillers.
type Filler interface {
	Fill(ctx context.Context, scope automation.Scope) error
	Verify(ctx context.Context, scope automation.Scope) (bool, error)
}

// NewField binds a Filler to a named field.
func NewField(name string, required bool, f Filler) Field {
	return Field{Name: name, Required: required, Fill: f.Fill, Verify: f.Verify}
}

// Page is an ordered set of fields plus the action that leaves the page.
type Page struct {
	Name    string
	Fields  []Field
	Advance func(ctx context.Context, scope automation.Scope) error
}

// PageFillResult holds per-field completion flags for one page.
type PageFillResult struct {
	Page       string
	Filled     map[string]bool
	Required   []string
	Overridden []string
}

// Missing lists required fields whose flag is false, in page order.
func (r PageFillResult) Missing() []string {
	var out []string
	for _, name := range r.Required {
		if !r.Filled[name] {
			out = append(out, name)
		}
	}
	return out
}

// Complete reports whether every required field is filled.
func (r PageFillResult) Complete() bool { return len(r.Missing()) == 0 }

// IncompleteError is returned when required fields stay unfilled after reconciliation.
type IncompleteError struct {
	Page    string
	Missing []string
}

func (e *IncompleteError) Error() string {
	return fmt.Sprintf("page %q incomplete: missing %s", e.Page, strings.Join(e.Missing, ", "))
}

// Pipeline runs pages.
type Pipeline struct {
	logger    *zap.Logger
	onFailure automation.FailureHook
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithFieldFailureHook is invoked with "<page>_<field>_failed" when a field fails.
func WithFieldFailureHook(h automation.FailureHook) PipelineOption {
	return func(p *Pipeline) { p.onFailure = h }
}

// NewPipeline creates a pipeline.
func NewPipeline(logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{logger: logger.Named("formfill")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Fill fills every field of page in order, reconciles when a required field
// is missing, and calls Advance only when the page is complete. A field
// failure is recorded and never stops the remaining fields.
func (p *Pipeline) Fill(ctx context.Context, scope automation.Scope, page Page) (PageFillResult, error) {
	log := p.logger.With(zap.String("page", page.Name), zap.String("scope", scope.Name()))
	result := PageFillResult{Page: page.Name, Filled: make(map[string]bool, len(page.Fields))}

	for _, f := range page.Fields {
		if f.Required {
			result.Required = append(result.Required, f.Name)
		}
		if f.Fill == nil {
			result.Filled[f.Name] = false
			continue
		}
		err := f.Fill(ctx, scope)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		result.Filled[f.Name] = err == nil
		if err != nil {
			log.Warn("Field not completed", zap.String("field", f.Name), zap.Bool("required", f.Required), zap.Error(err))
			if p.onFailure != nil {
				p.onFailure(ctx, fmt.Sprintf("%s_%s_failed", page.Name, f.Name))
			}
			continue
		}
		log.Info("Field completed", zap.String("field", f.Name))
	}

	if !result.Complete() {
		result = p.Reconcile(ctx, scope, page, result)
	}
	p.logStatus(log, result)

	if missing := result.Missing(); len(missing) > 0 {
		return result, &IncompleteError{Page: page.Name, Missing: missing}
	}
	if page.Advance != nil {
		if err := page.Advance(ctx, scope); err != nil {
			return result, fmt.Errorf("advancing from %s: %w", page.Name, err)
		}
	}
	return result, nil
}

// Reconcile re-checks every unfilled field against the live DOM and sets its
// flag when the UI shows it filled. Filled flags are never cleared, so
// running it again on its own output changes nothing.
func (p *Pipeline) Reconcile(ctx context.Context, scope automation.Scope, page Page, result PageFillResult) PageFillResult {
	out := PageFillResult{
		Page:       result.Page,
		Filled:     make(map[string]bool, len(result.Filled)),
		Required:   append([]string(nil), result.Required...),
		Overridden: append([]string(nil), result.Overridden...),
	}
	for k, v := range result.Filled {
		out.Filled[k] = v
	}

	for _, f := range page.Fields {
		if out.Filled[f.Name] || f.Verify == nil {
			continue
		}
		ok, err := f.Verify(ctx, scope)
		if err != nil {
			p.logger.Debug("Live check failed", zap.String("page", page.Name), zap.String("field", f.Name), zap.Error(err))
			continue
		}
		if ok {
			p.logger.Info("Overriding field status from UI state", zap.String("page", page.Name), zap.String("field", f.Name))
			out.Filled[f.Name] = true
			out.Overridden = append(out.Overridden, f.Name)
		}
	}
	return out
}

func (p *Pipeline) logStatus(log *zap.Logger, r PageFillResult) {
	fields := make([]zap.Field, 0, len(r.Filled)+1)
	for name, ok := range r.Filled {
		fields = append(fields, zap.Bool(name, ok))
	}
	fields = append(fields, zap.Strings("overridden", r.Overridden))
	log.Info("Field completion status", fields...)
}
