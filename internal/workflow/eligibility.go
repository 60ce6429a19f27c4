package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/formfill"
)

// Eligibility inquiry controls. The payer and patient inputs live in the
// content frame; the provider typeahead may render in any frame.
var (
	payerInput      = locate("payer", automation.TypedInput, automation.CSS("input[id*='payer']"))
	providerInput   = locate("provider", automation.TypedInput, automation.CSS("input#provider"))
	patientDOBInput = locate("patient_dob", automation.TypedInput,
		automation.XPath("//input[contains(@placeholder, 'mm/dd/yyyy') or contains(@aria-label, 'Date of Birth')]"))
	eligSubmit = locate("submit", automation.Button,
		automation.XPath("//button[@type='submit' and contains(@class,'MuiButton-containedPrimary') and contains(text(),'Submit')]"),
		automation.XPath("//button[@type='submit' and contains(text(),'Submit')]"),
	)
)

func serviceTypeTarget() automation.Target {
	t := locate("service_type", automation.TypedInput,
		automation.XPath("//label[contains(@for,'serviceType') or contains(text(),'Benefit') or contains(text(),'Service Type')]/following::div[contains(@class,'av-select')]//input"),
		automation.XPath("//div[contains(@class,'av-select')]//input"),
	)
	t.Family = "input[role='combobox'], input.form-control"
	t.Exclude = []string{"payer", "provider"}
	t.LabelHint = "Service Type"
	return t
}

// Eligibility runs one Eligibility and Benefits Inquiry and classifies the
// portal's response.
type Eligibility struct {
	env    *Env
	record PatientRecord
	scope  automation.Scope
}

// NewEligibility builds the eligibility workflow over env for rec.
func NewEligibility(env *Env, rec PatientRecord) *Eligibility {
	return &Eligibility{env: env, record: rec}
}

func (w *Eligibility) Name() string { return string(KindEligibility) }

func (w *Eligibility) Steps() []Step {
	steps := w.env.LoginSteps(EligibilityTile)
	return append(steps,
		Step{Name: "payer", Run: w.fillPayer},
		Step{Name: "provider", Run: w.fillProvider},
		Step{Name: "patient", Run: w.fillPatient},
		Step{Name: "service_type", Run: w.fillServiceType},
		Step{Name: "classify", Run: w.classify},
	)
}

func (w *Eligibility) enter(ctx context.Context) error {
	e := w.env
	if err := e.pause(ctx, e.Settle); err != nil {
		return err
	}
	scope, err := e.Frames.AwaitContentFrame(ctx, e.Timeouts.Long)
	if err != nil {
		return err
	}
	w.scope = scope
	return nil
}

func (w *Eligibility) fill(ctx context.Context, page formfill.Page) error {
	_, err := w.env.Pipeline.Fill(ctx, w.scope, page)
	return err
}

func (w *Eligibility) fillPayer(ctx context.Context, _ *Outcome) error {
	if err := w.enter(ctx); err != nil {
		return err
	}
	e := w.env
	return w.fill(ctx, formfill.Page{
		Name: "payer",
		Fields: []formfill.Field{
			formfill.NewField("payer", true, formfill.Autocomplete{
				Kit: e.Kit, Target: payerInput, Value: w.record.Payer,
				Suggestions: formfill.DefaultSuggestions, Keyboard: true,
			}),
		},
	})
}

// fillProvider finds the provider typeahead in whichever frame renders it.
func (w *Eligibility) fillProvider(ctx context.Context, _ *Outcome) error {
	e := w.env
	scope, input, err := e.findInFrames(ctx, providerInput, e.Timeouts.Element)
	if err != nil {
		return err
	}
	filler := formfill.Autocomplete{Kit: e.Kit, Target: providerInput, Value: w.record.ProviderName, Keyboard: true}
	if err := filler.FillElement(ctx, scope, input); err != nil {
		return fmt.Errorf("provider in %s: %w", scope.Name(), err)
	}
	e.Logger.Info("Provider entered", zap.String("scope", scope.Name()))
	return nil
}

func (w *Eligibility) fillPatient(ctx context.Context, _ *Outcome) error {
	if err := w.enter(ctx); err != nil {
		return err
	}
	e := w.env

	memberID := automation.NewTarget("member_id", automation.TypedInput)
	memberID.Patterns = []string{"memberId", "patientId"}
	memberID.LabelHint = "Member ID"
	memberID.Family = "input[type='text']"
	memberID.Exclude = []string{"payer", "provider"}

	return w.fill(ctx, formfill.Page{
		Name: "patient",
		Fields: []formfill.Field{
			formfill.NewField("member_id", true, formfill.TypedField{Kit: e.Kit, Target: memberID, Value: w.record.MemberID}),
			formfill.NewField("patient_dob", true, formfill.TypedField{
				Kit: e.Kit, Target: patientDOBInput, Value: FormatDate(w.record.PatientDOB), PressTab: true,
			}),
		},
	})
}

func (w *Eligibility) fillServiceType(ctx context.Context, _ *Outcome) error {
	if err := w.enter(ctx); err != nil {
		return err
	}
	e := w.env
	service := e.Portal.ServiceType
	return w.fill(ctx, formfill.Page{
		Name: "service_type",
		Fields: []formfill.Field{
			formfill.NewField("service_type", true, formfill.Autocomplete{
				Kit:    e.Kit,
				Target: serviceTypeTarget(),
				Value:  service,
				Suggestions: []automation.Selector{
					automation.XPath(fmt.Sprintf("//div[contains(text(),'%s')]", service)),
				},
				Keyboard: true,
			}),
		},
		Advance: func(ctx context.Context, scope automation.Scope) error {
			if err := e.click(ctx, scope, eligSubmit, e.Timeouts.Element); err != nil {
				return err
			}
			e.Logger.Info("Inquiry submitted")
			return nil
		},
	})
}

// classify reads the response. It never fails; an unreadable page is
// itself a verdict.
func (w *Eligibility) classify(ctx context.Context, out *Outcome) error {
	e := w.env
	if err := e.pause(ctx, e.Settle); err != nil {
		return err
	}
	verdict := e.Scanner.Scan(ctx)
	out.Verdict = &verdict
	out.Message = verdict.Message
	e.capture(ctx, "eligibility_result")
	e.Logger.Info("Eligibility classified",
		zap.String("status", string(verdict.Status)),
		zap.Int("flag", verdict.Flag),
		zap.String("location", verdict.Location))
	return nil
}

// findInFrames polls every iframe for t until one holds it.
func (e *Env) findInFrames(ctx context.Context, t automation.Target, timeout time.Duration) (automation.Scope, automation.Element, error) {
	return e.findIn(ctx, t, timeout, false)
}

// findInScopes polls the top-level document and every iframe for t.
func (e *Env) findInScopes(ctx context.Context, t automation.Target, timeout time.Duration) (automation.Scope, automation.Element, error) {
	return e.findIn(ctx, t, timeout, true)
}

func (e *Env) findIn(ctx context.Context, t automation.Target, timeout time.Duration, withTop bool) (automation.Scope, automation.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		scopes, err := e.Frames.AllScopes(ctx)
		if err == nil {
			if !withTop {
				scopes = scopes[1:]
			}
			for _, scope := range scopes {
				el, rerr := e.Resolver.Resolve(ctx, scope, t)
				if rerr == nil {
					return scope, el, nil
				}
				if ctx.Err() != nil {
					return automation.Scope{}, automation.Element{}, ctx.Err()
				}
			}
		} else if ctx.Err() != nil {
			return automation.Scope{}, automation.Element{}, ctx.Err()
		}
		if !time.Now().Before(deadline) {
			where := "any frame"
			if withTop {
				where = "any document"
			}
			return automation.Scope{}, automation.Element{}, fmt.Errorf("%s in %s after %s: %w", t.Name, where, timeout, automation.ErrNotFound)
		}
		if err := e.pause(ctx, e.Poll); err != nil {
			return automation.Scope{}, automation.Element{}, err
		}
	}
}
