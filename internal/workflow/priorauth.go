package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
	"github.com/xkilldash9x/availity-rpa/internal/formfill"
)

// DefaultFromDate is entered when a record carries no service start date.
const DefaultFromDate = "2025-07-17"

const select2Chosen = "span.select2-chosen"

// Prior-auth wizard controls, all inside the content frame.
var (
	authorizationsNav = locate("authorization_request", automation.Button, automation.CSS("#navigation-authorizations"))
	wizardNext        = locate("next", automation.Button,
		automation.CSS("#authWizardNextButton"),
		automation.XPath("//button[contains(@class,'btn') and contains(text(),'Next')]"),
		automation.XPath("//button[contains(text(),'Next')]"),
	)
	nextStepsButton  = locate("next_steps", automation.Button, automation.CSS("#nextStepsButton"))
	resultMessage    = locate("result_message", automation.Button, automation.XPath("//div[contains(@class, 'alert') or contains(@class, 'message')]"))
	newRequestButton = locate("new_request", automation.Button,
		automation.XPath("//button[contains(@class, 'btn-primary') and contains(text(), 'New Request')]"))
)

// select2Target names a select2 dropdown by the prompt or label it shows.
// Patterns, when given, match the container id first.
func select2Target(name, label string, patterns ...string) automation.Target {
	t := automation.NewTarget(name, automation.SearchSelect)
	t.Patterns = patterns
	t.LabelHint = label
	t.Family = select2Chosen
	return t
}

// PriorAuth submits one outpatient authorization request.
type PriorAuth struct {
	env    *Env
	record PatientRecord
	scope  automation.Scope

	// Pages collects the fill result of every wizard page, in order.
	Pages []formfill.PageFillResult
}

// NewPriorAuth builds the prior-auth workflow over env for rec.
func NewPriorAuth(env *Env, rec PatientRecord) *PriorAuth {
	return &PriorAuth{env: env, record: rec}
}

func (p *PriorAuth) Name() string { return string(KindPriorAuth) }

func (p *PriorAuth) Steps() []Step {
	e := p.env
	steps := e.LoginSteps(AuthorizationsTile)
	return append(steps,
		Step{Name: "authorization_request", Run: p.openRequest},
		Step{Name: "authorization_form", Run: p.fillPage(p.authorizationPage)},
		Step{Name: "patient_info", Run: p.fillPage(p.patientPage)},
		Step{Name: "save_password_popup", Optional: true, Run: e.DismissSavePassword},
		Step{Name: "diagnosis_procedure", Run: p.fillPage(p.procedurePage)},
		Step{Name: "select_providers", Run: p.fillPage(p.providerPage)},
		Step{Name: "next_steps", Run: p.clickInFrame(nextStepsButton)},
		Step{Name: "second_next", Run: p.clickInFrame(wizardNext)},
		Step{Name: "submit", Run: p.clickInFrame(wizardNext)},
		Step{Name: "result_message", Optional: true, Run: p.awaitResult},
		Step{Name: "new_request", Run: p.newRequest},
	)
}

// enter re-acquires the content frame. Every wizard transition replaces it.
func (p *PriorAuth) enter(ctx context.Context) error {
	e := p.env
	if err := e.pause(ctx, e.Settle); err != nil {
		return err
	}
	scope, err := e.Frames.AwaitContentFrame(ctx, e.Timeouts.Long)
	if err != nil {
		return err
	}
	p.scope = scope
	return nil
}

func (p *PriorAuth) openRequest(ctx context.Context, _ *Outcome) error {
	if err := p.enter(ctx); err != nil {
		return err
	}
	e := p.env
	if err := e.click(ctx, p.scope, authorizationsNav, e.Timeouts.Element); err != nil {
		return err
	}
	return e.waitForLoad(ctx)
}

func (p *PriorAuth) fillPage(build func() formfill.Page) func(ctx context.Context, _ *Outcome) error {
	return func(ctx context.Context, _ *Outcome) error {
		if err := p.enter(ctx); err != nil {
			return err
		}
		result, err := p.env.Pipeline.Fill(ctx, p.scope, build())
		p.Pages = append(p.Pages, result)
		return err
	}
}

func (p *PriorAuth) clickInFrame(t automation.Target) func(ctx context.Context, _ *Outcome) error {
	return func(ctx context.Context, _ *Outcome) error {
		if err := p.enter(ctx); err != nil {
			return err
		}
		e := p.env
		if err := e.click(ctx, p.scope, t, e.Timeouts.Element); err != nil {
			return err
		}
		return e.waitForLoad(ctx)
	}
}

func (p *PriorAuth) advance(ctx context.Context, scope automation.Scope) error {
	e := p.env
	if err := e.click(ctx, scope, wizardNext, e.Timeouts.Element); err != nil {
		return err
	}
	return e.waitForLoad(ctx)
}

func (p *PriorAuth) authorizationPage() formfill.Page {
	e := p.env
	payer := select2Target("payer", "Payer")
	payer.Expected = []string{"Select a Payer"}
	payer.FallbackIndex = 2

	requestType := select2Target("request_type", "Request Type")
	requestType.Expected = []string{"Select Authorization Type", "Request Type"}
	requestType.FallbackIndex = 3

	return formfill.Page{
		Name: "authorization",
		Fields: []formfill.Field{
			formfill.NewField("payer", true, formfill.OptionSelect{
				Kit:     e.Kit,
				Target:  payer,
				Options: []string{e.Portal.AuthPayer},
				Expect:  []string{e.Portal.AuthPayer},
			}),
			formfill.NewField("request_type", true, formfill.OptionSelect{
				Kit:     e.Kit,
				Target:  requestType,
				Options: []string{e.Portal.RequestType},
				Expect:  []string{e.Portal.RequestType},
			}),
		},
	}
}

func (p *PriorAuth) patientPage() formfill.Page {
	e := p.env
	memberID := locate("member_id", automation.TypedInput,
		automation.CSS(`input#subscriber\.memberId`),
		automation.XPath("//input[contains(@aria-labelledby,'subscriber.memberId')]"),
	)
	memberID.Patterns = []string{"memberId"}
	memberID.LabelHint = "Member ID"

	dob := locate("date_of_birth", automation.TypedInput,
		automation.CSS(`input#patient\.birthDate`),
		automation.XPath("//input[contains(@placeholder,'mm/dd/yyyy')]"),
	)
	dob.Patterns = []string{"birthDate"}
	dob.LabelHint = "Date of Birth"

	provider := select2Target("provider", "Provider")
	provider.Expected = []string{"Select Provider"}

	return formfill.Page{
		Name: "patient",
		Fields: []formfill.Field{
			formfill.NewField("member_id", true, formfill.TypedField{Kit: e.Kit, Target: memberID, Value: p.record.MemberID}),
			formfill.NewField("date_of_birth", true, formfill.TypedField{
				Kit: e.Kit, Target: dob, Value: FormatDate(p.record.DateOfBirth), PressTab: true,
			}),
			formfill.NewField("provider", true, formfill.ProviderSelect(e.Kit, provider, providerPreferences(e.Portal.ProviderName)...)),
		},
		Advance: p.advance,
	}
}

func (p *PriorAuth) procedurePage() formfill.Page {
	e := p.env
	fromDate := p.record.FromDate
	if fromDate == "" {
		fromDate = DefaultFromDate
	}

	quantity := locate("quantity", automation.TypedInput, automation.CSS("input[id*='serviceQuantity']"))
	quantity.LabelHint = "Procedure Service Quantity"

	quantityType := locate("quantity_type", automation.SingleSelect, automation.CSS("div.select2-container[id*='quantityType']"))
	quantityType.LabelHint = "Quantity Type"

	return formfill.Page{
		Name: "procedure",
		Fields: []formfill.Field{
			formfill.NewField("place_of_service", true, formfill.SearchSelect{
				Kit: e.Kit, Target: select2Target("place_of_service", "Place of Service", "placeOfService"), Value: e.Portal.PlaceOfService,
			}),
			formfill.NewField("diagnosis_code", true, formfill.SearchSelect{
				Kit: e.Kit, Target: select2Target("diagnosis_code", "Diagnosis Code", "diagnosisCode"), Value: p.record.DiagnosisCode,
			}),
			formfill.NewField("procedure_code", true, formfill.SearchSelect{
				Kit: e.Kit, Target: select2Target("procedure_code", "Procedure Code", "procedureCode"), Value: p.record.ProcedureCode,
			}),
			formfill.NewField("from_date", true, formfill.DateField{
				Kit: e.Kit, Target: formfill.DateTarget("from_date"), Value: FormatDate(fromDate), OpenPicker: true,
			}),
			formfill.NewField("quantity", false, formfill.TypedField{Kit: e.Kit, Target: quantity, Value: e.Portal.ProcedureQuantity}),
			formfill.NewField("quantity_type", false, formfill.OptionSelect{
				Kit:      e.Kit,
				Target:   quantityType,
				Options:  []string{e.Portal.ProcedureQuantityType},
				Keyboard: true,
				Expect:   []string{e.Portal.ProcedureQuantityType},
			}),
		},
		Advance: p.advance,
	}
}

func (p *PriorAuth) providerPage() formfill.Page {
	e := p.env
	prefs := providerPreferences(e.Portal.ProviderName)
	return formfill.Page{
		Name: "providers",
		Fields: []formfill.Field{
			formfill.NewField("rendering_provider", true, formfill.SearchSelect{
				Kit: e.Kit, Target: select2Target("rendering_provider", "Select a Provider"), Value: prefs[0],
			}),
		},
		Advance: p.advance,
	}
}

func (p *PriorAuth) awaitResult(ctx context.Context, out *Outcome) error {
	e := p.env
	scope, el, err := e.findInScopes(ctx, resultMessage, e.Timeouts.ResultWindow)
	if err != nil {
		return err
	}
	out.Message = strings.TrimSpace(el.Text)
	e.Logger.Info("Submission result", zap.String("scope", scope.Name()), zap.String("message", out.Message))
	e.capture(ctx, "submission_result_message")
	return nil
}

// newRequest resets the wizard for the next record, reloading when the
// button is missing.
func (p *PriorAuth) newRequest(ctx context.Context, _ *Outcome) error {
	e := p.env
	err := e.click(ctx, automation.Top(), newRequestButton, e.Timeouts.Element)
	if err == nil {
		return e.waitForLoad(ctx)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	e.Logger.Warn("New Request button unavailable, reloading", zap.Error(err))
	if rerr := e.Driver.Reload(ctx); rerr != nil {
		return fmt.Errorf("reload after %v: %w", err, rerr)
	}
	return e.waitForLoad(ctx)
}

// providerPreferences puts the configured provider's surname ahead of the
// stock preference list.
func providerPreferences(configured string) []string {
	surname := strings.TrimSpace(strings.SplitN(configured, ",", 2)[0])
	prefs := make([]string, 0, len(formfill.DefaultProviderPreferences)+1)
	if surname != "" {
		prefs = append(prefs, surname)
	}
	for _, p := range formfill.DefaultProviderPreferences {
		if !strings.EqualFold(p, surname) {
			prefs = append(prefs, p)
		}
	}
	return prefs
}
