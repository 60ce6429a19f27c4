package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/automation"
)

// ErrMFA marks a run that could not get past the one-time code prompt.
var ErrMFA = errors.New("mfa handoff failed")

// mfaInputWait bounds the wait for the code input once a code is in hand.
const mfaInputWait = 10 * time.Second

func locate(name string, kind automation.Kind, sels ...automation.Selector) automation.Target {
	t := automation.NewTarget(name, kind)
	t.Selectors = sels
	return t
}

// Login and navigation controls.
var (
	cookieButton = locate("accept_cookies", automation.Button,
		automation.XPath("//button[contains(text(), 'Accept All Cookies')]"))
	userIDInput   = locate("user_id", automation.TypedInput, automation.CSS("#userId"))
	passwordInput = locate("password", automation.TypedInput, automation.CSS("#password"))
	signInButton  = locate("sign_in", automation.Button,
		automation.XPath("//button[contains(text(), 'Sign In')]"))
	authenticatorOption = locate("authenticator_option", automation.Button,
		automation.XPath("//label[contains(., 'Authenticate me using my Authenticator app')]"))
	continueButton = locate("continue", automation.Button,
		automation.XPath("//button[contains(text(), 'Continue')]"))
	mfaCodeInput = locate("mfa_code", automation.TypedInput,
		automation.XPath("//input[@placeholder='Code' or @name='code' or @type='text']"))
	mfaSubmitButton = locate("mfa_submit", automation.Button,
		automation.XPath("//button[contains(text(), 'Continue') or contains(text(), 'Submit') or contains(text(), 'Verify')]"))
	patientRegistrationLink = locate("patient_registration", automation.Button,
		automation.XPath("//a[contains(text(), 'Patient Registration')]"))
	savePasswordDismiss = locate("save_password_never", automation.Button,
		automation.XPath("//button[text()='Never' or text()='No']"))
)

// Tile names on the Patient Registration page.
const (
	AuthorizationsTile = "Authorizations & Referrals"
	EligibilityTile    = "Eligibility and Benefits Inquiry"
)

func tileTarget(title string) automation.Target {
	return locate("tile", automation.Button,
		automation.XPath(fmt.Sprintf("//div[contains(@class, 'media-body') and contains(., '%s')]", title)),
		automation.XPath(fmt.Sprintf("//a[contains(text(), '%s')]", title)),
	)
}

// click waits up to timeout for t in scope and clicks it.
func (e *Env) click(ctx context.Context, scope automation.Scope, t automation.Target, timeout time.Duration) error {
	el, err := e.Resolver.Await(ctx, scope, t, timeout)
	if err != nil {
		return err
	}
	return e.Actuator.Click(ctx, el, t.Name)
}

// typeInto waits for t in scope, clears it and types text.
func (e *Env) typeInto(ctx context.Context, scope automation.Scope, t automation.Target, text string) error {
	el, err := e.Resolver.Await(ctx, scope, t, e.Timeouts.Element)
	if err != nil {
		return err
	}
	return e.Actuator.ClearAndType(ctx, el, text, t.Name)
}

// waitForLoad waits for the document to settle after a navigation.
func (e *Env) waitForLoad(ctx context.Context) error {
	lctx, cancel := context.WithTimeout(ctx, e.Timeouts.Navigation)
	defer cancel()
	if err := e.Driver.WaitReady(lctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.Logger.Warn("Page did not report ready", zap.Error(err))
	}
	return e.pause(ctx, e.Timeouts.PostLoadWait)
}

// OpenHome loads the public site.
func (e *Env) OpenHome(ctx context.Context, _ *Outcome) error {
	e.Logger.Info("Opening portal", zap.String("url", e.Portal.HomeURL))
	if err := e.Driver.Navigate(ctx, e.Portal.HomeURL); err != nil {
		return fmt.Errorf("opening %s: %w", e.Portal.HomeURL, err)
	}
	return e.waitForLoad(ctx)
}

// AcceptCookies clicks the cookie banner when it shows.
func (e *Env) AcceptCookies(ctx context.Context, _ *Outcome) error {
	return e.click(ctx, automation.Top(), cookieButton, e.OptionalWait)
}

// OpenLogin follows the Essentials login link.
func (e *Env) OpenLogin(ctx context.Context, _ *Outcome) error {
	link := locate("login_link", automation.Button,
		automation.CSS(fmt.Sprintf("a[href='%s']", e.Portal.LoginLinkHref)))
	if err := e.click(ctx, automation.Top(), link, e.Timeouts.Element); err != nil {
		return err
	}
	return e.waitForLoad(ctx)
}

// SignIn submits the configured credentials.
func (e *Env) SignIn(ctx context.Context, _ *Outcome) error {
	top := automation.Top()
	if err := e.typeInto(ctx, top, userIDInput, e.Portal.Email); err != nil {
		return err
	}
	if err := e.typeInto(ctx, top, passwordInput, e.Portal.Password); err != nil {
		return err
	}
	e.Logger.Info("Submitting credentials")
	return e.click(ctx, top, signInButton, e.Timeouts.Element)
}

// ChooseTwoFactor picks the authenticator app as the second factor. The
// portal skips this page for some accounts.
func (e *Env) ChooseTwoFactor(ctx context.Context, _ *Outcome) error {
	top := automation.Top()
	if err := e.click(ctx, top, authenticatorOption, e.Timeouts.Element); err != nil {
		return err
	}
	return e.click(ctx, top, continueButton, e.Timeouts.Element)
}

// CompleteMFA relays the one-time code from a human operator when the
// portal asks for one. A prompt that never gets a code fails the run.
func (e *Env) CompleteMFA(ctx context.Context, _ *Outcome) error {
	if err := e.pause(ctx, e.Settle); err != nil {
		return err
	}
	top := automation.Top()
	if _, err := e.Resolver.Resolve(ctx, top, mfaCodeInput); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.Logger.Info("No MFA prompt, continuing")
		return nil
	}
	e.Logger.Info("MFA prompt detected")
	if e.MFA == nil {
		return fmt.Errorf("%w: no code source configured", ErrMFA)
	}

	id, err := e.MFA.RequestSession(ctx)
	if err != nil {
		return fmt.Errorf("requesting session: %w", errors.Join(ErrMFA, err))
	}
	log := e.Logger.With(zap.String("session_id", id))
	log.Info("Waiting for operator code")

	code, err := e.MFA.WaitForCode(ctx, id)
	if err != nil {
		e.capture(ctx, "mfa_no_code")
		return fmt.Errorf("waiting for code: %w", errors.Join(ErrMFA, err))
	}

	input, err := e.Resolver.Await(ctx, top, mfaCodeInput, mfaInputWait)
	if err != nil {
		return fmt.Errorf("code input: %w", errors.Join(ErrMFA, err))
	}
	if err := e.Actuator.ClearAndType(ctx, input, code, mfaCodeInput.Name); err != nil {
		return fmt.Errorf("typing code: %w", errors.Join(ErrMFA, err))
	}
	if err := e.click(ctx, top, mfaSubmitButton, e.Timeouts.Element); err != nil {
		return fmt.Errorf("submitting code: %w", errors.Join(ErrMFA, err))
	}
	log.Info("Code submitted")
	return nil
}

// AwaitLogin waits for the portal to leave the login page. The redirect
// budget running out is logged, not fatal; the next step fails loudly if
// the session is not actually signed in.
func (e *Env) AwaitLogin(ctx context.Context, _ *Outcome) error {
	initial, err := e.Driver.Location(ctx)
	if err != nil {
		return fmt.Errorf("reading location: %w", err)
	}
	deadline := time.Now().Add(e.Timeouts.LoginRedirect)
	for {
		url, err := e.Driver.Location(ctx)
		if err == nil && url != initial {
			e.Logger.Info("Signed in", zap.String("url", url))
			break
		}
		if !time.Now().Before(deadline) {
			e.Logger.Warn("URL did not change after sign-in", zap.String("url", initial), zap.Duration("waited", e.Timeouts.LoginRedirect))
			break
		}
		if err := e.pause(ctx, e.LoginPoll); err != nil {
			return err
		}
	}
	return e.waitForLoad(ctx)
}

// OpenPatientRegistration opens the Patient Registration menu.
func (e *Env) OpenPatientRegistration(ctx context.Context, _ *Outcome) error {
	if err := e.click(ctx, automation.Top(), patientRegistrationLink, e.Timeouts.Element); err != nil {
		return err
	}
	return e.waitForLoad(ctx)
}

// OpenTile returns a step that opens the named Patient Registration tile.
func (e *Env) OpenTile(title string) func(ctx context.Context, _ *Outcome) error {
	return func(ctx context.Context, _ *Outcome) error {
		if err := e.click(ctx, automation.Top(), tileTarget(title), e.Timeouts.Element); err != nil {
			return fmt.Errorf("%s tile: %w", title, err)
		}
		return e.waitForLoad(ctx)
	}
}

// DismissSavePassword closes the browser's save-password prompt.
func (e *Env) DismissSavePassword(ctx context.Context, _ *Outcome) error {
	return e.click(ctx, automation.Top(), savePasswordDismiss, e.OptionalWait)
}

// LoginSteps signs in and lands on the named tile.
func (e *Env) LoginSteps(tile string) []Step {
	return []Step{
		{Name: "open_home", Run: e.OpenHome},
		{Name: "accept_cookies", Optional: true, Run: e.AcceptCookies},
		{Name: "open_login", Run: e.OpenLogin},
		{Name: "sign_in", Run: e.SignIn},
		{Name: "choose_2fa", Optional: true, Run: e.ChooseTwoFactor},
		{Name: "mfa", Run: e.CompleteMFA},
		{Name: "await_login", Run: e.AwaitLogin},
		{Name: "patient_registration", Run: e.OpenPatientRegistration},
		{Name: "open_tile", Run: e.OpenTile(tile)},
	}
}
