package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// hideWebdriver runs before any portal script on every new document.
const hideWebdriver = `Object.defineProperty(Navigator.prototype, 'webdriver', {get: () => undefined, configurable: true});`

// applyStealth makes the tab present as an ordinary desktop Chrome.
func applyStealth(userAgent string, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		chromedp.ActionFunc(func(ctx context.Context) error {
			headers := network.Headers{"Accept-Language": "en-US,en;q=0.9"}
			if err := network.SetExtraHTTPHeaders(headers).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			override := emulation.SetUserAgentOverride(userAgent).
				WithPlatform("Win32").
				WithAcceptLanguage("en-US,en")
			if err := override.Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to set user agent override: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriver).Do(ctx); err != nil {
				return fmt.Errorf("stealth: failed to add script on new document: %w", err)
			}
			return nil
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("user_agent", userAgent))
			return nil
		}),
	}
}
