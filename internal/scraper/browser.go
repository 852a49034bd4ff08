package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jgoulah/cpauscraper/internal/config"
	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// ExtractCookies extracts all cookies from the current browser context
func ExtractCookies(ctx context.Context) ([]config.Cookie, error) {
	var cookies []*network.Cookie

	if err := chromedp.Run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			cookies, err = network.GetCookies().Do(ctx)
			return err
		}),
	); err != nil {
		return nil, fmt.Errorf("getting cookies: %w", err)
	}

	result := make([]config.Cookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, config.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: c.SameSite.String(),
		})
	}

	return result, nil
}

// HTTPCookies converts saved browser cookies for use with an HTTP client
func HTTPCookies(cookies []config.Cookie) []*http.Cookie {
	result := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		result = append(result, hc)
	}
	return result
}

// WaterAuthenticator produces WaterSmart session cookies
type WaterAuthenticator interface {
	Authenticate(ctx context.Context) ([]config.Cookie, error)
}

// BrowserAuthenticator logs in to the CPAU portal in Chrome and follows the
// SAML hand-off to WaterSmart, whose cookies it returns.
type BrowserAuthenticator struct {
	PortalURL     string
	WaterSmartURL string
	Credentials   models.Credentials
	Headless      bool
}

// Authenticate performs the browser SSO login
func (a *BrowserAuthenticator) Authenticate(ctx context.Context) ([]config.Cookie, error) {
	logger.WaterLog.Info("authenticating with WaterSmart through the CPAU portal")
	started := time.Now()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.Headless),
		chromedp.Flag("no-sandbox", true),            // Required for running as root on Linux
		chromedp.Flag("disable-gpu", true),           // Recommended for headless Linux
		chromedp.Flag("disable-dev-shm-usage", true), // Avoid /dev/shm issues on Linux
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(defaultUserAgent),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, 2*time.Minute)
	defer cancel()

	if err := chromedp.Run(browserCtx,
		network.Enable(),
		chromedp.Navigate(a.PortalURL),
		chromedp.WaitVisible(`#txtLogin`, chromedp.ByQuery),
		chromedp.SendKeys(`#txtLogin`, a.Credentials.UserID, chromedp.ByQuery),
		chromedp.SendKeys(`#txtpwd`, a.Credentials.Password, chromedp.ByQuery),
		chromedp.SendKeys(`#txtpwd`, kb.Enter, chromedp.ByQuery),
		chromedp.Sleep(5*time.Second), // Wait for the portal to finish logging in
	); err != nil {
		return nil, &ConnectionError{Op: "logging in to CPAU portal", Err: err}
	}

	// Visiting WaterSmart triggers the SAML flow
	var landed string
	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(strings.TrimRight(a.WaterSmartURL, "/")+"/index.php/trackUsage"),
		chromedp.Sleep(3*time.Second),
		chromedp.Location(&landed),
	); err != nil {
		return nil, &ConnectionError{Op: "navigating to WaterSmart", Err: err}
	}

	if lower := strings.ToLower(landed); strings.Contains(lower, "login") || strings.Contains(lower, "signin") {
		return nil, &AuthError{Message: fmt.Sprintf("WaterSmart authentication failed, redirected to %s", landed)}
	}

	cookies, err := ExtractCookies(browserCtx)
	if err != nil {
		return nil, fmt.Errorf("extracting cookies: %w", err)
	}

	logger.WaterLog.Infof("authenticated in %.1fs, extracted %d cookies", time.Since(started).Seconds(), len(cookies))
	return cookies, nil
}
