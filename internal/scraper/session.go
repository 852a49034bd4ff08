package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/jgoulah/cpauscraper/internal/logger"
	"github.com/jgoulah/cpauscraper/internal/usage"
	"github.com/jgoulah/cpauscraper/pkg/models"
)

// DefaultBaseURL is the CPAU customer portal
const DefaultBaseURL = "https://mycpau.cityofpaloalto.org/Portal"

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

// Page is a portal page that embeds an anti-forgery token
type Page struct {
	Name       string
	Path       string
	TokenField string
}

var (
	// PageLogin is the landing page; its token is only valid for validateLogin
	PageLogin = Page{Name: "Login", Path: "", TokenField: "__RequestVerificationToken"}
	// PageUsages carries the token required by every usage endpoint
	PageUsages = Page{Name: "Usages", Path: "/Usages.aspx", TokenField: "ctl00$hdnCSRFToken"}
)

// Options configures a Session
type Options struct {
	BaseURL   string
	UserAgent string
	// Timeout of zero leaves the HTTP client's default in place
	Timeout time.Duration
	// EmbargoDays defaults to usage.DefaultEmbargoDays when zero or negative
	EmbargoDays int
	// Reauthenticate allows one re-login and retry per call after a 401/403
	Reauthenticate bool
	// Now overrides the clock used for the embargo check
	Now        func() time.Time
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimRight(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	if o.EmbargoDays <= 0 {
		o.EmbargoDays = usage.DefaultEmbargoDays
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Session is an authenticated channel to the CPAU portal. It is not safe for
// concurrent use.
type Session struct {
	opts          Options
	client        *resty.Client
	creds         *models.Credentials
	tokens        map[string]string
	authenticated bool
	closed        bool
}

// NewSession creates an unauthenticated session with an empty cookie jar
func NewSession(opts Options) (*Session, error) {
	opts = opts.withDefaults()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}
	client.SetCookieJar(jar)
	client.SetHeader("User-Agent", opts.UserAgent)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	return &Session{
		opts:   opts,
		client: client,
		tokens: make(map[string]string),
	}, nil
}

// Authenticate creates a session and logs in with creds
func Authenticate(ctx context.Context, opts Options, creds models.Credentials) (*Session, error) {
	s, err := NewSession(opts)
	if err != nil {
		return nil, err
	}
	if err := s.Authenticate(ctx, creds); err != nil {
		return nil, err
	}
	return s, nil
}

// Authenticate loads the landing page for cookies and its token, then posts
// the credentials to validateLogin. Page tokens from a previous login are
// discarded.
func (s *Session) Authenticate(ctx context.Context, creds models.Credentials) error {
	if s.closed {
		return &AuthError{Message: "session is closed"}
	}
	if creds.UserID == "" || creds.Password == "" {
		return &AuthError{Message: "userid and password are required"}
	}

	s.authenticated = false
	s.tokens = make(map[string]string)

	logger.SessionLog.Debug("loading portal landing page")
	token, err := s.EnsureToken(ctx, PageLogin)
	if err != nil {
		var protoErr *ProtocolError
		if !errors.As(err, &protoErr) {
			return err
		}
		// the login token is optional
		logger.SessionLog.Debug("landing page has no verification token")
	}

	payload := map[string]any{
		"username":        creds.UserID,
		"password":        creds.Password,
		"rememberme":      false,
		"calledFrom":      "LN",
		"ExternalLoginId": "",
		"LoginMode":       "1",
	}
	headers := map[string]string{
		"Content-Type":     "application/json; charset=UTF-8",
		"Accept":           "application/json, text/javascript, */*; q=0.01",
		"X-Requested-With": "XMLHttpRequest",
		"isajax":           "1",
		"Referer":          s.opts.BaseURL + "/",
	}
	if token != "" {
		headers["csrftoken"] = token
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(payload).
		Post(s.url("/Default.aspx/validateLogin"))
	if err != nil {
		return &ConnectionError{Op: "posting login", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &AuthError{
			StatusCode: resp.StatusCode(),
			Message:    fmt.Sprintf("login failed (status %d)", resp.StatusCode()),
		}
	}

	inner, err := unwrapEnvelope(resp.Body())
	if err != nil {
		return &AuthError{StatusCode: resp.StatusCode(), Message: fmt.Sprintf("login response error: %v", err)}
	}
	res, err := decodeResult(inner)
	if err != nil {
		return &AuthError{StatusCode: resp.StatusCode(), Message: fmt.Sprintf("login response error: %v", err)}
	}
	obj, err := res.canonical()
	if err != nil || !loginSucceeded(obj) {
		return &AuthError{StatusCode: resp.StatusCode(), Message: "invalid credentials"}
	}

	// the login page token is spent; usage calls need a fresh Usages token
	delete(s.tokens, PageLogin.Name)
	s.authenticated = true
	c := creds
	s.creds = &c
	logger.SessionLog.Info("logged in to CPAU portal")
	return nil
}

// IsAuthenticated reports whether usage calls may be issued
func (s *Session) IsAuthenticated() bool {
	return s.authenticated && !s.closed
}

// EmbargoDays is the trailing window of days the portal has not finalized
func (s *Session) EmbargoDays() int {
	return s.opts.EmbargoDays
}

// Today returns the session clock's current calendar date
func (s *Session) Today() time.Time {
	return usage.Day(s.opts.Now())
}

// Close invalidates the session. A closed session cannot be re-authenticated.
func (s *Session) Close() {
	s.authenticated = false
	s.closed = true
	s.creds = nil
	s.tokens = make(map[string]string)
	s.client.GetClient().CloseIdleConnections()
}

// EnsureToken returns the anti-forgery token for page, loading the page
// when no token for it is cached.
func (s *Session) EnsureToken(ctx context.Context, page Page) (string, error) {
	if token, ok := s.tokens[page.Name]; ok {
		return token, nil
	}
	if page != PageLogin && !s.IsAuthenticated() {
		return "", &AuthError{Message: "not authenticated"}
	}

	resp, err := s.client.R().
		SetContext(ctx).
		Get(s.url(page.Path))
	if err != nil {
		return "", &ConnectionError{Op: fmt.Sprintf("loading %s page", page.Name), Err: err}
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		s.invalidate()
		return "", &AuthError{StatusCode: status, Message: fmt.Sprintf("%s page rejected session (status %d)", page.Name, status)}
	case status != http.StatusOK && page == PageLogin:
		return "", &ConnectionError{Op: "loading landing page", Err: fmt.Errorf("status %d", status)}
	case status != http.StatusOK:
		return "", &APIError{Endpoint: page.Name, StatusCode: status, Message: "failed to load page"}
	}

	token, err := extractToken(resp.Body(), page.TokenField)
	if err != nil {
		return "", &ProtocolError{Page: page.Name, Message: err.Error()}
	}

	s.tokens[page.Name] = token
	return token, nil
}

// extractToken returns the value of the hidden input named field
func extractToken(body []byte, field string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}
	token := doc.Find(fmt.Sprintf(`input[name=%q]`, field)).First().AttrOr("value", "")
	if token == "" {
		return "", fmt.Errorf("token %s not found", field)
	}
	return token, nil
}

// call posts payload to a Usages.aspx page method. When the session was
// rejected and re-authentication is enabled, it logs in again once and
// retries once; the retry's error is returned as is.
func (s *Session) call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	inner, err := s.post(ctx, method, payload)
	if err == nil || !s.opts.Reauthenticate || !IsAuthFailure(err) || s.creds == nil || s.closed {
		return inner, err
	}

	logger.SessionLog.Warnf("%s rejected session, re-authenticating", method)
	if authErr := s.Authenticate(ctx, *s.creds); authErr != nil {
		return nil, fmt.Errorf("re-authenticating: %w", authErr)
	}
	return s.post(ctx, method, payload)
}

func (s *Session) post(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	if !s.IsAuthenticated() {
		return nil, &AuthError{Message: "not authenticated"}
	}
	token, err := s.EnsureToken(ctx, PageUsages)
	if err != nil {
		return nil, err
	}

	logger.SessionLog.Debugf("POST %s", method)
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeaders(map[string]string{
			"Content-Type":     "application/json; charset=utf-8",
			"Accept":           "application/json, text/javascript, */*; q=0.01",
			"X-Requested-With": "XMLHttpRequest",
			"Referer":          s.url(PageUsages.Path),
			"csrftoken":        token,
		}).
		SetBody(payload).
		Post(s.url(PageUsages.Path + "/" + method))
	if err != nil {
		return nil, &ConnectionError{Op: fmt.Sprintf("posting %s", method), Err: err}
	}

	status := resp.StatusCode()
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		s.invalidate()
		return nil, &AuthError{StatusCode: status, Message: fmt.Sprintf("%s rejected session (status %d)", method, status)}
	}
	if status != http.StatusOK {
		return nil, &APIError{Endpoint: method, StatusCode: status, Message: "API request failed"}
	}

	inner, err := unwrapEnvelope(resp.Body())
	if err != nil {
		return nil, &APIError{Endpoint: method, Message: "failed to parse API response", Err: err}
	}
	return inner, nil
}

func (s *Session) invalidate() {
	s.authenticated = false
	s.tokens = make(map[string]string)
}

func (s *Session) url(path string) string {
	return s.opts.BaseURL + path
}
