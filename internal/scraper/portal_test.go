package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jgoulah/cpauscraper/pkg/models"
)

// testNow puts "today" at 2025-01-10, so the latest servable date is 2025-01-08
var testNow = func() time.Time { return time.Date(2025, time.January, 10, 9, 0, 0, 0, time.UTC) }

var testCreds = models.Credentials{UserID: "user@example.com", Password: "secret"}

// fakePortal mimics the CPAU page methods under /Portal
type fakePortal struct {
	t      *testing.T
	server *httptest.Server

	mu          sync.Mutex
	logins      int
	loginBody   string
	loginStatus int
	meters      string
	usage       func(req loadUsageRequest) (int, string)
	calls       []loadUsageRequest
	tokensSeen  []string
	rejectUsage int
}

func envelopeOf(inner string) string {
	out, _ := json.Marshal(map[string]string{"d": inner})
	return string(out)
}

func newFakePortal(t *testing.T) *fakePortal {
	p := &fakePortal{
		t:           t,
		loginStatus: http.StatusOK,
		loginBody:   envelopeOf(`{"STATUS":"1","UserID":"42"}`),
		meters: `{"MeterDetails":[
			{"MeterNumber":"11111111","MeterType":"E","Address":"1 Old St","MeterAttribute2":"E-1","Status":0},
			{"MeterNumber":"12345678","MeterType":"E","Address":"123 Test St","MeterAttribute2":"E-1 Residential","Status":1},
			{"MeterNumber":87654321,"MeterType":"E","Address":"456 Other St","MeterAttribute2":"E-2","Status":"1"}
		]}`,
		usage: func(req loadUsageRequest) (int, string) {
			return http.StatusOK, `{"objUsageGenerationResultSetTwo":[]}`
		},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePortal) baseURL() string {
	return p.server.URL + "/Portal"
}

func (p *fakePortal) usageToken() string {
	return fmt.Sprintf("usage-token-%d", p.logins)
}

func (p *fakePortal) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/Portal":
		http.SetCookie(w, &http.Cookie{Name: "ASP.NET_SessionId", Value: "session-abc", Path: "/"})
		fmt.Fprint(w, `<html><body><form>
			<input type="hidden" name="__RequestVerificationToken" value="login-token" />
		</form></body></html>`)

	case r.Method == http.MethodPost && r.URL.Path == "/Portal/Default.aspx/validateLogin":
		p.logins++
		if r.Header.Get("csrftoken") != "login-token" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["password"] != testCreds.Password {
			fmt.Fprint(w, envelopeOf(`{"STATUS":"0","Message":"Invalid"}`))
			return
		}
		w.WriteHeader(p.loginStatus)
		fmt.Fprint(w, p.loginBody)

	case r.Method == http.MethodGet && r.URL.Path == "/Portal/Usages.aspx":
		fmt.Fprintf(w, `<html><body><input type="hidden" name="ctl00$hdnCSRFToken" value="%s" /></body></html>`, p.usageToken())

	case r.Method == http.MethodPost && r.URL.Path == "/Portal/Usages.aspx/BindMultiMeter":
		if !p.authorized(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, envelopeOf(p.meters))

	case r.Method == http.MethodPost && r.URL.Path == "/Portal/Usages.aspx/LoadUsage":
		p.tokensSeen = append(p.tokensSeen, r.Header.Get("csrftoken"))
		var req loadUsageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.calls = append(p.calls, req)
		if p.rejectUsage > 0 || !p.authorized(r) {
			if p.rejectUsage > 0 {
				p.rejectUsage--
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		status, inner := p.usage(req)
		w.WriteHeader(status)
		if status == http.StatusOK {
			fmt.Fprint(w, envelopeOf(inner))
		}

	default:
		http.NotFound(w, r)
	}
}

func (p *fakePortal) authorized(r *http.Request) bool {
	cookie, err := r.Cookie("ASP.NET_SessionId")
	return err == nil && cookie.Value == "session-abc" && r.Header.Get("csrftoken") == p.usageToken()
}

func (p *fakePortal) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePortal) options() Options {
	return Options{BaseURL: p.baseURL(), Now: testNow, HTTPClient: p.server.Client()}
}

func (p *fakePortal) login(t *testing.T, opts Options) *Session {
	t.Helper()
	s, err := Authenticate(context.Background(), opts, testCreds)
	require.NoError(t, err)
	return s
}

// usageRows builds a LoadUsage result with one import and one export row per day
func usageRows(days []time.Time, hours []string, imp, exp float64) string {
	var rows []map[string]any
	for _, d := range days {
		for _, h := range hours {
			rows = append(rows,
				map[string]any{"UsageDate": d.Format("01/02/06"), "Hourly": h, "UsageType": "IUsage", "UsageValue": imp},
				map[string]any{"UsageDate": d.Format("01/02/06"), "Hourly": h, "UsageType": "Eusage", "UsageValue": -exp},
			)
		}
	}
	out, _ := json.Marshal(map[string]any{"objUsageGenerationResultSetTwo": rows})
	return string(out)
}
