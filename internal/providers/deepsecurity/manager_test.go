package deepsecurity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// managerServer is an httptest stand-in for a Deep Security Manager. It
// records requests and serves a canned computer inventory.
type managerServer struct {
	t *testing.T

	sessionID     string
	signInStatus  int
	signInBody    map[string]any
	computersBody string

	logoutQueries   []url.Values
	computerQueries []url.Values
}

func (s *managerServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/rest/authentication/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			s.t.Errorf("login method = %s, want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&s.signInBody); err != nil {
			s.t.Errorf("login body is not JSON: %v", err)
		}
		if s.signInStatus != 0 && s.signInStatus != http.StatusOK {
			w.WriteHeader(s.signInStatus)
			w.Write([]byte("authentication failed")) //nolint:errcheck
			return
		}
		w.Write([]byte(s.sessionID)) //nolint:errcheck
	})

	mux.HandleFunc("/rest/authentication/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			s.t.Errorf("logout method = %s, want DELETE", r.Method)
		}
		s.logoutQueries = append(s.logoutQueries, r.URL.Query())
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/rest/computers", func(w http.ResponseWriter, r *http.Request) {
		s.computerQueries = append(s.computerQueries, r.URL.Query())
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(s.computersBody)) //nolint:errcheck
	})

	return mux
}

// newTestManager starts an httptest server and returns a Manager pointed at
// it. The Manager's base URL is overridden to the test server's address.
func newTestManager(t *testing.T, srv *managerServer) (*Manager, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	m := NewManager(ManagerConfig{
		Username:   "admin",
		Password:   "pw",
		HTTPClient: ts.Client(),
		Logger:     zerolog.Nop(),
	})
	m.baseURL = ts.URL
	return m, ts
}

func TestSignIn_StoresSessionID(t *testing.T) {
	srv := &managerServer{t: t, sessionID: "SID123"}
	m, _ := newTestManager(t, srv)

	if m.SignedIn() {
		t.Fatal("fresh manager must not be signed in")
	}
	if err := m.SignIn(context.Background()); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	if !m.SignedIn() {
		t.Error("manager should be signed in")
	}

	creds, ok := srv.signInBody["dsCredentials"].(map[string]any)
	if !ok {
		t.Fatalf("login payload missing dsCredentials: %v", srv.signInBody)
	}
	if creds["userName"] != "admin" || creds["password"] != "pw" {
		t.Errorf("credentials = %v", creds)
	}
	if _, has := creds["tenantName"]; has {
		t.Error("tenantName must be omitted when no tenant is configured")
	}
}

func TestSignIn_IncludesTenantWhenSet(t *testing.T) {
	srv := &managerServer{t: t, sessionID: "SID123"}
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	m := NewManager(ManagerConfig{
		Username:   "admin",
		Password:   "pw",
		Tenant:     "acme",
		HTTPClient: ts.Client(),
		Logger:     zerolog.Nop(),
	})
	m.baseURL = ts.URL

	if err := m.SignIn(context.Background()); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	creds := srv.signInBody["dsCredentials"].(map[string]any)
	if creds["tenantName"] != "acme" {
		t.Errorf("tenantName = %v, want acme", creds["tenantName"])
	}
}

func TestSignIn_HTTPError(t *testing.T) {
	srv := &managerServer{t: t, signInStatus: http.StatusUnauthorized}
	m, _ := newTestManager(t, srv)

	err := m.SignIn(context.Background())
	if err == nil {
		t.Fatal("expected error for HTTP 401")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error should carry the status code, got: %v", err)
	}
	if m.SignedIn() {
		t.Error("failed sign-in must not store a session")
	}
}

func TestSignIn_Twice(t *testing.T) {
	srv := &managerServer{t: t, sessionID: "SID123"}
	m, _ := newTestManager(t, srv)

	if err := m.SignIn(context.Background()); err != nil {
		t.Fatalf("first SignIn returned error: %v", err)
	}
	if err := m.SignIn(context.Background()); err == nil {
		t.Fatal("second SignIn must be an error")
	}
}

func TestListComputers(t *testing.T) {
	srv := &managerServer{
		t:         t,
		sessionID: "SID123",
		computersBody: `{"computers": [
			{"ID": 7, "hostname": "web-1", "cloudObjectInstanceId": "i-0abc",
			 "overallAntiMalwareStatus": "On, Real Time",
			 "overallFirewallStatus": "On",
			 "overallIntrusionPreventionStatus": "On, Prevent"},
			{"ID": 8, "hostname": "db-1", "cloudObjectInstanceId": "",
			 "overallFirewallStatus": "Off"}
		]}`,
	}
	m, _ := newTestManager(t, srv)

	if err := m.SignIn(context.Background()); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	computers, err := m.ListComputers(context.Background())
	if err != nil {
		t.Fatalf("ListComputers returned error: %v", err)
	}
	if len(computers) != 2 {
		t.Fatalf("got %d computers, want 2", len(computers))
	}

	first := computers[0]
	if first.ID != "7" || first.Hostname != "web-1" || first.CloudInstanceID != "i-0abc" {
		t.Errorf("first computer = %+v", first)
	}
	if first.OverallAntiMalware != "On, Real Time" || first.OverallIntrusionPrevention != "On, Prevent" {
		t.Errorf("status strings not mapped: %+v", first)
	}

	// The session ID must ride along as the sID query parameter.
	if len(srv.computerQueries) != 1 || srv.computerQueries[0].Get("sID") != "SID123" {
		t.Errorf("computers queries = %v, want one call with sID=SID123", srv.computerQueries)
	}
}

func TestListComputers_RequiresSession(t *testing.T) {
	srv := &managerServer{t: t, sessionID: "SID123"}
	m, _ := newTestManager(t, srv)

	_, err := m.ListComputers(context.Background())
	if !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("error = %v, want ErrNotSignedIn", err)
	}
}

func TestSignOut_ClearsSession(t *testing.T) {
	srv := &managerServer{t: t, sessionID: "SID123"}
	m, _ := newTestManager(t, srv)

	if err := m.SignIn(context.Background()); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	if err := m.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut returned error: %v", err)
	}
	if m.SignedIn() {
		t.Error("session must be cleared after sign-out")
	}
	if len(srv.logoutQueries) != 1 || srv.logoutQueries[0].Get("sID") != "SID123" {
		t.Errorf("logout queries = %v, want one call with sID=SID123", srv.logoutQueries)
	}

	// A second sign-out has no session to end.
	if err := m.SignOut(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("second SignOut error = %v, want ErrNotSignedIn", err)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(ManagerConfig{Username: "u", Password: "p"})
	if want := "https://app.deepsecurity.trendmicro.com:443"; m.baseURL != want {
		t.Errorf("baseURL = %q, want hosted manager default %q", m.baseURL, want)
	}

	m = NewManager(ManagerConfig{Username: "u", Password: "p", Hostname: "dsm.internal", Port: 4119})
	if want := "https://dsm.internal:4119"; m.baseURL != want {
		t.Errorf("baseURL = %q, want %q", m.baseURL, want)
	}
}
