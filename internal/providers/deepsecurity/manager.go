// Package deepsecurity is a thin REST client for the Deep Security Manager.
// It covers exactly the surface this rule needs: session sign-in/sign-out
// and the managed-computer inventory with per-module protection status.
package deepsecurity

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// hostedManagerHostname is the Trend Micro hosted manager, used when a
	// tenant is configured without an explicit hostname.
	hostedManagerHostname = "app.deepsecurity.trendmicro.com"

	// defaultPort is the manager's HTTPS port when none is configured.
	defaultPort = 443

	// defaultTimeout bounds every manager call. The Lambda deadline also
	// applies through the request context.
	defaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response body is carried into
	// error messages.
	maxErrorBody = 512
)

// ErrNotSignedIn is returned by calls that require an authenticated session
// before SignIn has succeeded.
var ErrNotSignedIn = errors.New("deep security: not signed in")

// ManagerConfig carries everything needed to reach one Deep Security
// Manager. Username and Password are the resolved plaintext credentials;
// they never appear in logs.
type ManagerConfig struct {
	Username string
	Password string

	// Tenant is the tenant name on a multi-tenant (hosted) manager.
	// Optional for on-premise managers.
	Tenant string

	// Hostname is the manager address. When empty, the Trend Micro hosted
	// manager is assumed.
	Hostname string

	// Port is the manager HTTPS port. Zero means 443.
	Port int

	// IgnoreSSLValidation disables certificate verification, for managers
	// running self-signed certificates.
	IgnoreSSLValidation bool

	// HTTPClient overrides the default client. Tests point this at an
	// httptest server; production leaves it nil.
	HTTPClient *http.Client

	// Logger receives sign-in/sign-out diagnostics.
	Logger zerolog.Logger
}

// Manager is an authenticated client for one Deep Security Manager. It is
// not safe for concurrent use; one invocation owns one Manager.
type Manager struct {
	cfg     ManagerConfig
	baseURL string
	client  *http.Client
	log     zerolog.Logger

	sessionID string
}

// NewManager builds a Manager from cfg. No network traffic happens until
// SignIn.
func NewManager(cfg ManagerConfig) *Manager {
	hostname := cfg.Hostname
	if hostname == "" {
		hostname = hostedManagerHostname
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	client := cfg.HTTPClient
	if client == nil {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if cfg.IgnoreSSLValidation {
			tlsCfg.InsecureSkipVerify = true
		}
		client = &http.Client{
			Timeout:   defaultTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
		}
	}

	return &Manager{
		cfg:     cfg,
		baseURL: fmt.Sprintf("https://%s:%d", hostname, port),
		client:  client,
		log:     cfg.Logger,
	}
}

// signInRequest is the legacy REST authentication payload.
type signInRequest struct {
	Credentials signInCredentials `json:"dsCredentials"`
}

type signInCredentials struct {
	UserName   string `json:"userName"`
	Password   string `json:"password"`
	TenantName string `json:"tenantName,omitempty"`
}

// SignIn authenticates against the manager and stores the returned session
// ID for subsequent calls. Signing in on an already-authenticated Manager is
// an error; build a fresh Manager per invocation instead.
func (m *Manager) SignIn(ctx context.Context) error {
	if m.sessionID != "" {
		return fmt.Errorf("deep security: already signed in")
	}

	payload, err := json.Marshal(signInRequest{
		Credentials: signInCredentials{
			UserName:   m.cfg.Username,
			Password:   m.cfg.Password,
			TenantName: m.cfg.Tenant,
		},
	})
	if err != nil {
		return fmt.Errorf("marshal sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		m.baseURL+"/rest/authentication/login", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign in to %s: %w", m.baseURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read sign-in response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sign in to %s: HTTP %d: %s", m.baseURL, resp.StatusCode, snippet(body))
	}

	// The manager answers with the bare session ID.
	sessionID := strings.TrimSpace(string(body))
	if sessionID == "" {
		return fmt.Errorf("sign in to %s: empty session ID", m.baseURL)
	}

	m.sessionID = sessionID
	m.log.Debug().Str("manager", m.baseURL).Msg("deep security session established")
	return nil
}

// SignOut ends the session. The stored session ID is cleared even when the
// manager call fails, so a Manager is never reused with a stale session.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.sessionID == "" {
		return ErrNotSignedIn
	}
	sessionID := m.sessionID
	m.sessionID = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		m.baseURL+"/rest/authentication/logout?sID="+sessionID, nil)
	if err != nil {
		return fmt.Errorf("build sign-out request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("sign out of %s: %w", m.baseURL, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("sign out of %s: HTTP %d", m.baseURL, resp.StatusCode)
	}

	m.log.Debug().Str("manager", m.baseURL).Msg("deep security session closed")
	return nil
}

// SignedIn reports whether the Manager currently holds a session.
func (m *Manager) SignedIn() bool { return m.sessionID != "" }

// get issues an authenticated GET against path and returns the response.
// The caller owns the body.
func (m *Manager) get(ctx context.Context, path string) (*http.Response, error) {
	if m.sessionID == "" {
		return nil, ErrNotSignedIn
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.baseURL+path+sep+"sID="+m.sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d: %s", path, resp.StatusCode, snippet(body))
	}
	return resp, nil
}

// snippet trims a response body for inclusion in an error message.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	if s == "" {
		return "(empty body)"
	}
	return s
}
