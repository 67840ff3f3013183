package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/deep-security/config-rules/internal/config"
	"github.com/deep-security/config-rules/internal/providers/aws/common"
)

// ── AWS mock ──────────────────────────────────────────────────────────────────

type mockAWSProvider struct {
	profileResult *common.ProfileConfig
	profileErr    error
	regionsResult []string
	regionsErr    error
	lastProfile   string // records the profile name passed to LoadProfile
}

func (m *mockAWSProvider) LoadProfile(_ context.Context, profile string) (*common.ProfileConfig, error) {
	m.lastProfile = profile
	return m.profileResult, m.profileErr
}

func (m *mockAWSProvider) GetActiveRegions(_ context.Context, _ *common.ProfileConfig) ([]string, error) {
	return m.regionsResult, m.regionsErr
}

// ── helpers ───────────────────────────────────────────────────────────────────

func goodMockAWS() *mockAWSProvider {
	return &mockAWSProvider{
		profileResult: &common.ProfileConfig{
			AccountID: "123456789012",
			Region:    "us-east-1",
		},
		regionsResult: []string{"us-east-1", "eu-west-1"},
	}
}

// stubProbe replaces probeManager for the duration of the test.
func stubProbe(t *testing.T, err error) *int {
	t.Helper()
	calls := new(int)
	orig := probeManager
	probeManager = func(_ context.Context, _ *common.ProfileConfig, _ *config.Config) error {
		*calls++
		return err
	}
	t.Cleanup(func() { probeManager = orig })
	return calls
}

func writeDefaults(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dsrule.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write defaults file: %v", err)
	}
	return path
}

const managerDefaults = `
manager:
  hostname: dsm.example.com
  port: 4119
aws:
  username_key: dsUser
  password_key: dsPass
`

// ── tests ─────────────────────────────────────────────────────────────────────

func TestDoctor_HealthyWithoutDefaultsFile(t *testing.T) {
	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), goodMockAWS(), &buf, "table", "",
		filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	if !result.OverallHealthy {
		t.Errorf("expected healthy result, got %+v", result)
	}
	if result.Manager.Configured {
		t.Error("manager must not be reported configured without a defaults file")
	}
	out := buf.String()
	for _, want := range []string{"Credentials: OK", "Account: 123456789012", "Not found (optional)"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q; got:\n%s", want, out)
		}
	}
}

func TestDoctor_AWSCredentialFailure(t *testing.T) {
	provider := &mockAWSProvider{profileErr: errors.New("no credentials")}

	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), provider, &buf, "table", "",
		filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	if result.OverallHealthy {
		t.Error("credential failure must be unhealthy")
	}
	if result.AWS.Credentials {
		t.Error("credentials must be reported failed")
	}
	if !strings.Contains(buf.String(), "no credentials") {
		t.Errorf("output should carry the credential error:\n%s", buf.String())
	}
}

func TestDoctor_ManagerProbeSuccess(t *testing.T) {
	calls := stubProbe(t, nil)
	path := writeDefaults(t, managerDefaults)

	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), goodMockAWS(), &buf, "table", "", path)
	if err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	if *calls != 1 {
		t.Errorf("probe ran %d times, want 1", *calls)
	}
	if !result.Manager.Configured || !result.Manager.SignInOK {
		t.Errorf("manager check failed: %+v", result.Manager)
	}
	if result.Manager.Address != "dsm.example.com:4119" {
		t.Errorf("Address = %q", result.Manager.Address)
	}
	if !result.OverallHealthy {
		t.Error("expected healthy result")
	}
}

func TestDoctor_ManagerProbeFailure(t *testing.T) {
	stubProbe(t, errors.New("sign in to https://dsm.example.com:4119: HTTP 401"))
	path := writeDefaults(t, managerDefaults)

	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), goodMockAWS(), &buf, "table", "", path)
	if err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	if result.Manager.SignInOK {
		t.Error("sign-in must be reported failed")
	}
	if result.OverallHealthy {
		t.Error("a failed manager probe must be unhealthy")
	}
	if !strings.Contains(buf.String(), "HTTP 401") {
		t.Errorf("output should carry the probe error:\n%s", buf.String())
	}
}

func TestDoctor_ManagerWithoutCredentialKeys(t *testing.T) {
	calls := stubProbe(t, nil)
	path := writeDefaults(t, "manager:\n  hostname: dsm.example.com\n")

	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), goodMockAWS(), &buf, "table", "", path)
	if err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	if *calls != 0 {
		t.Error("probe must not run without credential keys")
	}
	if !strings.Contains(result.Manager.Error, "username_key") {
		t.Errorf("error should name the missing keys, got %q", result.Manager.Error)
	}
}

func TestDoctor_ProfileFromDefaultsFile(t *testing.T) {
	provider := goodMockAWS()
	path := writeDefaults(t, "aws:\n  profile: staging\n")

	var buf bytes.Buffer
	if _, err := runDoctor(context.Background(), provider, &buf, "table", "", path); err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}
	if provider.lastProfile != "staging" {
		t.Errorf("LoadProfile called with %q, want staging from defaults file", provider.lastProfile)
	}
}

func TestDoctor_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	result, err := runDoctor(context.Background(), goodMockAWS(), &buf, "json", "",
		filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("runDoctor returned error: %v", err)
	}

	var decoded DoctorResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded.OverallHealthy != result.OverallHealthy {
		t.Error("JSON output disagrees with returned result")
	}
	if decoded.AWS.AccountID != "123456789012" {
		t.Errorf("AccountID = %q", decoded.AWS.AccountID)
	}
}
