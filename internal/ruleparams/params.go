// Package ruleparams extracts and validates the rule-parameter block of a
// Config rule invocation. Violations of the rule's parameter requirements
// are reported as *RequirementsError so the handler can answer with the
// structured requirements_not_met reply instead of failing the invocation.
package ruleparams

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/deep-security/config-rules/internal/rules"
)

// DefaultPort is the Deep Security Manager port used when dsPort is absent.
const DefaultPort = 443

// SecretSource selects the backend the credential keys are resolved against.
type SecretSource string

const (
	// SecretSourceSSM resolves the keys as SSM Parameter Store names
	// (SecureString parameters, decrypted on read). This is the default and
	// matches where the rule's credentials have always lived.
	SecretSourceSSM SecretSource = "ssm"

	// SecretSourceSecretsManager resolves the keys as AWS Secrets Manager
	// secret IDs (name or full ARN).
	SecretSourceSecretsManager SecretSource = "secretsmanager"
)

// RequirementsError signals rule parameters that do not meet the rule's
// requirements. It is a reply-shaping condition, not a failure: the handler
// converts it into the requirements_not_met result.
type RequirementsError struct {
	// Reason is the user-facing explanation, phrased as guidance.
	Reason string
}

func (e *RequirementsError) Error() string { return e.Reason }

// Params is the validated rule-parameter block.
type Params struct {
	// UsernameKey and PasswordKey name the secrets holding the Deep
	// Security credentials. They are lookup keys, never raw credentials.
	UsernameKey string
	PasswordKey string

	// Control is the protection module to verify.
	Control rules.Control

	// Tenant is the Deep Security tenant name, for hosted (multi-tenant)
	// managers. Optional.
	Tenant string

	// Hostname is the manager hostname, for on-premise managers. Optional;
	// when empty and Tenant is set, the hosted manager address is used.
	Hostname string

	// Port is the manager port. Defaults to DefaultPort.
	Port int

	// IgnoreSSLValidation disables TLS certificate verification on manager
	// connections. For managers running self-signed certificates.
	IgnoreSSLValidation bool

	// SecretSource selects the credentials backend. Defaults to
	// SecretSourceSSM.
	SecretSource SecretSource
}

// rawParams mirrors the wire keys. dsPort and dsIgnoreSslValidation arrive
// as strings from the Config console and as native types from hand-built
// test events, so both are captured raw.
type rawParams struct {
	UsernameKey  string          `json:"dsUsernameKey"`
	PasswordKey  string          `json:"dsPasswordKey"`
	Control      string          `json:"dsControl"`
	Tenant       string          `json:"dsTenant"`
	Hostname     string          `json:"dsHostname"`
	Port         json.RawMessage `json:"dsPort"`
	IgnoreSSL    json.RawMessage `json:"dsIgnoreSslValidation"`
	SecretSource string          `json:"dsSecretSource"`
}

// Parse decodes and validates a rule-parameter object.
//
// Requirement violations (missing credential keys, missing or unknown
// dsControl, unknown dsSecretSource) return *RequirementsError. Malformed
// values (non-numeric dsPort, unrecognised dsIgnoreSslValidation) return
// ordinary errors and propagate out of the invocation.
func Parse(raw json.RawMessage) (*Params, error) {
	var rp rawParams
	if err := json.Unmarshal(raw, &rp); err != nil {
		return nil, fmt.Errorf("parse rule parameters: %w", err)
	}

	if rp.UsernameKey == "" || rp.PasswordKey == "" {
		return nil, &RequirementsError{
			Reason: "Function requires that you pass dsUsernameKey and dsPasswordKey",
		}
	}

	control, err := rules.ParseControl(rp.Control)
	if err != nil {
		return nil, &RequirementsError{
			Reason: fmt.Sprintf("Function requires that you specify the desired Deep Security control to verify. Valid choices are [ %s ]",
				rules.ControlNames()),
		}
	}

	port := DefaultPort
	if rp.Port != nil {
		port, err = parsePort(rp.Port)
		if err != nil {
			return nil, fmt.Errorf("parse dsPort: %w", err)
		}
	}

	ignoreSSL := false
	if rp.IgnoreSSL != nil {
		ignoreSSL, err = parseFlexibleBool(rp.IgnoreSSL)
		if err != nil {
			return nil, fmt.Errorf("parse dsIgnoreSslValidation: %w", err)
		}
	}

	source := SecretSourceSSM
	if rp.SecretSource != "" {
		switch SecretSource(strings.ToLower(rp.SecretSource)) {
		case SecretSourceSSM:
			source = SecretSourceSSM
		case SecretSourceSecretsManager:
			source = SecretSourceSecretsManager
		default:
			return nil, &RequirementsError{
				Reason: fmt.Sprintf("dsSecretSource %q is not supported. Valid choices are [ ssm, secretsmanager ]", rp.SecretSource),
			}
		}
	}

	return &Params{
		UsernameKey:         rp.UsernameKey,
		PasswordKey:         rp.PasswordKey,
		Control:             control,
		Tenant:              rp.Tenant,
		Hostname:            rp.Hostname,
		Port:                port,
		IgnoreSSLValidation: ignoreSSL,
		SecretSource:        source,
	}, nil
}

// parsePort accepts a JSON number or a numeric string.
func parsePort(raw json.RawMessage) (int, error) {
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("value %s is neither a number nor a string", raw)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("value %q is not numeric", s)
	}
	return n, nil
}

// parseFlexibleBool accepts a JSON bool or a string in the classic strtobool
// vocabulary: y/yes/t/true/on/1 and n/no/f/false/off/0, case-insensitive.
func parseFlexibleBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("value %s is neither a bool nor a string", raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "t", "true", "on", "1":
		return true, nil
	case "n", "no", "f", "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("value %q is not a recognised boolean", s)
}
