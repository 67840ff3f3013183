// Package config loads the optional CLI defaults file. The Lambda path never
// reads it; everything a Lambda invocation needs arrives in the event.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultRelPath is the defaults file location relative to the user config
// directory.
const DefaultRelPath = "dsrule/dsrule.yaml"

// Config is the CLI defaults file. Flags always win over file values; the
// file exists so a workstation does not have to repeat connection details on
// every invocation. It must never be committed with real secrets — the
// credential fields are lookup keys, not credentials.
type Config struct {
	Manager ManagerConfig `yaml:"manager" json:"manager"`
	AWS     AWSConfig     `yaml:"aws"     json:"aws"`
	Rule    RuleConfig    `yaml:"rule"    json:"rule"`
}

// ManagerConfig holds Deep Security Manager connection defaults.
type ManagerConfig struct {
	// Hostname is the manager address for on-premise managers.
	Hostname string `yaml:"hostname" json:"hostname"`

	// Tenant is the tenant name on the hosted (multi-tenant) manager.
	Tenant string `yaml:"tenant" json:"tenant"`

	// Port is the manager HTTPS port. Zero means 443.
	Port int `yaml:"port" json:"port"`

	// IgnoreSSLValidation disables certificate verification, for managers
	// running self-signed certificates.
	IgnoreSSLValidation bool `yaml:"ignore_ssl_validation" json:"ignore_ssl_validation"`
}

// AWSConfig holds AWS-side defaults used when flags are not provided.
type AWSConfig struct {
	// Profile is used when no --profile flag is provided.
	Profile string `yaml:"profile" json:"profile"`

	// SecretSource selects the credentials backend: "ssm" (default) or
	// "secretsmanager".
	SecretSource string `yaml:"secret_source" json:"secret_source"`

	// UsernameKey and PasswordKey name the secrets holding the manager
	// credentials.
	UsernameKey string `yaml:"username_key" json:"username_key"`
	PasswordKey string `yaml:"password_key" json:"password_key"`
}

// RuleConfig holds evaluation defaults.
type RuleConfig struct {
	// Control is the default protection module verified by evaluate.
	Control string `yaml:"control" json:"control"`
}

// DefaultPath returns the absolute defaults file path under the user config
// directory (~/.config/dsrule/dsrule.yaml on Linux).
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config directory: %w", err)
	}
	return filepath.Join(base, DefaultRelPath), nil
}

// Load reads and parses the defaults file at path. A missing file is not an
// error: the zero Config is returned so the CLI can run on flags alone.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file %q: %w", path, err)
	}
	return &cfg, nil
}
