package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deep-security/config-rules/internal/config"
	"github.com/deep-security/config-rules/internal/providers/aws/common"
	"github.com/deep-security/config-rules/internal/providers/deepsecurity"
	"github.com/deep-security/config-rules/internal/ruleparams"
)

// DoctorResult is the structured output of dsrule doctor. It can be
// serialised to JSON via --format=json or rendered as a human-readable table
// (default).
type DoctorResult struct {
	AWS struct {
		Profile     string `json:"profile,omitempty"`
		Credentials bool   `json:"credentials_ok"`
		AccountID   string `json:"account_id,omitempty"`
		RegionsOK   bool   `json:"regions_ok"`
		Error       string `json:"error,omitempty"`
	} `json:"aws"`

	Manager struct {
		Configured bool   `json:"configured"`
		Address    string `json:"address,omitempty"`
		SignInOK   bool   `json:"sign_in_ok"`
		Error      string `json:"error,omitempty"`
	} `json:"manager"`

	Defaults struct {
		Present bool   `json:"present"`
		Path    string `json:"path,omitempty"`
		Error   string `json:"error,omitempty"`
	} `json:"defaults"`

	OverallHealthy bool `json:"overall_healthy"`
}

// probeManager resolves the configured credential keys and performs a
// sign-in / sign-out round trip against the manager. Overridden in tests.
var probeManager = func(ctx context.Context, pc *common.ProfileConfig, defaults *config.Config) error {
	source := ruleparams.SecretSource(strings.ToLower(defaults.AWS.SecretSource))
	creds, err := resolverFor(pc.Config, source).Resolve(ctx, defaults.AWS.UsernameKey, defaults.AWS.PasswordKey)
	if err != nil {
		return fmt.Errorf("resolve credentials: %w", err)
	}

	mgr := deepsecurity.NewManager(deepsecurity.ManagerConfig{
		Username:            creds.Username,
		Password:            creds.Password,
		Tenant:              defaults.Manager.Tenant,
		Hostname:            defaults.Manager.Hostname,
		Port:                defaults.Manager.Port,
		IgnoreSSLValidation: defaults.Manager.IgnoreSSLValidation,
	})
	if err := mgr.SignIn(ctx); err != nil {
		return err
	}
	return mgr.SignOut(ctx)
}

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doctor",
		Short:         "Run environment diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			profile, _ := cmd.Flags().GetString("profile")
			configPath, _ := cmd.Flags().GetString("config")

			if configPath == "" {
				defaultPath, err := config.DefaultPath()
				if err == nil {
					configPath = defaultPath
				}
			}

			result, err := runDoctor(
				cmd.Context(),
				common.NewDefaultAWSClientProvider(),
				cmd.OutOrStdout(),
				format,
				profile,
				configPath,
			)
			if err != nil {
				// Rendering failure — let Cobra/main handle it.
				return err
			}
			if !result.OverallHealthy {
				// Exit directly so no error text reaches main's
				// fmt.Fprintln(os.Stderr, err) path.
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().String("format", "table", `Output format: "table" or "json"`)
	cmd.Flags().String("profile", "", "AWS profile to use (default: credential chain)")
	cmd.Flags().String("config", "", "Path to the dsrule defaults file (default: user config directory)")
	return cmd
}

// runDoctor collects all diagnostic results, renders them to w in the
// requested format, and returns the result.
// The returned error covers only rendering failures (e.g. JSON encode error).
// Callers must inspect result.OverallHealthy to determine whether the
// environment is healthy; runDoctor itself never returns an error for an
// unhealthy result so that no error text leaks to callers (such as main).
func runDoctor(ctx context.Context, awsProvider common.AWSClientProvider, w io.Writer, format, profile, configPath string) (DoctorResult, error) {
	result := collectDoctorResult(ctx, awsProvider, profile, configPath)

	switch format {
	case "json":
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return result, fmt.Errorf("encode doctor result: %w", err)
		}
	default:
		renderDoctorTable(result, w)
	}

	return result, nil
}

// collectDoctorResult runs all environment checks and populates a
// DoctorResult. It performs no rendering; callers decide how to present it.
func collectDoctorResult(ctx context.Context, awsProvider common.AWSClientProvider, profile, configPath string) DoctorResult {
	var result DoctorResult

	// Defaults file: stat → load (file is optional).
	defaults := &config.Config{}
	if _, statErr := os.Stat(configPath); statErr == nil {
		result.Defaults.Present = true
		result.Defaults.Path = configPath
		loaded, loadErr := config.Load(configPath)
		if loadErr != nil {
			result.Defaults.Error = loadErr.Error()
		} else {
			defaults = loaded
		}
	} else if !os.IsNotExist(statErr) {
		// Stat error other than "not found" — treat as present but unreadable.
		result.Defaults.Present = true
		result.Defaults.Path = configPath
		result.Defaults.Error = statErr.Error()
	}

	// AWS: credentials → STS account ID → region discovery.
	// An empty profile string selects the default credential chain.
	if profile == "" {
		profile = defaults.AWS.Profile
	}
	if profile != "" {
		result.AWS.Profile = profile
	}
	profileCfg, err := awsProvider.LoadProfile(ctx, profile)
	if err != nil {
		result.AWS.Error = err.Error()
	} else {
		result.AWS.Credentials = true
		result.AWS.AccountID = profileCfg.AccountID
		_, err = awsProvider.GetActiveRegions(ctx, profileCfg)
		if err != nil {
			result.AWS.Error = err.Error()
		} else {
			result.AWS.RegionsOK = true
		}
	}

	// Manager: only probed when the defaults file names one.
	if defaults.Manager.Hostname != "" || defaults.Manager.Tenant != "" {
		result.Manager.Configured = true
		result.Manager.Address = managerAddress(defaults)
		switch {
		case !result.AWS.Credentials:
			result.Manager.Error = "skipped: AWS credentials unavailable"
		case defaults.AWS.UsernameKey == "" || defaults.AWS.PasswordKey == "":
			result.Manager.Error = "aws.username_key and aws.password_key must be configured"
		default:
			if probeErr := probeManager(ctx, profileCfg, defaults); probeErr != nil {
				result.Manager.Error = probeErr.Error()
			} else {
				result.Manager.SignInOK = true
			}
		}
	}

	result.OverallHealthy = result.AWS.Credentials &&
		result.AWS.RegionsOK &&
		(!result.Manager.Configured || result.Manager.SignInOK) &&
		(!result.Defaults.Present || result.Defaults.Error == "")

	return result
}

// managerAddress renders the configured manager endpoint for display.
func managerAddress(defaults *config.Config) string {
	if defaults.Manager.Hostname == "" {
		return "tenant " + defaults.Manager.Tenant
	}
	port := defaults.Manager.Port
	if port == 0 {
		port = ruleparams.DefaultPort
	}
	return fmt.Sprintf("%s:%d", defaults.Manager.Hostname, port)
}

// renderDoctorTable writes the human-readable diagnostic output from result to w.
func renderDoctorTable(result DoctorResult, w io.Writer) {
	fmt.Fprintln(w, "Environment Diagnostics")

	if result.AWS.Profile != "" {
		fmt.Fprintf(w, "\nAWS (profile: %s):\n", result.AWS.Profile)
	} else {
		fmt.Fprintln(w, "\nAWS:")
	}
	if !result.AWS.Credentials {
		doctorPrint(w, "Credentials", "FAIL", result.AWS.Error)
		doctorPrint(w, "STS Identity", "FAIL", "skipped")
		doctorPrint(w, "Regions API", "FAIL", "skipped")
	} else {
		doctorPrint(w, "Credentials", "OK", "")
		doctorPrint(w, "STS Identity", "OK", "Account: "+result.AWS.AccountID)
		if result.AWS.RegionsOK {
			doctorPrint(w, "Regions API", "OK", "")
		} else {
			doctorPrint(w, "Regions API", "FAIL", result.AWS.Error)
		}
	}

	fmt.Fprintln(w, "\nDeep Security Manager:")
	if !result.Manager.Configured {
		doctorPrint(w, "Manager configured", "Not configured (optional)", "")
	} else {
		doctorPrint(w, "Manager configured", "YES", result.Manager.Address)
		if result.Manager.SignInOK {
			doctorPrint(w, "Sign-in", "OK", "")
		} else {
			doctorPrint(w, "Sign-in", "FAIL", result.Manager.Error)
		}
	}

	fmt.Fprintln(w, "\nDefaults:")
	if !result.Defaults.Present {
		doctorPrint(w, "dsrule.yaml present", "Not found (optional)", "")
	} else {
		doctorPrint(w, "dsrule.yaml present", "YES", result.Defaults.Path)
		if result.Defaults.Error == "" {
			doctorPrint(w, "Defaults valid", "OK", "")
		} else {
			doctorPrint(w, "Defaults valid", "FAIL", result.Defaults.Error)
		}
	}
}

// doctorPrint writes a single diagnostic check line to w.
// When detail is non-empty it is appended in parentheses.
func doctorPrint(w io.Writer, label, status, detail string) {
	if detail != "" {
		fmt.Fprintf(w, "  %s: %s (%s)\n", label, status, detail)
	} else {
		fmt.Fprintf(w, "  %s: %s\n", label, status)
	}
}
