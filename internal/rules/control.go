package rules

import (
	"fmt"
	"strings"
)

// Control identifies one Deep Security protection module whose enablement
// state this rule can verify. The string form is the value accepted in the
// dsControl rule parameter.
type Control string

const (
	ControlAntiMalware         Control = "anti_malware"
	ControlWebReputation       Control = "web_reputation"
	ControlFirewall            Control = "firewall"
	ControlIntrusionPrevention Control = "intrusion_prevention"
	ControlIntegrityMonitoring Control = "integrity_monitoring"
	ControlLogInspection       Control = "log_inspection"
)

// Controls returns every supported control in stable order. The order is the
// one shown to users in error messages and help text.
func Controls() []Control {
	return []Control{
		ControlAntiMalware,
		ControlWebReputation,
		ControlFirewall,
		ControlIntrusionPrevention,
		ControlIntegrityMonitoring,
		ControlLogInspection,
	}
}

// displayNames holds the manager-facing name for each control, matching the
// labels the Deep Security console uses.
var displayNames = map[Control]string{
	ControlAntiMalware:         "Anti-Malware",
	ControlWebReputation:       "Web Reputation",
	ControlFirewall:            "Firewall",
	ControlIntrusionPrevention: "Intrusion Prevention",
	ControlIntegrityMonitoring: "Integrity Monitoring",
	ControlLogInspection:       "Log Inspection",
}

// DisplayName returns the human-readable control name used in annotations,
// e.g. "Anti-Malware" for anti_malware.
func (c Control) DisplayName() string {
	if name, ok := displayNames[c]; ok {
		return name
	}
	return string(c)
}

// ParseControl matches s case-insensitively against the supported control
// identifiers. The returned error names the valid choices.
func ParseControl(s string) (Control, error) {
	normalized := Control(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Controls() {
		if normalized == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown control %q: valid choices are [ %s ]", s, ControlNames())
}

// ControlNames returns the comma-separated list of control identifiers in
// the same order as Controls, for use in user-facing messages.
func ControlNames() string {
	names := make([]string, 0, len(Controls()))
	for _, c := range Controls() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}
