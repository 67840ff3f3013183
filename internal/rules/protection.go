package rules

import (
	"fmt"
	"strings"

	"github.com/deep-security/config-rules/internal/models"
)

// statusAccessors maps each control to the Computer field carrying its
// overall status string. An explicit table instead of lookup-by-name means a
// newly added control that is missing here fails loudly at first use rather
// than silently reading an empty field.
var statusAccessors = map[Control]func(models.Computer) string{
	ControlAntiMalware:         func(c models.Computer) string { return c.OverallAntiMalware },
	ControlWebReputation:       func(c models.Computer) string { return c.OverallWebReputation },
	ControlFirewall:            func(c models.Computer) string { return c.OverallFirewall },
	ControlIntrusionPrevention: func(c models.Computer) string { return c.OverallIntrusionPrevention },
	ControlIntegrityMonitoring: func(c models.Computer) string { return c.OverallIntegrityMonitoring },
	ControlLogInspection:       func(c models.Computer) string { return c.OverallLogInspection },
}

// StatusOf returns the manager-reported overall status string for this
// control on the given computer. Panics on a Control that did not come from
// ParseControl; that is a wiring mistake, not an input condition.
func (c Control) StatusOf(comp models.Computer) string {
	accessor, ok := statusAccessors[c]
	if !ok {
		panic(fmt.Sprintf("no status accessor for control %q", c))
	}
	return accessor(comp)
}

// realTimeMarkers are the status fragments that indicate active real-time
// protection for the anti-malware and integrity monitoring modules. The
// second entry's leading space is significant: it distinguishes the
// security-update-in-progress variant from unrelated "...on, security..."
// fragments.
var realTimeMarkers = []string{
	"on, real time",
	" on, security update in progress, real time",
}

// Protected classifies a manager status string as protected or not for this
// control. Matching is case-insensitive substring containment with
// per-module rules:
//
//   - anti_malware, integrity_monitoring: real-time protection must be
//     active ("On, Real Time", including the security-update variant).
//   - intrusion_prevention: the module must be in prevent mode
//     ("On, Prevent"); detect-only does not count.
//   - web_reputation, firewall, log_inspection: any "On" state counts.
//
// The classification is pure: the same status string always yields the same
// verdict.
func (c Control) Protected(status string) bool {
	s := strings.ToLower(status)
	switch c {
	case ControlAntiMalware, ControlIntegrityMonitoring:
		for _, marker := range realTimeMarkers {
			if strings.Contains(s, marker) {
				return true
			}
		}
		return false
	case ControlIntrusionPrevention:
		return strings.Contains(s, "on, prevent")
	default:
		return strings.Contains(s, "on")
	}
}
