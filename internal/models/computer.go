package models

import "strings"

// Computer is one managed host in the Deep Security Manager inventory.
// Each Overall* field carries the manager's human-readable status string for
// one protection module, e.g. "On, Real Time" or "Off, installed, 12 rules".
// The strings are reported verbatim; classification happens in the rules
// package.
type Computer struct {
	// ID is the manager's internal identifier for this computer.
	ID string `json:"id"`

	// Hostname is the name the manager displays for this computer.
	Hostname string `json:"hostname"`

	// CloudInstanceID is the cloud provider instance ID (e.g. "i-0abc123...")
	// the manager discovered for this computer. Empty when the computer is
	// not a cloud instance.
	CloudInstanceID string `json:"cloud_instance_id"`

	OverallAntiMalware         string `json:"overall_anti_malware"`
	OverallWebReputation       string `json:"overall_web_reputation"`
	OverallFirewall            string `json:"overall_firewall"`
	OverallIntrusionPrevention string `json:"overall_intrusion_prevention"`
	OverallIntegrityMonitoring string `json:"overall_integrity_monitoring"`
	OverallLogInspection       string `json:"overall_log_inspection"`
}

// MatchesInstanceID reports whether this computer represents the given cloud
// instance. The comparison is case-insensitive and ignores surrounding
// whitespace on both sides. Computers without a cloud instance ID never match.
func (c Computer) MatchesInstanceID(instanceID string) bool {
	if c.CloudInstanceID == "" {
		return false
	}
	return strings.EqualFold(
		strings.TrimSpace(c.CloudInstanceID),
		strings.TrimSpace(instanceID),
	)
}
