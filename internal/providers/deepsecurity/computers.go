package deepsecurity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/deep-security/config-rules/internal/models"
)

// computersResponse is the manager's host-inventory payload.
type computersResponse struct {
	Computers []computerRecord `json:"computers"`
}

// computerRecord mirrors the manager's wire representation of one host.
// IDs arrive as numbers; everything else is strings. The overall*Status
// fields carry the console status text per protection module.
type computerRecord struct {
	ID                    json.Number `json:"ID"`
	Hostname              string      `json:"hostname"`
	CloudObjectInstanceID string      `json:"cloudObjectInstanceId"`

	AntiMalware         string `json:"overallAntiMalwareStatus"`
	WebReputation       string `json:"overallWebReputationStatus"`
	Firewall            string `json:"overallFirewallStatus"`
	IntrusionPrevention string `json:"overallIntrusionPreventionStatus"`
	IntegrityMonitoring string `json:"overallIntegrityMonitoringStatus"`
	LogInspection       string `json:"overallLogInspectionStatus"`
}

// ListComputers fetches the full managed-host inventory. The manager returns
// the complete collection in one response; there is no pagination on this
// endpoint.
func (m *Manager) ListComputers(ctx context.Context) ([]models.Computer, error) {
	resp, err := m.get(ctx, "/rest/computers")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload computersResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode computers response: %w", err)
	}

	computers := make([]models.Computer, 0, len(payload.Computers))
	for _, rec := range payload.Computers {
		computers = append(computers, models.Computer{
			ID:                         rec.ID.String(),
			Hostname:                   rec.Hostname,
			CloudInstanceID:            rec.CloudObjectInstanceID,
			OverallAntiMalware:         rec.AntiMalware,
			OverallWebReputation:       rec.WebReputation,
			OverallFirewall:            rec.Firewall,
			OverallIntrusionPrevention: rec.IntrusionPrevention,
			OverallIntegrityMonitoring: rec.IntegrityMonitoring,
			OverallLogInspection:       rec.LogInspection,
		})
	}
	return computers, nil
}
