// Package event models the invocation payload AWS Config delivers to a
// custom rule Lambda. Config sends the invokingEvent and ruleParameters
// fields double-encoded (JSON objects serialised into JSON strings); events
// hand-built in the Lambda console frequently carry them as plain objects.
// Both forms decode identically here.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// EC2InstanceResourceType is the AWS Config resource type string for EC2
// instances. Scope matching against it is case-insensitive.
const EC2InstanceResourceType = "AWS::EC2::Instance"

// ConfigRuleEvent is the raw invocation event. All four fields must be
// present for the event to be processable; each is kept as raw JSON so that
// presence ("key existed in the payload") is distinguishable from any value,
// including null.
type ConfigRuleEvent struct {
	InvokingEvent  json.RawMessage `json:"invokingEvent"`
	RuleParameters json.RawMessage `json:"ruleParameters"`
	ResultToken    json.RawMessage `json:"resultToken"`
	EventLeftScope json.RawMessage `json:"eventLeftScope"`
}

// InvokingEvent is the configuration-change notification embedded in the
// invocation event.
type InvokingEvent struct {
	ConfigurationItem ConfigurationItem `json:"configurationItem"`
}

// ConfigurationItem describes the changed resource.
type ConfigurationItem struct {
	ResourceType string `json:"resourceType"`
	ResourceID   string `json:"resourceId"`
}

// IsEC2Instance reports whether the changed resource is an EC2 instance.
func (c ConfigurationItem) IsEC2Instance() bool {
	return strings.EqualFold(c.ResourceType, EC2InstanceResourceType)
}

// Parse decodes a raw invocation payload. A payload that is not a JSON
// object at the top level is an error; missing fields are reported by
// Validate, not here.
func Parse(raw []byte) (*ConfigRuleEvent, error) {
	var e ConfigRuleEvent
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("parse invocation event: %w", err)
	}
	return &e, nil
}

// Validate checks that all four required AWS Config keys were present.
// The returned error names every missing key.
func (e *ConfigRuleEvent) Validate() error {
	var missing []string
	if e.InvokingEvent == nil {
		missing = append(missing, "invokingEvent")
	}
	if e.RuleParameters == nil {
		missing = append(missing, "ruleParameters")
	}
	if e.ResultToken == nil {
		missing = append(missing, "resultToken")
	}
	if e.EventLeftScope == nil {
		missing = append(missing, "eventLeftScope")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required AWS Config keys [%s]: need [invokingEvent, ruleParameters, resultToken, eventLeftScope]",
			strings.Join(missing, ", "))
	}
	return nil
}

// DecodeInvokingEvent returns the parsed configuration-change payload,
// accepting either the double-encoded or plain-object form.
func (e *ConfigRuleEvent) DecodeInvokingEvent() (*InvokingEvent, error) {
	raw, err := decodeEmbedded(e.InvokingEvent)
	if err != nil {
		return nil, fmt.Errorf("decode invokingEvent: %w", err)
	}
	var inv InvokingEvent
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("decode invokingEvent: %w", err)
	}
	return &inv, nil
}

// RuleParametersJSON returns the rule-parameter block as a JSON object,
// unwrapping the double-encoded form when necessary. The caller parses the
// individual parameters.
func (e *ConfigRuleEvent) RuleParametersJSON() (json.RawMessage, error) {
	raw, err := decodeEmbedded(e.RuleParameters)
	if err != nil {
		return nil, fmt.Errorf("decode ruleParameters: %w", err)
	}
	return raw, nil
}

// Token returns the opaque result token passed back to AWS Config with the
// evaluation. Config always sends a JSON string; anything else is returned
// as its raw text.
func (e *ConfigRuleEvent) Token() string {
	var s string
	if err := json.Unmarshal(e.ResultToken, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(e.ResultToken))
}

// decodeEmbedded unwraps a field that may be either a JSON value or a JSON
// string containing serialised JSON. A string field is unquoted and its
// contents re-parsed; a malformed inner document is an error.
func decodeEmbedded(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return trimmed, nil
	}

	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("unquote embedded document: %w", err)
	}
	if !json.Valid([]byte(inner)) {
		return nil, fmt.Errorf("embedded document is not valid JSON")
	}
	return json.RawMessage(inner), nil
}
