package models

import "time"

// Compliance is the verdict reported to AWS Config for one resource.
type Compliance string

const (
	ComplianceCompliant    Compliance = "COMPLIANT"
	ComplianceNonCompliant Compliance = "NON_COMPLIANT"
)

// ComplianceFor maps the evaluator's protection verdict to the AWS Config
// compliance type: a protected instance is COMPLIANT, anything else is not.
func ComplianceFor(protected bool) Compliance {
	if protected {
		return ComplianceCompliant
	}
	return ComplianceNonCompliant
}

// Evaluation is the compliance evaluation for a single resource, ready to be
// submitted to AWS Config. It is constructed once per invocation, submitted
// once, and never persisted.
type Evaluation struct {
	// ResourceType is the AWS Config resource type string from the invoking
	// event, e.g. "AWS::EC2::Instance".
	ResourceType string `json:"resource_type"`

	// ResourceID is the ID of the evaluated resource (the EC2 instance ID).
	ResourceID string `json:"resource_id"`

	// Compliance is the verdict for this resource.
	Compliance Compliance `json:"compliance"`

	// Annotation is an optional free-text explanation attached to the
	// evaluation, e.g. "Anti-Malware status: On, Real Time". Omitted from
	// the submission when empty.
	Annotation string `json:"annotation,omitempty"`

	// OrderedAt is the ordering timestamp AWS Config uses to sequence
	// evaluations for the same resource.
	OrderedAt time.Time `json:"ordered_at"`
}
