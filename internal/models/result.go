package models

import "encoding/json"

// Outcome tags the terminal state of one rule invocation. Every invocation
// ends in exactly one outcome; callers switch on it instead of probing map
// keys.
type Outcome string

const (
	// OutcomeError means the event was missing one of the required AWS
	// Config keys and nothing was processed.
	OutcomeError Outcome = "error"

	// OutcomeRequirementsNotMet means the rule parameters were incomplete
	// or invalid (missing credential keys, unknown control).
	OutcomeRequirementsNotMet Outcome = "requirements_not_met"

	// OutcomeOutOfScope means the changed resource was not an EC2 instance
	// (or carried no resource ID); no evaluation was submitted.
	OutcomeOutOfScope Outcome = "out_of_scope"

	// OutcomeReportSucceeded means an evaluation was submitted to AWS Config
	// and accepted.
	OutcomeReportSucceeded Outcome = "report_succeeded"

	// OutcomeReportFailed means an evaluation was built but the submission
	// to AWS Config failed.
	OutcomeReportFailed Outcome = "report_failed"
)

// Result is the structured reply of one rule invocation. The zero value is
// not meaningful; construct results with the helpers below so the Outcome
// tag is always set.
//
// The wire form (AsMap / MarshalJSON) reproduces the rule's original reply
// contract: callers of the Lambda see plain maps, not this struct.
type Result struct {
	// Outcome is the variant tag.
	Outcome Outcome `json:"-"`

	// Message is the human-readable requirements_not_met text. Set only for
	// OutcomeRequirementsNotMet.
	Message string `json:"-"`

	// Annotation is the control status detail ("Anti-Malware status: ...")
	// produced when a managed computer matched the instance. Empty when no
	// computer matched.
	Annotation string `json:"-"`

	// Response holds the raw AWS Config PutEvaluations response. Set only
	// for OutcomeReportSucceeded; treated as opaque.
	Response any `json:"-"`
}

// ErrorResult reports a malformed invocation (missing required event keys).
func ErrorResult() *Result {
	return &Result{Outcome: OutcomeError}
}

// RequirementsNotMetResult reports invalid or incomplete rule parameters.
func RequirementsNotMetResult(msg string) *Result {
	return &Result{Outcome: OutcomeRequirementsNotMet, Message: msg}
}

// OutOfScopeResult reports that the changed resource was not evaluated.
func OutOfScopeResult() *Result {
	return &Result{Outcome: OutcomeOutOfScope}
}

// ReportSucceededResult reports a submitted and accepted evaluation.
func ReportSucceededResult(annotation string, response any) *Result {
	return &Result{
		Outcome:    OutcomeReportSucceeded,
		Annotation: annotation,
		Response:   response,
	}
}

// ReportFailedResult reports an evaluation whose submission failed.
func ReportFailedResult(annotation string) *Result {
	return &Result{Outcome: OutcomeReportFailed, Annotation: annotation}
}

// AsMap renders the result in the rule's reply contract:
//
//	{"result": "error"}                          OutcomeError
//	{"requirements_not_met": "..."}              OutcomeRequirementsNotMet
//	{} or {"annotation": "..."}                  OutcomeOutOfScope
//	{"annotation"?, "result": "success",
//	 "response": {...}}                          OutcomeReportSucceeded
//	{"annotation"?, "result": "failure"}         OutcomeReportFailed
func (r *Result) AsMap() map[string]any {
	out := make(map[string]any)

	switch r.Outcome {
	case OutcomeError:
		out["result"] = "error"
		return out
	case OutcomeRequirementsNotMet:
		out["requirements_not_met"] = r.Message
		return out
	}

	if r.Annotation != "" {
		out["annotation"] = r.Annotation
	}

	switch r.Outcome {
	case OutcomeReportSucceeded:
		out["result"] = "success"
		if r.Response != nil {
			out["response"] = r.Response
		}
	case OutcomeReportFailed:
		out["result"] = "failure"
	}
	return out
}

// MarshalJSON serialises the wire form, not the struct fields.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.AsMap())
}
