package domain

import (
	"bytes"
	"encoding/json"
)

// CollaboratorResult is a collaborator's success payload. The payload is passed through
// unexamined except for the few named fields the orchestrator reads.
type CollaboratorResult struct {
	Raw json.RawMessage

	RiskLevel             *string
	RecommendReassessment *bool
	ReassessmentRationale *string
}

type namedFields struct {
	RiskLevel             *string
	RecommendReassessment *bool
	ReassessmentRationale *string
	Content               json.RawMessage
}

// UnmarshalJSON keeps the raw payload and extracts the named fields, looking first at the
// top level and then inside a "content" object.
func (r *CollaboratorResult) UnmarshalJSON(data []byte) error {
	r.Raw = append(json.RawMessage(nil), data...)

	top := decodeNamedFields(data)
	nested := decodeNamedFields(top.Content)

	r.RiskLevel = firstString(top.RiskLevel, nested.RiskLevel)
	r.ReassessmentRationale = firstString(top.ReassessmentRationale, nested.ReassessmentRationale)
	r.RecommendReassessment = top.RecommendReassessment
	if r.RecommendReassessment == nil {
		r.RecommendReassessment = nested.RecommendReassessment
	}
	return nil
}

// decodeNamedFields decodes each named field on its own, so a field of the wrong type is
// dropped without losing the others. Non-object payloads carry no named fields.
func decodeNamedFields(data []byte) namedFields {
	var fields map[string]json.RawMessage
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return namedFields{}
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return namedFields{}
	}
	return namedFields{
		RiskLevel:             decodeField[string](fields, "riskLevel"),
		RecommendReassessment: decodeField[bool](fields, "recommendReassessment"),
		ReassessmentRationale: decodeField[string](fields, "reassessmentRationale"),
		Content:               fields["content"],
	}
}

func decodeField[T any](fields map[string]json.RawMessage, key string) *T {
	raw, ok := fields[key]
	if !ok || string(bytes.TrimSpace(raw)) == "null" {
		return nil
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return &v
}

// MarshalJSON emits the raw payload verbatim.
func (r CollaboratorResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) == 0 {
		return []byte("null"), nil
	}
	return r.Raw, nil
}

// Risk returns the normalized risk level reported by the collaborator, if any.
func (r *CollaboratorResult) Risk() (RiskLevel, bool) {
	if r == nil || r.RiskLevel == nil {
		return "", false
	}
	return ParseRiskLevel(*r.RiskLevel)
}

func firstString(values ...*string) *string {
	for _, v := range values {
		if v != nil && *v != "" {
			return v
		}
	}
	return nil
}

// IntakeResult is returned by the intake stage.
type IntakeResult struct {
	AssessmentResults *CollaboratorResult `json:"assessmentResults"`
	DiagnosticResults *CollaboratorResult `json:"diagnosticResults"`
	Message           string              `json:"message"`
}

// PreSessionResult is returned by the pre-session stage.
type PreSessionResult struct {
	TreatmentResults *CollaboratorResult `json:"treatmentResults"`
	NewAssessment    *CollaboratorResult `json:"newAssessment"`
	NewDiagnostic    *CollaboratorResult `json:"newDiagnostic"`
	Message          string              `json:"message"`
}

// PostSessionResult is returned by the post-session stage.
type PostSessionResult struct {
	ProgressResults       *CollaboratorResult `json:"progressResults"`
	DocumentationResults  *CollaboratorResult `json:"documentationResults"`
	RecommendReassessment bool                `json:"recommendReassessment"`
	ReassessmentRationale string              `json:"reassessmentRationale"`
	Message               string              `json:"message"`
}

// PeriodicAssessmentResult is returned by the periodic-assessment stage.
type PeriodicAssessmentResult struct {
	AssessmentResults *CollaboratorResult `json:"assessmentResults"`
	DiagnosticResults *CollaboratorResult `json:"diagnosticResults"`
	Message           string              `json:"message"`
}
