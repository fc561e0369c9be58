package domain

import "encoding/json"

// AssessmentRequest is sent to the assessment collaborator.
type AssessmentRequest struct {
	ClientID         string           `json:"clientId"`
	SessionID        string           `json:"sessionId,omitempty"`
	ClientData       interface{}      `json:"clientData"`
	SessionData      *Session         `json:"sessionData"`
	Priority         Priority         `json:"priority,omitempty"`
	RiskFactor       *bool            `json:"riskFactor,omitempty"`
	PreviousSessions []SessionSummary `json:"previousSessions,omitempty"`
	IsReassessment   bool             `json:"isReassessment,omitempty"`
}

// DiagnosticRequest is sent to the diagnostic collaborator.
type DiagnosticRequest struct {
	ClientID          string              `json:"clientId"`
	SessionID         string              `json:"sessionId,omitempty"`
	ClientData        interface{}         `json:"clientData"`
	SessionData       *Session            `json:"sessionData"`
	AssessmentResults *CollaboratorResult `json:"assessmentResults"`
	PreviousSessions  []SessionSummary    `json:"previousSessions,omitempty"`
	IsReassessment    bool                `json:"isReassessment,omitempty"`
}

// TreatmentRequest is sent to the treatment collaborator.
type TreatmentRequest struct {
	ClientID              string           `json:"clientId"`
	SessionID             string           `json:"sessionId,omitempty"`
	ClientData            *Client          `json:"clientData"`
	SessionData           *Session         `json:"sessionData"`
	PreviousSessions      []SessionSummary `json:"previousSessions"`
	PreviousDocumentation *AIReport        `json:"previousDocumentation"`
	AssessmentResults     json.RawMessage  `json:"assessmentResults"`
	DiagnosticResults     json.RawMessage  `json:"diagnosticResults"`
	SessionNumber         int              `json:"sessionNumber"`
	IsReassessment        bool             `json:"isReassessment"`
}

// ProgressRequest is sent to the progress collaborator.
type ProgressRequest struct {
	ClientID          string           `json:"clientId"`
	SessionID         string           `json:"sessionId"`
	ClientData        *Client          `json:"clientData"`
	SessionData       *Session         `json:"sessionData"`
	PreviousSessions  []SessionSummary `json:"previousSessions"`
	AssessmentResults json.RawMessage  `json:"assessmentResults"`
	DiagnosticResults json.RawMessage  `json:"diagnosticResults"`
	TreatmentResults  json.RawMessage  `json:"treatmentResults"`
	PreviousProgress  []AIReport       `json:"previousProgress"`
	SessionNumber     int              `json:"sessionNumber"`
}

// DocumentationRequest is sent to the documentation collaborator.
type DocumentationRequest struct {
	ProgressRequest
	ProgressResults       *CollaboratorResult `json:"progressResults"`
	PreviousDocumentation *AIReport           `json:"previousDocumentation"`
}
