package domain

import (
	"encoding/json"
	"time"
)

// WorkflowRun is the audit record of a single stage invocation.
type WorkflowRun struct {
	RunID     string          `json:"run_id"`
	Stage     Stage           `json:"stage"`
	ClientID  string          `json:"client_id"`
	SessionID string          `json:"session_id,omitempty"`
	OwnerID   string          `json:"owner_id"`
	Status    RunStatus       `json:"status"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
	Error     json.RawMessage `json:"error,omitempty"`
}

// WorkflowEvent represents a trace event recorded while a stage runs.
type WorkflowEvent struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Ts      int64           `json:"ts"` // Unix milliseconds
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CollaboratorCallPayload is recorded for collaborator call events.
type CollaboratorCallPayload struct {
	Collaborator Collaborator `json:"collaborator"`
	DurationMs   int64        `json:"duration_ms,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// RiskScreenedPayload is recorded after risk screening.
type RiskScreenedPayload struct {
	RiskFactor bool     `json:"risk_factor"`
	Priority   Priority `json:"priority"`
}

// ContextAssembledPayload summarizes the historical context gathered for a stage.
type ContextAssembledPayload struct {
	PriorSessions        int  `json:"prior_sessions"`
	HasAssessment        bool `json:"has_assessment,omitempty"`
	HasDiagnostic        bool `json:"has_diagnostic,omitempty"`
	HasTreatment         bool `json:"has_treatment,omitempty"`
	ProgressReports      int  `json:"progress_reports,omitempty"`
	DocumentationReports int  `json:"documentation_reports,omitempty"`
}

// ClientUpdatedPayload is recorded after a client write.
type ClientUpdatedPayload struct {
	RiskLevel            RiskLevel  `json:"risk_level,omitempty"`
	LastIntakeAssessment *time.Time `json:"last_intake_assessment,omitempty"`
	LastReassessment     *time.Time `json:"last_reassessment,omitempty"`
}

// StageFailedPayload is recorded when a stage aborts.
type StageFailedPayload struct {
	Kind    ErrorKind    `json:"kind"`
	Stage   Collaborator `json:"stage,omitempty"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
}
