// Package domain defines the core domain models for the workflow orchestrator.
package domain

import "strings"

// Stage identifies one of the entry workflows.
type Stage string

const (
	StageIntake             Stage = "intake"
	StagePreSession         Stage = "pre-session"
	StagePostSession        Stage = "post-session"
	StagePeriodicAssessment Stage = "periodic-assessment"
)

// Valid reports whether s is one of the four recognized stages.
func (s Stage) Valid() bool {
	switch s {
	case StageIntake, StagePreSession, StagePostSession, StagePeriodicAssessment:
		return true
	}
	return false
}

// Collaborator names an external analysis service.
type Collaborator string

const (
	CollaboratorAssessment    Collaborator = "assessment"
	CollaboratorDiagnostic    Collaborator = "diagnostic"
	CollaboratorTreatment     Collaborator = "treatment"
	CollaboratorProgress      Collaborator = "progress"
	CollaboratorDocumentation Collaborator = "documentation"
)

// Collaborators lists every collaborator in pipeline order.
var Collaborators = []Collaborator{
	CollaboratorAssessment,
	CollaboratorDiagnostic,
	CollaboratorTreatment,
	CollaboratorProgress,
	CollaboratorDocumentation,
}

// Title returns the capitalized collaborator name used in error messages.
func (c Collaborator) Title() string {
	if c == "" {
		return ""
	}
	return strings.ToUpper(string(c[:1])) + string(c[1:])
}

// ReportType is the type of an AIReport. Each collaborator produces reports of its own type.
type ReportType = Collaborator

// RiskLevel is the clinical risk level recorded on a client.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
	RiskSevere   RiskLevel = "severe"
	RiskUnknown  RiskLevel = "unknown"
)

// ParseRiskLevel normalizes a collaborator-provided risk level.
// ok is false when the value is not one of the known levels.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	level := RiskLevel(strings.ToLower(strings.TrimSpace(raw)))
	switch level {
	case RiskNone, RiskLow, RiskModerate, RiskHigh, RiskSevere, RiskUnknown:
		return level, true
	}
	return RiskUnknown, false
}

// Priority is the call priority derived from risk screening.
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// PriorityFor maps a risk factor to a call priority.
func PriorityFor(riskFactor bool) Priority {
	if riskFactor {
		return PriorityHigh
	}
	return PriorityNormal
}

// RunStatus represents the status of a workflow run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusDone    RunStatus = "DONE"
	RunStatusFailed  RunStatus = "FAILED"
)

// EventType represents the type of a workflow event.
type EventType string

const (
	EventTypeStageStarted            EventType = "stage_started"
	EventTypeRiskScreened            EventType = "risk_screened"
	EventTypeContextAssembled        EventType = "context_assembled"
	EventTypeCollaboratorCallStarted EventType = "collaborator_call_started"
	EventTypeCollaboratorCallDone    EventType = "collaborator_call_done"
	EventTypeCollaboratorCallFailed  EventType = "collaborator_call_failed"
	EventTypeClientUpdated           EventType = "client_updated"
	EventTypeSessionDocumented       EventType = "session_documented"
	EventTypeStageDone               EventType = "stage_done"
	EventTypeStageFailed             EventType = "stage_failed"
)
