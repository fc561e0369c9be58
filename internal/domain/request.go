package domain

import (
	"bytes"
	"encoding/json"
)

// WorkflowRequest is the inbound JSON body of the workflow endpoint.
type WorkflowRequest struct {
	Stage          Stage           `json:"stage"`
	ClientID       string          `json:"clientId"`
	ClientData     json.RawMessage `json:"clientData,omitempty"`
	SessionID      string          `json:"sessionId,omitempty"`
	ShouldReassess bool            `json:"shouldReassess,omitempty"`
}

// StageRequest is implemented by the per-stage request types returned by Parse.
type StageRequest interface {
	Stage() Stage
	Client() string
}

// IntakeRequest starts the intake workflow.
type IntakeRequest struct {
	ClientID   string
	ClientData ClientData
}

// PreSessionRequest prepares treatment planning before a session.
type PreSessionRequest struct {
	ClientID       string
	SessionID      string // optional
	ShouldReassess bool
}

// PostSessionRequest documents a completed session.
type PostSessionRequest struct {
	ClientID  string
	SessionID string
}

// PeriodicAssessmentRequest re-runs assessment and diagnosis outside of a session.
type PeriodicAssessmentRequest struct {
	ClientID   string
	ClientData ClientData
}

func (r IntakeRequest) Stage() Stage { return StageIntake }
func (r PreSessionRequest) Stage() Stage { return StagePreSession }
func (r PostSessionRequest) Stage() Stage { return StagePostSession }
func (r PeriodicAssessmentRequest) Stage() Stage { return StagePeriodicAssessment }
func (r IntakeRequest) Client() string { return r.ClientID }
func (r PreSessionRequest) Client() string { return r.ClientID }
func (r PostSessionRequest) Client() string { return r.ClientID }
func (r PeriodicAssessmentRequest) Client() string { return r.ClientID }

// Parse validates the request and converts it to the stage-specific request type.
func (r WorkflowRequest) Parse() (StageRequest, error) {
	if r.Stage == "" || r.ClientID == "" {
		return nil, BadRequest("Missing required fields")
	}
	if !r.Stage.Valid() {
		return nil, BadRequest("Invalid workflow stage: %s", r.Stage)
	}

	switch r.Stage {
	case StageIntake:
		data, err := r.clientData()
		if err != nil {
			return nil, err
		}
		return IntakeRequest{ClientID: r.ClientID, ClientData: data}, nil
	case StagePreSession:
		return PreSessionRequest{ClientID: r.ClientID, SessionID: r.SessionID, ShouldReassess: r.ShouldReassess}, nil
	case StagePostSession:
		if r.SessionID == "" {
			return nil, BadRequest("Session ID is required for post-session workflow")
		}
		return PostSessionRequest{ClientID: r.ClientID, SessionID: r.SessionID}, nil
	default:
		data, err := r.clientData()
		if err != nil {
			return nil, err
		}
		return PeriodicAssessmentRequest{ClientID: r.ClientID, ClientData: data}, nil
	}
}

// clientData decodes clientData, which must be a non-null JSON object.
func (r WorkflowRequest) clientData() (ClientData, error) {
	raw := bytes.TrimSpace(r.ClientData)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, BadRequest("Invalid client data")
	}
	var data ClientData
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return nil, BadRequest("Invalid client data")
	}
	return data, nil
}
