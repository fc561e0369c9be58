package domain

import (
	"encoding/json"
	"time"
)

// Client is a clinician's client record.
type Client struct {
	ID                   string     `json:"id"`
	OwnerID              string     `json:"ownerId"`
	FirstName            string     `json:"firstName"`
	LastName             string     `json:"lastName"`
	Email                string     `json:"email,omitempty"`
	Phone                string     `json:"phone,omitempty"`
	DateOfBirth          *time.Time `json:"dateOfBirth,omitempty"`
	InitialAssessment    string     `json:"initialAssessment,omitempty"`
	RiskLevel            RiskLevel  `json:"riskLevel"`
	LastIntakeAssessment *time.Time `json:"lastIntakeAssessment,omitempty"`
	LastReassessment     *time.Time `json:"lastReassessment,omitempty"`
	Version              int64      `json:"version"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Session is a single therapy encounter.
type Session struct {
	ID          string     `json:"id"`
	ClientID    string     `json:"clientId"`
	Date        time.Time  `json:"date"`
	Notes       string     `json:"notes,omitempty"`
	MoodRating  int        `json:"moodRating"`
	Status      string     `json:"status"`
	Documented  bool       `json:"documented"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ReportMetadata carries bookkeeping attached to an AIReport.
type ReportMetadata struct {
	Timestamp time.Time `json:"timestamp"`
}

// AIReport is an immutable record of a collaborator's output.
type AIReport struct {
	ID        string          `json:"id"`
	ClientID  string          `json:"clientId"`
	SessionID string          `json:"sessionId,omitempty"`
	Type      ReportType      `json:"type"`
	Content   json.RawMessage `json:"content"`
	Metadata  ReportMetadata  `json:"metadata"`
}

// SessionSummary is the bounded view of a prior session forwarded to collaborators.
type SessionSummary struct {
	ID         string    `json:"id"`
	Date       time.Time `json:"date"`
	MoodRating int       `json:"moodRating"`
	Status     string    `json:"status"`
	Notes      string    `json:"notes"`
	Documented bool      `json:"documented"`
}

// ClientData is the caller-supplied client object. It is forwarded to collaborators as-is.
type ClientData map[string]interface{}

// InitialAssessment returns the free-text intake narrative, if any.
func (d ClientData) InitialAssessment() string {
	s, _ := d["initialAssessment"].(string)
	return s
}
