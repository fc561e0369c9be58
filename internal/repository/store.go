// Package store defines the storage interface and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
)

// ErrNotFound is returned by updates that match no record.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for data persistence.
type Store interface {
	// Client operations
	CreateClient(ctx context.Context, client *domain.Client) error
	GetClient(ctx context.Context, clientID string) (*domain.Client, error)
	UpdateClientAssessment(ctx context.Context, clientID string, update ClientAssessmentUpdate) error

	// Session operations
	CreateSession(ctx context.Context, session *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListDocumentedSessions(ctx context.Context, filter SessionFilter) ([]domain.Session, error)
	MarkSessionDocumented(ctx context.Context, sessionID string, completedAt time.Time) error

	// Report operations
	CreateReport(ctx context.Context, report *domain.AIReport) error
	ListReports(ctx context.Context, filter ReportFilter) ([]domain.AIReport, error)

	// Run operations
	CreateRun(ctx context.Context, run *domain.WorkflowRun) error
	GetRun(ctx context.Context, runID string) (*domain.WorkflowRun, error)
	UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error

	// Event operations
	CreateEvent(ctx context.Context, event *domain.WorkflowEvent) error
	GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]domain.WorkflowEvent, error)

	// Lifecycle
	Close() error
}

// ClientAssessmentUpdate lists the client fields a stage may write. Nil fields are left unchanged.
type ClientAssessmentUpdate struct {
	RiskLevel            *domain.RiskLevel
	LastIntakeAssessment *time.Time
	LastReassessment     *time.Time
}

// SessionFilter selects documented sessions of a client, most recent first.
type SessionFilter struct {
	ClientID  string
	ExcludeID string
	Limit     int
}

// ReportFilter selects reports of one type for a client, most recent first.
// ExcludeSessionID keeps reports without a session.
type ReportFilter struct {
	ClientID         string
	Type             domain.ReportType
	ExcludeSessionID string
	Limit            int
}
