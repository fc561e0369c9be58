package helpers

import (
	"context"
	"testing"
	"time"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// SeedClient inserts a client owned by ownerID.
func SeedClient(t *testing.T, s store.Store, id, ownerID string, risk domain.RiskLevel) *domain.Client {
	t.Helper()

	client := &domain.Client{
		ID:                id,
		OwnerID:           ownerID,
		FirstName:         "Test",
		LastName:          "Client",
		InitialAssessment: "routine check-in",
		RiskLevel:         risk,
	}
	if err := s.CreateClient(context.Background(), client); err != nil {
		t.Fatalf("failed to seed client: %v", err)
	}
	return client
}

// SeedSession inserts a session for clientID.
func SeedSession(t *testing.T, s store.Store, id, clientID string, date time.Time, documented bool) *domain.Session {
	t.Helper()

	session := &domain.Session{
		ID:         id,
		ClientID:   clientID,
		Date:       date,
		Notes:      "notes for " + id,
		MoodRating: 6,
		Status:     "completed",
		Documented: documented,
	}
	if err := s.CreateSession(context.Background(), session); err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}
	return session
}

// SeedReport inserts a collaborator report.
func SeedReport(t *testing.T, s store.Store, id, clientID, sessionID string, typ domain.ReportType, content string, ts time.Time) *domain.AIReport {
	t.Helper()

	report := &domain.AIReport{
		ID:        id,
		ClientID:  clientID,
		SessionID: sessionID,
		Type:      typ,
		Content:   []byte(content),
		Metadata:  domain.ReportMetadata{Timestamp: ts},
	}
	if err := s.CreateReport(context.Background(), report); err != nil {
		t.Fatalf("failed to seed report: %v", err)
	}
	return report
}
