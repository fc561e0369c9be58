package service

import (
	"context"
	"encoding/json"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

// preSession prepares the treatment plan for an upcoming session, optionally refreshing
// assessment and diagnosis first.
func (s *Service) preSession(ctx context.Context, sr *stageRun, req domain.PreSessionRequest) (*domain.PreSessionResult, error) {
	client := sr.client
	session := sr.session

	prior, err := s.priorSessions(ctx, client.ID, req.SessionID)
	if err != nil {
		return nil, err
	}

	var (
		newAssessment, newDiagnostic *domain.CollaboratorResult
		assessmentResults            json.RawMessage
		diagnosticResults            json.RawMessage
	)
	if req.ShouldReassess {
		newAssessment, newDiagnostic, err = s.reassess(ctx, sr, session, prior)
		if err != nil {
			return nil, err
		}
		assessmentResults = newAssessment.Raw
		diagnosticResults = newDiagnostic.Raw
	} else {
		stored, err := s.latestReport(ctx, client.ID, domain.CollaboratorAssessment, "")
		if err != nil {
			return nil, err
		}
		assessmentResults = reportContent(stored)

		stored, err = s.latestReport(ctx, client.ID, domain.CollaboratorDiagnostic, "")
		if err != nil {
			return nil, err
		}
		diagnosticResults = reportContent(stored)
	}

	previousDocumentation, err := s.latestReport(ctx, client.ID, domain.CollaboratorDocumentation, req.SessionID)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, sr.runID, domain.EventTypeContextAssembled, domain.ContextAssembledPayload{
		PriorSessions:        len(prior),
		HasAssessment:        assessmentResults != nil,
		HasDiagnostic:        diagnosticResults != nil,
		DocumentationReports: countReport(previousDocumentation),
	})

	// A prior documentation report already summarizes earlier assessment and diagnosis.
	if !req.ShouldReassess && previousDocumentation != nil {
		assessmentResults = nil
		diagnosticResults = nil
	}

	treatment, err := s.callCollaborator(ctx, sr, domain.CollaboratorTreatment, domain.TreatmentRequest{
		ClientID:              client.ID,
		SessionID:             req.SessionID,
		ClientData:            client,
		SessionData:           session,
		PreviousSessions:      prior,
		PreviousDocumentation: previousDocumentation,
		AssessmentResults:     assessmentResults,
		DiagnosticResults:     diagnosticResults,
		SessionNumber:         len(prior) + 1,
		IsReassessment:        req.ShouldReassess,
	})
	if err != nil {
		return nil, err
	}

	return &domain.PreSessionResult{
		TreatmentResults: treatment,
		NewAssessment:    newAssessment,
		NewDiagnostic:    newDiagnostic,
		Message:          "Pre-session workflow completed successfully",
	}, nil
}

// reassess runs assessment and diagnosis against the live client record and refreshes the
// client's risk level.
func (s *Service) reassess(ctx context.Context, sr *stageRun, session *domain.Session, prior []domain.SessionSummary) (*domain.CollaboratorResult, *domain.CollaboratorResult, error) {
	client := sr.client
	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}

	assessment, err := s.callCollaborator(ctx, sr, domain.CollaboratorAssessment, domain.AssessmentRequest{
		ClientID:         client.ID,
		SessionID:        sessionID,
		ClientData:       client,
		SessionData:      session,
		PreviousSessions: prior,
		IsReassessment:   true,
	})
	if err != nil {
		return nil, nil, err
	}

	diagnostic, err := s.callCollaborator(ctx, sr, domain.CollaboratorDiagnostic, domain.DiagnosticRequest{
		ClientID:          client.ID,
		SessionID:         sessionID,
		ClientData:        client,
		SessionData:       session,
		AssessmentResults: assessment,
		PreviousSessions:  prior,
		IsReassessment:    true,
	})
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	risk := resolveRisk(assessment, client.RiskLevel)
	if err := s.updateClient(ctx, sr, store.ClientAssessmentUpdate{
		RiskLevel:        &risk,
		LastReassessment: &now,
	}); err != nil {
		return nil, nil, err
	}
	return assessment, diagnostic, nil
}

func countReport(report *domain.AIReport) int {
	if report == nil {
		return 0
	}
	return 1
}
