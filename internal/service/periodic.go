package service

import (
	"context"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

// periodicAssessment re-runs assessment and diagnosis outside of a session using the
// client's documented session history.
func (s *Service) periodicAssessment(ctx context.Context, sr *stageRun, req domain.PeriodicAssessmentRequest) (*domain.PeriodicAssessmentResult, error) {
	prior, err := s.priorSessions(ctx, req.ClientID, "")
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, sr.runID, domain.EventTypeContextAssembled, domain.ContextAssembledPayload{PriorSessions: len(prior)})

	riskFactor, priority, err := s.screen(ctx, sr, req.ClientData)
	if err != nil {
		return nil, err
	}

	assessment, err := s.callCollaborator(ctx, sr, domain.CollaboratorAssessment, domain.AssessmentRequest{
		ClientID:         req.ClientID,
		ClientData:       req.ClientData,
		Priority:         priority,
		RiskFactor:       &riskFactor,
		PreviousSessions: prior,
		IsReassessment:   true,
	})
	if err != nil {
		return nil, err
	}

	diagnostic, err := s.callCollaborator(ctx, sr, domain.CollaboratorDiagnostic, domain.DiagnosticRequest{
		ClientID:          req.ClientID,
		ClientData:        req.ClientData,
		AssessmentResults: assessment,
		PreviousSessions:  prior,
		IsReassessment:    true,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	risk := resolveRisk(assessment, sr.client.RiskLevel)
	if err := s.updateClient(ctx, sr, store.ClientAssessmentUpdate{
		RiskLevel:        &risk,
		LastReassessment: &now,
	}); err != nil {
		return nil, err
	}

	return &domain.PeriodicAssessmentResult{
		AssessmentResults: assessment,
		DiagnosticResults: diagnostic,
		Message:           "Periodic assessment completed successfully",
	}, nil
}
