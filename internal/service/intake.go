package service

import (
	"context"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

// intake screens the intake narrative, runs assessment and diagnosis and records the
// intake on the client.
func (s *Service) intake(ctx context.Context, sr *stageRun, req domain.IntakeRequest) (*domain.IntakeResult, error) {
	riskFactor, priority, err := s.screen(ctx, sr, req.ClientData)
	if err != nil {
		return nil, err
	}

	assessment, err := s.callCollaborator(ctx, sr, domain.CollaboratorAssessment, domain.AssessmentRequest{
		ClientID:   req.ClientID,
		ClientData: req.ClientData,
		Priority:   priority,
		RiskFactor: &riskFactor,
	})
	if err != nil {
		return nil, err
	}

	diagnostic, err := s.callCollaborator(ctx, sr, domain.CollaboratorDiagnostic, domain.DiagnosticRequest{
		ClientID:          req.ClientID,
		ClientData:        req.ClientData,
		AssessmentResults: assessment,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	risk := resolveRisk(assessment, domain.RiskUnknown)
	if err := s.updateClient(ctx, sr, store.ClientAssessmentUpdate{
		RiskLevel:            &risk,
		LastIntakeAssessment: &now,
		LastReassessment:     &now,
	}); err != nil {
		return nil, err
	}

	return &domain.IntakeResult{
		AssessmentResults: assessment,
		DiagnosticResults: diagnostic,
		Message:           "Intake workflow completed successfully",
	}, nil
}
