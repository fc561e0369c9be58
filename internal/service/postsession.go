package service

import (
	"context"
	"fmt"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

const defaultReassessmentRationale = "No rationale provided"

// postSession records progress and documentation for a completed session, marks it
// documented and carries a progress risk level over to the client.
func (s *Service) postSession(ctx context.Context, sr *stageRun, req domain.PostSessionRequest) (*domain.PostSessionResult, error) {
	client, session := sr.client, sr.session
	if session == nil {
		return nil, domain.NotFound("Session not found")
	}

	history, err := s.assembleSessionContext(ctx, client.ID, session.ID)
	if err != nil {
		return nil, err
	}
	s.recordEvent(ctx, sr.runID, domain.EventTypeContextAssembled, history.assembledPayload())

	bundle := domain.ProgressRequest{
		ClientID:          client.ID,
		SessionID:         session.ID,
		ClientData:        client,
		SessionData:       session,
		PreviousSessions:  history.PriorSessions,
		AssessmentResults: reportContent(history.Assessment),
		DiagnosticResults: reportContent(history.Diagnostic),
		TreatmentResults:  reportContent(history.Treatment),
		PreviousProgress:  history.Progress,
		SessionNumber:     len(history.PriorSessions) + 1,
	}

	progress, err := s.callCollaborator(ctx, sr, domain.CollaboratorProgress, bundle)
	if err != nil {
		return nil, err
	}

	documentation, err := s.callCollaborator(ctx, sr, domain.CollaboratorDocumentation, domain.DocumentationRequest{
		ProgressRequest:       bundle,
		ProgressResults:       progress,
		PreviousDocumentation: history.latestDocumentation(),
	})
	if err != nil {
		return nil, err
	}

	completedAt := s.now()
	if err := s.store.MarkSessionDocumented(ctx, session.ID, completedAt); err != nil {
		return nil, fmt.Errorf("failed to mark session documented: %w", err)
	}
	s.recordEvent(ctx, sr.runID, domain.EventTypeSessionDocumented, map[string]interface{}{
		"session_id":   session.ID,
		"completed_at": completedAt,
	})

	if risk, ok := progress.Risk(); ok {
		if err := s.updateClient(ctx, sr, store.ClientAssessmentUpdate{RiskLevel: &risk}); err != nil {
			return nil, err
		}
	}

	result := &domain.PostSessionResult{
		ProgressResults:       progress,
		DocumentationResults:  documentation,
		ReassessmentRationale: defaultReassessmentRationale,
		Message:               "Post-session workflow completed successfully",
	}
	if progress.RecommendReassessment != nil {
		result.RecommendReassessment = *progress.RecommendReassessment
	}
	if progress.ReassessmentRationale != nil {
		result.ReassessmentRationale = *progress.ReassessmentRationale
	}
	return result, nil
}
