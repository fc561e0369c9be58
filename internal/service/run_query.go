package service

import (
	"context"
	"fmt"

	"github.com/davidanoel/cognicare-sub000/internal/auth"
	"github.com/davidanoel/cognicare-sub000/internal/domain"
)

// GetRun returns a workflow run owned by caller.
func (s *Service) GetRun(ctx context.Context, caller auth.Identity, runID string) (*domain.WorkflowRun, error) {
	if !caller.Valid() {
		return nil, domain.Unauthorized()
	}
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, domain.WorkflowFailed(fmt.Errorf("failed to get run: %w", err))
	}
	if run == nil || run.OwnerID != caller.ClinicianID {
		return nil, domain.NotFound("Run not found")
	}
	return run, nil
}

// GetRunEvents returns the audit events of a run owned by caller, oldest first.
func (s *Service) GetRunEvents(ctx context.Context, caller auth.Identity, runID string, afterTs int64, limit int) ([]domain.WorkflowEvent, error) {
	if _, err := s.GetRun(ctx, caller, runID); err != nil {
		return nil, err
	}
	events, err := s.store.GetEvents(ctx, runID, afterTs, limit)
	if err != nil {
		return nil, domain.WorkflowFailed(fmt.Errorf("failed to get run events: %w", err))
	}
	return events, nil
}
