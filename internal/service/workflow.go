package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/davidanoel/cognicare-sub000/internal/adapter/collaborator"
	"github.com/davidanoel/cognicare-sub000/internal/auth"
	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

// stageRun carries the state shared by the steps of one stage invocation.
type stageRun struct {
	runID   string
	caller  auth.Identity
	client  *domain.Client
	session *domain.Session // nil when the request names no session
}

// RunWorkflow validates req, authorizes caller against the client and runs the matching stage.
// The returned run id is empty when the request was rejected before a run was created.
func (s *Service) RunWorkflow(ctx context.Context, caller auth.Identity, req domain.WorkflowRequest) (string, interface{}, error) {
	if !caller.Valid() {
		return "", nil, domain.Unauthorized()
	}
	stageReq, err := req.Parse()
	if err != nil {
		return "", nil, err
	}
	stage := stageReq.Stage()

	ctx, span := s.tracer.Start(ctx, "workflow."+string(stage))
	defer span.End()
	span.SetAttributes(
		attribute.String("stage", string(stage)),
		attribute.String("client_id", stageReq.Client()),
	)

	start := time.Now()
	runID, result, err := s.dispatch(ctx, caller, stageReq)

	outcome := "ok"
	if err != nil {
		wfErr := domain.AsWorkflowError(err)
		outcome = string(wfErr.Kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, wfErr.Message)
		err = wfErr
	}
	if s.metrics != nil {
		s.metrics.StagesTotal.WithLabelValues(string(stage), outcome).Inc()
		s.metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}
	return runID, result, err
}

func (s *Service) dispatch(ctx context.Context, caller auth.Identity, req domain.StageRequest) (string, interface{}, error) {
	client, err := s.loadClient(ctx, caller, req.Client())
	if err != nil {
		return "", nil, err
	}
	var session *domain.Session
	if sessionID := requestSessionID(req); sessionID != "" {
		if session, err = s.loadSession(ctx, client.ID, sessionID); err != nil {
			return "", nil, err
		}
	}

	run := &domain.WorkflowRun{
		RunID:     "run_" + uuid.New().String()[:8],
		Stage:     req.Stage(),
		ClientID:  client.ID,
		SessionID: requestSessionID(req),
		OwnerID:   caller.ClinicianID,
		Status:    domain.RunStatusRunning,
		StartedAt: s.now(),
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		return "", nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.recordEvent(ctx, run.RunID, domain.EventTypeStageStarted, map[string]interface{}{
		"stage":      run.Stage,
		"client_id":  run.ClientID,
		"session_id": run.SessionID,
	})

	sr := &stageRun{runID: run.RunID, caller: caller, client: client, session: session}
	result, err := s.runStage(ctx, sr, req)

	// The run is closed even when the caller has gone away.
	finishCtx := context.WithoutCancel(ctx)
	if err != nil {
		s.failRun(finishCtx, sr, domain.AsWorkflowError(err))
		return run.RunID, nil, err
	}

	s.recordEvent(finishCtx, run.RunID, domain.EventTypeStageDone, map[string]interface{}{"stage": run.Stage})
	if err := s.store.UpdateRunCompleted(finishCtx, run.RunID, domain.RunStatusDone, nil); err != nil {
		s.logger.Error("failed to complete run", zap.String("run_id", run.RunID), zap.Error(err))
	}
	return run.RunID, result, nil
}

// runStage routes to the stage handler. A panic in a handler is reported as WorkflowFailed.
func (s *Service) runStage(ctx context.Context, sr *stageRun, req domain.StageRequest) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = domain.WorkflowFailed(fmt.Errorf("panic in %s stage: %v", req.Stage(), r))
		}
	}()

	switch r := req.(type) {
	case domain.IntakeRequest:
		return s.intake(ctx, sr, r)
	case domain.PreSessionRequest:
		return s.preSession(ctx, sr, r)
	case domain.PostSessionRequest:
		return s.postSession(ctx, sr, r)
	case domain.PeriodicAssessmentRequest:
		return s.periodicAssessment(ctx, sr, r)
	default:
		return nil, domain.BadRequest("Invalid workflow stage: %s", req.Stage())
	}
}

func (s *Service) failRun(ctx context.Context, sr *stageRun, wfErr *domain.WorkflowError) {
	fields := []zap.Field{
		zap.String("run_id", sr.runID),
		zap.String("client_id", sr.client.ID),
		zap.String("kind", string(wfErr.Kind)),
		zap.Error(wfErr),
	}
	if wfErr.Kind == domain.ErrWorkflowFailed {
		s.logger.Error("workflow failed", fields...)
	} else {
		s.logger.Warn("workflow stage aborted", fields...)
	}

	payload := domain.StageFailedPayload{
		Kind:    wfErr.Kind,
		Stage:   wfErr.Stage,
		Message: wfErr.Message,
		Details: wfErr.Details,
	}
	s.recordEvent(ctx, sr.runID, domain.EventTypeStageFailed, payload)

	errData, _ := json.Marshal(payload)
	if err := s.store.UpdateRunCompleted(ctx, sr.runID, domain.RunStatusFailed, errData); err != nil {
		s.logger.Error("failed to complete run", zap.String("run_id", sr.runID), zap.Error(err))
	}
}

// loadClient returns the client if it exists and is owned by caller.
func (s *Service) loadClient(ctx context.Context, caller auth.Identity, clientID string) (*domain.Client, error) {
	client, err := s.store.GetClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	if client == nil || client.OwnerID != caller.ClinicianID {
		return nil, domain.NotFound("Client not found")
	}
	return client, nil
}

// loadSession returns the session if it exists and belongs to the client.
func (s *Service) loadSession(ctx context.Context, clientID, sessionID string) (*domain.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if session == nil || session.ClientID != clientID {
		return nil, domain.NotFound("Session not found")
	}
	return session, nil
}

// callCollaborator calls a collaborator and records the call on the run.
// A failed call is returned as UpstreamFailure naming the collaborator.
func (s *Service) callCollaborator(ctx context.Context, sr *stageRun, name domain.Collaborator, payload interface{}) (*domain.CollaboratorResult, error) {
	s.recordEvent(ctx, sr.runID, domain.EventTypeCollaboratorCallStarted, domain.CollaboratorCallPayload{Collaborator: name})

	start := time.Now()
	result, err := s.gateway.Call(ctx, name, sr.caller.ClinicianID, payload)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		details := err.Error()
		var upErr *collaborator.UpstreamError
		if errors.As(err, &upErr) {
			details = upErr.Message
		}
		s.recordEvent(ctx, sr.runID, domain.EventTypeCollaboratorCallFailed, domain.CollaboratorCallPayload{
			Collaborator: name,
			DurationMs:   elapsed,
			Error:        details,
		})
		return nil, domain.UpstreamFailure(name, details, err)
	}

	s.recordEvent(ctx, sr.runID, domain.EventTypeCollaboratorCallDone, domain.CollaboratorCallPayload{
		Collaborator: name,
		DurationMs:   elapsed,
	})
	return result, nil
}

// screen runs the risk screener over the client's intake narrative.
func (s *Service) screen(ctx context.Context, sr *stageRun, data domain.ClientData) (bool, domain.Priority, error) {
	riskFactor, err := s.screener.Screen(ctx, data.InitialAssessment())
	if err != nil {
		return false, "", fmt.Errorf("failed to screen client data: %w", err)
	}
	priority := domain.PriorityFor(riskFactor)
	s.recordEvent(ctx, sr.runID, domain.EventTypeRiskScreened, domain.RiskScreenedPayload{
		RiskFactor: riskFactor,
		Priority:   priority,
	})
	return riskFactor, priority, nil
}

// updateClient applies an assessment update to the client and records it on the run.
func (s *Service) updateClient(ctx context.Context, sr *stageRun, update store.ClientAssessmentUpdate) error {
	if err := s.store.UpdateClientAssessment(ctx, sr.client.ID, update); err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	payload := domain.ClientUpdatedPayload{
		LastIntakeAssessment: update.LastIntakeAssessment,
		LastReassessment:     update.LastReassessment,
	}
	if update.RiskLevel != nil {
		payload.RiskLevel = *update.RiskLevel
	}
	s.recordEvent(ctx, sr.runID, domain.EventTypeClientUpdated, payload)
	return nil
}

// resolveRisk picks the risk level reported by a fresh assessment, falling back to prior and then unknown.
func resolveRisk(fresh *domain.CollaboratorResult, prior domain.RiskLevel) domain.RiskLevel {
	if level, ok := fresh.Risk(); ok {
		return level
	}
	if level, ok := domain.ParseRiskLevel(string(prior)); ok {
		return level
	}
	return domain.RiskUnknown
}

func requestSessionID(req domain.StageRequest) string {
	switch r := req.(type) {
	case domain.PreSessionRequest:
		return r.SessionID
	case domain.PostSessionRequest:
		return r.SessionID
	}
	return ""
}
