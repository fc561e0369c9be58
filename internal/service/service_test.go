package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/davidanoel/cognicare-sub000/internal/adapter/collaborator"
	"github.com/davidanoel/cognicare-sub000/internal/auth"
	"github.com/davidanoel/cognicare-sub000/internal/config"
	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
	"github.com/davidanoel/cognicare-sub000/internal/telemetry"
	"github.com/davidanoel/cognicare-sub000/policy"
	"github.com/davidanoel/cognicare-sub000/tests/helpers"
)

var (
	fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	caller   = auth.Identity{ClinicianID: "clinician-1"}
)

type fakeGateway struct {
	mu        sync.Mutex
	responses map[domain.Collaborator]string
	failures  map[domain.Collaborator]error
	panics    map[domain.Collaborator]bool
	calls     []domain.Collaborator
	payloads  map[domain.Collaborator][]map[string]interface{}
	callers   []string
	onCall    func(name domain.Collaborator)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		responses: make(map[domain.Collaborator]string),
		failures:  make(map[domain.Collaborator]error),
		panics:    make(map[domain.Collaborator]bool),
		payloads:  make(map[domain.Collaborator][]map[string]interface{}),
	}
}

func (f *fakeGateway) Call(ctx context.Context, name domain.Collaborator, callerID string, payload interface{}) (*domain.CollaboratorResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, name)
	f.callers = append(f.callers, callerID)
	f.payloads[name] = append(f.payloads[name], decoded)
	resp := f.responses[name]
	failure := f.failures[name]
	shouldPanic := f.panics[name]
	onCall := f.onCall
	f.mu.Unlock()

	if onCall != nil {
		onCall(name)
	}

	if shouldPanic {
		panic("collaborator exploded")
	}
	if failure != nil {
		return nil, failure
	}
	if resp == "" {
		resp = `{"content":{"collaborator":"` + string(name) + `"}}`
	}
	var result domain.CollaboratorResult
	if err := json.Unmarshal([]byte(resp), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (f *fakeGateway) lastPayload(name domain.Collaborator) map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.payloads[name]
	if len(p) == 0 {
		return nil
	}
	return p[len(p)-1]
}

func newTestService(t *testing.T) (*Service, *store.SQLiteStore, *fakeGateway) {
	t.Helper()

	st := helpers.NewTestSQLiteStore(t)
	cfg := config.Default()
	cfg.Auth.CallerSecret = "caller"
	cfg.Auth.ServiceSecret = "service"

	engine, err := policy.NewEngine(context.Background(), policy.DefaultPolicy, cfg.Screening.Keywords)
	require.NoError(t, err)

	gw := newFakeGateway()
	svc := New(st, gw, engine, cfg, zap.NewNop(), telemetry.NewMetrics())
	svc.now = func() time.Time { return fixedNow }
	return svc, st, gw
}

func intakeRequest(clientID, narrative string) domain.WorkflowRequest {
	data, _ := json.Marshal(map[string]string{"initialAssessment": narrative})
	return domain.WorkflowRequest{Stage: domain.StageIntake, ClientID: clientID, ClientData: data}
}

func requireWorkflowError(t *testing.T, err error, kind domain.ErrorKind) *domain.WorkflowError {
	t.Helper()
	var wfErr *domain.WorkflowError
	require.True(t, errors.As(err, &wfErr), "expected WorkflowError, got %v", err)
	require.Equal(t, kind, wfErr.Kind)
	return wfErr
}

func TestRunWorkflowRequiresCaller(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskUnknown)

	_, _, err := svc.RunWorkflow(context.Background(), auth.Identity{}, intakeRequest("c1", "hello"))
	wfErr := requireWorkflowError(t, err, domain.ErrUnauthorized)
	assert.Equal(t, "Unauthorized", wfErr.Message)
	assert.Empty(t, gw.calls)
}

func TestRunWorkflowValidation(t *testing.T) {
	svc, _, gw := newTestService(t)

	tests := []struct {
		name string
		req  domain.WorkflowRequest
		want string
	}{
		{"missing stage", domain.WorkflowRequest{ClientID: "c1"}, "Missing required fields"},
		{"missing client", domain.WorkflowRequest{Stage: domain.StageIntake}, "Missing required fields"},
		{"unknown stage", domain.WorkflowRequest{Stage: "discharge", ClientID: "c1"}, "Invalid workflow stage: discharge"},
		{"intake without data", domain.WorkflowRequest{Stage: domain.StageIntake, ClientID: "c1"}, "Invalid client data"},
		{"intake with null data", domain.WorkflowRequest{Stage: domain.StageIntake, ClientID: "c1", ClientData: json.RawMessage("null")}, "Invalid client data"},
		{"periodic with array data", domain.WorkflowRequest{Stage: domain.StagePeriodicAssessment, ClientID: "c1", ClientData: json.RawMessage("[1]")}, "Invalid client data"},
		{"post-session without session", domain.WorkflowRequest{Stage: domain.StagePostSession, ClientID: "c1"}, "Session ID is required for post-session workflow"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runID, _, err := svc.RunWorkflow(context.Background(), caller, tt.req)
			wfErr := requireWorkflowError(t, err, domain.ErrBadRequest)
			assert.Equal(t, tt.want, wfErr.Message)
			assert.Empty(t, runID)
		})
	}
	assert.Empty(t, gw.calls)
}

func TestRunWorkflowClientNotFound(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "foreign", "clinician-2", domain.RiskUnknown)

	for _, clientID := range []string{"missing", "foreign"} {
		_, _, err := svc.RunWorkflow(context.Background(), caller, intakeRequest(clientID, "hello"))
		wfErr := requireWorkflowError(t, err, domain.ErrNotFound)
		assert.Equal(t, "Client not found", wfErr.Message)
	}
	assert.Empty(t, gw.calls)
}

func TestIntakeRiskScreening(t *testing.T) {
	tests := []struct {
		name       string
		narrative  string
		priority   string
		riskFactor bool
	}{
		{"routine", "routine check-in", "normal", false},
		{"suicidal ideation", "client expressed suicidal ideation", "high", true},
		{"mixed case", "History of ABUSE in childhood", "high", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st, gw := newTestService(t)
			helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskUnknown)

			_, _, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", tt.narrative))
			require.NoError(t, err)

			payload := gw.lastPayload(domain.CollaboratorAssessment)
			require.NotNil(t, payload)
			assert.Equal(t, tt.priority, payload["priority"])
			assert.Equal(t, tt.riskFactor, payload["riskFactor"])
			assert.Equal(t, "c1", payload["clientId"])

			sessionData, ok := payload["sessionData"]
			assert.True(t, ok, "sessionData must be sent")
			assert.Nil(t, sessionData)
		})
	}
}

func TestIntakeUpdatesClient(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)
	gw.responses[domain.CollaboratorAssessment] = `{"content":{"riskLevel":"High","notes":"x"}}`

	runID, result, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", "routine check-in"))
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	intake, ok := result.(*domain.IntakeResult)
	require.True(t, ok)
	assert.Equal(t, "Intake workflow completed successfully", intake.Message)
	assert.JSONEq(t, `{"content":{"riskLevel":"High","notes":"x"}}`, string(intake.AssessmentResults.Raw))
	assert.Equal(t, []domain.Collaborator{domain.CollaboratorAssessment, domain.CollaboratorDiagnostic}, gw.calls)
	assert.Equal(t, []string{"clinician-1", "clinician-1"}, gw.callers)

	diag := gw.lastPayload(domain.CollaboratorDiagnostic)
	assert.Equal(t, map[string]interface{}{"riskLevel": "High", "notes": "x"}, diag["assessmentResults"].(map[string]interface{})["content"])

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, client.RiskLevel)
	require.NotNil(t, client.LastIntakeAssessment)
	require.NotNil(t, client.LastReassessment)
	assert.True(t, client.LastIntakeAssessment.Equal(fixedNow))
	assert.True(t, client.LastReassessment.Equal(*client.LastIntakeAssessment))
	assert.Equal(t, int64(1), client.Version)

	run, err := svc.GetRun(context.Background(), caller, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusDone, run.Status)

	events, err := svc.GetRunEvents(context.Background(), caller, runID, 0, 0)
	require.NoError(t, err)
	var types []domain.EventType
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, domain.EventTypeStageStarted, types[0])
	assert.Equal(t, domain.EventTypeStageDone, types[len(types)-1])
	assert.Contains(t, types, domain.EventTypeRiskScreened)
	assert.Contains(t, types, domain.EventTypeClientUpdated)
}

func TestIntakeRiskDefaultsToUnknown(t *testing.T) {
	svc, st, _ := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskModerate)

	_, _, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", "routine"))
	require.NoError(t, err)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskUnknown, client.RiskLevel)
}

func TestIntakeAssessmentFailureAbortsStage(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskUnknown)
	gw.failures[domain.CollaboratorAssessment] = &collaborator.UpstreamError{
		Collaborator: domain.CollaboratorAssessment,
		StatusCode:   502,
		Message:      "model overloaded",
	}

	runID, result, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", "routine"))
	assert.Nil(t, result)
	wfErr := requireWorkflowError(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, domain.CollaboratorAssessment, wfErr.Stage)
	assert.Equal(t, "Assessment agent failed", wfErr.Message)
	assert.Equal(t, "model overloaded", wfErr.Details)
	assert.Equal(t, []domain.Collaborator{domain.CollaboratorAssessment}, gw.calls)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), client.Version)
	assert.Nil(t, client.LastIntakeAssessment)

	run, err := svc.GetRun(context.Background(), caller, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.JSONEq(t, `{"kind":"upstream_failure","stage":"assessment","message":"Assessment agent failed","details":"model overloaded"}`, string(run.Error))
}

func TestIntakeDiagnosticFailureNamesStage(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskUnknown)
	gw.failures[domain.CollaboratorDiagnostic] = errors.New("connection refused")

	_, _, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", "routine"))
	wfErr := requireWorkflowError(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, domain.CollaboratorDiagnostic, wfErr.Stage)
	assert.Equal(t, "Diagnostic agent failed", wfErr.Message)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), client.Version)
}

func TestRunWorkflowRecoversPanic(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskUnknown)
	gw.panics[domain.CollaboratorAssessment] = true

	runID, _, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", "routine"))
	wfErr := requireWorkflowError(t, err, domain.ErrWorkflowFailed)
	assert.Equal(t, "Workflow failed", wfErr.Message)
	assert.Empty(t, wfErr.Details)

	run, err := svc.GetRun(context.Background(), caller, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
}

func TestRunWorkflowClosesRunWhenCallerCancels(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskUnknown)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gw.onCall = func(name domain.Collaborator) {
		if name == domain.CollaboratorAssessment {
			cancel()
		}
	}
	gw.failures[domain.CollaboratorAssessment] = context.Canceled

	runID, _, err := svc.RunWorkflow(ctx, caller, intakeRequest("c1", "routine"))
	requireWorkflowError(t, err, domain.ErrUpstreamFailure)
	require.NotEmpty(t, runID)

	run, err := svc.GetRun(context.Background(), caller, runID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.NotNil(t, run.EndedAt)

	events, err := svc.GetRunEvents(context.Background(), caller, runID, 0, 0)
	require.NoError(t, err)
	require.NotEmpty(t, events)
	assert.Equal(t, domain.EventTypeStageFailed, events[len(events)-1].Type)
}

func TestPreSessionReassessWithoutHistory(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskModerate)
	gw.responses[domain.CollaboratorAssessment] = `{"content":{"summary":"stable"}}`

	_, result, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:          domain.StagePreSession,
		ClientID:       "c1",
		ShouldReassess: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.Collaborator{
		domain.CollaboratorAssessment,
		domain.CollaboratorDiagnostic,
		domain.CollaboratorTreatment,
	}, gw.calls)

	treatment := gw.lastPayload(domain.CollaboratorTreatment)
	assert.Equal(t, float64(1), treatment["sessionNumber"])
	assert.Equal(t, []interface{}{}, treatment["previousSessions"])
	assert.Equal(t, true, treatment["isReassessment"])
	assert.NotNil(t, treatment["assessmentResults"])
	assert.NotNil(t, treatment["diagnosticResults"])
	assert.Nil(t, treatment["sessionData"])

	assessment := gw.lastPayload(domain.CollaboratorAssessment)
	assert.Equal(t, true, assessment["isReassessment"])
	assert.Equal(t, "c1", assessment["clientData"].(map[string]interface{})["id"])

	pre := result.(*domain.PreSessionResult)
	assert.NotNil(t, pre.NewAssessment)
	assert.NotNil(t, pre.NewDiagnostic)
	assert.Equal(t, "Pre-session workflow completed successfully", pre.Message)

	// No risk level in the fresh assessment keeps the stored one.
	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskModerate, client.RiskLevel)
	require.NotNil(t, client.LastReassessment)
	assert.True(t, client.LastReassessment.Equal(fixedNow))
	assert.Nil(t, client.LastIntakeAssessment)
}

func TestPreSessionWithholdsStoredResultsWhenDocumented(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	helpers.SeedSession(t, st, "s1", "c1", base, true)
	helpers.SeedSession(t, st, "s2", "c1", base.AddDate(0, 0, 7), false)
	helpers.SeedReport(t, st, "a1", "c1", "", domain.CollaboratorAssessment, `{"riskLevel":"low"}`, base)
	helpers.SeedReport(t, st, "d1", "c1", "", domain.CollaboratorDiagnostic, `{"dx":"none"}`, base)
	helpers.SeedReport(t, st, "doc1", "c1", "s1", domain.CollaboratorDocumentation, `{"note":"s1"}`, base)

	_, result, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:     domain.StagePreSession,
		ClientID:  "c1",
		SessionID: "s2",
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.Collaborator{domain.CollaboratorTreatment}, gw.calls)

	treatment := gw.lastPayload(domain.CollaboratorTreatment)
	assert.Contains(t, treatment, "assessmentResults")
	assert.Nil(t, treatment["assessmentResults"])
	assert.Nil(t, treatment["diagnosticResults"])
	assert.Equal(t, float64(2), treatment["sessionNumber"])
	assert.Equal(t, false, treatment["isReassessment"])
	assert.Equal(t, "doc1", treatment["previousDocumentation"].(map[string]interface{})["id"])
	assert.Equal(t, "s2", treatment["sessionData"].(map[string]interface{})["id"])

	pre := result.(*domain.PreSessionResult)
	assert.Nil(t, pre.NewAssessment)
	assert.Nil(t, pre.NewDiagnostic)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), client.Version)
}

func TestPreSessionSendsStoredResultsWithoutDocumentation(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	helpers.SeedReport(t, st, "a1", "c1", "", domain.CollaboratorAssessment, `{"riskLevel":"low"}`, base)

	_, _, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:    domain.StagePreSession,
		ClientID: "c1",
	})
	require.NoError(t, err)

	treatment := gw.lastPayload(domain.CollaboratorTreatment)
	assert.Equal(t, map[string]interface{}{"riskLevel": "low"}, treatment["assessmentResults"])
	assert.Nil(t, treatment["diagnosticResults"])
	assert.Nil(t, treatment["previousDocumentation"])
}

func TestPreSessionUnknownSession(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)
	helpers.SeedClient(t, st, "c2", "clinician-1", domain.RiskLow)
	helpers.SeedSession(t, st, "other", "c2", time.Now(), false)

	for _, sessionID := range []string{"missing", "other"} {
		_, _, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
			Stage:     domain.StagePreSession,
			ClientID:  "c1",
			SessionID: sessionID,
		})
		wfErr := requireWorkflowError(t, err, domain.ErrNotFound)
		assert.Equal(t, "Session not found", wfErr.Message)
	}
	assert.Empty(t, gw.calls)
}

func TestPostSessionMissingSession(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)

	runID, _, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:     domain.StagePostSession,
		ClientID:  "c1",
		SessionID: "nope",
	})
	wfErr := requireWorkflowError(t, err, domain.ErrNotFound)
	assert.Equal(t, map[string]string{"error": "Session not found"}, wfErr.Body())
	assert.Empty(t, gw.calls)
	assert.Empty(t, runID, "no run is opened for a missing session")

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), client.Version)
}

func seedPostSessionHistory(t *testing.T, st store.Store) {
	t.Helper()
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)
	helpers.SeedSession(t, st, "s1", "c1", base, true)
	helpers.SeedSession(t, st, "s2", "c1", base.AddDate(0, 0, 7), true)
	helpers.SeedSession(t, st, "s3", "c1", base.AddDate(0, 0, 14), false)

	helpers.SeedReport(t, st, "a1", "c1", "", domain.CollaboratorAssessment, `{"riskLevel":"low"}`, base)
	helpers.SeedReport(t, st, "t1", "c1", "", domain.CollaboratorTreatment, `{"plan":"cbt"}`, base)
	helpers.SeedReport(t, st, "p1", "c1", "s1", domain.CollaboratorProgress, `{"p":1}`, base)
	helpers.SeedReport(t, st, "p3", "c1", "s3", domain.CollaboratorProgress, `{"p":3}`, base.AddDate(0, 0, 14))
	helpers.SeedReport(t, st, "doc1", "c1", "s1", domain.CollaboratorDocumentation, `{"d":1}`, base)
	helpers.SeedReport(t, st, "doc2", "c1", "s2", domain.CollaboratorDocumentation, `{"d":2}`, base.AddDate(0, 0, 7))
	helpers.SeedReport(t, st, "doc3", "c1", "s3", domain.CollaboratorDocumentation, `{"d":3}`, base.AddDate(0, 0, 14))
}

func TestPostSessionDocumentsSessionAndCarriesRisk(t *testing.T) {
	svc, st, gw := newTestService(t)
	seedPostSessionHistory(t, st)
	gw.responses[domain.CollaboratorProgress] = `{"content":{"trend":"worse"},"riskLevel":"high","recommendReassessment":true,"reassessmentRationale":"elevated distress"}`

	_, result, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:     domain.StagePostSession,
		ClientID:  "c1",
		SessionID: "s3",
	})
	require.NoError(t, err)

	post := result.(*domain.PostSessionResult)
	assert.True(t, post.RecommendReassessment)
	assert.Equal(t, "elevated distress", post.ReassessmentRationale)
	assert.Equal(t, "Post-session workflow completed successfully", post.Message)
	assert.Equal(t, []domain.Collaborator{domain.CollaboratorProgress, domain.CollaboratorDocumentation}, gw.calls)

	progress := gw.lastPayload(domain.CollaboratorProgress)
	assert.Equal(t, float64(3), progress["sessionNumber"])
	assert.Len(t, progress["previousSessions"], 2)
	assert.Len(t, progress["previousProgress"], 1)
	assert.Equal(t, map[string]interface{}{"riskLevel": "low"}, progress["assessmentResults"])
	assert.Nil(t, progress["diagnosticResults"])
	assert.Equal(t, map[string]interface{}{"plan": "cbt"}, progress["treatmentResults"])
	assert.NotContains(t, progress, "previousDocumentation")

	documentation := gw.lastPayload(domain.CollaboratorDocumentation)
	assert.Equal(t, "doc2", documentation["previousDocumentation"].(map[string]interface{})["id"])
	assert.Equal(t, "elevated distress", documentation["progressResults"].(map[string]interface{})["reassessmentRationale"])
	assert.Equal(t, float64(3), documentation["sessionNumber"])

	session, err := st.GetSession(context.Background(), "s3")
	require.NoError(t, err)
	assert.True(t, session.Documented)
	require.NotNil(t, session.CompletedAt)
	assert.True(t, session.CompletedAt.Equal(fixedNow))

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, client.RiskLevel)
}

func TestPostSessionDefaults(t *testing.T) {
	svc, st, _ := newTestService(t)
	seedPostSessionHistory(t, st)

	_, result, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:     domain.StagePostSession,
		ClientID:  "c1",
		SessionID: "s3",
	})
	require.NoError(t, err)

	post := result.(*domain.PostSessionResult)
	assert.False(t, post.RecommendReassessment)
	assert.Equal(t, "No rationale provided", post.ReassessmentRationale)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLow, client.RiskLevel)
	assert.Equal(t, int64(0), client.Version)
}

func TestPostSessionRiskSurvivesMistypedFlag(t *testing.T) {
	svc, st, gw := newTestService(t)
	seedPostSessionHistory(t, st)
	gw.responses[domain.CollaboratorProgress] = `{"riskLevel":"high","recommendReassessment":"yes","reassessmentRationale":"worse sleep"}`

	_, result, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:     domain.StagePostSession,
		ClientID:  "c1",
		SessionID: "s3",
	})
	require.NoError(t, err)

	post := result.(*domain.PostSessionResult)
	assert.False(t, post.RecommendReassessment)
	assert.Equal(t, "worse sleep", post.ReassessmentRationale)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskHigh, client.RiskLevel)
}

func TestPostSessionDocumentationFailureLeavesSessionUndocumented(t *testing.T) {
	svc, st, gw := newTestService(t)
	seedPostSessionHistory(t, st)
	gw.responses[domain.CollaboratorProgress] = `{"riskLevel":"severe"}`
	gw.failures[domain.CollaboratorDocumentation] = &collaborator.UpstreamError{
		Collaborator: domain.CollaboratorDocumentation,
		StatusCode:   500,
		Message:      "Request failed with status 500",
	}

	_, _, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:     domain.StagePostSession,
		ClientID:  "c1",
		SessionID: "s3",
	})
	wfErr := requireWorkflowError(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, map[string]string{
		"error":   "Documentation agent failed",
		"details": "Request failed with status 500",
	}, wfErr.Body())

	session, err := st.GetSession(context.Background(), "s3")
	require.NoError(t, err)
	assert.False(t, session.Documented)
	assert.Nil(t, session.CompletedAt)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskLow, client.RiskLevel)
}

func TestPeriodicAssessmentConvergesToLatestRun(t *testing.T) {
	svc, st, gw := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)
	base := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	helpers.SeedSession(t, st, "s1", "c1", base, true)

	req := domain.WorkflowRequest{
		Stage:      domain.StagePeriodicAssessment,
		ClientID:   "c1",
		ClientData: json.RawMessage(`{"initialAssessment":"ongoing crisis at work"}`),
	}

	gw.responses[domain.CollaboratorAssessment] = `{"riskLevel":"moderate"}`
	_, _, err := svc.RunWorkflow(context.Background(), caller, req)
	require.NoError(t, err)

	second := fixedNow.Add(time.Hour)
	svc.now = func() time.Time { return second }
	gw.responses[domain.CollaboratorAssessment] = `{"riskLevel":"severe"}`
	_, result, err := svc.RunWorkflow(context.Background(), caller, req)
	require.NoError(t, err)

	periodic := result.(*domain.PeriodicAssessmentResult)
	assert.Equal(t, "Periodic assessment completed successfully", periodic.Message)
	assert.Len(t, gw.payloads[domain.CollaboratorAssessment], 2)

	assessment := gw.lastPayload(domain.CollaboratorAssessment)
	assert.Equal(t, "high", assessment["priority"])
	assert.Equal(t, true, assessment["isReassessment"])
	assert.Len(t, assessment["previousSessions"], 1)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskSevere, client.RiskLevel)
	require.NotNil(t, client.LastReassessment)
	assert.True(t, client.LastReassessment.Equal(second))
	assert.Nil(t, client.LastIntakeAssessment)
	assert.Equal(t, int64(2), client.Version)
}

func TestPeriodicAssessmentRiskFallsBackToStoredValue(t *testing.T) {
	svc, st, _ := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskModerate)

	_, _, err := svc.RunWorkflow(context.Background(), caller, domain.WorkflowRequest{
		Stage:      domain.StagePeriodicAssessment,
		ClientID:   "c1",
		ClientData: json.RawMessage(`{"riskLevel":"severe"}`),
	})
	require.NoError(t, err)

	client, err := st.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, domain.RiskModerate, client.RiskLevel)
}

func TestGetRunIsOwnerScoped(t *testing.T) {
	svc, st, _ := newTestService(t)
	helpers.SeedClient(t, st, "c1", "clinician-1", domain.RiskLow)

	runID, _, err := svc.RunWorkflow(context.Background(), caller, intakeRequest("c1", "routine"))
	require.NoError(t, err)

	_, err = svc.GetRun(context.Background(), auth.Identity{ClinicianID: "clinician-2"}, runID)
	requireWorkflowError(t, err, domain.ErrNotFound)

	_, err = svc.GetRunEvents(context.Background(), auth.Identity{ClinicianID: "clinician-2"}, runID, 0, 10)
	requireWorkflowError(t, err, domain.ErrNotFound)

	_, err = svc.GetRun(context.Background(), caller, "run_missing")
	requireWorkflowError(t, err, domain.ErrNotFound)
}
