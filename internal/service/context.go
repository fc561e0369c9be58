package service

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
	"github.com/davidanoel/cognicare-sub000/internal/repository"
)

// priorSessions returns summaries of the client's most recent documented sessions,
// excluding excludeID when set.
func (s *Service) priorSessions(ctx context.Context, clientID, excludeID string) ([]domain.SessionSummary, error) {
	sessions, err := s.store.ListDocumentedSessions(ctx, store.SessionFilter{
		ClientID:  clientID,
		ExcludeID: excludeID,
		Limit:     s.config.Context.PriorSessions,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list prior sessions: %w", err)
	}

	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		summaries = append(summaries, summarizeSession(sess, s.config.Context.NotesMaxChars))
	}
	return summaries, nil
}

// reportHistory returns up to limit reports of one type, most recent first.
func (s *Service) reportHistory(ctx context.Context, clientID string, typ domain.ReportType, excludeSessionID string, limit int) ([]domain.AIReport, error) {
	reports, err := s.store.ListReports(ctx, store.ReportFilter{
		ClientID:         clientID,
		Type:             typ,
		ExcludeSessionID: excludeSessionID,
		Limit:            limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s reports: %w", typ, err)
	}
	if reports == nil {
		reports = []domain.AIReport{}
	}
	return reports, nil
}

// latestReport returns the most recent report of a type, or nil.
func (s *Service) latestReport(ctx context.Context, clientID string, typ domain.ReportType, excludeSessionID string) (*domain.AIReport, error) {
	reports, err := s.reportHistory(ctx, clientID, typ, excludeSessionID, 1)
	if err != nil || len(reports) == 0 {
		return nil, err
	}
	return &reports[0], nil
}

// sessionContext is the history forwarded to the post-session collaborators.
type sessionContext struct {
	PriorSessions []domain.SessionSummary
	Assessment    *domain.AIReport
	Diagnostic    *domain.AIReport
	Treatment     *domain.AIReport
	Progress      []domain.AIReport
	Documentation []domain.AIReport
}

// assembleSessionContext gathers the history of a session. The reads are independent and run in parallel.
func (s *Service) assembleSessionContext(ctx context.Context, clientID, sessionID string) (*sessionContext, error) {
	var out sessionContext
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		out.PriorSessions, err = s.priorSessions(gctx, clientID, sessionID)
		return err
	})
	g.Go(func() (err error) {
		out.Assessment, err = s.latestReport(gctx, clientID, domain.CollaboratorAssessment, "")
		return err
	})
	g.Go(func() (err error) {
		out.Diagnostic, err = s.latestReport(gctx, clientID, domain.CollaboratorDiagnostic, "")
		return err
	})
	g.Go(func() (err error) {
		out.Treatment, err = s.latestReport(gctx, clientID, domain.CollaboratorTreatment, "")
		return err
	})
	g.Go(func() (err error) {
		out.Progress, err = s.reportHistory(gctx, clientID, domain.CollaboratorProgress, sessionID, s.config.Context.ProgressHistory)
		return err
	})
	g.Go(func() (err error) {
		out.Documentation, err = s.reportHistory(gctx, clientID, domain.CollaboratorDocumentation, sessionID, s.config.Context.DocumentationHistory)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &out, nil
}

// latestDocumentation returns the most recent prior documentation report, or nil.
func (c *sessionContext) latestDocumentation() *domain.AIReport {
	if len(c.Documentation) == 0 {
		return nil
	}
	return &c.Documentation[0]
}

func (c *sessionContext) assembledPayload() domain.ContextAssembledPayload {
	return domain.ContextAssembledPayload{
		PriorSessions:        len(c.PriorSessions),
		HasAssessment:        c.Assessment != nil,
		HasDiagnostic:        c.Diagnostic != nil,
		HasTreatment:         c.Treatment != nil,
		ProgressReports:      len(c.Progress),
		DocumentationReports: len(c.Documentation),
	}
}

func summarizeSession(sess domain.Session, maxNotes int) domain.SessionSummary {
	return domain.SessionSummary{
		ID:         sess.ID,
		Date:       sess.Date,
		MoodRating: sess.MoodRating,
		Status:     sess.Status,
		Notes:      truncateNotes(sess.Notes, maxNotes),
		Documented: sess.Documented,
	}
}

// truncateNotes cuts notes to limit runes, appending an ellipsis when cut.
func truncateNotes(notes string, limit int) string {
	runes := []rune(notes)
	if len(runes) <= limit {
		return notes
	}
	return string(runes[:limit]) + "..."
}

// reportContent returns the report content, or nil when there is no report.
func reportContent(report *domain.AIReport) json.RawMessage {
	if report == nil {
		return nil
	}
	return report.Content
}
