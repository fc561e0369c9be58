package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/davidanoel/cognicare-sub000/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS clients (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT,
			phone TEXT,
			date_of_birth DATETIME,
			initial_assessment TEXT,
			risk_level TEXT NOT NULL DEFAULT 'unknown',
			last_intake_assessment DATETIME,
			last_reassessment DATETIME,
			version INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_clients_owner ON clients(owner_id)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			date DATETIME NOT NULL,
			notes TEXT,
			mood_rating INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'scheduled',
			documented INTEGER NOT NULL DEFAULT 0,
			completed_at DATETIME,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_client_documented ON sessions(client_id, documented, date)`,
		`CREATE TABLE IF NOT EXISTS ai_reports (
			id TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			session_id TEXT,
			type TEXT NOT NULL,
			content TEXT,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ai_reports_client_type ON ai_reports(client_id, type, timestamp)`,
		`CREATE TABLE IF NOT EXISTS workflow_runs (
			run_id TEXT PRIMARY KEY,
			stage TEXT NOT NULL,
			client_id TEXT NOT NULL,
			session_id TEXT,
			owner_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_runs_client ON workflow_runs(client_id, started_at)`,
		`CREATE TABLE IF NOT EXISTS workflow_events (
			event_id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			ts INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload TEXT,
			FOREIGN KEY (run_id) REFERENCES workflow_runs(run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_events_run ON workflow_events(run_id, ts)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateClient creates a new client.
func (s *SQLiteStore) CreateClient(ctx context.Context, client *domain.Client) error {
	if client.RiskLevel == "" {
		client.RiskLevel = domain.RiskUnknown
	}
	if client.CreatedAt.IsZero() {
		client.CreatedAt = time.Now()
	}
	if client.UpdatedAt.IsZero() {
		client.UpdatedAt = client.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO clients (id, owner_id, first_name, last_name, email, phone, date_of_birth, initial_assessment,
			risk_level, last_intake_assessment, last_reassessment, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID, client.OwnerID, client.FirstName, client.LastName,
		nullString(client.Email), nullString(client.Phone), nullTime(client.DateOfBirth),
		nullString(client.InitialAssessment), string(client.RiskLevel),
		nullTime(client.LastIntakeAssessment), nullTime(client.LastReassessment),
		client.Version, client.CreatedAt.UTC(), client.UpdatedAt.UTC())
	return err
}

// GetClient retrieves a client by ID.
func (s *SQLiteStore) GetClient(ctx context.Context, clientID string) (*domain.Client, error) {
	var client domain.Client
	var email, phone, initial sql.NullString
	var dob, lastIntake, lastReassess sql.NullTime
	var risk string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, first_name, last_name, email, phone, date_of_birth, initial_assessment,
			risk_level, last_intake_assessment, last_reassessment, version, created_at, updated_at
		FROM clients WHERE id = ?`, clientID).Scan(
		&client.ID, &client.OwnerID, &client.FirstName, &client.LastName, &email, &phone, &dob, &initial,
		&risk, &lastIntake, &lastReassess, &client.Version, &client.CreatedAt, &client.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	client.Email = email.String
	client.Phone = phone.String
	client.InitialAssessment = initial.String
	client.RiskLevel = domain.RiskLevel(risk)
	client.DateOfBirth = timePtr(dob)
	client.LastIntakeAssessment = timePtr(lastIntake)
	client.LastReassessment = timePtr(lastReassess)
	return &client, nil
}

// UpdateClientAssessment writes the assessment fields of a client in one statement.
// Concurrent updates are last-write-wins; version is bumped on every write.
func (s *SQLiteStore) UpdateClientAssessment(ctx context.Context, clientID string, update ClientAssessmentUpdate) error {
	sets := []string{"version = version + 1", "updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	if update.RiskLevel != nil {
		sets = append(sets, "risk_level = ?")
		args = append(args, string(*update.RiskLevel))
	}
	if update.LastIntakeAssessment != nil {
		sets = append(sets, "last_intake_assessment = ?")
		args = append(args, update.LastIntakeAssessment.UTC())
	}
	if update.LastReassessment != nil {
		sets = append(sets, "last_reassessment = ?")
		args = append(args, update.LastReassessment.UTC())
	}
	args = append(args, clientID)

	result, err := s.db.ExecContext(ctx,
		`UPDATE clients SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// CreateSession creates a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.Status == "" {
		session.Status = "scheduled"
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, client_id, date, notes, mood_rating, status, documented, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.ClientID, session.Date.UTC(), nullString(session.Notes), session.MoodRating,
		session.Status, session.Documented, nullTime(session.CompletedAt), session.CreatedAt.UTC())
	return err
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT id, client_id, date, notes, mood_rating, status, documented, completed_at, created_at
		FROM sessions WHERE id = ?`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return session, nil
}

// ListDocumentedSessions returns documented sessions for a client ordered by date descending.
func (s *SQLiteStore) ListDocumentedSessions(ctx context.Context, filter SessionFilter) ([]domain.Session, error) {
	query := `SELECT id, client_id, date, notes, mood_rating, status, documented, completed_at, created_at
		FROM sessions WHERE client_id = ? AND documented = 1`
	args := []interface{}{filter.ClientID}

	if filter.ExcludeID != "" {
		query += ` AND id != ?`
		args = append(args, filter.ExcludeID)
	}
	query += ` ORDER BY date DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// MarkSessionDocumented sets documented and completed_at. documented is never cleared.
func (s *SQLiteStore) MarkSessionDocumented(ctx context.Context, sessionID string, completedAt time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET documented = 1, completed_at = ? WHERE id = ?`,
		completedAt.UTC(), sessionID)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// CreateReport appends a report.
func (s *SQLiteStore) CreateReport(ctx context.Context, report *domain.AIReport) error {
	if report.Metadata.Timestamp.IsZero() {
		report.Metadata.Timestamp = time.Now()
	}
	var content interface{}
	if len(report.Content) > 0 {
		content = string(report.Content)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_reports (id, client_id, session_id, type, content, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		report.ID, report.ClientID, nullString(report.SessionID), string(report.Type), content,
		report.Metadata.Timestamp.UTC())
	return err
}

// ListReports returns reports matching the filter ordered by timestamp descending.
func (s *SQLiteStore) ListReports(ctx context.Context, filter ReportFilter) ([]domain.AIReport, error) {
	query := `SELECT id, client_id, session_id, type, content, timestamp FROM ai_reports WHERE client_id = ? AND type = ?`
	args := []interface{}{filter.ClientID, string(filter.Type)}

	if filter.ExcludeSessionID != "" {
		query += ` AND (session_id IS NULL OR session_id != ?)`
		args = append(args, filter.ExcludeSessionID)
	}
	query += ` ORDER BY timestamp DESC, rowid DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []domain.AIReport
	for rows.Next() {
		var r domain.AIReport
		var sessionID, content sql.NullString
		var reportType string
		if err := rows.Scan(&r.ID, &r.ClientID, &sessionID, &reportType, &content, &r.Metadata.Timestamp); err != nil {
			return nil, err
		}
		r.SessionID = sessionID.String
		r.Type = domain.ReportType(reportType)
		if content.Valid {
			r.Content = []byte(content.String)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// CreateRun creates a new workflow run.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_runs (run_id, stage, client_id, session_id, owner_id, status, started_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, string(run.Stage), run.ClientID, nullString(run.SessionID), run.OwnerID, string(run.Status),
		run.StartedAt.UTC())
	return err
}

// GetRun retrieves a workflow run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var stage, status string
	var sessionID, errData sql.NullString
	var endedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, stage, client_id, session_id, owner_id, status, started_at, ended_at, error
		FROM workflow_runs WHERE run_id = ?`, runID).Scan(
		&run.RunID, &stage, &run.ClientID, &sessionID, &run.OwnerID, &status, &run.StartedAt, &endedAt, &errData)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	run.Stage = domain.Stage(stage)
	run.Status = domain.RunStatus(status)
	run.SessionID = sessionID.String
	run.EndedAt = timePtr(endedAt)
	if errData.Valid {
		run.Error = []byte(errData.String)
	}
	return &run, nil
}

// UpdateRunCompleted marks a run as completed with the given status.
func (s *SQLiteStore) UpdateRunCompleted(ctx context.Context, runID string, status domain.RunStatus, errData []byte) error {
	var errStr interface{}
	if len(errData) > 0 {
		errStr = string(errData)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE workflow_runs SET status = ?, ended_at = ?, error = ? WHERE run_id = ?`,
		string(status), time.Now().UTC(), errStr, runID)
	return err
}

// CreateEvent creates a new workflow event.
func (s *SQLiteStore) CreateEvent(ctx context.Context, event *domain.WorkflowEvent) error {
	var payload interface{}
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO workflow_events (event_id, run_id, ts, type, payload) VALUES (?, ?, ?, ?, ?)`,
		event.EventID, event.RunID, event.Ts, string(event.Type), payload)
	return err
}

// GetEvents retrieves events for a run in recording order.
func (s *SQLiteStore) GetEvents(ctx context.Context, runID string, afterTs int64, limit int) ([]domain.WorkflowEvent, error) {
	query := `SELECT event_id, run_id, ts, type, payload FROM workflow_events WHERE run_id = ? AND ts > ? ORDER BY ts ASC, rowid ASC`
	args := []interface{}{runID, afterTs}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.WorkflowEvent
	for rows.Next() {
		var e domain.WorkflowEvent
		var eventType string
		var payload sql.NullString
		if err := rows.Scan(&e.EventID, &e.RunID, &e.Ts, &eventType, &payload); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(eventType)
		if payload.Valid {
			e.Payload = []byte(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var notes sql.NullString
	var completedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.ClientID, &session.Date, &notes, &session.MoodRating,
		&session.Status, &session.Documented, &completedAt, &session.CreatedAt); err != nil {
		return nil, err
	}
	session.Notes = notes.String
	session.CompletedAt = timePtr(completedAt)
	return &session, nil
}

func requireAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
