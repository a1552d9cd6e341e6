package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/taskfleet/supervisor/domain"
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
		`CREATE TABLE IF NOT EXISTS dispatches (
			message_id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			task TEXT,
			status TEXT NOT NULL,
			results TEXT,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dispatches_agent ON dispatches(agent_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS status_changes (
			id TEXT PRIMARY KEY,
			agent_id TEXT NOT NULL,
			from_status TEXT NOT NULL,
			to_status TEXT NOT NULL,
			observed_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_status_changes_agent ON status_changes(agent_id, observed_at)`,
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

// CreateDispatch records one dispatched task.
func (s *SQLiteStore) CreateDispatch(ctx context.Context, dispatch *domain.Dispatch) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dispatches (message_id, agent_id, task, status, results, error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		dispatch.MessageID, dispatch.AgentID, nullableJSON(dispatch.Task), string(dispatch.Status),
		nullableJSON(dispatch.Results), dispatch.Error, dispatch.CreatedAt)
	return err
}

// GetDispatch retrieves a dispatch by message id.
func (s *SQLiteStore) GetDispatch(ctx context.Context, messageID string) (*domain.Dispatch, error) {
	var d domain.Dispatch
	var task, results sql.NullString
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT message_id, agent_id, task, status, results, error, created_at FROM dispatches WHERE message_id = ?`,
		messageID).Scan(&d.MessageID, &d.AgentID, &task, &status, &results, &d.Error, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	d.Status = domain.DispatchStatus(status)
	if task.Valid {
		d.Task = []byte(task.String)
	}
	if results.Valid {
		d.Results = []byte(results.String)
	}
	return &d, nil
}

// ListDispatches lists dispatches, newest first. agentID narrows to one
// agent when non-empty.
func (s *SQLiteStore) ListDispatches(ctx context.Context, agentID string, limit int) ([]domain.Dispatch, error) {
	query := `SELECT message_id, agent_id, task, status, results, error, created_at FROM dispatches`
	args := []interface{}{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dispatches []domain.Dispatch
	for rows.Next() {
		var d domain.Dispatch
		var task, results sql.NullString
		var status string
		if err := rows.Scan(&d.MessageID, &d.AgentID, &task, &status, &results, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Status = domain.DispatchStatus(status)
		if task.Valid {
			d.Task = []byte(task.String)
		}
		if results.Valid {
			d.Results = []byte(results.String)
		}
		dispatches = append(dispatches, d)
	}
	return dispatches, rows.Err()
}

// RecordStatusChange records one observed liveness transition.
func (s *SQLiteStore) RecordStatusChange(ctx context.Context, change *domain.StatusChange) error {
	id := change.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO status_changes (id, agent_id, from_status, to_status, observed_at) VALUES (?, ?, ?, ?, ?)`,
		id, change.AgentID, string(change.From), string(change.To), change.ObservedAt)
	return err
}

// ListStatusChanges lists transitions, newest first. agentID narrows to one
// agent when non-empty.
func (s *SQLiteStore) ListStatusChanges(ctx context.Context, agentID string, limit int) ([]domain.StatusChange, error) {
	query := `SELECT id, agent_id, from_status, to_status, observed_at FROM status_changes`
	args := []interface{}{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY observed_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []domain.StatusChange
	for rows.Next() {
		var c domain.StatusChange
		var from, to string
		if err := rows.Scan(&c.ID, &c.AgentID, &from, &to, &c.ObservedAt); err != nil {
			return nil, err
		}
		c.From = domain.AgentStatus(from)
		c.To = domain.AgentStatus(to)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

func nullableJSON(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
