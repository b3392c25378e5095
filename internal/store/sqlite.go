package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/operia/operia/internal/errors"
	"github.com/operia/operia/internal/logging"
	"github.com/operia/operia/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists integrations, cached content and tasks in SQLite
// with WAL mode. It is thread-safe and supports concurrent access.
type SQLiteStore struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewSQLiteStore creates a new SQLite store with WAL mode enabled
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &errors.ErrDirectoryCreate{Path: dir, Err: err}
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &errors.ErrDatabaseOpen{Path: dbPath, Err: err}
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.NewLogger(),
	}, nil
}

// runMigrations runs database migrations
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "create migrations table", Err: err}
	}

	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "get current migration version", Err: err}
	}

	migrations := []struct {
		version int
		up      string
	}{
		{
			version: 1,
			up: `
				CREATE TABLE IF NOT EXISTS integrations (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					provider TEXT NOT NULL,
					access_token TEXT NOT NULL,
					scope TEXT DEFAULT '',
					workspace_id TEXT DEFAULT '',
					workspace_name TEXT DEFAULT '',
					bot TEXT DEFAULT '{}',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					UNIQUE(user_id, provider)
				);

				CREATE TABLE IF NOT EXISTS content_items (
					id TEXT PRIMARY KEY,
					integration_id TEXT NOT NULL,
					title TEXT NOT NULL,
					url TEXT DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (integration_id) REFERENCES integrations(id) ON DELETE CASCADE
				);

				CREATE TABLE IF NOT EXISTS tasks (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					title TEXT NOT NULL,
					description TEXT DEFAULT '',
					source TEXT NOT NULL,
					tags TEXT DEFAULT '[]',
					status TEXT NOT NULL DEFAULT 'pending',
					priority TEXT NOT NULL DEFAULT 'medium',
					start_date DATETIME,
					end_date DATETIME,
					dedup_key TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					approved_at DATETIME,
					UNIQUE(user_id, dedup_key)
				);

				CREATE INDEX IF NOT EXISTS idx_integrations_user ON integrations(user_id);
				CREATE INDEX IF NOT EXISTS idx_content_items_integration ON content_items(integration_id);
				CREATE INDEX IF NOT EXISTS idx_tasks_user ON tasks(user_id);
				CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
				CREATE INDEX IF NOT EXISTS idx_tasks_source ON tasks(source);
			`,
		},
	}

	tx, err := db.Begin()
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin transaction", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := tx.Exec(m.up); err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
			return &errors.ErrDatabaseMigration{Version: m.version, Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit migrations", Err: err}
	}
	return nil
}

// UpsertIntegration creates or updates the integration row for the
// (user, provider) pair. Re-authorization keeps the original row id.
func (s *SQLiteStore) UpsertIntegration(ctx context.Context, in *models.Integration) (*models.Integration, error) {
	botJSON, err := json.Marshal(in.Bot)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "marshal bot", Err: err}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "begin upsert integration", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	var existingID string
	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		"SELECT id, created_at FROM integrations WHERE user_id = ? AND provider = ?",
		in.UserID, string(in.Provider),
	).Scan(&existingID, &createdAt)

	switch {
	case err == sql.ErrNoRows:
		id := in.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO integrations (id, user_id, provider, access_token, scope, workspace_id, workspace_name, bot, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, in.UserID, string(in.Provider), in.AccessToken, in.Scope,
			in.WorkspaceID, in.WorkspaceName, string(botJSON), now, now,
		)
		if err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "insert integration", Err: err}
		}
		in.ID = id
		in.CreatedAt = now
	case err != nil:
		return nil, &errors.ErrDatabaseQuery{Operation: "lookup integration", Err: err}
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE integrations
			SET access_token = ?, scope = ?, workspace_id = ?, workspace_name = ?, bot = ?, updated_at = ?
			WHERE id = ?`,
			in.AccessToken, in.Scope, in.WorkspaceID, in.WorkspaceName, string(botJSON), now, existingID,
		)
		if err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "update integration", Err: err}
		}
		in.ID = existingID
		in.CreatedAt = createdAt
	}
	in.UpdatedAt = now

	if err := tx.Commit(); err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "commit upsert integration", Err: err}
	}
	return in, nil
}

// GetIntegration retrieves the integration for a (user, provider) pair.
func (s *SQLiteStore) GetIntegration(ctx context.Context, userID string, provider models.Provider) (*models.Integration, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, provider, access_token, scope, workspace_id, workspace_name, bot, created_at, updated_at
		FROM integrations WHERE user_id = ? AND provider = ?`,
		userID, string(provider),
	)

	var in models.Integration
	var providerTag, botJSON string
	err := row.Scan(&in.ID, &in.UserID, &providerTag, &in.AccessToken, &in.Scope,
		&in.WorkspaceID, &in.WorkspaceName, &botJSON, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &errors.ErrDatabaseQuery{Operation: "get integration", Err: err}
	}

	in.Provider = models.Provider(providerTag)
	if botJSON != "" {
		_ = json.Unmarshal([]byte(botJSON), &in.Bot)
	}
	return &in, true, nil
}

// DeleteIntegration removes the integration row; cached content cascades.
func (s *SQLiteStore) DeleteIntegration(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM integrations WHERE user_id = ? AND provider = ?",
		userID, string(provider),
	)
	if err != nil {
		return false, &errors.ErrDatabaseQuery{Operation: "delete integration", Err: err}
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ReplaceContentItems deletes and re-inserts the cached content for an
// integration in one transaction.
func (s *SQLiteStore) ReplaceContentItems(ctx context.Context, integrationID string, items []models.ContentItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &errors.ErrDatabaseQuery{Operation: "begin replace content", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, "DELETE FROM content_items WHERE integration_id = ?", integrationID); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "clear content items", Err: err}
	}

	now := time.Now().UTC()
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO content_items (id, integration_id, title, url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, integrationID, item.Title, item.URL, now, now,
		)
		if err != nil {
			return &errors.ErrDatabaseQuery{Operation: "insert content item", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &errors.ErrDatabaseQuery{Operation: "commit replace content", Err: err}
	}
	return nil
}

// ListContentItems returns the cached content for an integration.
func (s *SQLiteStore) ListContentItems(ctx context.Context, integrationID string) ([]models.ContentItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, integration_id, title, url, created_at, updated_at
		FROM content_items WHERE integration_id = ? ORDER BY created_at, id`,
		integrationID,
	)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list content items", Err: err}
	}
	defer rows.Close()

	var items []models.ContentItem
	for rows.Next() {
		var item models.ContentItem
		if err := rows.Scan(&item.ID, &item.IntegrationID, &item.Title, &item.URL, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, &errors.ErrDatabaseQuery{Operation: "scan content item", Err: err}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CreateTasks inserts tasks in one transaction. Tasks whose dedup key is
// already present for the user are skipped via INSERT OR IGNORE on the
// (user_id, dedup_key) unique index. Returns the number inserted.
func (s *SQLiteStore) CreateTasks(ctx context.Context, tasks []*models.Task) (int, error) {
	if len(tasks) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "begin create tasks", Err: err}
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	inserted := 0
	for _, task := range tasks {
		if task.ID == "" {
			task.ID = uuid.New().String()
		}
		if task.Status == "" {
			task.Status = models.TaskPending
		}
		tagsJSON, err := json.Marshal(task.Tags)
		if err != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "marshal task tags", Err: err}
		}

		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tasks (id, user_id, title, description, source, tags, status, priority, start_date, end_date, dedup_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID, task.UserID, task.Title, task.Description, string(task.Source),
			string(tagsJSON), string(task.Status), string(task.Priority),
			task.StartDate, task.EndDate, task.DedupKey(), now,
		)
		if err != nil {
			return 0, &errors.ErrDatabaseQuery{Operation: "insert task", Err: err}
		}
		affected, _ := res.RowsAffected()
		if affected > 0 {
			task.CreatedAt = now
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, &errors.ErrDatabaseQuery{Operation: "commit create tasks", Err: err}
	}
	return inserted, nil
}

// ListTasks returns tasks for a user, newest first.
func (s *SQLiteStore) ListTasks(ctx context.Context, userID string, filter TaskFilter) ([]*models.Task, error) {
	query := `
		SELECT id, user_id, title, description, source, tags, status, priority, start_date, end_date, created_at, approved_at
		FROM tasks WHERE user_id = ?`
	args := []interface{}{userID}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		query += " AND source = ?"
		args = append(args, string(filter.Source))
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "list tasks", Err: err}
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// GetTask retrieves a task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*models.Task, bool, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, description, source, tags, status, priority, start_date, end_date, created_at, approved_at
		FROM tasks WHERE id = ?`, id)
	if err != nil {
		return nil, false, &errors.ErrDatabaseQuery{Operation: "get task", Err: err}
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	task, err := scanTask(rows)
	if err != nil {
		return nil, false, err
	}
	return task, true, nil
}

// UpdateTaskStatus sets a new status; moving to approved records the
// approval timestamp.
func (s *SQLiteStore) UpdateTaskStatus(ctx context.Context, id string, status models.TaskStatus) (*models.Task, error) {
	var approvedAt interface{}
	if status == models.TaskApproved {
		approvedAt = time.Now().UTC()
	}

	var err error
	if approvedAt != nil {
		_, err = s.db.ExecContext(ctx, "UPDATE tasks SET status = ?, approved_at = ? WHERE id = ?", string(status), approvedAt, id)
	} else {
		_, err = s.db.ExecContext(ctx, "UPDATE tasks SET status = ? WHERE id = ?", string(status), id)
	}
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "update task status", Err: err}
	}

	task, ok, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &errors.ErrDatabaseQuery{Operation: "update task status", Err: sql.ErrNoRows}
	}
	return task, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var task models.Task
	var source, tagsJSON, status, priority string
	err := row.Scan(&task.ID, &task.UserID, &task.Title, &task.Description, &source,
		&tagsJSON, &status, &priority, &task.StartDate, &task.EndDate, &task.CreatedAt, &task.ApprovedAt)
	if err != nil {
		return nil, &errors.ErrDatabaseQuery{Operation: "scan task", Err: err}
	}
	task.Source = models.TaskSource(source)
	task.Status = models.TaskStatus(status)
	task.Priority = models.TaskPriority(priority)
	if tagsJSON != "" {
		_ = json.Unmarshal([]byte(tagsJSON), &task.Tags)
	}
	return &task, nil
}
