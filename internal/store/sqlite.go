package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/maccam912/smart-todo-sub000/internal/task"
)

// SQLite is the sqlite-backed Store implementation.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLite)(nil)

// Open opens (or creates) the task database at path and ensures the schema
// is up to date. ":memory:" is accepted for tests.
func Open(path string) (*SQLite, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLite{db: db, now: time.Now}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *SQLite) Close() error {
	return s.db.Close()
}

// migrate ensures the database schema is up to date
func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scope TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'open',
		urgency TEXT NOT NULL DEFAULT 'normal',
		due_date TEXT,
		recurrence TEXT NOT NULL DEFAULT 'none',
		assignee_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE TABLE IF NOT EXISTS task_prerequisites (
		task_id INTEGER NOT NULL,
		prerequisite_id INTEGER NOT NULL,
		PRIMARY KEY (task_id, prerequisite_id),
		FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
		FOREIGN KEY (prerequisite_id) REFERENCES tasks(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_scope_status ON tasks(scope, status);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create initial schema: %w", err)
	}
	return nil
}

func (s *SQLite) Create(ctx context.Context, scope string, attrs map[string]any) (*task.Task, error) {
	return createTask(ctx, s.db, s.now(), scope, attrs)
}

func (s *SQLite) Update(ctx context.Context, scope string, id int64, attrs map[string]any) (*task.Task, error) {
	return updateTask(ctx, s.db, s.now(), scope, id, attrs)
}

func (s *SQLite) Delete(ctx context.Context, scope string, id int64) (*task.Task, error) {
	return deleteTask(ctx, s.db, scope, id)
}

func (s *SQLite) Complete(ctx context.Context, scope string, id int64) (*task.Task, error) {
	return completeTask(ctx, s.db, s.now(), scope, id)
}

func (s *SQLite) ListOpen(ctx context.Context, scope string) ([]*task.Task, error) {
	return listOpenTasks(ctx, s.db, scope)
}

func (s *SQLite) Get(ctx context.Context, scope string, id int64) (*task.Task, error) {
	return getTask(ctx, s.db, scope, id)
}

// WithTx runs fn in one transaction; fn's error (or a panic) rolls back.
func (s *SQLite) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqliteTx{tx: tx, now: s.now}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// sqliteTx adapts *sql.Tx to the Tx interface.
type sqliteTx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ Tx = (*sqliteTx)(nil)

func (t *sqliteTx) Create(ctx context.Context, scope string, attrs map[string]any) (*task.Task, error) {
	return createTask(ctx, t.tx, t.now(), scope, attrs)
}

func (t *sqliteTx) Update(ctx context.Context, scope string, id int64, attrs map[string]any) (*task.Task, error) {
	return updateTask(ctx, t.tx, t.now(), scope, id, attrs)
}

func (t *sqliteTx) Delete(ctx context.Context, scope string, id int64) (*task.Task, error) {
	return deleteTask(ctx, t.tx, scope, id)
}

func (t *sqliteTx) Complete(ctx context.Context, scope string, id int64) (*task.Task, error) {
	return completeTask(ctx, t.tx, t.now(), scope, id)
}

func (t *sqliteTx) Get(ctx context.Context, scope string, id int64) (*task.Task, error) {
	return getTask(ctx, t.tx, scope, id)
}

// querier is satisfied by both *sql.DB and *sql.Tx so the operation helpers
// below run unchanged inside and outside transactions.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const taskColumns = "id, scope, title, description, status, urgency, due_date, recurrence, assignee_id, created_at, updated_at, completed_at"

func createTask(ctx context.Context, q querier, now time.Time, scope string, attrs map[string]any) (*task.Task, error) {
	patch, err := task.PatchFromAttrs(attrs)
	if err != nil {
		return nil, asValidation(err)
	}

	t := &task.Task{
		Scope:      scope,
		Status:     task.StatusOpen,
		Urgency:    task.UrgencyNormal,
		Recurrence: task.RecurrenceNone,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	patch.ApplyTo(t)

	if err := t.Validate(); err != nil {
		return nil, asValidation(err)
	}
	if err := checkPrerequisites(ctx, q, scope, t.PrerequisiteIDs, 0); err != nil {
		return nil, err
	}

	res, err := q.ExecContext(ctx, `
		INSERT INTO tasks (scope, title, description, status, urgency, due_date, recurrence, assignee_id, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scope, t.Title, t.Description, string(t.Status), string(t.Urgency),
		nullableTime(t.DueDate), string(t.Recurrence), t.AssigneeID,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt), nullableTime(t.CompletedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted task id: %w", err)
	}
	t.ID = id

	if err := replacePrerequisites(ctx, q, id, t.PrerequisiteIDs); err != nil {
		return nil, err
	}
	return t, nil
}

func updateTask(ctx context.Context, q querier, now time.Time, scope string, id int64, attrs map[string]any) (*task.Task, error) {
	t, err := getTask(ctx, q, scope, id)
	if err != nil {
		return nil, err
	}

	patch, err := task.PatchFromAttrs(attrs)
	if err != nil {
		return nil, asValidation(err)
	}
	if patch.IsZero() {
		return t, nil
	}

	patch.ApplyTo(t)
	t.UpdatedAt = now

	if err := t.Validate(); err != nil {
		return nil, asValidation(err)
	}
	if patch.PrerequisitesSet {
		if err := checkPrerequisites(ctx, q, scope, t.PrerequisiteIDs, id); err != nil {
			return nil, err
		}
	}

	_, err = q.ExecContext(ctx, `
		UPDATE tasks
		SET title = ?, description = ?, status = ?, urgency = ?, due_date = ?, recurrence = ?, assignee_id = ?, updated_at = ?
		WHERE id = ? AND scope = ?`,
		t.Title, t.Description, string(t.Status), string(t.Urgency),
		nullableTime(t.DueDate), string(t.Recurrence), t.AssigneeID,
		formatTime(t.UpdatedAt), id, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to update task %d: %w", id, err)
	}

	if patch.PrerequisitesSet {
		if err := replacePrerequisites(ctx, q, id, t.PrerequisiteIDs); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func deleteTask(ctx context.Context, q querier, scope string, id int64) (*task.Task, error) {
	t, err := getTask(ctx, q, scope, id)
	if err != nil {
		return nil, err
	}

	// Prerequisite links cascade in both directions.
	if _, err := q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND scope = ?`, id, scope); err != nil {
		return nil, fmt.Errorf("failed to delete task %d: %w", id, err)
	}
	return t, nil
}

func completeTask(ctx context.Context, q querier, now time.Time, scope string, id int64) (*task.Task, error) {
	t, err := getTask(ctx, q, scope, id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, &ValidationError{Field: task.FieldStatus, Reason: fmt.Sprintf("task %d is already completed", id)}
	}

	var openPrereqs int
	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM task_prerequisites p
		JOIN tasks pt ON pt.id = p.prerequisite_id
		WHERE p.task_id = ? AND pt.status != ?`,
		id, string(task.StatusDone)).Scan(&openPrereqs)
	if err != nil {
		return nil, fmt.Errorf("failed to check prerequisites for task %d: %w", id, err)
	}
	if openPrereqs > 0 {
		return nil, &ValidationError{
			Field:  task.FieldPrerequisiteIDs,
			Reason: fmt.Sprintf("%d prerequisite task(s) of task %d are not completed", openPrereqs, id),
		}
	}

	_, err = q.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE id = ? AND scope = ?`,
		string(task.StatusDone), formatTime(now), formatTime(now), id, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task %d: %w", id, err)
	}

	t.Status = task.StatusDone
	completed := now
	t.CompletedAt = &completed
	t.UpdatedAt = now

	// Recurring tasks roll forward into a fresh occurrence.
	if t.Recurrence != task.RecurrenceNone {
		if err := insertNextOccurrence(ctx, q, now, t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// insertNextOccurrence creates the follow-up row for a recurring task that
// was just completed. The next due date advances from the old one, or from
// the completion time when no due date was set.
func insertNextOccurrence(ctx context.Context, q querier, now time.Time, completed *task.Task) error {
	base := now
	if completed.DueDate != nil {
		base = *completed.DueDate
	}
	next := completed.Recurrence.Next(base)

	_, err := q.ExecContext(ctx, `
		INSERT INTO tasks (scope, title, description, status, urgency, due_date, recurrence, assignee_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		completed.Scope, completed.Title, completed.Description,
		string(task.StatusOpen), string(completed.Urgency),
		formatTime(next), string(completed.Recurrence), completed.AssigneeID,
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to schedule next occurrence of task %d: %w", completed.ID, err)
	}
	return nil
}

func getTask(ctx context.Context, q querier, scope string, id int64) (*task.Task, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ? AND scope = ?", id, scope)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return nil, err
	}

	prereqs, err := loadPrerequisites(ctx, q, id)
	if err != nil {
		return nil, err
	}
	t.PrerequisiteIDs = prereqs
	return t, nil
}

func listOpenTasks(ctx context.Context, q querier, scope string) ([]*task.Task, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE scope = ? AND status != ?
		ORDER BY
			CASE urgency WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END,
			due_date IS NULL, due_date, id`,
		scope, string(task.StatusDone))
	if err != nil {
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	byID := make(map[int64]*task.Task)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
		byID[t.ID] = t
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list open tasks: %w", err)
	}

	// One pass over the scope's links instead of a query per task.
	linkRows, err := q.QueryContext(ctx, `
		SELECT p.task_id, p.prerequisite_id
		FROM task_prerequisites p
		JOIN tasks t ON t.id = p.task_id
		WHERE t.scope = ?
		ORDER BY p.task_id, p.prerequisite_id`, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load prerequisites: %w", err)
	}
	defer linkRows.Close()

	for linkRows.Next() {
		var taskID, prereqID int64
		if err := linkRows.Scan(&taskID, &prereqID); err != nil {
			return nil, fmt.Errorf("failed to scan prerequisite link: %w", err)
		}
		if t, ok := byID[taskID]; ok {
			t.PrerequisiteIDs = append(t.PrerequisiteIDs, prereqID)
		}
	}
	if err := linkRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to load prerequisites: %w", err)
	}

	return tasks, nil
}

func loadPrerequisites(ctx context.Context, q querier, taskID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT prerequisite_id FROM task_prerequisites WHERE task_id = ? ORDER BY prerequisite_id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load prerequisites for task %d: %w", taskID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan prerequisite id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func replacePrerequisites(ctx context.Context, q querier, taskID int64, ids []int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM task_prerequisites WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("failed to clear prerequisites for task %d: %w", taskID, err)
	}

	seen := make(map[int64]struct{}, len(ids))
	for _, prereqID := range ids {
		if _, dup := seen[prereqID]; dup {
			continue
		}
		seen[prereqID] = struct{}{}
		if _, err := q.ExecContext(ctx,
			`INSERT INTO task_prerequisites (task_id, prerequisite_id) VALUES (?, ?)`, taskID, prereqID); err != nil {
			return fmt.Errorf("failed to link prerequisite %d to task %d: %w", prereqID, taskID, err)
		}
	}
	return nil
}

func checkPrerequisites(ctx context.Context, q querier, scope string, ids []int64, selfID int64) error {
	for _, id := range ids {
		if selfID != 0 && id == selfID {
			return &ValidationError{Field: task.FieldPrerequisiteIDs, Reason: "a task cannot be its own prerequisite"}
		}
		var count int
		if err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM tasks WHERE id = ? AND scope = ?`, id, scope).Scan(&count); err != nil {
			return fmt.Errorf("failed to check prerequisite %d: %w", id, err)
		}
		if count == 0 {
			return &ValidationError{Field: task.FieldPrerequisiteIDs, Reason: fmt.Sprintf("prerequisite task %d does not exist", id)}
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*task.Task, error) {
	var (
		t                          task.Task
		status, urgency, recur     string
		due, completed             sql.NullString
		createdAtRaw, updatedAtRaw string
	)

	err := row.Scan(&t.ID, &t.Scope, &t.Title, &t.Description, &status, &urgency,
		&due, &recur, &t.AssigneeID, &createdAtRaw, &updatedAtRaw, &completed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	t.Status = task.Status(status)
	t.Urgency = task.Urgency(urgency)
	t.Recurrence = task.Recurrence(recur)

	if t.CreatedAt, err = parseTime(createdAtRaw); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAtRaw); err != nil {
		return nil, err
	}
	if t.DueDate, err = parseNullTime(due); err != nil {
		return nil, err
	}
	if t.CompletedAt, err = parseNullTime(completed); err != nil {
		return nil, err
	}
	return &t, nil
}

func asValidation(err error) error {
	var fe *task.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Reason: fe.Reason}
	}
	return err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse stored timestamp %q: %w", raw, err)
	}
	return t, nil
}

func parseNullTime(raw sql.NullString) (*time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	t, err := parseTime(raw.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
