// Package sqlite provides a SQLite-backed todo storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/todos.page/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/todos.page/internal/storage"
	"github.com/louisbranch/todos.page/internal/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists todo state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite todo store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	// The modernc driver only honors pragmas in _pragma=name(value) form.
	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateTodo inserts one todo record, assigning the next free position
// inside the insert transaction. It returns the stored record including the
// assigned position.
func (s *Store) CreateTodo(ctx context.Context, todo storage.Todo) (storage.Todo, error) {
	if err := ctx.Err(); err != nil {
		return storage.Todo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Todo{}, fmt.Errorf("storage is not configured")
	}
	todoID := strings.TrimSpace(todo.ID)
	value := strings.TrimSpace(todo.Value)
	if todoID == "" {
		return storage.Todo{}, fmt.Errorf("todo id is required")
	}
	if value == "" {
		return storage.Todo{}, fmt.Errorf("todo value is required")
	}
	createdAt := todo.CreatedAt.UTC()
	updatedAt := todo.UpdatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.Todo{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var position int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM todos`)
	if err := row.Scan(&position); err != nil {
		return storage.Todo{}, classifyWriteError("compute next position", err)
	}

	_, err = tx.ExecContext(
		ctx,
		`INSERT INTO todos (id, value, position, done_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		todoID,
		value,
		position,
		doneAtParam(todo.DoneAt),
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		return storage.Todo{}, classifyWriteError("create todo", err)
	}
	if err := tx.Commit(); err != nil {
		return storage.Todo{}, classifyWriteError("commit create todo", err)
	}

	todo.ID = todoID
	todo.Value = value
	todo.Position = position
	todo.CreatedAt = createdAt
	todo.UpdatedAt = updatedAt
	return todo, nil
}

// GetTodo returns one todo by id.
func (s *Store) GetTodo(ctx context.Context, id string) (storage.Todo, error) {
	if err := ctx.Err(); err != nil {
		return storage.Todo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Todo{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.Todo{}, fmt.Errorf("todo id is required")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, value, position, done_at, created_at, updated_at
		   FROM todos
		  WHERE id = ?`,
		id,
	)
	return scanTodo(row)
}

// GetTodoByPosition returns the todo occupying the given position.
func (s *Store) GetTodoByPosition(ctx context.Context, position int) (storage.Todo, error) {
	if err := ctx.Err(); err != nil {
		return storage.Todo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Todo{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, value, position, done_at, created_at, updated_at
		   FROM todos
		  WHERE position = ?`,
		position,
	)
	return scanTodo(row)
}

// ListTodos returns every todo ordered by position descending.
func (s *Store) ListTodos(ctx context.Context) ([]storage.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, value, position, done_at, created_at, updated_at
		   FROM todos
		  ORDER BY position DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	defer rows.Close()

	todos := make([]storage.Todo, 0)
	for rows.Next() {
		var todo storage.Todo
		var doneAt sql.NullInt64
		var createdAt int64
		var updatedAt int64
		if err := rows.Scan(&todo.ID, &todo.Value, &todo.Position, &doneAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("list todos: %w", err)
		}
		if doneAt.Valid {
			todo.DoneAt = fromMillis(doneAt.Int64)
		}
		todo.CreatedAt = fromMillis(createdAt)
		todo.UpdatedAt = fromMillis(updatedAt)
		todos = append(todos, todo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	return todos, nil
}

// NextPosition returns the position the next created todo would receive:
// one above the current maximum, or 1 for an empty collection. Creation does
// not rely on this read; CreateTodo recomputes the value inside its own
// transaction.
func (s *Store) NextPosition(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var position int
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) + 1 FROM todos`)
	if err := row.Scan(&position); err != nil {
		return 0, fmt.Errorf("next position: %w", err)
	}
	return position, nil
}

// UpdateTodo persists the value and completion timestamp of an existing
// todo. Position changes go through MoveTodo instead.
func (s *Store) UpdateTodo(ctx context.Context, todo storage.Todo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	todoID := strings.TrimSpace(todo.ID)
	value := strings.TrimSpace(todo.Value)
	if todoID == "" {
		return fmt.Errorf("todo id is required")
	}
	if value == "" {
		return fmt.Errorf("todo value is required")
	}
	updatedAt := todo.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	result, err := s.sqlDB.ExecContext(
		ctx,
		`UPDATE todos SET value = ?, done_at = ?, updated_at = ? WHERE id = ?`,
		value,
		doneAtParam(todo.DoneAt),
		toMillis(updatedAt),
		todoID,
	)
	if err != nil {
		return fmt.Errorf("update todo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update todo rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// MoveTodo relocates a todo to the requested position in one transaction.
// When another todo occupies the position the two swap: the occupant takes
// the mover's old position. The mover is parked below the current minimum
// for the occupant's update so the position uniqueness index holds after
// every statement. Either all writes commit or none do.
func (s *Store) MoveTodo(ctx context.Context, id string, position int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("todo id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var oldPosition int
	row := tx.QueryRowContext(ctx, `SELECT position FROM todos WHERE id = ?`, id)
	if err := row.Scan(&oldPosition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("load todo: %w", err)
	}
	if oldPosition == position {
		return tx.Commit()
	}

	var occupantID string
	row = tx.QueryRowContext(ctx, `SELECT id FROM todos WHERE position = ?`, position)
	err = row.Scan(&occupantID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Free position: a single write relocates the mover.
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE todos SET position = ?, updated_at = ? WHERE id = ?`,
			position,
			toMillis(time.Now().UTC()),
			id,
		); err != nil {
			return classifyWriteError("move todo", err)
		}
	case err != nil:
		return fmt.Errorf("load occupant: %w", err)
	default:
		var parkPosition int
		row = tx.QueryRowContext(ctx, `SELECT COALESCE(MIN(position), 0) - 1 FROM todos`)
		if err := row.Scan(&parkPosition); err != nil {
			return fmt.Errorf("compute park position: %w", err)
		}
		now := toMillis(time.Now().UTC())
		if _, err := tx.ExecContext(
			ctx, `UPDATE todos SET position = ? WHERE id = ?`, parkPosition, id,
		); err != nil {
			return classifyWriteError("park todo", err)
		}
		if _, err := tx.ExecContext(
			ctx, `UPDATE todos SET position = ?, updated_at = ? WHERE id = ?`, oldPosition, now, occupantID,
		); err != nil {
			return classifyWriteError("move occupant", err)
		}
		if _, err := tx.ExecContext(
			ctx, `UPDATE todos SET position = ?, updated_at = ? WHERE id = ?`, position, now, id,
		); err != nil {
			return classifyWriteError("move todo", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return classifyWriteError("commit move todo", err)
	}
	return nil
}

// DeleteTodo permanently removes one todo. Remaining rows keep their
// positions; the sequence is allowed to have gaps.
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("todo id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM todos WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete todo: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete todo rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AppendTelemetryEvent records one operational event.
func (s *Store) AppendTelemetryEvent(ctx context.Context, evt storage.TelemetryEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventName := strings.TrimSpace(evt.EventName)
	if eventName == "" {
		return fmt.Errorf("event name is required")
	}
	timestamp := evt.Timestamp.UTC()
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	attributes := "{}"
	if len(evt.Attributes) > 0 {
		encoded, err := json.Marshal(evt.Attributes)
		if err != nil {
			return fmt.Errorf("encode event attributes: %w", err)
		}
		attributes = string(encoded)
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO telemetry_events (timestamp, event_name, severity, todo_id, attributes)
		 VALUES (?, ?, ?, ?, ?)`,
		toMillis(timestamp),
		eventName,
		evt.Severity,
		evt.TodoID,
		attributes,
	)
	if err != nil {
		return fmt.Errorf("append telemetry event: %w", err)
	}
	return nil
}

func scanTodo(row *sql.Row) (storage.Todo, error) {
	var todo storage.Todo
	var doneAt sql.NullInt64
	var createdAt int64
	var updatedAt int64
	err := row.Scan(&todo.ID, &todo.Value, &todo.Position, &doneAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Todo{}, storage.ErrNotFound
		}
		return storage.Todo{}, fmt.Errorf("scan todo: %w", err)
	}
	if doneAt.Valid {
		todo.DoneAt = fromMillis(doneAt.Int64)
	}
	todo.CreatedAt = fromMillis(createdAt)
	todo.UpdatedAt = fromMillis(updatedAt)
	return todo, nil
}

func doneAtParam(doneAt time.Time) any {
	if doneAt.IsZero() {
		return nil
	}
	return toMillis(doneAt)
}

// classifyWriteError maps retryable SQLite failures to ErrConflict. A
// violated position index and a busy database both mean another writer won
// the race; callers retry or surface a conflict either way.
func classifyWriteError(op string, err error) error {
	if isPositionUniqueViolation(err) || isBusyError(err) {
		return storage.ErrConflict
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_BUSY_SNAPSHOT:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "database is locked")
}

func isPositionUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "todos.position")
}

var _ storage.TodoStore = (*Store)(nil)
var _ storage.TelemetryStore = (*Store)(nil)
