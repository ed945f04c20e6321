// Package storage defines persistence contracts for todo state.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested todo record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a write would violate position uniqueness.
	ErrConflict = errors.New("position already occupied")
)

// Todo stores one todo record.
//
// Position is unique across live records and determines the descending
// listing order. A zero DoneAt means the todo is not completed.
type Todo struct {
	ID        string
	Value     string
	Position  int
	DoneAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Done reports whether the todo has been completed.
func (t Todo) Done() bool {
	return !t.DoneAt.IsZero()
}

// TodoStore persists todo records.
//
// CreateTodo assigns the todo's position inside the insert transaction so
// concurrent creations can never claim the same position. MoveTodo performs
// the position swap as a single atomic unit: either both records land on
// their new positions or neither does.
type TodoStore interface {
	CreateTodo(ctx context.Context, todo Todo) (Todo, error)
	GetTodo(ctx context.Context, id string) (Todo, error)
	GetTodoByPosition(ctx context.Context, position int) (Todo, error)
	ListTodos(ctx context.Context) ([]Todo, error)
	NextPosition(ctx context.Context) (int, error)
	UpdateTodo(ctx context.Context, todo Todo) error
	MoveTodo(ctx context.Context, id string, position int) error
	DeleteTodo(ctx context.Context, id string) error
}

// TelemetryEvent records one operational event.
type TelemetryEvent struct {
	Timestamp  time.Time
	EventName  string
	Severity   string
	TodoID     string
	Attributes map[string]any
}

// TelemetryStore persists operational telemetry events.
type TelemetryStore interface {
	AppendTelemetryEvent(ctx context.Context, evt TelemetryEvent) error
}
