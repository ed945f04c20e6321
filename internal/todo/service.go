package todo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	apperrors "github.com/louisbranch/todos.page/internal/platform/errors"
	"github.com/louisbranch/todos.page/internal/platform/id"
	"github.com/louisbranch/todos.page/internal/storage"
	"github.com/louisbranch/todos.page/internal/telemetry"
)

// createRetries bounds how many times a creation is retried when a
// concurrent creation claims the same position first.
const createRetries = 3

// Service coordinates todo operations against the store.
type Service struct {
	store   storage.TodoStore
	emitter *telemetry.Emitter
	clock   func() time.Time
	newID   func() (string, error)
}

// NewService creates a todo service backed by store. The emitter may be nil.
func NewService(store storage.TodoStore, emitter *telemetry.Emitter) *Service {
	return &Service{
		store:   store,
		emitter: emitter,
		clock:   time.Now,
		newID:   id.NewID,
	}
}

// Create validates value, assigns an id and the next position, and persists
// a new todo. Position assignment happens inside the store's insert
// transaction; when a concurrent creation wins the position, the insert is
// retried a bounded number of times before the conflict is surfaced.
func (s *Service) Create(ctx context.Context, value string) (storage.Todo, error) {
	if err := ValidateValue(value); err != nil {
		return storage.Todo{}, err
	}

	todoID, err := s.newID()
	if err != nil {
		return storage.Todo{}, apperrors.Wrap(apperrors.CodeInternal, "generate todo id", err)
	}

	now := s.now()
	input := storage.Todo{
		ID:        todoID,
		Value:     strings.TrimSpace(value),
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created storage.Todo
	for attempt := 0; ; attempt++ {
		created, err = s.store.CreateTodo(ctx, input)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrConflict) && attempt < createRetries {
			continue
		}
		return storage.Todo{}, translateStorageErr("create todo", err)
	}

	s.emit(ctx, storage.TelemetryEvent{
		EventName: "todo.created",
		TodoID:    created.ID,
		Attributes: map[string]any{
			"position": created.Position,
		},
	})
	return created, nil
}

// List returns a fresh snapshot of all todos ordered by position descending.
func (s *Service) List(ctx context.Context) ([]storage.Todo, error) {
	todos, err := s.store.ListTodos(ctx)
	if err != nil {
		return nil, translateStorageErr("list todos", err)
	}
	return todos, nil
}

// Update applies a partial update to the todo with the given id. A supplied
// position relocates the todo first, swapping with the current occupant when
// one exists. A supplied done flag stamps or clears the completion time; a
// supplied non-empty value replaces the text. Value and completion mutations
// persist in a single write after the reorder.
func (s *Service) Update(ctx context.Context, todoID string, patch Patch) error {
	if patch.Value != nil && strings.TrimSpace(*patch.Value) != "" {
		if err := ValidateValue(*patch.Value); err != nil {
			return err
		}
	}

	current, err := s.store.GetTodo(ctx, todoID)
	if err != nil {
		return translateStorageErr("load todo", err)
	}

	moved := false
	if patch.Position != nil && *patch.Position != current.Position {
		if err := s.store.MoveTodo(ctx, current.ID, *patch.Position); err != nil {
			return translateStorageErr("move todo", err)
		}
		moved = true
	}

	mutated := false
	if patch.Done != nil {
		if *patch.Done {
			current.DoneAt = s.now()
		} else {
			current.DoneAt = time.Time{}
		}
		mutated = true
	}
	if patch.Value != nil && strings.TrimSpace(*patch.Value) != "" {
		current.Value = strings.TrimSpace(*patch.Value)
		mutated = true
	}
	if mutated {
		current.UpdatedAt = s.now()
		if err := s.store.UpdateTodo(ctx, current); err != nil {
			return translateStorageErr("update todo", err)
		}
	}

	s.emit(ctx, storage.TelemetryEvent{
		EventName: "todo.updated",
		TodoID:    current.ID,
		Attributes: map[string]any{
			"moved":   moved,
			"mutated": mutated,
		},
	})
	return nil
}

// Delete permanently removes the todo with the given id. Remaining todos
// keep their positions; gaps in the sequence are expected.
func (s *Service) Delete(ctx context.Context, todoID string) error {
	if err := s.store.DeleteTodo(ctx, todoID); err != nil {
		return translateStorageErr("delete todo", err)
	}
	s.emit(ctx, storage.TelemetryEvent{
		EventName: "todo.deleted",
		TodoID:    todoID,
	})
	return nil
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC().Truncate(time.Millisecond)
	}
	return s.clock().UTC().Truncate(time.Millisecond)
}

func (s *Service) emit(ctx context.Context, evt storage.TelemetryEvent) {
	if err := s.emitter.Emit(ctx, evt); err != nil {
		log.Printf("emit telemetry event %s: %v", evt.EventName, err)
	}
}

func translateStorageErr(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.Wrap(apperrors.CodeNotFound, "todo does not exist", err)
	case errors.Is(err, storage.ErrConflict):
		return apperrors.Wrap(apperrors.CodeConflict, "todo position already occupied", err)
	default:
		return apperrors.Wrap(apperrors.CodeInternal, fmt.Sprintf("%s failed", op), err)
	}
}
