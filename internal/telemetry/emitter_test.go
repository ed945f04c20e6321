package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/louisbranch/todos.page/internal/storage"
)

type captureStore struct {
	events []storage.TelemetryEvent
}

func (c *captureStore) AppendTelemetryEvent(_ context.Context, evt storage.TelemetryEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func TestEmitStampsTimestampAndSeverity(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	emitter := NewEmitter(store)
	fixed := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	emitter.clock = func() time.Time { return fixed }

	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{EventName: "todo.created"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(store.events))
	}
	evt := store.events[0]
	if !evt.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v, want %v", evt.Timestamp, fixed)
	}
	if evt.Severity != string(SeverityInfo) {
		t.Fatalf("severity = %q, want %q", evt.Severity, SeverityInfo)
	}
}

func TestEmitPreservesExplicitFields(t *testing.T) {
	t.Parallel()

	store := &captureStore{}
	emitter := NewEmitter(store)
	stamp := time.Date(2026, time.March, 2, 9, 30, 0, 0, time.UTC)

	evt := storage.TelemetryEvent{
		Timestamp: stamp,
		EventName: "todo.deleted",
		Severity:  string(SeverityWarn),
		TodoID:    "abc",
	}
	if err := emitter.Emit(context.Background(), evt); err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := store.events[0]
	if !got.Timestamp.Equal(stamp) || got.Severity != string(SeverityWarn) || got.TodoID != "abc" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestEmitNoopWithoutStore(t *testing.T) {
	t.Parallel()

	var emitter *Emitter
	if err := emitter.Emit(context.Background(), storage.TelemetryEvent{EventName: "noop"}); err != nil {
		t.Fatalf("nil emitter should be a no-op: %v", err)
	}
	if err := NewEmitter(nil).Emit(context.Background(), storage.TelemetryEvent{EventName: "noop"}); err != nil {
		t.Fatalf("nil store should be a no-op: %v", err)
	}
}
