package rest

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/louisbranch/todos.page/internal/storage/sqlite"
	"github.com/louisbranch/todos.page/internal/telemetry"
	"github.com/louisbranch/todos.page/internal/todo"
)

func newTestMux(t *testing.T) *http.ServeMux {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "todos.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	mux := http.NewServeMux()
	Register(mux, todo.NewService(store, telemetry.NewEmitter(store)))
	return mux
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var value T
	if err := json.Unmarshal(rec.Body.Bytes(), &value); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return value
}

type todoEnvelope struct {
	Todo todoPayload `json:"todo"`
}

type listEnvelope struct {
	Todos []todoPayload `json:"todos"`
}

func createTodo(t *testing.T, mux *http.ServeMux, value string) todoPayload {
	t.Helper()
	rec := doRequest(t, mux, http.MethodPost, "/api/todos", map[string]string{"value": value})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %q: status = %d, body %s", value, rec.Code, rec.Body.String())
	}
	return decodeBody[todoEnvelope](t, rec).Todo
}

func listTodos(t *testing.T, mux *http.ServeMux) []todoPayload {
	t.Helper()
	rec := doRequest(t, mux, http.MethodGet, "/api/todos", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	return decodeBody[listEnvelope](t, rec).Todos
}

func TestHelloRoute(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	rec := doRequest(t, mux, http.MethodGet, "/api/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decodeBody[string](t, rec); got != "Hello World!" {
		t.Fatalf("body = %q, want %q", got, "Hello World!")
	}
}

func TestCreateTodo(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	created := createTodo(t, mux, "buy milk")
	if created.Value != "buy milk" {
		t.Fatalf("value = %q, want %q", created.Value, "buy milk")
	}
	if created.Order != 1 {
		t.Fatalf("order = %d, want 1", created.Order)
	}
	if created.DoneAt != nil {
		t.Fatalf("doneAt = %v, want null", *created.DoneAt)
	}
	if created.ID == "" || created.TodoID != created.ID {
		t.Fatalf("expected todoId to mirror id, got id=%q todoId=%q", created.ID, created.TodoID)
	}

	second := createTodo(t, mux, "walk dog")
	if second.Order != 2 {
		t.Fatalf("second order = %d, want 2", second.Order)
	}
}

func TestCreateTodoValidation(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)

	rec := doRequest(t, mux, http.MethodPost, "/api/todos", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing value: status = %d, want 400", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.ErrorMessage == "" {
		t.Fatal("expected errorMessage in response")
	}

	rec = doRequest(t, mux, http.MethodPost, "/api/todos", map[string]string{"value": strings.Repeat("a", 51)})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("too long value: status = %d, want 400", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/todos", strings.NewReader("{not json"))
	rec2 := httptest.NewRecorder()
	mux.ServeHTTP(rec2, req)
	if rec2.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: status = %d, want 400", rec2.Code)
	}
}

func TestListTodosSortedDescending(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	if todos := listTodos(t, mux); len(todos) != 0 {
		t.Fatalf("expected empty list, got %d", len(todos))
	}

	createTodo(t, mux, "buy milk")
	createTodo(t, mux, "walk dog")

	todos := listTodos(t, mux)
	if len(todos) != 2 {
		t.Fatalf("expected 2 todos, got %d", len(todos))
	}
	if todos[0].Value != "walk dog" || todos[0].Order != 2 {
		t.Fatalf("first entry = %+v, want walk dog at order 2", todos[0])
	}
	if todos[1].Value != "buy milk" || todos[1].Order != 1 {
		t.Fatalf("second entry = %+v, want buy milk at order 1", todos[1])
	}
}

func TestListTodosEmptyBodyShape(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	rec := doRequest(t, mux, http.MethodGet, "/api/todos", nil)
	if !strings.Contains(rec.Body.String(), `"todos":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestPatchReorderSwapsOccupant(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	milk := createTodo(t, mux, "buy milk") // order 1
	createTodo(t, mux, "walk dog")         // order 2

	rec := doRequest(t, mux, http.MethodPatch, "/api/todos/"+milk.ID, map[string]int{"order": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status = %d, body %s", rec.Code, rec.Body.String())
	}

	todos := listTodos(t, mux)
	if todos[0].Value != "buy milk" || todos[0].Order != 2 {
		t.Fatalf("first entry = %+v, want buy milk at order 2", todos[0])
	}
	if todos[1].Value != "walk dog" || todos[1].Order != 1 {
		t.Fatalf("second entry = %+v, want walk dog at order 1", todos[1])
	}
}

func TestPatchReorderToFreePosition(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	milk := createTodo(t, mux, "buy milk")

	rec := doRequest(t, mux, http.MethodPatch, "/api/todos/"+milk.ID, map[string]int{"order": 7})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: status = %d", rec.Code)
	}
	todos := listTodos(t, mux)
	if todos[0].Order != 7 {
		t.Fatalf("order = %d, want 7", todos[0].Order)
	}
}

func TestPatchCompletionToggle(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	dog := createTodo(t, mux, "walk dog")

	rec := doRequest(t, mux, http.MethodPatch, "/api/todos/"+dog.ID, map[string]bool{"done": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status = %d", rec.Code)
	}
	if rec.Body.String() != "{}\n" {
		t.Fatalf("body = %q, want empty object", rec.Body.String())
	}

	todos := listTodos(t, mux)
	if todos[0].DoneAt == nil {
		t.Fatal("expected doneAt timestamp after completion")
	}
	if todos[0].Value != "walk dog" {
		t.Fatalf("completion changed value: %q", todos[0].Value)
	}

	rec = doRequest(t, mux, http.MethodPatch, "/api/todos/"+dog.ID, map[string]bool{"done": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("reopen: status = %d", rec.Code)
	}
	todos = listTodos(t, mux)
	if todos[0].DoneAt != nil {
		t.Fatalf("expected doneAt cleared, got %v", *todos[0].DoneAt)
	}
}

func TestPatchValue(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	milk := createTodo(t, mux, "buy milk")

	rec := doRequest(t, mux, http.MethodPatch, "/api/todos/"+milk.ID, map[string]string{"value": "buy oat milk"})
	if rec.Code != http.StatusOK {
		t.Fatalf("edit: status = %d", rec.Code)
	}
	todos := listTodos(t, mux)
	if todos[0].Value != "buy oat milk" {
		t.Fatalf("value = %q, want %q", todos[0].Value, "buy oat milk")
	}
	if todos[0].Order != 1 {
		t.Fatalf("edit changed order: %d", todos[0].Order)
	}
}

func TestPatchUnknownID(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	rec := doRequest(t, mux, http.MethodPatch, "/api/todos/missing", map[string]bool{"done": true})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeBody[errorResponse](t, rec)
	if resp.ErrorMessage == "" {
		t.Fatal("expected errorMessage in response")
	}
}

func TestDeleteTodo(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	createTodo(t, mux, "buy milk")
	dog := createTodo(t, mux, "walk dog")

	rec := doRequest(t, mux, http.MethodDelete, "/api/todos/"+dog.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}

	todos := listTodos(t, mux)
	if len(todos) != 1 {
		t.Fatalf("expected 1 todo after delete, got %d", len(todos))
	}
	if todos[0].Value != "buy milk" || todos[0].Order != 1 {
		t.Fatalf("survivor = %+v", todos[0])
	}
}

func TestDeleteUnknownID(t *testing.T) {
	t.Parallel()

	mux := newTestMux(t)
	rec := doRequest(t, mux, http.MethodDelete, "/api/todos/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
