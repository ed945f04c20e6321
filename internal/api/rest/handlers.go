// Package rest exposes the todo API as HTTP/JSON routes under /api.
package rest

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/todos.page/internal/platform/errors"
	"github.com/louisbranch/todos.page/internal/storage"
	"github.com/louisbranch/todos.page/internal/todo"
)

// Register mounts the todo API routes on mux.
func Register(mux *http.ServeMux, service *todo.Service) {
	registerRoutes(mux, handlers{service: service})
}

type handlers struct {
	service *todo.Service
}

// todoPayload is the wire representation of one todo.
type todoPayload struct {
	ID     string  `json:"id"`
	TodoID string  `json:"todoId"`
	Value  string  `json:"value"`
	Order  int     `json:"order"`
	DoneAt *string `json:"doneAt"`
}

type createRequest struct {
	Value string `json:"value"`
}

// patchRequest uses pointer fields so an absent field is distinguishable
// from an explicit zero value: done=false reopens a todo, order=0 is a
// valid target position.
type patchRequest struct {
	Order *int    `json:"order"`
	Done  *bool   `json:"done"`
	Value *string `json:"value"`
}

type errorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}

func (h handlers) handleHello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, "Hello World!")
}

func (h handlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	created, err := h.service.Create(r.Context(), req.Value)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]todoPayload{"todo": toPayload(created)})
}

func (h handlers) handleList(w http.ResponseWriter, r *http.Request) {
	todos, err := h.service.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	payloads := make([]todoPayload, 0, len(todos))
	for _, item := range todos {
		payloads = append(payloads, toPayload(item))
	}
	writeJSON(w, http.StatusOK, map[string][]todoPayload{"todos": payloads})
}

func (h handlers) handleUpdate(w http.ResponseWriter, r *http.Request) {
	todoID := strings.TrimSpace(r.PathValue("todoID"))
	if todoID == "" {
		writeErrorMessage(w, http.StatusNotFound, "requested todo does not exist")
		return
	}

	var req patchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}

	patch := todo.Patch{Position: req.Order, Done: req.Done, Value: req.Value}
	if err := h.service.Update(r.Context(), todoID, patch); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h handlers) handleDelete(w http.ResponseWriter, r *http.Request) {
	todoID := strings.TrimSpace(r.PathValue("todoID"))
	if todoID == "" {
		writeErrorMessage(w, http.StatusNotFound, "requested todo does not exist")
		return
	}

	if err := h.service.Delete(r.Context(), todoID); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (h handlers) writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := code.HTTPStatus()
	message := userMessage(code, err)
	if status >= http.StatusInternalServerError {
		log.Printf("todo api error: %v", err)
	}
	writeErrorMessage(w, status, message)
}

func userMessage(code apperrors.Code, err error) string {
	switch code {
	case apperrors.CodeTodoValueEmpty:
		return "todo value is required"
	case apperrors.CodeTodoValueTooLong:
		return "todo value must be at most 50 characters"
	case apperrors.CodeNotFound:
		return "requested todo does not exist"
	case apperrors.CodeConflict:
		return "todo position is already taken, retry the request"
	default:
		var domainErr *apperrors.Error
		if errors.As(err, &domainErr) && domainErr.Code != apperrors.CodeInternal {
			return domainErr.Message
		}
		return "internal server error"
	}
}

func toPayload(item storage.Todo) todoPayload {
	payload := todoPayload{
		ID:     item.ID,
		TodoID: todo.DisplayID(item.ID),
		Value:  item.Value,
		Order:  item.Position,
	}
	if item.Done() {
		doneAt := item.DoneAt.UTC().Format(time.RFC3339Nano)
		payload.DoneAt = &doneAt
	}
	return payload
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{ErrorMessage: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}
