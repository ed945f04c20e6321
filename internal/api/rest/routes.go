package rest

import "net/http"

func registerRoutes(mux *http.ServeMux, h handlers) {
	if mux == nil {
		return
	}
	mux.HandleFunc(http.MethodGet+" /api", h.handleHello)
	mux.HandleFunc(http.MethodGet+" /api/{$}", h.handleHello)
	mux.HandleFunc(http.MethodPost+" /api/todos", h.handleCreate)
	mux.HandleFunc(http.MethodGet+" /api/todos", h.handleList)
	mux.HandleFunc(http.MethodPatch+" /api/todos/{todoID}", h.handleUpdate)
	mux.HandleFunc(http.MethodDelete+" /api/todos/{todoID}", h.handleDelete)
}
