// Package functions hosts the serverless handlers invoked by name.
package functions

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/tasksuite/tasks/internal/httputil"
)

// Registry maps function names to their handlers.
type Registry struct {
	handlers map[string]http.Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]http.Handler)}
}

func (r *Registry) Register(name string, h http.Handler) {
	r.handlers[name] = h
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ServeHTTP dispatches on the {name} route parameter.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	h, ok := r.handlers[name]
	if !ok {
		httputil.WriteError(w, http.StatusNotFound, "function not found: "+name)
		return
	}
	h.ServeHTTP(w, req)
}
