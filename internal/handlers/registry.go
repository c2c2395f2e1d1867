// Package handlers implements the step functions invoked by Lambda steps.
package handlers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/brunopistone/sm-iot-end-to-end/internal/request"
)

// Handler runs one step function. The returned map becomes the step outputs.
type Handler func(ctx context.Context, req request.Request) (map[string]string, error)

// HandlerError wraps a failure of a named handler
type HandlerError struct {
	Handler string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Registry maps function names to handlers
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	log      zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		log:      log.With().Str("component", "handlers").Logger(),
	}
}

// Register adds a handler. Names must be unique.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" || h == nil {
		return fmt.Errorf("handler needs a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("handler %s already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Names lists registered handlers in order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the handler for function with already-decoded fields
func (r *Registry) Invoke(ctx context.Context, function string, event map[string]interface{}) (map[string]string, error) {
	return r.run(ctx, function, request.New(event))
}

// Dispatch decodes a raw event and runs the handler for function
func (r *Registry) Dispatch(ctx context.Context, function string, event interface{}) (map[string]string, error) {
	req, err := request.Decode(event)
	if err != nil {
		return nil, &HandlerError{Handler: function, Err: err}
	}
	return r.run(ctx, function, req)
}

func (r *Registry) run(ctx context.Context, function string, req request.Request) (map[string]string, error) {
	name := FunctionName(function)
	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &HandlerError{Handler: name, Err: fmt.Errorf("not registered")}
	}

	r.log.Info().Str("handler", name).Strs("fields", req.Keys()).Msg("invoking handler")
	out, err := h(ctx, req)
	if err != nil {
		r.log.Error().Err(err).Str("handler", name).Msg("handler failed")
		return nil, &HandlerError{Handler: name, Err: err}
	}
	return out, nil
}

// FunctionName extracts the function name from a Lambda ARN; plain names are returned as is
func FunctionName(function string) string {
	if _, name, ok := strings.Cut(function, ":function:"); ok {
		name, _, _ = strings.Cut(name, ":")
		return name
	}
	return function
}
