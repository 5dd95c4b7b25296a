package step

import (
	"context"
	"fmt"
	"sort"
	"sync"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/form"
)

// Handler builds, validates and submits one wizard step. Handlers read and
// write the wizard's values through st.CachedValues.
type Handler interface {
	FormID() string
	Build(ctx context.Context, f *form.Form, st *form.State) error
	Validate(ctx context.Context, st *form.State) error
	Submit(ctx context.Context, st *form.State) error
}

// Factory creates a handler from the static parameters of an operation.
type Factory func(params map[string]string) (Handler, error)

// Registry resolves handler names to fresh handler instances.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a registry holding the built-in handlers.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register("text", newTextStep)
	r.Register("choice", newChoiceStep)
	return r
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve returns a new handler for name. Handlers are never cached.
func (r *Registry) Resolve(name string, params map[string]string) (Handler, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &wzerrors.WizardError{
			Type:    wzerrors.HandlerNotFound,
			Message: fmt.Sprintf("unknown step handler %q", name),
			Hint:    "Register the handler before loading wizards that use it",
		}
	}
	h, err := f(params)
	if err != nil {
		return nil, &wzerrors.WizardError{
			Type:    wzerrors.InvalidDefinition,
			Message: fmt.Sprintf("step handler %q: %v", name, err),
			Err:     err,
		}
	}
	return h, nil
}

// Known returns true if a handler is registered under name.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// Names returns the registered handler names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
