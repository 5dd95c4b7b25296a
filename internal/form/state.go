package form

import (
	"fmt"

	"github.com/stevehiehn/formwizard/internal/ajax"
)

// CachedValuesKey is the temporary-value slot holding a wizard's cached
// values for the current request.
const CachedValuesKey = "wizard"

// Redirect is a route to send the client to once processing finishes.
type Redirect struct {
	Route  string            `json:"route"`
	Params map[string]string `json:"params,omitempty"`
}

// State is the request-scoped state of a form being built or submitted.
type State struct {
	// Values holds the submitted values.
	Values map[string]any
	// Op is the label (or name) of the button that was pressed.
	Op string
	// Ajax is set when the request came from a modal client.
	Ajax bool

	// Triggered is the name of the action Process selected.
	Triggered string
	Redirect  *Redirect
	Response  *ajax.Response

	errors    map[string]string
	temporary map[string]any
}

// NewState creates a state for the given submitted values.
func NewState(values map[string]any) *State {
	if values == nil {
		values = map[string]any{}
	}
	return &State{
		Values:    values,
		errors:    map[string]string{},
		temporary: map[string]any{},
	}
}

// HasValue reports whether name was submitted.
func (s *State) HasValue(name string) bool {
	_, ok := s.Values[name]
	return ok
}

// Value returns the submitted value for name.
func (s *State) Value(name string) any {
	return s.Values[name]
}

// StringValue returns the submitted value for name formatted as a string.
func (s *State) StringValue(name string) string {
	switch v := s.Values[name].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// SetValue overrides a submitted value.
func (s *State) SetValue(name string, v any) {
	s.Values[name] = v
}

// SetError records a field-level validation message. The first message for a
// field wins.
func (s *State) SetError(name, msg string) {
	if _, ok := s.errors[name]; !ok {
		s.errors[name] = msg
	}
}

// Errors returns a copy of the recorded field errors.
func (s *State) Errors() map[string]string {
	out := make(map[string]string, len(s.errors))
	for k, v := range s.errors {
		out[k] = v
	}
	return out
}

// HasErrors reports whether any field error was recorded.
func (s *State) HasErrors() bool { return len(s.errors) > 0 }

// ClearErrors drops every recorded field error.
func (s *State) ClearErrors() { s.errors = map[string]string{} }

// TemporaryValue returns a request-scoped value that is never submitted.
func (s *State) TemporaryValue(key string) any { return s.temporary[key] }

// SetTemporaryValue stores a request-scoped value.
func (s *State) SetTemporaryValue(key string, v any) { s.temporary[key] = v }

// CachedValues returns the wizard values loaded for this request. Step
// handlers read and write through it; the result is never nil.
func (s *State) CachedValues() map[string]any {
	if v, ok := s.temporary[CachedValuesKey].(map[string]any); ok && v != nil {
		return v
	}
	v := map[string]any{}
	s.temporary[CachedValuesKey] = v
	return v
}

// SetCachedValues replaces the wizard values for this request.
func (s *State) SetCachedValues(v map[string]any) {
	s.temporary[CachedValuesKey] = v
}

// SetRedirect sends the client to route once processing finishes.
func (s *State) SetRedirect(route string, params map[string]string) {
	s.Redirect = &Redirect{Route: route, Params: params}
}
