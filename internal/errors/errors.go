package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// Error type constants
const (
	ValidationError   = "VALIDATION_ERROR"
	UnknownStep       = "UNKNOWN_STEP"
	HandlerNotFound   = "HANDLER_NOT_FOUND"
	PluginNotFound    = "PLUGIN_NOT_FOUND"
	IndexOutOfRange   = "INDEX_OUT_OF_RANGE"
	InvalidDefinition = "INVALID_DEFINITION"
	StoreUnavailable  = "STORE_UNAVAILABLE"
	RouteNotFound     = "ROUTE_NOT_FOUND"
)

// WizardError is a structured error for wizard callers.
type WizardError struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Wizard    string            `json:"wizard,omitempty"`
	Step      string            `json:"step,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Retryable bool              `json:"retryable"`
	Hint      string            `json:"hint,omitempty"`
	Err       error             `json:"-"`
}

func (e *WizardError) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		names := make([]string, 0, len(e.Fields))
		for name := range e.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, name+": "+e.Fields[name])
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Step != "" {
		return fmt.Sprintf("[%s] step %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("[%s] %s", e.Type, msg)
}

func (e *WizardError) Unwrap() error { return e.Err }

// Configuration reports whether the error is an integrator bug (bad link,
// stale reference, broken definition) rather than a runtime condition.
func (e *WizardError) Configuration() bool {
	switch e.Type {
	case UnknownStep, HandlerNotFound, PluginNotFound, IndexOutOfRange, InvalidDefinition, RouteNotFound:
		return true
	}
	return false
}

// IsType reports whether err wraps a WizardError of the given type.
func IsType(err error, typ string) bool {
	var we *WizardError
	if stderrors.As(err, &we) {
		return we.Type == typ
	}
	return false
}

// As returns the WizardError wrapped by err, if any.
func As(err error) (*WizardError, bool) {
	var we *WizardError
	ok := stderrors.As(err, &we)
	return we, ok
}

func NewValidationError(step string, fields map[string]string) *WizardError {
	return &WizardError{
		Type:    ValidationError,
		Step:    step,
		Message: "submitted values are invalid",
		Fields:  fields,
		Hint:    "Correct the highlighted fields and submit again",
	}
}

func NewStoreError(op, key string, err error) *WizardError {
	return &WizardError{
		Type:    StoreUnavailable,
		Message: fmt.Sprintf("tempstore %s %q: %v", op, key, err),
		Err:     err,
	}
}

func NewDefinitionError(msg, hint string) *WizardError {
	return &WizardError{Type: InvalidDefinition, Message: msg, Hint: hint}
}
