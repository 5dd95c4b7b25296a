package wizard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stevehiehn/formwizard/internal/definition"
	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/form"
	"github.com/stevehiehn/formwizard/internal/step"
	"github.com/stevehiehn/formwizard/internal/tempstore"
)

// Values of Parameters.JS
const (
	JSAjax = "ajax"
	JSNoJS = "nojs"
)

// Transition names reported to an Observer.
const (
	TransitionNext     = "next"
	TransitionPrevious = "previous"
	TransitionFinish   = "finish"
)

// Parameters identify a step to navigate to.
type Parameters struct {
	MachineName string `json:"machine_name"`
	Step        string `json:"step"`
	JS          string `json:"js"`
}

// Map renders the parameters as route parameters.
func (p Parameters) Map() map[string]string {
	return map[string]string{
		"machine_name": p.MachineName,
		"step":         p.Step,
		"js":           p.JS,
	}
}

// Hooks carry the behaviour a wizard type customises.
type Hooks struct {
	// DefaultFormElements returns the elements placed ahead of the first
	// step's own fields. Defaults to DefaultElements.
	DefaultFormElements func(cached map[string]any) []form.Element
	// MachineNameExists reports whether id is already taken outside the
	// tempstore, e.g. by a saved configuration object.
	MachineNameExists func(ctx context.Context, id string) (bool, error)
}

// Observer is told about every completed transition.
type Observer interface {
	Transition(wizard, transition string)
}

// Engine drives one wizard type. It is immutable and safe for concurrent use;
// per-request state lives in the Wizard values it hands out.
type Engine struct {
	def      *definition.Definition
	stores   tempstore.Factory
	steps    *step.Registry
	hooks    Hooks
	logger   *slog.Logger
	observer Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks overrides the wizard hooks.
func WithHooks(h Hooks) Option {
	return func(e *Engine) { e.hooks = h }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithObserver registers an observer for transitions.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// New creates the engine for def. The definition is validated against the
// step registry.
func New(def *definition.Definition, stores tempstore.Factory, steps *step.Registry, opts ...Option) (*Engine, error) {
	if err := definition.Validate(def, steps); err != nil {
		return nil, err
	}
	e := &Engine{
		def:    def,
		stores: stores,
		steps:  steps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.hooks.DefaultFormElements == nil {
		e.hooks.DefaultFormElements = DefaultElements
	}
	e.logger = e.logger.With("wizard", def.Name)
	return e, nil
}

// Definition returns the wizard type definition.
func (e *Engine) Definition() *definition.Definition { return e.def }

// Store returns the tempstore collection of this wizard type.
func (e *Engine) Store() tempstore.Store { return e.stores.Get(e.def.Collection) }

// Wizard returns the request-scoped wizard for machineName positioned at
// step. An empty step starts at the first operation; an empty machineName
// starts a new session named by the first step's submitted id.
func (e *Engine) Wizard(machineName, stepKey string) (*Wizard, error) {
	if stepKey != "" && e.def.Index(stepKey) < 0 {
		return nil, &wzerrors.WizardError{
			Type:    wzerrors.UnknownStep,
			Wizard:  e.def.Name,
			Step:    stepKey,
			Message: fmt.Sprintf("wizard %q has no step %q", e.def.Name, stepKey),
		}
	}
	return &Wizard{engine: e, machineName: machineName, step: stepKey}, nil
}

func (e *Engine) observe(transition string) {
	if e.observer != nil {
		e.observer.Transition(e.def.Name, transition)
	}
}

// DefaultElements is the label and machine-name pair shown on the first step.
func DefaultElements(cached map[string]any) []form.Element {
	label, _ := cached["label"].(string)
	id, _ := cached["id"].(string)
	return []form.Element{
		{
			Name:     "label",
			Type:     form.TypeTextfield,
			Title:    "Label",
			Default:  label,
			Required: true,
		},
		{
			Name:        "id",
			Type:        form.TypeMachineName,
			Title:       "Machine name",
			Description: "A unique name containing only lowercase letters, numbers and underscores.",
			Default:     id,
			Required:    true,
			Source:      "label",
		},
	}
}
