package wizard

import (
	"context"
	"fmt"
	"regexp"

	"github.com/stevehiehn/formwizard/internal/ajax"
	"github.com/stevehiehn/formwizard/internal/definition"
	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/form"
	"github.com/stevehiehn/formwizard/internal/step"
)

// Action names and labels of the navigation buttons.
const (
	ActionSubmit   = "submit"
	ActionPrevious = "previous"

	LabelNext     = "Next"
	LabelFinish   = "Finish"
	LabelPrevious = "Previous"
)

var machineNameRe = regexp.MustCompile(`^[a-z0-9_]+$`)

// Wizard is one request's view of a wizard session. It remembers the machine
// name and the active step; it must not be shared between requests.
type Wizard struct {
	engine      *Engine
	machineName string
	step        string
}

// MachineName returns the session key, empty until the first step names it.
func (w *Wizard) MachineName() string { return w.machineName }

// Collection returns the tempstore collection name.
func (w *Wizard) Collection() string { return w.engine.def.Collection }

// Step returns the active step key. When no step was given the first
// operation's key is remembered and returned. cached is accepted for
// wizard types whose step depends on the session; this one does not.
func (w *Wizard) Step(cached map[string]any) string {
	if w.step == "" || w.engine.def.Index(w.step) < 0 {
		w.step = w.engine.def.Operations[0].Key
	}
	return w.step
}

// Operation returns the active operation, or the first one when the step is
// not declared.
func (w *Wizard) Operation(cached map[string]any) definition.Operation {
	ops := w.engine.def.Operations
	if i := w.engine.def.Index(w.Step(cached)); i >= 0 {
		return ops[i]
	}
	return ops[0]
}

// NextParameters returns the step after the active one. ok is false on the
// last step, which finishes instead of navigating.
func (w *Wizard) NextParameters(cached map[string]any) (p Parameters, ok bool) {
	keys := w.engine.def.Keys()
	i := w.engine.def.Index(w.Step(cached))
	after := keys[i+1:]
	if len(after) == 0 {
		return Parameters{MachineName: w.machineName, JS: JSNoJS}, false
	}
	return Parameters{MachineName: w.machineName, Step: after[0], JS: JSNoJS}, true
}

// PreviousParameters returns the step before the active one. ok is false on
// the first step.
func (w *Wizard) PreviousParameters(cached map[string]any) (p Parameters, ok bool) {
	keys := w.engine.def.Keys()
	i := w.engine.def.Index(w.Step(cached))
	before := keys[:i]
	if len(before) == 0 {
		return Parameters{MachineName: w.machineName, JS: JSNoJS}, false
	}
	return Parameters{MachineName: w.machineName, Step: before[len(before)-1], JS: JSNoJS}, true
}

// InitValues seeds the session with values unless one already exists. It
// reports whether the seed was written; it never overwrites an in-progress
// session.
func (w *Wizard) InitValues(ctx context.Context, values map[string]any) (bool, error) {
	if w.machineName == "" {
		return false, nil
	}
	seed := map[string]any{}
	for k, v := range w.engine.def.Defaults {
		seed[k] = v
	}
	for k, v := range values {
		seed[k] = v
	}
	written, err := w.engine.Store().SetIfNotExists(ctx, w.machineName, seed)
	if err != nil {
		return false, err
	}
	if written {
		w.engine.logger.Info("wizard session created", "machine_name", w.machineName)
	}
	return written, nil
}

// Values returns the stored session values, or nil when there is no session.
func (w *Wizard) Values(ctx context.Context) (map[string]any, error) {
	if w.machineName == "" {
		return nil, nil
	}
	return w.engine.Store().Get(ctx, w.machineName)
}

// handler resolves the active operation's step handler.
func (w *Wizard) handler(cached map[string]any) (step.Handler, definition.Operation, error) {
	op := w.Operation(cached)
	h, err := w.engine.steps.Resolve(op.Handler, op.With)
	if err != nil {
		return nil, op, fmt.Errorf("step %q: %w", op.Key, err)
	}
	return h, op, nil
}

// FormID returns the form id of the active step's handler.
func (w *Wizard) FormID(ctx context.Context) (string, error) {
	cached, err := w.Values(ctx)
	if err != nil {
		return "", err
	}
	h, _, err := w.handler(cached)
	if err != nil {
		return "", err
	}
	return h.FormID(), nil
}

// BuildForm loads the session into st and builds the active step's form.
// The first step is preceded by the default form elements; navigation
// actions are appended last.
func (w *Wizard) BuildForm(ctx context.Context, st *form.State) (*form.Form, error) {
	if err := w.PopulateCachedValues(ctx, st); err != nil {
		return nil, err
	}
	cached := st.CachedValues()

	h, op, err := w.handler(cached)
	if err != nil {
		return nil, err
	}

	f := form.New(h.FormID())
	f.Step = op.Key
	if op.Key == w.engine.def.Operations[0].Key {
		for _, el := range w.engine.hooks.DefaultFormElements(cached) {
			f.Add(el)
		}
	}
	if err := h.Build(ctx, f, st); err != nil {
		return nil, fmt.Errorf("building step %q: %w", op.Key, err)
	}
	if op.Title != "" {
		f.Title = op.Title
	}
	f.SetActions(w.Actions(h, st)...)

	w.engine.logger.Debug("wizard form built",
		"machine_name", w.machineName,
		"step", op.Key,
		"ajax", st.Ajax,
	)
	return f, nil
}

// Actions returns the navigation buttons for the active step.
//
// The submit button ("Next", or "Finish" on the last step) validates with
// the session loaded, then the handler, then the wizard. "Previous" only
// loads the session and never validates, so invalid input cannot block
// navigating backwards. It is omitted on the first step.
func (w *Wizard) Actions(h step.Handler, st *form.State) []*form.Action {
	cached := st.CachedValues()
	_, hasNext := w.NextParameters(cached)
	_, hasPrevious := w.PreviousParameters(cached)

	submit := &form.Action{
		Name:       ActionSubmit,
		Label:      LabelNext,
		ButtonType: "primary",
		Validate:   []form.Handler{w.PopulateCachedValues, h.Validate, w.Validate},
		Submit:     []form.Handler{h.Submit, w.Submit},
	}
	actions := []*form.Action{submit}

	var previous *form.Action
	if hasPrevious {
		previous = &form.Action{
			Name:           ActionPrevious,
			Label:          LabelPrevious,
			Weight:         -10,
			Validate:       []form.Handler{w.PopulateCachedValues},
			Submit:         []form.Handler{w.Previous},
			SkipValidation: true,
		}
		actions = append(actions, previous)
	}

	if st.Ajax {
		submit.Ajax = w.AjaxSubmit
		if previous != nil {
			previous.Ajax = w.AjaxPrevious
		}
	}

	if !hasNext {
		submit.Label = LabelFinish
		submit.Submit = append(submit.Submit, w.Finish)
		if st.Ajax {
			submit.Ajax = w.AjaxFinish
		}
	}
	return actions
}

// PopulateCachedValues loads the session into st. It runs first in every
// validate pipeline.
func (w *Wizard) PopulateCachedValues(ctx context.Context, st *form.State) error {
	cached, err := w.Values(ctx)
	if err != nil {
		return err
	}
	if cached == nil {
		cached = map[string]any{}
	}
	st.SetCachedValues(cached)
	return nil
}

// Validate checks the wizard-level fields. A new session's machine name must
// be well formed and not already in use.
func (w *Wizard) Validate(ctx context.Context, st *form.State) error {
	if w.machineName != "" || !st.HasValue("id") {
		return nil
	}
	id := st.StringValue("id")
	if id == "" {
		return nil
	}
	if !machineNameRe.MatchString(id) {
		st.SetError("id", "The machine-readable name must contain only lowercase letters, numbers, and underscores.")
		return nil
	}
	existing, err := w.engine.Store().Metadata(ctx, id)
	if err != nil {
		return err
	}
	taken := existing != nil
	if !taken && w.engine.hooks.MachineNameExists != nil {
		if taken, err = w.engine.hooks.MachineNameExists(ctx, id); err != nil {
			return err
		}
	}
	if taken {
		st.SetError("id", "The machine-readable name is already in use. It must be unique.")
	}
	return nil
}

// Submit merges the step into the session and persists it. It only acts
// when the submit button triggered processing, so partial AJAX rebuilds
// never advance the wizard.
func (w *Wizard) Submit(ctx context.Context, st *form.State) error {
	if st.Triggered != ActionSubmit {
		return nil
	}
	cached := st.CachedValues()
	if st.HasValue("label") {
		cached["label"] = st.Value("label")
	}
	if st.HasValue("id") {
		cached["id"] = st.Value("id")
	}
	if w.machineName == "" {
		if id, ok := cached["id"].(string); ok && id != "" {
			w.machineName = id
		}
	}
	if w.machineName == "" {
		return wzerrors.NewValidationError(w.Step(cached), map[string]string{"id": "A machine name is required."})
	}

	if next, ok := w.NextParameters(cached); ok {
		st.SetRedirect(w.engine.def.RouteName(), next.Map())
	} else if w.engine.def.FinishRoute != "" {
		st.SetRedirect(w.engine.def.FinishRoute, map[string]string{"machine_name": w.machineName})
	}

	if err := w.engine.Store().Set(ctx, w.machineName, cached); err != nil {
		return err
	}
	w.engine.logger.Info("wizard step saved", "machine_name", w.machineName, "step", w.Step(cached))
	w.engine.observe(TransitionNext)
	return nil
}

// Previous redirects to the preceding step. It never persists.
func (w *Wizard) Previous(ctx context.Context, st *form.State) error {
	cached := st.CachedValues()
	if prev, ok := w.PreviousParameters(cached); ok {
		st.SetRedirect(w.engine.def.RouteName(), prev.Map())
	}
	w.engine.logger.Info("wizard stepped back", "machine_name", w.machineName, "step", w.Step(cached))
	w.engine.observe(TransitionPrevious)
	return nil
}

// Finish deletes the session. No navigation follows.
func (w *Wizard) Finish(ctx context.Context, st *form.State) error {
	if err := w.engine.Store().Delete(ctx, w.machineName); err != nil {
		return err
	}
	w.engine.logger.Info("wizard finished", "machine_name", w.machineName)
	w.engine.observe(TransitionFinish)
	return nil
}

// AjaxSubmit reopens the modal on the next step.
func (w *Wizard) AjaxSubmit(ctx context.Context, st *form.State) (*ajax.Response, error) {
	p, _ := w.NextParameters(st.CachedValues())
	return ajax.NewResponse(w.openModal(p)), nil
}

// AjaxPrevious reopens the modal on the previous step.
func (w *Wizard) AjaxPrevious(ctx context.Context, st *form.State) (*ajax.Response, error) {
	p, _ := w.PreviousParameters(st.CachedValues())
	return ajax.NewResponse(w.openModal(p)), nil
}

// AjaxFinish closes the modal.
func (w *Wizard) AjaxFinish(ctx context.Context, st *form.State) (*ajax.Response, error) {
	return ajax.NewResponse(ajax.CloseModal{}), nil
}

func (w *Wizard) openModal(p Parameters) ajax.OpenModalWizard {
	return ajax.OpenModalWizard{
		Wizard:      w.engine.def.Name,
		Collection:  w.engine.def.Collection,
		MachineName: p.MachineName,
		Step:        p.Step,
	}
}
