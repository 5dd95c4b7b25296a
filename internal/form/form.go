// Package form describes forms abstractly and runs their validate/submit
// pipelines. Rendering to markup is left to clients; the HTTP server hands
// out the JSON form of Form.
package form

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/stevehiehn/formwizard/internal/ajax"
)

// Element types
const (
	TypeTextfield   = "textfield"
	TypeTextarea    = "textarea"
	TypeMachineName = "machine_name"
	TypeCheckbox    = "checkbox"
	TypeCheckboxes  = "checkboxes"
	TypeSelect      = "select"
	// TypeValue elements are never rendered; their Value is copied into the
	// submitted values before validation.
	TypeValue = "value"
)

// Element is one form field.
type Element struct {
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	Title       string            `json:"title,omitempty"`
	Description string            `json:"description,omitempty"`
	Default     any               `json:"default,omitempty"`
	Required    bool              `json:"required,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
	// Source names the element a machine name is derived from.
	Source string `json:"source,omitempty"`
	Value  any    `json:"-"`
}

// Handler is one stage of a validate or submit pipeline. Field problems are
// reported with State.SetError; a returned error aborts the pipeline.
type Handler func(ctx context.Context, st *State) error

// AjaxCallback shapes the response for modal clients once the submit
// pipeline has run.
type AjaxCallback func(ctx context.Context, st *State) (*ajax.Response, error)

// Action is a submit button and the pipelines it triggers.
type Action struct {
	Name       string
	Label      string
	ButtonType string
	Weight     int
	Validate   []Handler
	Submit     []Handler
	Ajax       AjaxCallback
	// SkipValidation suppresses required-field checks and discards field
	// errors raised by the validate pipeline.
	SkipValidation bool
}

// MarshalJSON renders the button without its pipelines.
func (a *Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name       string `json:"name"`
		Label      string `json:"label"`
		ButtonType string `json:"button_type,omitempty"`
		Weight     int    `json:"weight"`
		Ajax       bool   `json:"ajax,omitempty"`
	}{a.Name, a.Label, a.ButtonType, a.Weight, a.Ajax != nil})
}

// Form is an abstract form description.
type Form struct {
	ID       string    `json:"id"`
	Step     string    `json:"step,omitempty"`
	Title    string    `json:"title,omitempty"`
	Elements []Element `json:"elements"`
	Actions  []*Action `json:"actions"`
}

// New creates an empty form with the given id.
func New(id string) *Form {
	return &Form{ID: id, Elements: []Element{}, Actions: []*Action{}}
}

// Add appends el, replacing an existing element of the same name in place.
func (f *Form) Add(el Element) {
	for i := range f.Elements {
		if f.Elements[i].Name == el.Name {
			f.Elements[i] = el
			return
		}
	}
	f.Elements = append(f.Elements, el)
}

// Prepend inserts elements ahead of the existing ones.
func (f *Form) Prepend(els ...Element) {
	f.Elements = append(append([]Element{}, els...), f.Elements...)
}

// Element returns the element named name.
func (f *Form) Element(name string) (*Element, bool) {
	for i := range f.Elements {
		if f.Elements[i].Name == name {
			return &f.Elements[i], true
		}
	}
	return nil, false
}

// Action returns the action named name, or nil.
func (f *Form) Action(name string) *Action {
	for _, a := range f.Actions {
		if a.Name == name {
			return a
		}
	}
	return nil
}

// SetActions replaces the actions, ordered by weight.
func (f *Form) SetActions(actions ...*Action) {
	sorted := append([]*Action{}, actions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Weight < sorted[j].Weight
	})
	f.Actions = sorted
}

// triggering picks the action named by op, matching label first and name
// second. An empty op selects the first non-negative-weight action.
func (f *Form) triggering(op string) *Action {
	if op != "" {
		for _, a := range f.Actions {
			if a.Label == op {
				return a
			}
		}
		return f.Action(op)
	}
	for _, a := range f.Actions {
		if a.Weight >= 0 {
			return a
		}
	}
	if len(f.Actions) > 0 {
		return f.Actions[0]
	}
	return nil
}
