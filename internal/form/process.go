package form

import (
	"context"
	"fmt"
	"strings"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

// Process runs the pipelines of the action selected by st.Op.
//
// Required fields are checked first, then the action's validate handlers run
// in order. Field errors stop processing before any submit handler runs and
// are returned as a VALIDATION_ERROR. Actions with SkipValidation discard
// field errors. For AJAX state the action's callback fills st.Response.
//
// Submitted values that no element declares are dropped before any handler
// runs.
func Process(ctx context.Context, f *Form, st *State) (*Action, error) {
	act := f.triggering(st.Op)
	if act == nil {
		return nil, fmt.Errorf("form %s: no action matches %q", f.ID, st.Op)
	}
	st.Triggered = act.Name

	for name := range st.Values {
		if !f.declares(name) {
			delete(st.Values, name)
		}
	}

	for _, el := range f.Elements {
		if el.Type == TypeValue {
			st.SetValue(el.Name, el.Value)
		}
	}

	if !act.SkipValidation {
		for _, el := range f.Elements {
			if el.Required && isEmpty(st.Value(el.Name)) {
				title := el.Title
				if title == "" {
					title = el.Name
				}
				st.SetError(el.Name, title+" field is required.")
			}
		}
	}

	for _, h := range act.Validate {
		if err := h(ctx, st); err != nil {
			return act, err
		}
	}
	if act.SkipValidation {
		st.ClearErrors()
	}
	if st.HasErrors() {
		return act, wzerrors.NewValidationError(f.Step, st.Errors())
	}

	for _, h := range act.Submit {
		if err := h(ctx, st); err != nil {
			return act, err
		}
	}

	if st.Ajax && act.Ajax != nil {
		resp, err := act.Ajax(ctx, st)
		if err != nil {
			return act, err
		}
		st.Response = resp
	}
	return act, nil
}

// declares reports whether a submitted value named name belongs to f. A name
// that prefixes dotted element names ("context_mapping" for
// "context_mapping.node") carries their nested values and is declared too.
func (f *Form) declares(name string) bool {
	for _, el := range f.Elements {
		if el.Name == name || strings.HasPrefix(el.Name, name+".") {
			return true
		}
	}
	return false
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}
