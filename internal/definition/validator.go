package definition

import (
	"fmt"
	"strings"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

// HandlerSet reports whether a step handler name can be resolved.
type HandlerSet interface {
	Known(name string) bool
}

// Validate checks a definition for structural correctness. When handlers is
// nil, handler names are not checked.
func Validate(d *Definition, handlers HandlerSet) error {
	if d.Name == "" {
		return wzerrors.NewDefinitionError("definition has no name", "")
	}
	if d.Collection == "" {
		return wzerrors.NewDefinitionError(fmt.Sprintf("wizard %q has no collection", d.Name),
			"Set collection to the tempstore collection the wizard uses")
	}
	if len(d.Operations) == 0 {
		return wzerrors.NewDefinitionError(fmt.Sprintf("wizard %q has no operations", d.Name), "")
	}

	seen := map[string]bool{}
	for i, op := range d.Operations {
		if op.Key == "" {
			return wzerrors.NewDefinitionError(fmt.Sprintf("wizard %q: operation at index %d has no key", d.Name, i), "")
		}
		if seen[op.Key] {
			return wzerrors.NewDefinitionError(fmt.Sprintf("wizard %q: duplicate operation key %q", d.Name, op.Key),
				"Operation keys must be unique; their order is the step order")
		}
		seen[op.Key] = true

		if op.Handler == "" {
			return wzerrors.NewDefinitionError(fmt.Sprintf("wizard %q: operation %q has no handler", d.Name, op.Key), "")
		}
		if handlers != nil && !handlers.Known(op.Handler) {
			return &wzerrors.WizardError{
				Type:    wzerrors.HandlerNotFound,
				Wizard:  d.Name,
				Step:    op.Key,
				Message: fmt.Sprintf("unknown step handler %q", op.Handler),
			}
		}
	}

	if c := d.Conditions; c != nil {
		if c.Slot == "" {
			return wzerrors.NewDefinitionError(fmt.Sprintf("wizard %q: conditions have no slot", d.Name), "")
		}
		if !seen[c.ReturnStep] {
			return wzerrors.NewDefinitionError(
				fmt.Sprintf("wizard %q: conditions return_step %q is not an operation", d.Name, c.ReturnStep),
				"Known operations: "+strings.Join(d.Keys(), ", "))
		}
	}
	return nil
}
