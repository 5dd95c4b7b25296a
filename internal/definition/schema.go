package definition

// DefaultRoute is the step route used when a definition names none.
const DefaultRoute = "wizard.step"

// Definition is one wizard type: a fixed, ordered list of operations sharing
// one cached-values record per machine name.
type Definition struct {
	Name        string         `yaml:"name" json:"name"`
	Label       string         `yaml:"label,omitempty" json:"label,omitempty"`
	Collection  string         `yaml:"collection" json:"collection"`
	Route       string         `yaml:"route,omitempty" json:"route,omitempty"`
	FinishRoute string         `yaml:"finish_route,omitempty" json:"finish_route,omitempty"`
	Defaults    map[string]any `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Operations  []Operation    `yaml:"operations" json:"operations"`
	Conditions  *ConditionSlot `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// Operation is one declared step. Slice order is step order.
type Operation struct {
	Key     string            `yaml:"key" json:"key"`
	Handler string            `yaml:"handler" json:"handler"`
	Title   string            `yaml:"title,omitempty" json:"title,omitempty"`
	With    map[string]string `yaml:"with,omitempty" json:"with,omitempty"`
}

// ConditionSlot wires the condition configure flow into a wizard: conditions
// live under Slot, declared contexts under ContextsSlot, and saving returns
// the client to ReturnStep.
type ConditionSlot struct {
	Slot         string `yaml:"slot" json:"slot"`
	ContextsSlot string `yaml:"contexts_slot,omitempty" json:"contexts_slot,omitempty"`
	ReturnStep   string `yaml:"return_step" json:"return_step"`
}

// Keys returns the operation keys in declared order.
func (d *Definition) Keys() []string {
	keys := make([]string, len(d.Operations))
	for i, op := range d.Operations {
		keys[i] = op.Key
	}
	return keys
}

// Index returns the position of key, or -1.
func (d *Definition) Index(key string) int {
	for i, op := range d.Operations {
		if op.Key == key {
			return i
		}
	}
	return -1
}

// RouteName returns the step route, falling back to DefaultRoute.
func (d *Definition) RouteName() string {
	if d.Route == "" {
		return DefaultRoute
	}
	return d.Route
}
