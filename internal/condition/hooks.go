package condition

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stevehiehn/formwizard/internal/definition"
)

// Hooks tell a Flow where a wizard keeps its conditions and contexts and
// where to send the client after saving.
type Hooks struct {
	RouteInfo     func(machineName string) (route string, params map[string]string)
	Conditions    func(cached map[string]any) ([]Instance, error)
	SetConditions func(cached map[string]any, conditions []Instance) map[string]any
	Contexts      func(cached map[string]any) ([]ContextDeclaration, error)
}

func (h Hooks) check() error {
	var missing []string
	if h.RouteInfo == nil {
		missing = append(missing, "RouteInfo")
	}
	if h.Conditions == nil {
		missing = append(missing, "Conditions")
	}
	if h.SetConditions == nil {
		missing = append(missing, "SetConditions")
	}
	if h.Contexts == nil {
		missing = append(missing, "Contexts")
	}
	if len(missing) > 0 {
		return fmt.Errorf("condition hooks not set: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SlotHooks returns hooks for a wizard declaring a conditions slot. The list
// lives under slot.Slot, contexts under slot.ContextsSlot, and saving returns
// to slot.ReturnStep on routeName.
func SlotHooks(wizard, routeName string, slot definition.ConditionSlot) Hooks {
	return Hooks{
		RouteInfo: func(machineName string) (string, map[string]string) {
			return routeName, map[string]string{
				"wizard":       wizard,
				"js":           "nojs",
				"machine_name": machineName,
				"step":         slot.ReturnStep,
			}
		},
		Conditions: func(cached map[string]any) ([]Instance, error) {
			var out []Instance
			if err := decodeSlot(cached, slot.Slot, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
		SetConditions: func(cached map[string]any, conditions []Instance) map[string]any {
			if cached == nil {
				cached = map[string]any{}
			}
			cached[slot.Slot] = conditions
			return cached
		},
		Contexts: func(cached map[string]any) ([]ContextDeclaration, error) {
			if slot.ContextsSlot == "" {
				return nil, nil
			}
			var out []ContextDeclaration
			if err := decodeSlot(cached, slot.ContextsSlot, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}
}

// decodeSlot converts cached[key] into out through its JSON form. Values
// read back from a store arrive as generic maps and slices.
func decodeSlot(cached map[string]any, key string, out any) error {
	v, ok := cached[key]
	if !ok || v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}
