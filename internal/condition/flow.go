package condition

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/stevehiehn/formwizard/internal/ajax"
	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/form"
	"github.com/stevehiehn/formwizard/internal/route"
	"github.com/stevehiehn/formwizard/internal/tempstore"
)

// FormID is the id of every condition configuration form.
const FormID = "condition_configure"

// Keys used in form state.
const (
	// GatheredContextsKey holds the map[string]ContextDefinition built from
	// the wizard's declared contexts.
	GatheredContextsKey = "gathered_contexts"
	// ContextMappingKey is the submitted slot-to-context mapping. Nested
	// maps and "context_mapping.<slot>" values are both accepted.
	ContextMappingKey = "context_mapping"

	collectionKey  = "tempstore_id"
	machineNameKey = "machine_name"
)

// Flow configures one condition of a wizard session.
type Flow struct {
	stores  tempstore.Factory
	manager *Manager
	hooks   Hooks
	routes  *route.Table
	logger  *slog.Logger
}

// NewFlow creates a flow. routes resolves the post-save route for AJAX
// clients. Every hook must be set.
func NewFlow(stores tempstore.Factory, manager *Manager, hooks Hooks, routes *route.Table, logger *slog.Logger) (*Flow, error) {
	if err := hooks.check(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		stores:  stores,
		manager: manager,
		hooks:   hooks,
		routes:  routes,
		logger:  logger.With("component", "condition"),
	}, nil
}

func (fl *Flow) load(ctx context.Context, collection, machineName string) (map[string]any, error) {
	cached, err := fl.stores.Get(collection).Get(ctx, machineName)
	if err != nil {
		return nil, err
	}
	if cached == nil {
		cached = map[string]any{}
	}
	return cached, nil
}

// Build returns the configuration form for conditionRef. A numeric ref
// edits the stored condition at that index; anything else is a plugin id
// and creates a new condition.
func (fl *Flow) Build(ctx context.Context, st *form.State, conditionRef, collection, machineName string) (*form.Form, error) {
	st.SetTemporaryValue(collectionKey, collection)
	st.SetTemporaryValue(machineNameKey, machineName)

	cached, err := fl.load(ctx, collection, machineName)
	if err != nil {
		return nil, err
	}
	st.SetCachedValues(cached)

	var (
		instance Plugin
		index    = -1
	)
	if n, convErr := strconv.Atoi(conditionRef); convErr == nil {
		conditions, err := fl.hooks.Conditions(cached)
		if err != nil {
			return nil, err
		}
		if err := checkIndex(n, len(conditions)); err != nil {
			return nil, err
		}
		stored := conditions[n]
		if instance, err = fl.manager.CreateInstance(stored.ID, stored.Configuration); err != nil {
			return nil, err
		}
		if ca, ok := instance.(ContextAware); ok && stored.ContextMapping != nil {
			ca.SetContextMapping(stored.ContextMapping)
		}
		index = n
	} else if instance, err = fl.manager.CreateInstance(conditionRef, nil); err != nil {
		return nil, err
	}

	declared, err := fl.hooks.Contexts(cached)
	if err != nil {
		return nil, err
	}
	gathered := make(map[string]ContextDefinition, len(declared))
	for _, c := range declared {
		gathered[c.MachineName] = c.Context
	}
	st.SetTemporaryValue(GatheredContextsKey, gathered)

	f := form.New(FormID)
	if err := instance.BuildConfigurationForm(ctx, f, st); err != nil {
		return nil, err
	}
	if index >= 0 {
		f.Add(form.Element{Name: "id", Type: form.TypeValue, Value: index})
	}
	f.Add(form.Element{Name: "instance", Type: form.TypeValue, Value: instance})
	f.SetActions(&form.Action{
		Name:       "submit",
		Label:      "Save",
		ButtonType: "primary",
		Validate:   []form.Handler{fl.Validate},
		Submit:     []form.Handler{fl.Submit},
		Ajax:       fl.AjaxSave,
	})

	fl.logger.Debug("condition form built",
		"plugin", instance.PluginID(),
		"machine_name", machineName,
		"index", index,
	)
	return f, nil
}

func instanceFrom(st *form.State) (Plugin, error) {
	p, ok := st.Value("instance").(Plugin)
	if !ok {
		return nil, fmt.Errorf("condition form state carries no plugin instance")
	}
	return p, nil
}

// Validate runs the plugin's validation and checks the submitted context
// mapping against the gathered contexts.
func (fl *Flow) Validate(ctx context.Context, st *form.State) error {
	instance, err := instanceFrom(st)
	if err != nil {
		return err
	}
	if err := instance.ValidateConfigurationForm(ctx, st); err != nil {
		return err
	}
	if _, ok := instance.(ContextAware); !ok {
		return nil
	}
	gathered, _ := st.TemporaryValue(GatheredContextsKey).(map[string]ContextDefinition)
	for slot, name := range SubmittedContextMapping(st) {
		if _, ok := gathered[name]; !ok {
			st.SetError(ContextMappingKey+"."+slot, fmt.Sprintf("Context %q is not available.", name))
		}
	}
	return nil
}

// Submit stores the configured condition. Edits replace the entry at the
// carried index; new conditions are appended.
func (fl *Flow) Submit(ctx context.Context, st *form.State) error {
	collection, _ := st.TemporaryValue(collectionKey).(string)
	machineName, _ := st.TemporaryValue(machineNameKey).(string)

	cached, err := fl.load(ctx, collection, machineName)
	if err != nil {
		return err
	}
	instance, err := instanceFrom(st)
	if err != nil {
		return err
	}
	if err := instance.SubmitConfigurationForm(ctx, st); err != nil {
		return err
	}
	conditions, err := fl.hooks.Conditions(cached)
	if err != nil {
		return err
	}

	stored := Instance{ID: instance.PluginID(), Configuration: instance.Configuration()}
	if ca, ok := instance.(ContextAware); ok {
		ca.SetContextMapping(SubmittedContextMapping(st))
		stored.ContextMapping = ca.ContextMapping()
	}

	if st.HasValue("id") {
		index, err := toIndex(st.Value("id"))
		if err != nil {
			return err
		}
		if err := checkIndex(index, len(conditions)); err != nil {
			return err
		}
		conditions[index] = stored
		fl.logger.Info("condition updated", "plugin", stored.ID, "machine_name", machineName, "index", index)
	} else {
		conditions = append(conditions, stored)
		fl.logger.Info("condition added", "plugin", stored.ID, "machine_name", machineName, "index", len(conditions)-1)
	}

	cached = fl.hooks.SetConditions(cached, conditions)
	if err := fl.stores.Get(collection).Set(ctx, machineName, cached); err != nil {
		return err
	}
	st.SetCachedValues(cached)

	routeName, params := fl.hooks.RouteInfo(machineName)
	st.SetRedirect(routeName, params)
	return nil
}

// AjaxSave redirects modal clients to the post-save route and closes the
// modal.
func (fl *Flow) AjaxSave(ctx context.Context, st *form.State) (*ajax.Response, error) {
	machineName, _ := st.TemporaryValue(machineNameKey).(string)
	routeName, params := fl.hooks.RouteInfo(machineName)
	url, err := fl.routes.URL(routeName, params)
	if err != nil {
		return nil, err
	}
	return ajax.NewResponse(ajax.Redirect{URL: url}, ajax.CloseModal{}), nil
}

// Remove deletes the condition at index.
func (fl *Flow) Remove(ctx context.Context, collection, machineName string, index int) error {
	cached, err := fl.load(ctx, collection, machineName)
	if err != nil {
		return err
	}
	conditions, err := fl.hooks.Conditions(cached)
	if err != nil {
		return err
	}
	if err := checkIndex(index, len(conditions)); err != nil {
		return err
	}
	removed := conditions[index].ID
	conditions = append(conditions[:index], conditions[index+1:]...)
	cached = fl.hooks.SetConditions(cached, conditions)
	if err := fl.stores.Get(collection).Set(ctx, machineName, cached); err != nil {
		return err
	}
	fl.logger.Info("condition removed", "plugin", removed, "machine_name", machineName, "index", index)
	return nil
}

// Conditions returns the stored conditions of a session.
func (fl *Flow) Conditions(ctx context.Context, collection, machineName string) ([]Instance, error) {
	cached, err := fl.load(ctx, collection, machineName)
	if err != nil {
		return nil, err
	}
	return fl.hooks.Conditions(cached)
}

// Plugins lists the plugins conditions can be created from.
func (fl *Flow) Plugins() []PluginInfo { return fl.manager.Definitions() }

// SubmittedContextMapping collects the slot-to-context mapping from st.
func SubmittedContextMapping(st *form.State) map[string]string {
	mapping := map[string]string{}
	switch m := st.Value(ContextMappingKey).(type) {
	case map[string]string:
		for k, v := range m {
			mapping[k] = v
		}
	case map[string]any:
		for k, v := range m {
			if s, ok := v.(string); ok {
				mapping[k] = s
			}
		}
	}
	prefix := ContextMappingKey + "."
	for name := range st.Values {
		if slot, ok := strings.CutPrefix(name, prefix); ok {
			if v := st.StringValue(name); v != "" {
				mapping[slot] = v
			}
		}
	}
	return mapping
}

// ContextMappingElements returns one select per slot of p, offering the
// gathered contexts of the matching data type. A slot is only required when
// some context can fill it.
func ContextMappingElements(p ContextAware, st *form.State) []form.Element {
	gathered, _ := st.TemporaryValue(GatheredContextsKey).(map[string]ContextDefinition)
	defs := p.ContextDefinitions()
	current := p.ContextMapping()

	slots := make([]string, 0, len(defs))
	for slot := range defs {
		slots = append(slots, slot)
	}
	sort.Strings(slots)

	var out []form.Element
	for _, slot := range slots {
		def := defs[slot]
		options := map[string]string{}
		var only string
		for name, c := range gathered {
			if c.DataType != def.DataType {
				continue
			}
			label := c.Label
			if label == "" {
				label = name
			}
			options[name] = label
			only = name
		}
		el := form.Element{
			Name:     ContextMappingKey + "." + slot,
			Type:     form.TypeSelect,
			Title:    def.Label,
			Options:  options,
			Required: len(options) > 0,
		}
		switch {
		case current[slot] != "":
			el.Default = current[slot]
		case len(options) == 1:
			el.Default = only
		}
		out = append(out, el)
	}
	return out
}

func checkIndex(index, length int) error {
	if index < 0 || index >= length {
		return &wzerrors.WizardError{
			Type:    wzerrors.IndexOutOfRange,
			Message: fmt.Sprintf("condition index %d out of range (have %d)", index, length),
		}
	}
	return nil
}

func toIndex(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("condition index %q: %w", n, err)
		}
		return i, nil
	}
	return 0, fmt.Errorf("condition index has type %T", v)
}
