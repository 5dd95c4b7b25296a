// Package condition configures condition plugins inside a wizard session.
//
// Conditions are stored as an ordered list of Instance values in the
// session's cached values. Flow builds the configuration form for one
// plugin, either a new one (create) or an existing list entry (edit), and
// writes the result back on save.
package condition

import (
	"context"
	"fmt"
	"sort"
	"sync"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
	"github.com/stevehiehn/formwizard/internal/form"
)

// Plugin is a configurable condition.
type Plugin interface {
	PluginID() string
	// Configuration returns the plugin's current settings in JSON shapes.
	Configuration() map[string]any
	BuildConfigurationForm(ctx context.Context, f *form.Form, st *form.State) error
	ValidateConfigurationForm(ctx context.Context, st *form.State) error
	SubmitConfigurationForm(ctx context.Context, st *form.State) error
}

// ContextAware plugins read values from contexts bound to their slots.
type ContextAware interface {
	Plugin
	// ContextDefinitions maps each slot the plugin needs to the data type it
	// accepts.
	ContextDefinitions() map[string]ContextDefinition
	ContextMapping() map[string]string
	SetContextMapping(mapping map[string]string)
}

// Instance is one stored condition.
type Instance struct {
	ID             string            `json:"id"`
	Configuration  map[string]any    `json:"configuration,omitempty"`
	ContextMapping map[string]string `json:"context_mapping,omitempty"`
}

// ContextDefinition describes the data a context provides.
type ContextDefinition struct {
	DataType string `json:"type" yaml:"type"`
	Label    string `json:"label,omitempty" yaml:"label,omitempty"`
}

// ContextDeclaration is a context the wizard makes available, as stored in
// its cached values.
type ContextDeclaration struct {
	MachineName string            `json:"machine_name" yaml:"machine_name"`
	Context     ContextDefinition `json:"context" yaml:"context"`
}

// Factory creates a plugin from stored configuration. config is nil for a
// new instance.
type Factory func(config map[string]any) (Plugin, error)

// PluginInfo describes a registered plugin.
type PluginInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type registration struct {
	info    PluginInfo
	factory Factory
}

// Manager creates condition plugins by id.
type Manager struct {
	mu      sync.RWMutex
	plugins map[string]registration
}

// NewManager creates an empty manager. See RegisterBuiltins.
func NewManager() *Manager {
	return &Manager{plugins: map[string]registration{}}
}

// Register adds or replaces the plugin registered under id.
func (m *Manager) Register(id, label string, f Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins[id] = registration{info: PluginInfo{ID: id, Label: label}, factory: f}
}

// CreateInstance returns a new plugin for id configured with config.
func (m *Manager) CreateInstance(id string, config map[string]any) (Plugin, error) {
	m.mu.RLock()
	reg, ok := m.plugins[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &wzerrors.WizardError{
			Type:    wzerrors.PluginNotFound,
			Message: fmt.Sprintf("unknown condition plugin %q", id),
		}
	}
	p, err := reg.factory(config)
	if err != nil {
		return nil, fmt.Errorf("condition plugin %q: %w", id, err)
	}
	return p, nil
}

// Definitions lists the registered plugins sorted by id.
func (m *Manager) Definitions() []PluginInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PluginInfo, 0, len(m.plugins))
	for _, reg := range m.plugins {
		out = append(out, reg.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RegisterBuiltins registers node_type and request_path. bundles are the
// node bundles offered by node_type, keyed by machine name.
func RegisterBuiltins(m *Manager, bundles map[string]string) {
	m.Register(NodeTypeID, "Node bundle", func(config map[string]any) (Plugin, error) {
		return newNodeType(bundles, config), nil
	})
	m.Register(RequestPathID, "Request path", func(config map[string]any) (Plugin, error) {
		return newRequestPath(config), nil
	})
}
