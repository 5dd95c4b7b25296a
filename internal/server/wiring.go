package server

import (
	"fmt"
	"log/slog"

	"github.com/stevehiehn/formwizard/internal/condition"
	"github.com/stevehiehn/formwizard/internal/definition"
	"github.com/stevehiehn/formwizard/internal/route"
	"github.com/stevehiehn/formwizard/internal/step"
	"github.com/stevehiehn/formwizard/internal/tempstore"
	"github.com/stevehiehn/formwizard/internal/wizard"
)

// FromDefinitions creates a server with one engine per definition, all
// backed by stores. Wizards declaring conditions get a condition flow whose
// node_type plugin offers bundles.
func FromDefinitions(defs []*definition.Definition, stores tempstore.Factory, bundles map[string]string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	routes := route.NewTable()
	metrics := NewMetrics()
	srv := New(routes, metrics, logger)

	steps := step.NewRegistry()
	plugins := condition.NewManager()
	condition.RegisterBuiltins(plugins, bundles)

	for _, def := range defs {
		e, err := wizard.New(def, stores, steps, wizard.WithLogger(logger), wizard.WithObserver(metrics))
		if err != nil {
			return nil, fmt.Errorf("wizard %q: %w", def.Name, err)
		}
		var flow *condition.Flow
		if def.Conditions != nil {
			hooks := condition.SlotHooks(def.Name, def.RouteName(), *def.Conditions)
			if flow, err = condition.NewFlow(stores, plugins, hooks, routes, logger); err != nil {
				return nil, fmt.Errorf("wizard %q: %w", def.Name, err)
			}
		}
		if err := srv.Register(e, flow); err != nil {
			return nil, err
		}
		logger.Debug("wizard registered", "wizard", def.Name, "steps", len(def.Operations), "conditions", flow != nil)
	}
	return srv, nil
}
