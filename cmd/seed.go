package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/formwizard/internal/definition"
	"github.com/stevehiehn/formwizard/internal/step"
	"github.com/stevehiehn/formwizard/internal/wizard"
)

var seedValues []string

var seedCmd = &cobra.Command{
	Use:   "seed <wizard> <machine_name>",
	Short: "Start a wizard session with initial values",
	Long:  "Seeds the session of <machine_name> in the configured store. An existing session is left untouched.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		defs, err := definition.LoadDir(cfg.WizardsDir)
		if err != nil {
			return err
		}
		var def *definition.Definition
		for _, d := range defs {
			if d.Name == args[0] {
				def = d
			}
		}
		if def == nil {
			return fmt.Errorf("no wizard named %q in %s", args[0], cfg.WizardsDir)
		}

		stores, closeStore, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		e, err := wizard.New(def, stores, step.NewRegistry(), wizard.WithLogger(cfg.Log.NewLogger(os.Stderr)))
		if err != nil {
			return err
		}
		w, err := e.Wizard(args[1], "")
		if err != nil {
			return err
		}
		created, err := w.InitValues(cmd.Context(), parseValues(seedValues))
		if err != nil {
			return err
		}
		values, err := w.Values(cmd.Context())
		if err != nil {
			return err
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"machine_name": w.MachineName(),
				"created":      created,
				"values":       values,
			})
		}
		if created {
			fmt.Printf("Session %q created.\n", w.MachineName())
		} else {
			fmt.Printf("Session %q already exists; left unchanged.\n", w.MachineName())
		}
		return nil
	},
}

func init() {
	seedCmd.Flags().StringArrayVar(&seedValues, "value", nil, "Initial values (key=value)")
	rootCmd.AddCommand(seedCmd)
}
