package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/formwizard/internal/definition"
	"github.com/stevehiehn/formwizard/internal/step"
)

var validateCmd = &cobra.Command{
	Use:   "validate <wizard.yaml>",
	Short: "Validate a wizard definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := definition.LoadFile(args[0])
		if err == nil {
			err = definition.Validate(d, step.NewRegistry())
		}
		if err != nil {
			if jsonOutput {
				json.NewEncoder(os.Stdout).Encode(map[string]any{"valid": false, "error": err.Error()})
			} else {
				fmt.Fprintf(os.Stderr, "Validation failed: %s\n", err)
			}
			os.Exit(1)
		}
		if jsonOutput {
			json.NewEncoder(os.Stdout).Encode(map[string]any{"valid": true, "name": d.Name})
		} else {
			fmt.Printf("Wizard %q is valid.\n", d.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
