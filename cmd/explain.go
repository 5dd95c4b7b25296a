package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/formwizard/internal/definition"
	"github.com/stevehiehn/formwizard/internal/step"
	"github.com/stevehiehn/formwizard/internal/tempstore"
	"github.com/stevehiehn/formwizard/internal/wizard"
)

type stepInfo struct {
	Key      string `json:"key"`
	Handler  string `json:"handler"`
	Title    string `json:"title,omitempty"`
	Previous string `json:"previous,omitempty"`
	Next     string `json:"next,omitempty"`
	Finish   bool   `json:"finish,omitempty"`
}

var explainCmd = &cobra.Command{
	Use:   "explain <wizard.yaml>",
	Short: "Show the step order of a wizard",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := definition.LoadFile(args[0])
		if err != nil {
			return err
		}
		e, err := wizard.New(d, tempstore.NewMemoryFactory(), step.NewRegistry())
		if err != nil {
			return err
		}

		var steps []stepInfo
		for _, op := range d.Operations {
			w, err := e.Wizard("", op.Key)
			if err != nil {
				return err
			}
			info := stepInfo{Key: op.Key, Handler: op.Handler, Title: op.Title}
			if p, ok := w.PreviousParameters(nil); ok {
				info.Previous = p.Step
			}
			if p, ok := w.NextParameters(nil); ok {
				info.Next = p.Step
			} else {
				info.Finish = true
			}
			steps = append(steps, info)
		}

		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"name":       d.Name,
				"collection": d.Collection,
				"route":      d.RouteName(),
				"steps":      steps,
			})
		}

		fmt.Printf("Wizard: %s\n", d.Name)
		if d.Label != "" {
			fmt.Printf("  %s\n", d.Label)
		}
		fmt.Printf("  Collection: %s\n", d.Collection)
		fmt.Println()
		for _, s := range steps {
			fmt.Printf("Step: %s (%s)\n", s.Key, s.Handler)
			if s.Title != "" {
				fmt.Printf("  Title: %s\n", s.Title)
			}
			if s.Previous != "" {
				fmt.Printf("  Previous: %s\n", s.Previous)
			}
			if s.Finish {
				fmt.Println("  Next: finish")
			} else {
				fmt.Printf("  Next: %s\n", s.Next)
			}
			fmt.Println()
		}
		if c := d.Conditions; c != nil {
			fmt.Printf("Conditions: stored under %q, saving returns to %q\n", c.Slot, c.ReturnStep)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(explainCmd)
}
