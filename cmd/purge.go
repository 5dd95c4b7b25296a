package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/formwizard/internal/config"
	"github.com/stevehiehn/formwizard/internal/tempstore"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired sessions from the SQLite store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.Driver != config.DriverSQLite {
			fmt.Fprintf(os.Stderr, "Store driver %q expires sessions on its own; nothing to purge.\n", cfg.Store.Driver)
			return nil
		}
		f, err := tempstore.OpenSQLite(cfg.Store.DSN, tempstore.WithExpire(cfg.Store.TTL))
		if err != nil {
			return err
		}
		defer f.Close()

		n, err := f.Purge(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{"purged": n})
		}
		fmt.Printf("Purged %d expired session(s).\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
