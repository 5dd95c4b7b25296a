package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stevehiehn/formwizard/internal/definition"
	"github.com/stevehiehn/formwizard/internal/server"
)

var (
	serveListen string
	serveDir    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the wizards over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveListen != "" {
			cfg.Listen = serveListen
		}
		if serveDir != "" {
			cfg.WizardsDir = serveDir
		}
		logger := cfg.Log.NewLogger(os.Stderr)
		slog.SetDefault(logger)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stores, closeStore, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStore()

		defs, err := definition.LoadDir(cfg.WizardsDir)
		if err != nil {
			return err
		}
		srv, err := server.FromDefinitions(defs, stores, cfg.Conditions.Bundles, logger)
		if err != nil {
			return err
		}
		logger.Info("wizards loaded", "dir", cfg.WizardsDir, "count", len(defs), "store", cfg.Store.Driver)
		return srv.ListenAndServe(ctx, cfg.Listen)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "wizards", "", "Directory of wizard definitions (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
