package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/stevehiehn/formwizard/internal/config"
	"github.com/stevehiehn/formwizard/internal/tempstore"
)

// parseValues converts ["key=value", ...] to a map.
func parseValues(raw []string) map[string]any {
	m := map[string]any{}
	for _, kv := range raw {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}

func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	return config.Load(configPath)
}

// openStore opens the configured tempstore backend. The returned close
// function is never nil.
func openStore(ctx context.Context, cfg *config.Config) (tempstore.Factory, func() error, error) {
	opts := []tempstore.Option{tempstore.WithExpire(cfg.Store.TTL)}
	if host, err := os.Hostname(); err == nil {
		opts = append(opts, tempstore.WithOwner("cli@"+host))
	}
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		f, err := tempstore.OpenSQLite(cfg.Store.DSN, opts...)
		if err != nil {
			return nil, nil, err
		}
		return f, f.Close, nil
	case config.DriverRedis:
		client, err := tempstore.DialRedis(ctx, cfg.Store.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return tempstore.NewRedisFactory(client, cfg.Store.Prefix, opts...), client.Close, nil
	case config.DriverMemory:
		return tempstore.NewMemoryFactory(opts...), func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
