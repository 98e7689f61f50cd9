package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/capacity-cli/internal/catalog"
	"github.com/sells-group/capacity-cli/internal/config"
	"github.com/sells-group/capacity-cli/internal/geo"
	"github.com/sells-group/capacity-cli/internal/store"
)

// initStore opens the configured run store. It returns nil for the "none"
// driver.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case config.DriverNone:
		return nil, nil
	case config.DriverSQLite:
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "capacity.db"
		}
		st, err = store.NewSQLite(dsn)
	case config.DriverPostgres:
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

// requireStore is initStore for commands that cannot work without one.
func requireStore(ctx context.Context) (store.Store, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run store is disabled (store.driver=none)")
	}
	return st, nil
}

func initCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.New(), nil
	}
	return catalog.Load(path)
}

func initReprojector() (*geo.Reprojector, error) {
	defs, err := cfg.Capacity.Definitions()
	if err != nil {
		return nil, err
	}
	return geo.NewReprojector(defs), nil
}
