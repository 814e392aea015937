package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/rfq-cli/internal/gate"
	"github.com/sells-group/rfq-cli/internal/lookup"
	"github.com/sells-group/rfq-cli/internal/store"
	"github.com/sells-group/rfq-cli/internal/triage"
)

// appEnv holds the wired dependencies shared by commands.
type appEnv struct {
	Store   store.Store
	Service *triage.Service
}

// Close releases the store.
func (e *appEnv) Close() {
	if e.Store != nil {
		if err := e.Store.Close(); err != nil {
			zap.L().Warn("close store", zap.Error(err))
		}
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "rfq.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv validates config for mode, opens and migrates the store and wires
// the triage service.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	tables := lookup.Default()
	if cfg.Triage.LookupPath != "" {
		t, err := lookup.LoadFile(cfg.Triage.LookupPath)
		if err != nil {
			return nil, eris.Wrap(err, "load lookup tables")
		}
		tables = t
	}

	floor, err := cfg.Triage.RenewalFloor()
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}

	opts := triage.DefaultOptions()
	opts.LicenseRenewalFloor = &floor
	opts.InsufficientTimeDays = cfg.Triage.InsufficientTimeDays
	opts.BusinessCaseWindow = time.Duration(cfg.Triage.BusinessCaseWindowDays) * 24 * time.Hour

	svc := triage.New(st, tables, gate.NewAutoDeclineSwitch(cfg.Triage.AutoDeclineEnabled), opts)

	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Bool("auto_decline_enabled", cfg.Triage.AutoDeclineEnabled),
	)
	return &appEnv{Store: st, Service: svc}, nil
}
