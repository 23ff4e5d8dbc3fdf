package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/gastoabierto/ordenes-cli/internal/store"
)

// initStore opens the run archive. The archive is operator tooling, not
// pipeline state: callers that can work without it should treat a nil
// return from initStoreOptional as "archive disabled".
func initStore(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Store.DatabaseURL)
	if err != nil {
		return nil, eris.Wrap(err, "open run archive")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate run archive")
	}
	return st, nil
}

// initStoreOptional opens the run archive but degrades to nil when the
// database cannot be opened, so a broken archive never blocks a batch.
func initStoreOptional(ctx context.Context) store.Store {
	st, err := initStore(ctx)
	if err != nil {
		zap.L().Warn("run archive unavailable, continuing without it", zap.Error(err))
		return nil
	}
	return st
}
