package app

import (
	"context"
	"errors"
	"fmt"

	"scavenger/internal/config"
	"scavenger/internal/repo"
)

// ResolveConfig loads the active ledger config, preferring the copy stored in
// the database, then a scavenger.yml in the workspace, then built-in defaults.
// Whatever wins is seeded back into the database so later calls agree.
func ResolveConfig(ctx context.Context, workspace string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetLedgerConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	cfg, err = config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default("scavenger")
	}
	if err := r.UpsertLedgerConfig(ctx, cfg); err != nil {
		return nil, fmt.Errorf("seed ledger config: %w", err)
	}
	return cfg, nil
}
