package app

import (
	"context"
	"errors"
	"fmt"

	"ouvidor/internal/config"
	"ouvidor/internal/repo"
)

// ResolveOfficeAndConfig picks the active office and ensures its config
// exists in the database, seeding defaults if missing. It prefers the
// override, then the single office already registered, then the workspace
// config file.
func ResolveOfficeAndConfig(ctx context.Context, workspace, officeOverride string, r repo.Repo) (string, *config.Config, error) {
	officeID := officeOverride
	if officeID == "" {
		if id, cfg, err := r.SingleOfficeConfig(ctx); err == nil {
			return id, cfg, nil
		} else if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		fileCfg, err := config.LoadOptional(workspace)
		if err != nil {
			return "", nil, err
		}
		if fileCfg == nil {
			return "", nil, fmt.Errorf("office not specified; use --office or create %s", config.Path(workspace))
		}
		officeID = fileCfg.Office.ID
		if err := r.UpsertOfficeConfig(ctx, officeID, fileCfg); err != nil {
			return "", nil, fmt.Errorf("seed office config: %w", err)
		}
		return officeID, fileCfg, nil
	}
	cfg, err := r.GetOfficeConfig(ctx, officeID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		cfg = config.Default(officeID)
		if err := r.UpsertOfficeConfig(ctx, officeID, cfg); err != nil {
			return "", nil, fmt.Errorf("seed office config: %w", err)
		}
	}
	cfg.Office.ID = officeID
	return officeID, cfg, nil
}
