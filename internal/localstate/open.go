package localstate

import (
	"context"

	"letspay/internal/config"
)

// Open picks the store backing from service configuration: Postgres when a
// DSN is set, a file store when a path is set, memory otherwise.
func Open(ctx context.Context, cfg config.ServiceConfig) (Store, error) {
	if cfg.PostgresDSN != "" {
		return NewPostgresStore(ctx, cfg.PostgresDSN)
	}
	if cfg.LocalStatePath != "" {
		return NewFileStore(cfg.LocalStatePath)
	}
	return NewMemoryStore(), nil
}
