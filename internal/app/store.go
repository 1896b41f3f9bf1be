package app

import (
	"context"

	"github.com/deusflow/newsbrief/internal/config"
	"github.com/deusflow/newsbrief/internal/logger"
	"github.com/deusflow/newsbrief/internal/storage"
)

// OpenStore picks PostgreSQL when a database URL is configured and the JSON
// file store otherwise.
func OpenStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL != "" {
		logger.Info("🗄️ Using PostgreSQL store")
		return storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	}
	logger.Info("🗄️ Using file store", "path", cfg.StatePath)
	return storage.NewFileStore(cfg.StatePath), nil
}
