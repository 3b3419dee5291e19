package artifact

import (
	"context"
	"fmt"

	"auto_blog_package_publisher/config"
	"auto_blog_package_publisher/logger"
)

// Open builds the configured store. Backend "none" returns a nil Store,
// which disables persistence. A pantry id wraps the store in a mirror.
func Open(ctx context.Context, cfg config.Storage, log *logger.Logger) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case "", "file":
		store, err = NewFileStore(cfg.Dir, cfg.User)
	case "redis":
		rdb, dialErr := DialRedis(ctx, cfg.RedisAddr, cfg.RedisDB)
		if dialErr != nil {
			return nil, dialErr
		}
		store = NewRedisStore(rdb, cfg.RedisPrefix, cfg.User)
	case "sqlite":
		store, err = OpenSQLite(cfg.SQLitePath, cfg.User)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.PantryID != "" {
		store = NewMirrored(store, NewPantry(cfg.PantryID, nil), log)
	}
	if log != nil {
		log.Info("artifact store ready", "backend", cfg.Backend, "pantry", cfg.PantryID != "")
	}
	return store, nil
}
