package dedup

import (
	"context"
	"fmt"

	"github.com/mattjoyce/chatrelay/internal/config"
	"github.com/mattjoyce/chatrelay/internal/storage"
)

// Open builds the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.DedupConfig) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		db, err := storage.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open dedup sqlite: %w", err)
		}
		return NewSQLStore(db, DialectSQLite), nil
	case "postgres":
		db, err := storage.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open dedup postgres: %w", err)
		}
		return NewSQLStore(db, DialectPostgres), nil
	case "redis":
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	default:
		return nil, fmt.Errorf("unknown dedup driver %q", cfg.Driver)
	}
}
