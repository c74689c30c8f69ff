// Package repository выбирает хранилище слота тревоги и журнала по конфигу.
package repository

import (
	"context"
	"fmt"

	"github.com/xela07ax/crisisguard-client/internal/audit"
	"github.com/xela07ax/crisisguard-client/internal/domain"
	"github.com/xela07ax/crisisguard-client/internal/infra"
	"github.com/xela07ax/crisisguard-client/internal/repository/postgres"
	"github.com/xela07ax/crisisguard-client/internal/repository/redisstore"
	"github.com/xela07ax/crisisguard-client/internal/repository/sqlite"
)

// Store — все, что клиенту нужно от постоянного хранилища.
type Store interface {
	domain.AlertStore
	audit.StorageInterface
	audit.Reader
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*redisstore.Store)(nil)
)

func Open(ctx context.Context, cfg infra.StorageConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", "sqlite":
		s, err = openSqlite(ctx, cfg.DSN)
	case "postgres":
		s, err = openPostgres(ctx, cfg.DSN)
	case "redis":
		s, err = openRedis(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Driver, err)
	}
	return s, nil
}

// Обертки не дают typed-nil попасть в интерфейс Store.
func openSqlite(ctx context.Context, dsn string) (Store, error) {
	s, err := sqlite.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openPostgres(ctx context.Context, dsn string) (Store, error) {
	s, err := postgres.NewStore(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func openRedis(ctx context.Context, cfg infra.RedisConfig) (Store, error) {
	s, err := redisstore.NewStore(ctx, redisstore.NewClient(cfg))
	if err != nil {
		return nil, err
	}
	return s, nil
}
