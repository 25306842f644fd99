package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/clauseguard/internal/billing"
	"github.com/joseph-ayodele/clauseguard/internal/common"
	"github.com/joseph-ayodele/clauseguard/internal/entitlement"
)

// Stores bundles the entitlement store with the optional change notifier of the same backend.
type Stores struct {
	Entitlements entitlement.Store
	Notifier     billing.Notifier
	Backend      string
}

// OpenStore opens the entitlement store selected by cfg.Entitlement.Store and applies its schema.
func OpenStore(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*Stores, error) {
	backend := cfg.Entitlement.Store
	logger = logger.With("entitlement_store", backend)

	switch backend {
	case "", "memory":
		logger.Warn("using in-memory entitlement store; state is lost on restart")
		return &Stores{Entitlements: entitlement.NewMemoryStore(), Backend: "memory"}, nil

	case "postgres":
		pool, err := Open(ctx, Config{
			DSN:              cfg.Database.DSN,
			MaxConns:         cfg.Database.MaxConns,
			MinConns:         cfg.Database.MinConns,
			MaxConnLifetime:  cfg.Database.MaxConnLifetime,
			MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
			DialTimeout:      cfg.Database.DialTimeout,
			StatementTimeout: cfg.Database.StatementTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := MigratePostgres(ctx, pool); err != nil {
			Close(pool, logger)
			return nil, err
		}
		return &Stores{Entitlements: NewPostgresStore(pool, logger), Backend: backend}, nil

	case "sqlite":
		db, err := OpenSQLite(ctx, cfg.SQLite.Path, logger)
		if err != nil {
			return nil, err
		}
		if err := MigrateSQLite(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Stores{Entitlements: NewSQLiteStore(db, logger), Backend: backend}, nil

	case "redis":
		rdb, err := NewRedisClient(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("connected to redis", "addr", cfg.Redis.Addr, "channel", cfg.Redis.Channel)
		return &Stores{
			Entitlements: NewRedisStore(rdb, 0, logger),
			Notifier:     NewRedisNotifier(rdb, cfg.Redis.Channel),
			Backend:      backend,
		}, nil

	default:
		return nil, common.NewConfigError(fmt.Sprintf("unknown ENTITLEMENT_STORE %q", backend))
	}
}

func (s *Stores) Close() error {
	if s == nil || s.Entitlements == nil {
		return nil
	}
	return s.Entitlements.Close()
}
