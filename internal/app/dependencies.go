// Package app opens the process-wide infrastructure the API runs on and
// exposes the stores built over it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/noah-isme/backend-shop/internal/auth"
	"github.com/noah-isme/backend-shop/internal/catalog"
	"github.com/noah-isme/backend-shop/internal/config"
	"github.com/noah-isme/backend-shop/internal/db"
	"github.com/noah-isme/backend-shop/internal/obs"
	"github.com/noah-isme/backend-shop/internal/orderstore"
)

// Dependencies enumerates the shared infrastructure handles and the stores
// built on top of them. Exactly one of Pool and SQL is set.
type Dependencies struct {
	Pool  *pgxpool.Pool
	SQL   *sql.DB
	Redis *redis.Client

	Catalog catalog.Store
	Orders  orderstore.Store
	Users   auth.UserStore

	closers []func()
}

// Open connects the database selected by cfg.DatabaseURL, runs migrations when
// enabled and connects Redis when REDIS_URL is set.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	deps := &Dependencies{}
	var err error
	if cfg.UsesSQLite() {
		err = deps.openSQLite(ctx, cfg)
	} else {
		err = deps.openPostgres(ctx, cfg)
	}
	if err != nil {
		deps.Close()
		return nil, err
	}

	if cfg.RedisURL != "" {
		if err := deps.openRedis(ctx, cfg, logger); err != nil {
			deps.Close()
			return nil, err
		}
	} else {
		logger.Warn().Msg("REDIS_URL not set: catalog cache, idempotency, capture lock and shared rate limits disabled")
	}
	return deps, nil
}

func (d *Dependencies) openPostgres(ctx context.Context, cfg *config.Config) error {
	if cfg.MigrateOnStart {
		if err := db.MigratePostgres(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate postgres: %w", err)
		}
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "shop-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	d.closers = append(d.closers, pool.Close)
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	d.Pool = pool
	d.Catalog = catalog.NewPGStore(pool)
	d.Orders = orderstore.NewPGStore(pool)
	d.Users = auth.PGUserStore{Pool: pool}
	return nil
}

func (d *Dependencies) openSQLite(ctx context.Context, cfg *config.Config) error {
	conn, err := sql.Open("sqlite", cfg.SQLitePath())
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	d.closers = append(d.closers, func() { _ = conn.Close() })
	// a single writer avoids SQLITE_BUSY under concurrent checkout
	conn.SetMaxOpenConns(1)
	if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		return fmt.Errorf("enable sqlite foreign keys: %w", err)
	}
	if cfg.MigrateOnStart {
		if err := db.MigrateSQLite(conn); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}

	d.SQL = conn
	d.Catalog = catalog.NewSQLStore(conn)
	d.Orders = orderstore.NewSQLStore(conn)
	d.Users = auth.SQLUserStore{DB: conn}
	return nil
}

func (d *Dependencies) openRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	d.closers = append(d.closers, func() {
		if err := client.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	})
	if cfg.Obs.TracingEnabled {
		if err := redisotel.InstrumentTracing(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if cfg.Obs.MetricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	d.Redis = client
	return nil
}

// Ping checks the primary database.
func (d *Dependencies) Ping(ctx context.Context) error {
	switch {
	case d.Pool != nil:
		return d.Pool.Ping(ctx)
	case d.SQL != nil:
		return d.SQL.PingContext(ctx)
	default:
		return errors.New("database not configured")
	}
}

// Close releases every handle opened so far, newest first.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
