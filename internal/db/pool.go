package db

import (
	"context"
	"fmt"
	"net/url"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Pool is an alias for pgxpool.Pool
type Pool = pgxpool.Pool

// NewPool creates the PostgreSQL pool behind the vitals store. On start the
// pool is pinged and the vitals schema applied; acquisition stats are
// exported as Prometheus gauges.
func NewPool(lc fx.Lifecycle, logger *zap.Logger, databaseURL string) (*pgxpool.Pool, error) {
	logger.Info("initializing database connection pool", zap.String("url", redact(databaseURL)))

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("[DATABASE] failed to create connection pool: %w", err)
	}
	registerPoolStats(pool, logger)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				logger.Error("database ping failed", zap.Error(err))
				return fmt.Errorf("[DATABASE CONNECTION FAILED] cannot reach %s: %w", redact(databaseURL), err)
			}
			if err := Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("database ready",
				zap.Int32("max_conns", config.MaxConns),
				zap.String("database", config.ConnConfig.Database))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pool.Close()
			logger.Info("database connection closed")
			return nil
		},
	})

	return pool, nil
}

func registerPoolStats(pool *pgxpool.Pool, logger *zap.Logger) {
	gauge := func(name, help string, v func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(v(pool.Stat())) },
		)
	}
	for _, c := range []prometheus.Collector{
		gauge("vitals_db_pool_acquired_conns", "Connections currently checked out.", (*pgxpool.Stat).AcquiredConns),
		gauge("vitals_db_pool_idle_conns", "Idle connections in the pool.", (*pgxpool.Stat).IdleConns),
		gauge("vitals_db_pool_total_conns", "Connections open in the pool.", (*pgxpool.Stat).TotalConns),
	} {
		if err := prometheus.Register(c); err != nil {
			logger.Debug("pool gauge not registered", zap.Error(err))
		}
	}
}

// redact hides the password of a postgres URL for logging. Key/value DSNs
// are not URLs and are replaced entirely.
func redact(databaseURL string) string {
	if databaseURL == "" {
		return "<empty>"
	}
	u, err := url.Parse(databaseURL)
	if err != nil || u.Scheme == "" {
		return "<dsn>"
	}
	return u.Redacted()
}
