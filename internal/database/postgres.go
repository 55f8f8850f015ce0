package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var DB *pgxpool.Pool

// ConnectDB opens the shared pool. One connection is held permanently by the
// profile change listener, so MinConns leaves room for regular queries.
func ConnectDB(ctx context.Context, dbUrl string, logger *zap.Logger) error {
	var err error
	config, err := pgxpool.ParseConfig(dbUrl)
	if err != nil {
		return fmt.Errorf("unable to parse database config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	DB, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := DB.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping database: %w", err)
	}

	if logger != nil {
		logger.Info("Connected to PostgreSQL", zap.Int32("max_conns", config.MaxConns))
	}
	return nil
}

func CloseDB() {
	if DB != nil {
		DB.Close()
	}
}
