package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/collateral-classifier/internal/common"
	repo "github.com/joseph-ayodele/collateral-classifier/internal/repository"
)

// ConnectStore opens the audit database, checks it and creates the schema.
// It returns (nil, nil, nil) when no database is configured.
func ConnectStore(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*repo.DB, repo.ClassificationJobRepository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rc := repo.Config{
		DSN:              cfg.DSN,
		SQLitePath:       cfg.SQLitePath,
		MaxConns:         cfg.MaxConns,
		MinConns:         cfg.MinConns,
		MaxConnLifetime:  cfg.MaxConnLifetime,
		MaxConnIdleTime:  cfg.MaxConnIdleTime,
		DialTimeout:      cfg.DialTimeout,
		StatementTimeout: cfg.StatementTimeout,
	}
	if !rc.Enabled() {
		logger.Info("audit store disabled, set DB_URL or SQLITE_PATH to enable")
		return nil, nil, nil
	}

	db, err := repo.Open(ctx, rc, logger)
	if err != nil {
		return nil, nil, common.WrapError(err, "open audit store")
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if err := db.HealthCheck(ctx, timeout); err != nil {
		db.Close()
		return nil, nil, common.WrapError(err, "audit store health check")
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, nil, common.WrapError(err, "audit store schema")
	}
	return db, repo.NewClassificationJobRepository(db, logger), nil
}
