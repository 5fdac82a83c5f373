package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/doc-intake/internal/common"
)

// DB bundles the ent SQL driver with the pool that backs it.
type DB struct {
	Driver  *entsql.Driver
	Dialect string
	pool    *pgxpool.Pool
}

// Open connects using cfg.Driver ("postgres" or "sqlite").
func Open(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(cfg.DSN, logger)
	case "postgres", "":
		return OpenPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("%w: unsupported database driver %q", common.ErrInvalidInput, cfg.Driver)
	}
}

// OpenPostgres creates a pgx pool and wraps it for ent.
func OpenPostgres(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	logger.Info("db.connect", "driver", "postgres")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("db.connect.fail", "err", err)
		return nil, fmt.Errorf("%w: parse dsn: %w", common.ErrDatabase, err)
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "doc-intake"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprintf("%d", cfg.StatementTimeout.Milliseconds())
	}

	dialCtx, cancel := common.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("db.connect.fail", "err", err)
		return nil, fmt.Errorf("%w: connect: %w", common.ErrDatabase, err)
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("db.connect.ok", "driver", "postgres")
	return &DB{Driver: entsql.OpenDB(dialect.Postgres, db), Dialect: dialect.Postgres, pool: pool}, nil
}

// OpenSQLite opens a modernc SQLite database. Foreign keys are forced on
// because the ent migrator refuses to run without them.
func OpenSQLite(dsn string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		dsn = "file:doc-intake.db"
	}
	dsn = withSQLitePragmas(dsn)
	logger.Info("db.connect", "driver", "sqlite", "dsn", dsn)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %w", common.ErrDatabase, err)
	}
	// single writer; also keeps shared in-memory databases alive
	db.SetMaxOpenConns(1)
	return &DB{Driver: entsql.OpenDB(dialect.SQLite, db), Dialect: dialect.SQLite}, nil
}

func withSQLitePragmas(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		dsn += sep + "_pragma=foreign_keys(1)"
		sep = "&"
	}
	if !strings.Contains(dsn, "_time_format") {
		dsn += sep + "_time_format=sqlite"
	}
	return dsn
}

// Close closes the driver and the pool behind it.
func (d *DB) Close(logger *slog.Logger) {
	if d == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("db.close")
	if d.Driver != nil {
		if err := d.Driver.Close(); err != nil {
			logger.Error("db.close.fail", "err", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
}

// HealthCheck pings the database.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := common.WithTimeout(ctx, timeout)
	defer cancel()
	if err := d.Driver.DB().PingContext(ctx); err != nil {
		logger.Warn("db.ping.fail", "err", err)
		return fmt.Errorf("%w: ping: %w", common.ErrDatabase, err)
	}
	logger.Debug("db.ping.ok")
	return nil
}
