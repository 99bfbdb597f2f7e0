package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

type DBConfig struct {
	// Driver is one of mysql, postgres, duckdb or sqlite.
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

var driverNames = map[string]string{
	"mysql":    "mysql",
	"postgres": "pgx",
	"duckdb":   "duckdb",
	"sqlite":   "sqlite",
}

// DriverName maps a configured driver to its database/sql registration name.
func DriverName(driver string) (string, error) {
	name, ok := driverNames[strings.ToLower(strings.TrimSpace(driver))]
	if !ok {
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
	return name, nil
}

func Open(ctx context.Context, cfg DBConfig) (*sql.DB, error) {
	driverName, err := DriverName(cfg.Driver)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" && driverName != "duckdb" {
		return nil, fmt.Errorf("database dsn is required")
	}

	db, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, &ConnectionError{Op: "ping", Err: err}
	}

	return db, nil
}
