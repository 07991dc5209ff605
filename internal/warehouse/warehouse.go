// Package warehouse opens the analytical database the executor runs against.
// DuckDB is the primary engine; Postgres is supported for deployments that
// already keep their marts in a relational warehouse.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
)

const (
	DriverDuckDB   = "duckdb"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string

	// DuckDB
	Path        string
	ReadOnly    bool
	Threads     int
	MemoryLimit string

	// Postgres
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

// Open opens and pings the configured warehouse. Pool limits bound how many
// statements can be in flight at once; each request still acquires its own
// connection from the pool.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case DriverDuckDB, "":
		db, err = openDuckDB(cfg)
	case DriverPostgres:
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
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
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}

	return db, nil
}

// openDuckDB passes engine settings as DSN parameters so they apply to every
// pooled connection, not just the first session.
func openDuckDB(cfg Config) (*sql.DB, error) {
	params := url.Values{}
	if cfg.Threads > 0 {
		params.Set("threads", strconv.Itoa(cfg.Threads))
	}
	if cfg.MemoryLimit != "" {
		params.Set("memory_limit", cfg.MemoryLimit)
	}
	if cfg.ReadOnly {
		params.Set("access_mode", "read_only")
	}
	dsn := cfg.Path
	if encoded := params.Encode(); encoded != "" {
		dsn += "?" + encoded
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb at %q: %w", cfg.Path, err)
	}
	return db, nil
}

func openPostgres(cfg Config) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("warehouse dsn is required for the postgres driver")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres warehouse: %w", err)
	}
	return db, nil
}
