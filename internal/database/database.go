// Package database is the persistence gateway: a sqlx handle bound to a
// goqu dialect, scoped transactions with conflict retry, and migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // dialect registration
	_ "github.com/jackc/pgx/v5/stdlib"                  // pgx driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
	DriverSQLite   = "sqlite3"

	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
)

const (
	defaultMaxOpenConnections = 25
	defaultMaxIdleConnections = 5
	defaultMaxConnLifetime    = time.Hour
	defaultMaxConnIdleTime    = time.Minute * 5
)

var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Querier is satisfied by both *sqlx.DB and *sqlx.Tx.
type Querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type DB struct {
	*sqlx.DB

	dialect string
	retry   retryConfig
}

// Open connects with one of the postgres, pgx or sqlite3 drivers and pings
// the store.
func Open(ctx context.Context, driver, url string) (*DB, error) {
	dialect, err := dialectFor(driver)
	if err != nil {
		return nil, err
	}

	dsn := url
	if driver == DriverSQLite {
		dsn = sqliteDSN(url)
	}

	conn, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(defaultMaxOpenConnections)
	conn.SetMaxIdleConns(defaultMaxIdleConnections)
	conn.SetConnMaxLifetime(defaultMaxConnLifetime)
	conn.SetConnMaxIdleTime(defaultMaxConnIdleTime)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: conn, dialect: dialect, retry: defaultRetryConfig()}, nil
}

// Builder returns a goqu dialect for building prepared statements.
func (db *DB) Builder() goqu.DialectWrapper {
	return goqu.Dialect(db.dialect)
}

func (db *DB) Dialect() string {
	return db.dialect
}

// Insert runs ds and returns the id of the inserted row.
func (db *DB) Insert(ctx context.Context, q Querier, ds *goqu.InsertDataset) (int64, error) {
	if db.dialect == dialectPostgres {
		query, args, err := ds.Prepared(true).Returning("id").ToSQL()
		if err != nil {
			return 0, fmt.Errorf("failed to build insert: %w", err)
		}
		var id int64
		if err := q.GetContext(ctx, &id, query, args...); err != nil {
			return 0, err
		}
		return id, nil
	}

	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build insert: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Update runs ds and returns the affected row count.
func (db *DB) Update(ctx context.Context, q Querier, ds *goqu.UpdateDataset) (int64, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("failed to build statement: %w", err)
	}
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Find runs a select into dest.
func (db *DB) Find(ctx context.Context, q Querier, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return q.GetContext(ctx, dest, query, args...)
}

// FindAll runs a select into the slice dest.
func (db *DB) FindAll(ctx context.Context, q Querier, dest interface{}, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	return q.SelectContext(ctx, dest, query, args...)
}

func dialectFor(driver string) (string, error) {
	switch driver {
	case DriverPostgres, DriverPGX:
		return dialectPostgres, nil
	case DriverSQLite:
		return dialectSQLite, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// sqliteDSN turns a file path into a DSN with foreign keys on, a busy
// timeout, and write locks taken at BEGIN so concurrent lenders queue
// instead of failing mid-transaction.
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_journal_mode=WAL&_txlock=immediate", path)
}
