package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/rl1809/stock-shipments/internal/core/domain"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite"
)

// Open opens a pool for one of the supported drivers and checks it is reachable.
// For MySQL the I/O timeouts default to timeout so a stalled server cannot
// hold a request forever.
func Open(ctx context.Context, driverName, dsn string, timeout time.Duration) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch driverName {
	case DriverMySQL:
		db, err = openMySQL(dsn, timeout)
	case DriverPostgres, DriverSQLite:
		db, err = sql.Open(driverName, dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driverName)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	if driverName == DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driverName, err)
	}
	return db, nil
}

func openMySQL(dsn string, timeout time.Duration) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		if cfg.Timeout == 0 {
			cfg.Timeout = timeout
		}
		if cfg.ReadTimeout == 0 {
			cfg.ReadTimeout = timeout
		}
		if cfg.WriteTimeout == 0 {
			cfg.WriteTimeout = timeout
		}
	}
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, err
	}
	return sql.OpenDB(connector), nil
}

// rebind rewrites '?' placeholders into '$n' for PostgreSQL.
func rebind(driverName, query string) string {
	if driverName != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// unavailable marks a driver failure as domain.ErrStoreUnavailable while
// keeping the driver error in the chain.
func unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// MySQL error numbers and Postgres SQLSTATEs for a transaction the server
// aborted to break a lock cycle or a serialization failure.
const (
	mysqlLockDeadlock    = 1213
	mysqlLockWaitTimeout = 1205
	pgDeadlockDetected   = "40P01"
	pgSerialization      = "40001"
)

// txErr reports a deadlock or serialization abort inside the commit
// transaction as domain.ErrCommitConflict; anything else is unavailable.
func txErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if aborted(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrCommitConflict, err)
	}
	return unavailable(op, err)
}

func aborted(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlLockDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDeadlockDetected || pgErr.Code == pgSerialization
	}
	return false
}
