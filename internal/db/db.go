// Package db stores the outcome of every refresh so failures can be
// inspected after the fact.
package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

// DB is a connection along with the sql dialect it speaks.
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

func wrapOpenDB(err error) error {
	return fmt.Errorf("open db: %w", err)
}

// OpenDB picks the driver by dsn: postgres:// urls use lib/pq, libsql:// and
// http(s):// urls use libsql, anything else is a sqlite file (":memory:"
// included).
func OpenDB(ctx context.Context, dsn string) (DB, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		conn, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			return DB{}, wrapOpenDB(err)
		}
		return DB{DB: conn, Dialect: DialectPostgres}, nil

	case strings.HasPrefix(dsn, "libsql://"),
		strings.HasPrefix(dsn, "http://"),
		strings.HasPrefix(dsn, "https://"):
		conn, err := sqlx.Open("libsql", dsn)
		if err != nil {
			return DB{}, wrapOpenDB(err)
		}
		return DB{DB: conn, Dialect: DialectSQLite}, nil
	}

	if dsn != ":memory:" {
		err := os.MkdirAll(filepath.Dir(dsn), 0777)
		if err != nil {
			return DB{}, wrapOpenDB(err)
		}
	}
	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return DB{}, wrapOpenDB(err)
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	conn.SetMaxOpenConns(1)
	_, err = conn.ExecContext(ctx, "PRAGMA journal_mode=WAL")
	if err != nil {
		conn.Close()
		return DB{}, wrapOpenDB(err)
	}
	return DB{DB: conn, Dialect: DialectSQLite}, nil
}

const sqliteSchema = `
create table if not exists refresh_log (
	id integer primary key autoincrement,
	started_at integer not null,
	duration_ms integer not null,
	success integer not null,
	error text not null default '',
	letters integer not null,
	unread integer not null,
	homework integer not null,
	exams integer not null,
	scraper_failed integer not null
);
`

const postgresSchema = `
create table if not exists refresh_log (
	id bigserial primary key,
	started_at bigint not null,
	duration_ms bigint not null,
	success boolean not null,
	error text not null default '',
	letters integer not null,
	unread integer not null,
	homework integer not null,
	exams integer not null,
	scraper_failed boolean not null
);
`

// Migrate creates the tables of the dialect if they do not exist yet.
func (d DB) Migrate(ctx context.Context) error {
	schema := sqliteSchema
	if d.Dialect == DialectPostgres {
		schema = postgresSchema
	}
	_, err := d.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
