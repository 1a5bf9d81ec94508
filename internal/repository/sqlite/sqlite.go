// Package sqlite implements the repository interfaces on SQLite.
//
// The storage engine's contract is a document store with integer index
// dimensions: each entity table holds the record as a JSON document
// plus one column per index dimension (day-of-year ordinal, creator,
// approved flag, used flag). Range queries run against the dimension
// columns only; the services apply finer predicates after fetching.
//
// modernc.org/sqlite is a pure-Go translation of SQLite, so no C
// toolchain is needed and ":memory:" databases keep the tests fast.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface the services consume.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
// Use ":memory:" for an ephemeral database in tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would get its own empty
	// database, so in-memory mode must stay on a single connection.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent readers while a write is in flight, which
	// matters once multiple requests hit the store.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool, flushing the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id  INTEGER PRIMARY KEY,
			doc TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS unverified_accounts (
			id  INTEGER PRIMARY KEY,
			doc TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS posts (
			id       INTEGER PRIMARY KEY,
			ordinal  INTEGER NOT NULL,
			creator  INTEGER NOT NULL,
			approved INTEGER NOT NULL DEFAULT 0,
			doc      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_posts_ordinal ON posts(ordinal);
		CREATE INDEX IF NOT EXISTS idx_posts_creator ON posts(creator);

		CREATE TABLE IF NOT EXISTS resources (
			id    INTEGER PRIMARY KEY,
			used  INTEGER NOT NULL DEFAULT 0,
			owner INTEGER NOT NULL,
			doc   TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS notifications (
			id      INTEGER PRIMARY KEY,
			ordinal INTEGER NOT NULL,
			sender  INTEGER NOT NULL,
			doc     TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_ordinal ON notifications(ordinal);
	`)
	if err != nil {
		return fmt.Errorf("creating tables: %w", err)
	}
	return nil
}

// isDuplicate reports whether err is a primary-key or unique
// constraint violation, i.e. an insert-by-id collision.
func isDuplicate(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			code == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	return false
}
