// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database; it lives inside the binary as a single file.
// No separate database server to run, which makes it the default backend for
// local development, tests (":memory:") and single-server deployments.
//
// DOCUMENTS ON A RELATIONAL ENGINE:
// The application thinks in documents (one UserRecipes per user with an
// embedded list). Here that document is split over two tables:
//
//	user_recipes   one row per user (the document header)
//	saved_recipes  one row per embedded entry, ordered by seq
//
// The split is what lets the database itself enforce UNIQUE(user_id, recipe_id):
// a duplicate save fails inside the engine no matter how many requests race.
//
// We use modernc.org/sqlite, a pure Go translation of SQLite (no CGo).
package sqlite

import (
	"database/sql"
	"fmt"

	// The blank import registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/recipe-finder/internal/repository"
)

// compile-time check that *DB can be handed to the server as a Store
var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/recipes.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
//
// ONE CONNECTION:
// The pool is capped at a single open connection. SQLite allows one writer at
// a time anyway; funnelling everything through one connection serializes the
// read-modify-write of a user's document and keeps ":memory:" databases from
// being silently duplicated per connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	// saved_recipes rows must always belong to an existing user_recipes row.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the tables if they are missing.
//
// CREATE TABLE IF NOT EXISTS is safe to run on every start. There is no
// versioned migration history: the schema has a single shape.
func (db *DB) migrate() error {
	// user_id is the document key. The CHECK keeps a document from ever
	// existing with an empty identity.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS user_recipes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL UNIQUE CHECK (user_id <> ''),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating user_recipes table: %w", err)
	}

	// seq preserves insertion order, which is also the display order.
	// List-valued fields are stored as JSON text and returned verbatim.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS saved_recipes (
			seq           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id       TEXT NOT NULL REFERENCES user_recipes(user_id),
			recipe_id     TEXT NOT NULL,
			label         TEXT NOT NULL DEFAULT '',
			image         TEXT NOT NULL DEFAULT '',
			source        TEXT NOT NULL DEFAULT '',
			url           TEXT NOT NULL DEFAULT '',
			calories      REAL,
			total_time    REAL,
			ingredients   TEXT NOT NULL DEFAULT '[]',
			diet_labels   TEXT NOT NULL DEFAULT '[]',
			health_labels TEXT NOT NULL DEFAULT '[]',
			saved_at      DATETIME NOT NULL,
			UNIQUE (user_id, recipe_id)
		);
		CREATE INDEX IF NOT EXISTS idx_saved_recipes_user_seq ON saved_recipes(user_id, seq);
	`)
	if err != nil {
		return fmt.Errorf("creating saved_recipes table: %w", err)
	}

	return nil
}
