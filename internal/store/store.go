// Package store persists riders and their transit history in SQLite.
//
// Trips are written through a three-stage merge: rows whose content
// fingerprint is already present are dropped, remaining rows are
// deduplicated within the batch, and the survivors are matched against
// existing trips by natural key to decide between update and insert.
// Re-ingesting an overlapping statement therefore never duplicates
// rows.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kavwad/clippertv/internal/models"
)

//go:embed schema.sql
var schema string

type DB struct {
	*sql.DB

	mu      sync.Mutex
	cache   map[string]cacheEntry
	modeIDs map[string]int64
}

// Open opens or creates the database at the given path
func Open(dbPath string) (*DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with foreign keys enabled
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: db, cache: make(map[string]cacheEntry)}, nil
}

// Init creates tables if they don't exist and seeds the transit modes
func (db *DB) Init() error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// TransitModes returns the mode vocabulary in insertion order.
func (db *DB) TransitModes() ([]models.TransitMode, error) {
	rows, err := db.Query(`SELECT id, name, display_name, color FROM transit_modes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query transit modes: %w", err)
	}
	defer rows.Close()

	var modes []models.TransitMode
	for rows.Next() {
		var m models.TransitMode
		if err := rows.Scan(&m.ID, &m.Name, &m.DisplayName, &m.Color); err != nil {
			return nil, fmt.Errorf("scan transit mode: %w", err)
		}
		modes = append(modes, m)
	}
	return modes, rows.Err()
}

// transitModeIDs maps mode names to IDs, loading them once.
func (db *DB) transitModeIDs() (map[string]int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.modeIDs != nil {
		return db.modeIDs, nil
	}

	rows, err := db.Query(`SELECT id, name FROM transit_modes`)
	if err != nil {
		return nil, fmt.Errorf("query transit modes: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]int64)
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan transit mode: %w", err)
		}
		ids[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	db.modeIDs = ids
	return ids, nil
}
