// Package store provides data persistence implementations.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ReferenceStore caches downloaded reference tables in SQLite so that
// repeated runs inside the table's freshness window skip the downloads.
type ReferenceStore struct {
	db *sql.DB
}

// Table names used as freshness keys.
const (
	TableInstrumentKeys = "instrument_keys"
	TableLotSizes       = "lot_sizes"
)

// NewReferenceStore opens (or creates) the reference cache at dbPath.
func NewReferenceStore(dbPath string) (*ReferenceStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open reference cache: %w", err)
	}

	s := &ReferenceStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return s, nil
}

func (s *ReferenceStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS instrument_keys (
		trading_symbol TEXT PRIMARY KEY,
		instrument_key TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lot_sizes (
		symbol TEXT PRIMARY KEY,
		lot_size INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS reference_meta (
		table_name TEXT PRIMARY KEY,
		fetched_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *ReferenceStore) Close() error {
	return s.db.Close()
}

// FetchedAt returns when a table was last refreshed, if ever.
func (s *ReferenceStore) FetchedAt(table string) (time.Time, bool, error) {
	var fetched time.Time
	err := s.db.QueryRow(
		`SELECT fetched_at FROM reference_meta WHERE table_name = ?`, table,
	).Scan(&fetched)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("reading %s freshness: %w", table, err)
	}
	return fetched, true, nil
}

// Fresh reports whether a table was refreshed within maxAge.
func (s *ReferenceStore) Fresh(table string, maxAge time.Duration) (bool, error) {
	fetched, ok, err := s.FetchedAt(table)
	if err != nil || !ok {
		return false, err
	}
	return time.Since(fetched) <= maxAge, nil
}

// SaveInstrumentKeys replaces the cached instrument-key table.
func (s *ReferenceStore) SaveInstrumentKeys(keys map[string]string) error {
	return s.replaceTable(TableInstrumentKeys,
		`DELETE FROM instrument_keys`,
		`INSERT INTO instrument_keys (trading_symbol, instrument_key) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for symbol, key := range keys {
				if _, err := stmt.Exec(symbol, key); err != nil {
					return err
				}
			}
			return nil
		})
}

// LoadInstrumentKeys loads the cached instrument-key table.
func (s *ReferenceStore) LoadInstrumentKeys() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT trading_symbol, instrument_key FROM instrument_keys`)
	if err != nil {
		return nil, fmt.Errorf("loading instrument keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[string]string)
	for rows.Next() {
		var symbol, key string
		if err := rows.Scan(&symbol, &key); err != nil {
			return nil, err
		}
		keys[symbol] = key
	}
	return keys, rows.Err()
}

// SaveLotSizes replaces the cached lot-size table.
func (s *ReferenceStore) SaveLotSizes(lots map[string]int) error {
	return s.replaceTable(TableLotSizes,
		`DELETE FROM lot_sizes`,
		`INSERT INTO lot_sizes (symbol, lot_size) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for symbol, lot := range lots {
				if _, err := stmt.Exec(symbol, lot); err != nil {
					return err
				}
			}
			return nil
		})
}

// LoadLotSizes loads the cached lot-size table.
func (s *ReferenceStore) LoadLotSizes() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT symbol, lot_size FROM lot_sizes`)
	if err != nil {
		return nil, fmt.Errorf("loading lot sizes: %w", err)
	}
	defer rows.Close()

	lots := make(map[string]int)
	for rows.Next() {
		var symbol string
		var lot int
		if err := rows.Scan(&symbol, &lot); err != nil {
			return nil, err
		}
		lots[symbol] = lot
	}
	return lots, rows.Err()
}

func (s *ReferenceStore) replaceTable(table, deleteStmt, insertStmt string, insert func(*sql.Stmt) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s refresh: %w", table, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(deleteStmt); err != nil {
		return fmt.Errorf("clearing %s: %w", table, err)
	}

	stmt, err := tx.Prepare(insertStmt)
	if err != nil {
		return fmt.Errorf("preparing %s insert: %w", table, err)
	}
	defer stmt.Close()

	if err := insert(stmt); err != nil {
		return fmt.Errorf("writing %s: %w", table, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO reference_meta (table_name, fetched_at) VALUES (?, ?)
		 ON CONFLICT(table_name) DO UPDATE SET fetched_at = excluded.fetched_at`,
		table, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("recording %s freshness: %w", table, err)
	}

	return tx.Commit()
}
