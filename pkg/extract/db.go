package extract

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS strings(
		file    TEXT NOT NULL,
		address INTEGER NOT NULL,
		param   INTEGER NOT NULL,
		label   TEXT NOT NULL,
		body    TEXT NOT NULL,
		PRIMARY KEY (file, address, param)
	) WITHOUT ROWID, STRICT;
`

// DB is the access layer for the strings database.
type DB struct {
	handle *sql.DB
}

// OpenDB opens the database at path, creating it and the schema as
// needed.
func OpenDB(path string) (*DB, error) {
	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := handle.Exec(schema); err != nil {
		handle.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{handle: handle}, nil
}

// Add upserts rows in one transaction, so rescanning a file replaces
// the rows it wrote before.
func (db *DB) Add(rows []Row) error {
	tx, err := db.handle.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT OR REPLACE INTO strings (file, address, param, label, body) VALUES ($1, $2, $3, $4, $5);")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.File, r.Address, r.Param, r.Label, r.Body); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Strings returns the rows recorded for one file, in action order.
func (db *DB) Strings(file string) ([]Row, error) {
	query := `
		SELECT file, address, param, label, body
		FROM strings
		WHERE file = $1
		ORDER BY address, param;
	`
	rows, err := db.handle.Query(query, file)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.File, &r.Address, &r.Param, &r.Label, &r.Body); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (db *DB) Close() error {
	return db.handle.Close()
}
