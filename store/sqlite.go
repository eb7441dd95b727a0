package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"lunchbox/menu"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS selections (
	id TEXT PRIMARY KEY,
	dish_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	price REAL NOT NULL,
	photo_url TEXT,
	quantity INTEGER NOT NULL DEFAULT 1,
	timestamp INTEGER NOT NULL,
	client_name TEXT NOT NULL,
	selected_options TEXT NOT NULL,
	note TEXT
)`

// SQLite persists selections in a local sqlite database.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store: %w", err)
	}

	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()

		return nil, fmt.Errorf("migrating sqlite store: %w", err)
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) List() ([]Selection, error) {
	rows, err := s.db.Query(`SELECT id, dish_id, name, price, photo_url, quantity, timestamp, client_name, selected_options, note
		FROM selections ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("listing selections: %w", err)
	}
	defer rows.Close()

	return scanSelections(rows)
}

func (s *SQLite) Add(dish menu.Dish, clientName string, opts []SelectedOption, quantity int, note string) (Selection, error) {
	selection := newSelection(dish, clientName, opts, quantity, note)

	optsJSON, err := json.Marshal(selection.SelectedOptions)
	if err != nil {
		return Selection{}, fmt.Errorf("encoding selected options: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO selections
		(id, dish_id, name, price, photo_url, quantity, timestamp, client_name, selected_options, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		selection.ID, selection.DishID, selection.Name, selection.Price,
		nullableString(selection.PhotoURL), selection.Quantity, selection.Timestamp,
		selection.ClientName, string(optsJSON), nullableString(selection.Note),
	)
	if err != nil {
		return Selection{}, fmt.Errorf("inserting selection: %w", err)
	}

	return selection, nil
}

func (s *SQLite) Remove(id string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM selections WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("removing selection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing selection: %w", err)
	}

	return affected > 0, nil
}

func (s *SQLite) RemoveAll() error {
	if _, err := s.db.Exec(`DELETE FROM selections`); err != nil {
		return fmt.Errorf("clearing selections: %w", err)
	}

	return nil
}

func (s *SQLite) RenameClient(oldName, newName string) (int, error) {
	result, err := s.db.Exec(`UPDATE selections SET client_name = ? WHERE client_name = ?`, newName, oldName)
	if err != nil {
		return 0, fmt.Errorf("renaming client: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("renaming client: %w", err)
	}

	return int(affected), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// scanSelections decodes rows in the column order shared by the sqlite
// and postgres backends.
func scanSelections(rows *sql.Rows) ([]Selection, error) {
	selections := []Selection{}

	for rows.Next() {
		var (
			s        Selection
			photoURL sql.NullString
			note     sql.NullString
			optsJSON []byte
		)

		err := rows.Scan(&s.ID, &s.DishID, &s.Name, &s.Price, &photoURL,
			&s.Quantity, &s.Timestamp, &s.ClientName, &optsJSON, &note)
		if err != nil {
			return nil, fmt.Errorf("scanning selection: %w", err)
		}

		s.PhotoURL = photoURL.String
		s.Note = note.String

		if err := json.Unmarshal(optsJSON, &s.SelectedOptions); err != nil {
			return nil, fmt.Errorf("decoding selected options: %w", err)
		}
		if s.SelectedOptions == nil {
			s.SelectedOptions = []SelectedOption{}
		}

		selections = append(selections, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading selections: %w", err)
	}

	return selections, nil
}
