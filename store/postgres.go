package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"lunchbox/menu"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS selections (
	id TEXT PRIMARY KEY,
	dish_id INTEGER NOT NULL,
	name TEXT NOT NULL,
	price DECIMAL(10,2) NOT NULL,
	photo_url TEXT,
	quantity INTEGER NOT NULL DEFAULT 1,
	timestamp BIGINT NOT NULL,
	client_name TEXT NOT NULL,
	selected_options JSONB NOT NULL,
	note TEXT
)`

// Postgres persists selections in a shared postgres database, for
// deployments where several instances serve the same group order.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	const (
		maxRetries = 5
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	var (
		db  *sql.DB
		err error
	)

	for i := 1; i <= maxRetries; i++ {
		db, err = sql.Open("pgx", dsn)
		if err == nil {
			pctx, cancel := context.WithTimeout(ctx, pingTTL)
			err = db.PingContext(pctx)
			cancel()

			if err == nil {
				break
			}

			_ = db.Close()
			db = nil
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres connect canceled: %w", ctx.Err())
		}
	}

	if db == nil {
		return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", maxRetries, err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("migrating postgres store: %w", err)
	}

	return &Postgres{db: db}, nil
}

func (p *Postgres) List() ([]Selection, error) {
	rows, err := p.db.Query(`SELECT id, dish_id, name, price, photo_url, quantity, timestamp, client_name, selected_options, note
		FROM selections ORDER BY timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("listing selections: %w", err)
	}
	defer rows.Close()

	return scanSelections(rows)
}

func (p *Postgres) Add(dish menu.Dish, clientName string, opts []SelectedOption, quantity int, note string) (Selection, error) {
	selection := newSelection(dish, clientName, opts, quantity, note)

	optsJSON, err := json.Marshal(selection.SelectedOptions)
	if err != nil {
		return Selection{}, fmt.Errorf("encoding selected options: %w", err)
	}

	_, err = p.db.Exec(`INSERT INTO selections
		(id, dish_id, name, price, photo_url, quantity, timestamp, client_name, selected_options, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		selection.ID, selection.DishID, selection.Name, selection.Price,
		nullableString(selection.PhotoURL), selection.Quantity, selection.Timestamp,
		selection.ClientName, optsJSON, nullableString(selection.Note),
	)
	if err != nil {
		return Selection{}, fmt.Errorf("inserting selection: %w", err)
	}

	return selection, nil
}

func (p *Postgres) Remove(id string) (bool, error) {
	result, err := p.db.Exec(`DELETE FROM selections WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("removing selection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("removing selection: %w", err)
	}

	return affected > 0, nil
}

func (p *Postgres) RemoveAll() error {
	if _, err := p.db.Exec(`DELETE FROM selections`); err != nil {
		return fmt.Errorf("clearing selections: %w", err)
	}

	return nil
}

func (p *Postgres) RenameClient(oldName, newName string) (int, error) {
	result, err := p.db.Exec(`UPDATE selections SET client_name = $1 WHERE client_name = $2`, newName, oldName)
	if err != nil {
		return 0, fmt.Errorf("renaming client: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("renaming client: %w", err)
	}

	return int(affected), nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
