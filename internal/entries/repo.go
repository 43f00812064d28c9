package entries

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Submit inserts the entry and closes the owner's form gate, as one
// transaction. It deliberately does not check whether the gate is open:
// that check belongs to the caller, before invoking Submit.
func (r *Repo) Submit(ctx context.Context, entry Entry) (*Entry, error) {
	if entry.Username == "" || entry.CreatedAt.IsZero() {
		return nil, errors.New("entry username or timestamp empty")
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Errorf("submit entry for [%s], rollback: %s", entry.Username, err)
		}
	}()

	rows, err := tx.Query(
		ctx,
		`INSERT INTO form_entries (username, revenue, trl, ip, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id;`,
		entry.Username, entry.Revenue, entry.TRL, entry.IP, entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if !rows.Next() {
		rows.Close()
		return nil, errors.New("unexpected error [no rows next]")
	}
	if err := rows.Scan(&entry.ID); err != nil {
		rows.Close()
		return nil, fmt.Errorf("rows scan: %w", err)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(
		ctx,
		`UPDATE accounts SET form_open = FALSE WHERE username = $1;`,
		entry.Username,
	); err != nil {
		return nil, fmt.Errorf("close form gate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &entry, nil
}

func (r *Repo) ListForUser(ctx context.Context, username string) ([]Entry, error) {
	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, username, revenue, trl, ip, created_at
			FROM form_entries
			WHERE username = $1
			ORDER BY created_at ASC;`,
		username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (r *Repo) ListAll(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(
		ctx,
		`
			SELECT
				id, username, revenue, trl, ip, created_at
			FROM form_entries
			ORDER BY created_at ASC;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Username, &e.Revenue, &e.TRL, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, nil
}
