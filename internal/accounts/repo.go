package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/mstanic/business-tracker/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountExists    = errors.New("account already exists")
	ErrUsernameTaken    = errors.New("username already taken")
	ErrProtectedAccount = errors.New("account is protected")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// Add creates a new account with an open form. The given password is
// stored as a bcrypt hash.
func (r *Repo) Add(ctx context.Context, username, password string) (*Account, error) {
	if username == "" || password == "" {
		return nil, errors.New("username or password empty")
	}

	passwordHash, err := pkg.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO accounts (username, password, form_open) VALUES ($1, $2, TRUE);`,
		username, passwordHash,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	return &Account{
		Username: username,
		Password: passwordHash,
		FormOpen: true,
	}, nil
}

func (r *Repo) Get(ctx context.Context, username string) (*Account, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT username, password, form_open FROM accounts WHERE username = $1;`,
		username,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, ErrAccountNotFound
	}

	var acc Account
	if err := rows.Scan(&acc.Username, &acc.Password, &acc.FormOpen); err != nil {
		return nil, err
	}
	return &acc, nil
}

// PasswordHash returns the stored bcrypt hash for a username. Used by the
// auth service for login checks without pulling the whole account.
func (r *Repo) PasswordHash(ctx context.Context, username string) (string, error) {
	acc, err := r.Get(ctx, username)
	if err != nil {
		return "", err
	}
	return acc.Password, nil
}

func (r *Repo) List(ctx context.Context) ([]Account, error) {
	rows, err := r.db.Query(
		ctx,
		`SELECT username, password, form_open FROM accounts ORDER BY username;`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	var accounts []Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.Username, &acc.Password, &acc.FormOpen); err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	return accounts, nil
}

func (r *Repo) Usernames(ctx context.Context) ([]string, error) {
	accounts, err := r.List(ctx)
	if err != nil {
		return nil, err
	}

	usernames := make([]string, 0, len(accounts))
	for _, acc := range accounts {
		usernames = append(usernames, acc.Username)
	}
	return usernames, nil
}

// UpdateCredentials overwrites the username and password of an account.
// When the username changes, ownership of all form entries moves with it
// in the same transaction. A new username colliding with another account
// is rejected with ErrUsernameTaken.
func (r *Repo) UpdateCredentials(ctx context.Context, oldUsername, newUsername, newPassword string) error {
	if newUsername == "" || newPassword == "" {
		return errors.New("new username or password empty")
	}

	passwordHash, err := pkg.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Errorf("update credentials for [%s], rollback: %s", oldUsername, err)
		}
	}()

	tag, err := tx.Exec(
		ctx,
		`UPDATE accounts SET username = $1, password = $2 WHERE username = $3;`,
		newUsername, passwordHash, oldUsername,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return ErrUsernameTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if oldUsername != newUsername {
		if _, err := tx.Exec(
			ctx,
			`UPDATE form_entries SET username = $1 WHERE username = $2;`,
			newUsername, oldUsername,
		); err != nil {
			return fmt.Errorf("move form entries: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Delete removes an account together with all its form entries, as one
// transaction. Protected default accounts cannot be deleted.
func (r *Repo) Delete(ctx context.Context, username string) error {
	if IsProtected(username) {
		return ErrProtectedAccount
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Errorf("delete account [%s], rollback: %s", username, err)
		}
	}()

	if _, err := tx.Exec(
		ctx,
		`DELETE FROM form_entries WHERE username = $1;`,
		username,
	); err != nil {
		return fmt.Errorf("delete form entries: %w", err)
	}

	tag, err := tx.Exec(
		ctx,
		`DELETE FROM accounts WHERE username = $1;`,
		username,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	return tx.Commit(ctx)
}

func (r *Repo) SetFormOpen(ctx context.Context, username string, open bool) error {
	tag, err := r.db.Exec(
		ctx,
		`UPDATE accounts SET form_open = $1 WHERE username = $2;`,
		open, username,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// IsFormOpen reports whether the form gate is open for a username.
// A missing account counts as closed, not as an error.
func (r *Repo) IsFormOpen(ctx context.Context, username string) (bool, error) {
	acc, err := r.Get(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return acc.FormOpen, nil
}

// EnsureDefaultAccounts inserts the protected default accounts if missing.
// Passwords are hashed at startup, so they never appear in migrations.
func (r *Repo) EnsureDefaultAccounts(ctx context.Context) error {
	for username, password := range map[string]string{
		"admin": "admin",
		"test":  "test",
	} {
		passwordHash, err := pkg.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash default password: %w", err)
		}
		if _, err := r.db.Exec(
			ctx,
			`INSERT INTO accounts (username, password, form_open)
				VALUES ($1, $2, TRUE)
				ON CONFLICT (username) DO NOTHING;`,
			username, passwordHash,
		); err != nil {
			return fmt.Errorf("ensure default account %s: %w", username, err)
		}
	}
	return nil
}
