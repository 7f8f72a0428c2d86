// Package authsql persists administrator accounts.
package authsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestline/intake-bot/internal/auth"
	"github.com/requestline/intake-bot/internal/serviceerr"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ auth.UserStore = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetUser(ctx context.Context, username string) (auth.User, error) {
	var user auth.User

	row := r.db.QueryRow(ctx,
		`SELECT username, password_hash, created_at FROM users WHERE username = $1;`, username)
	if err := row.Scan(&user.Username, &user.PasswordHash, &user.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.User{}, serviceerr.ErrNotFound
		}

		return auth.User{}, fmt.Errorf("scanning row: %w", err)
	}

	return user, nil
}

func (r *Repository) UpsertUser(ctx context.Context, user auth.User) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO users (username, password_hash, created_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash;`,
		user.Username, user.PasswordHash, user.CreatedAt,
	); err != nil {
		return fmt.Errorf("upserting user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}
