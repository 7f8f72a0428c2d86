// Package approvalsql persists the system-wide approval policy in the
// settings table. A missing row falls back to the configured default so a
// fresh deployment works before an administrator ever logs in.
package approvalsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestline/intake-bot/internal/approval"
)

const policyKey = "approval_policy"

type Repository struct {
	db            *pgxpool.Pool
	defaultPolicy approval.Policy
}

var _ approval.PolicyStore = (*Repository)(nil)

func NewRepository(db *pgxpool.Pool, defaultPolicy approval.Policy) *Repository {
	return &Repository{
		db:            db,
		defaultPolicy: defaultPolicy,
	}
}

func (r *Repository) GetApprovalPolicy(ctx context.Context) (approval.Policy, error) {
	var value string

	row := r.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1;`, policyKey)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.defaultPolicy, nil
		}

		return "", fmt.Errorf("scanning row: %w", err)
	}

	policy := approval.Policy(value)
	if !policy.Valid() {
		return "", fmt.Errorf("stored approval policy %q is not valid", value)
	}

	return policy, nil
}

func (r *Repository) SetApprovalPolicy(ctx context.Context, policy approval.Policy) error {
	if !policy.Valid() {
		return fmt.Errorf("approval policy %q is not valid", policy)
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO settings (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now();`,
		policyKey, string(policy),
	); err != nil {
		return fmt.Errorf("upserting setting: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}
