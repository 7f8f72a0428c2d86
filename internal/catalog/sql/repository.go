// Package catalogsql persists the administrator-managed registry of
// downstream catalog endpoints.
package catalogsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/requestline/intake-bot/internal/catalog"
	"github.com/requestline/intake-bot/internal/serviceerr"
)

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) List(ctx context.Context) ([]catalog.Endpoint, error) {
	rows, err := r.db.Query(ctx,
		`SELECT name, kind, base_url, api_key, enabled FROM catalog_services ORDER BY name;`)
	if err != nil {
		return nil, fmt.Errorf("querying catalog_services: %w", err)
	}
	defer rows.Close()

	var endpoints []catalog.Endpoint
	for rows.Next() {
		var ep catalog.Endpoint
		if err := rows.Scan(&ep.Name, &ep.Kind, &ep.BaseURL, &ep.APIKey, &ep.Enabled); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		endpoints = append(endpoints, ep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return endpoints, nil
}

func (r *Repository) Get(ctx context.Context, name string) (catalog.Endpoint, error) {
	var ep catalog.Endpoint

	row := r.db.QueryRow(ctx,
		`SELECT name, kind, base_url, api_key, enabled FROM catalog_services WHERE name = $1;`, name)
	if err := row.Scan(&ep.Name, &ep.Kind, &ep.BaseURL, &ep.APIKey, &ep.Enabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Endpoint{}, serviceerr.ErrNotFound
		}

		return catalog.Endpoint{}, fmt.Errorf("scanning row: %w", err)
	}

	return ep, nil
}

func (r *Repository) Create(ctx context.Context, ep catalog.Endpoint) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO catalog_services (name, kind, base_url, api_key, enabled)
			 VALUES ($1, $2, $3, $4, $5);`,
		ep.Name, string(ep.Kind), ep.BaseURL, ep.APIKey, ep.Enabled,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("inserting into catalog_services: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}

func (r *Repository) Update(ctx context.Context, ep catalog.Endpoint) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx,
		`UPDATE catalog_services
			 SET kind = $1, base_url = $2, api_key = $3, enabled = $4
			 WHERE name = $5;`,
		string(ep.Kind), ep.BaseURL, ep.APIKey, ep.Enabled, ep.Name)
	if err != nil {
		return fmt.Errorf("updating catalog_services: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return serviceerr.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}

func (r *Repository) Delete(ctx context.Context, name string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `DELETE FROM catalog_services WHERE name = $1;`, name)
	if err != nil {
		return fmt.Errorf("executing sql query: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return serviceerr.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing tx: %w", err)
	}

	return nil
}
