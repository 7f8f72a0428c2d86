package business

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openkcm/common-sdk/pkg/commoncfg"

	slogctx "github.com/veqryn/slog-context"

	"github.com/requestline/intake-bot/internal/auth"
	authsql "github.com/requestline/intake-bot/internal/auth/sql"
	"github.com/requestline/intake-bot/internal/config"
)

// CreateAdminMain creates an administrator account or resets its password.
// It is the bootstrap path for the admin API: the first account has to come
// from somewhere other than the API itself.
func CreateAdminMain(ctx context.Context, cfg *config.Config, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("username and password are required")
	}

	connStr, err := config.MakeConnStr(cfg.Database)
	if err != nil {
		return fmt.Errorf("making dsn from config: %w", err)
	}

	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("initialising pgxpool connection: %w", err)
	}
	defer db.Close()

	tokenSecret, err := commoncfg.LoadValueFromSourceRef(cfg.Admin.TokenSecret)
	if err != nil {
		return fmt.Errorf("loading admin token secret: %w", err)
	}

	authSvc, err := auth.NewService(authsql.NewRepository(db), []byte(tokenSecret), cfg.Admin.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating auth service: %w", err)
	}

	if err := authSvc.SetPassword(ctx, username, password); err != nil {
		return fmt.Errorf("storing admin account: %w", err)
	}

	slogctx.Info(ctx, "Stored admin account", "username", username)

	return nil
}
