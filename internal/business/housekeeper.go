package business

import (
	"context"
	"fmt"
	"time"

	slogctx "github.com/veqryn/slog-context"

	"github.com/requestline/intake-bot/internal/config"
)

// HousekeeperMain starts the house keeping job. It periodically removes
// conversation sessions whose TTL has passed but whose storage keys still
// exist.
func HousekeeperMain(ctx context.Context, cfg *config.Config) error {
	a, closeFn, err := initAPI(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the application: %w", err)
	}
	defer closeFn()

	c := time.Tick(cfg.Housekeeper.TriggerInterval)
	for {
		slogctx.Info(ctx, "Triggering session cleanup")
		if _, err := a.conversations.SweepExpiredSessions(ctx); err != nil {
			slogctx.Error(ctx, "Error during session cleanup", "error", err)
		}

		select {
		case <-c:
			continue
		case <-ctx.Done():
			return nil
		}
	}
}
