package createadmin

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/requestline/intake-bot/internal/business"
	"github.com/requestline/intake-bot/internal/cmdutils"
	"github.com/requestline/intake-bot/internal/config"
)

func Cmd(buildInfo string) *cobra.Command {
	var username, password string

	cmd := cmdutils.CobraCommand(
		"create-admin",
		"Intake Bot admin bootstrap",
		"Intake Bot admin bootstrap creates an administrator account or resets its password.",
		buildInfo,
		cmdutils.RunAsJob,
		func(ctx context.Context, cfg *config.Config) error {
			return business.CreateAdminMain(ctx, cfg, username, password)
		},
	)

	cmd.Flags().StringVar(&username, "username", "", "admin username")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
