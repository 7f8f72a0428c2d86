package migrate

import (
	"github.com/spf13/cobra"

	"github.com/requestline/intake-bot/internal/business"
	"github.com/requestline/intake-bot/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"migrate",
		"Intake Bot migrations",
		"Intake Bot migrations applies the database schema migrations.",
		buildInfo,
		cmdutils.RunAsJob,
		business.MigrateMain,
	)
}
