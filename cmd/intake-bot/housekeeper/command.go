package housekeeper

import (
	"github.com/spf13/cobra"

	"github.com/requestline/intake-bot/internal/business"
	"github.com/requestline/intake-bot/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"housekeeper",
		"Intake Bot Housekeeping job",
		"Intake Bot Housekeeping job removes expired conversation sessions.",
		buildInfo,
		cmdutils.RunAsService,
		business.HousekeeperMain,
	)
}
