package apiserver

import (
	"github.com/spf13/cobra"

	"github.com/requestline/intake-bot/internal/business"
	"github.com/requestline/intake-bot/internal/cmdutils"
)

func Cmd(buildInfo string) *cobra.Command {
	return cmdutils.CobraCommand(
		"api-server",
		"Intake Bot API server",
		"Intake Bot API server hosts the inbound message webhook and the admin management API.",
		buildInfo,
		cmdutils.RunAsService,
		business.Main,
	)
}
