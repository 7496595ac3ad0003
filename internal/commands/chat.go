package commands

import (
	"github.com/spf13/cobra"

	"evalgo.org/realmgate/internal/metrics"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Run the WebSocket chat channel",
	Long:  `Run the chat channel at chat.path (default /socket) on chat.port (default 3000). It needs no database.`,
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	return runAll(ctx, newChat(metrics.NewRegistry())...)
}
