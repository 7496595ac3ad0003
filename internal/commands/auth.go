package commands

import (
	"github.com/spf13/cobra"

	"evalgo.org/realmgate/internal/metrics"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Run the Discord login gateway",
	Long: `Run the Discord OAuth login on auth.port (default 3003).

Requires discord.client_id, discord.client_secret and session.secret,
e.g. through RG_DISCORD_CLIENT_ID, RG_DISCORD_CLIENT_SECRET and
RG_SESSION_SECRET.`,
	RunE: runAuth,
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	store, model, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	run, closeSessions, err := newAuth(ctx, store, model, metrics.NewRegistry())
	if err != nil {
		return err
	}
	defer closeSessions()

	return run(ctx)
}
