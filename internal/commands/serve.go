package commands

import (
	"github.com/spf13/cobra"

	"evalgo.org/realmgate/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the graphql, auth and chat services in one process",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	store, model, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	reg := metrics.NewRegistry()

	graphqlRun, err := newGraphQL(ctx, store, model, reg)
	if err != nil {
		return err
	}
	authRun, closeSessions, err := newAuth(ctx, store, model, reg)
	if err != nil {
		return err
	}
	defer closeSessions()

	runners := append([]runner{graphqlRun, authRun}, newChat(reg)...)

	logger.Info().
		Int("graphql_port", cfg.GraphQL.Port).
		Int("auth_port", cfg.Auth.Port).
		Int("chat_port", cfg.Chat.Port).
		Msg("starting realmgate")

	err = runAll(ctx, runners...)
	logger.Info().Msg("realmgate stopped")
	return err
}
