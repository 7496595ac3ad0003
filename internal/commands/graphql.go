package commands

import (
	"github.com/spf13/cobra"

	"evalgo.org/realmgate/internal/metrics"
)

var graphqlCmd = &cobra.Command{
	Use:   "graphql",
	Short: "Run the GraphQL API gateway",
	Long: `Run the GraphQL API generated from the Player/Object schema.

The API is served at graphql.path (default /graphql) on graphql.port
(default 3002), with the playground at / when graphql.playground is set.`,
	RunE: runGraphQL,
}

func runGraphQL(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	store, model, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore(store)

	run, err := newGraphQL(ctx, store, model, metrics.NewRegistry())
	if err != nil {
		return err
	}
	return run(ctx)
}
