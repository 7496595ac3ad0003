package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"evalgo.org/realmgate/internal/api"
	"evalgo.org/realmgate/internal/auth"
	"evalgo.org/realmgate/internal/chat"
	"evalgo.org/realmgate/internal/graph"
	"evalgo.org/realmgate/internal/logging"
	"evalgo.org/realmgate/internal/metrics"
	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/internal/storage"
)

// runner is a long-running part of the process that stops when ctx ends.
type runner func(ctx context.Context) error

// signalContext is cancelled on SIGINT, SIGTERM or SIGQUIT.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGQUIT,
	)
}

// runAll runs every runner until one fails or ctx is cancelled.
func runAll(ctx context.Context, runners ...runner) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range runners {
		g.Go(func() error { return run(ctx) })
	}
	return g.Wait()
}

func loadModel() (*schema.Model, error) {
	if cfg.GraphQL.SchemaFile != "" {
		logger.Info().Str("file", cfg.GraphQL.SchemaFile).Msg("loading schema")
		return schema.Load(cfg.GraphQL.SchemaFile)
	}
	return schema.Default()
}

// openStore opens the graph store and parses the schema. The caller closes the store.
func openStore(ctx context.Context) (storage.Store, *schema.Model, error) {
	model, err := loadModel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load schema: %w", err)
	}

	store, err := storage.New(ctx, cfg, logging.Component(logger, "storage"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, model, nil
}

func closeStore(store storage.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Warn().Err(err).Msg("failed to close storage")
	}
}

func newGraphQL(ctx context.Context, store storage.Store, model *schema.Model, reg *metrics.Registry) (runner, error) {
	s, err := graph.New(model, store, graph.WithLogger(logging.Component(logger, "graph")))
	if err != nil {
		return nil, fmt.Errorf("failed to build graphql schema: %w", err)
	}
	if err := s.EnsureKeys(ctx); err != nil {
		return nil, fmt.Errorf("failed to prepare key constraints: %w", err)
	}

	server := api.NewGraphQLServer(cfg, s, store, logger, reg)
	return server.Run, nil
}

// newAuth wires the login flow. The returned close func releases the session store.
func newAuth(ctx context.Context, store storage.Store, model *schema.Model, reg *metrics.Registry) (runner, func(), error) {
	if cfg.Discord.ClientID == "" || cfg.Discord.ClientSecret == "" {
		logger.Warn().Msg("discord client id or secret is not set, logins will fail")
	}

	players, err := storage.NewPlayers(store, model)
	if err != nil {
		return nil, nil, err
	}

	sessionStore, err := auth.NewSessionStore(ctx, cfg.Session, logging.Component(logger, "sessions"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}
	sessions := auth.NewSessionManager(cfg.Session, sessionStore)
	flow := auth.NewFlow(
		auth.NewDiscordProvider(cfg.Discord),
		sessions,
		sessionStore,
		players,
		cfg.Session.StateTTL,
		logging.Component(logger, "auth"),
	)

	server := api.NewAuthServer(cfg, flow, sessions, store.Ping, logger, reg)
	closeSessions := func() {
		if err := sessionStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close session store")
		}
	}
	return server.Run, closeSessions, nil
}

// newChat returns the hub loop and the listener; both must run.
func newChat(reg *metrics.Registry) []runner {
	hub := chat.NewHub(logging.Component(logger, "hub"), reg, cfg.Chat.SendBuffer)
	server := api.NewChatServer(cfg, hub, logger, reg)

	runHub := func(ctx context.Context) error {
		hub.Run(ctx)
		return nil
	}
	return []runner{runHub, server.Run}
}
