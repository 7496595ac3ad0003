package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"evalgo.org/realmgate/models"
)

var (
	// ErrInvalidState is returned when a callback carries an unknown, reused or expired state
	ErrInvalidState = errors.New("invalid oauth state")
	// ErrProvider is returned when the identity provider refuses or fails the login
	ErrProvider = errors.New("identity provider failure")
)

// PlayerStore persists the players that log in.
type PlayerStore interface {
	UpsertPlayer(ctx context.Context, player *models.Player) (*models.Player, error)
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
}

// Login is the result of a completed callback.
type Login struct {
	Player    *models.Player
	Token     string
	ExpiresAt time.Time
}

// Flow runs the OAuth authorization-code login against one provider.
type Flow struct {
	provider Provider
	sessions *SessionManager
	store    SessionStore
	players  PlayerStore
	stateTTL time.Duration
	logger   zerolog.Logger
}

// NewFlow wires a login flow.
func NewFlow(provider Provider, sessions *SessionManager, store SessionStore, players PlayerStore, stateTTL time.Duration, logger zerolog.Logger) *Flow {
	return &Flow{
		provider: provider,
		sessions: sessions,
		store:    store,
		players:  players,
		stateTTL: stateTTL,
		logger:   logger.With().Str("provider", provider.Name()).Logger(),
	}
}

// Begin records a fresh state and returns the provider URL to redirect to.
func (f *Flow) Begin(ctx context.Context) (string, error) {
	state, err := NewState()
	if err != nil {
		return "", err
	}
	if err := f.store.SaveState(ctx, state, f.stateTTL); err != nil {
		return "", fmt.Errorf("failed to save state: %w", err)
	}
	return f.provider.AuthCodeURL(state), nil
}

// Complete finishes a callback. Errors wrapping ErrInvalidState or
// ErrProvider mean the login was refused before anything was written.
func (f *Flow) Complete(ctx context.Context, state, code, providerError string) (*Login, error) {
	if providerError != "" {
		return nil, fmt.Errorf("%w: %s", ErrProvider, providerError)
	}
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", ErrProvider)
	}

	ok, err := f.store.ConsumeState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("failed to check state: %w", err)
	}
	if !ok {
		return nil, ErrInvalidState
	}

	profile, err := f.provider.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}

	player, err := f.players.UpsertPlayer(ctx, profile.Player())
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := f.sessions.Create(ctx, player)
	if err != nil {
		return nil, err
	}

	f.logger.Info().Str("player_id", player.ID).Msg("player logged in")
	return &Login{Player: player, Token: token, ExpiresAt: expiresAt}, nil
}

// Current returns the player behind validated claims.
func (f *Flow) Current(ctx context.Context, playerID string) (*models.Player, error) {
	return f.players.GetPlayer(ctx, playerID)
}

// Logout revokes the session of token.
func (f *Flow) Logout(ctx context.Context, token string) error {
	return f.sessions.Revoke(ctx, token)
}
