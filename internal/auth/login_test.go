package auth

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/realmgate/models"
)

type fakeProvider struct {
	profile *Profile
	err     error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(context.Context, string) (*Profile, error) {
	return p.profile, p.err
}

type fakePlayers struct {
	players map[string]*models.Player
	err     error
}

func (f *fakePlayers) UpsertPlayer(_ context.Context, p *models.Player) (*models.Player, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.players[p.ID] = p
	return p, nil
}

func (f *fakePlayers) GetPlayer(_ context.Context, id string) (*models.Player, error) {
	p, ok := f.players[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func newTestFlow(t *testing.T, provider *fakeProvider) (*Flow, *fakePlayers) {
	t.Helper()
	m, store := newTestSessions(t)
	players := &fakePlayers{players: map[string]*models.Player{}}
	return NewFlow(provider, m, store, players, time.Minute, zerolog.Nop()), players
}

func stateOf(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	return u.Query().Get("state")
}

func TestFlowComplete(t *testing.T) {
	provider := &fakeProvider{profile: &Profile{ID: "42", Username: "nelly", AccessToken: "tok"}}
	flow, players := newTestFlow(t, provider)
	ctx := context.Background()

	redirect, err := flow.Begin(ctx)
	require.NoError(t, err)
	state := stateOf(t, redirect)
	require.NotEmpty(t, state)

	login, err := flow.Complete(ctx, state, "code", "")
	require.NoError(t, err)
	assert.Equal(t, "42", login.Player.ID)
	assert.NotEmpty(t, login.Token)
	assert.Contains(t, players.players, "42")

	claims, err := flow.sessions.Validate(ctx, login.Token)
	require.NoError(t, err)
	current, err := flow.Current(ctx, claims.PlayerID)
	require.NoError(t, err)
	assert.Equal(t, "nelly", current.Name)

	// the state cannot be replayed
	_, err = flow.Complete(ctx, state, "code", "")
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, flow.Logout(ctx, login.Token))
	_, err = flow.sessions.Validate(ctx, login.Token)
	assert.ErrorIs(t, err, ErrSessionRevoked)
}

func TestFlowRefusals(t *testing.T) {
	tests := []struct {
		name          string
		providerErr   error
		code          string
		providerError string
		badState      bool
		want          error
	}{
		{name: "access denied", code: "code", providerError: "access_denied", want: ErrProvider},
		{name: "missing code", want: ErrProvider},
		{name: "unknown state", code: "code", badState: true, want: ErrInvalidState},
		{name: "exchange fails", code: "code", providerErr: errors.New("boom"), want: ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{profile: &Profile{ID: "42", Username: "nelly"}, err: tt.providerErr}
			flow, players := newTestFlow(t, provider)
			ctx := context.Background()

			redirect, err := flow.Begin(ctx)
			require.NoError(t, err)
			state := stateOf(t, redirect)
			if tt.badState {
				state = "forged"
			}

			_, err = flow.Complete(ctx, state, tt.code, tt.providerError)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, players.players)
		})
	}
}

func TestFlowStorageFailure(t *testing.T) {
	provider := &fakeProvider{profile: &Profile{ID: "42", Username: "nelly"}}
	flow, players := newTestFlow(t, provider)
	players.err = errors.New("database down")
	ctx := context.Background()

	redirect, err := flow.Begin(ctx)
	require.NoError(t, err)

	_, err = flow.Complete(ctx, stateOf(t, redirect), "code", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrProvider))
	assert.False(t, errors.Is(err, ErrInvalidState))
}
