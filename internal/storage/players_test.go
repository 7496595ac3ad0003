package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/models"
)

func newTestPlayers(t *testing.T) (*Players, *MemoryStore) {
	t.Helper()
	model, err := schema.Default()
	require.NoError(t, err)

	store := newTestMemoryStore(t)
	players, err := NewPlayers(store, model)
	require.NoError(t, err)
	return players, store
}

func TestUpsertPlayerTwice(t *testing.T) {
	players, store := newTestPlayers(t)
	ctx := context.Background()

	first := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	players.now = func() time.Time { return first }

	created, err := players.UpsertPlayer(ctx, &models.Player{
		ID:          "80351110224678912",
		Name:        "Nelly",
		Avatar:      "https://cdn.discordapp.com/avatars/80351110224678912/abc.png",
		AccessToken: "token-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first, created.CreatedAt)
	assert.Equal(t, first, created.UpdatedAt)

	second := first.Add(time.Hour)
	players.now = func() time.Time { return second }

	updated, err := players.UpsertPlayer(ctx, &models.Player{
		ID:          "80351110224678912",
		Name:        "Nelly B.",
		AccessToken: "token-2",
	})
	require.NoError(t, err)
	assert.Equal(t, "Nelly B.", updated.Name)
	assert.Equal(t, "", updated.Avatar)
	assert.Equal(t, "token-2", updated.AccessToken)
	assert.Equal(t, first, updated.CreatedAt)
	assert.Equal(t, second, updated.UpdatedAt)

	count, err := store.Count(ctx, models.PlayerLabel, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := players.GetPlayer(ctx, "80351110224678912")
	require.NoError(t, err)
	assert.Equal(t, updated, got)
}

func TestUpsertPlayerValidation(t *testing.T) {
	players, store := newTestPlayers(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		player *models.Player
	}{
		{name: "missing id", player: &models.Player{Name: "Nelly"}},
		{name: "missing name", player: &models.Player{ID: "1"}},
		{name: "bad avatar", player: &models.Player{ID: "1", Name: "Nelly", Avatar: "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := players.UpsertPlayer(ctx, tt.player)
			assert.Error(t, err)
		})
	}

	count, err := store.Count(ctx, models.PlayerLabel, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetPlayerNotFound(t *testing.T) {
	players, _ := newTestPlayers(t)

	_, err := players.GetPlayer(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNewPlayersRequiresPlayerType(t *testing.T) {
	model, err := schema.Parse(`type Room { id: ID! @id }`)
	require.NoError(t, err)

	_, err = NewPlayers(newTestMemoryStore(t), model)
	assert.Error(t, err)
}
