package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"evalgo.org/realmgate/internal/schema"
	"evalgo.org/realmgate/models"
)

// Players persists login profiles as Player nodes.
type Players struct {
	store    Store
	typ      *schema.Type
	now      func() time.Time
	validate *validator.Validate
}

// NewPlayers binds the Player type of the model to store.
func NewPlayers(store Store, model *schema.Model) (*Players, error) {
	typ, ok := model.Type(models.PlayerLabel)
	if !ok {
		return nil, fmt.Errorf("schema has no %s type", models.PlayerLabel)
	}
	return &Players{
		store:    store,
		typ:      typ,
		now:      time.Now,
		validate: validator.New(),
	}, nil
}

// UpsertPlayer creates the player or overwrites every profile field of an
// existing one. Timestamps stamped on CREATE only are kept on later calls.
func (p *Players) UpsertPlayer(ctx context.Context, player *models.Player) (*models.Player, error) {
	if err := p.validate.Struct(player); err != nil {
		return nil, fmt.Errorf("invalid player: %w", err)
	}

	now := p.now().UTC()
	props := Properties(player.Properties())
	onCreate := Properties{}
	for _, f := range p.typ.Timestamps(schema.Create) {
		if !f.StampedOn(schema.Update) {
			onCreate[f.Name] = now
		}
	}
	for _, f := range p.typ.Timestamps(schema.Update) {
		props[f.Name] = now
	}

	ref := NodeRef{Label: p.typ.Name, Key: p.typ.Key.Name, ID: player.ID}
	stored, err := p.store.Merge(ctx, ref, props, onCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert player %s: %w", player.ID, err)
	}
	return models.PlayerFromProperties(stored)
}

// GetPlayer returns the player with id or ErrNotFound.
func (p *Players) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	nodes, err := p.store.Find(ctx, p.typ.Name, Eq(p.typ.Key.Name, id), Options{Limit: 1})
	if err != nil {
		return nil, fmt.Errorf("failed to get player %s: %w", id, err)
	}
	if len(nodes) == 0 {
		return nil, ErrNotFound
	}
	return models.PlayerFromProperties(nodes[0])
}
