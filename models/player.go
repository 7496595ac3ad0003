package models

import (
	"fmt"
	"time"
)

// PlayerLabel is the graph label Player nodes are stored under.
const PlayerLabel = "Player"

// Player is a user who signed in through Discord.
// It mirrors the Player type declared in the GraphQL schema.
//
// Example JSON representation:
//
//	{
//	  "id": "80351110224678912",
//	  "name": "Nelly",
//	  "avatar": "https://cdn.discordapp.com/avatars/80351110224678912/8342729096ea3675442027381ff50dfe.png",
//	  "createdAt": "2026-10-19T12:00:00Z",
//	  "updatedAt": "2026-10-19T12:00:00Z"
//	}
type Player struct {
	// ID is the identity provider's user id (Discord snowflake)
	ID string `json:"id" validate:"required"`

	// Name is the display name shown to other players
	Name string `json:"name" validate:"required"`

	// Avatar is an absolute URL to the avatar image, empty when the player has none
	Avatar string `json:"avatar,omitempty" validate:"omitempty,url"`

	// AccessToken is the provider access token from the last login. Never serialized.
	AccessToken string `json:"-"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Properties returns the mutable node properties of the player.
// Timestamps and the id are owned by the storage layer.
func (p *Player) Properties() map[string]any {
	return map[string]any{
		"name":        p.Name,
		"avatar":      p.Avatar,
		"accessToken": p.AccessToken,
	}
}

// PlayerFromProperties builds a Player from stored node properties.
func PlayerFromProperties(props map[string]any) (*Player, error) {
	id, ok := props["id"]
	if !ok || id == nil {
		return nil, fmt.Errorf("player node has no id")
	}

	p := &Player{
		ID:          fmt.Sprint(id),
		Name:        stringProp(props, "name"),
		Avatar:      stringProp(props, "avatar"),
		AccessToken: stringProp(props, "accessToken"),
		CreatedAt:   timeProp(props, "createdAt"),
		UpdatedAt:   timeProp(props, "updatedAt"),
	}
	return p, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key].(string); ok {
		return v
	}
	return ""
}

func timeProp(props map[string]any, key string) time.Time {
	switch v := props[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err == nil {
			return t
		}
	}
	return time.Time{}
}
