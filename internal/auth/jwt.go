// Package auth implements the Discord login flow and server-side sessions.
//
// A session is an HS256 JWT stored in a cookie. The token carries the
// session id (jti) and the player id; it is only accepted while the session
// id is present in the SessionStore, so logging out revokes it immediately.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"evalgo.org/realmgate/internal/config"
	"evalgo.org/realmgate/models"
)

var (
	// ErrInvalidToken is returned when a session token is invalid
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when a session token has expired
	ErrExpiredToken = errors.New("token has expired")
	// ErrSessionRevoked is returned when the token's session no longer exists
	ErrSessionRevoked = errors.New("session has been revoked")
)

const issuer = "realmgate"

// Claims represents the session token claims
type Claims struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	jwt.RegisteredClaims
}

// Session is the server-side record a token refers to.
type Session struct {
	ID        string
	PlayerID  string
	ExpiresAt time.Time
}

// SessionManager issues and validates session tokens.
type SessionManager struct {
	secret []byte
	ttl    time.Duration
	store  SessionStore
	now    func() time.Time
}

// NewSessionManager creates a session manager backed by store.
func NewSessionManager(cfg config.SessionConfig, store SessionStore) *SessionManager {
	return &SessionManager{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		store:  store,
		now:    time.Now,
	}
}

// Create opens a session for player and returns the signed token.
func (m *SessionManager) Create(ctx context.Context, player *models.Player) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	session := Session{
		ID:        uuid.NewString(),
		PlayerID:  player.ID,
		ExpiresAt: expiresAt,
	}
	if err := m.store.SaveSession(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to save session: %w", err)
	}

	claims := Claims{
		PlayerID: player.ID,
		Name:     player.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   player.ID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// parse verifies the signature and registered claims.
func (m *SessionManager) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Validate returns the claims of a token whose session is still open.
func (m *SessionManager) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil, err
	}

	session, err := m.store.GetSession(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.PlayerID != claims.PlayerID {
		return nil, ErrSessionRevoked
	}

	return claims, nil
}

// Revoke closes the session of a token. Invalid or already closed tokens are ignored.
func (m *SessionManager) Revoke(ctx context.Context, tokenString string) error {
	claims, err := m.parse(tokenString)
	if err != nil {
		return nil
	}
	return m.store.DeleteSession(ctx, claims.ID)
}

// NewState generates a random OAuth state value
func NewState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
