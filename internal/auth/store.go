package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-memdb"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"evalgo.org/realmgate/internal/config"
)

// SessionStore keeps open sessions and pending OAuth states.
type SessionStore interface {
	// SaveSession stores s until s.ExpiresAt.
	SaveSession(ctx context.Context, s Session) error

	// GetSession returns the session with id, or nil when it is unknown or expired.
	GetSession(ctx context.Context, id string) (*Session, error)

	// DeleteSession removes a session. Unknown ids are not an error.
	DeleteSession(ctx context.Context, id string) error

	// SaveState stores a pending OAuth state for ttl.
	SaveState(ctx context.Context, state string, ttl time.Duration) error

	// ConsumeState removes state and reports whether it was pending.
	ConsumeState(ctx context.Context, state string) (bool, error)

	Close() error
}

// NewSessionStore opens the store selected by cfg.
func NewSessionStore(ctx context.Context, cfg config.SessionConfig, logger zerolog.Logger) (SessionStore, error) {
	switch cfg.Store {
	case config.SessionStoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis is not reachable at %s: %w", cfg.RedisAddr, err)
		}
		logger.Info().Str("addr", cfg.RedisAddr).Msg("using redis session store")
		return NewRedisStore(client), nil

	case config.SessionStoreMemory, "":
		store, err := NewMemoryStore()
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("using in-memory session store")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

const (
	sessionPrefix = "realmgate:session:"
	statePrefix   = "realmgate:state:"
)

// RedisStore is a SessionStore on Redis. Expiry is delegated to key TTLs.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) SaveSession(ctx context.Context, s Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("session %s is already expired", s.ID)
	}
	return r.client.Set(ctx, sessionPrefix+s.ID, s.PlayerID, ttl).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, id string) (*Session, error) {
	key := sessionPrefix + id
	playerID, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read session ttl: %w", err)
	}
	return &Session{ID: id, PlayerID: playerID, ExpiresAt: time.Now().Add(ttl)}, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionPrefix+id).Err()
}

func (r *RedisStore) SaveState(ctx context.Context, state string, ttl time.Duration) error {
	return r.client.Set(ctx, statePrefix+state, "1", ttl).Err()
}

func (r *RedisStore) ConsumeState(ctx context.Context, state string) (bool, error) {
	err := r.client.GetDel(ctx, statePrefix+state).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to consume state: %w", err)
	}
	return true, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

type sessionRecord struct {
	Session
	Expires int64
}

type stateRecord struct {
	Value   string
	Expires int64
}

// MemoryStore is a SessionStore kept in process memory. Expired entries
// are treated as absent; every save sweeps the expired rows of its table.
type MemoryStore struct {
	db  *memdb.MemDB
	now func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() (*MemoryStore, error) {
	db, err := memdb.NewMemDB(&memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"session": {
				Name: "session",
				Indexes: map[string]*memdb.IndexSchema{
					"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "ID"}},
					"expires": {Name: "expires", Indexer: &memdb.IntFieldIndex{Field: "Expires"}},
				},
			},
			"state": {
				Name: "state",
				Indexes: map[string]*memdb.IndexSchema{
					"id":      {Name: "id", Unique: true, Indexer: &memdb.StringFieldIndex{Field: "Value"}},
					"expires": {Name: "expires", Indexer: &memdb.IntFieldIndex{Field: "Expires"}},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session store: %w", err)
	}
	return &MemoryStore{db: db, now: time.Now}, nil
}

// sweep deletes the rows of table whose expiry is not after now.
func (m *MemoryStore) sweep(txn *memdb.Txn, table string) error {
	now := m.now().UnixNano()
	it, err := txn.Get(table, "expires")
	if err != nil {
		return err
	}

	var expired []interface{}
	for raw := it.Next(); raw != nil; raw = it.Next() {
		var expires int64
		switch rec := raw.(type) {
		case *sessionRecord:
			expires = rec.Expires
		case *stateRecord:
			expires = rec.Expires
		}
		if expires > now {
			break
		}
		expired = append(expired, raw)
	}

	for _, raw := range expired {
		if err := txn.Delete(table, raw); err != nil {
			return err
		}
	}
	return nil
}

// size counts the rows held in table, expired ones included.
func (m *MemoryStore) size(table string) (int, error) {
	txn := m.db.Txn(false)
	it, err := txn.Get(table, "id")
	if err != nil {
		return 0, err
	}
	n := 0
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n, nil
}

func (m *MemoryStore) SaveSession(_ context.Context, s Session) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if err := m.sweep(txn, "session"); err != nil {
		return err
	}
	if err := txn.Insert("session", &sessionRecord{Session: s, Expires: s.ExpiresAt.UnixNano()}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*Session, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("session", "id", id)
	if err != nil || raw == nil {
		return nil, err
	}
	rec := raw.(*sessionRecord)
	if !m.now().Before(rec.ExpiresAt) {
		if err := txn.Delete("session", rec); err != nil {
			return nil, err
		}
		txn.Commit()
		return nil, nil
	}
	out := rec.Session
	return &out, nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if _, err := txn.DeleteAll("session", "id", id); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryStore) SaveState(_ context.Context, state string, ttl time.Duration) error {
	txn := m.db.Txn(true)
	defer txn.Abort()
	if err := m.sweep(txn, "state"); err != nil {
		return err
	}
	if err := txn.Insert("state", &stateRecord{Value: state, Expires: m.now().Add(ttl).UnixNano()}); err != nil {
		return err
	}
	txn.Commit()
	return nil
}

func (m *MemoryStore) ConsumeState(_ context.Context, state string) (bool, error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First("state", "id", state)
	if err != nil || raw == nil {
		return false, err
	}
	rec := raw.(*stateRecord)
	if err := txn.Delete("state", rec); err != nil {
		return false, err
	}
	txn.Commit()
	return m.now().UnixNano() < rec.Expires, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var (
	_ SessionStore = (*MemoryStore)(nil)
	_ SessionStore = (*RedisStore)(nil)
)
