package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fpang/mystic-studio/internal/session"
	"github.com/google/uuid"
	backend "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultRedisPrefix namespaces every key written by this package.
const DefaultRedisPrefix = "mystic:session:"

// RedisSessionStore persists sessions as JSON strings with a TTL. Expiry is
// left to Redis; nothing else is written per session.
type RedisSessionStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisSessionStore.
type RedisOption func(*RedisSessionStore)

// WithTTL sets the expiration for sessions. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSessionStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for sessions.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisSessionStore) {
		s.prefix = prefix
	}
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*backend.Client, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisSessionStore creates a store on an existing client.
func NewRedisSessionStore(client *backend.Client, opts ...RedisOption) *RedisSessionStore {
	s := &RedisSessionStore{
		client: client,
		prefix: DefaultRedisPrefix,
		ttl:    SessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisSessionStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// Put saves the session and refreshes its TTL.
func (s *RedisSessionStore) Put(ctx context.Context, es *session.EditSession) error {
	data, err := json.Marshal(es)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(es.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}

	log.Debug().Str("sessionId", es.ID).Int("bytes", len(data)).Msg("Session persisted to Redis")
	return nil
}

// Get loads a session. Missing or expired keys yield session.ErrNotFound.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*session.EditSession, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session from redis: %w", err)
	}

	var es session.EditSession
	if err := json.Unmarshal(val, &es); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &es, nil
}

// Close closes the redis client.
func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

// ErrLockAcquire is returned when a session lock cannot be acquired
// before the context is done.
var ErrLockAcquire = errors.New("failed to acquire session lock")

// unlockScript deletes the lock key only if it still holds our token.
const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// RedisLocker is a session.Locker shared by every instance that uses the
// same Redis, built on SET NX PX.
type RedisLocker struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

var _ session.Locker = (*RedisLocker)(nil)

// NewRedisLocker creates a locker. ttl bounds how long a crashed holder
// can block the session.
func NewRedisLocker(client *backend.Client, prefix string, ttl time.Duration) *RedisLocker {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, prefix: prefix, ttl: ttl, poll: 50 * time.Millisecond}
}

// Lock implements session.Locker.
func (l *RedisLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	lockKey := l.prefix + "lock:" + sessionID
	token := uuid.New().String()

	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, lockKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("redis error acquiring lock: %w", err)
		}
		if ok {
			return func() {
				// The caller's context may already be done; release on a fresh one.
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Err(); err != nil {
					log.Warn().Err(err).Str("sessionId", sessionID).Msg("Failed to release session lock")
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrLockAcquire, ctx.Err())
		case <-ticker.C:
		}
	}
}
