package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/AzielCF/az-messenger/infrastructure/valkey"
	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"
)

const lockSuffix = ":lock"

// Deletes the lock only when it still holds the caller's token.
var releaseLockScript = valkeylib.NewLuaScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// ValkeySessionStore keeps conversation ids in Valkey so every replica sees
// the same session, and provides the per-key creation lock.
type ValkeySessionStore struct {
	client *valkey.Client
	ttl    time.Duration
}

func NewValkeySessionStore(client *valkey.Client, ttl time.Duration) *ValkeySessionStore {
	return &ValkeySessionStore{client: client, ttl: ttl}
}

func (s *ValkeySessionStore) fullKey(key domain.SessionKey) string {
	return s.client.Key("session", key.BotID, key.SenderID)
}

func (s *ValkeySessionStore) lockKey(key domain.SessionKey) string {
	return s.fullKey(key) + lockSuffix
}

func (s *ValkeySessionStore) inner() valkeylib.Client {
	return s.client.Inner()
}

func (s *ValkeySessionStore) Get(ctx context.Context, key domain.SessionKey) (string, bool, error) {
	id, err := s.inner().Do(ctx, s.inner().B().Get().Key(s.fullKey(key)).Build()).ToString()
	if err != nil {
		if valkey.IsNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get session: %w", err)
	}
	return id, true, nil
}

func (s *ValkeySessionStore) Save(ctx context.Context, key domain.SessionKey, conversationID string) error {
	b := s.inner().B().Set().Key(s.fullKey(key)).Value(conversationID)
	var err error
	if s.ttl > 0 {
		err = s.inner().Do(ctx, b.Ex(s.ttl).Build()).Error()
	} else {
		err = s.inner().Do(ctx, b.Build()).Error()
	}
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *ValkeySessionStore) Delete(ctx context.Context, key domain.SessionKey) error {
	if err := s.client.Del(ctx, s.fullKey(key)); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Lock makes one SET NX EX attempt with a fresh token.
func (s *ValkeySessionStore) Lock(ctx context.Context, key domain.SessionKey, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	cmd := s.inner().B().Set().Key(s.lockKey(key)).Value(token).Nx().Ex(ttl).Build()
	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		if valkey.IsNil(err) {
			return "", domain.ErrLockNotAcquired
		}
		return "", fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return token, nil
}

func (s *ValkeySessionStore) Unlock(ctx context.Context, key domain.SessionKey, token string) error {
	released, err := releaseLockScript.Exec(ctx, s.inner(), []string{s.lockKey(key)}, []string{token}).AsInt64()
	if err != nil {
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	if released == 0 {
		logrus.Warnf("[VALKEY_SESSION] Lock for %s expired before release", key)
	}
	return nil
}
