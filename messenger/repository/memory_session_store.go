package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/sirupsen/logrus"
)

// MemorySessionStore keeps conversation ids in process memory.
// Entries are lost on restart and are not shared between replicas.
type MemorySessionStore struct {
	entries *ttlMap[string]
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	return &MemorySessionStore{entries: newTTLMap[string](ttl)}
}

// StartCleanup purges expired sessions every interval until ctx is done.
func (s *MemorySessionStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go s.entries.runCleanup(ctx, interval, func(n int) {
		logrus.Debugf("[SESSION] Purged %d expired sessions", n)
	})
}

func (s *MemorySessionStore) Get(_ context.Context, key domain.SessionKey) (string, bool, error) {
	id, ok := s.entries.get(key.String())
	return id, ok, nil
}

func (s *MemorySessionStore) Save(_ context.Context, key domain.SessionKey, conversationID string) error {
	s.entries.set(key.String(), conversationID)
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, key domain.SessionKey) error {
	s.entries.delete(key.String())
	return nil
}

// Len returns the number of stored sessions, expired ones included until purged.
func (s *MemorySessionStore) Len() int {
	return s.entries.len()
}
