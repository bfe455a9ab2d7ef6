package repository

import (
	"context"
	"time"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/sirupsen/logrus"
)

type versionedCredentials struct {
	version int
	creds   domain.ChannelCredentials
}

// MemoryCredentialCache keeps the credentials of the latest seen
// configuration version of each bot. Saving a newer version replaces the
// older one, so a version bump invalidates the previous entry.
type MemoryCredentialCache struct {
	entries *ttlMap[versionedCredentials]
}

func NewMemoryCredentialCache(ttl time.Duration) *MemoryCredentialCache {
	return &MemoryCredentialCache{entries: newTTLMap[versionedCredentials](ttl)}
}

// StartCleanup purges expired entries every interval until ctx is done.
func (c *MemoryCredentialCache) StartCleanup(ctx context.Context, interval time.Duration) {
	go c.entries.runCleanup(ctx, interval, func(n int) {
		logrus.Debugf("[CREDENTIALS] Purged %d expired cache entries", n)
	})
}

func (c *MemoryCredentialCache) Get(_ context.Context, botID string, version int) (domain.ChannelCredentials, bool, error) {
	e, ok := c.entries.get(botID)
	if !ok || e.version != version {
		return domain.ChannelCredentials{}, false, nil
	}
	return e.creds, true, nil
}

func (c *MemoryCredentialCache) Save(_ context.Context, botID string, version int, creds domain.ChannelCredentials) error {
	if e, ok := c.entries.get(botID); ok && e.version > version {
		return nil
	}
	c.entries.set(botID, versionedCredentials{version: version, creds: creds})
	return nil
}
