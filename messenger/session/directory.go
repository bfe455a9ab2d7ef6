package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/AzielCF/az-messenger/messenger/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultLockTTL  = 15 * time.Second
	defaultLockWait = 12 * time.Second
	lockRetryDelay  = 50 * time.Millisecond
)

// Directory maps (bot, sender) pairs to backend conversation ids and creates
// conversations on demand. Concurrent first messages for one key share a
// single creation call; when the store also implements domain.ISessionLocker
// the creation is serialized across replicas as well.
type Directory struct {
	backend  domain.IConversationBackend
	store    domain.ISessionStore
	locker   domain.ISessionLocker
	group    singleflight.Group
	lockTTL  time.Duration
	lockWait time.Duration
}

func NewDirectory(backend domain.IConversationBackend, store domain.ISessionStore) *Directory {
	d := &Directory{
		backend:  backend,
		store:    store,
		lockTTL:  defaultLockTTL,
		lockWait: defaultLockWait,
	}
	if locker, ok := store.(domain.ISessionLocker); ok {
		d.locker = locker
	}
	return d
}

// GetOrCreate returns the conversation id of (botID, senderID), starting a
// new backend conversation in environment when none is cached.
func (d *Directory) GetOrCreate(ctx context.Context, environment, botID, senderID string) (string, error) {
	key := domain.SessionKey{BotID: botID, SenderID: senderID}

	id, found, err := d.store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("lookup session %s: %w", key, err)
	}
	if found {
		return id, nil
	}

	v, err, _ := d.group.Do(key.String(), func() (any, error) {
		// The flight outlives the cancellation of whichever caller started it.
		return d.create(context.WithoutCancel(ctx), environment, key)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Peek returns the cached conversation id without creating one.
func (d *Directory) Peek(ctx context.Context, botID, senderID string) (string, bool, error) {
	return d.store.Get(ctx, domain.SessionKey{BotID: botID, SenderID: senderID})
}

// Invalidate drops the cached session. Missing sessions are not an error.
func (d *Directory) Invalidate(ctx context.Context, botID, senderID string) error {
	key := domain.SessionKey{BotID: botID, SenderID: senderID}
	if err := d.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate session %s: %w", key, err)
	}
	logrus.WithFields(logrus.Fields{"bot_id": botID, "sender_id": senderID}).Debug("[SESSION] Invalidated")
	return nil
}

func (d *Directory) create(ctx context.Context, environment string, key domain.SessionKey) (string, error) {
	// A flight that just finished may have stored the id already.
	if id, found, err := d.store.Get(ctx, key); err == nil && found {
		return id, nil
	}

	if d.locker != nil {
		token, id, err := d.acquire(ctx, key)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
		defer func() {
			if err := d.locker.Unlock(ctx, key, token); err != nil {
				logrus.WithError(err).Warnf("[SESSION] Failed to release lock for %s", key)
			}
		}()
		if id, found, err := d.store.Get(ctx, key); err == nil && found {
			return id, nil
		}
	}

	id, err := d.start(ctx, environment, key.BotID)
	if err != nil {
		return "", err
	}

	if err := d.store.Save(ctx, key, id); err != nil {
		logrus.WithError(err).Warnf("[SESSION] Failed to cache conversation %s for %s", id, key)
	}
	logrus.WithFields(logrus.Fields{
		"bot_id":          key.BotID,
		"sender_id":       key.SenderID,
		"conversation_id": id,
	}).Info("[SESSION] Started conversation")
	return id, nil
}

// acquire waits for the distributed creation lock. If another replica
// stores the session while we wait, its id is returned instead of a token.
func (d *Directory) acquire(ctx context.Context, key domain.SessionKey) (token string, id string, err error) {
	deadline := time.Now().Add(d.lockWait)
	for {
		token, err = d.locker.Lock(ctx, key, d.lockTTL)
		if err == nil {
			return token, "", nil
		}
		if !errors.Is(err, domain.ErrLockNotAcquired) {
			return "", "", fmt.Errorf("lock session %s: %w", key, err)
		}

		if id, found, getErr := d.store.Get(ctx, key); getErr == nil && found {
			return "", id, nil
		}
		if time.Now().After(deadline) {
			return "", "", fmt.Errorf("lock session %s: %w", key, domain.ErrLockNotAcquired)
		}

		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(lockRetryDelay + time.Duration(rand.Intn(20))*time.Millisecond):
		}
	}
}

func (d *Directory) start(ctx context.Context, environment, botID string) (string, error) {
	res, err := d.backend.StartConversation(ctx, environment, botID)
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		logrus.WithField("bot_id", botID).Warnf("[SESSION] Backend answered %d to conversation start", res.StatusCode)
		return "", pkgError.BackendUnavailableError{BotID: botID}
	}

	id := lastPathSegment(res.Location)
	if id == "" {
		logrus.WithField("bot_id", botID).Warnf("[SESSION] Conversation created without usable location %q", res.Location)
		return "", pkgError.BackendUnavailableError{BotID: botID}
	}
	return id, nil
}

// lastPathSegment returns the final path element of a location reference,
// ignoring any query string or trailing slash.
func lastPathSegment(location string) string {
	p := location
	if u, err := url.Parse(location); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	return p[strings.LastIndex(p, "/")+1:]
}
