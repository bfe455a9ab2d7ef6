package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/messenger/repository"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	starts int32
	delay  time.Duration
	status int
	err    error
}

func (b *fakeBackend) StartConversation(_ context.Context, env, botID string) (domain.ConversationStart, error) {
	n := atomic.AddInt32(&b.starts, 1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	if b.err != nil {
		return domain.ConversationStart{}, b.err
	}
	status := b.status
	if status == 0 {
		status = http.StatusCreated
	}
	return domain.ConversationStart{
		StatusCode: status,
		Location:   fmt.Sprintf("http://backend/bots/%s/%s/conv-%d", env, botID, n),
	}, nil
}

func (b *fakeBackend) Say(context.Context, string, string, string, string) ([]byte, error) {
	return nil, errors.New("not used")
}

func (b *fakeBackend) calls() int {
	return int(atomic.LoadInt32(&b.starts))
}

func TestGetOrCreate_CreatesOnceThenCaches(t *testing.T) {
	backend := &fakeBackend{}
	dir := NewDirectory(backend, repository.NewMemorySessionStore(0))
	ctx := context.Background()

	id, err := dir.GetOrCreate(ctx, "unrestricted", "B1", "U1")
	require.NoError(t, err)
	assert.Equal(t, "conv-1", id)
	assert.Equal(t, 1, backend.calls())

	again, err := dir.GetOrCreate(ctx, "unrestricted", "B1", "U1")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, backend.calls(), "cache hit makes no backend call")
}

func TestGetOrCreate_ConcurrentCallersShareOneCreation(t *testing.T) {
	backend := &fakeBackend{delay: 50 * time.Millisecond}
	dir := NewDirectory(backend, repository.NewMemorySessionStore(0))

	const n = 32
	ids := make([]string, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			id, err := dir.GetOrCreate(context.Background(), "unrestricted", "B1", "U1")
			assert.NoError(t, err)
			ids[i] = id
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, backend.calls())
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestGetOrCreate_KeyedByBotAndSender(t *testing.T) {
	backend := &fakeBackend{}
	dir := NewDirectory(backend, repository.NewMemorySessionStore(0))
	ctx := context.Background()

	a, err := dir.GetOrCreate(ctx, "unrestricted", "B1", "U1")
	require.NoError(t, err)
	b, err := dir.GetOrCreate(ctx, "unrestricted", "B2", "U1")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, backend.calls())
}

func TestGetOrCreate_NotCreatedIsBackendUnavailable(t *testing.T) {
	backend := &fakeBackend{status: http.StatusNotFound}
	dir := NewDirectory(backend, repository.NewMemorySessionStore(0))

	_, err := dir.GetOrCreate(context.Background(), "unrestricted", "B9", "U1")

	var unavailable pkgError.BackendUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "B9", unavailable.BotID)
	assert.Equal(t, "bot (id:B9) is not deployed", err.Error())

	_, found, _ := dir.Peek(context.Background(), "B9", "U1")
	assert.False(t, found)
}

func TestGetOrCreate_TransportErrorPropagates(t *testing.T) {
	cause := pkgError.TransportError{Op: "start conversation", Err: errors.New("dial tcp: refused")}
	dir := NewDirectory(&fakeBackend{err: cause}, repository.NewMemorySessionStore(0))

	_, err := dir.GetOrCreate(context.Background(), "unrestricted", "B1", "U1")
	assert.ErrorIs(t, err, cause)
}

func TestInvalidateIsIdempotentAndForcesNewConversation(t *testing.T) {
	backend := &fakeBackend{}
	dir := NewDirectory(backend, repository.NewMemorySessionStore(0))
	ctx := context.Background()

	first, err := dir.GetOrCreate(ctx, "unrestricted", "B1", "U1")
	require.NoError(t, err)

	require.NoError(t, dir.Invalidate(ctx, "B1", "U1"))
	require.NoError(t, dir.Invalidate(ctx, "B1", "U1"))
	require.NoError(t, dir.Invalidate(ctx, "B1", "never-seen"))

	second, err := dir.GetOrCreate(ctx, "unrestricted", "B1", "U1")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, backend.calls())
}

// lockingStore simulates a shared store where another replica holds the
// creation lock and stores the session after a few attempts.
type lockingStore struct {
	*repository.MemorySessionStore
	mu          sync.Mutex
	lockedUntil int
	attempts    int
	unlocks     int
}

func (s *lockingStore) Lock(ctx context.Context, key domain.SessionKey, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.lockedUntil {
		if s.attempts == s.lockedUntil {
			_ = s.Save(ctx, key, "conv-from-other-replica")
		}
		return "", domain.ErrLockNotAcquired
	}
	return "token", nil
}

func (s *lockingStore) Unlock(context.Context, domain.SessionKey, string) error {
	s.mu.Lock()
	s.unlocks++
	s.mu.Unlock()
	return nil
}

func TestGetOrCreate_WaitsForOtherReplica(t *testing.T) {
	backend := &fakeBackend{}
	store := &lockingStore{MemorySessionStore: repository.NewMemorySessionStore(0), lockedUntil: 3}
	dir := NewDirectory(backend, store)

	id, err := dir.GetOrCreate(context.Background(), "unrestricted", "B1", "U1")
	require.NoError(t, err)

	assert.Equal(t, "conv-from-other-replica", id)
	assert.Equal(t, 0, backend.calls())
	assert.Equal(t, 0, store.unlocks)
}

func TestGetOrCreate_ReleasesLockAfterCreating(t *testing.T) {
	backend := &fakeBackend{}
	store := &lockingStore{MemorySessionStore: repository.NewMemorySessionStore(0)}
	dir := NewDirectory(backend, store)

	id, err := dir.GetOrCreate(context.Background(), "unrestricted", "B1", "U1")
	require.NoError(t, err)

	assert.Equal(t, "conv-1", id)
	assert.Equal(t, 1, store.unlocks)
}

func TestLastPathSegment(t *testing.T) {
	tests := []struct{ in, want string }{
		{in: "http://backend/bots/unrestricted/B1/abc123", want: "abc123"},
		{in: "eddi://ai.labs.conversation/conversationstore/conversations/c9?version=1", want: "c9"},
		{in: "/bots/unrestricted/B1/xyz/", want: "xyz"},
		{in: "plain-id", want: "plain-id"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lastPathSegment(tt.in), tt.in)
	}
}
