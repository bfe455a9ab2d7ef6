package platform

import (
	"context"
	"errors"
	"testing"

	"github.com/AzielCF/az-messenger/core/config"
	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	creds map[string]domain.ChannelCredentials
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, botID string) (domain.ChannelCredentials, error) {
	s.calls++
	if s.err != nil {
		return domain.ChannelCredentials{}, s.err
	}
	return s.creds[botID], nil
}

func TestClientCacheReusesClientWhileCredentialsMatch(t *testing.T) {
	resolver := &stubResolver{creds: map[string]domain.ChannelCredentials{"B1": pageCreds}}
	cache := NewClientCache(resolver, config.MessengerConfig{GraphAPIURL: "https://graph.example", APIVersion: "v19.0"})

	first, err := cache.Get(context.Background(), "B1")
	require.NoError(t, err)
	second, err := cache.Get(context.Background(), "B1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 2, resolver.calls)
	assert.Equal(t, 1, cache.Len())
}

func TestClientCacheRebuildsOnCredentialChange(t *testing.T) {
	resolver := &stubResolver{creds: map[string]domain.ChannelCredentials{"B1": pageCreds}}
	cache := NewClientCache(resolver, config.MessengerConfig{})

	first, err := cache.Get(context.Background(), "B1")
	require.NoError(t, err)

	rotated := pageCreds
	rotated.AccessToken = "rotated"
	resolver.creds["B1"] = rotated

	second, err := cache.Get(context.Background(), "B1")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, rotated, second.Credentials())
}

func TestClientCachePropagatesResolveErrors(t *testing.T) {
	resolver := &stubResolver{err: errors.New("no config")}
	cache := NewClientCache(resolver, config.MessengerConfig{})

	_, err := cache.Get(context.Background(), "B1")
	assert.EqualError(t, err, "no config")
	assert.Zero(t, cache.Len())
}

func TestClientCacheForget(t *testing.T) {
	resolver := &stubResolver{creds: map[string]domain.ChannelCredentials{"B1": pageCreds}}
	cache := NewClientCache(resolver, config.MessengerConfig{})

	_, err := cache.Get(context.Background(), "B1")
	require.NoError(t, err)
	cache.Forget("B1")
	assert.Zero(t, cache.Len())
}
