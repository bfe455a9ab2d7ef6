package platform

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-messenger/core/config"
	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// CredentialResolver resolves the current credentials of a bot.
type CredentialResolver interface {
	Resolve(ctx context.Context, botID string) (domain.ChannelCredentials, error)
}

// ClientCache keeps one Client per bot and rebuilds it when the bot's
// resolved credentials change. All clients share one connection pool.
type ClientCache struct {
	resolver CredentialResolver
	cfg      config.MessengerConfig
	http     *fasthttp.Client

	mu      sync.RWMutex
	clients map[string]*Client
}

func NewClientCache(resolver CredentialResolver, cfg config.MessengerConfig) *ClientCache {
	return &ClientCache{
		resolver: resolver,
		cfg:      cfg,
		http: &fasthttp.Client{
			MaxIdleConnDuration: time.Minute,
		},
		clients: make(map[string]*Client),
	}
}

// Get returns the client for botID. Resolution errors are returned as is.
func (cc *ClientCache) Get(ctx context.Context, botID string) (*Client, error) {
	creds, err := cc.resolver.Resolve(ctx, botID)
	if err != nil {
		return nil, err
	}

	cc.mu.RLock()
	client, ok := cc.clients[botID]
	cc.mu.RUnlock()
	if ok && client.creds == creds {
		return client, nil
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	if client, ok := cc.clients[botID]; ok && client.creds == creds {
		return client, nil
	}
	if ok {
		logrus.WithField("bot_id", botID).Info("[PLATFORM] Credentials changed, rebuilding client")
	}
	client = NewClient(cc.cfg, creds, cc.http)
	cc.clients[botID] = client
	return client, nil
}

// Sender is Get typed as an outbound sender.
func (cc *ClientCache) Sender(ctx context.Context, botID string) (domain.IPlatformSender, error) {
	client, err := cc.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (cc *ClientCache) Verifier(ctx context.Context, botID string) (domain.IWebhookVerifier, error) {
	client, err := cc.Get(ctx, botID)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// Forget drops the cached client of botID.
func (cc *ClientCache) Forget(botID string) {
	cc.mu.Lock()
	delete(cc.clients, botID)
	cc.mu.Unlock()
}

func (cc *ClientCache) Len() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.clients)
}
