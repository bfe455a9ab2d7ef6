package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/AzielCF/az-messenger/infrastructure/valkey"
	"github.com/AzielCF/az-messenger/messenger/domain"
	"github.com/AzielCF/az-messenger/pkg/crypto"
)

// ValkeyCredentialCache shares resolved credentials between replicas under
// "<prefix>credentials:<botID>:<version>". Fields are sealed with cipher
// when one is set.
type ValkeyCredentialCache struct {
	client *valkey.Client
	ttl    time.Duration
	cipher *crypto.Cipher
}

func NewValkeyCredentialCache(client *valkey.Client, ttl time.Duration) *ValkeyCredentialCache {
	return &ValkeyCredentialCache{client: client, ttl: ttl}
}

// WithCipher encrypts cached credential fields.
func (c *ValkeyCredentialCache) WithCipher(cipher *crypto.Cipher) *ValkeyCredentialCache {
	c.cipher = cipher
	return c
}

func (c *ValkeyCredentialCache) key(botID string, version int) string {
	return c.client.Key("credentials", botID, strconv.Itoa(version))
}

func (c *ValkeyCredentialCache) Get(ctx context.Context, botID string, version int) (domain.ChannelCredentials, bool, error) {
	var stored domain.ChannelCredentials
	found, err := c.client.GetJSON(ctx, c.key(botID, version), &stored)
	if err != nil {
		return domain.ChannelCredentials{}, false, fmt.Errorf("failed to get credentials: %w", err)
	}
	if !found {
		return domain.ChannelCredentials{}, false, nil
	}
	creds, err := openCredentials(c.cipher, stored)
	if err != nil {
		return domain.ChannelCredentials{}, false, fmt.Errorf("failed to open credentials: %w", err)
	}
	return creds, true, nil
}

func (c *ValkeyCredentialCache) Save(ctx context.Context, botID string, version int, creds domain.ChannelCredentials) error {
	sealed, err := sealCredentials(c.cipher, creds)
	if err != nil {
		return fmt.Errorf("failed to seal credentials: %w", err)
	}
	if err := c.client.SetJSON(ctx, c.key(botID, version), sealed, c.ttl); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func sealCredentials(cipher *crypto.Cipher, creds domain.ChannelCredentials) (domain.ChannelCredentials, error) {
	return convertCredentials(creds, cipher.Encrypt)
}

func openCredentials(cipher *crypto.Cipher, creds domain.ChannelCredentials) (domain.ChannelCredentials, error) {
	return convertCredentials(creds, cipher.Decrypt)
}

func convertCredentials(creds domain.ChannelCredentials, fn func(string) (string, error)) (domain.ChannelCredentials, error) {
	var out domain.ChannelCredentials
	var err error
	if out.AppSecret, err = fn(creds.AppSecret); err != nil {
		return domain.ChannelCredentials{}, err
	}
	if out.VerificationToken, err = fn(creds.VerificationToken); err != nil {
		return domain.ChannelCredentials{}, err
	}
	if out.AccessToken, err = fn(creds.AccessToken); err != nil {
		return domain.ChannelCredentials{}, err
	}
	return out, nil
}
