package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-messenger/core/config"
	valkeylib "github.com/valkey-io/valkey-go"
)

// DefaultConnectTimeout bounds the initial PING.
const DefaultConnectTimeout = 5 * time.Second

// Config holds the configuration for creating a Valkey client
type Config struct {
	Address        string
	Password       string
	DB             int
	KeyPrefix      string
	ConnectTimeout time.Duration
}

// ConfigFrom maps the database section of the application config.
func ConfigFrom(cfg config.DatabaseConfig) Config {
	return Config{
		Address:   cfg.ValkeyAddress,
		Password:  cfg.ValkeyPassword,
		DB:        cfg.ValkeyDB,
		KeyPrefix: cfg.ValkeyKeyPrefix,
	}
}

// Client wraps valkey-go with key prefixing and JSON helpers.
// The caller owns it and must Close it.
type Client struct {
	inner     valkeylib.Client
	keyPrefix string
}

// NewClient connects and pings the server, failing fast when it is unreachable.
func NewClient(cfg Config) (*Client, error) {
	inner, err := valkeylib.NewClient(valkeylib.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c := &Client{inner: inner, keyPrefix: normalizePrefix(cfg.KeyPrefix)}
	if err := c.Ping(ctx); err != nil {
		inner.Close()
		return nil, fmt.Errorf("failed to ping valkey at %s (timeout: %v): %w", cfg.Address, timeout, err)
	}
	return c, nil
}

func normalizePrefix(prefix string) string {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		return prefix + ":"
	}
	return prefix
}

// Inner returns the underlying valkey-go client.
func (c *Client) Inner() valkeylib.Client {
	return c.inner
}

func (c *Client) Close() {
	if c.inner != nil {
		c.inner.Close()
	}
}

// Key joins parts with ':' under the configured prefix,
// e.g. Key("session", "B1", "U1") -> "azmsg:session:B1:U1".
func (c *Client) Key(parts ...string) string {
	return c.keyPrefix + strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.inner.Do(ctx, c.inner.B().Ping().Build()).Error()
}

// IsConnected pings with a short timeout.
func (c *Client) IsConnected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	return c.Ping(ctx) == nil
}

// SetJSON stores v as JSON under key. A zero ttl stores without expiry.
func (c *Client) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if ttl > 0 {
		return c.inner.Do(ctx, c.inner.B().Set().Key(key).Value(string(data)).Ex(ttl).Build()).Error()
	}
	return c.inner.Do(ctx, c.inner.B().Set().Key(key).Value(string(data)).Build()).Error()
}

// GetJSON loads key into v. found is false when the key does not exist.
func (c *Client) GetJSON(ctx context.Context, key string, v any) (found bool, err error) {
	data, err := c.inner.Do(ctx, c.inner.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if IsNil(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.inner.Do(ctx, c.inner.B().Del().Key(keys...).Build()).Error()
}

// IsNil reports whether err is a Valkey NIL reply.
func IsNil(err error) bool {
	return valkeylib.IsValkeyNil(err)
}
