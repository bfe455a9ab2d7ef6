package domain

import (
	"context"
	"time"
)

// ChannelConnector is one channel integration block of a bot configuration.
// Type identifies the integration (e.g. "eddi://ai.labs.channel.facebook").
type ChannelConnector struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
}

// BotConfig is one immutable version of a bot's configuration.
type BotConfig struct {
	BotID     string             `json:"bot_id"`
	Version   int                `json:"version"`
	Channels  []ChannelConnector `json:"channels"`
	CreatedAt time.Time          `json:"created_at"`
}

// Channel returns the first connector of the given type.
func (c BotConfig) Channel(connectorType string) (ChannelConnector, bool) {
	for _, ch := range c.Channels {
		if ch.Type == connectorType {
			return ch, true
		}
	}
	return ChannelConnector{}, false
}

// DeployRequest stores a new configuration version for BotID.
type DeployRequest struct {
	BotID    string             `json:"bot_id"`
	Channels []ChannelConnector `json:"channels"`
}

// IBotConfigRepository is the versioned configuration store. Every Save
// appends a new version; older versions stay readable.
type IBotConfigRepository interface {
	Init(ctx context.Context) error
	CurrentVersion(ctx context.Context, botID string) (int, error)
	Read(ctx context.Context, botID string, version int) (BotConfig, error)
	Save(ctx context.Context, botID string, channels []ChannelConnector) (BotConfig, error)
	List(ctx context.Context) ([]BotConfig, error)
	Delete(ctx context.Context, botID string) error
}

type IBotConfigUsecase interface {
	Deploy(ctx context.Context, req DeployRequest) (BotConfig, error)
	Current(ctx context.Context, botID string) (BotConfig, error)
	List(ctx context.Context) ([]BotConfig, error)
	Delete(ctx context.Context, botID string) error
}
