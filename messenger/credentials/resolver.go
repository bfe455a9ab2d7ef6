package credentials

import (
	"context"
	"fmt"

	botconfig "github.com/AzielCF/az-messenger/botconfig/domain"
	"github.com/AzielCF/az-messenger/messenger/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/sirupsen/logrus"
)

// Connector config keys of the Messenger channel.
const (
	KeyAppSecret         = "appSecret"
	KeyVerificationToken = "verificationToken"
	KeyPageAccessToken   = "pageAccessToken"
)

// ConfigStore is the part of the configuration store the resolver reads.
type ConfigStore interface {
	CurrentVersion(ctx context.Context, botID string) (int, error)
	Read(ctx context.Context, botID string, version int) (botconfig.BotConfig, error)
}

// Resolver resolves a bot's Messenger credentials from its current
// configuration version, caching them per (bot, version).
type Resolver struct {
	store         ConfigStore
	cache         domain.ICredentialCache
	connectorType string
}

func NewResolver(store ConfigStore, cache domain.ICredentialCache, connectorType string) *Resolver {
	return &Resolver{store: store, cache: cache, connectorType: connectorType}
}

// Resolve returns the credentials of botID's current configuration version.
// Every failure is a pkgError.ConfigurationError.
func (r *Resolver) Resolve(ctx context.Context, botID string) (domain.ChannelCredentials, error) {
	version, err := r.store.CurrentVersion(ctx, botID)
	if err != nil {
		return domain.ChannelCredentials{}, pkgError.ConfigurationError(
			fmt.Sprintf("could not read bot configuration for %s: %v", botID, err))
	}

	creds, found, err := r.cache.Get(ctx, botID, version)
	if err != nil {
		logrus.WithError(err).WithField("bot_id", botID).Warn("[CREDENTIALS] Cache read failed, falling back to store")
	}
	if found {
		return creds, nil
	}

	cfg, err := r.store.Read(ctx, botID, version)
	if err != nil {
		return domain.ChannelCredentials{}, pkgError.ConfigurationError(
			fmt.Sprintf("could not read bot configuration for %s v%d: %v", botID, version, err))
	}

	creds, err = r.extract(botID, cfg)
	if err != nil {
		return domain.ChannelCredentials{}, err
	}

	if err := r.cache.Save(ctx, botID, version, creds); err != nil {
		logrus.WithError(err).WithField("bot_id", botID).Warn("[CREDENTIALS] Cache write failed")
	}
	logrus.WithFields(logrus.Fields{"bot_id": botID, "version": version}).Debug("[CREDENTIALS] Resolved from store")
	return creds, nil
}

// extract reads the first connector of the Messenger type; later connectors
// of the same type are ignored.
func (r *Resolver) extract(botID string, cfg botconfig.BotConfig) (domain.ChannelCredentials, error) {
	ch, ok := cfg.Channel(r.connectorType)
	if !ok {
		return domain.ChannelCredentials{}, pkgError.ConfigurationError(
			fmt.Sprintf("bot %s has no %s channel", botID, r.connectorType))
	}

	creds := domain.ChannelCredentials{
		AppSecret:         ch.Config[KeyAppSecret],
		VerificationToken: ch.Config[KeyVerificationToken],
		AccessToken:       ch.Config[KeyPageAccessToken],
	}
	if creds.AppSecret == "" || creds.VerificationToken == "" || creds.AccessToken == "" {
		return domain.ChannelCredentials{}, pkgError.ConfigurationError(
			fmt.Sprintf("bot %s: %s, %s and %s must not be empty", botID, KeyAppSecret, KeyVerificationToken, KeyPageAccessToken))
	}
	return creds, nil
}
