package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/AzielCF/az-messenger/botconfig/domain"
	pkgError "github.com/AzielCF/az-messenger/pkg/error"
	"github.com/AzielCF/az-messenger/validations"
	"github.com/sirupsen/logrus"
)

// BotConfigService manages deployments of bot configuration versions.
type BotConfigService struct {
	repo          domain.IBotConfigRepository
	connectorType string
}

func NewBotConfigService(repo domain.IBotConfigRepository, connectorType string) *BotConfigService {
	return &BotConfigService{repo: repo, connectorType: connectorType}
}

// Deploy validates req and stores it as the bot's next version.
func (s *BotConfigService) Deploy(ctx context.Context, req domain.DeployRequest) (domain.BotConfig, error) {
	if err := validations.ValidateDeploy(ctx, req, s.connectorType); err != nil {
		return domain.BotConfig{}, err
	}

	cfg, err := s.repo.Save(ctx, req.BotID, req.Channels)
	if err != nil {
		return domain.BotConfig{}, fmt.Errorf("save bot configuration %s: %w", req.BotID, err)
	}
	logrus.WithFields(logrus.Fields{"bot_id": cfg.BotID, "version": cfg.Version}).Info("[BOTCONFIG] Deployed configuration")
	return cfg, nil
}

// Current returns the latest version of botID.
func (s *BotConfigService) Current(ctx context.Context, botID string) (domain.BotConfig, error) {
	version, err := s.repo.CurrentVersion(ctx, botID)
	if err != nil {
		return domain.BotConfig{}, notFound(botID, err)
	}
	cfg, err := s.repo.Read(ctx, botID, version)
	if err != nil {
		return domain.BotConfig{}, notFound(botID, err)
	}
	return cfg, nil
}

func (s *BotConfigService) List(ctx context.Context) ([]domain.BotConfig, error) {
	return s.repo.List(ctx)
}

func (s *BotConfigService) Delete(ctx context.Context, botID string) error {
	if err := s.repo.Delete(ctx, botID); err != nil {
		return notFound(botID, err)
	}
	logrus.WithField("bot_id", botID).Info("[BOTCONFIG] Deleted configuration")
	return nil
}

func notFound(botID string, err error) error {
	if errors.Is(err, domain.ErrBotNotFound) || errors.Is(err, domain.ErrVersionNotFound) {
		return pkgError.NotFoundError(fmt.Sprintf("bot %s not found", botID))
	}
	return err
}
