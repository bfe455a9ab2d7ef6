package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/AzielCF/az-messenger/botconfig/domain"
	"github.com/AzielCF/az-messenger/pkg/crypto"
	"gorm.io/gorm"
)

// botConfigModel is one stored configuration version. The domain struct
// stays free of gorm tags. Deleted versions are kept as soft-deleted rows so
// a (bot, version) pair is never handed out twice.
type botConfigModel struct {
	ID        uint             `gorm:"primaryKey;autoIncrement"`
	BotID     string           `gorm:"column:bot_id;not null;uniqueIndex:idx_bot_version"`
	Version   int              `gorm:"not null;uniqueIndex:idx_bot_version"`
	Channels  []connectorModel `gorm:"serializer:json;type:text"`
	CreatedAt time.Time        `gorm:"autoCreateTime"`
	DeletedAt gorm.DeletedAt   `gorm:"index"`
}

type connectorModel struct {
	Type   string            `json:"type"`
	Config map[string]string `json:"config"`
}

func (botConfigModel) TableName() string {
	return "bot_configs"
}

// BotConfigGormRepository implements domain.IBotConfigRepository with GORM.
// Connector config values are sealed with cipher when one is set.
type BotConfigGormRepository struct {
	db     *gorm.DB
	cipher *crypto.Cipher
}

func NewBotConfigGormRepository(db *gorm.DB) *BotConfigGormRepository {
	return &BotConfigGormRepository{db: db}
}

// WithCipher encrypts connector config values at rest.
func (r *BotConfigGormRepository) WithCipher(c *crypto.Cipher) *BotConfigGormRepository {
	r.cipher = c
	return r
}

func (r *BotConfigGormRepository) Init(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&botConfigModel{})
}

func (r *BotConfigGormRepository) CurrentVersion(ctx context.Context, botID string) (int, error) {
	return currentVersion(r.db.WithContext(ctx), botID)
}

func currentVersion(db *gorm.DB, botID string) (int, error) {
	var version sql.NullInt64
	err := db.Model(&botConfigModel{}).
		Select("MAX(version)").
		Where("bot_id = ?", botID).
		Scan(&version).Error
	if err != nil {
		return 0, err
	}
	if !version.Valid {
		return 0, domain.ErrBotNotFound
	}
	return int(version.Int64), nil
}

func (r *BotConfigGormRepository) Read(ctx context.Context, botID string, version int) (domain.BotConfig, error) {
	var model botConfigModel
	err := r.db.WithContext(ctx).First(&model, "bot_id = ? AND version = ?", botID, version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.BotConfig{}, fmt.Errorf("%w: %s v%d", domain.ErrVersionNotFound, botID, version)
		}
		return domain.BotConfig{}, err
	}
	return r.fromModel(model)
}

// Save appends version n+1 for botID inside a transaction.
func (r *BotConfigGormRepository) Save(ctx context.Context, botID string, channels []domain.ChannelConnector) (domain.BotConfig, error) {
	var saved botConfigModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Count deleted versions too: credentials are cached per (bot, version).
		version, err := currentVersion(tx.Unscoped(), botID)
		if err != nil && !errors.Is(err, domain.ErrBotNotFound) {
			return err
		}
		saved, err = r.toModel(domain.BotConfig{BotID: botID, Version: version + 1, Channels: channels})
		if err != nil {
			return err
		}
		return tx.Create(&saved).Error
	})
	if err != nil {
		return domain.BotConfig{}, err
	}
	return r.fromModel(saved)
}

// List returns the latest version of every bot ordered by bot id.
func (r *BotConfigGormRepository) List(ctx context.Context) ([]domain.BotConfig, error) {
	latest := r.db.Model(&botConfigModel{}).
		Select("bot_id, MAX(version) AS version").
		Group("bot_id")

	var models []botConfigModel
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) AS latest ON latest.bot_id = bot_configs.bot_id AND latest.version = bot_configs.version", latest).
		Order("bot_configs.bot_id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	result := make([]domain.BotConfig, len(models))
	for i, m := range models {
		if result[i], err = r.fromModel(m); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Delete soft-deletes every version of botID. A later Save continues the
// version sequence.
func (r *BotConfigGormRepository) Delete(ctx context.Context, botID string) error {
	res := r.db.WithContext(ctx).Delete(&botConfigModel{}, "bot_id = ?", botID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBotNotFound
	}
	return nil
}

func (r *BotConfigGormRepository) toModel(c domain.BotConfig) (botConfigModel, error) {
	channels := make([]connectorModel, len(c.Channels))
	for i, ch := range c.Channels {
		sealed, err := mapValues(ch.Config, r.cipher.Encrypt)
		if err != nil {
			return botConfigModel{}, fmt.Errorf("encrypt %s connector config: %w", ch.Type, err)
		}
		channels[i] = connectorModel{Type: ch.Type, Config: sealed}
	}
	return botConfigModel{
		BotID:    c.BotID,
		Version:  c.Version,
		Channels: channels,
	}, nil
}

func (r *BotConfigGormRepository) fromModel(m botConfigModel) (domain.BotConfig, error) {
	channels := make([]domain.ChannelConnector, len(m.Channels))
	for i, ch := range m.Channels {
		plain, err := mapValues(ch.Config, r.cipher.Decrypt)
		if err != nil {
			return domain.BotConfig{}, fmt.Errorf("decrypt %s connector config of %s v%d: %w", ch.Type, m.BotID, m.Version, err)
		}
		channels[i] = domain.ChannelConnector{Type: ch.Type, Config: plain}
	}
	return domain.BotConfig{
		BotID:     m.BotID,
		Version:   m.Version,
		Channels:  channels,
		CreatedAt: m.CreatedAt,
	}, nil
}

func mapValues(in map[string]string, fn func(string) (string, error)) (map[string]string, error) {
	if in == nil {
		return nil, nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		converted, err := fn(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = converted
	}
	return out, nil
}
