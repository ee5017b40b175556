package application

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// ConfigService 配置服務
// 持久化的配置和運行時容器保持一致：保存成功後才替換容器中的配置
type ConfigService struct {
	repo     config.Repository
	runtime  *config.AtomicContainer
	migrator *config.Migrator
	logger   *zap.Logger
	mu       sync.Mutex
}

// NewConfigService 創建配置服務，runtime 可以為 nil
func NewConfigService(
	repo config.Repository,
	runtime *config.AtomicContainer,
	logger *zap.Logger,
) *ConfigService {
	return &ConfigService{
		repo:     repo,
		runtime:  runtime,
		migrator: config.NewMigrator(),
		logger:   logger,
	}
}

// GetConfig 獲取當前配置
func (s *ConfigService) GetConfig(ctx context.Context) (*config.Config, error) {
	return s.repo.Load(ctx)
}

// UpdateConfig 原子更新配置
// 邏輯：Lock -> Load -> DeepCopy -> Modify -> Validate -> Save -> Unlock
func (s *ConfigService) UpdateConfig(ctx context.Context, modifier func(*config.Config) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currentCfg, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("加載配置失敗: %w", err)
	}

	newCfg := currentCfg.DeepCopy()

	if err := modifier(newCfg); err != nil {
		return fmt.Errorf("應用配置修改失敗: %w", err)
	}

	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("新配置驗證失敗: %w", err)
	}

	if err := s.repo.Save(ctx, newCfg); err != nil {
		return fmt.Errorf("保存配置失敗: %w", err)
	}

	if s.runtime != nil {
		if err := s.runtime.Replace(newCfg); err != nil {
			return fmt.Errorf("更新運行時配置失敗: %w", err)
		}
	}

	s.logger.Info("配置已更新並保存")
	return nil
}

// LoadWithMigration 加載配置並自動遷移
func (s *ConfigService) LoadWithMigration(ctx context.Context) (*config.Config, error) {
	// 加載時也加鎖，防止遷移過程中被並發修改
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加載配置失敗: %w", err)
	}

	cfg.FillDefaults()

	if !s.migrator.NeedsMigration(cfg) {
		s.logger.Info("配置已是最新版本", zap.Int("version", cfg.Version))
		return cfg, nil
	}

	oldVersion := cfg.Version
	s.logger.Info("開始配置遷移",
		zap.Int("from_version", oldVersion),
		zap.Int("to_version", config.ConfigVersionLatest),
		zap.String("migration_path", s.migrator.GetMigrationPath(oldVersion)),
	)

	newCfg, err := s.migrator.MigrateToLatest(cfg)
	if err != nil {
		return nil, fmt.Errorf("遷移失敗: %w", err)
	}

	if err := s.repo.Save(ctx, newCfg); err != nil {
		return nil, fmt.Errorf("保存遷移後配置失敗: %w", err)
	}

	s.logger.Info("配置遷移完成",
		zap.Int("old_version", oldVersion),
		zap.Int("new_version", newCfg.Version),
		zap.Int("subscriptions", len(newCfg.Subscriptions)),
	)

	return newCfg, nil
}

// SetSubscription 按名稱添加或替換訂閱
func (s *ConfigService) SetSubscription(ctx context.Context, sub config.SubscriptionConfig) error {
	return s.UpdateConfig(ctx, func(c *config.Config) error {
		for i := range c.Subscriptions {
			if c.Subscriptions[i].Name == sub.Name {
				c.Subscriptions[i] = sub
				return nil
			}
		}
		c.Subscriptions = append(c.Subscriptions, sub)
		return nil
	})
}

// RemoveSubscription 刪除訂閱
func (s *ConfigService) RemoveSubscription(ctx context.Context, name string) error {
	return s.UpdateConfig(ctx, func(c *config.Config) error {
		for i := range c.Subscriptions {
			if c.Subscriptions[i].Name == name {
				c.Subscriptions = append(c.Subscriptions[:i], c.Subscriptions[i+1:]...)
				return nil
			}
		}
		return apperrors.NotFound(name)
	})
}

// SaveWithDefaults 保存配置並自動填充默認值
func (s *ConfigService) SaveWithDefaults(ctx context.Context, cfg *config.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.FillDefaults()
	return s.repo.Save(ctx, cfg)
}
