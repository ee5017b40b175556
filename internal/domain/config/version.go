package config

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	// ConfigVersionLatest 最新配置版本
	ConfigVersionLatest = 2

	// ConfigVersionV1 V1 版本：訂閱只是一組 URL
	ConfigVersionV1 = 1
)

// Migrator 配置遷移器
type Migrator struct{}

// NewMigrator 創建遷移器
func NewMigrator() *Migrator {
	return &Migrator{}
}

// MigrateToLatest 自動遷移到最新版本
func (m *Migrator) MigrateToLatest(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置為空，無法遷移")
	}

	// 已經是最新版本
	if cfg.Version == ConfigVersionLatest {
		return cfg, nil
	}

	// V1 -> V2
	if cfg.Version == ConfigVersionV1 || cfg.Version == 0 {
		return m.migrateV1ToV2(cfg)
	}

	if cfg.Version > ConfigVersionLatest {
		return nil, fmt.Errorf("配置版本過高 (v%d)，當前程序僅支持 v%d", cfg.Version, ConfigVersionLatest)
	}

	return cfg, nil
}

// migrateV1ToV2 把 subscription_urls 轉為結構化的訂閱列表
func (m *Migrator) migrateV1ToV2(oldCfg *Config) (*Config, error) {
	newCfg := oldCfg.DeepCopy()
	newCfg.Version = ConfigVersionLatest

	used := make(map[string]int)
	for _, s := range newCfg.Subscriptions {
		used[s.Name]++
	}

	for _, raw := range newCfg.LegacySubscriptionURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if _, exists := findByURL(newCfg.Subscriptions, raw); exists {
			continue
		}

		name := subscriptionName(raw)
		// 同一主機的多個訂閱加序號
		if n := used[name]; n > 0 {
			used[name]++
			name = fmt.Sprintf("%s-%d", name, n+1)
		} else {
			used[name] = 1
		}

		newCfg.Subscriptions = append(newCfg.Subscriptions, SubscriptionConfig{
			Name:    name,
			URL:     raw,
			Enabled: true,
			Include: AllIncluded(),
		})
	}
	newCfg.LegacySubscriptionURLs = nil

	newCfg.FillDefaults()
	return newCfg, nil
}

func findByURL(subs []SubscriptionConfig, raw string) (int, bool) {
	for i, s := range subs {
		if s.URL == raw {
			return i, true
		}
	}
	return -1, false
}

func subscriptionName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "subscription"
	}
	return u.Hostname()
}

// NeedsMigration 檢查是否需要遷移
func (m *Migrator) NeedsMigration(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Version < ConfigVersionLatest
}

// GetMigrationPath 獲取遷移路徑描述
func (m *Migrator) GetMigrationPath(fromVersion int) string {
	if fromVersion >= ConfigVersionLatest {
		return "無需遷移"
	}
	return fmt.Sprintf("v%d -> v%d", fromVersion, ConfigVersionLatest)
}
