package config

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
)

// Repository 配置倉庫接口
type Repository interface {
	// Load 加載配置
	Load(ctx context.Context) (*Config, error)

	// Save 保存配置
	Save(ctx context.Context, cfg *Config) error
}

// Config 主配置結構
type Config struct {
	Version       int                  `yaml:"version" validate:"required,min=2"`
	Server        ServerConfig         `yaml:"server"`
	Log           LogConfig            `yaml:"log"`
	Store         StoreConfig          `yaml:"store"`
	Template      TemplateConfig       `yaml:"template"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions" validate:"unique=Name,dive"`
	ACL4SSR       ACL4SSRConfig        `yaml:"acl4ssr"`
	Compose       ComposeConfig        `yaml:"compose"`
	Refresh       RefreshConfig        `yaml:"refresh"`

	// LegacySubscriptionURLs v1 的訂閱列表，遷移後清空
	LegacySubscriptionURLs []string `yaml:"subscription_urls,omitempty"`
}

// ServerConfig HTTP 服務配置
type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,hostname_port"`
	// BaseURL 對外可訪問的地址，自動生成的規則集提供者指向這裡
	BaseURL string `yaml:"base_url" validate:"required,url"`
	// Token 非空時所有接口都需要 ?token= 或 Authorization 頭
	Token string          `yaml:"token,omitempty"`
	TLS   ServerTLSConfig `yaml:"tls"`
}

// ServerTLSConfig HTTPS 配置
type ServerTLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file" validate:"required_if=Enabled true"`
	KeyFile  string `yaml:"key_file" validate:"required_if=Enabled true"`
	// SelfSigned 證書文件不存在時生成自簽名證書
	SelfSigned bool `yaml:"self_signed"`
	// Hosts 自簽名證書的 SAN，為空時取 base_url 的主機名
	Hosts []string `yaml:"hosts,omitempty"`
}

// LogConfig 日誌配置
type LogConfig struct {
	Level      string `yaml:"level" validate:"required,oneof=debug info warn error"`
	OutputPath string `yaml:"output_path"`
	MaxSize    int    `yaml:"max_size" validate:"min=1,max=100"`
	MaxBackups int    `yaml:"max_backups" validate:"min=0,max=30"`
	MaxAge     int    `yaml:"max_age" validate:"min=1,max=365"`
	Compress   bool   `yaml:"compress"`
}

// StoreConfig 狀態存儲
type StoreConfig struct {
	Path     string `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory bool   `yaml:"in_memory"`
}

// TemplateConfig 模板配置文件
type TemplateConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"`
}

// IncludeFlags 訂閱中哪些部分參與合成
type IncludeFlags struct {
	Proxies        bool `yaml:"proxies"`
	ProxyGroups    bool `yaml:"proxy_groups"`
	Rules          bool `yaml:"rules"`
	RuleProviders  bool `yaml:"rule_providers"`
	ProxyProviders bool `yaml:"proxy_providers"`
	// Info 是否計入流量統計頭
	Info bool `yaml:"info"`
}

// AllIncluded 全部參與
func AllIncluded() IncludeFlags {
	return IncludeFlags{Proxies: true, ProxyGroups: true, Rules: true, RuleProviders: true, ProxyProviders: true, Info: true}
}

// SubscriptionConfig 訂閱
type SubscriptionConfig struct {
	Name      string       `yaml:"name" validate:"required"`
	URL       string       `yaml:"url" validate:"required,url"`
	Enabled   bool         `yaml:"enabled"`
	UserAgent string       `yaml:"user_agent,omitempty"`
	Include   IncludeFlags `yaml:"include"`
}

// ACL4SSRConfig ACL4SSR 規則集列表
type ACL4SSRConfig struct {
	Enabled bool   `yaml:"enabled"`
	ListURL string `yaml:"list_url" validate:"required_if=Enabled true,omitempty,url"`
	RawBase string `yaml:"raw_base" validate:"required_if=Enabled true,omitempty,url"`
	// Prefix 生成的提供者名稱前綴
	Prefix string `yaml:"prefix"`
}

// RegionConfig 地區分組
type RegionConfig struct {
	ByCountry       bool          `yaml:"by_country"`
	ByContinent     bool          `yaml:"by_continent"`
	AsiaExceptChina bool          `yaml:"asia_except_china"`
	Umbrella        string        `yaml:"umbrella"`
	GroupType       string        `yaml:"group_type" validate:"omitempty,oneof=select url-test fallback load-balance"`
	TableFile       string        `yaml:"table_file,omitempty"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
}

// ComposeConfig 合成參數
type ComposeConfig struct {
	// FilterKeywords 名稱包含任一關鍵字的代理不輸出
	FilterKeywords []string     `yaml:"filter_keywords"`
	Region         RegionConfig `yaml:"region"`
	// RulesetPrefix 規則集橋接提供者的名稱前綴
	RulesetPrefix    string   `yaml:"ruleset_prefix" validate:"required"`
	BestIPs          []string `yaml:"best_ips" validate:"dive,ip"`
	PatchLifespan    int      `yaml:"patch_lifespan" validate:"min=1"`
	ProviderInterval int      `yaml:"provider_interval" validate:"min=0"`
}

// RefreshConfig 訂閱刷新
type RefreshConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Timeout     time.Duration `yaml:"timeout"`
	Concurrency int           `yaml:"concurrency" validate:"min=1,max=32"`
}

// DefaultConfig 返回默認配置
func DefaultConfig() *Config {
	return &Config{
		Version: ConfigVersionLatest,
		Server: ServerConfig{
			Listen:  "127.0.0.1:25500",
			BaseURL: "http://127.0.0.1:25500",
		},
		Log: LogConfig{
			Level:      "info",
			OutputPath: "/var/log/prism-clash/prism-clash.log",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		Store: StoreConfig{
			Path: "/var/lib/prism-clash/state",
		},
		Template: TemplateConfig{
			Path:  "/etc/prism-clash/template.yaml",
			Watch: true,
		},
		ACL4SSR: ACL4SSRConfig{
			ListURL: "https://api.github.com/repos/ACL4SSR/ACL4SSR/contents/Clash/Providers/Ruleset",
			RawBase: "https://raw.githubusercontent.com/ACL4SSR/ACL4SSR/master/Clash/Providers/Ruleset",
			Prefix:  "🐒 ",
		},
		Compose: ComposeConfig{
			FilterKeywords: []string{"剩餘流量", "剩余流量", "套餐到期", "官網", "官网"},
			Region: RegionConfig{
				ByCountry: true,
				Umbrella:  "🌐 地區",
				GroupType: "select",
				CacheTTL:  10 * time.Minute,
			},
			RulesetPrefix:    "📂<=",
			PatchLifespan:    10,
			ProviderInterval: 86400,
		},
		Refresh: RefreshConfig{
			Interval:    6 * time.Hour,
			Timeout:     30 * time.Second,
			Concurrency: 4,
		},
	}
}

// FillDefaults 填充缺省值，兼容手寫的不完整配置
func (c *Config) FillDefaults() {
	def := DefaultConfig()

	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.Server.Listen == "" {
		c.Server.Listen = def.Server.Listen
	}
	if c.Server.BaseURL == "" {
		scheme := "http://"
		if c.Server.TLS.Enabled {
			scheme = "https://"
		}
		c.Server.BaseURL = scheme + c.Server.Listen
	}
	if c.Log.Level == "" {
		c.Log = def.Log
	}
	if c.Store.Path == "" && !c.Store.InMemory {
		c.Store.Path = def.Store.Path
	}
	if c.Compose.RulesetPrefix == "" {
		c.Compose.RulesetPrefix = def.Compose.RulesetPrefix
	}
	if c.Compose.PatchLifespan <= 0 {
		c.Compose.PatchLifespan = def.Compose.PatchLifespan
	}
	if c.Compose.Region.GroupType == "" {
		c.Compose.Region.GroupType = def.Compose.Region.GroupType
	}
	if c.Refresh.Interval <= 0 {
		c.Refresh.Interval = def.Refresh.Interval
	}
	if c.Refresh.Timeout <= 0 {
		c.Refresh.Timeout = def.Refresh.Timeout
	}
	if c.Refresh.Concurrency <= 0 {
		c.Refresh.Concurrency = def.Refresh.Concurrency
	}
	if c.ACL4SSR.Enabled && c.ACL4SSR.RawBase == "" {
		c.ACL4SSR.RawBase = def.ACL4SSR.RawBase
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate 驗證配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("配置驗證失敗: %w", err)
	}
	return nil
}

// Subscription 按名稱查找訂閱
func (c *Config) Subscription(name string) (SubscriptionConfig, bool) {
	for _, s := range c.Subscriptions {
		if s.Name == name {
			return s, true
		}
	}
	return SubscriptionConfig{}, false
}

// EncryptSensitiveFields 加密訂閱地址（其中通常帶有令牌）和接口令牌
func (c *Config) EncryptSensitiveFields(encryptor *crypto.Encryptor) error {
	if encryptor == nil {
		return nil
	}

	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if s.URL == "" || crypto.IsEncrypted(s.URL) {
			continue
		}
		encrypted, err := encryptor.Encrypt(s.URL)
		if err != nil {
			return fmt.Errorf("加密訂閱 %s 地址失敗: %w", s.Name, err)
		}
		s.URL = encrypted
	}

	if c.Server.Token != "" && !crypto.IsEncrypted(c.Server.Token) {
		encrypted, err := encryptor.Encrypt(c.Server.Token)
		if err != nil {
			return fmt.Errorf("加密接口令牌失敗: %w", err)
		}
		c.Server.Token = encrypted
	}
	return nil
}

// DecryptSensitiveFields 解密敏感字段
func (c *Config) DecryptSensitiveFields(encryptor *crypto.Encryptor) error {
	if encryptor == nil {
		return nil
	}

	for i := range c.Subscriptions {
		s := &c.Subscriptions[i]
		if !crypto.IsEncrypted(s.URL) {
			continue
		}
		plain, err := encryptor.Decrypt(s.URL)
		if err != nil {
			return fmt.Errorf("解密訂閱 %s 地址失敗: %w", s.Name, err)
		}
		s.URL = plain
	}

	if crypto.IsEncrypted(c.Server.Token) {
		plain, err := encryptor.Decrypt(c.Server.Token)
		if err != nil {
			return fmt.Errorf("解密接口令牌失敗: %w", err)
		}
		c.Server.Token = plain
	}
	return nil
}

// DeepCopy 深拷貝配置 (序列化回環策略)
// 只在寫入時觸發，性能損失可以忽略
func (c *Config) DeepCopy() *Config {
	if c == nil {
		return nil
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		panic(fmt.Errorf("DeepCopy 序列化失敗 (這是一個 Bug): %w", err))
	}

	var newCfg Config
	if err := yaml.Unmarshal(data, &newCfg); err != nil {
		panic(fmt.Errorf("DeepCopy 反序列化失敗 (這是一個 Bug): %w", err))
	}

	return &newCfg
}
