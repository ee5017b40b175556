// Package clash 定義 Clash (mihomo) 配置文檔的結構，以及與 YAML 之間的轉換。
package clash

import (
	"fmt"
	"maps"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
)

// 代理、策略組、提供者的字段因協議而異，保持為原始映射
type (
	Proxy         = map[string]any
	ProxyGroup    = map[string]any
	RuleProvider  = map[string]any
	ProxyProvider = map[string]any
)

// Config 解析後的 Clash 配置
// 未建模的頂層字段（port、dns、tun 等）原樣保存在 Extra 中
type Config struct {
	Extra          map[string]any
	Proxies        []Proxy
	ProxyGroups    []ProxyGroup
	Rules          []rule.Rule
	RuleProviders  map[string]RuleProvider
	ProxyProviders map[string]ProxyProvider
	Hosts          map[string][]string
	SubRules       map[string][]string
}

// SkippedRule 解析失敗被跳過的規則
type SkippedRule struct {
	Line string
	Err  error
}

// rawConfig YAML 映射
type rawConfig struct {
	Extra          map[string]any           `yaml:",inline"`
	Proxies        []Proxy                  `yaml:"proxies,omitempty"`
	ProxyGroups    []ProxyGroup             `yaml:"proxy-groups,omitempty"`
	RuleProviders  map[string]RuleProvider  `yaml:"rule-providers,omitempty"`
	ProxyProviders map[string]ProxyProvider `yaml:"proxy-providers,omitempty"`
	Hosts          map[string]any           `yaml:"hosts,omitempty"`
	SubRules       map[string][]string      `yaml:"sub-rules,omitempty"`
	Rules          []string                 `yaml:"rules,omitempty"`
}

// NewConfig 創建空配置
func NewConfig() *Config {
	return &Config{
		Extra:          make(map[string]any),
		RuleProviders:  make(map[string]RuleProvider),
		ProxyProviders: make(map[string]ProxyProvider),
		Hosts:          make(map[string][]string),
		SubRules:       make(map[string][]string),
	}
}

// Parse 解析 YAML 配置
// YAML 本身不合法時返回錯誤；單條規則解析失敗只跳過該規則，並在 skipped 中返回
func Parse(data []byte) (*Config, []SkippedRule, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("解析 Clash 配置失敗: %w", err)
	}

	cfg := NewConfig()
	if raw.Extra != nil {
		cfg.Extra = raw.Extra
	}
	cfg.Proxies = raw.Proxies
	cfg.ProxyGroups = raw.ProxyGroups
	maps.Copy(cfg.RuleProviders, raw.RuleProviders)
	maps.Copy(cfg.ProxyProviders, raw.ProxyProviders)
	maps.Copy(cfg.SubRules, raw.SubRules)

	for domain, v := range raw.Hosts {
		cfg.Hosts[domain] = toStrings(v)
	}

	var skipped []SkippedRule
	for _, line := range raw.Rules {
		r, err := rule.ParseLine(line)
		if err != nil {
			skipped = append(skipped, SkippedRule{Line: line, Err: err})
			continue
		}
		cfg.Rules = append(cfg.Rules, r)
	}
	return cfg, skipped, nil
}

// Marshal 序列化為 YAML，不做任何引用校驗
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c.raw())
}

func (c *Config) raw() rawConfig {
	raw := rawConfig{
		Extra:          c.Extra,
		Proxies:        c.Proxies,
		ProxyGroups:    c.ProxyGroups,
		RuleProviders:  c.RuleProviders,
		ProxyProviders: c.ProxyProviders,
		SubRules:       c.SubRules,
		Rules:          make([]string, 0, len(c.Rules)),
	}
	if len(c.Hosts) > 0 {
		raw.Hosts = make(map[string]any, len(c.Hosts))
		for k, v := range c.Hosts {
			raw.Hosts[k] = v
		}
	}
	for _, r := range c.Rules {
		raw.Rules = append(raw.Rules, r.String())
	}
	return raw
}

// Clone 深拷貝。規則不可變，只複製切片
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := NewConfig()
	out.Extra = deepCopy(c.Extra)
	out.Proxies = deepCopy(c.Proxies)
	out.ProxyGroups = deepCopy(c.ProxyGroups)
	out.Rules = slices.Clone(c.Rules)
	if c.RuleProviders != nil {
		out.RuleProviders = deepCopy(c.RuleProviders)
	}
	if c.ProxyProviders != nil {
		out.ProxyProviders = deepCopy(c.ProxyProviders)
	}
	for k, v := range c.Hosts {
		out.Hosts[k] = slices.Clone(v)
	}
	for k, v := range c.SubRules {
		out.SubRules[k] = slices.Clone(v)
	}
	return out
}

// deepCopy 經 YAML 回環複製
func deepCopy[T any](v T) T {
	data, err := yaml.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("深拷貝序列化失敗 (這是一個 Bug): %w", err))
	}
	var out T
	if err := yaml.Unmarshal(data, &out); err != nil {
		panic(fmt.Errorf("深拷貝反序列化失敗 (這是一個 Bug): %w", err))
	}
	return out
}

// CopyMap 深拷貝單個代理或策略組
func CopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepCopy(m)
}

// Name 讀取 name 字段
func Name(m map[string]any) string {
	s, _ := m["name"].(string)
	return s
}

// Members 讀取策略組的 proxies 字段
func Members(g ProxyGroup) []string {
	return toStrings(g["proxies"])
}

// SetMembers 寫入策略組的 proxies 字段
func SetMembers(g ProxyGroup, members []string) {
	g["proxies"] = members
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case string:
		return []string{vv}
	case []string:
		return slices.Clone(vv)
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			out = append(out, fmt.Sprint(e))
		}
		return out
	}
	return nil
}
