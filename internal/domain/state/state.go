// Package state 定義合成所需的全部輸入：
// 本地持久化的註冊表（State）和每次刷新整體替換的外部快照（Sources）。
package state

import (
	"context"
	"maps"

	"github.com/Yat-Muk/prism-clash/internal/domain/patch"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

// HostEntry hosts 註冊表中的一項，名稱即域名
type HostEntry struct {
	Addresses []string `yaml:"addresses,omitempty" json:"addresses,omitempty"`
	// UseBestIP 為 true 時地址取 compose.best_ips
	UseBestIP bool `yaml:"use_best_ip" json:"use_best_ip"`
}

// Key 持久化鍵，每個註冊表單獨存儲
type Key string

const (
	KeyProxies       Key = "proxies"
	KeyProxyGroups   Key = "proxy_groups"
	KeyRuleProviders Key = "rule_providers"
	KeyHosts         Key = "hosts"
	KeyRules         Key = "rules"
	KeyRulesetRules  Key = "ruleset_rules"
	KeyProxyPatches  Key = "proxy_patches"
	KeyGroupPatches  Key = "group_patches"
	KeyRulesetNames  Key = "ruleset_names"
)

// AllKeys 全部持久化鍵
func AllKeys() []Key {
	return []Key{
		KeyProxies, KeyProxyGroups, KeyRuleProviders, KeyHosts,
		KeyRules, KeyRulesetRules, KeyProxyPatches, KeyGroupPatches, KeyRulesetNames,
	}
}

// State 本地擁有的註冊表
type State struct {
	Proxies       *resource.List[clash.Proxy]
	ProxyGroups   *resource.List[clash.ProxyGroup]
	RuleProviders *resource.List[clash.RuleProvider]
	Hosts         *resource.List[HostEntry]

	// TopRules 輸出到 rules 的頂層規則
	TopRules *rulelist.Manager
	// RulesetRules 按出站拆分導出為規則集的規則
	RulesetRules *rulelist.Manager

	ProxyPatches *patch.Store
	GroupPatches *patch.Store

	// RulesetNames 自動提供者的 hash -> 出站名稱
	RulesetNames map[string]string
}

// New 創建空狀態
func New() *State {
	return &State{
		Proxies:       &resource.List[clash.Proxy]{},
		ProxyGroups:   &resource.List[clash.ProxyGroup]{},
		RuleProviders: &resource.List[clash.RuleProvider]{},
		Hosts:         &resource.List[HostEntry]{},
		TopRules:      rulelist.NewManager(),
		RulesetRules:  rulelist.NewManager(),
		ProxyPatches:  patch.NewStore(),
		GroupPatches:  patch.NewStore(),
		RulesetNames:  make(map[string]string),
	}
}

// Clone 深拷貝，供合成時作為不可變快照
func (s *State) Clone() *State {
	out := &State{
		Proxies:       s.Proxies.Clone(),
		ProxyGroups:   s.ProxyGroups.Clone(),
		RuleProviders: s.RuleProviders.Clone(),
		Hosts:         s.Hosts.Clone(),
		TopRules:      s.TopRules.Clone(),
		RulesetRules:  s.RulesetRules.Clone(),
		ProxyPatches:  patch.NewStore(),
		GroupPatches:  patch.NewStore(),
		RulesetNames:  maps.Clone(s.RulesetNames),
	}
	out.ProxyPatches.Load(s.ProxyPatches.Items())
	out.GroupPatches.Load(s.GroupPatches.Items())
	if out.RulesetNames == nil {
		out.RulesetNames = make(map[string]string)
	}
	return out
}

// Field 返回鍵對應的字段指針，用於按鍵序列化
func (s *State) Field(k Key) any {
	switch k {
	case KeyProxies:
		return s.Proxies
	case KeyProxyGroups:
		return s.ProxyGroups
	case KeyRuleProviders:
		return s.RuleProviders
	case KeyHosts:
		return s.Hosts
	case KeyRules:
		return s.TopRules
	case KeyRulesetRules:
		return s.RulesetRules
	case KeyProxyPatches:
		return s.ProxyPatches
	case KeyGroupPatches:
		return s.GroupPatches
	case KeyRulesetNames:
		return &s.RulesetNames
	}
	return nil
}

// Repository 狀態倉庫接口
type Repository interface {
	// Load 加載全部註冊表，缺失的鍵視為空
	Load(ctx context.Context) (*State, error)

	// Save 保存指定的鍵，keys 為空時保存全部
	Save(ctx context.Context, s *State, keys ...Key) error
}
