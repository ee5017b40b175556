// Package resource 提供按名稱唯一、保持插入順序的通用資源列表，
// 代理、策略組、規則集提供者都以它作為註冊表。
package resource

import (
	"path"
	"strings"
	"time"
)

// Source 資源來源
type Source string

const (
	SourceManual       Source = "manual"
	SourceSubscription Source = "subscription"
	SourceTemplate     Source = "template"
	SourceAuto         Source = "auto"
	SourceACL4SSR      Source = "acl4ssr"
)

// Metadata 資源的附加信息，不參與輸出文檔
type Metadata struct {
	Source       Source   `yaml:"source" json:"source"`
	Disabled     bool     `yaml:"disabled" json:"disabled"`
	InvisibleTo  []string `yaml:"invisible_to,omitempty" json:"invisible_to,omitempty"`
	Remark       string   `yaml:"remark,omitempty" json:"remark,omitempty"`
	TimeModified float64  `yaml:"time_modified" json:"time_modified"`
	Patched      bool     `yaml:"patched" json:"patched"`
}

// NewMetadata 以當前時間創建元數據
func NewMetadata(source Source) Metadata {
	m := Metadata{Source: source}
	m.Touch()
	return m
}

// Touch 刷新修改時間（Unix 秒，帶小數）
func (m *Metadata) Touch() {
	m.TimeModified = float64(time.Now().UnixNano()) / 1e9
}

// Available 資源對指定請求方是否可見
// invisible_to 中的條目既可以是請求方名稱（大小寫不敏感），也可以是 glob 模式
func (m Metadata) Available(requester string) bool {
	if m.Disabled {
		return false
	}
	if requester == "" {
		return true
	}

	req := strings.ToLower(requester)
	for _, pattern := range m.InvisibleTo {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		if p == req {
			return false
		}
		if ok, err := path.Match(p, req); err == nil && ok {
			return false
		}
	}
	return true
}
