// Package rulelist 管理按優先級（即列表下標）排序的規則集合。
package rulelist

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
)

// Item 帶元數據的規則
type Item struct {
	Rule     rule.Rule
	Metadata resource.Metadata
}

// NewItem 以當前時間創建規則項
func NewItem(r rule.Rule, source resource.Source) Item {
	return Item{Rule: r, Metadata: resource.NewMetadata(source)}
}

// storedItem 持久化格式，規則以規範文本保存
type storedItem struct {
	Rule     string            `yaml:"rule"`
	Metadata resource.Metadata `yaml:"metadata"`
}

// MarshalYAML 實現 yaml.Marshaler
func (it Item) MarshalYAML() (any, error) {
	if it.Rule == nil {
		return nil, fmt.Errorf("規則項缺少規則")
	}
	return storedItem{Rule: it.Rule.String(), Metadata: it.Metadata}, nil
}

// UnmarshalYAML 實現 yaml.Unmarshaler
func (it *Item) UnmarshalYAML(value *yaml.Node) error {
	var s storedItem
	if err := value.Decode(&s); err != nil {
		return err
	}
	r, err := rule.ParseLine(s.Rule)
	if err != nil {
		return err
	}
	it.Rule = r
	it.Metadata = s.Metadata
	return nil
}

// Entry 對外導出的規則，Priority 每次按當前位置重新計算
type Entry struct {
	rule.Dict `yaml:",inline"`
	Metadata  resource.Metadata `json:"metadata" yaml:"metadata"`
}

func cloneMetadata(m resource.Metadata) resource.Metadata {
	m.InvisibleTo = slices.Clone(m.InvisibleTo)
	return m
}
