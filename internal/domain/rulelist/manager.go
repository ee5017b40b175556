package rulelist

import (
	"iter"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// Manager 規則列表。優先級就是下標，插入或刪除後其餘規則的優先級隨之移動。
// Manager 本身不加鎖，並發修改由上層服務串行化。
type Manager struct {
	items []Item
}

// NewManager 創建管理器
func NewManager(items ...Item) *Manager {
	return &Manager{items: slices.Clone(items)}
}

// Len 規則數量
func (m *Manager) Len() int {
	if m == nil {
		return 0
	}
	return len(m.items)
}

func (m *Manager) checkIndex(p int) error {
	if p < 0 || p >= len(m.items) {
		return apperrors.Index(p, len(m.items))
	}
	return nil
}

// At 返回指定優先級的規則
func (m *Manager) At(priority int) (Item, error) {
	if err := m.checkIndex(priority); err != nil {
		return Item{}, err
	}
	return m.items[priority], nil
}

// Append 追加到末尾
func (m *Manager) Append(item Item) {
	m.items = append(m.items, item)
}

// InsertAt 插入到指定位置，priority 可以等於 Len() 表示追加
func (m *Manager) InsertAt(item Item, priority int) error {
	if priority < 0 || priority > len(m.items) {
		return apperrors.Index(priority, len(m.items)+1)
	}
	m.items = slices.Insert(m.items, priority, item)
	return nil
}

// RemoveAt 刪除並返回指定位置的規則
func (m *Manager) RemoveAt(priority int) (Item, error) {
	if err := m.checkIndex(priority); err != nil {
		return Item{}, err
	}
	it := m.items[priority]
	m.items = slices.Delete(m.items, priority, priority+1)
	return it, nil
}

// UpdateAt 替換 src 位置的規則並移動到 dst
// src == dst 時原地替換，否則先刪除再插入，中間的規則只移動一次
func (m *Manager) UpdateAt(item Item, src, dst int) error {
	if err := m.checkIndex(src); err != nil {
		return err
	}
	if err := m.checkIndex(dst); err != nil {
		return err
	}

	if src == dst {
		m.items[src] = item
		return nil
	}
	m.items = slices.Delete(m.items, src, src+1)
	m.items = slices.Insert(m.items, dst, item)
	return nil
}

// Reorder 將 moved 位置的規則移動到 target，返回被移動的規則
func (m *Manager) Reorder(moved, target int) (Item, error) {
	if err := m.checkIndex(moved); err != nil {
		return Item{}, err
	}
	if err := m.checkIndex(target); err != nil {
		return Item{}, err
	}

	it := m.items[moved]
	m.items = slices.Delete(m.items, moved, moved+1)
	m.items = slices.Insert(m.items, target, it)
	return it, nil
}

// Indexed 過濾結果，附帶當前優先級
type Indexed struct {
	Priority int
	Item     Item
}

func (m *Manager) filter(pred func(Item) bool) []Indexed {
	var out []Indexed
	for i, it := range m.items {
		if pred(it) {
			out = append(out, Indexed{Priority: i, Item: it})
		}
	}
	return out
}

// FilterByAction 出站等於 action 的規則
func (m *Manager) FilterByAction(action rule.Action) []Indexed {
	return m.filter(func(it Item) bool { return it.Rule.Target() == action })
}

// FilterByType 類型等於 kind 的規則
func (m *Manager) FilterByType(kind rule.Kind) []Indexed {
	return m.filter(func(it Item) bool { return it.Rule.Type() == kind })
}

// RemoveWhere 刪除所有滿足條件的規則，返回刪除數量
func (m *Manager) RemoveWhere(pred func(Item) bool) int {
	before := len(m.items)
	m.items = slices.DeleteFunc(m.items, pred)
	return before - len(m.items)
}

// HasEquivalent 是否已有規範形式相同的規則，忽略元數據
func (m *Manager) HasEquivalent(r rule.Rule) bool {
	return slices.ContainsFunc(m.items, func(it Item) bool { return rule.Equal(it.Rule, r) })
}

// ToOrderedList 導出為帶優先級的字典列表
func (m *Manager) ToOrderedList() []Entry {
	out := make([]Entry, 0, len(m.items))
	for i, it := range m.items {
		d := rule.ToDict(it.Rule)
		d.Priority = i
		out = append(out, Entry{Dict: d, Metadata: it.Metadata})
	}
	return out
}

// All 按優先級遍歷
func (m *Manager) All() iter.Seq2[int, Item] {
	return func(yield func(int, Item) bool) {
		if m == nil {
			return
		}
		for i, it := range m.items {
			if !yield(i, it) {
				return
			}
		}
	}
}

// Available 按優先級遍歷對請求方可見的規則
func (m *Manager) Available(requester string) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		for _, it := range m.All() {
			if it.Metadata.Available(requester) && !yield(it) {
				return
			}
		}
	}
}

// Items 返回副本
func (m *Manager) Items() []Item {
	if m == nil {
		return nil
	}
	return slices.Clone(m.items)
}

// Clone 規則本身不可變，只需複製切片和元數據
func (m *Manager) Clone() *Manager {
	out := &Manager{items: make([]Item, 0, m.Len())}
	for _, it := range m.Items() {
		out.items = append(out.items, Item{Rule: it.Rule, Metadata: cloneMetadata(it.Metadata)})
	}
	return out
}

// MarshalYAML 序列化為 {rule, metadata} 序列
func (m *Manager) MarshalYAML() (any, error) {
	if m == nil || m.items == nil {
		return []Item{}, nil
	}
	return m.items, nil
}

// UnmarshalYAML 從序列恢復
func (m *Manager) UnmarshalYAML(value *yaml.Node) error {
	var items []Item
	if err := value.Decode(&items); err != nil {
		return err
	}
	m.items = items
	return nil
}
