package resource

import (
	"fmt"
	"iter"
	"slices"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// Item 列表中的一個資源
type Item[T any] struct {
	Name     string   `yaml:"name" json:"name"`
	Data     T        `yaml:"data" json:"data"`
	Metadata Metadata `yaml:"metadata" json:"metadata"`
}

// List 按名稱唯一的有序列表
// 集合規模在幾十到幾百之間，所有操作都是線性掃描
type List[T any] struct {
	items []Item[T]
}

// NewList 創建列表，名稱重複時返回 ConflictError
func NewList[T any](items ...Item[T]) (*List[T], error) {
	l := &List[T]{}
	for _, it := range items {
		if err := l.Add(it); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *List[T]) index(name string) int {
	return slices.IndexFunc(l.items, func(it Item[T]) bool { return it.Name == name })
}

// Len 元素個數
func (l *List[T]) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// Add 追加資源，名稱已存在時列表保持不變
func (l *List[T]) Add(item Item[T]) error {
	if item.Name == "" {
		return apperrors.Validation("資源名稱不能為空")
	}
	if l.index(item.Name) >= 0 {
		return apperrors.Conflict(item.Name)
	}
	l.items = append(l.items, item)
	return nil
}

// Remove 刪除資源，不存在時返回 false
func (l *List[T]) Remove(name string) bool {
	_, ok := l.Pop(name)
	return ok
}

// Pop 刪除並返回資源
func (l *List[T]) Pop(name string) (Item[T], bool) {
	i := l.index(name)
	if i < 0 {
		var zero Item[T]
		return zero, false
	}
	it := l.items[i]
	l.items = slices.Delete(l.items, i, i+1)
	return it, true
}

// Update 替換名為 name 的資源
// replaceMetadata 為 false 時保留原有元數據；item.Name 與 name 不同即為改名，新名稱不能與其他資源衝突
func (l *List[T]) Update(name string, item Item[T], replaceMetadata bool) error {
	i := l.index(name)
	if i < 0 {
		return apperrors.NotFound(name)
	}
	if item.Name == "" {
		item.Name = name
	}
	if item.Name != name && l.index(item.Name) >= 0 {
		return apperrors.Conflict(item.Name)
	}
	if !replaceMetadata {
		item.Metadata = l.items[i].Metadata
	}
	l.items[i] = item
	return nil
}

// Get 按名稱查找
func (l *List[T]) Get(name string) (Item[T], bool) {
	if l == nil {
		var zero Item[T]
		return zero, false
	}
	i := l.index(name)
	if i < 0 {
		var zero Item[T]
		return zero, false
	}
	return l.items[i], true
}

// Contains 是否存在
func (l *List[T]) Contains(name string) bool {
	return l != nil && l.index(name) >= 0
}

// SetMetadata 替換元數據
func (l *List[T]) SetMetadata(name string, meta Metadata) error {
	i := l.index(name)
	if i < 0 {
		return apperrors.NotFound(name)
	}
	l.items[i].Metadata = meta
	return nil
}

// Names 按順序遍歷名稱
func (l *List[T]) Names() iter.Seq[string] {
	return func(yield func(string) bool) {
		if l == nil {
			return
		}
		for _, it := range l.items {
			if !yield(it.Name) {
				return
			}
		}
	}
}

// All 按順序遍歷資源
func (l *List[T]) All() iter.Seq[Item[T]] {
	return func(yield func(Item[T]) bool) {
		if l == nil {
			return
		}
		for _, it := range l.items {
			if !yield(it) {
				return
			}
		}
	}
}

// Available 遍歷對請求方可見的資源
func (l *List[T]) Available(requester string) iter.Seq[Item[T]] {
	return func(yield func(Item[T]) bool) {
		for it := range l.All() {
			if !it.Metadata.Available(requester) {
				continue
			}
			if !yield(it) {
				return
			}
		}
	}
}

// Items 返回元素切片的副本
func (l *List[T]) Items() []Item[T] {
	if l == nil {
		return nil
	}
	return slices.Clone(l.items)
}

// Clone 深拷貝（YAML 回環）
func (l *List[T]) Clone() *List[T] {
	out := &List[T]{}
	if l.Len() == 0 {
		return out
	}

	data, err := yaml.Marshal(l.items)
	if err != nil {
		panic(fmt.Errorf("資源列表序列化失敗 (這是一個 Bug): %w", err))
	}
	if err := yaml.Unmarshal(data, &out.items); err != nil {
		panic(fmt.Errorf("資源列表反序列化失敗 (這是一個 Bug): %w", err))
	}
	return out
}

// MarshalYAML 序列化為有序序列
func (l *List[T]) MarshalYAML() (any, error) {
	if l == nil || l.items == nil {
		return []Item[T]{}, nil
	}
	return l.items, nil
}

// UnmarshalYAML 從序列恢復，名稱重複視為數據損壞
func (l *List[T]) UnmarshalYAML(value *yaml.Node) error {
	var items []Item[T]
	if err := value.Decode(&items); err != nil {
		return err
	}

	l.items = nil
	for _, it := range items {
		if err := l.Add(it); err != nil {
			return fmt.Errorf("恢復資源列表失敗: %w", err)
		}
	}
	return nil
}
