// Package patch 保存對外部來源資源（訂閱、模板）的手動修改。
// 每個補丁是一份 RFC 6902 JSON Patch 文本，隨刷新周期遞減壽命，資源長期消失後自動清理。
package patch

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// Item 一個補丁
type Item struct {
	Patch     string `yaml:"patch" json:"patch"`
	Lifecycle int    `yaml:"lifecycle" json:"lifecycle"`
}

// Store 按資源名稱索引的補丁集合，並發安全
type Store struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewStore 創建空的補丁集合
func NewStore() *Store {
	return &Store{items: make(map[string]Item)}
}

// Get 查找補丁
func (s *Store) Get(name string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[name]
	return it, ok
}

// Len 補丁數量
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Names 已排序的名稱
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.items))
}

// Items 返回副本
func (s *Store) Items() map[string]Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.items)
}

// Load 整體替換
func (s *Store) Load(items map[string]Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = maps.Clone(items)
	if s.items == nil {
		s.items = make(map[string]Item)
	}
}

// Delete 刪除補丁
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[name]
	delete(s.items, name)
	return ok
}

// Rename 資源改名時遷移補丁
func (s *Store) Rename(oldName, newName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[oldName]; ok {
		delete(s.items, oldName)
		s.items[newName] = it
	}
}

// Record 記錄 source -> target 的差異，壽命重置為 lifespan
// 差異為空時刪除已有補丁，返回值表示是否存在補丁
func (s *Store) Record(name string, source, target any, lifespan int) (bool, error) {
	ops, err := diff(source, target)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.CodePatchApply, fmt.Sprintf("計算 %q 的補丁失敗", name))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ops) == 0 {
		delete(s.items, name)
		return false, nil
	}

	data, err := json.Marshal(ops)
	if err != nil {
		return false, fmt.Errorf("序列化補丁失敗: %w", err)
	}
	s.items[name] = Item{Patch: string(data), Lifecycle: lifespan}
	return true, nil
}

// Apply 將 name 的補丁應用到 base 的副本上
// 沒有補丁時原樣返回；補丁無法應用時返回 base 和 PatchApplyError，由調用方記錄後繼續使用 base
func (s *Store) Apply(name string, base map[string]any) (map[string]any, bool, error) {
	it, ok := s.Get(name)
	if !ok {
		return base, false, nil
	}

	patched, err := applyPatch(it.Patch, base)
	if err != nil {
		return base, false, apperrors.Wrap(
			fmt.Errorf("%w: %v", apperrors.ErrPatchApply, err),
			apperrors.CodePatchApply,
			fmt.Sprintf("應用 %q 的補丁失敗", name),
		)
	}
	return patched, true, nil
}

func applyPatch(raw string, base map[string]any) (map[string]any, error) {
	p, err := jsonpatch.DecodePatch([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("解析補丁失敗: %w", err)
	}

	doc, err := toJSON(base)
	if err != nil {
		return nil, err
	}
	out, err := p.Apply(doc)
	if err != nil {
		return nil, err
	}

	v, err := decode(out)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("補丁結果不是對象")
	}
	return m, nil
}

// Tick 每個刷新周期調用一次
// 存在於 alive 中的補丁壽命重置為 lifespan，其餘遞減，歸零即刪除；返回被刪除的名稱
func (s *Store) Tick(alive []string, lifespan int) []string {
	present := make(map[string]struct{}, len(alive))
	for _, n := range alive {
		present[n] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []string
	for name, it := range s.items {
		if _, ok := present[name]; ok {
			it.Lifecycle = lifespan
			s.items[name] = it
			continue
		}
		it.Lifecycle--
		if it.Lifecycle <= 0 {
			delete(s.items, name)
			removed = append(removed, name)
			continue
		}
		s.items[name] = it
	}
	slices.Sort(removed)
	return removed
}

// MarshalYAML 序列化為名稱到補丁的映射
func (s *Store) MarshalYAML() (any, error) {
	return s.Items(), nil
}

// UnmarshalYAML 從映射恢復
func (s *Store) UnmarshalYAML(value *yaml.Node) error {
	var items map[string]Item
	if err := value.Decode(&items); err != nil {
		return err
	}
	s.Load(items)
	return nil
}
