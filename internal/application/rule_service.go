package application

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// RuleSet 規則集合
type RuleSet string

const (
	// RuleSetTop 輸出到 rules 的頂層規則
	RuleSetTop RuleSet = "rules"
	// RuleSetRuleset 按出站導出為規則集的規則
	RuleSetRuleset RuleSet = "ruleset"
)

// ParseRuleSet 解析集合名稱
func ParseRuleSet(s string) (RuleSet, error) {
	switch RuleSet(s) {
	case RuleSetTop, RuleSetRuleset:
		return RuleSet(s), nil
	}
	return "", apperrors.Validation("未知的規則集合 %q", s)
}

// ImportResult 批量導入結果
type ImportResult struct {
	Added      int
	Duplicates int
	Skipped    []error
}

// RuleService 規則修改服務
// 每個集合一把鎖；規則集的修改會同步頂層橋接規則，因此同時持有兩把鎖（先規則集後頂層）
type RuleService struct {
	repo   state.Repository
	cfg    *config.AtomicContainer
	logger *zap.Logger
	topMu  sync.Mutex
	setMu  sync.Mutex
}

// NewRuleService 創建規則服務
func NewRuleService(repo state.Repository, cfg *config.AtomicContainer, logger *zap.Logger) *RuleService {
	return &RuleService{repo: repo, cfg: cfg, logger: logger}
}

func manager(st *state.State, set RuleSet) *rulelist.Manager {
	if set == RuleSetRuleset {
		return st.RulesetRules
	}
	return st.TopRules
}

func key(set RuleSet) state.Key {
	if set == RuleSetRuleset {
		return state.KeyRulesetRules
	}
	return state.KeyRules
}

// List 按優先級列出規則
func (s *RuleService) List(ctx context.Context, set RuleSet) ([]rulelist.Entry, error) {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加載狀態失敗: %w", err)
	}
	return manager(st, set).ToOrderedList(), nil
}

// mutate Lock -> Load -> Clone -> Modify -> Save
func (s *RuleService) mutate(ctx context.Context, set RuleSet, fn func(st *state.State, m *rulelist.Manager) error) error {
	if set == RuleSetRuleset {
		s.setMu.Lock()
		defer s.setMu.Unlock()
	}
	s.topMu.Lock()
	defer s.topMu.Unlock()

	st, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("加載狀態失敗: %w", err)
	}

	work := manager(st, set).Clone()
	if err := fn(st, work); err != nil {
		return err
	}

	keys := []state.Key{key(set)}
	if set == RuleSetRuleset {
		st.RulesetRules = work
		res := rulelist.SyncBridge(st.TopRules, st.RulesetRules, s.cfg.Get().Compose.RulesetPrefix)
		if len(res.Added) > 0 || res.Removed > 0 {
			keys = append(keys, state.KeyRules)
			s.logger.Info("橋接規則已同步", zap.Int("added", len(res.Added)), zap.Int("removed", res.Removed))
		}
	} else {
		st.TopRules = work
	}

	if err := s.repo.Save(ctx, st, keys...); err != nil {
		return fmt.Errorf("保存狀態失敗: %w", err)
	}
	return nil
}

// toItem 解析並校驗字典，元數據來源默認為手動
func toItem(e rulelist.Entry) (rulelist.Item, error) {
	r, err := rule.ParseDict(e.Dict)
	if err != nil {
		return rulelist.Item{}, err
	}
	if err := rule.Validate(r); err != nil {
		return rulelist.Item{}, err
	}
	meta := e.Metadata
	if meta.Source == "" {
		meta.Source = resource.SourceManual
	}
	meta.Touch()
	return rulelist.Item{Rule: r, Metadata: meta}, nil
}

// Insert 插入到 e.Priority 位置
func (s *RuleService) Insert(ctx context.Context, set RuleSet, e rulelist.Entry) error {
	item, err := toItem(e)
	if err != nil {
		return err
	}
	return s.mutate(ctx, set, func(_ *state.State, m *rulelist.Manager) error {
		if err := m.InsertAt(item, e.Priority); err != nil {
			return err
		}
		s.logger.Info("規則已插入",
			zap.String("set", string(set)), zap.Int("priority", e.Priority), zap.String("rule", item.Rule.String()))
		return nil
	})
}

// Update 替換 src 處的規則並移動到 e.Priority
func (s *RuleService) Update(ctx context.Context, set RuleSet, src int, e rulelist.Entry) error {
	item, err := toItem(e)
	if err != nil {
		return err
	}
	return s.mutate(ctx, set, func(_ *state.State, m *rulelist.Manager) error {
		return m.UpdateAt(item, src, e.Priority)
	})
}

// Delete 刪除指定優先級的規則
func (s *RuleService) Delete(ctx context.Context, set RuleSet, priority int) error {
	return s.mutate(ctx, set, func(_ *state.State, m *rulelist.Manager) error {
		removed, err := m.RemoveAt(priority)
		if err != nil {
			return err
		}
		s.logger.Info("規則已刪除", zap.String("set", string(set)), zap.String("rule", removed.Rule.String()))
		return nil
	})
}

// Reorder 把 moved 處的規則移動到 target
func (s *RuleService) Reorder(ctx context.Context, set RuleSet, moved, target int) error {
	return s.mutate(ctx, set, func(_ *state.State, m *rulelist.Manager) error {
		_, err := m.Reorder(moved, target)
		return err
	})
}

// SetMetadata 修改指定規則的元數據，來源保持不變
func (s *RuleService) SetMetadata(ctx context.Context, set RuleSet, priority int, meta resource.Metadata) error {
	return s.mutate(ctx, set, func(_ *state.State, m *rulelist.Manager) error {
		it, err := m.At(priority)
		if err != nil {
			return err
		}
		meta.Source = it.Metadata.Source
		meta.Touch()
		it.Metadata = meta
		return m.UpdateAt(it, priority, priority)
	})
}

// Import 批量追加；解析或校驗失敗的條目跳過，已有等價規則的條目忽略
func (s *RuleService) Import(ctx context.Context, set RuleSet, dicts []rule.Dict) (*ImportResult, error) {
	res := &ImportResult{}
	items := make([]rulelist.Item, 0, len(dicts))
	for _, d := range dicts {
		it, err := toItem(rulelist.Entry{Dict: d})
		if err != nil {
			res.Skipped = append(res.Skipped, err)
			s.logger.Warn("跳過無效規則", zap.String("type", d.Type), zap.String("payload", d.Payload), zap.Error(err))
			continue
		}
		items = append(items, it)
	}

	err := s.mutate(ctx, set, func(_ *state.State, m *rulelist.Manager) error {
		for _, it := range items {
			if m.HasEquivalent(it.Rule) {
				res.Duplicates++
				continue
			}
			m.Append(it)
			res.Added++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SyncBridge 單獨同步一次橋接規則並持久化
func (s *RuleService) SyncBridge(ctx context.Context) (rulelist.BridgeResult, error) {
	var res rulelist.BridgeResult
	err := s.mutate(ctx, RuleSetTop, func(st *state.State, m *rulelist.Manager) error {
		res = rulelist.SyncBridge(m, st.RulesetRules, s.cfg.Get().Compose.RulesetPrefix)
		return nil
	})
	return res, err
}
