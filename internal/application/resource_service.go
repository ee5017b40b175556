package application

import (
	"context"
	"fmt"
	"iter"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/patch"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/domain/validator"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// descriptor 描述一類資源在狀態中的位置和校驗方式
type descriptor[T any] struct {
	kind     string
	key      state.Key
	list     func(*state.State) *resource.List[T]
	validate func(name string, v T) T
	check    func(name string, v T) error
	// 以下僅代理和策略組有：外部來源視圖和補丁存儲
	external   func(*Aggregator) Category[T]
	patches    func(*state.State) *patch.Store
	patchesKey state.Key
}

// Collection 一類資源的增刪改查
// 同一集合的修改在一把鎖內完成：加載 -> 修改 -> 校驗 -> 保存
type Collection[T any] struct {
	desc    descriptor[T]
	repo    state.Repository
	sources *SourceStore
	cfg     *config.AtomicContainer
	logger  *zap.Logger
	mu      sync.Mutex
}

func (c *Collection[T]) normalize(name string, v T) (T, error) {
	if name == "" {
		var zero T
		return zero, apperrors.Validation("%s 名稱不能為空", c.desc.kind)
	}
	v = c.desc.validate(name, v)
	if err := c.desc.check(name, v); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// List 全部來源的資源：本地註冊表在前，外部來源在後
func (c *Collection[T]) List(ctx context.Context) ([]resource.Item[T], error) {
	st, err := c.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加載狀態失敗: %w", err)
	}

	items := c.desc.list(st).Items()
	if c.desc.external != nil {
		cat := c.desc.external(NewAggregator(st, c.sources.Get()))
		for _, seq := range []iter.Seq[resource.Item[T]]{cat.FromSubscriptions(), cat.FromTemplate()} {
			for it := range seq {
				_, it.Metadata.Patched = c.desc.patches(st).Get(it.Name)
				items = append(items, it)
			}
		}
	}
	return items, nil
}

// Get 按名稱查找，本地註冊表優先
func (c *Collection[T]) Get(ctx context.Context, name string) (resource.Item[T], error) {
	items, err := c.List(ctx)
	if err != nil {
		return resource.Item[T]{}, err
	}
	for _, it := range items {
		if it.Name == name {
			return it, nil
		}
	}
	return resource.Item[T]{}, apperrors.NotFound(name)
}

// Add 添加到本地註冊表
func (c *Collection[T]) Add(ctx context.Context, item resource.Item[T]) error {
	data, err := c.normalize(item.Name, item.Data)
	if err != nil {
		return err
	}
	item.Data = data
	if item.Metadata.Source == "" {
		item.Metadata.Source = resource.SourceManual
	}
	item.Metadata.Touch()

	return c.mutate(ctx, func(st *state.State) ([]state.Key, error) {
		if err := c.desc.list(st).Add(item); err != nil {
			return nil, err
		}
		c.logger.Info("資源已添加", zap.String("kind", c.desc.kind), zap.String("name", item.Name))
		return []state.Key{c.desc.key}, nil
	})
}

// Update 修改資源
// 本地註冊表中的資源直接替換（可改名）；外部來源的資源改為記錄補丁，返回 patched=true
func (c *Collection[T]) Update(ctx context.Context, name string, item resource.Item[T]) (bool, error) {
	if item.Name == "" {
		item.Name = name
	}
	data, err := c.normalize(item.Name, item.Data)
	if err != nil {
		return false, err
	}
	item.Data = data

	patched := false
	err = c.mutate(ctx, func(st *state.State) ([]state.Key, error) {
		list := c.desc.list(st)
		if list.Contains(name) {
			old, _ := list.Get(name)
			item.Metadata = old.Metadata
			item.Metadata.Touch()
			if err := list.Update(name, item, true); err != nil {
				return nil, err
			}
			c.logger.Info("資源已更新", zap.String("kind", c.desc.kind), zap.String("name", name))
			return []state.Key{c.desc.key}, nil
		}

		if c.desc.external == nil {
			return nil, apperrors.NotFound(name)
		}
		orig, ok := c.findExternal(st, name)
		if !ok {
			return nil, apperrors.NotFound(name)
		}
		if item.Name != name {
			return nil, apperrors.Validation("外部來源的 %s 不能改名", c.desc.kind)
		}

		lifespan := c.cfg.Get().Compose.PatchLifespan
		changed, err := c.desc.patches(st).Record(name, orig.Data, item.Data, lifespan)
		if err != nil {
			return nil, fmt.Errorf("記錄補丁失敗: %w", err)
		}
		patched = changed
		c.logger.Info("外部資源已記錄補丁",
			zap.String("kind", c.desc.kind), zap.String("name", name), zap.Bool("has_patch", changed))
		return []state.Key{c.desc.patchesKey}, nil
	})
	return patched, err
}

func (c *Collection[T]) findExternal(st *state.State, name string) (resource.Item[T], bool) {
	cat := c.desc.external(NewAggregator(st, c.sources.Get()))
	for _, seq := range []iter.Seq[resource.Item[T]]{cat.FromSubscriptions(), cat.FromTemplate()} {
		for it := range seq {
			if it.Name == name {
				return it, true
			}
		}
	}
	return resource.Item[T]{}, false
}

// Delete 從本地註冊表刪除
func (c *Collection[T]) Delete(ctx context.Context, name string) error {
	return c.mutate(ctx, func(st *state.State) ([]state.Key, error) {
		if !c.desc.list(st).Remove(name) {
			return nil, apperrors.NotFound(name)
		}
		c.logger.Info("資源已刪除", zap.String("kind", c.desc.kind), zap.String("name", name))
		return []state.Key{c.desc.key}, nil
	})
}

// SetMetadata 修改本地資源的元數據，來源字段保持不變
func (c *Collection[T]) SetMetadata(ctx context.Context, name string, meta resource.Metadata) error {
	return c.mutate(ctx, func(st *state.State) ([]state.Key, error) {
		list := c.desc.list(st)
		old, ok := list.Get(name)
		if !ok {
			return nil, apperrors.NotFound(name)
		}
		meta.Source = old.Metadata.Source
		meta.Touch()
		if err := list.SetMetadata(name, meta); err != nil {
			return nil, err
		}
		return []state.Key{c.desc.key}, nil
	})
}

// ResetPatch 刪除外部資源上的補丁
func (c *Collection[T]) ResetPatch(ctx context.Context, name string) error {
	if c.desc.patches == nil {
		return apperrors.Validation("%s 不支持補丁", c.desc.kind)
	}
	return c.mutate(ctx, func(st *state.State) ([]state.Key, error) {
		if !c.desc.patches(st).Delete(name) {
			return nil, apperrors.NotFound(name)
		}
		c.logger.Info("補丁已刪除", zap.String("kind", c.desc.kind), zap.String("name", name))
		return []state.Key{c.desc.patchesKey}, nil
	})
}

// TickPatches 按刷新後仍存在的名稱推進補丁生命週期，返回被清除的補丁
func (c *Collection[T]) TickPatches(ctx context.Context, alive []string) ([]string, error) {
	if c.desc.patches == nil {
		return nil, nil
	}
	var removed []string
	err := c.mutate(ctx, func(st *state.State) ([]state.Key, error) {
		store := c.desc.patches(st)
		if store.Len() == 0 {
			return nil, nil
		}
		removed = store.Tick(alive, c.cfg.Get().Compose.PatchLifespan)
		return []state.Key{c.desc.patchesKey}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(removed) > 0 {
		c.logger.Info("過期補丁已清除", zap.String("kind", c.desc.kind), zap.Strings("names", removed))
	}
	return removed, nil
}

// ExternalNames 指定來源快照中該類資源的名稱
func (c *Collection[T]) ExternalNames(st *state.State, src *state.Sources) []string {
	if c.desc.external == nil {
		return nil
	}
	var names []string
	cat := c.desc.external(NewAggregator(st, src))
	for _, seq := range []iter.Seq[resource.Item[T]]{cat.FromSubscriptions(), cat.FromTemplate()} {
		for it := range seq {
			names = append(names, it.Name)
		}
	}
	return names
}

func (c *Collection[T]) mutate(ctx context.Context, fn func(*state.State) ([]state.Key, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("加載狀態失敗: %w", err)
	}

	keys, err := fn(st)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.repo.Save(ctx, st, keys...); err != nil {
		return fmt.Errorf("保存狀態失敗: %w", err)
	}
	return nil
}

// ResourceService 代理、策略組、規則集提供者和 hosts 的修改服務
type ResourceService struct {
	Proxies       *Collection[clash.Proxy]
	ProxyGroups   *Collection[clash.ProxyGroup]
	RuleProviders *Collection[clash.RuleProvider]
	Hosts         *Collection[state.HostEntry]
}

// NewResourceService 創建資源服務
func NewResourceService(
	repo state.Repository,
	sources *SourceStore,
	cfg *config.AtomicContainer,
	logger *zap.Logger,
) *ResourceService {
	named := func(name string, v map[string]any) map[string]any {
		v = clash.CopyMap(v)
		if v == nil {
			v = make(map[string]any)
		}
		v["name"] = name
		return v
	}

	return &ResourceService{
		Proxies: &Collection[clash.Proxy]{
			desc: descriptor[clash.Proxy]{
				kind:       "proxy",
				key:        state.KeyProxies,
				list:       func(s *state.State) *resource.List[clash.Proxy] { return s.Proxies },
				validate:   named,
				check:      func(_ string, v clash.Proxy) error { return validator.ValidateProxy(v) },
				external:   func(a *Aggregator) Category[clash.Proxy] { return a.Proxies() },
				patches:    func(s *state.State) *patch.Store { return s.ProxyPatches },
				patchesKey: state.KeyProxyPatches,
			},
			repo: repo, sources: sources, cfg: cfg, logger: logger,
		},
		ProxyGroups: &Collection[clash.ProxyGroup]{
			desc: descriptor[clash.ProxyGroup]{
				kind:       "proxy_group",
				key:        state.KeyProxyGroups,
				list:       func(s *state.State) *resource.List[clash.ProxyGroup] { return s.ProxyGroups },
				validate:   named,
				check:      func(_ string, v clash.ProxyGroup) error { return validator.ValidateGroup(v) },
				external:   func(a *Aggregator) Category[clash.ProxyGroup] { return a.ProxyGroups() },
				patches:    func(s *state.State) *patch.Store { return s.GroupPatches },
				patchesKey: state.KeyGroupPatches,
			},
			repo: repo, sources: sources, cfg: cfg, logger: logger,
		},
		RuleProviders: &Collection[clash.RuleProvider]{
			desc: descriptor[clash.RuleProvider]{
				kind:     "rule_provider",
				key:      state.KeyRuleProviders,
				list:     func(s *state.State) *resource.List[clash.RuleProvider] { return s.RuleProviders },
				validate: func(_ string, v clash.RuleProvider) clash.RuleProvider { return withoutName(v) },
				check:    func(_ string, v clash.RuleProvider) error { return validator.ValidateRuleProvider(v) },
			},
			repo: repo, sources: sources, cfg: cfg, logger: logger,
		},
		Hosts: &Collection[state.HostEntry]{
			desc: descriptor[state.HostEntry]{
				kind:     "host",
				key:      state.KeyHosts,
				list:     func(s *state.State) *resource.List[state.HostEntry] { return s.Hosts },
				validate: func(_ string, v state.HostEntry) state.HostEntry { return v },
				check:    checkHost,
			},
			repo: repo, sources: sources, cfg: cfg, logger: logger,
		},
	}
}

func checkHost(name string, h state.HostEntry) error {
	if !validator.ValidateHostPattern(name) {
		return apperrors.Validation("host 名稱 %q 無效", name)
	}
	if !h.UseBestIP && len(h.Addresses) == 0 {
		return apperrors.Validation("host 需要地址或 use_best_ip")
	}
	for _, a := range h.Addresses {
		if net.ParseIP(a) == nil && !validator.ValidateDomain(a) {
			return apperrors.Validation("host 地址 %q 既不是 IP 也不是域名", a)
		}
	}
	return nil
}
