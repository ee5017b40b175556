package application

import (
	"iter"
	"slices"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

// Category 一類資源在各來源中的統一視圖
// 不同來源之間的同名資源原樣保留，去重在渲染時進行
type Category[T any] struct {
	manual   *resource.List[T]
	subs     []state.Subscription
	fromSub  func(state.Subscription) []T
	include  func(config.IncludeFlags) bool
	template []T
	name     func(T) string
}

// FromManual 本地註冊表中的資源（含手動和自動生成的）
func (c Category[T]) FromManual() iter.Seq[resource.Item[T]] {
	if c.manual == nil {
		return func(func(resource.Item[T]) bool) {}
	}
	return c.manual.All()
}

// FromSubscriptions 啟用且允許該類資源的訂閱中的資源
// 來源標記為 subscription，備註為訂閱主機名
func (c Category[T]) FromSubscriptions() iter.Seq[resource.Item[T]] {
	return func(yield func(resource.Item[T]) bool) {
		for _, sub := range c.subs {
			if !sub.Enabled || sub.Config == nil || !c.include(sub.Include) {
				continue
			}
			for _, v := range c.fromSub(sub) {
				meta := resource.NewMetadata(resource.SourceSubscription)
				meta.Remark = sub.Host
				if !yield(resource.Item[T]{Name: c.name(v), Data: v, Metadata: meta}) {
					return
				}
			}
		}
	}
}

// FromTemplate 模板中的資源
func (c Category[T]) FromTemplate() iter.Seq[resource.Item[T]] {
	return func(yield func(resource.Item[T]) bool) {
		for _, v := range c.template {
			item := resource.Item[T]{Name: c.name(v), Data: v, Metadata: resource.NewMetadata(resource.SourceTemplate)}
			if !yield(item) {
				return
			}
		}
	}
}

// All 手動、訂閱、模板依次拼接
func (c Category[T]) All() iter.Seq[resource.Item[T]] {
	return func(yield func(resource.Item[T]) bool) {
		for _, seq := range []iter.Seq[resource.Item[T]]{c.FromManual(), c.FromSubscriptions(), c.FromTemplate()} {
			for item := range seq {
				if !yield(item) {
					return
				}
			}
		}
	}
}

// Aggregator 多來源聚合
type Aggregator struct {
	state   *state.State
	sources *state.Sources
}

// NewAggregator 基於一份不可變快照創建聚合器
func NewAggregator(st *state.State, src *state.Sources) *Aggregator {
	if src == nil {
		src = state.EmptySources()
	}
	return &Aggregator{state: st, sources: src}
}

func (a *Aggregator) template() *clash.Config {
	if a.sources.Template == nil {
		return clash.NewConfig()
	}
	return a.sources.Template
}

// Proxies 代理
func (a *Aggregator) Proxies() Category[clash.Proxy] {
	return Category[clash.Proxy]{
		manual:   a.state.Proxies,
		subs:     a.sources.Subscriptions,
		fromSub:  func(s state.Subscription) []clash.Proxy { return s.Config.Proxies },
		include:  func(f config.IncludeFlags) bool { return f.Proxies },
		template: a.template().Proxies,
		name:     clash.Name,
	}
}

// ProxyGroups 策略組
func (a *Aggregator) ProxyGroups() Category[clash.ProxyGroup] {
	return Category[clash.ProxyGroup]{
		manual:   a.state.ProxyGroups,
		subs:     a.sources.Subscriptions,
		fromSub:  func(s state.Subscription) []clash.ProxyGroup { return s.Config.ProxyGroups },
		include:  func(f config.IncludeFlags) bool { return f.ProxyGroups },
		template: a.template().ProxyGroups,
		name:     clash.Name,
	}
}

// RuleProviders 規則集提供者，映射中的條目按名稱排序
func (a *Aggregator) RuleProviders() Category[clash.RuleProvider] {
	return Category[clash.RuleProvider]{
		manual:   a.state.RuleProviders,
		subs:     a.sources.Subscriptions,
		fromSub:  func(s state.Subscription) []clash.RuleProvider { return namedProviders(s.Config.RuleProviders) },
		include:  func(f config.IncludeFlags) bool { return f.RuleProviders },
		template: namedProviders(a.template().RuleProviders),
		name:     clash.Name,
	}
}

// namedProviders 把提供者映射展開為帶 name 字段的列表
func namedProviders(m map[string]clash.RuleProvider) []clash.RuleProvider {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]clash.RuleProvider, 0, len(names))
	for _, name := range names {
		p := make(clash.RuleProvider, len(m[name])+1)
		for k, v := range m[name] {
			p[k] = v
		}
		p["name"] = name
		out = append(out, p)
	}
	return out
}

// withoutName 去掉 namedProviders 添加的 name 字段
func withoutName(p clash.RuleProvider) clash.RuleProvider {
	out := make(clash.RuleProvider, len(p))
	for k, v := range p {
		if k != "name" {
			out[k] = v
		}
	}
	return out
}
