package application

import (
	"maps"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/graph"
	"github.com/Yat-Muk/prism-clash/internal/domain/patch"
	"github.com/Yat-Muk/prism-clash/internal/domain/region"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
	"github.com/Yat-Muk/prism-clash/internal/pkg/metrics"
)

// ProviderHashLen 自動提供者短哈希的長度
const ProviderHashLen = 8

// Snapshot 一次合成的全部輸入
// State 必須是克隆出來的副本，合成過程會在上面同步橋接規則
type Snapshot struct {
	State   *state.State
	Sources *state.Sources
}

// Result 合成結果
type Result struct {
	Config *clash.Config
	// RulesetNames 合成後的 hash -> 出站映射
	RulesetNames map[string]string
	// NamesChanged RulesetNames 與輸入不同，調用方需要持久化
	NamesChanged bool
	Cycles       [][]string
}

// Composer 組合引擎
// 合成是純內存操作，不做 I/O；每次合成開始時讀取一次運行時配置
type Composer struct {
	cfg     *config.AtomicContainer
	grouper *region.Grouper
	logger  *zap.Logger
}

// NewComposer 創建組合引擎
func NewComposer(cfg *config.AtomicContainer, grouper *region.Grouper, logger *zap.Logger) *Composer {
	return &Composer{cfg: cfg, grouper: grouper, logger: logger}
}

// build 單次合成的上下文
type build struct {
	opts      *config.Config
	snap      Snapshot
	agg       *Aggregator
	requester string
	out       *clash.Config
	names     map[string]string
	logger    *zap.Logger
}

// Build 按固定階段順序合成配置，requester 用於可見性判斷
func (c *Composer) Build(snap Snapshot, requester string) *Result {
	start := time.Now()
	defer func() { metrics.BuildDuration.Observe(time.Since(start).Seconds()) }()

	if snap.Sources == nil {
		snap.Sources = state.EmptySources()
	}

	b := &build{
		opts:      c.cfg.Get(),
		snap:      snap,
		agg:       NewAggregator(snap.State, snap.Sources),
		requester: requester,
		names:     maps.Clone(snap.State.RulesetNames),
		logger:    c.logger.With(zap.String("requester", requester)),
	}
	if b.names == nil {
		b.names = make(map[string]string)
	}

	b.seed()
	b.mergeSubscriptions()
	b.addProxies()
	b.addProxyGroups(c.grouper)
	b.mergeRuleProviders()
	b.applyPatches()
	bridges := b.syncBridge()
	b.deriveProviders(bridges)
	b.mergeRules()
	b.mergeHosts()
	b.pruneNames()
	cycles := b.checkCycles()

	metrics.BuildsTotal.WithLabelValues("ok").Inc()
	return &Result{
		Config:       b.out,
		RulesetNames: b.names,
		NamesChanged: !maps.Equal(b.names, snap.State.RulesetNames),
		Cycles:       cycles,
	}
}

// 1. 以模板為起點
func (b *build) seed() {
	if b.snap.Sources.Template != nil {
		b.out = b.snap.Sources.Template.Clone()
		return
	}
	b.out = clash.NewConfig()
}

// 2. 按訂閱的 include 開關逐字段合併
func (b *build) mergeSubscriptions() {
	for p := range b.agg.Proxies().FromSubscriptions() {
		b.out.Proxies = append(b.out.Proxies, clash.CopyMap(p.Data))
	}
	for g := range b.agg.ProxyGroups().FromSubscriptions() {
		b.out.ProxyGroups = append(b.out.ProxyGroups, clash.CopyMap(g.Data))
	}
	for p := range b.agg.RuleProviders().FromSubscriptions() {
		if _, ok := b.out.RuleProviders[p.Name]; !ok {
			b.out.RuleProviders[p.Name] = withoutName(p.Data)
		}
	}

	var subRules []rule.Rule
	for _, sub := range b.snap.Sources.Enabled() {
		if sub.Config == nil {
			continue
		}
		if sub.Include.ProxyProviders {
			for name, p := range sub.Config.ProxyProviders {
				if _, ok := b.out.ProxyProviders[name]; !ok {
					b.out.ProxyProviders[name] = clash.CopyMap(p)
				}
			}
		}
		if sub.Include.Rules {
			for _, r := range sub.Config.Rules {
				// 兜底規則只保留模板的一條
				if r.Type() == rule.KindMatch {
					b.logger.Debug("丟棄訂閱的 MATCH 規則", zap.String("subscription", sub.Name), zap.String("rule", r.String()))
					continue
				}
				subRules = append(subRules, r)
			}
			for name, lines := range sub.Config.SubRules {
				if _, ok := b.out.SubRules[name]; !ok {
					b.out.SubRules[name] = slices.Clone(lines)
				}
			}
		}
	}

	// 訂閱規則放在模板的兜底 MATCH 之前
	if len(subRules) > 0 {
		at := len(b.out.Rules)
		for i, r := range b.out.Rules {
			if r.Type() == rule.KindMatch {
				at = i
				break
			}
		}
		b.out.Rules = slices.Insert(b.out.Rules, at, subRules...)
	}
}

// 3. 追加手動代理，再按關鍵字過濾全部代理
func (b *build) addProxies() {
	for item := range b.agg.Proxies().FromManual() {
		if !item.Metadata.Available(b.requester) {
			continue
		}
		p := clash.CopyMap(item.Data)
		p["name"] = item.Name
		b.out.Proxies = append(b.out.Proxies, p)
	}

	keywords := b.opts.Compose.FilterKeywords
	if len(keywords) == 0 {
		return
	}
	kept := b.out.Proxies[:0]
	for _, p := range b.out.Proxies {
		name := clash.Name(p)
		if kw, hit := containsAny(name, keywords); hit {
			b.logger.Debug("代理被關鍵字過濾", zap.String("proxy", name), zap.String("keyword", kw))
			continue
		}
		kept = append(kept, p)
	}
	b.out.Proxies = kept
}

func containsAny(s string, keywords []string) (string, bool) {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(s, kw) {
			return kw, true
		}
	}
	return "", false
}

// 4. 追加手動策略組和地區分組
func (b *build) addProxyGroups(grouper *region.Grouper) {
	for item := range b.agg.ProxyGroups().FromManual() {
		if !item.Metadata.Available(b.requester) {
			continue
		}
		g := clash.CopyMap(item.Data)
		g["name"] = item.Name
		b.out.ProxyGroups = append(b.out.ProxyGroups, g)
	}

	rc := b.opts.Compose.Region
	opts := region.Options{
		ByCountry:       rc.ByCountry,
		ByContinent:     rc.ByContinent,
		AsiaExceptChina: rc.AsiaExceptChina,
		Umbrella:        rc.Umbrella,
		GroupType:       rc.GroupType,
	}
	if grouper == nil || !opts.Enabled() {
		return
	}

	names := make([]string, 0, len(b.out.Proxies))
	for _, p := range b.out.Proxies {
		names = append(names, clash.Name(p))
	}
	groups := grouper.Group(names, opts)
	b.out.ProxyGroups = append(b.out.ProxyGroups, groups...)
	b.logger.Debug("地區分組完成", zap.Int("groups", len(groups)))
}

// 5. 合併註冊表中的規則集提供者，同名時覆蓋模板和訂閱中的定義
func (b *build) mergeRuleProviders() {
	for item := range b.agg.RuleProviders().FromManual() {
		if !item.Metadata.Available(b.requester) {
			continue
		}
		b.out.RuleProviders[item.Name] = withoutName(clash.CopyMap(item.Data))
	}
}

// 6. 對全部代理和策略組應用補丁，失敗時保留原值
func (b *build) applyPatches() {
	apply := func(kind string, store *patch.Store, items []map[string]any) {
		for i, it := range items {
			name := clash.Name(it)
			patched, ok, err := store.Apply(name, it)
			if err != nil {
				metrics.PatchFailures.WithLabelValues(kind).Inc()
				b.logger.Warn("補丁應用失敗，使用原值",
					zap.String("kind", kind), zap.String("name", name), zap.Error(err))
				continue
			}
			if ok {
				items[i] = patched
			}
		}
	}
	apply("proxy", b.snap.State.ProxyPatches, b.out.Proxies)
	apply("proxy_group", b.snap.State.GroupPatches, b.out.ProxyGroups)
}

// 7. 同步規則集到頂層規則的橋接
func (b *build) syncBridge() []rulelist.Item {
	prefix := b.opts.Compose.RulesetPrefix
	res := rulelist.SyncBridge(b.snap.State.TopRules, b.snap.State.RulesetRules, prefix)
	if len(res.Added) > 0 || res.Removed > 0 {
		b.logger.Debug("橋接規則已同步",
			zap.Int("added", len(res.Added)), zap.Int("removed", res.Removed))
	}
	return rulelist.Bridges(b.snap.State.TopRules, prefix)
}

// 8. 為橋接規則生成指向本服務導出接口的 HTTP 提供者
func (b *build) deriveProviders(bridges []rulelist.Item) {
	base := strings.TrimRight(b.opts.Server.BaseURL, "/")
	for _, it := range bridges {
		sr := it.Rule.(rule.SimpleRule)
		if _, ok := b.out.RuleProviders[sr.Payload]; ok {
			continue
		}
		action := string(sr.Action)
		hash := crypto.ShortHash(action, ProviderHashLen)
		b.out.RuleProviders[sr.Payload] = AutoProvider(base, hash, b.opts.Compose.ProviderInterval)
		b.names[hash] = action
	}
}

// AutoProvider 自動提供者定義
func AutoProvider(baseURL, hash string, interval int) clash.RuleProvider {
	p := clash.RuleProvider{
		"type":     "http",
		"behavior": "classical",
		"format":   "yaml",
		"url":      baseURL + "/ruleset/" + hash,
		"path":     "./ruleset/" + hash + ".yaml",
	}
	if interval > 0 {
		p["interval"] = interval
	}
	return p
}

// 9. 可用的頂層規則放在模板規則之前
// ACL4SSR 來源的 RULE-SET 規則順帶合併其提供者
func (b *build) mergeRules() {
	var top []rule.Rule
	for item := range b.snap.State.TopRules.Available(b.requester) {
		if item.Metadata.Source == resource.SourceACL4SSR && item.Rule.Type() == rule.KindRuleSet {
			name := item.Rule.(rule.SimpleRule).Payload
			if _, ok := b.out.RuleProviders[name]; !ok {
				if p, found := b.snap.Sources.ACL4SSR[name]; found {
					b.out.RuleProviders[name] = clash.CopyMap(p)
				}
			}
		}
		top = append(top, item.Rule)
	}
	b.out.Rules = append(top, b.out.Rules...)
}

// 10. 合併 hosts
func (b *build) mergeHosts() {
	for item := range b.snap.State.Hosts.Available(b.requester) {
		addrs := item.Data.Addresses
		if item.Data.UseBestIP {
			addrs = b.opts.Compose.BestIPs
		}
		if len(addrs) == 0 {
			continue
		}
		b.out.Hosts[item.Name] = slices.Clone(addrs)
	}
}

// 11. 刪除提供者已不存在的名稱映射
func (b *build) pruneNames() {
	prefix := b.opts.Compose.RulesetPrefix
	for hash, action := range b.names {
		if _, ok := b.out.RuleProviders[prefix+action]; !ok {
			delete(b.names, hash)
		}
	}
}

// 12. 環檢測，只記錄不阻斷
func (b *build) checkCycles() [][]string {
	groups := make([]graph.Group, 0, len(b.out.ProxyGroups))
	for _, g := range b.out.ProxyGroups {
		groups = append(groups, graph.Group{Name: clash.Name(g), Members: clash.Members(g)})
	}
	cycles := graph.FindCycles(groups)
	metrics.GroupCycles.Set(float64(len(cycles)))
	for _, c := range cycles {
		b.logger.Warn("策略組存在循環引用", zap.String("path", strings.Join(c, " -> ")))
	}
	return cycles
}
