package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/patch"
	"github.com/Yat-Muk/prism-clash/internal/domain/region"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
)

const composeTemplate = `
mixed-port: 7890
proxies:
  - {name: tpl-hk, type: ss, server: 1.1.1.1, port: 443, cipher: aes-128-gcm, password: x}
proxy-groups:
  - {name: PROXY, type: select, proxies: [tpl-hk, DIRECT]}
rule-providers:
  ads: {type: http, behavior: domain, url: "http://tpl/ads.yaml"}
rules:
  - RULE-SET,ads,REJECT
  - MATCH,PROXY
`

const composeSubscription = `
proxies:
  - {name: sub-jp, type: trojan, server: 2.2.2.2, port: 443, password: y}
  - {name: 剩餘流量 10GB, type: trojan, server: 0.0.0.0, port: 1, password: y}
proxy-groups:
  - {name: SUB, type: select, proxies: [sub-jp]}
rule-providers:
  ads: {type: http, behavior: domain, url: "http://sub/ads.yaml"}
  sub-only: {type: http, behavior: domain, url: "http://sub/only.yaml"}
rules:
  - DOMAIN,sub.example,SUB
  - MATCH,DIRECT
`

func newComposer(t *testing.T, mutate func(*config.Config), grouper *region.Grouper) *Composer {
	t.Helper()
	c := testConfig()
	if mutate != nil {
		mutate(c)
	}
	return NewComposer(config.NewAtomicContainer(c), grouper, nopLogger())
}

func composeSources(t *testing.T) *state.Sources {
	return state.EmptySources().
		WithTemplate(mustParse(t, composeTemplate)).
		WithSubscriptions([]state.Subscription{{
			Name: "s", Host: "sub.example", Enabled: true, Include: config.AllIncluded(),
			Config: mustParse(t, composeSubscription),
		}})
}

func TestComposer_Stages(t *testing.T) {
	st := state.New()
	require.NoError(t, st.Proxies.Add(item("manual-us", clash.Proxy{"type": "ss", "server": "3.3.3.3", "port": 1}, resource.SourceManual)))
	hidden := item("hidden", clash.Proxy{"type": "ss", "server": "4.4.4.4", "port": 1}, resource.SourceManual)
	hidden.Metadata.InvisibleTo = []string{"stash*"}
	require.NoError(t, st.Proxies.Add(hidden))
	require.NoError(t, st.ProxyGroups.Add(item("MANUAL", clash.ProxyGroup{"type": "select", "proxies": []any{"manual-us"}}, resource.SourceManual)))
	require.NoError(t, st.RuleProviders.Add(item("ads", clash.RuleProvider{"type": "http", "behavior": "domain", "url": "http://registry/ads.yaml"}, resource.SourceManual)))
	st.TopRules.Append(ruleItem(t, "DOMAIN,top.example,MANUAL", resource.SourceManual))

	composer := newComposer(t, func(c *config.Config) {
		c.Compose.FilterKeywords = []string{"剩餘流量"}
	}, nil)
	res := composer.Build(Snapshot{State: st.Clone(), Sources: composeSources(t)}, "stash-ios")
	out := res.Config

	t.Run("模板的未建模字段保留", func(t *testing.T) {
		assert.Equal(t, 7890, out.Extra["mixed-port"])
	})

	t.Run("代理順序與關鍵字過濾", func(t *testing.T) {
		assert.Equal(t, []string{"tpl-hk", "sub-jp", "manual-us"}, names(out.Proxies))
	})

	t.Run("手動策略組追加在後", func(t *testing.T) {
		assert.Equal(t, []string{"PROXY", "SUB", "MANUAL"}, names(out.ProxyGroups))
	})

	t.Run("註冊表提供者覆蓋同名定義", func(t *testing.T) {
		assert.Equal(t, "http://registry/ads.yaml", out.RuleProviders["ads"]["url"])
		assert.NotContains(t, out.RuleProviders["ads"], "name")
		assert.Equal(t, "http://sub/only.yaml", out.RuleProviders["sub-only"]["url"])
	})

	t.Run("規則順序", func(t *testing.T) {
		assert.Equal(t, []string{
			"DOMAIN,top.example,MANUAL",
			"RULE-SET,ads,REJECT",
			"DOMAIN,sub.example,SUB",
			"MATCH,PROXY",
		}, ruleStrings(out.Rules))
	})

	t.Run("模板的 MATCH 是唯一兜底", func(t *testing.T) {
		var matches []string
		for _, r := range out.Rules {
			if r.Type() == rule.KindMatch {
				matches = append(matches, r.String())
			}
		}
		assert.Equal(t, []string{"MATCH,PROXY"}, matches)
		assert.Equal(t, rule.KindMatch, out.Rules[len(out.Rules)-1].Type())
	})

	t.Run("輸入快照不變", func(t *testing.T) {
		assert.Equal(t, 1, st.TopRules.Len())
		assert.Len(t, composeSources(t).Template.Proxies, 1)
	})

	t.Run("其他請求方可見", func(t *testing.T) {
		res := composer.Build(Snapshot{State: st.Clone(), Sources: composeSources(t)}, "clash-verge")
		assert.Contains(t, names(res.Config.Proxies), "hidden")
	})
}

func TestComposer_IncludeFlags(t *testing.T) {
	inc := config.AllIncluded()
	inc.Rules = false
	inc.ProxyGroups = false
	src := state.EmptySources().WithSubscriptions([]state.Subscription{{
		Name: "s", Enabled: true, Include: inc, Config: mustParse(t, composeSubscription),
	}})

	res := newComposer(t, nil, nil).Build(Snapshot{State: state.New(), Sources: src}, "")
	assert.Equal(t, []string{"sub-jp", "剩餘流量 10GB"}, names(res.Config.Proxies))
	assert.Empty(t, res.Config.ProxyGroups)
	assert.Empty(t, res.Config.Rules)
}

func TestComposer_NilSources(t *testing.T) {
	res := newComposer(t, nil, nil).Build(Snapshot{State: state.New()}, "")
	require.NotNil(t, res.Config)
	assert.Empty(t, res.Config.Proxies)
	assert.Empty(t, res.Cycles)
}

func TestComposer_RegionGroups(t *testing.T) {
	grouper := region.NewGrouper(region.DefaultTable(), time.Minute)
	composer := newComposer(t, func(c *config.Config) {
		c.Compose.Region = config.RegionConfig{ByCountry: true, Umbrella: "🌐 地區", GroupType: "url-test"}
	}, grouper)

	st := state.New()
	require.NoError(t, st.Proxies.Add(item("香港 01", clash.Proxy{"type": "ss", "server": "a", "port": 1}, resource.SourceManual)))
	require.NoError(t, st.Proxies.Add(item("日本 02", clash.Proxy{"type": "ss", "server": "b", "port": 1}, resource.SourceManual)))

	res := composer.Build(Snapshot{State: st.Clone()}, "")
	require.Equal(t, []string{"🌐 地區", "🇭🇰 香港", "🇯🇵 日本"}, names(res.Config.ProxyGroups))
	assert.Equal(t, "url-test", res.Config.ProxyGroups[1]["type"])
	assert.Equal(t, []string{"香港 01"}, clash.Members(res.Config.ProxyGroups[1]))
}

func TestComposer_Patches(t *testing.T) {
	src := state.EmptySources().WithTemplate(mustParse(t, composeTemplate))
	orig := src.Template.Proxies[0]

	st := state.New()
	edited := clash.CopyMap(orig)
	edited["server"] = "9.9.9.9"
	_, err := st.ProxyPatches.Record("tpl-hk", orig, edited, 3)
	require.NoError(t, err)
	st.GroupPatches.Load(map[string]patch.Item{
		"PROXY": {Patch: `[{"op":"replace","path":"/missing/field","value":1}]`, Lifecycle: 3},
	})

	res := newComposer(t, nil, nil).Build(Snapshot{State: st.Clone(), Sources: src}, "")

	t.Run("補丁生效", func(t *testing.T) {
		assert.Equal(t, "9.9.9.9", res.Config.Proxies[0]["server"])
		assert.Equal(t, "1.1.1.1", orig["server"], "模板本身不變")
	})

	t.Run("無法應用的補丁使用原值", func(t *testing.T) {
		assert.Equal(t, []string{"tpl-hk", "DIRECT"}, clash.Members(res.Config.ProxyGroups[0]))
	})
}

func TestComposer_BridgeAndAutoProvider(t *testing.T) {
	composer := newComposer(t, func(c *config.Config) { c.Compose.ProviderInterval = 3600 }, nil)
	prefix := testConfig().Compose.RulesetPrefix
	src := state.EmptySources().WithTemplate(mustParse(t, composeTemplate))

	st := state.New()
	st.RulesetRules.Append(ruleItem(t, "DOMAIN-SUFFIX,x.com,PROXY", resource.SourceManual))
	st.RulesetRules.Append(ruleItem(t, "DOMAIN-SUFFIX,y.com,DIRECT", resource.SourceManual))
	st.RulesetNames["stale000"] = "GONE"

	res := composer.Build(Snapshot{State: st.Clone(), Sources: src}, "")
	out := res.Config

	proxyHash := crypto.ShortHash("PROXY", ProviderHashLen)
	directHash := crypto.ShortHash("DIRECT", ProviderHashLen)

	t.Run("橋接規則在模板規則之前", func(t *testing.T) {
		assert.Equal(t, []string{
			"RULE-SET," + prefix + "PROXY,PROXY",
			"RULE-SET," + prefix + "DIRECT,DIRECT",
			"RULE-SET,ads,REJECT",
			"MATCH,PROXY",
		}, ruleStrings(out.Rules))
	})

	t.Run("自動提供者", func(t *testing.T) {
		assert.Equal(t, clash.RuleProvider{
			"type":     "http",
			"behavior": "classical",
			"format":   "yaml",
			"url":      "http://prism.local/ruleset/" + proxyHash,
			"path":     "./ruleset/" + proxyHash + ".yaml",
			"interval": 3600,
		}, out.RuleProviders[prefix+"PROXY"])
	})

	t.Run("名稱映射更新並清理過期項", func(t *testing.T) {
		assert.Equal(t, map[string]string{proxyHash: "PROXY", directHash: "DIRECT"}, res.RulesetNames)
		assert.True(t, res.NamesChanged)
	})

	t.Run("映射未變時不需要保存", func(t *testing.T) {
		st2 := st.Clone()
		st2.RulesetNames = res.RulesetNames
		again := composer.Build(Snapshot{State: st2, Sources: src}, "")
		assert.False(t, again.NamesChanged)
	})

	t.Run("已有同名提供者時不覆蓋", func(t *testing.T) {
		st3 := st.Clone()
		require.NoError(t, st3.RuleProviders.Add(item(prefix+"PROXY",
			clash.RuleProvider{"type": "http", "behavior": "classical", "url": "http://custom/p.yaml"}, resource.SourceManual)))
		res := composer.Build(Snapshot{State: st3, Sources: src}, "")
		assert.Equal(t, "http://custom/p.yaml", res.Config.RuleProviders[prefix+"PROXY"]["url"])
		assert.NotContains(t, res.RulesetNames, proxyHash)
	})
}

func TestComposer_ACL4SSRProviders(t *testing.T) {
	src := state.EmptySources().WithACL4SSR(map[string]clash.RuleProvider{
		"🐒 BanAD": {"type": "http", "behavior": "classical", "url": "http://acl/BanAD.list"},
		"🐒 Other": {"type": "http", "behavior": "classical", "url": "http://acl/Other.list"},
	})
	st := state.New()
	st.TopRules.Append(ruleItem(t, "RULE-SET,🐒 BanAD,REJECT", resource.SourceACL4SSR))

	res := newComposer(t, nil, nil).Build(Snapshot{State: st.Clone(), Sources: src}, "")
	assert.Contains(t, res.Config.RuleProviders, "🐒 BanAD")
	assert.NotContains(t, res.Config.RuleProviders, "🐒 Other", "只合併被引用的提供者")
}

func TestComposer_Hosts(t *testing.T) {
	composer := newComposer(t, func(c *config.Config) { c.Compose.BestIPs = []string{"104.16.0.1", "104.16.0.2"} }, nil)

	st := state.New()
	require.NoError(t, st.Hosts.Add(item("static.lan", state.HostEntry{Addresses: []string{"10.0.0.1"}}, resource.SourceManual)))
	require.NoError(t, st.Hosts.Add(item("cdn.example.com", state.HostEntry{UseBestIP: true}, resource.SourceManual)))
	off := item("off.example.com", state.HostEntry{Addresses: []string{"10.0.0.2"}}, resource.SourceManual)
	off.Metadata.Disabled = true
	require.NoError(t, st.Hosts.Add(off))

	res := composer.Build(Snapshot{State: st.Clone()}, "")
	assert.Equal(t, map[string][]string{
		"static.lan":      {"10.0.0.1"},
		"cdn.example.com": {"104.16.0.1", "104.16.0.2"},
	}, res.Config.Hosts)

	t.Run("沒有優選 IP 時跳過", func(t *testing.T) {
		res := newComposer(t, nil, nil).Build(Snapshot{State: st.Clone()}, "")
		assert.NotContains(t, res.Config.Hosts, "cdn.example.com")
	})
}

func TestComposer_Cycles(t *testing.T) {
	src := state.EmptySources().WithTemplate(mustParse(t, `
proxy-groups:
  - {name: A, type: select, proxies: [B]}
  - {name: B, type: select, proxies: [C, DIRECT]}
  - {name: C, type: select, proxies: [A]}
`))
	res := newComposer(t, nil, nil).Build(Snapshot{State: state.New(), Sources: src}, "")
	require.Len(t, res.Cycles, 1)
	assert.Equal(t, []string{"A", "B", "C", "A"}, res.Cycles[0])
	assert.Len(t, res.Config.ProxyGroups, 3, "有環也照常輸出")
}
