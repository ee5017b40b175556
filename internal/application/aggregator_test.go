package application

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

func collect[T any](seq iter.Seq[resource.Item[T]]) []resource.Item[T] {
	var out []resource.Item[T]
	for it := range seq {
		out = append(out, it)
	}
	return out
}

func itemNames[T any](items []resource.Item[T]) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Name
	}
	return out
}

func TestAggregator(t *testing.T) {
	st := state.New()
	require.NoError(t, st.Proxies.Add(item("manual", clash.Proxy{"name": "manual", "type": "ss"}, resource.SourceManual)))

	tpl := mustParse(t, `
proxies:
  - {name: tpl, type: ss, server: a, port: 1}
rule-providers:
  zeta: {type: http, behavior: domain, url: "http://x/z"}
  alpha: {type: http, behavior: domain, url: "http://x/a"}
`)
	subCfg := mustParse(t, `
proxies:
  - {name: s1, type: ss, server: a, port: 1}
  - {name: tpl, type: ss, server: b, port: 2}
proxy-groups:
  - {name: G, type: select, proxies: [s1]}
`)
	noProxies := config.AllIncluded()
	noProxies.Proxies = false

	src := state.EmptySources().
		WithTemplate(tpl).
		WithSubscriptions([]state.Subscription{
			{Name: "a", Host: "sub-a.example", Enabled: true, Include: config.AllIncluded(), Config: subCfg},
			{Name: "b", Host: "sub-b.example", Enabled: false, Include: config.AllIncluded(), Config: subCfg},
			{Name: "c", Host: "sub-c.example", Enabled: true, Include: noProxies, Config: subCfg},
			{Name: "d", Host: "sub-d.example", Enabled: true, Include: config.AllIncluded()},
		})
	agg := NewAggregator(st, src)

	t.Run("手動-訂閱-模板順序且保留重名", func(t *testing.T) {
		all := collect(agg.Proxies().All())
		assert.Equal(t, []string{"manual", "s1", "tpl", "tpl"}, itemNames(all))
	})

	t.Run("訂閱來源標記與備註", func(t *testing.T) {
		subs := collect(agg.Proxies().FromSubscriptions())
		require.Len(t, subs, 2)
		for _, it := range subs {
			assert.Equal(t, resource.SourceSubscription, it.Metadata.Source)
			assert.Equal(t, "sub-a.example", it.Metadata.Remark)
		}
	})

	t.Run("include 開關按類別生效", func(t *testing.T) {
		groups := collect(agg.ProxyGroups().FromSubscriptions())
		assert.Equal(t, []string{"G", "G"}, itemNames(groups), "c 不含代理但含策略組")
	})

	t.Run("模板來源", func(t *testing.T) {
		tplItems := collect(agg.Proxies().FromTemplate())
		require.Len(t, tplItems, 1)
		assert.Equal(t, resource.SourceTemplate, tplItems[0].Metadata.Source)
	})

	t.Run("提供者按名稱排序並帶 name", func(t *testing.T) {
		providers := collect(agg.RuleProviders().FromTemplate())
		assert.Equal(t, []string{"alpha", "zeta"}, itemNames(providers))
		assert.Equal(t, "alpha", providers[0].Data["name"])
		assert.NotContains(t, withoutName(providers[0].Data), "name")
		_, stillNamed := tpl.RuleProviders["alpha"]["name"]
		assert.False(t, stillNamed, "不修改模板")
	})

	t.Run("沒有來源時為空", func(t *testing.T) {
		empty := NewAggregator(state.New(), nil)
		assert.Empty(t, collect(empty.Proxies().All()))
		assert.Empty(t, collect(empty.RuleProviders().All()))
	})
}
