package application

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
	"github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

func TestExportRuleset(t *testing.T) {
	st := state.New()
	st.RulesetRules.Append(ruleItem(t, "DOMAIN-SUFFIX,a.com,PROXY", resource.SourceManual))
	st.RulesetRules.Append(ruleItem(t, "IP-CIDR,10.0.0.0/8,PROXY,no-resolve", resource.SourceManual))
	st.RulesetRules.Append(ruleItem(t, "DOMAIN,b.com,DIRECT", resource.SourceManual))
	st.RulesetRules.Append(ruleItem(t, "AND,(DOMAIN,c.com),(NETWORK,UDP),PROXY", resource.SourceManual))
	hidden := ruleItem(t, "DOMAIN,secret.com,PROXY", resource.SourceManual)
	hidden.Metadata.InvisibleTo = []string{"guest"}
	st.RulesetRules.Append(hidden)

	proxyHash := crypto.ShortHash("PROXY", ProviderHashLen)

	t.Run("按出站導出條件", func(t *testing.T) {
		data, err := ExportRuleset(st, proxyHash, "")
		require.NoError(t, err)
		assert.Equal(t, `payload:
    - DOMAIN-SUFFIX,a.com
    - IP-CIDR,10.0.0.0/8,no-resolve
    - AND,(DOMAIN,c.com),(NETWORK,UDP)
    - DOMAIN,secret.com
`, string(data))
	})

	t.Run("對請求方隱藏", func(t *testing.T) {
		data, err := ExportRuleset(st, proxyHash, "guest")
		require.NoError(t, err)
		assert.NotContains(t, string(data), "secret.com")
	})

	t.Run("映射優先", func(t *testing.T) {
		st2 := st.Clone()
		st2.RulesetNames["custom"] = "DIRECT"
		data, err := ExportRuleset(st2, "custom", "")
		require.NoError(t, err)
		assert.Equal(t, "payload:\n    - DOMAIN,b.com\n", string(data))
	})

	t.Run("出站已經沒有規則", func(t *testing.T) {
		st3 := st.Clone()
		st3.RulesetNames["old"] = "GONE"
		data, err := ExportRuleset(st3, "old", "")
		require.NoError(t, err)
		assert.Equal(t, "payload: []\n", string(data))
	})

	t.Run("未知哈希", func(t *testing.T) {
		_, err := ExportRuleset(st, "ffffffff", "")
		assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	})
}

func TestAggregateUsage(t *testing.T) {
	noInfo := config.AllIncluded()
	noInfo.Info = false

	src := state.EmptySources().WithSubscriptions([]state.Subscription{
		{Name: "a", Enabled: true, Include: config.AllIncluded(), Usage: &state.Usage{Upload: 1, Download: 2, Total: 10, Expire: 2000}},
		{Name: "b", Enabled: true, Include: config.AllIncluded(), Usage: &state.Usage{Upload: 3, Download: 4, Total: 20, Expire: 1000}},
		{Name: "c", Enabled: true, Include: config.AllIncluded(), Usage: &state.Usage{Total: 5}},
		{Name: "off", Enabled: false, Include: config.AllIncluded(), Usage: &state.Usage{Total: 100}},
		{Name: "hidden", Enabled: true, Include: noInfo, Usage: &state.Usage{Total: 100}},
		{Name: "none", Enabled: true, Include: config.AllIncluded()},
	})

	u, ok := AggregateUsage(src)
	require.True(t, ok)
	assert.Equal(t, state.Usage{Upload: 4, Download: 6, Total: 35, Expire: 1000}, u)
	assert.Equal(t, "upload=4; download=6; total=35; expire=1000", u.Header())

	t.Run("沒有流量信息", func(t *testing.T) {
		_, ok := AggregateUsage(state.EmptySources())
		assert.False(t, ok)
		_, ok = AggregateUsage(nil)
		assert.False(t, ok)
	})
}
