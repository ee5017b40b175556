package application

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	"github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

func TestValidate_ReferencePruning(t *testing.T) {
	cfg := mustParse(t, `
proxies:
  - {name: p1, type: ss, server: a, port: 1}
  - {name: p1, type: ss, server: dup, port: 1}
proxy-groups:
  - {name: G, type: select, proxies: [p1, ghost, DIRECT, GLOBAL, H]}
  - {name: H, type: select, proxies: [p1]}
  - {name: H, type: url-test, proxies: [p1]}
rule-providers:
  known: {type: http, behavior: domain, url: "http://x/k.yaml"}
sub-rules:
  inner: ["MATCH,DIRECT"]
rules:
  - RULE-SET,known,G
  - RULE-SET,missing,G
  - DOMAIN,a.com,nobody
  - AND,((RULE-SET,missing),(NETWORK,TCP)),DIRECT
  - SUB-RULE,(NETWORK,UDP),inner
  - SUB-RULE,(NETWORK,UDP),outer
  - DOMAIN,b.com,p1
  - MATCH,REJECT
`)

	core, logs := observer.New(zap.WarnLevel)
	out, report := Validate(cfg, zap.New(core))

	t.Run("重名保留第一個", func(t *testing.T) {
		assert.Equal(t, []string{"p1"}, names(out.Proxies))
		assert.Equal(t, "a", out.Proxies[0]["server"])
		assert.Equal(t, []string{"G", "H"}, names(out.ProxyGroups))
		assert.Equal(t, "select", out.ProxyGroups[1]["type"])
		assert.Equal(t, []string{"p1"}, report.DuplicateProxies)
		assert.Equal(t, []string{"H"}, report.DuplicateGroups)
	})

	t.Run("策略組成員修剪", func(t *testing.T) {
		assert.Equal(t, []string{"p1", "DIRECT", "GLOBAL", "H"}, clash.Members(out.ProxyGroups[0]))
		assert.Equal(t, map[string][]string{"G": {"ghost"}}, report.PrunedMembers)
	})

	t.Run("懸空引用的規則被丟棄", func(t *testing.T) {
		assert.Equal(t, []string{
			"RULE-SET,known,G",
			"SUB-RULE,(NETWORK,UDP),inner",
			"DOMAIN,b.com,p1",
			"MATCH,REJECT",
		}, ruleStrings(out.Rules))

		require.Len(t, report.DroppedRules, 4)
		for _, d := range report.DroppedRules {
			assert.True(t, stderrors.Is(d.Err, errors.ErrReference), d.Rule)
		}
		assert.Equal(t, "RULE-SET,missing,G", report.DroppedRules[0].Rule)
	})

	t.Run("每個問題都有警告", func(t *testing.T) {
		assert.Equal(t, 1+1+1+4, logs.Len())
	})

	t.Run("輸入不變", func(t *testing.T) {
		assert.Len(t, cfg.Proxies, 2)
		assert.Len(t, cfg.Rules, 8)
		assert.Contains(t, clash.Members(cfg.ProxyGroups[0]), "ghost")
	})
}

func TestRender(t *testing.T) {
	cfg := mustParse(t, `
proxies:
  - {name: p1, type: ss, server: a, port: 1}
rules:
  - RULE-SET,missing,DIRECT
  - MATCH,p1
`)
	data, report, err := Render(cfg, nopLogger())
	require.NoError(t, err)
	require.Len(t, report.DroppedRules, 1)

	again, skipped, err := clash.Parse(data)
	require.NoError(t, err)
	assert.Empty(t, skipped)
	assert.Equal(t, []string{"MATCH,p1"}, ruleStrings(again.Rules))
}
