package main

import (
	"bytes"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/application"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
	"github.com/Yat-Muk/prism-clash/internal/infra/api"
	"github.com/Yat-Muk/prism-clash/internal/pkg/appctx"
	"github.com/Yat-Muk/prism-clash/internal/pkg/cert"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
)

const testTemplate = `mixed-port: 7890
proxies:
  - {name: hk-01, type: ss, server: 1.2.3.4, port: 443, cipher: aes-128-gcm, password: x}
proxy-groups:
  - {name: PROXY, type: select, proxies: [hk-01]}
rules:
  - MATCH,PROXY
`

// setupTestEnvironment 創建測試用的臨時工作目錄
func setupTestEnvironment(t *testing.T) *appctx.Paths {
	t.Helper()
	t.Setenv(crypto.MasterKeyEnv, "")

	paths, err := appctx.NewPaths(t.TempDir())
	require.NoError(t, err)
	return paths
}

func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestInitializeDependencies(t *testing.T) {
	paths := setupTestEnvironment(t)

	deps, err := initializeDependencies(zap.NewNop(), paths)
	require.NoError(t, err)
	defer deps.Close()

	t.Run("服務已初始化", func(t *testing.T) {
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.ConfigSvc)
		assert.NotNil(t, deps.DB)
		assert.NotNil(t, deps.Rules)
		assert.NotNil(t, deps.Resources)
		assert.NotNil(t, deps.Build)
		assert.NotNil(t, deps.Refresh)

		api := deps.APIDeps()
		assert.Same(t, deps.Build, api.Build)
		assert.Same(t, deps.Config, api.Config)
	})

	t.Run("路徑落在工作目錄內", func(t *testing.T) {
		cfg := deps.Config.Get()
		assert.Equal(t, paths.TemplateFile, cfg.Template.Path)
		assert.Equal(t, paths.StoreDir, cfg.Store.Path)
		assert.FileExists(t, paths.ConfigFile, "首次啟動寫入默認配置")
		assert.FileExists(t, paths.MasterKeyFile)
	})

	t.Run("模板不存在時從空配置開始", func(t *testing.T) {
		require.NoError(t, loadTemplate(deps))
		assert.Nil(t, deps.Sources.Get().Template)
	})

	t.Run("加載模板", func(t *testing.T) {
		require.NoError(t, os.WriteFile(paths.TemplateFile, []byte(testTemplate), 0600))
		require.NoError(t, loadTemplate(deps))
		tpl := deps.Sources.Get().Template
		require.NotNil(t, tpl)
		assert.Len(t, tpl.Proxies, 1)
	})

	t.Run("模板無效", func(t *testing.T) {
		require.NoError(t, os.WriteFile(paths.TemplateFile, []byte("proxies: [oops"), 0600))
		assert.Error(t, loadTemplate(deps))
	})
}

func TestInitializeDependencies_InvalidConfig(t *testing.T) {
	paths := setupTestEnvironment(t)
	require.NoError(t, os.WriteFile(paths.ConfigFile, []byte("version: 2\nserver:\n  listen: not-a-host-port\n"), 0600))

	_, err := initializeDependencies(zap.NewNop(), paths)
	assert.Error(t, err)
}

func TestNewGrouper(t *testing.T) {
	paths := setupTestEnvironment(t)
	deps, err := initializeDependencies(zap.NewNop(), paths)
	require.NoError(t, err)
	defer deps.Close()

	rc := deps.Config.Get().Compose.Region
	g, err := newGrouper(rc)
	require.NoError(t, err)
	assert.NotEmpty(t, g.Table())

	rc.TableFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = newGrouper(rc)
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	renderTable(&buf, []string{"#", "TYPE", "ACTION"}, [][]string{
		{"0", "DOMAIN", "🇭🇰 香港"},
		{"1", "MATCH", "DIRECT"},
	})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "#  TYPE    ACTION", lines[0])
	assert.Equal(t, "0  DOMAIN  🇭🇰 香港", lines[1])
	assert.Equal(t, "1  MATCH   DIRECT", lines[2])

	t.Run("超長截斷", func(t *testing.T) {
		var buf bytes.Buffer
		renderTable(&buf, []string{"PAYLOAD"}, [][]string{{strings.Repeat("a", 100)}})
		assert.Contains(t, buf.String(), "…")
		assert.Less(t, len(strings.Split(buf.String(), "\n")[1]), 100)
	})
}

func TestRuleRows(t *testing.T) {
	r, err := rule.ParseLine("AND,(DOMAIN,a.com),(NETWORK,UDP),REJECT")
	require.NoError(t, err)
	m := rulelist.NewManager(rulelist.NewItem(r, resource.SourceManual))
	hidden := rulelist.NewItem(rule.SimpleRule{Kind: rule.KindIPCIDR, Payload: "10.0.0.0/8", Action: "DIRECT", Param: "no-resolve"}, resource.SourceAuto)
	hidden.Metadata.Disabled = true
	hidden.Metadata.InvisibleTo = []string{"stash"}
	m.Append(hidden)

	rows := ruleRows(m.ToOrderedList())
	assert.Equal(t, []string{"0", "AND", "DOMAIN,a.com NETWORK,UDP", "REJECT", "manual", ""}, rows[0])
	assert.Equal(t, []string{"1", "IP-CIDR", "10.0.0.0/8 [no-resolve]", "DIRECT", "auto", "disabled hidden:stash"}, rows[1])
}

func TestReadRuleDicts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`[
  // 廣告
  {"type": "DOMAIN-SUFFIX", "payload": "ads.example", "action": "REJECT"},
  /* 兜底 */
  {"type": "MATCH", "action": "PROXY"}
]`), 0600))

	dicts, err := readRuleDicts(path)
	require.NoError(t, err)
	require.Len(t, dicts, 2)
	assert.Equal(t, "ads.example", dicts[0].Payload)
	assert.Equal(t, "MATCH", dicts[1].Type)

	_, err = readRuleDicts(filepath.Join(t.TempDir(), "missing.jsonc"))
	assert.Error(t, err)
}

func TestCLI_RuleParse(t *testing.T) {
	out, _, err := runCLI(t, "rule", "parse", "DOMAIN-SUFFIX,example.com,PROXY", "AND,(DOMAIN,a),(NETWORK,tcp),DIRECT")
	require.NoError(t, err)
	assert.Contains(t, out, "DOMAIN-SUFFIX,example.com,PROXY")
	assert.Contains(t, out, "AND,(DOMAIN,a),(NETWORK,tcp),DIRECT")

	_, stderr, err := runCLI(t, "rule", "parse", "DST-PORT,99999,DIRECT")
	assert.Error(t, err)
	assert.Contains(t, stderr, "DST-PORT,99999,DIRECT")
}

func TestCLI_ImportListRender(t *testing.T) {
	paths := setupTestEnvironment(t)
	dir := paths.BaseDir
	require.NoError(t, os.WriteFile(paths.TemplateFile, []byte(testTemplate), 0600))

	rulesFile := filepath.Join(t.TempDir(), "rules.jsonc")
	require.NoError(t, os.WriteFile(rulesFile, []byte(`[
  {"type": "DOMAIN-SUFFIX", "payload": "google.com", "action": "PROXY"}, // 走代理
  {"type": "BOGUS", "payload": "x", "action": "DIRECT"}
]`), 0600))

	t.Run("導入", func(t *testing.T) {
		out, stderr, err := runCLI(t, "--dir", dir, "rule", "import", rulesFile, "--set", "ruleset")
		require.NoError(t, err)
		assert.Contains(t, out, "新增 1 條，重複 0 條，跳過 1 條")
		assert.Contains(t, stderr, "跳過")
	})

	t.Run("列出", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "rule", "list", "ruleset")
		require.NoError(t, err)
		assert.Contains(t, out, "google.com")
		assert.Contains(t, out, "manual")

		_, _, err = runCLI(t, "--dir", dir, "rule", "list", "bogus")
		assert.Error(t, err)
	})

	t.Run("合成到文件", func(t *testing.T) {
		target := filepath.Join(t.TempDir(), "out", "clash.yaml")
		_, _, err := runCLI(t, "--dir", dir, "render", "--no-refresh", "-o", target)
		require.NoError(t, err)

		data, err := os.ReadFile(target)
		require.NoError(t, err)
		body := string(data)
		assert.Contains(t, body, "mixed-port: 7890")
		assert.Contains(t, body, "📂<=PROXY")
		assert.Contains(t, body, "MATCH,PROXY")
	})

	t.Run("合成到標準輸出", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "render", "--no-refresh")
		require.NoError(t, err)
		assert.Contains(t, out, "hk-01")
	})
}

func TestCLI_Version(t *testing.T) {
	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Prism Clash")
}

func TestRuleSetArg(t *testing.T) {
	set, err := ruleSetArg(nil)
	require.NoError(t, err)
	assert.Equal(t, application.RuleSetTop, set)

	set, err = ruleSetArg([]string{"ruleset"})
	require.NoError(t, err)
	assert.Equal(t, application.RuleSetRuleset, set)
}

func TestEnableTLS(t *testing.T) {
	paths := setupTestEnvironment(t)
	require.NoError(t, os.WriteFile(paths.ConfigFile, []byte(`version: 2
server:
  listen: 127.0.0.1:25500
  base_url: https://prism.lan:25500
  tls:
    enabled: true
    self_signed: true
`), 0600))

	deps, err := initializeDependencies(zap.NewNop(), paths)
	require.NoError(t, err)
	defer deps.Close()

	sc := deps.Config.Get().Server
	assert.Equal(t, filepath.Join(paths.CertDir, "server.crt"), sc.TLS.CertFile)

	srv := api.NewServer(sc.Listen, http.NotFoundHandler(), zap.NewNop())
	require.NoError(t, enableTLS(srv, sc, zap.NewNop()))
	assert.FileExists(t, sc.TLS.KeyFile)

	t.Run("沒有證書且不自簽", func(t *testing.T) {
		sc := sc
		sc.TLS.SelfSigned = false
		sc.TLS.CertFile = filepath.Join(t.TempDir(), "none.crt")
		assert.Error(t, enableTLS(srv, sc, zap.NewNop()))
	})
}

func TestCLI_Cert(t *testing.T) {
	paths := setupTestEnvironment(t)
	dir := paths.BaseDir

	t.Run("未啟用", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "cert")
		require.NoError(t, err)
		assert.Contains(t, out, "HTTPS 未啟用")
	})

	require.NoError(t, os.WriteFile(paths.ConfigFile, []byte(`version: 2
server:
  listen: 127.0.0.1:25500
  base_url: https://prism.lan:25500
  tls:
    enabled: true
`), 0600))

	t.Run("證書不存在", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "cert")
		require.NoError(t, err)
		assert.Contains(t, out, "Missing")
		assert.NotContains(t, out, "issuer")
	})

	t.Run("主機不匹配", func(t *testing.T) {
		certFile := filepath.Join(paths.CertDir, "server.crt")
		keyFile := filepath.Join(paths.CertDir, "server.key")
		_, err := cert.NewSelfSignedGenerator(zap.NewNop()).EnsureSelfSigned(certFile, keyFile, []string{"other.lan"})
		require.NoError(t, err)

		out, stderr, err := runCLI(t, "--dir", dir, "cert")
		require.NoError(t, err)
		assert.Contains(t, out, "Valid")
		assert.Contains(t, out, "other.lan")
		assert.Contains(t, stderr, "prism.lan")
	})
}

func TestCLI_Sub(t *testing.T) {
	paths := setupTestEnvironment(t)
	dir := paths.BaseDir
	const token = "abcdef0123456789secret"
	subURL := "https://sub.example/api?token=" + token

	t.Run("添加", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "sub", "add", "airport", subURL, "--ua", "clash-verge", "--exclude", "rules,info")
		require.NoError(t, err)
		assert.Contains(t, out, "已保存訂閱 airport")

		raw, err := os.ReadFile(paths.ConfigFile)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), token)
	})

	t.Run("列出時脫敏", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "sub", "list")
		require.NoError(t, err)
		assert.Contains(t, out, "airport")
		assert.Contains(t, out, "sub.example")
		assert.NotContains(t, out, token)
		assert.Contains(t, out, "proxies,groups,providers,proxy-providers")
	})

	t.Run("未知的合併部分", func(t *testing.T) {
		_, _, err := runCLI(t, "--dir", dir, "sub", "add", "x", subURL, "--exclude", "bogus")
		assert.Error(t, err)
	})

	t.Run("無效鏈接", func(t *testing.T) {
		_, _, err := runCLI(t, "--dir", dir, "sub", "add", "x", "not a url")
		assert.Error(t, err)
	})

	t.Run("刪除", func(t *testing.T) {
		out, _, err := runCLI(t, "--dir", dir, "sub", "rm", "airport")
		require.NoError(t, err)
		assert.Contains(t, out, "已刪除訂閱 airport")

		_, _, err = runCLI(t, "--dir", dir, "sub", "rm", "airport")
		assert.Error(t, err)
	})
}

func TestIncludeFlags(t *testing.T) {
	inc, err := includeFlags([]string{"proxies", " info"})
	require.NoError(t, err)
	assert.False(t, inc.Proxies)
	assert.False(t, inc.Info)
	assert.True(t, inc.Rules)
	assert.True(t, inc.ProxyGroups)
}
