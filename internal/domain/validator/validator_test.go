package validator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		domain string
		want   bool
	}{
		{"example.com", true},
		{"sub.example.co.uk", true},
		{"1.2.3.4", false},
		{"localhost", false},
		{"-bad.com", false},
		{"a..com", false},
		{"example.c0m", false},
	}
	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateDomain(tt.domain))
		})
	}
}

func TestValidateHostPattern(t *testing.T) {
	assert.True(t, ValidateHostPattern("*.example.com"))
	assert.True(t, ValidateHostPattern("+.example.com"))
	assert.True(t, ValidateHostPattern("router"))
	assert.False(t, ValidateHostPattern("*."))
	assert.False(t, ValidateHostPattern("bad domain.com"))
}

func TestValidateFilename(t *testing.T) {
	assert.NoError(t, ValidateFilename("BanAD.list"))
	assert.NoError(t, ValidateFilename("Ruleset_ChinaMedia-1.yaml"))
	assert.Error(t, ValidateFilename(""))
	assert.Error(t, ValidateFilename("../etc/passwd"))
	assert.Error(t, ValidateFilename("a/b"))
	assert.Error(t, ValidateFilename("名字.list"))
}

func TestValidateProxy(t *testing.T) {
	t.Run("有效", func(t *testing.T) {
		assert.NoError(t, ValidateProxy(map[string]any{"name": "hk", "type": "ss", "server": "1.2.3.4", "port": 443, "cipher": "aes-128-gcm"}))
		assert.NoError(t, ValidateProxy(map[string]any{"name": "d", "type": "direct"}))
	})

	invalid := map[string]map[string]any{
		"缺少名稱":  {"type": "ss", "server": "x", "port": 1},
		"未知類型":  {"name": "a", "type": "quic", "server": "x", "port": 1},
		"缺少服務器": {"name": "a", "type": "trojan", "port": 443},
		"端口越界":  {"name": "a", "type": "trojan", "server": "x", "port": 70000},
		"端口類型":  {"name": "a", "type": "trojan", "server": "x", "port": "https"},
	}
	for name, p := range invalid {
		t.Run(name, func(t *testing.T) {
			err := ValidateProxy(p)
			assert.True(t, errors.Is(err, apperrors.ErrValidation), "%v", err)
		})
	}
}

func TestValidateGroup(t *testing.T) {
	assert.NoError(t, ValidateGroup(map[string]any{"name": "G", "type": "select", "proxies": []any{"a", "DIRECT"}}))
	assert.NoError(t, ValidateGroup(map[string]any{"name": "G", "type": "url-test", "use": []any{"provider"}, "url": "https://www.gstatic.com/generate_204", "interval": 300}))

	err := ValidateGroup(map[string]any{"name": "G", "type": "select"})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
	assert.Contains(t, err.Error(), "proxies(required_without)")

	assert.Error(t, ValidateGroup(map[string]any{"name": "G", "type": "smart", "proxies": []any{"a"}}))
}

func TestValidateRuleProvider(t *testing.T) {
	assert.NoError(t, ValidateRuleProvider(map[string]any{"type": "http", "behavior": "classical", "url": "https://example.com/a.yaml", "path": "./a.yaml", "interval": 86400}))
	assert.NoError(t, ValidateRuleProvider(map[string]any{"type": "inline", "behavior": "domain", "payload": []any{"+.example.com"}}))
	assert.Error(t, ValidateRuleProvider(map[string]any{"type": "http", "behavior": "classical"}))
	assert.Error(t, ValidateRuleProvider(map[string]any{"type": "file", "behavior": "domain"}))
	assert.Error(t, ValidateRuleProvider(map[string]any{"type": "http", "behavior": "all", "url": "https://x.com"}))
}
