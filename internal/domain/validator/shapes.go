package validator

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// proxyShape 代理的最小必要字段，其餘協議字段不校驗
type proxyShape struct {
	Name   string `yaml:"name" validate:"required"`
	Type   string `yaml:"type" validate:"required,oneof=ss ssr vmess vless trojan hysteria hysteria2 tuic wireguard http socks5 snell anytls ssh mieru direct dns"`
	Server string `yaml:"server" validate:"required_unless=Type direct Type dns"`
	Port   int    `yaml:"port" validate:"required_unless=Type direct Type dns,omitempty,min=1,max=65535"`
}

type groupShape struct {
	Name     string   `yaml:"name" validate:"required"`
	Type     string   `yaml:"type" validate:"required,oneof=select url-test fallback load-balance relay"`
	Proxies  []string `yaml:"proxies" validate:"required_without=Use,dive,required"`
	Use      []string `yaml:"use" validate:"dive,required"`
	URL      string   `yaml:"url" validate:"omitempty,url"`
	Interval int      `yaml:"interval" validate:"min=0"`
}

type ruleProviderShape struct {
	Type     string   `yaml:"type" validate:"required,oneof=http file inline"`
	Behavior string   `yaml:"behavior" validate:"required,oneof=domain ipcidr classical"`
	Format   string   `yaml:"format" validate:"omitempty,oneof=yaml text mrs"`
	URL      string   `yaml:"url" validate:"required_if=Type http,omitempty,url"`
	Path     string   `yaml:"path" validate:"required_if=Type file"`
	Payload  []string `yaml:"payload" validate:"required_if=Type inline"`
	Interval int      `yaml:"interval" validate:"min=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func check(kind string, data map[string]any, shape any) error {
	raw, err := yaml.Marshal(data)
	if err != nil {
		return apperrors.Validation("%s 無法序列化: %v", kind, err)
	}
	if err := yaml.Unmarshal(raw, shape); err != nil {
		return apperrors.Validation("%s 字段類型錯誤: %v", kind, err)
	}
	if err := validate.Struct(shape); err != nil {
		return apperrors.Validation("%s 無效: %s", kind, describe(err))
	}
	return nil
}

// describe 把 validator 的錯誤轉成 field(tag) 列表
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s(%s)", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}

// ValidateProxy 校驗代理
func ValidateProxy(p map[string]any) error {
	return check("代理", p, &proxyShape{})
}

// ValidateGroup 校驗策略組
func ValidateGroup(g map[string]any) error {
	return check("策略組", g, &groupShape{})
}

// ValidateRuleProvider 校驗規則集提供者
func ValidateRuleProvider(p map[string]any) error {
	return check("規則集提供者", p, &ruleProviderShape{})
}
