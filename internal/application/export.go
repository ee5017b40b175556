package application

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// rulesetDocument classical 規則集提供者的文檔格式
type rulesetDocument struct {
	Payload []string `yaml:"payload"`
}

// ResolveRuleset 由提供者短哈希找到出站名稱
// 優先查映射；映射尚未持久化時按規則集中的出站重新計算
func ResolveRuleset(st *state.State, hash string) (rule.Action, error) {
	if action, ok := st.RulesetNames[hash]; ok {
		return rule.Action(action), nil
	}
	for _, a := range rulelist.Actions(st.RulesetRules) {
		if crypto.ShortHash(string(a), ProviderHashLen) == hash {
			return a, nil
		}
	}
	return "", apperrors.NotFound(hash)
}

// ExportRuleset 導出某個出站的規則集，條件不帶出站
// MATCH 和 SUB-RULE 在 classical 規則集中沒有意義，跳過
func ExportRuleset(st *state.State, hash, requester string) ([]byte, error) {
	action, err := ResolveRuleset(st, hash)
	if err != nil {
		return nil, err
	}

	doc := rulesetDocument{Payload: []string{}}
	for item := range st.RulesetRules.Available(requester) {
		if item.Rule.Target() != action {
			continue
		}
		switch item.Rule.Type() {
		case rule.KindMatch, rule.KindSubRule:
			continue
		}
		doc.Payload = append(doc.Payload, item.Rule.Expression())
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("序列化規則集失敗: %w", err)
	}
	return data, nil
}
