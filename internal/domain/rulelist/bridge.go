package rulelist

import (
	"strings"

	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
)

// BridgeResult SyncBridge 的變更統計
type BridgeResult struct {
	Added   []rule.Action
	Removed int
}

// Actions 返回規則集中未禁用規則的出站，按首次出現順序去重
func Actions(ruleset *Manager) []rule.Action {
	seen := make(map[rule.Action]struct{})
	var out []rule.Action
	for _, it := range ruleset.All() {
		if it.Metadata.Disabled {
			continue
		}
		a := it.Rule.Target()
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out
}

// IsBridge 是否為 SyncBridge 生成的 RULE-SET 規則
func IsBridge(it Item, prefix string) bool {
	if it.Metadata.Source != resource.SourceAuto || it.Rule.Type() != rule.KindRuleSet {
		return false
	}
	sr, ok := it.Rule.(rule.SimpleRule)
	return ok && strings.HasPrefix(sr.Payload, prefix)
}

// BridgeRule 指向 <prefix><action> 提供者的 RULE-SET 規則
func BridgeRule(action rule.Action, prefix string) rule.SimpleRule {
	return rule.SimpleRule{
		Kind:    rule.KindRuleSet,
		Payload: prefix + string(action),
		Action:  action,
	}
}

// SyncBridge 讓 top 中每個規則集出站恰好對應一條自動 RULE-SET 規則
//
// 新增的橋接規則插入到第一條 MATCH 之前（沒有 MATCH 時追加到末尾）；
// 出站已不存在或重複的自動橋接規則被刪除；非自動來源的規則從不改動。
func SyncBridge(top, ruleset *Manager, prefix string) BridgeResult {
	var res BridgeResult

	want := make(map[string]rule.Action)
	actions := Actions(ruleset)
	for _, a := range actions {
		want[prefix+string(a)] = a
	}

	have := make(map[string]struct{})
	res.Removed = top.RemoveWhere(func(it Item) bool {
		if !IsBridge(it, prefix) {
			return false
		}
		sr := it.Rule.(rule.SimpleRule)
		a, ok := want[sr.Payload]
		if !ok || sr.Action != a {
			return true
		}
		if _, dup := have[sr.Payload]; dup {
			return true
		}
		have[sr.Payload] = struct{}{}
		return false
	})

	insertAt := top.Len()
	if idx := top.FilterByType(rule.KindMatch); len(idx) > 0 {
		insertAt = idx[0].Priority
	}

	for _, a := range actions {
		if _, ok := have[prefix+string(a)]; ok {
			continue
		}
		item := NewItem(BridgeRule(a, prefix), resource.SourceAuto)
		// insertAt 始終在 [0, Len()] 內
		_ = top.InsertAt(item, insertAt)
		insertAt++
		res.Added = append(res.Added, a)
	}

	return res
}

// Bridges 返回 top 中的自動橋接規則
func Bridges(top *Manager, prefix string) []Item {
	var out []Item
	for _, it := range top.All() {
		if IsBridge(it, prefix) {
			out = append(out, it)
		}
	}
	return out
}
