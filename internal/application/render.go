package application

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
	"github.com/Yat-Muk/prism-clash/internal/pkg/metrics"
)

// globalGroup 運行時內置的全局策略組
const globalGroup = "GLOBAL"

// RenderReport 渲染時的修正記錄
type RenderReport struct {
	DroppedRules     []DroppedRule
	PrunedMembers    map[string][]string
	DuplicateProxies []string
	DuplicateGroups  []string
}

// DroppedRule 因懸空引用被丟棄的規則
type DroppedRule struct {
	Rule string
	Err  error
}

// Render 做序列化前的引用校驗並輸出 YAML
// 只丟棄出問題的單條規則或成員，不會因此拒絕整份配置
func Render(cfg *clash.Config, logger *zap.Logger) ([]byte, *RenderReport, error) {
	out, report := Validate(cfg, logger)
	data, err := out.Marshal()
	if err != nil {
		return nil, report, fmt.Errorf("序列化配置失敗: %w", err)
	}
	return data, report, nil
}

// Validate 返回校驗修正後的副本，輸入不變
func Validate(cfg *clash.Config, logger *zap.Logger) (*clash.Config, *RenderReport) {
	out := cfg.Clone()
	report := &RenderReport{PrunedMembers: make(map[string][]string)}

	out.Proxies, report.DuplicateProxies = dedupe(out.Proxies)
	for _, name := range report.DuplicateProxies {
		metrics.DuplicateResources.WithLabelValues("proxy").Inc()
		logger.Warn("代理重名，保留第一個", zap.String("proxy", name))
	}
	out.ProxyGroups, report.DuplicateGroups = dedupe(out.ProxyGroups)
	for _, name := range report.DuplicateGroups {
		metrics.DuplicateResources.WithLabelValues("proxy_group").Inc()
		logger.Warn("策略組重名，保留第一個", zap.String("group", name))
	}

	proxies := namesOf(out.Proxies)
	groups := namesOf(out.ProxyGroups)

	// 策略組成員只能是內置出站、GLOBAL、已知代理或已知策略組
	for _, g := range out.ProxyGroups {
		if _, ok := g["proxies"]; !ok {
			continue
		}
		var kept, removed []string
		for _, m := range clash.Members(g) {
			_, isProxy := proxies[m]
			_, isGroup := groups[m]
			if isProxy || isGroup || m == globalGroup || rule.Action(m).IsBuiltin() {
				kept = append(kept, m)
				continue
			}
			removed = append(removed, m)
		}
		if len(removed) == 0 {
			continue
		}
		name := clash.Name(g)
		if kept == nil {
			kept = []string{}
		}
		clash.SetMembers(g, kept)
		report.PrunedMembers[name] = removed
		metrics.PrunedMembers.Add(float64(len(removed)))
		logger.Warn("策略組成員不存在，已移除", zap.String("group", name), zap.Strings("removed", removed))
	}

	rules := out.Rules[:0]
	for _, r := range out.Rules {
		if err := checkReferences(r, out, proxies, groups); err != nil {
			report.DroppedRules = append(report.DroppedRules, DroppedRule{Rule: r.String(), Err: err})
			metrics.DroppedRules.WithLabelValues(apperrors.Code(err)).Inc()
			logger.Warn("規則引用不存在，已丟棄", zap.String("rule", r.String()), zap.Error(err))
			continue
		}
		rules = append(rules, r)
	}
	out.Rules = rules

	return out, report
}

// checkReferences 校驗規則的出站和其中所有 RULE-SET 條件
func checkReferences(r rule.Rule, cfg *clash.Config, proxies, groups map[string]struct{}) error {
	if err := checkProviders(r, cfg); err != nil {
		return err
	}

	action := r.Target()
	if r.Type() == rule.KindSubRule {
		if _, ok := cfg.SubRules[string(action)]; !ok {
			return apperrors.Reference("子規則 %s 不存在", action)
		}
		return nil
	}
	if action.IsBuiltin() {
		return nil
	}
	if _, ok := proxies[string(action)]; ok {
		return nil
	}
	if _, ok := groups[string(action)]; ok {
		return nil
	}
	return apperrors.Reference("出站 %s 不存在", action)
}

func checkProviders(r rule.Rule, cfg *clash.Config) error {
	switch v := r.(type) {
	case rule.SimpleRule:
		if v.Kind != rule.KindRuleSet {
			return nil
		}
		if _, ok := cfg.RuleProviders[v.Payload]; !ok {
			return apperrors.Reference("規則集提供者 %s 不存在", v.Payload)
		}
	case rule.LogicRule:
		for _, c := range v.Conditions {
			if err := checkProviders(c, cfg); err != nil {
				return err
			}
		}
	case rule.SubRule:
		return checkProviders(v.Condition, cfg)
	}
	return nil
}

// dedupe 按名稱保留第一個，返回被丟棄的名稱
func dedupe(items []map[string]any) ([]map[string]any, []string) {
	seen := make(map[string]struct{}, len(items))
	var dropped []string
	kept := items[:0]
	for _, it := range items {
		name := clash.Name(it)
		if _, dup := seen[name]; dup {
			dropped = append(dropped, name)
			continue
		}
		seen[name] = struct{}{}
		kept = append(kept, it)
	}
	return kept, dropped
}

func namesOf(items []map[string]any) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, it := range items {
		out[clash.Name(it)] = struct{}{}
	}
	return out
}
