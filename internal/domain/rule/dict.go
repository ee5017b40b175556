package rule

import (
	"strings"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// Dict 規則的字典形式，用於 API 導入導出
type Dict struct {
	Priority         int      `json:"priority" yaml:"priority"`
	Type             string   `json:"type" yaml:"type"`
	Payload          string   `json:"payload,omitempty" yaml:"payload,omitempty"`
	Action           string   `json:"action" yaml:"action"`
	AdditionalParams string   `json:"additional_params,omitempty" yaml:"additional_params,omitempty"`
	Conditions       []string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Condition        string   `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// ParseDict 從字典構造規則。Priority 字段不參與解析。
func ParseDict(d Dict) (Rule, error) {
	kind, known := ParseKind(d.Type)
	if !known {
		return nil, apperrors.Parse("未知的規則類型 %q", d.Type)
	}

	action := Action(strings.TrimSpace(d.Action))
	if action == ActionNone {
		return nil, apperrors.Parse("%s 規則缺少出站", kind)
	}

	switch {
	case kind.IsLogic():
		if len(d.Conditions) == 0 {
			return nil, apperrors.Parse("%s 規則的條件列表為空", kind)
		}
		conds := make([]Rule, 0, len(d.Conditions))
		for _, c := range d.Conditions {
			cond, err := parseCondition(stripParens(c))
			if err != nil {
				return nil, err
			}
			conds = append(conds, cond)
		}
		return LogicRule{Op: kind, Conditions: conds, Action: action}, nil

	case kind == KindSubRule:
		if strings.TrimSpace(d.Condition) == "" {
			return nil, apperrors.Parse("SUB-RULE 缺少條件")
		}
		cond, err := parseCondition(stripParens(d.Condition))
		if err != nil {
			return nil, err
		}
		return SubRule{Condition: cond, Action: action}, nil

	case kind == KindMatch:
		return MatchRule{Action: action}, nil
	}

	payload := strings.TrimSpace(d.Payload)
	if payload == "" {
		return nil, apperrors.Parse("%s 規則缺少 payload", kind)
	}
	return SimpleRule{
		Kind:    kind,
		Payload: payload,
		Action:  action,
		Param:   strings.TrimSpace(d.AdditionalParams),
	}, nil
}

// ToDict 將規則轉為字典形式，Priority 由調用方填寫
func ToDict(r Rule) Dict {
	d := Dict{Type: string(r.Type()), Action: string(r.Target())}

	switch v := r.(type) {
	case SimpleRule:
		d.Payload = v.Payload
		d.AdditionalParams = v.Param
	case LogicRule:
		d.Conditions = make([]string, 0, len(v.Conditions))
		for _, c := range v.Conditions {
			d.Conditions = append(d.Conditions, c.Expression())
		}
	case SubRule:
		d.Condition = v.Condition.Expression()
	}
	return d
}

// stripParens 條件允許帶一層外括號
func stripParens(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && balanced(s[1:len(s)-1]) {
		return s[1 : len(s)-1]
	}
	return s
}
