package rule

import (
	"strings"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// ParseLine 解析一行規則文本
//
// 支持的格式：
//
//	KIND,PAYLOAD,ACTION[,PARAM]
//	AND|OR|NOT,(cond),(cond)...,ACTION
//	SUB-RULE,(cond),ACTION
//	MATCH,ACTION
//
// 條件列表整體再包一層括號的寫法 (AND,((DOMAIN,a),(NETWORK,UDP)),DIRECT) 也能解析，
// 序列化時統一輸出不帶外層括號的規範形式。
func ParseLine(line string) (Rule, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, apperrors.Parse("規則為空")
	}

	head, rest, ok := strings.Cut(line, ",")
	if !ok {
		return nil, apperrors.Parse("規則 %q 缺少字段", line)
	}

	kind, known := ParseKind(head)
	if !known {
		return nil, apperrors.Parse("未知的規則類型 %q", strings.TrimSpace(head))
	}

	switch {
	case kind.IsLogic():
		return parseLogic(kind, rest, true)
	case kind == KindSubRule:
		return parseSubRule(rest)
	case kind == KindMatch:
		action := strings.TrimSpace(rest)
		if action == "" || strings.Contains(action, ",") {
			return nil, apperrors.Parse("MATCH 規則格式錯誤: %q", line)
		}
		return MatchRule{Action: Action(action)}, nil
	default:
		return parseSimple(kind, rest, true)
	}
}

// parseSimple 解析 KIND 之後的部分。作為條件時沒有出站字段。
func parseSimple(kind Kind, rest string, withAction bool) (Rule, error) {
	n := 2
	if withAction {
		n = 3
	}
	fields := strings.SplitN(rest, ",", n)
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	r := SimpleRule{Kind: kind, Payload: fields[0]}
	if r.Payload == "" {
		return nil, apperrors.Parse("%s 規則缺少 payload", kind)
	}

	if withAction {
		if len(fields) < 2 || fields[1] == "" {
			return nil, apperrors.Parse("%s,%s 缺少出站", kind, r.Payload)
		}
		r.Action = Action(fields[1])
		if len(fields) == 3 {
			r.Param = fields[2]
		}
	} else if len(fields) == 2 {
		r.Param = fields[1]
	}
	if strings.Contains(r.Param, ",") {
		return nil, apperrors.Parse("%s,%s 字段過多: %q", kind, r.Payload, r.Param)
	}

	return r, nil
}

// parseLogic 解析 AND / OR / NOT 之後的部分
func parseLogic(op Kind, rest string, withAction bool) (Rule, error) {
	condPart := rest
	action := ActionNone

	if withAction {
		idx, err := lastTopLevelComma(rest)
		if err != nil {
			return nil, err
		}
		if idx < 0 {
			return nil, apperrors.Parse("%s 規則缺少出站", op)
		}
		condPart = rest[:idx]
		action = Action(strings.TrimSpace(rest[idx+1:]))
		if action == ActionNone {
			return nil, apperrors.Parse("%s 規則出站為空", op)
		}
	}

	groups, err := conditionGroups(condPart)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		return nil, apperrors.Parse("%s 規則的條件列表為空", op)
	}

	conds := make([]Rule, 0, len(groups))
	for _, g := range groups {
		c, err := parseCondition(g)
		if err != nil {
			return nil, err
		}
		conds = append(conds, c)
	}

	return LogicRule{Op: op, Conditions: conds, Action: action}, nil
}

func parseSubRule(rest string) (Rule, error) {
	idx, err := lastTopLevelComma(rest)
	if err != nil {
		return nil, err
	}
	if idx < 0 {
		return nil, apperrors.Parse("SUB-RULE 缺少出站")
	}

	action := Action(strings.TrimSpace(rest[idx+1:]))
	if action == ActionNone {
		return nil, apperrors.Parse("SUB-RULE 出站為空")
	}

	groups, err := conditionGroups(rest[:idx])
	if err != nil {
		return nil, err
	}
	if len(groups) != 1 {
		return nil, apperrors.Parse("SUB-RULE 需要恰好一個條件，實際 %d 個", len(groups))
	}

	cond, err := parseCondition(groups[0])
	if err != nil {
		return nil, err
	}
	return SubRule{Condition: cond, Action: action}, nil
}

// parseCondition 解析邏輯規則內部的一個條件（不含外層括號）
func parseCondition(s string) (Rule, error) {
	s = strings.TrimSpace(s)
	head, rest, ok := strings.Cut(s, ",")
	if !ok {
		return nil, apperrors.Parse("條件 %q 缺少字段", s)
	}

	kind, known := ParseKind(head)
	if !known {
		return nil, apperrors.Parse("未知的條件類型 %q", strings.TrimSpace(head))
	}

	switch {
	case kind.IsLogic():
		return parseLogic(kind, rest, false)
	case kind.IsSimple():
		return parseSimple(kind, rest, false)
	default:
		return nil, apperrors.Parse("%s 不能作為條件使用", kind)
	}
}

// lastTopLevelComma 返回括號深度為 0 的最後一個逗號位置
func lastTopLevelComma(s string) (int, error) {
	depth, last := 0, -1
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return -1, apperrors.Parse("括號不成對: %q", s)
			}
		case ',':
			if depth == 0 {
				last = i
			}
		}
	}
	if depth != 0 {
		return -1, apperrors.Parse("括號不成對: %q", s)
	}
	return last, nil
}

func balanced(s string) bool {
	depth := 0
	for _, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// conditionGroups 提取深度為 1 的括號組，返回各組去掉括號後的內容
func conditionGroups(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if !balanced(s) {
		return nil, apperrors.Parse("條件列表括號不成對: %q", s)
	}
	s = unwrapList(s)

	var groups []string
	depth, start := 0, -1
	for i, ch := range s {
		switch ch {
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth == 0 {
				groups = append(groups, s[start+1:i])
			}
		case ',', ' ', '\t':
		default:
			if depth == 0 {
				return nil, apperrors.Parse("條件必須用括號包裹: %q", s)
			}
		}
	}
	return groups, nil
}

// unwrapList 去掉包住整個條件列表的那一層括號
func unwrapList(s string) string {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return s
	}
	depth := 0
	for i, ch := range s {
		switch ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s
			}
		}
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if strings.HasPrefix(inner, "(") {
		return inner
	}
	return s
}
