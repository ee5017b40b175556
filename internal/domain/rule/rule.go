package rule

import "strings"

// Rule 一條路由規則。所有實現均為值類型，構造後不可變。
type Rule interface {
	// Type 規則類型，邏輯規則返回其運算符
	Type() Kind
	// Target 出站，邏輯規則的子條件返回 ActionNone
	Target() Action
	// Expression 不含出站的規範形式，例如 DOMAIN-SUFFIX,example.com
	Expression() string
	// String 完整的規範形式
	String() string
}

// SimpleRule 單條件規則
type SimpleRule struct {
	Kind    Kind
	Payload string
	Action  Action
	Param   string
}

func (r SimpleRule) Type() Kind     { return r.Kind }
func (r SimpleRule) Target() Action { return r.Action }

func (r SimpleRule) Expression() string {
	s := string(r.Kind) + "," + r.Payload
	if r.Param != "" {
		s += "," + r.Param
	}
	return s
}

func (r SimpleRule) String() string {
	s := string(r.Kind) + "," + r.Payload + "," + string(r.Action)
	if r.Param != "" {
		s += "," + r.Param
	}
	return s
}

// LogicRule AND / OR / NOT 組合規則
type LogicRule struct {
	Op         Kind
	Conditions []Rule
	Action     Action
}

func (r LogicRule) Type() Kind     { return r.Op }
func (r LogicRule) Target() Action { return r.Action }

func (r LogicRule) Expression() string {
	var b strings.Builder
	b.WriteString(string(r.Op))
	for _, c := range r.Conditions {
		b.WriteString(",(")
		b.WriteString(c.Expression())
		b.WriteString(")")
	}
	return b.String()
}

func (r LogicRule) String() string {
	return r.Expression() + "," + string(r.Action)
}

// SubRule 子規則，命中條件後交給 sub-rules 中同名的規則集
type SubRule struct {
	Condition Rule
	Action    Action
}

func (r SubRule) Type() Kind     { return KindSubRule }
func (r SubRule) Target() Action { return r.Action }

func (r SubRule) Expression() string {
	return string(KindSubRule) + ",(" + r.Condition.Expression() + ")"
}

func (r SubRule) String() string {
	return r.Expression() + "," + string(r.Action)
}

// MatchRule 兜底規則
type MatchRule struct {
	Action Action
}

func (r MatchRule) Type() Kind         { return KindMatch }
func (r MatchRule) Target() Action     { return r.Action }
func (r MatchRule) Expression() string { return string(KindMatch) }
func (r MatchRule) String() string     { return string(KindMatch) + "," + string(r.Action) }

// Equal 按規範形式比較兩條規則
func Equal(a, b Rule) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}

// WithAction 返回替換出站後的副本
func WithAction(r Rule, action Action) Rule {
	switch v := r.(type) {
	case SimpleRule:
		v.Action = action
		return v
	case LogicRule:
		v.Action = action
		return v
	case SubRule:
		v.Action = action
		return v
	case MatchRule:
		v.Action = action
		return v
	}
	return r
}
