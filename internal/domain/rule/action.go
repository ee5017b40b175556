package rule

// Action 規則命中後的出站。內置值之外的任意字符串都視為代理或策略組名稱。
type Action string

const (
	ActionDirect     Action = "DIRECT"
	ActionReject     Action = "REJECT"
	ActionRejectDrop Action = "REJECT-DROP"
	ActionPass       Action = "PASS"
	ActionCompatible Action = "COMPATIBLE"

	// ActionNone 邏輯規則內部條件使用的佔位出站
	ActionNone Action = ""
)

var builtinActions = []Action{ActionDirect, ActionReject, ActionRejectDrop, ActionPass, ActionCompatible}

// BuiltinActions 返回所有內置出站
func BuiltinActions() []Action {
	out := make([]Action, len(builtinActions))
	copy(out, builtinActions)
	return out
}

// IsBuiltin 是否為內置出站
func (a Action) IsBuiltin() bool {
	for _, b := range builtinActions {
		if a == b {
			return true
		}
	}
	return false
}

// IsCustom 是否指向某個代理或策略組
func (a Action) IsCustom() bool {
	return a != ActionNone && !a.IsBuiltin()
}

func (a Action) String() string {
	return string(a)
}
