package rule

import (
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	apperrors "github.com/Yat-Muk/prism-clash/internal/pkg/errors"
)

// Validate 對 payload 做語義檢查。解析成功不依賴此函數，由上層按需調用。
func Validate(r Rule) error {
	switch v := r.(type) {
	case SimpleRule:
		return validateSimple(v)
	case LogicRule:
		if v.Op == KindNot && len(v.Conditions) != 1 {
			return apperrors.Validation("NOT 規則只能有一個條件，實際 %d 個", len(v.Conditions))
		}
		for _, c := range v.Conditions {
			if err := Validate(c); err != nil {
				return err
			}
		}
	case SubRule:
		return Validate(v.Condition)
	}
	return nil
}

func validateSimple(r SimpleRule) error {
	switch {
	case r.Kind == KindNetwork:
		p := strings.ToUpper(r.Payload)
		if p != "TCP" && p != "UDP" {
			return apperrors.Validation("NETWORK 只支持 TCP 或 UDP，得到 %q", r.Payload)
		}
	case r.Kind.isCIDR():
		if !strings.Contains(r.Payload, "/") {
			return apperrors.Validation("%s 需要 CIDR 格式，得到 %q", r.Kind, r.Payload)
		}
	case r.Kind.isRegex():
		if _, err := regexp2.Compile(r.Payload, regexp2.None); err != nil {
			return apperrors.Validation("%s 正則無效: %v", r.Kind, err)
		}
	case r.Kind.isPort():
		if !validPorts(r.Payload) {
			return apperrors.Validation("%s 端口格式無效: %q", r.Kind, r.Payload)
		}
	}
	return nil
}

// validPorts 支持 80、1000-2000 以及用 / 連接的多段
func validPorts(s string) bool {
	for _, part := range strings.Split(s, "/") {
		lo, hi, isRange := strings.Cut(part, "-")
		if !validPort(lo) {
			return false
		}
		if isRange {
			if !validPort(hi) {
				return false
			}
			a, _ := strconv.Atoi(strings.TrimSpace(lo))
			b, _ := strconv.Atoi(strings.TrimSpace(hi))
			if a > b {
				return false
			}
		}
	}
	return true
}

func validPort(s string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil && n >= 0 && n <= 65535
}
