// Package validator 校驗用戶提交的資源：代理、策略組、規則集提供者的必要字段，
// 以及 hosts 域名、規則集文件名這類會被寫進配置或路徑的字符串。
package validator

import (
	"errors"
	"net"
	"regexp"
	"strings"
)

// 預編譯正則表達式，避免在熱路徑中重複編譯
var (
	// TLD 驗證：至少 2 個字母
	reTLD = regexp.MustCompile(`^[a-zA-Z]{2,}$`)
	// Label 驗證：字母、數字、連字號
	reLabel = regexp.MustCompile(`^[a-zA-Z0-9\-]+$`)
	// 文件名驗證：允許字母、數字、點、橫線、下劃線
	reFilename = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// ValidateDomain 驗證域名格式
func ValidateDomain(domain string) bool {
	domain = strings.TrimSpace(domain)
	if domain == "" || net.ParseIP(domain) != nil {
		return false
	}
	if !strings.Contains(domain, ".") {
		return false
	}
	if len(domain) > 253 || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}

	labels := strings.Split(domain, ".")
	if !reTLD.MatchString(labels[len(labels)-1]) {
		return false
	}

	// 每個 label 長度 1–63，不能以連字號開頭或結尾
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 || !reLabel.MatchString(label) {
			return false
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
	}
	return true
}

// ValidateHostPattern 驗證 hosts 中的域名，允許 *. 和 +. 通配前綴
func ValidateHostPattern(pattern string) bool {
	pattern = strings.TrimSpace(pattern)
	for _, p := range []string{"*.", "+."} {
		if rest, ok := strings.CutPrefix(pattern, p); ok {
			pattern = rest
			break
		}
	}
	if ValidateDomain(pattern) {
		return true
	}
	// 內網短名稱，例如 router.lan 之外的 localhost
	return pattern != "" && !strings.Contains(pattern, ".") && reLabel.MatchString(pattern)
}

// ValidateFilename 驗證文件名安全性（防止路徑遍歷）
func ValidateFilename(filename string) error {
	filename = strings.TrimSpace(filename)

	if filename == "" {
		return errors.New("文件名不能為空")
	}
	if strings.Contains(filename, "..") {
		return errors.New("文件名不能包含 '..' (路徑遍歷攻擊)")
	}
	if strings.ContainsAny(filename, `/\`) {
		return errors.New("文件名不能包含路徑分隔符")
	}
	if strings.Contains(filename, "\x00") {
		return errors.New("文件名不能包含空字節")
	}
	if len(filename) > 255 {
		return errors.New("文件名過長（最多 255 字符）")
	}
	if !reFilename.MatchString(filename) {
		return errors.New("文件名只能包含字母、數字、點、橫線、下劃線")
	}
	return nil
}
