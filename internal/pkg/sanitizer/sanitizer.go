// Package sanitizer 對日誌中的敏感信息脫敏。
// 訂閱鏈接通常在查詢參數或路徑中攜帶令牌，是這裡主要的處理對象。
package sanitizer

import (
	"net/url"
	"regexp"
	"strings"
)

// 敏感查詢參數關鍵詞
var sensitiveKeywords = []string{
	"token", "key", "secret", "password", "passwd", "auth", "sign", "uuid", "sid",
}

var (
	// 長度 >= 16 的字母數字串，視為路徑中的令牌
	tokenSegment = regexp.MustCompile(`^[A-Za-z0-9_-]{16,}$`)
	// 文本中出現的鏈接
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// URL 脫敏單個鏈接：用戶密碼、敏感參數值和疑似令牌的路徑段
// 無法解析時整體按字符串脫敏
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return String(raw, 8, 0)
	}

	if u.User != nil {
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		for k, vs := range q {
			if !isSensitive(k) {
				continue
			}
			for i := range vs {
				vs[i] = String(vs[i], 2, 2)
			}
			q[k] = vs
		}
		u.RawQuery = q.Encode()
	}

	segs := strings.Split(u.Path, "/")
	for i, s := range segs {
		if tokenSegment.MatchString(s) {
			segs[i] = String(s, 4, 4)
		}
	}
	u.Path = strings.Join(segs, "/")
	u.RawPath = ""

	// Encode 會轉義 *，替換回來便於閱讀
	return strings.ReplaceAll(u.String(), "%2A%2A%2A", "***")
}

// Text 脫敏文本中出現的所有鏈接，用於錯誤信息
func Text(s string) string {
	if !strings.Contains(s, "://") {
		return s
	}
	return urlPattern.ReplaceAllStringFunc(s, URL)
}

func isSensitive(key string) bool {
	k := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(k, kw) {
			return true
		}
	}
	return false
}

// String 通用字符串脫敏（保留首尾）
func String(s string, start, end int) string {
	if len(s) <= start+end {
		return "***"
	}
	return s[:start] + "***" + s[len(s)-end:]
}

// Password 密碼全脫敏
func Password(s string) string {
	if s == "" {
		return ""
	}
	return "***MASKED***"
}
