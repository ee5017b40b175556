package state

import (
	"fmt"
	"strconv"
	"strings"
)

// Usage subscription-userinfo 頭中的流量信息
type Usage struct {
	Upload   int64
	Download int64
	Total    int64
	// Expire Unix 秒，0 表示不過期
	Expire int64
}

// ParseUsage 解析 upload=1; download=2; total=3; expire=4
func ParseUsage(header string) (*Usage, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, false
	}

	u := &Usage{}
	found := false
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "upload":
			u.Upload = int64(n)
		case "download":
			u.Download = int64(n)
		case "total":
			u.Total = int64(n)
		case "expire":
			u.Expire = int64(n)
		default:
			continue
		}
		found = true
	}
	return u, found
}

// Add 累加流量；過期時間取最早的非零值
func (u Usage) Add(o Usage) Usage {
	out := Usage{
		Upload:   u.Upload + o.Upload,
		Download: u.Download + o.Download,
		Total:    u.Total + o.Total,
		Expire:   u.Expire,
	}
	if o.Expire > 0 && (out.Expire == 0 || o.Expire < out.Expire) {
		out.Expire = o.Expire
	}
	return out
}

// Header 序列化為響應頭
func (u Usage) Header() string {
	s := fmt.Sprintf("upload=%d; download=%d; total=%d", u.Upload, u.Download, u.Total)
	if u.Expire > 0 {
		s += fmt.Sprintf("; expire=%d", u.Expire)
	}
	return s
}
