package certinfo

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// ExpiringWindow 剩餘有效期低於此值時標記為 Expiring
const ExpiringWindow = 30 * 24 * time.Hour

// 證書狀態
const (
	StatusValid    = "Valid"
	StatusExpiring = "Expiring"
	StatusExpired  = "Expired"
	StatusMissing  = "Missing"
	StatusError    = "Error"
)

// Info API 服務證書的摘要
type Info struct {
	Path       string    `json:"path"`
	Subject    string    `json:"subject"`
	Hosts      []string  `json:"hosts"`
	Issuer     string    `json:"issuer"`
	SelfSigned bool      `json:"self_signed"`
	NotAfter   time.Time `json:"not_after"`
	DaysLeft   int       `json:"days_left"`
	Status     string    `json:"status"`
	ErrorMsg   string    `json:"error,omitempty"`
}

// Inspect 解析證書文件，以 now 計算剩餘天數
//
// 文件不存在返回 StatusMissing，無法解析返回 StatusError，均不報錯
func Inspect(path string, now time.Time) Info {
	info := Info{Path: path, Status: StatusError}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			info.Status = StatusMissing
		}
		info.ErrorMsg = err.Error()
		return info
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		info.ErrorMsg = "invalid PEM format"
		return info
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		info.ErrorMsg = err.Error()
		return info
	}

	info.Subject = cert.Subject.CommonName
	info.Hosts = append(info.Hosts, cert.DNSNames...)
	for _, ip := range cert.IPAddresses {
		info.Hosts = append(info.Hosts, ip.String())
	}
	if len(info.Hosts) == 0 && info.Subject != "" {
		info.Hosts = []string{info.Subject}
	}

	info.Issuer = cert.Issuer.CommonName
	if len(cert.Issuer.Organization) > 0 {
		info.Issuer = cert.Issuer.Organization[0]
	}
	info.SelfSigned = cert.Issuer.String() == cert.Subject.String() && cert.CheckSignatureFrom(cert) == nil

	remaining := cert.NotAfter.Sub(now)
	info.NotAfter = cert.NotAfter
	info.DaysLeft = int(remaining.Hours() / 24)
	switch {
	case remaining <= 0:
		info.Status = StatusExpired
	case remaining < ExpiringWindow:
		info.Status = StatusExpiring
	default:
		info.Status = StatusValid
	}
	return info
}

// Covers 報告證書是否覆蓋 host
func (i Info) Covers(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if ip := net.ParseIP(host); ip != nil {
		for _, h := range i.Hosts {
			if other := net.ParseIP(h); other != nil && other.Equal(ip) {
				return true
			}
		}
		return false
	}
	for _, h := range i.Hosts {
		h = strings.ToLower(h)
		if h == host {
			return true
		}
		if rest, ok := strings.CutPrefix(h, "*."); ok {
			if dot := strings.IndexByte(host, '.'); dot > 0 && host[dot+1:] == rest {
				return true
			}
		}
	}
	return false
}

// Summary 單行描述
func (i Info) Summary() string {
	switch i.Status {
	case StatusMissing, StatusError:
		return fmt.Sprintf("%s (%s)", i.Status, i.ErrorMsg)
	}
	return fmt.Sprintf("%s, %s 到期，剩餘 %d 天", i.Status, i.NotAfter.Format("2006-01-02"), i.DaysLeft)
}
