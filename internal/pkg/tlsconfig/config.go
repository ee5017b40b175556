package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"
)

// SecureConfig 返回符合現代安全標準的 TLS 配置
// 參考 Mozilla Intermediate 兼容性級別，Clash 客戶端普遍支持 TLS 1.2
func SecureConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS13,

		// 只對 TLS 1.2 生效
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
		},

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		NextProtos: []string{"h2", "http/1.1"},
	}
}

// Server 加載並校驗證書，返回服務端配置和證書過期時間
func Server(certPath, keyPath string) (*tls.Config, time.Time, error) {
	cert, leaf, err := loadPair(certPath, keyPath)
	if err != nil {
		return nil, time.Time{}, err
	}
	cfg := SecureConfig()
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, leaf.NotAfter, nil
}

// ValidateCertChain 驗證證書和私鑰是否匹配且有效
func ValidateCertChain(certPath, keyPath string) error {
	_, _, err := loadPair(certPath, keyPath)
	return err
}

func loadPair(certPath, keyPath string) (tls.Certificate, *x509.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("加載密鑰對失敗: %w", err)
	}
	if len(cert.Certificate) == 0 {
		return tls.Certificate{}, nil, errors.New("證書鏈為空")
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return tls.Certificate{}, nil, fmt.Errorf("解析 x509 證書失敗: %w", err)
	}

	switch pub := leaf.PublicKey.(type) {
	case *rsa.PublicKey:
		priv, ok := cert.PrivateKey.(*rsa.PrivateKey)
		if !ok {
			return tls.Certificate{}, nil, errors.New("私鑰類型不匹配 (預期 RSA)")
		}
		if pub.N.Cmp(priv.N) != 0 || pub.E != priv.E {
			return tls.Certificate{}, nil, errors.New("RSA 公鑰與私鑰不匹配")
		}
	case *ecdsa.PublicKey:
		priv, ok := cert.PrivateKey.(*ecdsa.PrivateKey)
		if !ok {
			return tls.Certificate{}, nil, errors.New("私鑰類型不匹配 (預期 ECDSA)")
		}
		if !pub.Equal(&priv.PublicKey) {
			return tls.Certificate{}, nil, errors.New("ECDSA 公鑰與私鑰不匹配")
		}
	default:
		return tls.Certificate{}, nil, fmt.Errorf("不支持的公鑰算法: %T", leaf.PublicKey)
	}

	if time.Now().After(leaf.NotAfter) {
		return tls.Certificate{}, nil, fmt.Errorf("證書已於 %s 過期", leaf.NotAfter.Format(time.DateOnly))
	}
	return cert, leaf, nil
}
