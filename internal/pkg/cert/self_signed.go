package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/pkg/tlsconfig"
)

const (
	SelfSignedDirMode  os.FileMode = 0700
	SelfSignedCertMode os.FileMode = 0644
	SelfSignedKeyMode  os.FileMode = 0600

	// SelfSignedValidity 自簽名證書有效期
	SelfSignedValidity = 5 * 365 * 24 * time.Hour
)

type SelfSignedGenerator struct {
	log *zap.Logger
}

func NewSelfSignedGenerator(log *zap.Logger) *SelfSignedGenerator {
	return &SelfSignedGenerator{log: log}
}

// EnsureSelfSigned 證書和私鑰都存在時不做任何事，否則為 hosts 生成新的自簽名證書
// hosts 中的 IP 寫入 IPAddresses，其餘寫入 DNSNames；返回是否新生成
func (g *SelfSignedGenerator) EnsureSelfSigned(certPath, keyPath string, hosts []string) (bool, error) {
	if exists(certPath) && exists(keyPath) {
		return false, nil
	}
	if len(hosts) == 0 {
		hosts = []string{"localhost"}
	}

	g.log.Info("生成新的自簽名證書", zap.Strings("hosts", hosts), zap.String("path", certPath))

	for _, dir := range []string{filepath.Dir(certPath), filepath.Dir(keyPath)} {
		if err := os.MkdirAll(dir, SelfSignedDirMode); err != nil {
			return false, fmt.Errorf("創建目錄失敗: %w", err)
		}
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return false, fmt.Errorf("生成私鑰失敗: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return false, fmt.Errorf("生成序列號失敗: %w", err)
	}

	notBefore := time.Now().Add(-time.Hour)
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Prism Clash"}, CommonName: hosts[0]},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(SelfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return false, fmt.Errorf("創建證書失敗: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return false, fmt.Errorf("編碼私鑰失敗: %w", err)
	}

	// 先寫私鑰，證書存在即代表一對完整的文件
	if err := writePEM(keyPath, "EC PRIVATE KEY", keyDER, SelfSignedKeyMode); err != nil {
		return false, fmt.Errorf("寫入私鑰文件失敗: %w", err)
	}
	if err := writePEM(certPath, "CERTIFICATE", der, SelfSignedCertMode); err != nil {
		return false, fmt.Errorf("寫入證書文件失敗: %w", err)
	}

	if err := tlsconfig.ValidateCertChain(certPath, keyPath); err != nil {
		return false, fmt.Errorf("新生成的證書驗證失敗: %w", err)
	}
	return true, nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	// WriteFile 只在創建時使用 perm
	return os.Chmod(path, perm)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
