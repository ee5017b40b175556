// Package crypto 提供配置敏感字段的對稱加密，以及穩定的短哈希。
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// EncryptedPrefix 加密值的前綴標識
	EncryptedPrefix = "enc:"
	// KeySize AES-256 密鑰長度
	KeySize = 32
	// MasterKeyEnv 優先於密鑰文件的環境變量
	MasterKeyEnv = "PRISM_CLASH_MASTER_KEY"
)

// Encryptor AES-256-GCM 加密器
type Encryptor struct {
	key []byte
}

// NewEncryptor 創建加密器
// 密鑰來源依次為環境變量、keyPath 文件；都不存在時生成新密鑰並寫入 keyPath
func NewEncryptor(keyPath string) (*Encryptor, error) {
	if keyHex := os.Getenv(MasterKeyEnv); keyHex != "" {
		key, err := decodeKey(keyHex)
		if err != nil {
			return nil, fmt.Errorf("環境變量 %s 格式錯誤: %w", MasterKeyEnv, err)
		}
		return &Encryptor{key: key}, nil
	}

	content, err := os.ReadFile(keyPath)
	switch {
	case err == nil:
		key, err := decodeKey(strings.TrimSpace(string(content)))
		if err != nil {
			return nil, fmt.Errorf("密鑰文件內容無效: %w", err)
		}
		return &Encryptor{key: key}, nil
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("無法讀取密鑰文件: %w", err)
	}

	// 首次運行
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("生成隨機密鑰失敗: %w", err)
	}
	if err := atomicWriteKey(keyPath, key); err != nil {
		return nil, fmt.Errorf("保存新密鑰失敗: %w", err)
	}
	return &Encryptor{key: key}, nil
}

// atomicWriteKey 原子寫入密鑰文件 (600)
func atomicWriteKey(filename string, key []byte) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmpFile, err := os.CreateTemp(dir, ".masterkey.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.WriteString(hex.EncodeToString(key)); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	tmpFile.Close()

	if err := os.Chmod(tmpFile.Name(), 0600); err != nil {
		return err
	}
	return os.Rename(tmpFile.Name(), filename)
}

func decodeKey(input string) ([]byte, error) {
	if key, err := hex.DecodeString(input); err == nil && len(key) == KeySize {
		return key, nil
	}
	if key, err := base64.StdEncoding.DecodeString(input); err == nil && len(key) == KeySize {
		return key, nil
	}
	return nil, errors.New("無效的密鑰格式或長度")
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt 加密，空字符串原樣返回
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	gcm, err := e.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.RawURLEncoding.EncodeToString(ciphertext), nil
}

// Decrypt 解密
func (e *Encryptor) Decrypt(encrypted string) (string, error) {
	if !IsEncrypted(encrypted) {
		return "", errors.New("數據未加密")
	}

	data, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(encrypted, EncryptedPrefix))
	if err != nil {
		return "", err
	}

	gcm, err := e.aead()
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("密文數據過短")
	}

	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("解密失敗: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted 檢查字符串是否已加密
func IsEncrypted(text string) bool {
	return strings.HasPrefix(text, EncryptedPrefix)
}
