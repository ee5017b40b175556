// Package config 基於 YAML 文件的配置倉庫。
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	domainConfig "github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/pkg/crypto"
)

// FileRepository 基於文件的配置倉庫
// 按修改時間緩存已解密的配置；磁盤上的訂閱地址和接口令牌是加密的
type FileRepository struct {
	filePath     string
	mu           sync.RWMutex
	fileMu       sync.Mutex // 文件 I/O
	encryptor    *crypto.Encryptor
	logger       *zap.Logger
	cachedConfig *domainConfig.Config
	lastModTime  time.Time
}

// NewFileRepository 創建倉庫，encryptor 為 nil 時明文保存
func NewFileRepository(path string, encryptor *crypto.Encryptor, logger *zap.Logger) *FileRepository {
	return &FileRepository{
		filePath:  path,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Path 配置文件路徑
func (r *FileRepository) Path() string {
	return r.filePath
}

// cached 緩存仍然有效時返回副本
func (r *FileRepository) cached(stat os.FileInfo) *domainConfig.Config {
	if r.cachedConfig != nil && !stat.ModTime().After(r.lastModTime) {
		return r.cachedConfig.DeepCopy()
	}
	return nil
}

// Load 加載配置，文件不存在時返回默認配置
func (r *FileRepository) Load(ctx context.Context) (*domainConfig.Config, error) {
	r.mu.RLock()
	stat, err := os.Stat(r.filePath)
	if os.IsNotExist(err) {
		r.mu.RUnlock()
		r.logger.Info("配置文件不存在，使用默認配置", zap.String("path", r.filePath))
		return domainConfig.DefaultConfig(), nil
	}
	if err != nil {
		r.mu.RUnlock()
		return nil, fmt.Errorf("檢查配置文件狀態失敗: %w", err)
	}
	if cfg := r.cached(stat); cfg != nil {
		r.mu.RUnlock()
		return cfg, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// 雙重檢查：等鎖期間可能已被其他協程加載
	stat, err = os.Stat(r.filePath)
	if os.IsNotExist(err) {
		return domainConfig.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("檢查配置文件狀態失敗: %w", err)
	}
	if cfg := r.cached(stat); cfg != nil {
		return cfg, nil
	}

	r.fileMu.Lock()
	content, err := os.ReadFile(r.filePath)
	r.fileMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("讀取配置文件失敗: %w", err)
	}

	cfg := &domainConfig.Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件格式失敗: %w", err)
	}
	// v1 配置由遷移器處理，這裡不填默認值以免掩蓋版本號
	if cfg.Version >= domainConfig.ConfigVersionLatest {
		cfg.FillDefaults()
	}

	if err := cfg.DecryptSensitiveFields(r.encryptor); err != nil {
		r.logger.Error("配置解密失敗，主密鑰可能已變更", zap.Error(err))
		return nil, fmt.Errorf("解密敏感配置失敗: %w", err)
	}

	r.cachedConfig = cfg.DeepCopy()
	r.lastModTime = stat.ModTime()

	r.logger.Info("配置文件已從磁盤加載",
		zap.String("path", r.filePath),
		zap.Int("subscriptions", len(cfg.Subscriptions)),
	)
	return cfg, nil
}

// Save 加密敏感字段後原子寫入
func (r *FileRepository) Save(ctx context.Context, cfg *domainConfig.Config) error {
	if cfg == nil {
		return fmt.Errorf("配置對象為空")
	}

	r.fileMu.Lock()
	defer r.fileMu.Unlock()

	onDisk := cfg.DeepCopy()
	if err := onDisk.EncryptSensitiveFields(r.encryptor); err != nil {
		return fmt.Errorf("加密配置失敗: %w", err)
	}

	data, err := yaml.Marshal(onDisk)
	if err != nil {
		return fmt.Errorf("序列化配置失敗: %w", err)
	}

	if err := WriteFileAtomic(r.filePath, data, 0600); err != nil {
		return err
	}

	r.mu.Lock()
	r.cachedConfig = cfg.DeepCopy()
	if stat, err := os.Stat(r.filePath); err == nil {
		r.lastModTime = stat.ModTime()
	}
	r.mu.Unlock()
	return nil
}

// WriteFileAtomic 臨時文件 -> 寫入 -> Sync -> Rename
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("創建目錄失敗: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("創建臨時文件失敗: %w", err)
	}
	tmpName := tmpFile.Name()

	ok := false
	defer func() {
		if !ok {
			tmpFile.Close()
			os.Remove(tmpName)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("寫入數據失敗: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("同步磁盤失敗: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("關閉臨時文件失敗: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("設置文件權限失敗: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("替換文件失敗: %w", err)
	}

	ok = true
	return nil
}
