package appctx

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnvMode 設為 production 時使用系統目錄
const EnvMode = "PRISM_CLASH_ENV"

// Paths 定義應用程序所有的關鍵路徑
type Paths struct {
	BaseDir   string
	ConfigDir string
	DataDir   string
	LogDir    string
	CertDir   string

	ConfigFile   string
	TemplateFile string
	// StoreDir badger 數據目錄
	StoreDir string
	// MasterKeyFile 配置敏感字段的加密密鑰
	MasterKeyFile string
	LogFile       string
}

// NewPaths 解析並創建目錄；baseDir 為空時生產環境用 /etc/prism-clash，否則用 ~/.prism-clash
func NewPaths(baseDir string) (*Paths, error) {
	prod := isProduction()
	if baseDir == "" {
		if prod {
			baseDir = "/etc/prism-clash"
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("無法獲取用戶主目錄: %w", err)
			}
			baseDir = filepath.Join(home, ".prism-clash")
		}
	}

	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("無法解析絕對路徑: %w", err)
	}

	dataDir := filepath.Join(absPath, "data")
	logDir := filepath.Join(absPath, "logs")
	// 只有默認目錄才切換到系統路徑，顯式指定的目錄保持自包含
	if prod && absPath == "/etc/prism-clash" {
		dataDir = "/var/lib/prism-clash"
		logDir = "/var/log/prism-clash"
	}

	paths := &Paths{
		BaseDir:       absPath,
		ConfigDir:     absPath,
		DataDir:       dataDir,
		LogDir:        logDir,
		CertDir:       filepath.Join(absPath, "certs"),
		ConfigFile:    filepath.Join(absPath, "config.yaml"),
		TemplateFile:  filepath.Join(absPath, "template.yaml"),
		StoreDir:      filepath.Join(dataDir, "state"),
		MasterKeyFile: filepath.Join(dataDir, "master.key"),
		LogFile:       filepath.Join(logDir, "prism-clash.log"),
	}

	for _, dir := range []string{paths.ConfigDir, paths.DataDir, paths.LogDir, paths.CertDir} {
		perm := os.FileMode(0700)
		if dir == paths.LogDir {
			perm = 0755
		}
		if err := os.MkdirAll(dir, perm); err != nil {
			return nil, fmt.Errorf("無法創建目錄 %s: %w", dir, err)
		}
	}

	return paths, nil
}

func isProduction() bool {
	return os.Geteuid() == 0 || os.Getenv(EnvMode) == "production"
}
