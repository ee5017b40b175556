package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 測試默認配置
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "/var/log/prism-clash/prism-clash.log", cfg.OutputPath)
	assert.Equal(t, 10, cfg.MaxSize)
	assert.Equal(t, 5, cfg.MaxBackups)
	assert.Equal(t, 30, cfg.MaxAge)
	assert.True(t, cfg.Compress)
	assert.True(t, cfg.Console)
}

// TestNew 測試自定義配置創建 logger
func TestNew(t *testing.T) {
	t.Run("寫文件", func(t *testing.T) {
		logPath := filepath.Join(t.TempDir(), "test.log")

		logger, err := New(Config{
			Level:      "debug",
			OutputPath: logPath,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     7,
		})
		require.NoError(t, err)
		logger.Info("test message")
		_ = logger.Sync()

		_, err = os.Stat(logPath)
		assert.NoError(t, err, "日誌文件應該被創建")
	})

	t.Run("無效級別", func(t *testing.T) {
		logger, err := New(Config{Level: "invalid", Console: true})
		assert.Error(t, err)
		assert.Nil(t, logger)
	})

	t.Run("僅控制台", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		logger.Info("console only message")
	})
}

func TestFields(t *testing.T) {
	f := URL("url", "https://example.com/sub?token=abcdef123456")
	assert.Equal(t, "url", f.Key)
	assert.NotContains(t, f.String, "abcdef123456")

	f = SanitizedString("name", "abcdefghijkl")
	assert.Equal(t, "abcd***ijkl", f.String)
}
