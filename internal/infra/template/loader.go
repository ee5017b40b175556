// Package template 加載並監視模板配置文件。
package template

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	"github.com/Yat-Muk/prism-clash/internal/pkg/errors"
	"github.com/Yat-Muk/prism-clash/internal/pkg/metrics"
)

// Load 讀取並解析模板
// 文件不存在或 YAML 不合法時返回 ErrTemplate；單條規則解析失敗只記錄並跳過
func Load(path string, logger *zap.Logger) (*clash.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", errors.ErrTemplate, err), errors.CodeTemplate, "讀取模板失敗")
	}

	cfg, skipped, err := clash.Parse(data)
	if err != nil {
		return nil, errors.Wrap(fmt.Errorf("%w: %v", errors.ErrTemplate, err), errors.CodeTemplate, "解析模板失敗")
	}

	for _, s := range skipped {
		logger.Warn("模板規則無法解析，已跳過",
			zap.String("line", s.Line),
			zap.Error(s.Err),
		)
	}
	if len(skipped) > 0 {
		metrics.SkippedRules.WithLabelValues("template").Add(float64(len(skipped)))
	}

	logger.Info("模板已加載",
		zap.String("path", path),
		zap.Int("proxies", len(cfg.Proxies)),
		zap.Int("groups", len(cfg.ProxyGroups)),
		zap.Int("rules", len(cfg.Rules)),
	)
	return cfg, nil
}
