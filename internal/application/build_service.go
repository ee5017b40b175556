package application

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/metrics"
)

// Document 合成並渲染好的配置
type Document struct {
	Body   []byte
	Usage  *state.Usage
	Report *RenderReport
	Cycles [][]string
}

// BuildService 對外提供合成後的配置和規則集
// 同一請求方的並發請求共享一次合成
type BuildService struct {
	repo     state.Repository
	sources  *SourceStore
	composer *Composer
	logger   *zap.Logger
	group    singleflight.Group
	namesMu  sync.Mutex
}

// NewBuildService 創建合成服務
func NewBuildService(repo state.Repository, sources *SourceStore, composer *Composer, logger *zap.Logger) *BuildService {
	return &BuildService{repo: repo, sources: sources, composer: composer, logger: logger}
}

// Document 合成配置
func (s *BuildService) Document(ctx context.Context, requester string) (*Document, error) {
	v, err, shared := s.group.Do("config\x00"+requester, func() (any, error) {
		// 共享的合成不隨首個請求方斷開而取消
		return s.build(context.WithoutCancel(ctx), requester)
	})
	if err != nil {
		metrics.BuildsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if shared {
		s.logger.Debug("共享並發合成結果", zap.String("requester", requester))
	}
	return v.(*Document), nil
}

func (s *BuildService) build(ctx context.Context, requester string) (*Document, error) {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加載狀態失敗: %w", err)
	}

	src := s.sources.Get()
	res := s.composer.Build(Snapshot{State: st.Clone(), Sources: src}, requester)

	if res.NamesChanged {
		if err := s.saveNames(ctx, res.RulesetNames); err != nil {
			// 映射可以由導出接口重新計算，保存失敗不影響本次輸出
			s.logger.Warn("保存規則集名稱映射失敗", zap.Error(err))
		}
	}

	body, report, err := Render(res.Config, s.logger)
	if err != nil {
		return nil, err
	}

	doc := &Document{Body: body, Report: report, Cycles: res.Cycles}
	if u, ok := AggregateUsage(src); ok {
		doc.Usage = &u
	}
	return doc, nil
}

func (s *BuildService) saveNames(ctx context.Context, names map[string]string) error {
	s.namesMu.Lock()
	defer s.namesMu.Unlock()

	st, err := s.repo.Load(ctx)
	if err != nil {
		return err
	}
	st.RulesetNames = names
	return s.repo.Save(ctx, st, state.KeyRulesetNames)
}

// Ruleset 導出指定短哈希的規則集
func (s *BuildService) Ruleset(ctx context.Context, hash, requester string) ([]byte, error) {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加載狀態失敗: %w", err)
	}
	return ExportRuleset(st, hash, requester)
}

// Usage 當前訂閱流量匯總
func (s *BuildService) Usage() (state.Usage, bool) {
	return AggregateUsage(s.sources.Get())
}
