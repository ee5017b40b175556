package application

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	"github.com/Yat-Muk/prism-clash/internal/pkg/logger"
	"github.com/Yat-Muk/prism-clash/internal/pkg/metrics"
)

// UsageHeader 訂閱流量信息響應頭
const UsageHeader = "Subscription-Userinfo"

// FetchRequest 拉取請求
type FetchRequest struct {
	URL       string
	UserAgent string
}

// FetchResponse 拉取結果
type FetchResponse struct {
	Body   []byte
	Header http.Header
}

// Fetcher 外部數據拉取，超時和取消由 ctx 控制
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// RefreshReport 一次訂閱刷新的結果
type RefreshReport struct {
	Updated        []string
	Failed         map[string]error
	ExpiredPatches []string
}

// RefreshService 拉取外部數據並替換來源快照
// 刷新本身不觸發合成；刷新完成後推進補丁生命週期
type RefreshService struct {
	fetcher   Fetcher
	repo      state.Repository
	sources   *SourceStore
	resources *ResourceService
	cfg       *config.AtomicContainer
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewRefreshService 創建刷新服務
func NewRefreshService(
	fetcher Fetcher,
	repo state.Repository,
	sources *SourceStore,
	resources *ResourceService,
	cfg *config.AtomicContainer,
	log *zap.Logger,
) *RefreshService {
	return &RefreshService{
		fetcher:   fetcher,
		repo:      repo,
		sources:   sources,
		resources: resources,
		cfg:       cfg,
		logger:    logger.Safe(log),
	}
}

// RefreshSubscriptions 並發拉取所有啟用的訂閱
// 單個訂閱失敗時沿用上一次的快照，不影響其他訂閱
func (s *RefreshService) RefreshSubscriptions(ctx context.Context) (*RefreshReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Get()
	previous := make(map[string]state.Subscription)
	for _, sub := range s.sources.Get().Subscriptions {
		previous[sub.Name] = sub
	}

	results := make([]state.Subscription, len(cfg.Subscriptions))
	errs := make([]error, len(cfg.Subscriptions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Refresh.Concurrency)
	for i, sc := range cfg.Subscriptions {
		results[i] = state.Subscription{
			Name:    sc.Name,
			Host:    hostOf(sc.URL),
			Enabled: sc.Enabled,
			Include: sc.Include,
		}
		if !sc.Enabled {
			continue
		}
		g.Go(func() error {
			sub, err := s.fetchSubscription(gctx, sc, cfg.Refresh.Timeout)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = *sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &RefreshReport{Failed: make(map[string]error)}
	for i, err := range errs {
		name := results[i].Name
		if err == nil {
			if results[i].Enabled {
				report.Updated = append(report.Updated, name)
			}
			continue
		}
		report.Failed[name] = err
		s.logger.Warn("訂閱拉取失敗，沿用上次結果", zap.String("subscription", name), zap.Error(err))
		if prev, ok := previous[name]; ok {
			prev.Include = results[i].Include
			prev.Enabled = results[i].Enabled
			results[i] = prev
		}
	}

	s.sources.Update(func(cur *state.Sources) *state.Sources {
		return cur.WithSubscriptions(results)
	})

	expired, err := s.tickPatches(ctx)
	if err != nil {
		return report, err
	}
	report.ExpiredPatches = expired

	s.logger.Info("訂閱刷新完成",
		zap.Int("updated", len(report.Updated)), zap.Int("failed", len(report.Failed)))
	return report, nil
}

func (s *RefreshService) fetchSubscription(ctx context.Context, sc config.SubscriptionConfig, timeout time.Duration) (*state.Subscription, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: sc.URL, UserAgent: sc.UserAgent})
	if err != nil {
		metrics.FetchTotal.WithLabelValues("subscription", "error").Inc()
		return nil, fmt.Errorf("拉取訂閱 %s 失敗: %w", sc.Name, err)
	}

	cfg, skipped, err := clash.Parse(resp.Body)
	if err != nil {
		metrics.FetchTotal.WithLabelValues("subscription", "invalid").Inc()
		return nil, fmt.Errorf("解析訂閱 %s 失敗: %w", sc.Name, err)
	}
	metrics.FetchTotal.WithLabelValues("subscription", "ok").Inc()

	for _, sk := range skipped {
		metrics.SkippedRules.WithLabelValues("subscription").Inc()
		s.logger.Warn("跳過無法解析的訂閱規則",
			zap.String("subscription", sc.Name), zap.String("line", sk.Line), zap.Error(sk.Err))
	}

	sub := &state.Subscription{
		Name:    sc.Name,
		Host:    hostOf(sc.URL),
		Enabled: sc.Enabled,
		Include: sc.Include,
		Config:  cfg,
		Fetched: time.Now(),
	}
	if u, ok := state.ParseUsage(resp.Header.Get(UsageHeader)); ok {
		sub.Usage = u
	}
	return sub, nil
}

// tickPatches 用當前快照中的外部資源名稱推進補丁生命週期
func (s *RefreshService) tickPatches(ctx context.Context) ([]string, error) {
	st, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("加載狀態失敗: %w", err)
	}
	src := s.sources.Get()

	expired, err := s.resources.Proxies.TickPatches(ctx, s.resources.Proxies.ExternalNames(st, src))
	if err != nil {
		return nil, err
	}
	groups, err := s.resources.ProxyGroups.TickPatches(ctx, s.resources.ProxyGroups.ExternalNames(st, src))
	if err != nil {
		return nil, err
	}
	return append(expired, groups...), nil
}

// ACL4SSREntry GitHub contents 接口返回的文件項
type ACL4SSREntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RefreshACL4SSR 拉取 ACL4SSR 規則集列表並生成對應的提供者
func (s *RefreshService) RefreshACL4SSR(ctx context.Context) (int, error) {
	cfg := s.cfg.Get()
	if !cfg.ACL4SSR.Enabled {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Refresh.Timeout)
	defer cancel()

	resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: cfg.ACL4SSR.ListURL})
	if err != nil {
		metrics.FetchTotal.WithLabelValues("acl4ssr", "error").Inc()
		return 0, fmt.Errorf("拉取 ACL4SSR 列表失敗: %w", err)
	}

	var entries []ACL4SSREntry
	if err := json.Unmarshal(resp.Body, &entries); err != nil {
		metrics.FetchTotal.WithLabelValues("acl4ssr", "invalid").Inc()
		return 0, fmt.Errorf("解析 ACL4SSR 列表失敗: %w", err)
	}
	metrics.FetchTotal.WithLabelValues("acl4ssr", "ok").Inc()

	providers := ACL4SSRProviders(entries, cfg.ACL4SSR, cfg.Compose.ProviderInterval)
	s.sources.Update(func(cur *state.Sources) *state.Sources {
		return cur.WithACL4SSR(providers)
	})
	s.logger.Info("ACL4SSR 規則集已更新", zap.Int("providers", len(providers)))
	return len(providers), nil
}

// ACL4SSRProviders 把列表中的 .list / .yaml 文件轉成提供者，名稱為前綴加文件名主幹
func ACL4SSRProviders(entries []ACL4SSREntry, ac config.ACL4SSRConfig, interval int) map[string]clash.RuleProvider {
	base := strings.TrimRight(ac.RawBase, "/")
	out := make(map[string]clash.RuleProvider)
	for _, e := range entries {
		if e.Type != "" && e.Type != "file" {
			continue
		}
		ext := path.Ext(e.Name)
		format := ""
		switch ext {
		case ".list":
			format = "text"
		case ".yaml", ".yml":
			format = "yaml"
		default:
			continue
		}
		p := clash.RuleProvider{
			"type":     "http",
			"behavior": "classical",
			"format":   format,
			"url":      base + "/" + url.PathEscape(e.Name),
			"path":     "./acl4ssr/" + e.Name,
		}
		if interval > 0 {
			p["interval"] = interval
		}
		out[ac.Prefix+strings.TrimSuffix(e.Name, ext)] = p
	}
	return out
}

// Refresh 刷新全部外部數據
func (s *RefreshService) Refresh(ctx context.Context) error {
	if _, err := s.RefreshSubscriptions(ctx); err != nil {
		return err
	}
	if _, err := s.RefreshACL4SSR(ctx); err != nil {
		s.logger.Warn("ACL4SSR 刷新失敗", zap.Error(err))
	}
	return nil
}

// Run 立即刷新一次，之後按配置的間隔刷新，直到 ctx 結束
func (s *RefreshService) Run(ctx context.Context) {
	for {
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("刷新失敗", zap.Error(err))
		}

		timer := time.NewTimer(s.cfg.Get().Refresh.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
