// Package fetcher 通過 HTTP 拉取訂閱和規則集列表。
package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/application"
	"github.com/Yat-Muk/prism-clash/internal/pkg/sanitizer"
)

const (
	// DefaultUserAgent 機場按 UA 決定下發的格式，需要聲明為 Clash 客戶端
	DefaultUserAgent = "clash.meta"
	// DefaultMaxBodySize 訂閱響應上限
	DefaultMaxBodySize = 16 << 20
)

// HTTPFetcher net/http 實現的 Fetcher
type HTTPFetcher struct {
	client      *http.Client
	maxBodySize int64
	logger      *zap.Logger
}

// Option 可選配置
type Option func(*HTTPFetcher)

// WithClient 替換底層客戶端
func WithClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithMaxBodySize 設置響應體上限
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) { f.maxBodySize = n }
}

// New 創建拉取器，超時由調用方的 ctx 控制
func New(logger *zap.Logger, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        16,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		maxBodySize: DefaultMaxBodySize,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch 發起 GET 請求，非 2xx 視為失敗
func (f *HTTPFetcher) Fetch(ctx context.Context, req application.FetchRequest) (*application.FetchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("構造請求失敗: %w", err)
	}
	ua := req.UserAgent
	if ua == "" {
		ua = DefaultUserAgent
	}
	httpReq.Header.Set("User-Agent", ua)

	start := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		// url.Error 的文本裡帶完整地址
		return nil, fmt.Errorf("請求 %s 失敗: %s", sanitizer.URL(req.URL), sanitizer.Text(err.Error()))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("請求 %s 返回狀態碼 %d", sanitizer.URL(req.URL), resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("讀取響應失敗: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("響應超過 %d 字節上限", f.maxBodySize)
	}

	f.logger.Debug("拉取完成",
		zap.String("url", sanitizer.URL(req.URL)),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &application.FetchResponse{Body: body, Header: resp.Header.Clone()}, nil
}

var _ application.Fetcher = (*HTTPFetcher)(nil)
