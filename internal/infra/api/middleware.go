package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/pkg/metrics"
	"github.com/Yat-Muk/prism-clash/internal/pkg/sanitizer"
)

const (
	// RequestIDHeader 請求 ID 響應頭
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "prism_request_id"
)

// RequestID 沿用客戶端傳入的 ID，沒有則生成
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID 當前請求的 ID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger 記錄訪問日誌並計數
// 查詢參數裡可能帶令牌，只記錄路徑
func Logger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()

		fields := []zap.Field{
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", sanitizer.Text(c.Errors.String())))
		}

		switch {
		case status >= 500:
			logger.Error("請求失敗", fields...)
		case status >= 400:
			logger.Warn("請求被拒絕", fields...)
		default:
			logger.Debug("請求完成", fields...)
		}
	}
}

// Auth 配置了令牌時校驗 ?token= 或 Authorization: Bearer
// 令牌每次從運行時配置讀取，更新配置後立即生效
func Auth(cfg *config.AtomicContainer) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := cfg.Get().Server.Token
		if want == "" {
			c.Next()
			return
		}

		got := c.Query("token")
		if got == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				got = strings.TrimPrefix(h, "Bearer ")
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Success: false, Message: "未授權"})
			return
		}
		c.Next()
	}
}
