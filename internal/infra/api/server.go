package api

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/pkg/tlsconfig"
)

// Server HTTP 服務
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// NewServer 創建服務
func NewServer(listen string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              listen,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// EnableTLS 使用證書提供 HTTPS，證書無效或已過期時返回錯誤
func (s *Server) EnableTLS(certPath, keyPath string) error {
	cfg, expiry, err := tlsconfig.Server(certPath, keyPath)
	if err != nil {
		return err
	}
	s.srv.TLSConfig = cfg
	s.logger.Info("HTTPS 已啟用", zap.String("cert", certPath), zap.Time("expires", expiry))
	if time.Until(expiry) < 30*24*time.Hour {
		s.logger.Warn("證書將在 30 天內過期", zap.Time("expires", expiry))
	}
	return nil
}

// Run 監聽直到 ctx 結束，然後優雅關閉
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在給定的監聽器上服務
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.srv.TLSConfig != nil {
		ln = tls.NewListener(ln, s.srv.TLSConfig)
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP 服務已啟動", zap.String("listen", ln.Addr().String()))
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP 服務已停止")
	return nil
}
