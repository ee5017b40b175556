package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Yat-Muk/prism-clash/internal/domain/state"
	"github.com/Yat-Muk/prism-clash/internal/infra/api"
	"github.com/Yat-Muk/prism-clash/internal/infra/template"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
	"github.com/Yat-Muk/prism-clash/internal/pkg/version"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		listen    string
		noRefresh bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "啟動 HTTP 服務並定時刷新訂閱",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := a.deps()
			if err != nil {
				return err
			}
			defer deps.Close()

			if err := loadTemplate(deps); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := deps.Config.Get()
			if cfg.Template.Watch {
				w, err := template.NewWatcher(cfg.Template.Path, func(tpl *clash.Config) {
					deps.Sources.Update(func(s *state.Sources) *state.Sources { return s.WithTemplate(tpl) })
				}, 0, deps.Log.Named("template"))
				if err != nil {
					return err
				}
				if err := w.Start(ctx); err != nil {
					return err
				}
				defer w.Stop()
			}

			if !a.debug {
				gin.SetMode(gin.ReleaseMode)
			}
			addr := cfg.Server.Listen
			if listen != "" {
				addr = listen
			}
			srv := api.NewServer(addr, api.NewRouter(deps.APIDeps()), deps.Log.Named("api"))
			if cfg.Server.TLS.Enabled {
				if err := enableTLS(srv, cfg.Server, deps.Log); err != nil {
					return err
				}
			}

			deps.Log.Info("Prism Clash 正在啟動",
				zap.String("version", version.Version),
				zap.String("listen", addr),
				zap.Int("subscriptions", len(cfg.Subscriptions)),
			)

			g, gctx := errgroup.WithContext(ctx)
			if !noRefresh {
				g.Go(func() error {
					deps.Refresh.Run(gctx)
					return nil
				})
			}
			g.Go(func() error { return srv.Run(gctx) })
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "監聽地址，覆蓋配置中的 server.listen")
	cmd.Flags().BoolVar(&noRefresh, "no-refresh", false, "不拉取訂閱，只使用模板和本地註冊表")
	return cmd
}
