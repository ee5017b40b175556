// Package api 對外的 HTTP 接口。
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/application"
	"github.com/Yat-Muk/prism-clash/internal/domain/config"
)

// Deps 路由依賴
type Deps struct {
	Build     *application.BuildService
	Rules     *application.RuleService
	Resources *application.ResourceService
	Refresh   *application.RefreshService
	Config    *config.AtomicContainer
	Logger    *zap.Logger
}

// NewRouter 註冊全部路由
//
//	GET  /healthz
//	GET  /metrics
//	GET  /clash/config
//	GET  /ruleset/:hash
//	/api/rules/:set            規則 CRUD、reorder、import
//	/api/{proxies,groups,providers,hosts}
//	POST /api/refresh
func NewRouter(d Deps) *gin.Engine {
	h := &Handlers{
		build:     d.Build,
		rules:     d.Rules,
		resources: d.Resources,
		refresh:   d.Refresh,
		logger:    d.Logger,
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Logger(d.Logger))

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("", Auth(d.Config))
	authed.GET("/clash/config", h.clashConfig)
	authed.GET("/ruleset/:hash", h.ruleset)

	api := authed.Group("/api")
	api.POST("/refresh", h.refreshAll)

	rules := api.Group("/rules/:set")
	rules.GET("", h.listRules)
	rules.POST("", h.insertRule)
	rules.POST("/reorder", h.reorderRules)
	rules.POST("/import", h.importRules)
	rules.PUT("/:priority", h.updateRule)
	rules.DELETE("/:priority", h.deleteRule)
	rules.PUT("/:priority/metadata", h.ruleMetadata)

	registerCollection(api.Group("/proxies"), d.Resources.Proxies)
	registerCollection(api.Group("/groups"), d.Resources.ProxyGroups)
	registerCollection(api.Group("/providers"), d.Resources.RuleProviders)
	registerCollection(api.Group("/hosts"), d.Resources.Hosts)

	return r
}
