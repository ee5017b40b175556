package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Yat-Muk/prism-clash/internal/application"
	"github.com/Yat-Muk/prism-clash/internal/domain/resource"
	"github.com/Yat-Muk/prism-clash/internal/domain/rule"
	"github.com/Yat-Muk/prism-clash/internal/domain/rulelist"
)

// Handlers 接口處理器
type Handlers struct {
	build     *application.BuildService
	rules     *application.RuleService
	resources *application.ResourceService
	refresh   *application.RefreshService
	logger    *zap.Logger
}

// requester 請求方標識：優先 ?requester=，否則取 User-Agent
func requester(c *gin.Context) string {
	if r := c.Query("requester"); r != "" {
		return r
	}
	return c.Request.UserAgent()
}

// clashConfig GET /clash/config
func (h *Handlers) clashConfig(c *gin.Context) {
	doc, err := h.build.Document(c.Request.Context(), requester(c))
	if err != nil {
		fail(c, err)
		return
	}
	if doc.Usage != nil {
		c.Header(application.UsageHeader, doc.Usage.Header())
	}
	c.Header("Content-Disposition", `inline; filename="prism-clash.yaml"`)
	c.Data(http.StatusOK, "text/yaml; charset=utf-8", doc.Body)
}

// ruleset GET /ruleset/:hash
func (h *Handlers) ruleset(c *gin.Context) {
	body, err := h.build.Ruleset(c.Request.Context(), c.Param("hash"), requester(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/yaml; charset=utf-8", body)
}

// refreshAll POST /api/refresh
func (h *Handlers) refreshAll(c *gin.Context) {
	ctx := c.Request.Context()
	report, err := h.refresh.RefreshSubscriptions(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	providers, err := h.refresh.RefreshACL4SSR(ctx)
	if err != nil {
		h.logger.Warn("ACL4SSR 刷新失敗", zap.Error(err))
	}

	failed := make(map[string]string, len(report.Failed))
	for name, e := range report.Failed {
		failed[name] = e.Error()
	}
	ok(c, "刷新完成", gin.H{
		"updated":          report.Updated,
		"failed":           failed,
		"expired_patches":  report.ExpiredPatches,
		"acl4ssr_provider": providers,
	})
}

// ---------- 規則 ----------

func ruleSet(c *gin.Context) (application.RuleSet, bool) {
	set, err := application.ParseRuleSet(c.Param("set"))
	if err != nil {
		fail(c, err)
		return "", false
	}
	return set, true
}

func priority(c *gin.Context) (int, bool) {
	p, err := strconv.Atoi(c.Param("priority"))
	if err != nil {
		badRequest(c, fmt.Errorf("優先級必須是整數: %q", c.Param("priority")))
		return 0, false
	}
	return p, true
}

func (h *Handlers) listRules(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	entries, err := h.rules.List(c.Request.Context(), set)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handlers) insertRule(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	var e rulelist.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rules.Insert(c.Request.Context(), set, e); err != nil {
		fail(c, err)
		return
	}
	ok(c, "規則已添加", nil)
}

func (h *Handlers) updateRule(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	src, good := priority(c)
	if !good {
		return
	}
	var e rulelist.Entry
	if err := c.ShouldBindJSON(&e); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rules.Update(c.Request.Context(), set, src, e); err != nil {
		fail(c, err)
		return
	}
	ok(c, "規則已更新", nil)
}

func (h *Handlers) deleteRule(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	p, good := priority(c)
	if !good {
		return
	}
	if err := h.rules.Delete(c.Request.Context(), set, p); err != nil {
		fail(c, err)
		return
	}
	ok(c, "規則已刪除", nil)
}

type reorderRequest struct {
	Moved  *int `json:"moved" binding:"required"`
	Target *int `json:"target" binding:"required"`
}

func (h *Handlers) reorderRules(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rules.Reorder(c.Request.Context(), set, *req.Moved, *req.Target); err != nil {
		fail(c, err)
		return
	}
	ok(c, "規則已移動", nil)
}

func (h *Handlers) ruleMetadata(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	p, good := priority(c)
	if !good {
		return
	}
	var meta resource.Metadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.rules.SetMetadata(c.Request.Context(), set, p, meta); err != nil {
		fail(c, err)
		return
	}
	ok(c, "元數據已更新", nil)
}

func (h *Handlers) importRules(c *gin.Context) {
	set, good := ruleSet(c)
	if !good {
		return
	}
	var dicts []rule.Dict
	if err := c.ShouldBindJSON(&dicts); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.rules.Import(c.Request.Context(), set, dicts)
	if err != nil {
		fail(c, err)
		return
	}
	skipped := make([]string, len(res.Skipped))
	for i, e := range res.Skipped {
		skipped[i] = e.Error()
	}
	ok(c, "導入完成", gin.H{"added": res.Added, "duplicates": res.Duplicates, "skipped": skipped})
}

// ---------- 資源 ----------

// registerCollection 為一類資源註冊 CRUD 路由
func registerCollection[T any](rg *gin.RouterGroup, col *application.Collection[T]) {
	rg.GET("", func(c *gin.Context) {
		items, err := col.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, items)
	})

	rg.GET("/:name", func(c *gin.Context) {
		item, err := col.Get(c.Request.Context(), c.Param("name"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, item)
	})

	rg.POST("", func(c *gin.Context) {
		var item resource.Item[T]
		if err := c.ShouldBindJSON(&item); err != nil {
			badRequest(c, err)
			return
		}
		if err := col.Add(c.Request.Context(), item); err != nil {
			fail(c, err)
			return
		}
		ok(c, "已添加", nil)
	})

	rg.PUT("/:name", func(c *gin.Context) {
		var item resource.Item[T]
		if err := c.ShouldBindJSON(&item); err != nil {
			badRequest(c, err)
			return
		}
		patched, err := col.Update(c.Request.Context(), c.Param("name"), item)
		if err != nil {
			fail(c, err)
			return
		}
		msg := "已更新"
		if patched {
			msg = "外部資源，已記錄為補丁"
		}
		ok(c, msg, gin.H{"patched": patched})
	})

	rg.DELETE("/:name", func(c *gin.Context) {
		if err := col.Delete(c.Request.Context(), c.Param("name")); err != nil {
			fail(c, err)
			return
		}
		ok(c, "已刪除", nil)
	})

	rg.PUT("/:name/metadata", func(c *gin.Context) {
		var meta resource.Metadata
		if err := c.ShouldBindJSON(&meta); err != nil {
			badRequest(c, err)
			return
		}
		if err := col.SetMetadata(c.Request.Context(), c.Param("name"), meta); err != nil {
			fail(c, err)
			return
		}
		ok(c, "元數據已更新", nil)
	})

	rg.DELETE("/:name/patch", func(c *gin.Context) {
		if err := col.ResetPatch(c.Request.Context(), c.Param("name")); err != nil {
			fail(c, err)
			return
		}
		ok(c, "補丁已清除", nil)
	})
}
