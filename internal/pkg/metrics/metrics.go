// Package metrics 合成與刷新流程的 Prometheus 指標
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsTotal 合成次數，按結果區分
	BuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_builds_total",
		Help: "Total configuration builds by result",
	}, []string{"result"})

	// BuildDuration 合成耗時
	BuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prism_clash_build_duration_seconds",
		Help:    "Configuration build duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})

	// DroppedRules 渲染時因懸空引用被丟棄的規則
	DroppedRules = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_dropped_rules_total",
		Help: "Rules dropped at render time by reason",
	}, []string{"reason"})

	// PrunedMembers 從策略組中移除的未知成員
	PrunedMembers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "prism_clash_pruned_group_members_total",
		Help: "Unknown proxy-group members removed at render time",
	})

	// DuplicateResources 按名稱去重時丟棄的資源
	DuplicateResources = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_duplicate_resources_total",
		Help: "Duplicate proxies or groups dropped keep-first",
	}, []string{"kind"})

	// PatchFailures 應用失敗的補丁
	PatchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_patch_failures_total",
		Help: "Patches that failed to apply",
	}, []string{"kind"})

	// GroupCycles 最近一次合成發現的策略組環
	GroupCycles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prism_clash_group_cycles",
		Help: "Proxy-group cycles found by the last build",
	})

	// FetchTotal 訂閱拉取次數
	FetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_fetch_total",
		Help: "Subscription fetches by source and result",
	}, []string{"source", "result"})

	// SkippedRules 解析失敗被跳過的規則行
	SkippedRules = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_skipped_rules_total",
		Help: "Rule lines skipped because they failed to parse",
	}, []string{"source"})

	// HTTPRequests 接口請求，route 為註冊的路由模板
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prism_clash_http_requests_total",
		Help: "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})
)
