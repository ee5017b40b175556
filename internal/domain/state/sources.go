package state

import (
	"time"

	"github.com/Yat-Muk/prism-clash/internal/domain/config"
	"github.com/Yat-Muk/prism-clash/internal/pkg/clash"
)

// Subscription 一個訂閱最近一次拉取的結果
type Subscription struct {
	Name    string
	Host    string
	Enabled bool
	Include config.IncludeFlags
	Config  *clash.Config
	Usage   *Usage
	Fetched time.Time
}

// Sources 外部來源快照，刷新時整體替換，從不原地修改
type Sources struct {
	// Template 為 nil 時從空配置開始
	Template      *clash.Config
	Subscriptions []Subscription
	// ACL4SSR 規則集列表生成的提供者，按提供者名稱索引
	ACL4SSR map[string]clash.RuleProvider
}

// EmptySources 沒有任何外部數據
func EmptySources() *Sources {
	return &Sources{ACL4SSR: make(map[string]clash.RuleProvider)}
}

// WithTemplate 替換模板後的副本
func (s *Sources) WithTemplate(tpl *clash.Config) *Sources {
	cp := *s
	cp.Template = tpl
	return &cp
}

// WithSubscriptions 替換訂閱後的副本
func (s *Sources) WithSubscriptions(subs []Subscription) *Sources {
	cp := *s
	cp.Subscriptions = subs
	return &cp
}

// WithACL4SSR 替換 ACL4SSR 提供者後的副本
func (s *Sources) WithACL4SSR(providers map[string]clash.RuleProvider) *Sources {
	cp := *s
	cp.ACL4SSR = providers
	return &cp
}

// Enabled 遍歷啟用的訂閱
func (s *Sources) Enabled() []Subscription {
	var out []Subscription
	for _, sub := range s.Subscriptions {
		if sub.Enabled {
			out = append(out, sub)
		}
	}
	return out
}
