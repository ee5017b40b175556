package application

import "github.com/Yat-Muk/prism-clash/internal/domain/state"

// AggregateUsage 匯總啟用且計入統計的訂閱流量
// 沒有任何訂閱提供流量信息時返回 false
func AggregateUsage(src *state.Sources) (state.Usage, bool) {
	var total state.Usage
	found := false
	if src == nil {
		return total, false
	}
	for _, sub := range src.Enabled() {
		if !sub.Include.Info || sub.Usage == nil {
			continue
		}
		total = total.Add(*sub.Usage)
		found = true
	}
	return total, found
}
