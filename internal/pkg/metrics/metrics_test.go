package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Registered(t *testing.T) {
	BuildsTotal.WithLabelValues("ok").Inc()
	DroppedRules.WithLabelValues("reference").Add(2)
	PrunedMembers.Inc()
	GroupCycles.Set(3)
	FetchTotal.WithLabelValues("subscription", "error").Inc()

	t.Run("計數", func(t *testing.T) {
		assert.GreaterOrEqual(t, testutil.ToFloat64(DroppedRules.WithLabelValues("reference")), 2.0)
		assert.Equal(t, 3.0, testutil.ToFloat64(GroupCycles))
	})

	t.Run("默認註冊表可採集", func(t *testing.T) {
		for _, name := range []string{
			"prism_clash_builds_total",
			"prism_clash_dropped_rules_total",
			"prism_clash_pruned_group_members_total",
			"prism_clash_group_cycles",
			"prism_clash_fetch_total",
		} {
			n, err := testutil.GatherAndCount(prometheus.DefaultGatherer, name)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, 1, name)
		}
	})
}
