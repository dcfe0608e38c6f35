package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_PhaseTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from, to string
		incN     int
	}{
		{name: "fill to vote", from: "filling", to: "captain_vote", incN: 1},
		{name: "draft to map vote", from: "drafting", to: "map_vote", incN: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(PhaseTransitions.WithLabelValues(tt.from, tt.to))
			for i := 0; i < tt.incN; i++ {
				PhaseTransitions.WithLabelValues(tt.from, tt.to).Inc()
			}
			after := testutil.ToFloat64(PhaseTransitions.WithLabelValues(tt.from, tt.to))
			assert.Equal(t, float64(tt.incN), after-before)
		})
	}
}

func TestMetrics_PersistDuration(t *testing.T) {
	PersistDuration.WithLabelValues("create_match", "success").Observe(0.02)
	count := testutil.CollectAndCount(PersistDuration)
	assert.Greater(t, count, 0, "histogram not collected; count=%#v", count)
}

func TestMetrics_RosterGauge(t *testing.T) {
	RosterSize.WithLabelValues("7").Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(RosterSize.WithLabelValues("7")))
}
