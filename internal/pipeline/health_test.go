package pipeline

import (
	"testing"
	"time"

	"github.com/earshotfm/earshot/internal/store"
)

func TestHealthRulePriority(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)

	cases := []struct {
		name string
		snap store.HealthSnapshot
		want HealthStatus
	}{
		{"no activity", store.HealthSnapshot{}, HealthHealthy},
		{"stuck outranks everything", store.HealthSnapshot{StuckCount: 1, ActiveCount: 3, WindowFailures: 2, LastFailureAt: &now}, HealthStuck},
		{"generating outranks issues", store.HealthSnapshot{ActiveCount: 1, WindowFailures: 2, LastFailureAt: &now}, HealthGenerating},
		{"failure newer than last ready", store.HealthSnapshot{WindowFailures: 1, LastFailureAt: &now, LastReadyAt: &earlier}, HealthIssues},
		{"ready newer than failure clears issues", store.HealthSnapshot{WindowFailures: 1, LastFailureAt: &earlier, LastReadyAt: &now}, HealthHealthy},
		{"failure with no ready yet", store.HealthSnapshot{WindowFailures: 1, LastFailureAt: &now}, HealthIssues},
		{"failure count without timestamp", store.HealthSnapshot{WindowFailures: 1}, HealthHealthy},
		{"ready history alone", store.HealthSnapshot{ReadyTotal: 5, LastReadyAt: &now}, HealthHealthy},
	}
	for _, tc := range cases {
		if got := Health(tc.snap); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}
