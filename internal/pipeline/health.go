package pipeline

import "github.com/earshotfm/earshot/internal/store"

// HealthStatus summarises pipeline health for dashboards and ops tooling.
type HealthStatus string

const (
	HealthHealthy    HealthStatus = "healthy"
	HealthGenerating HealthStatus = "generating"
	HealthIssues     HealthStatus = "issues"
	HealthStuck      HealthStatus = "stuck"
)

// Health reduces a snapshot to a single status. Rules are checked in order
// and the first match wins: stuck episodes outrank active generation, which
// outranks recent failures.
func Health(snap store.HealthSnapshot) HealthStatus {
	switch {
	case snap.StuckCount > 0:
		return HealthStuck
	case snap.ActiveCount > 0:
		return HealthGenerating
	case snap.WindowFailures > 0 && failureNewerThanLastReady(snap):
		return HealthIssues
	default:
		return HealthHealthy
	}
}

// failureNewerThanLastReady reports whether the most recent failure postdates
// the last READY episode. A successful episode newer than every failure
// clears the issues signal even when failures remain inside the window.
func failureNewerThanLastReady(snap store.HealthSnapshot) bool {
	if snap.LastFailureAt == nil {
		return false
	}
	if snap.LastReadyAt == nil {
		return true
	}
	return snap.LastFailureAt.After(*snap.LastReadyAt)
}
