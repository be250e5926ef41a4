package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// HealthSnapshot is the raw material the health derivation runs on. The
// store only counts; the priority rules live in the pipeline package.
type HealthSnapshot struct {
	ReadyTotal     int
	FailedTotal    int
	LastReadyAt    *time.Time
	StuckCount     int
	ActiveCount    int
	WindowFailures int
	LastFailureAt  *time.Time
}

// Aggregate operations

// LoadHealthSnapshot assembles pipeline health inputs. stuckCutoff separates
// zombies from actively generating episodes; windowStart bounds the failure
// lookback. Failures count both episodes and signals.
func (s *Store) LoadHealthSnapshot(ctx context.Context, stuckCutoff, windowStart time.Time) (HealthSnapshot, error) {
	var snap HealthSnapshot

	var lastReady sql.NullTime
	err := s.DB.QueryRowContext(ctx, `
SELECT
  COUNT(*) FILTER (WHERE status=$1),
  COUNT(*) FILTER (WHERE status=$2),
  MAX(generated_at) FILTER (WHERE status=$1)
FROM episodes
`, string(EpisodeReady), string(EpisodeFailed)).Scan(&snap.ReadyTotal, &snap.FailedTotal, &lastReady)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("health totals: %w", err)
	}
	snap.LastReadyAt = timeFromNull(lastReady)

	err = s.DB.QueryRowContext(ctx, `
SELECT
  COUNT(*) FILTER (WHERE created_at < $1),
  COUNT(*) FILTER (WHERE created_at >= $1)
FROM episodes WHERE status = ANY($2)
`, stuckCutoff, pq.Array(inFlightStatusStrings())).Scan(&snap.StuckCount, &snap.ActiveCount)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("health in-flight: %w", err)
	}

	var epFailures, sigFailures int
	var epLast, sigLast sql.NullTime
	err = s.DB.QueryRowContext(ctx, `
SELECT COUNT(*), MAX(updated_at) FROM episodes WHERE status=$1 AND updated_at >= $2
`, string(EpisodeFailed), windowStart).Scan(&epFailures, &epLast)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("health episode failures: %w", err)
	}
	err = s.DB.QueryRowContext(ctx, `
SELECT COUNT(*), MAX(updated_at) FROM signals WHERE status=$1 AND updated_at >= $2
`, string(SignalFailed), windowStart).Scan(&sigFailures, &sigLast)
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("health signal failures: %w", err)
	}
	snap.WindowFailures = epFailures + sigFailures
	snap.LastFailureAt = laterOf(timeFromNull(epLast), timeFromNull(sigLast))

	return snap, nil
}

func laterOf(a, b *time.Time) *time.Time {
	if a == nil {
		return b
	}
	if b == nil || a.After(*b) {
		return a
	}
	return b
}

// EpisodeStatusCounts returns a row count per episode status. Statuses with
// no rows are absent from the map.
func (s *Store) EpisodeStatusCounts(ctx context.Context) (map[EpisodeStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM episodes GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[EpisodeStatus]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[EpisodeStatus(st)] = n
	}
	return out, rows.Err()
}

// SignalStatusCounts returns a row count per signal status.
func (s *Store) SignalStatusCounts(ctx context.Context) (map[SignalStatus]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM signals GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[SignalStatus]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[SignalStatus(st)] = n
	}
	return out, rows.Err()
}
