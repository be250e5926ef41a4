package server

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/earshotfm/earshot/internal/events"
	"github.com/earshotfm/earshot/internal/pipeline"
	"github.com/earshotfm/earshot/internal/store"
)

// Scheduler drives the background jobs: a reaper pass every interval and a
// cron-expressed maintenance sweep. The Redis lock keeps multiple replicas
// from firing the same slot; without Redis it runs unlocked, which is fine
// for a single instance.
type Scheduler struct {
	Store           *store.Store
	Reaper          *pipeline.Reaper
	Rdb             *redis.Client
	Interval        time.Duration
	MaintenanceCron string
	Stop            chan struct{}
	Logger          *log.Logger

	lastMaintenance time.Time
}

func (s *Scheduler) Start() {
	if s.Interval <= 0 {
		s.Interval = time.Minute
	}
	ticker := time.NewTicker(s.Interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

func (s *Scheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Interval)
	defer cancel()

	if s.acquire(ctx, "reap") {
		if _, err := s.Reaper.ReapStuck(ctx); err != nil {
			logf(s.Logger, "reaper pass: %v", err)
		}
	}

	now := time.Now()
	if maintenanceDue(s.MaintenanceCron, s.lastMaintenance, now) {
		// Mark the slot consumed even when another replica won the lock, so
		// this replica does not retry the same slot every tick.
		s.lastMaintenance = now
		if s.acquire(ctx, "maintenance") {
			s.maintenance(ctx)
		}
	}
}

// acquire claims the job's current slot. Lock keys are bucketed by tick so
// replicas with skewed clocks contend for the same key, and they expire on
// their own instead of being released.
func (s *Scheduler) acquire(ctx context.Context, job string) bool {
	if s.Rdb == nil {
		return true
	}
	slot := time.Now().UTC().Truncate(s.Interval).Format("20060102T150405")
	key := fmt.Sprintf("sched:lock:%s:%s", job, slot)
	ok, err := s.Rdb.SetNX(ctx, key, "1", 2*s.Interval).Result()
	if err != nil {
		logf(s.Logger, "scheduler lock %s: %v", key, err)
		return false
	}
	return ok
}

func (s *Scheduler) maintenance(ctx context.Context) {
	if s.Rdb != nil {
		if err := s.Rdb.XTrimMaxLenApprox(ctx, events.Stream, events.MaxStreamLen, 0).Err(); err != nil {
			logf(s.Logger, "trim event stream: %v", err)
		}
	}
	epCounts, err := s.Store.EpisodeStatusCounts(ctx)
	if err != nil {
		logf(s.Logger, "maintenance episode counts: %v", err)
		return
	}
	sigCounts, err := s.Store.SignalStatusCounts(ctx)
	if err != nil {
		logf(s.Logger, "maintenance signal counts: %v", err)
		return
	}
	logf(s.Logger, "maintenance: episodes ready=%d failed=%d in-flight=%d, signals queued=%d used=%d",
		epCounts[store.EpisodeReady], epCounts[store.EpisodeFailed],
		epCounts[store.EpisodeGenerating]+epCounts[store.EpisodeSynthesizing],
		sigCounts[store.SignalQueued], sigCounts[store.SignalUsed])
}

// maintenanceDue determines whether the maintenance job should run now given
// the last local run. Supports "@daily", "@hourly", and standard 5-field
// cron expressions; an invalid expression falls back to @daily.
func maintenanceDue(cronSpec string, last, now time.Time) bool {
	if last.IsZero() {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(cronSpec)
		if err != nil {
			return now.Sub(last) >= 24*time.Hour
		}
		next := expr.Next(last)
		return !next.After(now)
	}
}
