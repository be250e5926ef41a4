package pipeline

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/events"
	"github.com/earshotfm/earshot/internal/store"
)

// reapCause is the failure message recorded on every reaped episode.
const reapCause = "generation timed out and was reaped"

// Reaper fails in-flight episodes whose generation exceeded the stuck
// threshold and releases their signals back to the queue.
type Reaper struct {
	store      Store
	sink       EventSink
	stuckAfter time.Duration
	logger     *log.Logger
}

// NewReaper builds a reaper. sink may be nil when eventing is disabled.
func NewReaper(st Store, sink EventSink, cfg config.PipelineConfig, logger *log.Logger) *Reaper {
	if logger == nil {
		logger = log.New(os.Stdout, "[REAPER] ", log.LstdFlags)
	}
	return &Reaper{store: st, sink: sink, stuckAfter: cfg.StuckAfter, logger: logger}
}

// ReapStuck sweeps every zombie episode: older than the threshold and still
// GENERATING or SYNTHESIZING. Each is failed and its signals released in one
// transaction. Safe to trigger from several places at once; the settle is a
// compare-and-set, so an episode is reaped at most once and repeat sweeps
// return it no further.
func (r *Reaper) ReapStuck(ctx context.Context) ([]store.Episode, error) {
	cutoff := time.Now().Add(-r.stuckAfter)
	zombies, err := r.store.ListZombieEpisodes(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck episodes: %w", err)
	}

	var reaped []store.Episode
	for _, ep := range zombies {
		settled, err := r.store.FailEpisodeAndReleaseSignals(ctx, ep.ID, reapCause)
		if err != nil {
			r.logger.Printf("reap episode %s: %v", ep.ID, err)
			continue
		}
		if !settled {
			continue
		}
		reapedTotal.Inc()
		episodesSettled.WithLabelValues("failed").Inc()
		r.logger.Printf("reaped episode %s, in flight since %s", ep.ID, ep.CreatedAt.Format(time.RFC3339))

		ep.Status = store.EpisodeFailed
		cause := reapCause
		ep.Error = &cause
		reaped = append(reaped, ep)
		r.publish(ctx, ep)
	}
	return reaped, nil
}

func (r *Reaper) publish(ctx context.Context, ep store.Episode) {
	if r.sink == nil {
		return
	}
	payload := events.EpisodePayload{
		EpisodeID: ep.ID,
		OwnerID:   ep.OwnerID,
		Status:    string(store.EpisodeFailed),
		Error:     reapCause,
	}
	if _, err := r.sink.Publish(ctx, events.TypeEpisodeFailed, payload); err != nil {
		r.logger.Printf("publish %s for %s: %v", events.TypeEpisodeFailed, ep.ID, err)
	}
}
