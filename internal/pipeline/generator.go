package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/blob"
	"github.com/earshotfm/earshot/internal/events"
	"github.com/earshotfm/earshot/internal/store"
	"github.com/earshotfm/earshot/internal/synth"
)

const (
	episodeKeyPrefix = "episodes/"

	// Episode audio is immutable once published, so clients may cache it
	// for as long as they like.
	episodeCacheControl = "public, max-age=31536000, immutable"
)

// errSettledElsewhere means the reaper or an admin settled the episode while
// a stage was running. The prior outcome stands; nothing more to record.
var errSettledElsewhere = errors.New("episode was settled elsewhere, keeping that outcome")

// Generator drives an episode through its two stages: content drafting and
// audio synthesis. Every run settles the episode exactly once, either READY
// with its signals finalized to USED or FAILED with its signals released.
type Generator struct {
	store   Store
	content synth.ContentProvider
	speech  synth.SpeechProvider
	blobs   blob.Store
	sink    EventSink
	cfg     config.PipelineConfig
	logger  *log.Logger
}

// NewGenerator builds a generator. sink may be nil when eventing is disabled.
func NewGenerator(st Store, content synth.ContentProvider, speech synth.SpeechProvider, blobs blob.Store, sink EventSink, cfg config.PipelineConfig, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(os.Stdout, "[PIPELINE] ", log.LstdFlags)
	}
	return &Generator{
		store:   st,
		content: content,
		speech:  speech,
		blobs:   blobs,
		sink:    sink,
		cfg:     cfg,
		logger:  logger,
	}
}

// Generate claims the given signals and drives both stages to completion,
// returning the settled episode. The claim is all or nothing: if any signal
// is missing the call fails with ErrNotFound, and if any is already claimed
// or not claimable it fails with ErrConflict, touching nothing either way.
func (g *Generator) Generate(ctx context.Context, ownerID string, signalIDs []string) (store.Episode, error) {
	ep, signals, err := g.begin(ctx, ownerID, signalIDs)
	if err != nil {
		return store.Episode{}, err
	}
	return g.run(ctx, ep, signals)
}

// Start claims synchronously, so conflicts surface to the caller, then drives
// the stages on a background goroutine. The returned episode is still
// GENERATING; callers poll or listen for events to observe the outcome.
func (g *Generator) Start(ctx context.Context, ownerID string, signalIDs []string) (store.Episode, error) {
	ep, signals, err := g.begin(ctx, ownerID, signalIDs)
	if err != nil {
		return store.Episode{}, err
	}
	go func() {
		rctx, cancel := context.WithTimeout(context.Background(), g.runBudget())
		defer cancel()
		if _, err := g.run(rctx, ep, signals); err != nil {
			g.logger.Printf("episode %s: settled as failed: %v", ep.ID, err)
		}
	}()
	return ep, nil
}

// runBudget bounds a detached run. The reaper would catch a wedged run
// anyway, but a generous deadline keeps goroutines from piling up first.
func (g *Generator) runBudget() time.Duration {
	budget := g.cfg.ContentTimeout + g.cfg.AudioTimeout + time.Minute
	if budget <= time.Minute {
		budget = 15 * time.Minute
	}
	return budget
}

// begin validates ownership, creates the episode row and claims the signals.
func (g *Generator) begin(ctx context.Context, ownerID string, signalIDs []string) (store.Episode, []store.Signal, error) {
	if ownerID == "" {
		return store.Episode{}, nil, fmt.Errorf("owner id must be provided")
	}
	ids := dedupe(signalIDs)
	if len(ids) == 0 {
		return store.Episode{}, nil, fmt.Errorf("at least one signal is required")
	}

	signals, err := g.store.GetSignalsByID(ctx, ownerID, ids)
	if err != nil {
		return store.Episode{}, nil, fmt.Errorf("load signals: %w", err)
	}
	if len(signals) != len(ids) {
		return store.Episode{}, nil, fmt.Errorf("load signals: %w", store.ErrNotFound)
	}

	ep, err := g.store.CreateEpisode(ctx, ownerID, len(ids))
	if err != nil {
		return store.Episode{}, nil, fmt.Errorf("create episode: %w", err)
	}
	if err := g.store.ClaimSignals(ctx, ownerID, ids, ep.ID); err != nil {
		// The unclaimed episode row must not linger for the reaper.
		if _, derr := g.store.DeleteEpisodeCascade(ctx, ep.ID); derr != nil {
			g.logger.Printf("episode %s: drop after failed claim: %v", ep.ID, derr)
		}
		return store.Episode{}, nil, err
	}
	g.logger.Printf("episode %s: claimed %d signals for %s", ep.ID, len(ids), ownerID)
	return ep, signals, nil
}

// run drives the stages and settles the episode. This is the only place a
// failure is recorded, so no path can leave signals claimed by a dead
// episode.
func (g *Generator) run(ctx context.Context, ep store.Episode, signals []store.Signal) (store.Episode, error) {
	runErr := g.drive(ctx, ep, signals)
	switch {
	case runErr == nil:
	case errors.Is(runErr, errSettledElsewhere):
		g.logger.Printf("episode %s: %v", ep.ID, runErr)
		runErr = nil
	default:
		g.fail(ep.ID, ep.OwnerID, runErr)
	}

	// Refresh on a background context: after a stage timeout the caller
	// context is already dead.
	rctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if settled, ok, err := g.store.GetEpisode(rctx, ep.ID); err == nil && ok {
		ep = settled
	}
	return ep, runErr
}

func (g *Generator) drive(ctx context.Context, ep store.Episode, signals []store.Signal) error {
	start := time.Now()
	draft, err := g.draftContent(ctx, signals)
	stageDuration.WithLabelValues("content").Observe(time.Since(start).Seconds())
	if err != nil {
		return stageFailure("content synthesis", err)
	}

	moved, err := g.store.SetEpisodeSynthesizing(ctx, ep.ID, draft.Title, draft.Summary)
	if err != nil {
		return fmt.Errorf("advance to synthesizing: %w", err)
	}
	if !moved {
		return errSettledElsewhere
	}
	g.logger.Printf("episode %s: drafted %q, synthesizing audio", ep.ID, draft.Title)

	start = time.Now()
	audioURL, duration, err := g.renderAudio(ctx, ep.ID, draft.Script)
	stageDuration.WithLabelValues("audio").Observe(time.Since(start).Seconds())
	if err != nil {
		return stageFailure("audio synthesis", err)
	}

	finished, err := g.store.FinishEpisodeReady(ctx, ep.ID, audioURL, duration)
	if err != nil {
		return fmt.Errorf("finalize episode: %w", err)
	}
	if !finished {
		return errSettledElsewhere
	}
	episodesSettled.WithLabelValues("ready").Inc()
	g.logger.Printf("episode %s: ready, %ds of audio at %s", ep.ID, duration, audioURL)
	g.publish(events.TypeEpisodeReady, events.EpisodePayload{
		EpisodeID: ep.ID,
		OwnerID:   ep.OwnerID,
		Status:    string(store.EpisodeReady),
	})
	return nil
}

func (g *Generator) draftContent(ctx context.Context, signals []store.Signal) (synth.EpisodeDraft, error) {
	if g.cfg.ContentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.ContentTimeout)
		defer cancel()
	}
	req := synth.ContentRequest{Signals: make([]synth.SignalInput, 0, len(signals))}
	for _, sig := range signals {
		req.Signals = append(req.Signals, synth.SignalInput{
			Title:      deref(sig.Title),
			URL:        deref(sig.URL),
			RawContent: sig.RawContent,
			Topics:     sig.Topics,
		})
	}
	return g.content.DraftEpisode(ctx, req)
}

// renderAudio synthesizes the script and publishes the result. The object key
// is derived from the episode ID, so a retried upload overwrites rather than
// orphans.
func (g *Generator) renderAudio(ctx context.Context, episodeID, script string) (string, int, error) {
	if g.cfg.AudioTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.AudioTimeout)
		defer cancel()
	}
	res, err := g.speech.Synthesize(ctx, synth.SpeechRequest{Voice: g.cfg.Narrator, Input: script})
	if err != nil {
		return "", 0, err
	}
	key := episodeKeyPrefix + episodeID + ".mp3"
	if err := g.blobs.Upload(ctx, key, res.Audio, blob.PutOptions{
		ContentType:  res.MIME,
		CacheControl: episodeCacheControl,
	}); err != nil {
		return "", 0, err
	}
	return g.blobs.PublicURL(key), int(res.Duration.Seconds()), nil
}

// fail records the failure and releases the signals. Runs on a background
// context so a dead caller context cannot leave the episode unsettled.
func (g *Generator) fail(episodeID, ownerID string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	settled, err := g.store.FailEpisodeAndReleaseSignals(ctx, episodeID, cause.Error())
	if err != nil {
		g.logger.Printf("episode %s: recording failure: %v", episodeID, err)
		return
	}
	if !settled {
		return
	}
	episodesSettled.WithLabelValues("failed").Inc()
	g.logger.Printf("episode %s: failed, signals released: %v", episodeID, cause)
	g.publish(events.TypeEpisodeFailed, events.EpisodePayload{
		EpisodeID: episodeID,
		OwnerID:   ownerID,
		Status:    string(store.EpisodeFailed),
		Error:     cause.Error(),
	})
}

func (g *Generator) publish(eventType string, payload interface{}) {
	if g.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := g.sink.Publish(ctx, eventType, payload); err != nil {
		g.logger.Printf("publish %s: %v", eventType, err)
	}
}

// stageFailure converts a provider error into the short cause recorded on
// the episode row.
func stageFailure(stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out", stage)
	}
	return fmt.Errorf("%s failed: %w", stage, err)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
