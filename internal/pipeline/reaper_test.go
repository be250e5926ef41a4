package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/earshotfm/earshot/internal/events"
	"github.com/earshotfm/earshot/internal/store"
)

func TestReapStuckFailsOldEpisodes(t *testing.T) {
	st := newFakeStore()
	st.addEpisode("ep-old", "user-1", store.EpisodeGenerating, 20*time.Minute)
	st.addEpisode("ep-young", "user-1", store.EpisodeSynthesizing, 2*time.Minute)
	st.addEpisode("ep-done", "user-1", store.EpisodeReady, 30*time.Minute)
	st.addSignal("sig-1", "user-1", store.SignalQueued)
	st.claimTo("sig-1", "ep-old")

	sink := &fakeSink{}
	r := NewReaper(st, sink, testPipelineConfig(), quietLogger())

	reaped, err := r.ReapStuck(context.Background())
	if err != nil {
		t.Fatalf("ReapStuck: %v", err)
	}
	if len(reaped) != 1 || reaped[0].ID != "ep-old" {
		t.Fatalf("expected ep-old reaped, got %+v", reaped)
	}
	if reaped[0].Status != store.EpisodeFailed || reaped[0].Error == nil {
		t.Fatalf("reaped episode must be returned as FAILED with a cause")
	}

	ep, _ := st.episode("ep-old")
	if ep.Status != store.EpisodeFailed {
		t.Fatalf("expected FAILED, got %s", ep.Status)
	}
	if ep.Error == nil || *ep.Error != "generation timed out and was reaped" {
		t.Fatalf("unexpected cause: %v", ep.Error)
	}
	if sig := st.signal("sig-1"); sig.Status != store.SignalQueued || sig.EpisodeID != nil {
		t.Fatalf("signal not released: %s %v", sig.Status, sig.EpisodeID)
	}

	if ep, _ := st.episode("ep-young"); ep.Status != store.EpisodeSynthesizing {
		t.Fatalf("young episode must be untouched, got %s", ep.Status)
	}
	if ep, _ := st.episode("ep-done"); ep.Status != store.EpisodeReady {
		t.Fatalf("ready episode must be untouched, got %s", ep.Status)
	}

	evs := sink.recorded()
	if len(evs) != 1 || evs[0].eventType != events.TypeEpisodeFailed {
		t.Fatalf("expected one episode.failed event, got %+v", evs)
	}
	payload, ok := evs[0].payload.(events.EpisodePayload)
	if !ok {
		t.Fatalf("unexpected payload type %T", evs[0].payload)
	}
	if payload.EpisodeID != "ep-old" || payload.Error != "generation timed out and was reaped" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestReapStuckIsIdempotent(t *testing.T) {
	st := newFakeStore()
	st.addEpisode("ep-old", "user-1", store.EpisodeGenerating, 20*time.Minute)

	sink := &fakeSink{}
	r := NewReaper(st, sink, testPipelineConfig(), quietLogger())

	first, err := r.ReapStuck(context.Background())
	if err != nil || len(first) != 1 {
		t.Fatalf("first sweep: %v %+v", err, first)
	}
	second, err := r.ReapStuck(context.Background())
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second sweep must find nothing, got %+v", second)
	}
	if evs := sink.recorded(); len(evs) != 1 {
		t.Fatalf("event must be published once, got %d", len(evs))
	}
}

func TestReapStuckEmptyStore(t *testing.T) {
	r := NewReaper(newFakeStore(), &fakeSink{}, testPipelineConfig(), quietLogger())
	reaped, err := r.ReapStuck(context.Background())
	if err != nil {
		t.Fatalf("ReapStuck: %v", err)
	}
	if len(reaped) != 0 {
		t.Fatalf("expected nothing reaped, got %+v", reaped)
	}
}
