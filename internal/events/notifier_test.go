package events

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeSource struct {
	mu    sync.Mutex
	reads [][]Message
	stale [][]Message
	acked []string
}

func (f *fakeSource) Read(ctx context.Context, opts ...ConsumerOption) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reads) == 0 {
		return nil, nil
	}
	batch := f.reads[0]
	f.reads = f.reads[1:]
	return batch, nil
}

func (f *fakeSource) Stale(ctx context.Context, minIdle time.Duration, count int64) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.stale) == 0 {
		return nil, nil
	}
	batch := f.stale[0]
	f.stale = f.stale[1:]
	return batch, nil
}

func (f *fakeSource) Ack(ctx context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeSource) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.acked))
	copy(out, f.acked)
	return out
}

func testMessage(id, eventType string, attempt int) Message {
	data, _ := json.Marshal(EpisodePayload{EpisodeID: "ep-1", OwnerID: "user-1", Status: "READY"})
	return Message{
		ID: id,
		Envelope: Envelope{
			EventID:    "evt-" + id,
			EventType:  eventType,
			OccurredAt: time.Now().UTC(),
			Attempt:    attempt,
			Data:       data,
		},
	}
}

func newTestNotifier(src source, sinkURL string, maxAttempts int) *Notifier {
	return &Notifier{
		src:         src,
		sinkURL:     sinkURL,
		client:      &http.Client{},
		maxAttempts: maxAttempts,
		minIdle:     time.Second,
		timeout:     time.Second,
		logger:      log.New(io.Discard, "", 0),
	}
}

func TestNotifierDeliversAndAcks(t *testing.T) {
	var got []Envelope
	var mu sync.Mutex
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		env, err := UnmarshalEnvelope(body)
		if err != nil {
			t.Errorf("sink received bad envelope: %v", err)
		}
		mu.Lock()
		got = append(got, env)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	src := &fakeSource{reads: [][]Message{{testMessage("1-0", TypeEpisodeReady, 1)}}}
	n := newTestNotifier(src, sink.URL, 5)
	n.cycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(got))
	}
	if got[0].EventType != TypeEpisodeReady {
		t.Fatalf("unexpected event type %q", got[0].EventType)
	}
	if acked := src.ackedIDs(); len(acked) != 1 || acked[0] != "1-0" {
		t.Fatalf("expected message acked, got %v", acked)
	}
}

func TestNotifierLeavesFailedDeliveryPending(t *testing.T) {
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer sink.Close()

	src := &fakeSource{reads: [][]Message{{testMessage("1-0", TypeEpisodeFailed, 1)}}}
	n := newTestNotifier(src, sink.URL, 5)
	n.cycle(context.Background())

	if acked := src.ackedIDs(); len(acked) != 0 {
		t.Fatalf("failed delivery must stay pending, got acks %v", acked)
	}
}

func TestNotifierRetriesStaleMessages(t *testing.T) {
	var deliveries int
	var mu sync.Mutex
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deliveries++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	src := &fakeSource{stale: [][]Message{{testMessage("1-0", TypeEpisodeReady, 3)}}}
	n := newTestNotifier(src, sink.URL, 5)
	n.cycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if deliveries != 1 {
		t.Fatalf("expected stale message redelivered once, got %d", deliveries)
	}
	if acked := src.ackedIDs(); len(acked) != 1 {
		t.Fatalf("expected redelivered message acked, got %v", acked)
	}
}

func TestNotifierDropsAfterMaxAttempts(t *testing.T) {
	var deliveries int
	var mu sync.Mutex
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		deliveries++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	src := &fakeSource{stale: [][]Message{{testMessage("1-0", TypeEpisodeFailed, 6)}}}
	n := newTestNotifier(src, sink.URL, 5)
	n.cycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if deliveries != 0 {
		t.Fatalf("exhausted message must not be delivered, got %d deliveries", deliveries)
	}
	if acked := src.ackedIDs(); len(acked) != 1 || acked[0] != "1-0" {
		t.Fatalf("exhausted message must be acked and dropped, got %v", acked)
	}
}

func TestNotifierDeliveryTimeout(t *testing.T) {
	release := make(chan struct{})
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer sink.Close()
	defer close(release)

	src := &fakeSource{reads: [][]Message{{testMessage("1-0", TypeEpisodeReady, 1)}}}
	n := newTestNotifier(src, sink.URL, 5)
	n.timeout = 50 * time.Millisecond

	start := time.Now()
	n.cycle(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("delivery did not time out, took %v", elapsed)
	}
	if acked := src.ackedIDs(); len(acked) != 0 {
		t.Fatalf("timed out delivery must stay pending, got %v", acked)
	}
}
