package events

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, _ := json.Marshal(EpisodePayload{EpisodeID: "ep-1", OwnerID: "user-1", Status: "READY"})
	env := Envelope{
		EventID:    "evt-1",
		EventType:  TypeEpisodeReady,
		OccurredAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Attempt:    1,
		Data:       payload,
	}

	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := UnmarshalEnvelope(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.EventID != "evt-1" || got.EventType != TypeEpisodeReady || got.Attempt != 1 {
		t.Fatalf("unexpected envelope: %+v", got)
	}
	var data EpisodePayload
	if err := json.Unmarshal(got.Data, &data); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	if data.EpisodeID != "ep-1" || data.Status != "READY" {
		t.Fatalf("unexpected payload: %+v", data)
	}
}

func TestEnvelopeValidateRejectsMissingFields(t *testing.T) {
	cases := []struct {
		name string
		env  Envelope
		want string
	}{
		{"missing event id", Envelope{EventType: TypeEpisodeReady, Data: []byte(`{}`)}, "event_id"},
		{"missing event type", Envelope{EventID: "evt-1", Data: []byte(`{}`)}, "event_type"},
		{"missing data", Envelope{EventID: "evt-1", EventType: TypeEpisodeReady}, "data"},
		{"negative attempt", Envelope{EventID: "evt-1", EventType: TypeEpisodeReady, Attempt: -1, Data: []byte(`{}`)}, "attempt"},
	}
	for _, tc := range cases {
		err := tc.env.ValidateBasic()
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestEnvelopeValidateFillsOccurredAt(t *testing.T) {
	env := Envelope{EventID: "evt-1", EventType: TypeUserDeleted, Data: []byte(`{"user_id":"u-1"}`)}
	if err := env.ValidateBasic(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if env.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be stamped")
	}
}

func TestUnmarshalEnvelopeRejectsGarbage(t *testing.T) {
	if _, err := UnmarshalEnvelope([]byte("not json")); err == nil {
		t.Fatalf("expected error for malformed JSON")
	}
	if _, err := UnmarshalEnvelope([]byte(`{"event_type":"episode.ready"}`)); err == nil {
		t.Fatalf("expected error for incomplete envelope")
	}
}
