// Package synth holds the two synthesis seams of the pipeline: drafting an
// episode narrative from a signal batch, and rendering a script to speech.
package synth

import (
	"context"
	"strings"
	"time"
)

// SignalInput is the slice of a captured signal the content provider sees.
type SignalInput struct {
	Title      string
	URL        string
	RawContent string
	Topics     []string
}

// ContentRequest is one drafting call: the owner's claimed signal batch.
type ContentRequest struct {
	Signals []SignalInput
}

// EpisodeDraft is the narrative the content stage produces.
type EpisodeDraft struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
	Script  string `json:"script"`
}

// ContentProvider drafts the episode narrative.
type ContentProvider interface {
	DraftEpisode(ctx context.Context, req ContentRequest) (EpisodeDraft, error)
}

// SpeechRequest is one text-to-speech call. Speed 0 means the provider
// default (1.0).
type SpeechRequest struct {
	Voice string
	Input string
	Speed float64
}

// SpeechResult carries the rendered audio. Duration is an estimate, not a
// decoded value.
type SpeechResult struct {
	Audio    []byte
	MIME     string
	Duration time.Duration
}

// SpeechProvider renders text to audio.
type SpeechProvider interface {
	Synthesize(ctx context.Context, req SpeechRequest) (SpeechResult, error)
}

// Narration pace of the supported voices. Close enough for progress bars;
// the player reports the real length once the file is loaded.
const spokenWordsPerMinute = 150

// EstimateSpokenDuration estimates how long the text takes to read aloud at
// the given speed multiplier.
func EstimateSpokenDuration(text string, speed float64) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	if speed <= 0 {
		speed = 1
	}
	minutes := float64(words) / (spokenWordsPerMinute * speed)
	d := time.Duration(minutes * float64(time.Minute))
	if d < time.Second {
		d = time.Second
	}
	return d
}
