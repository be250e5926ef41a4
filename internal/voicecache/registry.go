package voicecache

import (
	"errors"
	"fmt"
	"strings"
)

// Voice is one supported narrator. Key is the TTS provider identifier, Name
// is how the voice introduces itself in the preview script.
type Voice struct {
	Key  string
	Name string
}

var voices = []Voice{
	{Key: "alloy", Name: "Alloy"},
	{Key: "echo", Name: "Echo"},
	{Key: "fable", Name: "Fable"},
	{Key: "onyx", Name: "Onyx"},
	{Key: "nova", Name: "Nova"},
	{Key: "shimmer", Name: "Shimmer"},
}

// ErrUnknownVoice marks lookups outside the registry; match with errors.Is.
var ErrUnknownVoice = errors.New("unknown voice")

// UnknownVoiceError carries the rejected key and enumerates valid ones.
type UnknownVoiceError struct {
	Key string
}

func (e *UnknownVoiceError) Error() string {
	return fmt.Sprintf("unknown voice %q (valid: %s)", e.Key, strings.Join(VoiceKeys(), ", "))
}

func (e *UnknownVoiceError) Unwrap() error { return ErrUnknownVoice }

// Voices returns the registry in display order.
func Voices() []Voice {
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// VoiceKeys returns the provider identifiers in display order.
func VoiceKeys() []string {
	keys := make([]string, len(voices))
	for i, v := range voices {
		keys[i] = v.Key
	}
	return keys
}

func lookupVoice(key string) (Voice, bool) {
	for _, v := range voices {
		if v.Key == key {
			return v, true
		}
	}
	return Voice{}, false
}
