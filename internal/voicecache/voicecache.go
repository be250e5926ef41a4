// Package voicecache serves narrator preview clips: probe object storage,
// generate on miss, loudness-normalize, publish under an immutable key.
package voicecache

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/earshotfm/earshot/config"
	"github.com/earshotfm/earshot/internal/blob"
	"github.com/earshotfm/earshot/internal/synth"
)

const (
	samplePrefix       = "voice-samples/"
	sampleCacheControl = "public, max-age=31536000, immutable"
	loudnormFilter     = "loudnorm=I=-16:TP=-1.5:LRA=11"
	ffmpegBinary       = "ffmpeg"
)

var commandContext = exec.CommandContext

// Sample is the resolved preview clip. Cached reports whether the request was
// served without a fresh TTS generation.
type Sample struct {
	URL    string
	Cached bool
}

type flight struct {
	done chan struct{}
	url  string
	err  error
}

// Cache resolves preview samples. One instance per process; the flight map
// collapses concurrent misses for the same voice into a single generation.
type Cache struct {
	blob             blob.Store
	speech           synth.SpeechProvider
	previewScript    string
	sampleTimeout    time.Duration
	normalizeTimeout time.Duration
	logger           *log.Logger

	mu      sync.Mutex
	flights map[string]*flight
}

func New(b blob.Store, speech synth.SpeechProvider, cfg config.VoiceConfig, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.New(os.Stdout, "[VOICECACHE] ", log.LstdFlags)
	}
	return &Cache{
		blob:             b,
		speech:           speech,
		previewScript:    cfg.PreviewScript,
		sampleTimeout:    cfg.SampleTimeout,
		normalizeTimeout: cfg.NormalizeTimeout,
		logger:           logger,
		flights:          make(map[string]*flight),
	}
}

// GetSample returns the public URL of the preview clip for voiceKey,
// generating and publishing it first if storage does not have it yet.
func (c *Cache) GetSample(ctx context.Context, voiceKey string) (Sample, error) {
	voice, ok := lookupVoice(voiceKey)
	if !ok {
		return Sample{}, &UnknownVoiceError{Key: voiceKey}
	}
	key := sampleKey(voice.Key)

	c.mu.Lock()
	if f, ok := c.flights[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			if f.err != nil {
				return Sample{}, f.err
			}
			return Sample{URL: f.url, Cached: true}, nil
		case <-ctx.Done():
			return Sample{}, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	c.flights[key] = f
	c.mu.Unlock()

	sample, err := c.resolve(ctx, voice, key)
	f.url, f.err = sample.URL, err
	close(f.done)

	c.mu.Lock()
	delete(c.flights, key)
	c.mu.Unlock()

	if err != nil {
		return Sample{}, err
	}
	return sample, nil
}

func (c *Cache) resolve(ctx context.Context, voice Voice, key string) (Sample, error) {
	exists, err := c.blob.Exists(ctx, key)
	if err != nil {
		return Sample{}, fmt.Errorf("probe sample: %w", err)
	}
	if exists {
		sampleHits.Inc()
		return Sample{URL: c.blob.PublicURL(key), Cached: true}, nil
	}

	sampleMisses.Inc()
	url, err := c.generate(ctx, voice, key)
	if err != nil {
		return Sample{}, err
	}
	return Sample{URL: url, Cached: false}, nil
}

func (c *Cache) generate(ctx context.Context, voice Voice, key string) (string, error) {
	sctx := ctx
	if c.sampleTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, c.sampleTimeout)
		defer cancel()
	}
	res, err := c.speech.Synthesize(sctx, synth.SpeechRequest{
		Voice: voice.Key,
		Input: fmt.Sprintf(c.previewScript, voice.Name),
	})
	if err != nil {
		return "", fmt.Errorf("render sample for %s: %w", voice.Key, err)
	}

	// Normalization is best effort: a broken or missing ffmpeg must never
	// take the endpoint down.
	audio, err := c.normalize(ctx, res.Audio)
	if err != nil {
		c.logger.Printf("loudness normalization failed for %s, publishing raw audio: %v", voice.Key, err)
		normalizeFallbacks.Inc()
		audio = res.Audio
	}

	if err := c.blob.Upload(ctx, key, audio, blob.PutOptions{
		ContentType:  "audio/mpeg",
		CacheControl: sampleCacheControl,
	}); err != nil {
		return "", fmt.Errorf("publish sample for %s: %w", voice.Key, err)
	}
	return c.blob.PublicURL(key), nil
}

// normalize runs the audio through an ffmpeg loudnorm pass. Temp files carry
// unique names and are removed on every path.
func (c *Cache) normalize(ctx context.Context, audio []byte) ([]byte, error) {
	stamp := uuid.NewString()
	inPath := filepath.Join(os.TempDir(), "earshot-sample-"+stamp+"-in.mp3")
	outPath := filepath.Join(os.TempDir(), "earshot-sample-"+stamp+"-out.mp3")
	defer os.Remove(inPath)
	defer os.Remove(outPath)

	if err := os.WriteFile(inPath, audio, 0o600); err != nil {
		return nil, fmt.Errorf("write temp audio: %w", err)
	}

	nctx := ctx
	if c.normalizeTimeout > 0 {
		var cancel context.CancelFunc
		nctx, cancel = context.WithTimeout(ctx, c.normalizeTimeout)
		defer cancel()
	}

	cmd := commandContext(nctx, ffmpegBinary,
		"-y",
		"-i", inPath,
		"-af", loudnormFilter,
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		outPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg loudnorm: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return os.ReadFile(outPath)
}

func sampleKey(voiceKey string) string {
	return samplePrefix + voiceKey + ".mp3"
}
