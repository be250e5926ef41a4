// Package pipeline turns captured signals into finished audio episodes and
// recovers episodes whose generation died mid flight.
package pipeline

import (
	"context"
	"time"

	"github.com/earshotfm/earshot/internal/store"
)

// Store is the slice of the relational store the pipeline drives.
type Store interface {
	GetSignalsByID(ctx context.Context, ownerID string, ids []string) ([]store.Signal, error)
	CreateEpisode(ctx context.Context, ownerID string, signalCount int) (store.Episode, error)
	ClaimSignals(ctx context.Context, ownerID string, signalIDs []string, episodeID string) error
	SetEpisodeSynthesizing(ctx context.Context, id, title, summary string) (bool, error)
	FinishEpisodeReady(ctx context.Context, id, audioURL string, durationSeconds int) (bool, error)
	FailEpisodeAndReleaseSignals(ctx context.Context, id, cause string) (bool, error)
	DeleteEpisodeCascade(ctx context.Context, id string) (bool, error)
	GetEpisode(ctx context.Context, id string) (store.Episode, bool, error)
	ListZombieEpisodes(ctx context.Context, cutoff time.Time) ([]store.Episode, error)
}

// EventSink receives terminal-transition events. Publishing is best effort:
// callers log failures and never fail the pipeline over them.
type EventSink interface {
	Publish(ctx context.Context, eventType string, payload interface{}) (string, error)
}
