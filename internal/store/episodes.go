package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Episode is one narrated digest compiled from a batch of signals.
type Episode struct {
	ID                   string
	OwnerID              string
	Title                *string
	Summary              *string
	AudioURL             *string
	AudioDurationSeconds *int
	SignalCount          int
	Status               EpisodeStatus
	Error                *string
	GeneratedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

const episodeColumns = `id, owner_id, title, summary, audio_url, audio_duration_seconds, signal_count, status, error, generated_at, created_at, updated_at`

func scanEpisode(row interface{ Scan(...interface{}) error }) (Episode, error) {
	var ep Episode
	var title, summary, audioURL, cause sql.NullString
	var duration sql.NullInt64
	var generatedAt sql.NullTime
	var status string
	if err := row.Scan(&ep.ID, &ep.OwnerID, &title, &summary, &audioURL, &duration, &ep.SignalCount, &status, &cause, &generatedAt, &ep.CreatedAt, &ep.UpdatedAt); err != nil {
		return Episode{}, err
	}
	ep.Title = strFromNull(title)
	ep.Summary = strFromNull(summary)
	ep.AudioURL = strFromNull(audioURL)
	ep.AudioDurationSeconds = intFromNull(duration)
	ep.Error = strFromNull(cause)
	ep.GeneratedAt = timeFromNull(generatedAt)
	ep.Status = EpisodeStatus(status)
	return ep, nil
}

// Episode operations

// CreateEpisode inserts a GENERATING episode. signalCount is fixed here, at
// claim time, and never recomputed from the signals table.
func (s *Store) CreateEpisode(ctx context.Context, ownerID string, signalCount int) (Episode, error) {
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO episodes (owner_id, signal_count, status)
VALUES ($1,$2,$3)
RETURNING `+episodeColumns+`
`, ownerID, signalCount, string(EpisodeGenerating))
	ep, err := scanEpisode(row)
	if err != nil {
		return Episode{}, fmt.Errorf("create episode: %w", err)
	}
	return ep, nil
}

func (s *Store) GetEpisode(ctx context.Context, id string) (Episode, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id=$1`, id)
	ep, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return Episode{}, false, nil
	}
	if err != nil {
		return Episode{}, false, err
	}
	return ep, true, nil
}

func (s *Store) GetEpisodeForOwner(ctx context.Context, id, ownerID string) (Episode, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id=$1 AND owner_id=$2`, id, ownerID)
	ep, err := scanEpisode(row)
	if err == sql.ErrNoRows {
		return Episode{}, false, nil
	}
	if err != nil {
		return Episode{}, false, err
	}
	return ep, true, nil
}

func (s *Store) ListEpisodes(ctx context.Context, ownerID string, limit int) ([]Episode, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// SetEpisodeSynthesizing records the drafted narrative and advances
// GENERATING -> SYNTHESIZING. Returns false when the episode is no longer
// GENERATING (reaped or deleted underneath the pipeline).
func (s *Store) SetEpisodeSynthesizing(ctx context.Context, id, title, summary string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `
UPDATE episodes SET status=$1, title=$2, summary=$3, updated_at=NOW()
WHERE id=$4 AND status=$5
`, string(EpisodeSynthesizing), title, summary, id, string(EpisodeGenerating))
	if err != nil {
		return false, fmt.Errorf("set episode synthesizing: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// FinishEpisodeReady settles a SYNTHESIZING episode as READY and marks its
// pending signals USED, in one transaction. Returns false without touching
// anything when the episode already left SYNTHESIZING.
func (s *Store) FinishEpisodeReady(ctx context.Context, id, audioURL string, durationSeconds int) (ok bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE episodes SET status=$1, audio_url=$2, audio_duration_seconds=$3, generated_at=NOW(), updated_at=NOW()
WHERE id=$4 AND status=$5
`, string(EpisodeReady), audioURL, durationSeconds, id, string(EpisodeSynthesizing))
	if err != nil {
		return false, fmt.Errorf("finish episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `
UPDATE signals SET status=$1, updated_at=NOW()
WHERE episode_id=$2 AND status=$3
`, string(SignalUsed), id, string(SignalPending)); err != nil {
		return false, fmt.Errorf("finalize episode signals: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// FailEpisodeAndReleaseSignals settles an in-flight episode as FAILED with the
// given cause and releases every bound signal back to QUEUED, in one
// transaction. Idempotent: an episode already settled is left alone and the
// call reports false.
func (s *Store) FailEpisodeAndReleaseSignals(ctx context.Context, id, cause string) (ok bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE episodes SET status=$1, error=$2, updated_at=NOW()
WHERE id=$3 AND status = ANY($4)
`, string(EpisodeFailed), cause, id, pq.Array(inFlightStatusStrings()))
	if err != nil {
		return false, fmt.Errorf("fail episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if _, err = tx.ExecContext(ctx, `
UPDATE signals SET episode_id=NULL, status=$1, updated_at=NOW()
WHERE episode_id=$2 AND status = ANY($3)
`, string(SignalQueued), id, pq.Array(releasableStatuses())); err != nil {
		return false, fmt.Errorf("release episode signals: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListZombieEpisodes returns in-flight episodes created before the cutoff,
// oldest first.
func (s *Store) ListZombieEpisodes(ctx context.Context, cutoff time.Time) ([]Episode, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT `+episodeColumns+` FROM episodes
WHERE status = ANY($1) AND created_at < $2
ORDER BY created_at
`, pq.Array(inFlightStatusStrings()), cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

// DeleteEpisodeCascade releases any signals still held by the episode and
// deletes the row, in one transaction. Signals already USED keep their status;
// the episode foreign key clears on delete. Returns false when no such
// episode exists.
func (s *Store) DeleteEpisodeCascade(ctx context.Context, id string) (ok bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
UPDATE signals SET episode_id=NULL, status=$1, updated_at=NOW()
WHERE episode_id=$2 AND status = ANY($3)
`, string(SignalQueued), id, pq.Array(releasableStatuses())); err != nil {
		return false, fmt.Errorf("release episode signals: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete episode: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return n > 0, nil
}

func inFlightStatusStrings() []string {
	return []string{string(EpisodeGenerating), string(EpisodeSynthesizing)}
}
