package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Signal is one captured fragment of user interest.
type Signal struct {
	ID         string
	OwnerID    string
	Channel    string
	InputType  string
	RawContent string
	URL        *string
	Title      *string
	Topics     []string
	Status     SignalStatus
	EpisodeID  *string
	CreatedAt  time.Time
}

// SignalFragment is the capture payload before persistence.
type SignalFragment struct {
	Channel    string
	InputType  string
	RawContent string
	URL        *string
	Title      *string
	Topics     []string
}

const signalColumns = `id, owner_id, channel, input_type, raw_content, url, title, topics, status, episode_id, created_at`

func scanSignal(row interface{ Scan(...interface{}) error }) (Signal, error) {
	var sg Signal
	var url, title, episodeID sql.NullString
	var topics pq.StringArray
	var status string
	if err := row.Scan(&sg.ID, &sg.OwnerID, &sg.Channel, &sg.InputType, &sg.RawContent, &url, &title, &topics, &status, &episodeID, &sg.CreatedAt); err != nil {
		return Signal{}, err
	}
	sg.URL = strFromNull(url)
	sg.Title = strFromNull(title)
	sg.EpisodeID = strFromNull(episodeID)
	sg.Topics = []string(topics)
	sg.Status = SignalStatus(status)
	return sg, nil
}

// Signal operations

func (s *Store) CreateSignal(ctx context.Context, ownerID string, f SignalFragment) (Signal, error) {
	if f.RawContent == "" {
		return Signal{}, fmt.Errorf("raw_content must be provided")
	}
	if f.Channel == "" {
		f.Channel = "web"
	}
	if f.InputType == "" {
		f.InputType = "link"
	}
	if f.Topics == nil {
		f.Topics = []string{}
	}
	row := s.DB.QueryRowContext(ctx, `
INSERT INTO signals (owner_id, channel, input_type, raw_content, url, title, topics, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING `+signalColumns+`
`, ownerID, f.Channel, f.InputType, f.RawContent, nullableString(f.URL), nullableString(f.Title), pq.Array(f.Topics), string(SignalQueued))
	sg, err := scanSignal(row)
	if err != nil {
		return Signal{}, fmt.Errorf("create signal: %w", err)
	}
	return sg, nil
}

func (s *Store) GetSignal(ctx context.Context, id, ownerID string) (Signal, bool, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE id=$1 AND owner_id=$2`, id, ownerID)
	sg, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return Signal{}, false, nil
	}
	if err != nil {
		return Signal{}, false, err
	}
	return sg, true, nil
}

// ListSignals returns the owner's signals newest first. An empty status lists
// all of them.
func (s *Store) ListSignals(ctx context.Context, ownerID string, status SignalStatus, limit int) ([]Signal, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = s.DB.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE owner_id=$1 ORDER BY created_at DESC LIMIT $2`, ownerID, limit)
	} else {
		rows, err = s.DB.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE owner_id=$1 AND status=$2 ORDER BY created_at DESC LIMIT $3`, ownerID, string(status), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Signal
	for rows.Next() {
		sg, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// GetSignalsByID returns the subset of ids owned by ownerID, in no particular order.
func (s *Store) GetSignalsByID(ctx context.Context, ownerID string, ids []string) ([]Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT `+signalColumns+` FROM signals WHERE owner_id=$1 AND id = ANY($2)`, ownerID, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Signal
	for rows.Next() {
		sg, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sg)
	}
	return out, rows.Err()
}

// ClaimSignals atomically binds every listed signal to the episode and moves
// it to PENDING. Claimable means unbound and QUEUED or ENRICHED. If any
// target is missing, foreign, or already bound, nothing is claimed and
// ErrConflict is returned.
func (s *Store) ClaimSignals(ctx context.Context, ownerID string, signalIDs []string, episodeID string) (err error) {
	if len(signalIDs) == 0 {
		return fmt.Errorf("signal ids must be provided")
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE signals SET episode_id=$1, status=$2, updated_at=NOW()
WHERE id = ANY($3) AND owner_id=$4 AND episode_id IS NULL AND status = ANY($5)
`, episodeID, string(SignalPending), pq.Array(signalIDs), ownerID, pq.Array([]string{string(SignalQueued), string(SignalEnriched)}))
	if err != nil {
		return fmt.Errorf("claim signals: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != int64(len(signalIDs)) {
		err = ErrConflict
		return err
	}
	return tx.Commit()
}

// ReleaseSignals unbinds every signal still held by the episode and returns
// it to QUEUED. Safe to call repeatedly; signals already terminal (USED,
// SKIPPED) are untouched.
func (s *Store) ReleaseSignals(ctx context.Context, episodeID string) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE signals SET episode_id=NULL, status=$1, updated_at=NOW()
WHERE episode_id=$2 AND status = ANY($3)
`, string(SignalQueued), episodeID, pq.Array(releasableStatuses()))
	if err != nil {
		return fmt.Errorf("release signals: %w", err)
	}
	return nil
}

// ReleaseSignalsByID is ReleaseSignals for an explicit id list.
func (s *Store) ReleaseSignalsByID(ctx context.Context, signalIDs []string) error {
	if len(signalIDs) == 0 {
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
UPDATE signals SET episode_id=NULL, status=$1, updated_at=NOW()
WHERE id = ANY($2) AND status = ANY($3)
`, string(SignalQueued), pq.Array(signalIDs), pq.Array(releasableStatuses()))
	if err != nil {
		return fmt.Errorf("release signals: %w", err)
	}
	return nil
}

func releasableStatuses() []string {
	return []string{string(SignalPending), string(SignalFailed), string(SignalQueued)}
}

// FinalizeSignals resolves pending signals after their episode settles.
// USED keeps the episode reference for provenance; QUEUED clears it.
func (s *Store) FinalizeSignals(ctx context.Context, signalIDs []string, outcome SignalStatus) error {
	if len(signalIDs) == 0 {
		return nil
	}
	switch outcome {
	case SignalUsed:
		_, err := s.DB.ExecContext(ctx, `
UPDATE signals SET status=$1, updated_at=NOW()
WHERE id = ANY($2) AND status=$3
`, string(SignalUsed), pq.Array(signalIDs), string(SignalPending))
		if err != nil {
			return fmt.Errorf("finalize signals: %w", err)
		}
		return nil
	case SignalQueued:
		return s.ReleaseSignalsByID(ctx, signalIDs)
	default:
		return fmt.Errorf("finalize outcome must be USED or QUEUED, got %q", outcome)
	}
}

// CountClaimableSignals reports how many of the owner's signals could go into
// a new episode right now.
func (s *Store) CountClaimableSignals(ctx context.Context, ownerID string) (n int, err error) {
	err = s.DB.QueryRowContext(ctx, `
SELECT COUNT(*) FROM signals
WHERE owner_id=$1 AND episode_id IS NULL AND status = ANY($2)
`, ownerID, pq.Array([]string{string(SignalQueued), string(SignalEnriched)})).Scan(&n)
	return n, err
}

// SkipSignal is the administrative override that retires an unclaimed
// signal. The updated row is returned so callers can unindex it.
func (s *Store) SkipSignal(ctx context.Context, id string) (Signal, error) {
	row := s.DB.QueryRowContext(ctx, `
UPDATE signals SET status=$1, updated_at=NOW()
WHERE id=$2 AND episode_id IS NULL AND status = ANY($3)
RETURNING `+signalColumns+`
`, string(SignalSkipped), id, pq.Array([]string{string(SignalQueued), string(SignalEnriched)}))
	sg, err := scanSignal(row)
	if err == nil {
		return sg, nil
	}
	if err != sql.ErrNoRows {
		return Signal{}, fmt.Errorf("skip signal: %w", err)
	}
	var exists bool
	if err := s.DB.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM signals WHERE id=$1)`, id).Scan(&exists); err != nil {
		return Signal{}, err
	}
	if !exists {
		return Signal{}, ErrNotFound
	}
	return Signal{}, ErrConflict
}
