package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Feedback is a free-form note a user left about the product.
type Feedback struct {
	ID        string
	UserID    *string
	Body      string
	CreatedAt time.Time
}

// Questionnaire holds one user's onboarding answers.
type Questionnaire struct {
	ID        string
	UserID    string
	Answers   json.RawMessage
	CreatedAt time.Time
}

// Admin operations

// DeleteUserCascade removes a user and everything they own in one
// transaction. Nothing is released back to QUEUED; the rows themselves go
// away. Returns false when the user does not exist.
func (s *Store) DeleteUserCascade(ctx context.Context, userID string) (ok bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM signals WHERE owner_id=$1`, userID); err != nil {
		return false, fmt.Errorf("delete user signals: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM episodes WHERE owner_id=$1`, userID); err != nil {
		return false, fmt.Errorf("delete user episodes: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM feedback WHERE user_id=$1`, userID); err != nil {
		return false, fmt.Errorf("delete user feedback: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM questionnaires WHERE user_id=$1`, userID); err != nil {
		return false, fmt.Errorf("delete user questionnaires: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
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

// Feedback operations

func (s *Store) CreateFeedback(ctx context.Context, userID, body string) (Feedback, error) {
	if body == "" {
		return Feedback{}, fmt.Errorf("body must be provided")
	}
	var fb Feedback
	var uid sql.NullString
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO feedback (user_id, body) VALUES ($1,$2)
RETURNING id, user_id, body, created_at
`, userID, body).Scan(&fb.ID, &uid, &fb.Body, &fb.CreatedAt)
	if err != nil {
		return Feedback{}, fmt.Errorf("create feedback: %w", err)
	}
	fb.UserID = strFromNull(uid)
	return fb, nil
}

func (s *Store) ListFeedback(ctx context.Context, limit int) ([]Feedback, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, body, created_at FROM feedback ORDER BY created_at DESC LIMIT $1
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Feedback
	for rows.Next() {
		var fb Feedback
		var uid sql.NullString
		if err := rows.Scan(&fb.ID, &uid, &fb.Body, &fb.CreatedAt); err != nil {
			return nil, err
		}
		fb.UserID = strFromNull(uid)
		out = append(out, fb)
	}
	return out, rows.Err()
}

func (s *Store) DeleteFeedback(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM feedback WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Questionnaire operations

func (s *Store) CreateQuestionnaire(ctx context.Context, userID string, answers json.RawMessage) (Questionnaire, error) {
	if len(answers) == 0 {
		answers = json.RawMessage(`{}`)
	}
	var q Questionnaire
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO questionnaires (user_id, answers) VALUES ($1,$2)
RETURNING id, user_id, answers, created_at
`, userID, []byte(answers)).Scan(&q.ID, &q.UserID, (*[]byte)(&q.Answers), &q.CreatedAt)
	if err != nil {
		return Questionnaire{}, fmt.Errorf("create questionnaire: %w", err)
	}
	return q, nil
}

func (s *Store) DeleteQuestionnaire(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM questionnaires WHERE id=$1`, id)
	if err != nil {
		return false, fmt.Errorf("delete questionnaire: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
