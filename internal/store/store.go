package store

import (
	"context"
	"database/sql"
	"time"
)

// Store wraps the Postgres connection used by every persistent operation.
type Store struct {
	DB *sql.DB
}

// New wraps an existing database handle.
func New(db *sql.DB) *Store { return &Store{DB: db} }

// NewWithDSN constructs the Store using an explicit Postgres DSN
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2) RETURNING id`, email, hash).Scan(&id)
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, admin bool, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash, is_admin FROM users WHERE email=$1`, email).Scan(&id, &hash, &admin)
	return
}

// UserAccess reports whether the user still exists and whether access has
// been revoked. A deleted user reads as revoked.
func (s *Store) UserAccess(ctx context.Context, userID string) (exists bool, revoked bool, err error) {
	var disabledAt sql.NullTime
	err = s.DB.QueryRowContext(ctx, `SELECT disabled_at FROM users WHERE id=$1`, userID).Scan(&disabledAt)
	if err == sql.ErrNoRows {
		return false, true, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, disabledAt.Valid, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func strFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func timeFromNull(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func intFromNull(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}
