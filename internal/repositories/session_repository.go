package repositories

import (
	"context"
	"fmt"
	"time"

	"classsite/internal/models"
)

type SessionRepository struct {
	DB DBTX
}

func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{DB: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	if s.ID == "" {
		s.ID = newID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO sessions (id, user_id, refresh_token_hash, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`
	if _, err := r.DB.ExecContext(ctx, q, s.ID, s.UserID, s.RefreshTokenHash, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("session create: %w", mapError(err))
	}
	return nil
}

// GetValidByHash returns the session for the token digest if it has not expired at now.
func (r *SessionRepository) GetValidByHash(ctx context.Context, hash string, now time.Time) (*models.Session, error) {
	const q = `
		SELECT id, user_id, refresh_token_hash, expires_at, created_at
		FROM sessions
		WHERE refresh_token_hash = $1 AND expires_at > $2
	`
	s := &models.Session{}
	err := r.DB.QueryRowContext(ctx, q, hash, now).Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	return s, nil
}

// DeleteByHash removes the session and reports how many rows went away.
func (r *SessionRepository) DeleteByHash(ctx context.Context, hash string) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE refresh_token_hash = $1`, hash)
	if err != nil {
		return 0, fmt.Errorf("session delete: %w", err)
	}
	return res.RowsAffected()
}

func (r *SessionRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

// DeleteExpired purges sessions that expired before now.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
