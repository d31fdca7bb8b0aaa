package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classsite/internal/models"
)

type LoginAttemptRepository struct {
	DB DBTX
}

func NewLoginAttemptRepository(db DBTX) *LoginAttemptRepository {
	return &LoginAttemptRepository{DB: db}
}

// Create appends an attempt. UserID is nil when the login matched nobody.
func (r *LoginAttemptRepository) Create(ctx context.Context, a *models.LoginAttempt) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO login_attempts (id, user_id, ip_address, user_agent, success, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	_, err := r.DB.ExecContext(ctx, q, a.ID, nullString(a.UserID), a.IPAddress, a.UserAgent, a.Success, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("login attempt create: %w", err)
	}
	return nil
}

// ListByUser returns the newest attempts of the user.
func (r *LoginAttemptRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.LoginAttempt, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
		SELECT id, user_id, ip_address, user_agent, success, created_at
		FROM login_attempts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.DB.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("login attempt list: %w", err)
	}
	defer rows.Close()

	var out []models.LoginAttempt
	for rows.Next() {
		var (
			a         models.LoginAttempt
			uid       sql.NullString
			ip, agent sql.NullString
		)
		if err := rows.Scan(&a.ID, &uid, &ip, &agent, &a.Success, &a.CreatedAt); err != nil {
			return nil, err
		}
		if uid.Valid {
			s := uid.String
			a.UserID = &s
		}
		a.IPAddress = ip.String
		a.UserAgent = agent.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *LoginAttemptRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM login_attempts WHERE user_id = $1`, userID)
	return err
}
