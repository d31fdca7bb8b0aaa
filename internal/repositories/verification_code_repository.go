package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"classsite/internal/models"
)

type VerificationCodeRepository struct {
	DB DBTX
}

func NewVerificationCodeRepository(db DBTX) *VerificationCodeRepository {
	return &VerificationCodeRepository{DB: db}
}

// DeleteFor drops every code of the user for the purpose, used or not.
func (r *VerificationCodeRepository) DeleteFor(ctx context.Context, userID string, purpose models.VerificationPurpose) error {
	const q = `DELETE FROM verification_codes WHERE user_id = $1 AND type = $2`
	if _, err := r.DB.ExecContext(ctx, q, userID, string(purpose)); err != nil {
		return fmt.Errorf("verification code delete: %w", err)
	}
	return nil
}

func (r *VerificationCodeRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.DB.ExecContext(ctx, `DELETE FROM verification_codes WHERE user_id = $1`, userID)
	return err
}

func (r *VerificationCodeRepository) Create(ctx context.Context, c *models.VerificationCode) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	const q = `
		INSERT INTO verification_codes (id, user_id, code, type, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`
	if _, err := r.DB.ExecContext(ctx, q, c.ID, c.UserID, c.Code, string(c.Purpose), c.ExpiresAt, c.CreatedAt); err != nil {
		return fmt.Errorf("verification code create: %w", mapError(err))
	}
	return nil
}

// Redeem marks a matching unused, unexpired code as used in a single statement.
// It returns false when no such code exists. Of two concurrent callers at most one wins.
func (r *VerificationCodeRepository) Redeem(ctx context.Context, userID string, purpose models.VerificationPurpose, code string, now time.Time) (bool, error) {
	const q = `
		UPDATE verification_codes
		SET used_at = $1
		WHERE user_id = $2 AND type = $3 AND code = $4 AND used_at IS NULL AND expires_at > $5
	`
	res, err := r.DB.ExecContext(ctx, q, now, userID, string(purpose), code, now)
	if err != nil {
		return false, fmt.Errorf("verification code redeem: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Latest returns the newest code for the user and purpose, used or not.
func (r *VerificationCodeRepository) Latest(ctx context.Context, userID string, purpose models.VerificationPurpose) (*models.VerificationCode, error) {
	const q = `
		SELECT id, user_id, code, type, expires_at, used_at, created_at
		FROM verification_codes
		WHERE user_id = $1 AND type = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	c := &models.VerificationCode{}
	var (
		purposeStr string
		usedAt     sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, q, userID, string(purpose)).
		Scan(&c.ID, &c.UserID, &c.Code, &purposeStr, &c.ExpiresAt, &usedAt, &c.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	c.Purpose = models.VerificationPurpose(purposeStr)
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return c, nil
}
