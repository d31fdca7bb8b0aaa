package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"classsite/internal/models"
	"classsite/internal/ratelimit"
	"classsite/internal/repositories"
)

type PasswordResetService interface {
	RequestReset(ctx context.Context, phone string) (string, error)
	ResetPassword(ctx context.Context, req models.PasswordResetConfirmRequest) error
}

type passwordResetService struct {
	store   *repositories.Store
	codes   *VerificationService
	hasher  *PasswordHasher
	limiter *ratelimit.Limiter
	log     logrus.FieldLogger
}

func NewPasswordResetService(store *repositories.Store, codes *VerificationService, hasher *PasswordHasher, limiter *ratelimit.Limiter, log logrus.FieldLogger) PasswordResetService {
	return &passwordResetService{
		store:   store,
		codes:   codes,
		hasher:  hasher,
		limiter: limiter,
		log:     log.WithField("component", "password-reset"),
	}
}

// RequestReset sends a PASSWORD_RESET code to an active user's phone and returns it.
func (s *passwordResetService) RequestReset(ctx context.Context, phone string) (string, error) {
	user, err := activeUserByPhone(ctx, s.store, s.limiter, phone, ratelimit.CodeRequestRule, "code-request")
	if err != nil {
		return "", err
	}
	code, err := s.codes.Issue(ctx, user, models.PurposePasswordReset)
	if err != nil {
		return "", err
	}
	s.log.WithFields(logrus.Fields{"op": "request", "user_id": user.ID}).Info("[password-reset] code issued")
	return code, nil
}

// ResetPassword redeems the code and replaces the password in one transaction.
// Every refresh session of the user is dropped as well.
func (s *passwordResetService) ResetPassword(ctx context.Context, req models.PasswordResetConfirmRequest) error {
	code := strings.TrimSpace(req.Code)
	if strings.TrimSpace(req.Phone) == "" || code == "" || req.NewPassword == "" {
		return validation(msgResetRequired)
	}
	if err := checkNewPassword(req.NewPassword, msgWeakPassword); err != nil {
		return err
	}
	user, err := activeUserByPhone(ctx, s.store, s.limiter, req.Phone, ratelimit.CodeConfirmRule, "code-confirm")
	if err != nil {
		return err
	}

	// bcrypt до транзакции, чтобы не держать её открытой
	hash, err := s.hasher.HashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	err = s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		if err := s.codes.RedeemWith(ctx, tx, user.ID, models.PurposePasswordReset, code); err != nil {
			return err
		}
		if _, err := tx.Users.Update(ctx, user.ID, models.UserUpdate{PasswordHash: &hash}); err != nil {
			return err
		}
		return tx.Sessions.DeleteByUser(ctx, user.ID)
	})
	if err != nil {
		return storeErr("reset password", err)
	}
	s.log.WithFields(logrus.Fields{"op": "confirm", "user_id": user.ID}).Info("[password-reset] password changed")
	return nil
}
