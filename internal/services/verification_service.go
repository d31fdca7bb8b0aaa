package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"classsite/internal/models"
	"classsite/internal/repositories"
	"classsite/internal/sms"
	"classsite/internal/utils"
)

const codeLength = 6

// CodeTTL returns how long a code of the purpose stays valid.
func CodeTTL(purpose models.VerificationPurpose) time.Duration {
	if purpose == models.PurposePasswordReset {
		return 15 * time.Minute
	}
	return 10 * time.Minute
}

// VerificationService issues and redeems one-time numeric codes.
type VerificationService struct {
	store      *repositories.Store
	sender     sms.Sender
	smsTimeout time.Duration
	log        logrus.FieldLogger
	now        func() time.Time
}

func NewVerificationService(store *repositories.Store, sender sms.Sender, smsTimeout time.Duration, log logrus.FieldLogger) *VerificationService {
	if smsTimeout <= 0 {
		smsTimeout = 5 * time.Second
	}
	return &VerificationService{
		store:      store,
		sender:     sender,
		smsTimeout: smsTimeout,
		log:        log.WithField("component", "verification"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Issue replaces any codes of the user for purpose with a fresh one and sends it by SMS.
// A failed delivery is logged and does not fail the call.
func (s *VerificationService) Issue(ctx context.Context, user *models.User, purpose models.VerificationPurpose) (string, error) {
	code, err := utils.NewNumericCode(codeLength)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	ttl := CodeTTL(purpose)
	now := s.now()
	rec := &models.VerificationCode{
		UserID:    user.ID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	err = s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		if err := tx.VerificationCodes.DeleteFor(ctx, user.ID, purpose); err != nil {
			return err
		}
		return tx.VerificationCodes.Create(ctx, rec)
	})
	if err != nil {
		return "", storeErr("issue code", err)
	}

	if user.Phone != nil && *user.Phone != "" {
		s.deliver(ctx, *user.Phone, messageFor(purpose, code, ttl), purpose)
	}
	return code, nil
}

func (s *VerificationService) deliver(ctx context.Context, phone, text string, purpose models.VerificationPurpose) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.smsTimeout)
	defer cancel()

	entry := s.log.WithFields(logrus.Fields{"phone": utils.MaskPhone(phone), "purpose": purpose})
	id, err := s.sender.Send(sendCtx, phone, text)
	if err != nil {
		entry.WithError(err).Warn("[verification] sms delivery failed, code stays valid")
		return
	}
	entry.WithField("message_id", id).Info("[verification] code sent")
}

// Redeem consumes a pending code. It returns ErrInvalidOrExpiredCode when none matches.
func (s *VerificationService) Redeem(ctx context.Context, userID string, purpose models.VerificationPurpose, code string) error {
	return s.RedeemWith(ctx, s.store, userID, purpose, code)
}

// RedeemWith is Redeem on the given store, typically one bound to a caller's transaction.
func (s *VerificationService) RedeemWith(ctx context.Context, st *repositories.Store, userID string, purpose models.VerificationPurpose, code string) error {
	ok, err := st.VerificationCodes.Redeem(ctx, userID, purpose, code, s.now())
	if err != nil {
		return storeErr("redeem code", err)
	}
	if !ok {
		return ErrInvalidOrExpiredCode
	}
	return nil
}

func messageFor(purpose models.VerificationPurpose, code string, ttl time.Duration) string {
	minutes := int(ttl / time.Minute)
	switch purpose {
	case models.PurposePasswordReset:
		return fmt.Sprintf("Код восстановления пароля для классного сайта 5Б: %s. Код действителен %d минут.", code, minutes)
	case models.PurposeTwoFactorAuth:
		return fmt.Sprintf("Код входа в классный сайт 5Б: %s. Код действителен %d минут.", code, minutes)
	}
	return fmt.Sprintf("Ваш код подтверждения для входа в классный сайт 5Б: %s. Код действителен %d минут.", code, minutes)
}
