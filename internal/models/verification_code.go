package models

import "time"

type VerificationPurpose string

const (
	PurposePhoneVerification VerificationPurpose = "PHONE_VERIFICATION"
	PurposePasswordReset     VerificationPurpose = "PASSWORD_RESET"
	PurposeTwoFactorAuth     VerificationPurpose = "TWO_FACTOR_AUTH"
)

// VerificationCode — одна выданная одноразовая запись кода.
type VerificationCode struct {
	ID        string              `json:"id"`
	UserID    string              `json:"userId"`
	Code      string              `json:"-"`
	Purpose   VerificationPurpose `json:"type"`
	ExpiresAt time.Time           `json:"expiresAt"`
	UsedAt    *time.Time          `json:"usedAt,omitempty"`
	CreatedAt time.Time           `json:"createdAt"`
}

type PhoneRequest struct {
	Phone string `json:"phone" binding:"required"`
}

// VerifyRequest asks for a code on /api/auth/verify. Type defaults to PHONE_VERIFICATION.
type VerifyRequest struct {
	Phone string              `json:"phone" binding:"required"`
	Type  VerificationPurpose `json:"type"`
}

type VerifyConfirmRequest struct {
	Phone string              `json:"phone" binding:"required"`
	Code  string              `json:"code" binding:"required"`
	Type  VerificationPurpose `json:"type"`
}

type PasswordResetConfirmRequest struct {
	Phone       string `json:"phone" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}
