package models

import (
	"time"

	"classsite/internal/authz"
)

type User struct {
	ID           string     `json:"id"`
	Phone        *string    `json:"phone"`
	Email        *string    `json:"email"`
	FullName     string     `json:"fullName"`
	PasswordHash string     `json:"-"` // не отдаём наружу
	Role         authz.Role `json:"role"`
	IsActive     bool       `json:"isActive"`
	IsVerified   bool       `json:"isVerified"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt"`
}

// UserUpdate carries the fields to change; nil means "leave as is".
// For Phone and Email an empty string clears the value.
type UserUpdate struct {
	FullName     *string
	Phone        *string
	Email        *string
	PasswordHash *string
	Role         *authz.Role
	IsActive     *bool
	IsVerified   *bool
}

func (u UserUpdate) Empty() bool {
	return u.FullName == nil && u.Phone == nil && u.Email == nil && u.PasswordHash == nil &&
		u.Role == nil && u.IsActive == nil && u.IsVerified == nil
}

type UserFilter struct {
	Search string
	Role   authz.Role
	Limit  int
	Offset int
}

type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	FullName string `json:"fullName"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type ProfileUpdateRequest struct {
	FullName        *string `json:"fullName"`
	Phone           *string `json:"phone"`
	Email           *string `json:"email"`
	CurrentPassword string  `json:"currentPassword"`
	NewPassword     string  `json:"newPassword"`
}

type AdminUserUpdateRequest struct {
	FullName *string `json:"fullName"`
	Phone    *string `json:"phone"`
	Email    *string `json:"email"`
	Password string  `json:"password"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}
