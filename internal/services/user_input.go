package services

import (
	"context"
	"strings"

	"classsite/internal/authz"
	"classsite/internal/models"
	"classsite/internal/repositories"
	"classsite/internal/utils"
)

// newUserInput is a validated registration or admin-create request.
type newUserInput struct {
	FullName string
	Phone    *string
	Email    *string
	Password string
	Role     authz.Role
}

func parseNewUser(req models.RegisterRequest) (*newUserInput, error) {
	in := &newUserInput{
		FullName: strings.TrimSpace(req.FullName),
		Password: req.Password,
		Role:     authz.RoleStudent,
	}
	if in.FullName == "" || in.Password == "" {
		return nil, validation(msgNameAndPass)
	}

	phone := strings.TrimSpace(req.Phone)
	email := strings.TrimSpace(req.Email)
	if phone == "" && email == "" {
		return nil, validation(msgPhoneOrEmail)
	}
	if phone != "" {
		if !utils.ValidPhone(phone) {
			return nil, validation(msgBadPhone)
		}
		p := utils.NormalizePhone(phone)
		in.Phone = &p
	}
	if email != "" {
		if !utils.ValidEmail(email) {
			return nil, validation(msgBadEmail)
		}
		e := utils.NormalizeEmail(email)
		in.Email = &e
	}
	if err := checkNewPassword(in.Password, msgWeakPassword); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Role) != "" {
		r, ok := authz.ParseRole(req.Role)
		if !ok {
			return nil, validation("Неизвестная роль")
		}
		in.Role = r
	}
	return in, nil
}

// checkNewPassword rejects passwords bcrypt cannot hash before the strength rules.
func checkNewPassword(password, weakMsg string) error {
	if utils.PasswordTooLong(password) {
		return validation(msgPasswordLong)
	}
	if !utils.IsPasswordStrong(password) {
		return validation(weakMsg)
	}
	return nil
}

// checkContactsFree runs the uniqueness pre-check. The unique index stays the authority.
func checkContactsFree(ctx context.Context, users *repositories.UserRepository, phone, email *string, excludeID string) error {
	if phone != nil && *phone != "" {
		taken, err := users.PhoneTaken(ctx, *phone, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return withMsg(ErrConflict, msgPhoneTaken)
		}
	}
	if email != nil && *email != "" {
		taken, err := users.EmailTaken(ctx, *email, excludeID)
		if err != nil {
			return err
		}
		if taken {
			return withMsg(ErrConflict, msgEmailTaken)
		}
	}
	return nil
}

// createUser hashes the password and inserts the user.
func createUser(ctx context.Context, users *repositories.UserRepository, hasher *PasswordHasher, in *newUserInput, verified bool) (*models.User, error) {
	if err := checkContactsFree(ctx, users, in.Phone, in.Email, ""); err != nil {
		return nil, storeErr("check contacts", err)
	}
	hash, err := hasher.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		FullName:     in.FullName,
		Phone:        in.Phone,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		IsActive:     true,
		IsVerified:   verified,
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, storeErr("create user", err)
	}
	return u, nil
}
