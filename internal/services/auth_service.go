package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"classsite/internal/authz"
	"classsite/internal/config"
	"classsite/internal/models"
	"classsite/internal/ratelimit"
	"classsite/internal/repositories"
	"classsite/internal/utils"
)

// ClientInfo describes where a request came from. It is only recorded, never trusted.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginResult is what a successful login or refresh hands to the transport layer.
type LoginResult struct {
	User         *models.User
	AccessToken  string
	RefreshToken string
}

type AuthService interface {
	Login(ctx context.Context, req models.LoginRequest, client ClientInfo) (*LoginResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Refresh(ctx context.Context, refreshToken string) (*LoginResult, error)
	Register(ctx context.Context, req models.RegisterRequest) (*models.User, error)
	GetProfile(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdateRequest) (*models.User, error)
	RequestPhoneVerification(ctx context.Context, phone string, purpose models.VerificationPurpose) (string, error)
	ConfirmPhoneVerification(ctx context.Context, phone, code string, purpose models.VerificationPurpose) error
	VerifyAccessToken(token string) *Claims
	BootstrapAdmin(ctx context.Context, admin config.AdminConfig) (*models.User, error)
}

type authService struct {
	store   *repositories.Store
	hasher  *PasswordHasher
	tokens  *TokenService
	codes   *VerificationService
	limiter *ratelimit.Limiter
	emails  EmailService
	log     logrus.FieldLogger
	now     func() time.Time
}

// NewAuthService wires the orchestrator. limiter and emails may be nil.
func NewAuthService(
	store *repositories.Store,
	hasher *PasswordHasher,
	tokens *TokenService,
	codes *VerificationService,
	limiter *ratelimit.Limiter,
	emails EmailService,
	log logrus.FieldLogger,
) AuthService {
	return &authService{
		store:   store,
		hasher:  hasher,
		tokens:  tokens,
		codes:   codes,
		limiter: limiter,
		emails:  emails,
		log:     log.WithField("component", "auth"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *authService) Login(ctx context.Context, req models.LoginRequest, client ClientInfo) (*LoginResult, error) {
	login := strings.TrimSpace(req.Login)
	if login == "" || req.Password == "" {
		return nil, validation(msgLoginRequired)
	}
	key := loginKey(login)
	if err := s.limiter.Exceeded(ctx, "login", key, ratelimit.LoginRule); err != nil {
		return nil, ErrRateLimited
	}
	if err := s.limiter.Exceeded(ctx, "login-ip", client.IP, ratelimit.LoginRule); err != nil {
		return nil, ErrRateLimited
	}

	user, err := s.store.Users.FindByLogin(ctx, login)
	if errors.Is(err, repositories.ErrNotFound) {
		s.hasher.BurnCompare(req.Password)
		s.recordAttempt(ctx, nil, client, false)
		s.countFailure(ctx, key, client)
		s.log.WithField("op", "login").Info("[auth][login] unknown login")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeErr("find user", err)
	}

	if !s.hasher.CheckPassword(user.PasswordHash, req.Password) {
		s.recordAttempt(ctx, &user.ID, client, false)
		s.countFailure(ctx, key, client)
		s.log.WithFields(logrus.Fields{"op": "login", "user_id": user.ID}).Info("[auth][login] wrong password")
		return nil, ErrInvalidCredentials
	}

	s.recordAttempt(ctx, &user.ID, client, true)
	s.limiter.Reset(ctx, "login", key)

	now := s.now()
	if err := s.store.Users.TouchLastLogin(ctx, user.ID, now); err != nil {
		s.log.WithError(err).WithField("user_id", user.ID).Warn("[auth][login] touch last login failed")
	} else {
		user.LastLoginAt = &now
	}

	res, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"op": "login", "user_id": user.ID, "role": user.Role}).Info("[auth][login] success")
	return res, nil
}

func (s *authService) issue(ctx context.Context, user *models.User) (*LoginResult, error) {
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.IssueRefreshSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: access, RefreshToken: refresh}, nil
}

// recordAttempt is best effort: a lost audit row must not block a login.
func (s *authService) recordAttempt(ctx context.Context, userID *string, client ClientInfo, success bool) {
	a := &models.LoginAttempt{
		UserID:    userID,
		IPAddress: client.IP,
		UserAgent: client.UserAgent,
		Success:   success,
		CreatedAt: s.now(),
	}
	if err := s.store.LoginAttempts.Create(ctx, a); err != nil {
		s.log.WithError(err).Warn("[auth][login] record attempt failed")
	}
}

// countFailure spends the login budgets. Only failed attempts are counted.
func (s *authService) countFailure(ctx context.Context, key string, client ClientInfo) {
	s.limiter.Hit(ctx, "login", key, ratelimit.LoginRule)
	s.limiter.Hit(ctx, "login-ip", client.IP, ratelimit.LoginRule)
}

// Logout never fails from the caller's point of view.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		s.log.WithError(err).Warn("[auth][logout] revoke failed")
	}
	return nil
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	userID, newRefresh, err := s.tokens.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, storeErr("rotate refresh", err)
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil || !user.IsActive {
		_ = s.tokens.Revoke(ctx, newRefresh)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, storeErr("load user", err)
		}
		return nil, ErrUnauthenticated
	}
	access, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, AccessToken: access, RefreshToken: newRefresh}, nil
}

func (s *authService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	in, err := parseNewUser(req)
	if err != nil {
		return nil, err
	}
	// повышенные роли выдаёт только администратор
	if authz.Rank(in.Role) > authz.Rank(authz.RoleParent) {
		return nil, validation("Недопустимая роль для регистрации")
	}

	user, err := createUser(ctx, s.store.Users, s.hasher, in, false)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"op": "register", "user_id": user.ID, "role": user.Role}).Info("[auth][register] user created")

	if s.emails != nil && user.Email != nil {
		go func(email, name string) {
			if err := s.emails.SendWelcomeEmail(email, name); err != nil {
				s.log.WithError(err).WithField("user_id", user.ID).Warn("[auth][register] welcome email failed")
			}
		}(*user.Email, user.FullName)
	}
	return user, nil
}

func (s *authService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr("get profile", err)
	}
	return user, nil
}

// UpdateProfile applies self-service changes. Empty values are ignored.
func (s *authService) UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdateRequest) (*models.User, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, storeErr("get profile", err)
	}

	var upd models.UserUpdate
	if req.FullName != nil {
		if name := strings.TrimSpace(*req.FullName); name != "" && name != user.FullName {
			upd.FullName = &name
		}
	}
	if req.Phone != nil && strings.TrimSpace(*req.Phone) != "" {
		if !utils.ValidPhone(*req.Phone) {
			return nil, validation(msgBadPhone)
		}
		phone := utils.NormalizePhone(*req.Phone)
		if phone != derefString(user.Phone) {
			upd.Phone = &phone
		}
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		if !utils.ValidEmail(*req.Email) {
			return nil, validation(msgBadEmail)
		}
		email := utils.NormalizeEmail(*req.Email)
		if email != derefString(user.Email) {
			upd.Email = &email
		}
	}
	if req.NewPassword != "" {
		if req.CurrentPassword == "" {
			return nil, validation(msgCurrentNeeded)
		}
		if !s.hasher.CheckPassword(user.PasswordHash, req.CurrentPassword) {
			return nil, validation(msgCurrentInvalid)
		}
		if err := checkNewPassword(req.NewPassword, msgNewWeak); err != nil {
			return nil, err
		}
		hash, err := s.hasher.HashPassword(req.NewPassword)
		if err != nil {
			return nil, err
		}
		upd.PasswordHash = &hash
	}

	if err := checkContactsFree(ctx, s.store.Users, upd.Phone, upd.Email, user.ID); err != nil {
		return nil, storeErr("check contacts", err)
	}
	updated, err := s.store.Users.Update(ctx, user.ID, upd)
	if err != nil {
		return nil, storeErr("update profile", err)
	}
	return updated, nil
}

// RequestPhoneVerification issues a code of purpose (PHONE_VERIFICATION when empty) and returns it.
// Callers decide whether the code may be shown.
func (s *authService) RequestPhoneVerification(ctx context.Context, phone string, purpose models.VerificationPurpose) (string, error) {
	purpose, err := verifyPurpose(purpose)
	if err != nil {
		return "", err
	}
	user, err := s.userForCode(ctx, phone, ratelimit.CodeRequestRule, "code-request")
	if err != nil {
		return "", err
	}
	return s.codes.Issue(ctx, user, purpose)
}

// ConfirmPhoneVerification redeems the code. Only a PHONE_VERIFICATION code marks the user verified.
func (s *authService) ConfirmPhoneVerification(ctx context.Context, phone, code string, purpose models.VerificationPurpose) error {
	if strings.TrimSpace(phone) == "" || strings.TrimSpace(code) == "" {
		return validation(msgPhoneAndCode)
	}
	purpose, err := verifyPurpose(purpose)
	if err != nil {
		return err
	}
	user, err := s.userForCode(ctx, phone, ratelimit.CodeConfirmRule, "code-confirm")
	if err != nil {
		return err
	}

	verified := true
	err = s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		if err := s.codes.RedeemWith(ctx, tx, user.ID, purpose, strings.TrimSpace(code)); err != nil {
			return err
		}
		if purpose != models.PurposePhoneVerification {
			return nil
		}
		_, err := tx.Users.Update(ctx, user.ID, models.UserUpdate{IsVerified: &verified})
		return err
	})
	if err != nil {
		return storeErr("confirm code", err)
	}
	s.log.WithFields(logrus.Fields{"op": "verify", "user_id": user.ID, "purpose": purpose}).Info("[auth][verify] code confirmed")
	return nil
}

// verifyPurpose: PASSWORD_RESET codes belong to /api/auth/reset-password only.
func verifyPurpose(p models.VerificationPurpose) (models.VerificationPurpose, error) {
	switch p {
	case "":
		return models.PurposePhoneVerification, nil
	case models.PurposePhoneVerification, models.PurposeTwoFactorAuth:
		return p, nil
	}
	return "", validation(msgBadCodeType)
}

// userForCode validates and normalizes the phone, applies the rate rule and finds the active owner.
func (s *authService) userForCode(ctx context.Context, phone string, rule ratelimit.Rule, scope string) (*models.User, error) {
	return activeUserByPhone(ctx, s.store, s.limiter, phone, rule, scope)
}

func activeUserByPhone(ctx context.Context, store *repositories.Store, limiter *ratelimit.Limiter, phone string, rule ratelimit.Rule, scope string) (*models.User, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, validation(msgPhoneRequired)
	}
	if !utils.ValidPhone(phone) {
		return nil, validation(msgBadPhone)
	}
	normalized := utils.NormalizePhone(phone)
	if err := limiter.Allow(ctx, scope, normalized, rule); err != nil {
		return nil, ErrRateLimited
	}
	user, err := store.Users.GetActiveByPhone(ctx, normalized)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, withMsg(ErrNotFound, msgPhoneNotFound)
	}
	if err != nil {
		return nil, storeErr("find user by phone", err)
	}
	return user, nil
}

func (s *authService) VerifyAccessToken(token string) *Claims {
	return s.tokens.VerifyAccessToken(token)
}

// BootstrapAdmin creates the configured administrator when none exists yet.
// It returns nil, nil when nothing had to be done.
func (s *authService) BootstrapAdmin(ctx context.Context, admin config.AdminConfig) (*models.User, error) {
	if admin.Password == "" || (admin.Phone == "" && admin.Email == "") {
		return nil, nil
	}
	n, err := s.store.Users.CountByRole(ctx, authz.RoleAdmin)
	if err != nil {
		return nil, storeErr("count admins", err)
	}
	if n > 0 {
		return nil, nil
	}

	in, err := parseNewUser(models.RegisterRequest{
		FullName: admin.FullName,
		Phone:    admin.Phone,
		Email:    admin.Email,
		Password: admin.Password,
		Role:     string(authz.RoleAdmin),
	})
	if err != nil {
		return nil, err
	}
	user, err := createUser(ctx, s.store.Users, s.hasher, in, true)
	if err != nil {
		return nil, err
	}
	s.log.WithField("user_id", user.ID).Info("[auth][bootstrap] administrator created")
	return user, nil
}

// loginKey is the rate limit key of a login identifier.
func loginKey(login string) string {
	if utils.IsLoginPhone(login) {
		return utils.NormalizePhone(login)
	}
	return utils.NormalizeEmail(login)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
