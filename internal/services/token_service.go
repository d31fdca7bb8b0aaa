package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"classsite/internal/authz"
	"classsite/internal/config"
	"classsite/internal/models"
	"classsite/internal/repositories"
	"classsite/internal/utils"
)

// Claims is the payload of an access token.
type Claims struct {
	UserID   string     `json:"userId"`
	FullName string     `json:"fullName"`
	Role     authz.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues stateless access tokens and stateful refresh sessions.
type TokenService struct {
	store         *repositories.Store
	accessSecret  []byte
	refreshSecret string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewTokenService(store *repositories.Store, cfg config.AuthConfig) *TokenService {
	return &TokenService{
		store:         store,
		accessSecret:  []byte(cfg.JWTSecret),
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *TokenService) AccessTTL() time.Duration  { return s.accessTTL }
func (s *TokenService) RefreshTTL() time.Duration { return s.refreshTTL }

func (s *TokenService) IssueAccessToken(u *models.User) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:   u.ID,
		FullName: u.FullName,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken returns the claims of a valid token and nil for anything else.
func (s *TokenService) VerifyAccessToken(tokenStr string) *Claims {
	if tokenStr == "" {
		return nil
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return s.accessSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil
	}
	return claims
}

// IssueRefreshSession stores a new session for the user and returns the opaque token.
func (s *TokenService) IssueRefreshSession(ctx context.Context, userID string) (string, error) {
	return s.issueRefresh(ctx, s.store, userID)
}

func (s *TokenService) issueRefresh(ctx context.Context, st *repositories.Store, userID string) (string, error) {
	token, err := utils.NewRefreshToken(32)
	if err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	now := s.now()
	sess := &models.Session{
		UserID:           userID,
		RefreshTokenHash: utils.HashToken(s.refreshSecret, token),
		ExpiresAt:        now.Add(s.refreshTTL),
		CreatedAt:        now,
	}
	if err := st.Sessions.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("store refresh session: %w", err)
	}
	return token, nil
}

// Revoke deletes the session of the token. Unknown or empty tokens are not an error.
func (s *TokenService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if _, err := s.store.Sessions.DeleteByHash(ctx, utils.HashToken(s.refreshSecret, token)); err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Rotate exchanges a valid refresh token for a new one and returns the owner id.
func (s *TokenService) Rotate(ctx context.Context, token string) (userID, newToken string, err error) {
	if token == "" {
		return "", "", ErrUnauthenticated
	}
	hash := utils.HashToken(s.refreshSecret, token)
	err = s.store.WithinTx(ctx, func(tx *repositories.Store) error {
		sess, err := tx.Sessions.GetValidByHash(ctx, hash, s.now())
		if err != nil {
			if errors.Is(err, repositories.ErrNotFound) {
				return ErrUnauthenticated
			}
			return err
		}
		// удаление проверяем: параллельная ротация того же токена должна проиграть
		n, err := tx.Sessions.DeleteByHash(ctx, hash)
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrUnauthenticated
		}
		newToken, err = s.issueRefresh(ctx, tx, sess.UserID)
		if err != nil {
			return err
		}
		userID = sess.UserID
		return nil
	})
	if err != nil {
		return "", "", err
	}
	return userID, newToken, nil
}
