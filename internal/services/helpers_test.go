package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"classsite/internal/config"
	"classsite/internal/models"
	"classsite/internal/repositories"
	"classsite/internal/sms"
)

type testEnv struct {
	store  *repositories.Store
	hasher *PasswordHasher
	tokens *TokenService
	codes  *VerificationService
	sender *sms.DryRun
	auth   *authService
	resets *passwordResetService
	users  *userService
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithSender(t, nil)
}

func newTestEnvWithSender(t *testing.T, sender sms.Sender) *testEnv {
	t.Helper()
	db, err := repositories.Open(context.Background(), "sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := quietLog()
	store := repositories.NewStore(db)
	hasher := NewPasswordHasher(bcrypt.MinCost)
	tokens := NewTokenService(store, config.AuthConfig{
		JWTSecret:     "test-access",
		RefreshSecret: "test-refresh",
		AccessTTL:     24 * time.Hour,
		RefreshTTL:    7 * 24 * time.Hour,
	})
	dry := sms.NewDryRun(log, true)
	if sender == nil {
		sender = dry
	}
	codes := NewVerificationService(store, sender, time.Second, log)

	return &testEnv{
		store:  store,
		hasher: hasher,
		tokens: tokens,
		codes:  codes,
		sender: dry,
		auth:   NewAuthService(store, hasher, tokens, codes, nil, nil, log).(*authService),
		resets: NewPasswordResetService(store, codes, hasher, nil, log).(*passwordResetService),
		users:  NewUserService(store, hasher, nil, log).(*userService),
	}
}

func (e *testEnv) register(t *testing.T, req models.RegisterRequest) *models.User {
	t.Helper()
	u, err := e.auth.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return u
}

// seedUser inserts a user with any role, bypassing registration rules.
func (e *testEnv) seedUser(t *testing.T, phone, password string, role string) *models.User {
	t.Helper()
	in, err := parseNewUser(models.RegisterRequest{FullName: "Тест Пользователь", Phone: phone, Password: password, Role: role})
	if err != nil {
		t.Fatalf("seed input: %v", err)
	}
	u, err := createUser(context.Background(), e.store.Users, e.hasher, in, false)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

type failingSender struct{}

func (failingSender) Send(ctx context.Context, phone, text string) (string, error) {
	return "", errors.New("gateway down")
}

func strPtr(s string) *string { return &s }
