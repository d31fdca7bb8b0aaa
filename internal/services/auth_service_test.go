package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"classsite/internal/authz"
	"classsite/internal/config"
	"classsite/internal/models"
)

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		req  models.RegisterRequest
	}{
		{"no name", models.RegisterRequest{Phone: "+79991234567", Password: "Passw0rd"}},
		{"no password", models.RegisterRequest{FullName: "A B", Phone: "+79991234567"}},
		{"no contacts", models.RegisterRequest{FullName: "A B", Password: "Passw0rd"}},
		{"bad phone", models.RegisterRequest{FullName: "A B", Phone: "12345", Password: "Passw0rd"}},
		{"bad email", models.RegisterRequest{FullName: "A B", Email: "nope", Password: "Passw0rd"}},
		{"weak password", models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "password"}},
		{"cyrillic only letters", models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Пароль12"}},
		{"too long password", models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Aa1" + strings.Repeat("x", 80)}},
		{"unknown role", models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd", Role: "JANITOR"}},
		{"admin role", models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd", Role: "ADMIN"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Register(context.Background(), tt.req)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTooLongPasswordIsValidationError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	long := "Aa1" + strings.Repeat("x", 80)

	_, err := env.auth.Register(ctx, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: long})
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Msg != msgPasswordLong {
		t.Fatalf("register: %v", err)
	}

	admin := env.seedUser(t, "+79990000001", "Passw0rd", "ADMIN")
	actor := Actor{UserID: admin.ID, Role: authz.RoleAdmin}
	if _, err := env.users.CreateUser(ctx, actor, models.RegisterRequest{FullName: "C D", Phone: "+79990000002", Password: long}); !errors.As(err, &verr) {
		t.Fatalf("create user: %v", err)
	}
	if _, err := env.users.UpdateUser(ctx, actor, admin.ID, models.AdminUserUpdateRequest{Password: long}); !errors.As(err, &verr) {
		t.Fatalf("update user: %v", err)
	}

	if _, err := env.hasher.HashPassword(long); !errors.Is(err, ErrValidation) {
		t.Fatalf("hash: %v", err)
	}
}

func TestRegisterNormalizesAndHidesHash(t *testing.T) {
	env := newTestEnv(t)
	u := env.register(t, models.RegisterRequest{FullName: " A B ", Phone: "+7 (999) 123-45-67", Email: "A@Example.com", Password: "Passw0rd", Role: "parent"})

	if *u.Phone != "79991234567" || *u.Email != "a@example.com" || u.FullName != "A B" {
		t.Fatalf("not normalized: %+v", u)
	}
	if u.Role != authz.RoleParent || u.IsVerified || !u.IsActive {
		t.Fatalf("unexpected flags: %+v", u)
	}
	if u.PasswordHash == "Passw0rd" {
		t.Fatal("password stored in plain text")
	}
}

func TestRegisterDuplicatePhoneAcrossFormats(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+7 912 345 67 89", Password: "Passw0rd"})

	_, err := env.auth.Register(context.Background(), models.RegisterRequest{FullName: "C D", Phone: "89123456789", Password: "Passw0rd"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})
	client := ClientInfo{IP: "10.0.0.1", UserAgent: "test"}

	_, errUnknown := env.auth.Login(ctx, models.LoginRequest{Login: "+79990000000", Password: "Passw0rd"}, client)
	_, errWrong := env.auth.Login(ctx, models.LoginRequest{Login: "+79991234567", Password: "Wrong000"}, client)

	if !errors.Is(errUnknown, ErrInvalidCredentials) || !errors.Is(errWrong, ErrInvalidCredentials) {
		t.Fatalf("errors: %v / %v", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Fatalf("messages differ: %q vs %q", errUnknown, errWrong)
	}

	var total, anonymous int
	db := env.store.DB()
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM login_attempts WHERE success = $1`, false).Scan(&total); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM login_attempts WHERE user_id IS NULL`).Scan(&anonymous); err != nil {
		t.Fatal(err)
	}
	if total != 2 || anonymous != 1 {
		t.Fatalf("failed attempts=%d anonymous=%d", total, anonymous)
	}
}

func TestLoginSuccess(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Email: "ab@example.com", Password: "Passw0rd"})

	for _, login := range []string{"+79991234567", "AB@example.com"} {
		res, err := env.auth.Login(ctx, models.LoginRequest{Login: login, Password: "Passw0rd"}, ClientInfo{IP: "127.0.0.1"})
		if err != nil {
			t.Fatalf("%s: %v", login, err)
		}
		if res.AccessToken == "" || res.RefreshToken == "" {
			t.Fatalf("%s: empty tokens", login)
		}
		if res.User.ID != u.ID || res.User.LastLoginAt == nil {
			t.Fatalf("%s: user %+v", login, res.User)
		}
		claims := env.auth.VerifyAccessToken(res.AccessToken)
		if claims == nil || claims.UserID != u.ID || claims.Role != authz.RoleStudent {
			t.Fatalf("%s: claims %+v", login, claims)
		}
	}
}

func TestLoginInactiveUser(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})
	off := false
	if _, err := env.store.Users.Update(ctx, u.ID, models.UserUpdate{IsActive: &off}); err != nil {
		t.Fatal(err)
	}
	if _, err := env.auth.Login(ctx, models.LoginRequest{Login: "+79991234567", Password: "Passw0rd"}, ClientInfo{}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})
	res, err := env.auth.Login(ctx, models.LoginRequest{Login: "+79991234567", Password: "Passw0rd"}, ClientInfo{})
	if err != nil {
		t.Fatal(err)
	}

	for i, token := range []string{res.RefreshToken, res.RefreshToken, "", "garbage"} {
		if err := env.auth.Logout(ctx, token); err != nil {
			t.Fatalf("logout #%d: %v", i, err)
		}
	}
	if _, err := env.auth.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("revoked token refreshed: %v", err)
	}
}

func TestRefreshIssuesNewPair(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})
	res, _ := env.auth.Login(ctx, models.LoginRequest{Login: "+79991234567", Password: "Passw0rd"}, ClientInfo{})

	next, err := env.auth.Refresh(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if next.RefreshToken == res.RefreshToken || env.auth.VerifyAccessToken(next.AccessToken) == nil {
		t.Fatal("refresh must rotate and return a valid access token")
	}
	if _, err := env.auth.Refresh(ctx, ""); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("empty token: %v", err)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})
	env.register(t, models.RegisterRequest{FullName: "Other", Phone: "+79990000000", Email: "taken@example.com", Password: "Passw0rd"})

	tests := []struct {
		name string
		req  models.ProfileUpdateRequest
		want error
	}{
		{"new password without current", models.ProfileUpdateRequest{NewPassword: "Newpass1"}, ErrValidation},
		{"wrong current password", models.ProfileUpdateRequest{CurrentPassword: "Wrong000", NewPassword: "Newpass1"}, ErrValidation},
		{"weak new password", models.ProfileUpdateRequest{CurrentPassword: "Passw0rd", NewPassword: "weak"}, ErrValidation},
		{"too long new password", models.ProfileUpdateRequest{CurrentPassword: "Passw0rd", NewPassword: "Aa1" + strings.Repeat("x", 80)}, ErrValidation},
		{"bad phone", models.ProfileUpdateRequest{Phone: strPtr("123")}, ErrValidation},
		{"phone taken", models.ProfileUpdateRequest{Phone: strPtr("8 999 000 00 00")}, ErrConflict},
		{"email taken", models.ProfileUpdateRequest{Email: strPtr("Taken@example.com")}, ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.auth.UpdateProfile(ctx, u.ID, tt.req); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	updated, err := env.auth.UpdateProfile(ctx, u.ID, models.ProfileUpdateRequest{
		FullName:        strPtr("A C"),
		Email:           strPtr("ac@example.com"),
		CurrentPassword: "Passw0rd",
		NewPassword:     "Newpass1",
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.FullName != "A C" || *updated.Email != "ac@example.com" {
		t.Fatalf("fields not applied: %+v", updated)
	}
	if _, err := env.auth.Login(ctx, models.LoginRequest{Login: "ac@example.com", Password: "Newpass1"}, ClientInfo{}); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if _, err := env.auth.UpdateProfile(ctx, "missing", models.ProfileUpdateRequest{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}
}

func TestPhoneVerificationFlow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})

	if _, err := env.auth.RequestPhoneVerification(ctx, "+79990000000", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown phone: %v", err)
	}
	if _, err := env.auth.RequestPhoneVerification(ctx, "", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("empty phone: %v", err)
	}

	code, err := env.auth.RequestPhoneVerification(ctx, "8 (999) 123-45-67", "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", "000000x", ""); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("wrong code: %v", err)
	}
	if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", code, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	got, _ := env.auth.GetProfile(ctx, u.ID)
	if !got.IsVerified {
		t.Fatal("phone must be verified")
	}
	if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", code, ""); !errors.Is(err, ErrInvalidOrExpiredCode) {
		t.Fatalf("reused code: %v", err)
	}
}

func TestVerifyCodeTypes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	u := env.register(t, models.RegisterRequest{FullName: "A B", Phone: "+79991234567", Password: "Passw0rd"})

	if _, err := env.auth.RequestPhoneVerification(ctx, "+79991234567", models.PurposePasswordReset); !errors.Is(err, ErrValidation) {
		t.Fatalf("reset purpose: %v", err)
	}
	if _, err := env.auth.RequestPhoneVerification(ctx, "+79991234567", "SOMETHING"); !errors.Is(err, ErrValidation) {
		t.Fatalf("unknown purpose: %v", err)
	}

	tfa, err := env.auth.RequestPhoneVerification(ctx, "+79991234567", models.PurposeTwoFactorAuth)
	if err != nil {
		t.Fatalf("request 2fa: %v", err)
	}
	text, _ := env.sender.Last("79991234567")
	if !strings.Contains(text, "Код входа") || !strings.Contains(text, tfa) {
		t.Fatalf("sms text %q", text)
	}
	phone, err := env.auth.RequestPhoneVerification(ctx, "+79991234567", models.PurposePhoneVerification)
	if err != nil {
		t.Fatalf("request phone: %v", err)
	}

	// коды разных типов не взаимозаменяемы
	if tfa != phone {
		if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", tfa, models.PurposePhoneVerification); !errors.Is(err, ErrInvalidOrExpiredCode) {
			t.Fatalf("2fa code as phone code: %v", err)
		}
	}
	if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", tfa, models.PurposeTwoFactorAuth); err != nil {
		t.Fatalf("confirm 2fa: %v", err)
	}
	got, _ := env.auth.GetProfile(ctx, u.ID)
	if got.IsVerified {
		t.Fatal("2fa code must not verify the phone")
	}

	if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", phone, models.PurposePasswordReset); !errors.Is(err, ErrValidation) {
		t.Fatalf("reset purpose on confirm: %v", err)
	}
	if err := env.auth.ConfirmPhoneVerification(ctx, "+79991234567", phone, ""); err != nil {
		t.Fatalf("confirm phone: %v", err)
	}
	got, _ = env.auth.GetProfile(ctx, u.ID)
	if !got.IsVerified {
		t.Fatal("phone must be verified")
	}
}

func TestBootstrapAdmin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	if u, err := env.auth.BootstrapAdmin(ctx, config.AdminConfig{}); u != nil || err != nil {
		t.Fatalf("empty config must be a no-op: %v %v", u, err)
	}
	cfg := config.AdminConfig{FullName: "Администратор", Phone: "+79000000001", Password: "Adm1nPass"}
	u, err := env.auth.BootstrapAdmin(ctx, cfg)
	if err != nil || u == nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if u.Role != authz.RoleAdmin || !u.IsVerified {
		t.Fatalf("admin %+v", u)
	}
	if again, err := env.auth.BootstrapAdmin(ctx, cfg); again != nil || err != nil {
		t.Fatalf("second bootstrap must be a no-op: %v %v", again, err)
	}
}
