package repositories

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"classsite/internal/authz"
	"classsite/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open(context.Background(), "sqlite3", "file::memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func strPtr(s string) *string { return &s }

func createUser(t *testing.T, s *Store, phone, email string, role authz.Role) *models.User {
	t.Helper()
	u := &models.User{
		FullName:     "Иван Петров",
		PasswordHash: "hash",
		Role:         role,
		IsActive:     true,
	}
	if phone != "" {
		u.Phone = strPtr(phone)
	}
	if email != "" {
		u.Email = strPtr(email)
	}
	if err := s.Users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestUserCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "ivan@example.com", authz.RoleStudent)

	got, err := s.Users.GetActiveByPhone(ctx, "79001234567")
	if err != nil {
		t.Fatalf("by phone: %v", err)
	}
	if got.ID != u.ID || got.Role != authz.RoleStudent || !got.IsActive || got.IsVerified {
		t.Fatalf("unexpected user %+v", got)
	}
	if _, err := s.Users.GetActiveByEmail(ctx, "ivan@example.com"); err != nil {
		t.Fatalf("by email: %v", err)
	}
	if _, err := s.Users.GetByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserInactiveIsNotFoundByLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleParent)

	inactive := false
	if _, err := s.Users.Update(ctx, u.ID, models.UserUpdate{IsActive: &inactive}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := s.Users.GetActiveByPhone(ctx, "79001234567"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive user, got %v", err)
	}
}

func TestUserDuplicatePhoneConflicts(t *testing.T) {
	s := newTestStore(t)
	createUser(t, s, "79001234567", "", authz.RoleStudent)

	dup := &models.User{FullName: "Другой", PasswordHash: "h", Role: authz.RoleStudent, IsActive: true, Phone: strPtr("79001234567")}
	err := s.Users.Create(context.Background(), dup)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	taken, err := s.Users.PhoneTaken(context.Background(), "79001234567", "")
	if err != nil || !taken {
		t.Fatalf("PhoneTaken = %v, %v", taken, err)
	}
}

func TestUserUpdatePhoneResetsVerified(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleStudent)

	verified := true
	if _, err := s.Users.Update(ctx, u.ID, models.UserUpdate{IsVerified: &verified}); err != nil {
		t.Fatalf("verify: %v", err)
	}

	// same number keeps the flag
	got, err := s.Users.Update(ctx, u.ID, models.UserUpdate{Phone: strPtr("79001234567")})
	if err != nil {
		t.Fatalf("update same phone: %v", err)
	}
	if !got.IsVerified {
		t.Fatal("unchanged phone must keep verified flag")
	}

	got, err = s.Users.Update(ctx, u.ID, models.UserUpdate{Phone: strPtr("79007654321"), FullName: strPtr("Пётр")})
	if err != nil {
		t.Fatalf("update phone: %v", err)
	}
	if got.IsVerified {
		t.Fatal("new phone must reset verified flag")
	}
	if got.FullName != "Пётр" || *got.Phone != "79007654321" {
		t.Fatalf("fields not applied: %+v", got)
	}

	got, err = s.Users.Update(ctx, u.ID, models.UserUpdate{Email: strPtr("")})
	if err != nil {
		t.Fatalf("clear email: %v", err)
	}
	if got.Email != nil {
		t.Fatalf("email should be NULL, got %q", *got.Email)
	}
}

func TestUserListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	createUser(t, s, "79000000001", "a@example.com", authz.RoleStudent)
	createUser(t, s, "79000000002", "b@example.com", authz.RoleStudent)
	createUser(t, s, "79000000003", "teacher@example.com", authz.RoleTeacher)

	users, total, err := s.Users.List(ctx, models.UserFilter{Role: authz.RoleStudent, Limit: 1})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(users) != 1 {
		t.Fatalf("total=%d len=%d", total, len(users))
	}

	users, total, err = s.Users.List(ctx, models.UserFilter{Search: "TEACHER"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if total != 1 || users[0].Role != authz.RoleTeacher {
		t.Fatalf("search returned %d users", total)
	}

	n, err := s.Users.CountByRole(ctx, authz.RoleAdmin)
	if err != nil || n != 0 {
		t.Fatalf("CountByRole = %d, %v", n, err)
	}
}

func TestVerificationCodeRedeem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleStudent)
	now := time.Now().UTC()

	code := &models.VerificationCode{UserID: u.ID, Code: "123456", Purpose: models.PurposePhoneVerification, ExpiresAt: now.Add(10 * time.Minute)}
	if err := s.VerificationCodes.Create(ctx, code); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name    string
		purpose models.VerificationPurpose
		code    string
		at      time.Time
		want    bool
	}{
		{"wrong code", models.PurposePhoneVerification, "000000", now, false},
		{"wrong purpose", models.PurposePasswordReset, "123456", now, false},
		{"expired", models.PurposePhoneVerification, "123456", now.Add(11 * time.Minute), false},
		{"ok", models.PurposePhoneVerification, "123456", now, true},
		{"second use", models.PurposePhoneVerification, "123456", now, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := s.VerificationCodes.Redeem(ctx, u.ID, tt.purpose, tt.code, tt.at)
			if err != nil {
				t.Fatalf("redeem: %v", err)
			}
			if ok != tt.want {
				t.Fatalf("redeem = %v, want %v", ok, tt.want)
			}
		})
	}

	latest, err := s.VerificationCodes.Latest(ctx, u.ID, models.PurposePhoneVerification)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.UsedAt == nil {
		t.Fatal("redeemed code must have used_at")
	}
}

func TestVerificationCodeConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleStudent)
	now := time.Now().UTC()

	code := &models.VerificationCode{UserID: u.ID, Code: "654321", Purpose: models.PurposePasswordReset, ExpiresAt: now.Add(15 * time.Minute)}
	if err := s.VerificationCodes.Create(ctx, code); err != nil {
		t.Fatalf("create: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.VerificationCodes.Redeem(ctx, u.ID, models.PurposePasswordReset, "654321", now)
			if err != nil {
				t.Errorf("redeem: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleStudent)
	now := time.Now().UTC()

	sess := &models.Session{UserID: u.ID, RefreshTokenHash: "digest", ExpiresAt: now.Add(time.Hour)}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Sessions.GetValidByHash(ctx, "digest", now); err != nil {
		t.Fatalf("get valid: %v", err)
	}
	if _, err := s.Sessions.GetValidByHash(ctx, "digest", now.Add(2*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session must be not found, got %v", err)
	}

	n, err := s.Sessions.DeleteByHash(ctx, "digest")
	if err != nil || n != 1 {
		t.Fatalf("delete = %d, %v", n, err)
	}
	n, err = s.Sessions.DeleteByHash(ctx, "digest")
	if err != nil || n != 0 {
		t.Fatalf("second delete = %d, %v", n, err)
	}
}

func TestSessionDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleStudent)
	now := time.Now().UTC()

	for hash, exp := range map[string]time.Time{
		"old":   now.Add(-time.Minute),
		"older": now.Add(-24 * time.Hour),
		"live":  now.Add(time.Hour),
	} {
		if err := s.Sessions.Create(ctx, &models.Session{UserID: u.ID, RefreshTokenHash: hash, ExpiresAt: exp}); err != nil {
			t.Fatalf("create %s: %v", hash, err)
		}
	}

	n, err := s.Sessions.DeleteExpired(ctx, now)
	if err != nil || n != 2 {
		t.Fatalf("delete expired = %d, %v", n, err)
	}
	if _, err := s.Sessions.GetValidByHash(ctx, "live", now); err != nil {
		t.Fatalf("live session removed: %v", err)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79001234567", "", authz.RoleStudent)
	now := time.Now().UTC()

	if err := s.Sessions.Create(ctx, &models.Session{UserID: u.ID, RefreshTokenHash: "h1", ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := s.VerificationCodes.Create(ctx, &models.VerificationCode{UserID: u.ID, Code: "111111", Purpose: models.PurposeTwoFactorAuth, ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatal(err)
	}
	if err := s.LoginAttempts.Create(ctx, &models.LoginAttempt{UserID: &u.ID, IPAddress: "127.0.0.1", Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := s.LoginAttempts.Create(ctx, &models.LoginAttempt{IPAddress: "127.0.0.1"}); err != nil {
		t.Fatalf("anonymous attempt: %v", err)
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Users.GetByID(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("user still present: %v", err)
	}

	for _, table := range []string{"sessions", "verification_codes", "login_attempts"} {
		var n int
		if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE user_id = $1", u.ID).Scan(&n); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Fatalf("%s: %d rows left", table, n)
		}
	}
	if err := s.DeleteUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx *Store) error {
		u := &models.User{FullName: "X", PasswordHash: "h", Role: authz.RoleStudent, IsActive: true, Phone: strPtr("79001112233")}
		if err := tx.Users.Create(ctx, u); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if taken, _ := s.Users.PhoneTaken(ctx, "79001112233", ""); taken {
		t.Fatal("insert must be rolled back")
	}
}

func TestFindByLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	u := createUser(t, s, "79123456789", "ivan@example.com", authz.RoleStudent)

	for _, login := range []string{"+7 (912) 345-67-89", "89123456789", "IVAN@example.com "} {
		got, err := s.Users.FindByLogin(ctx, login)
		if err != nil {
			t.Fatalf("%q: %v", login, err)
		}
		if got.ID != u.ID {
			t.Fatalf("%q matched %s", login, got.ID)
		}
	}
	if _, err := s.Users.FindByLogin(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
