package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"classsite/internal/authz"
	"classsite/internal/models"
	"classsite/internal/utils"
)

const userColumns = `id, phone, email, full_name, password_hash, role, is_active, is_verified, created_at, updated_at, last_login_at`

type UserRepository struct {
	DB DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{DB: db}
}

// Create inserts the user. ID and timestamps are filled in when empty.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = newID()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	const q = `
		INSERT INTO users (id, phone, email, full_name, password_hash, role, is_active, is_verified, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`
	_, err := r.DB.ExecContext(ctx, q,
		u.ID,
		nullString(u.Phone),
		nullString(u.Email),
		u.FullName,
		u.PasswordHash,
		string(u.Role),
		u.IsActive,
		u.IsVerified,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("user create: %w", mapError(err))
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, q, id)
}

// GetActiveByPhone returns the active user with the given normalized phone.
func (r *UserRepository) GetActiveByPhone(ctx context.Context, phone string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE phone = $1 AND is_active = $2`
	return r.getOne(ctx, q, phone, true)
}

// GetActiveByEmail returns the active user with the given lower-cased email.
func (r *UserRepository) GetActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active = $2`
	return r.getOne(ctx, q, email, true)
}

// FindByLogin treats an identifier without '@' as a phone number, anything else as email.
// Only active users match.
func (r *UserRepository) FindByLogin(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if utils.IsLoginPhone(identifier) {
		return r.GetActiveByPhone(ctx, utils.NormalizePhone(identifier))
	}
	return r.GetActiveByEmail(ctx, utils.NormalizeEmail(identifier))
}

// PhoneTaken reports whether another user already owns the phone.
// excludeID may be empty.
func (r *UserRepository) PhoneTaken(ctx context.Context, phone, excludeID string) (bool, error) {
	return r.taken(ctx, "phone", phone, excludeID)
}

func (r *UserRepository) EmailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	return r.taken(ctx, "email", email, excludeID)
}

func (r *UserRepository) taken(ctx context.Context, column, value, excludeID string) (bool, error) {
	q := `SELECT COUNT(*) FROM users WHERE ` + column + ` = $1 AND id <> $2`
	var n int
	if err := r.DB.QueryRowContext(ctx, q, value, excludeID).Scan(&n); err != nil {
		return false, fmt.Errorf("user %s taken: %w", column, err)
	}
	return n > 0, nil
}

// Update applies the non-nil fields of upd and returns the fresh row.
// Changing the phone number drops the verified flag unless upd sets it explicitly.
func (r *UserRepository) Update(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Empty() {
		return current, nil
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.FullName != nil {
		add("full_name", *upd.FullName)
	}
	if upd.Phone != nil {
		add("phone", nullString(upd.Phone))
		if upd.IsVerified == nil && derefString(current.Phone) != *upd.Phone {
			f := false
			upd.IsVerified = &f
		}
	}
	if upd.Email != nil {
		add("email", nullString(upd.Email))
	}
	if upd.PasswordHash != nil {
		add("password_hash", *upd.PasswordHash)
	}
	if upd.Role != nil {
		add("role", string(*upd.Role))
	}
	if upd.IsActive != nil {
		add("is_active", *upd.IsActive)
	}
	if upd.IsVerified != nil {
		add("is_verified", *upd.IsVerified)
	}
	add("updated_at", time.Now().UTC())

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := r.DB.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("user update: %w", mapError(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE users SET last_login_at = $1 WHERE id = $2`, at, id)
	return err
}

// Delete removes only the users row. Use Store.DeleteUser to drop dependants too.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("user delete: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns one page of users matching f, newest first, and the total match count.
func (r *UserRepository) List(ctx context.Context, f models.UserFilter) ([]*models.User, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		args = append(args, pattern, pattern, pattern)
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(LOWER(full_name) LIKE $%d OR LOWER(COALESCE(email, '')) LIKE $%d OR COALESCE(phone, '') LIKE $%d)",
			n-2, n-1, n))
	}
	if f.Role != "" {
		args = append(args, string(f.Role))
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("user count: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	pageArgs := append(append([]any{}, args...), limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		userColumns, cond, len(args)+1, len(args)+2)

	rows, err := r.DB.QueryContext(ctx, q, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("user list: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role authz.Role) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("user count by role: %w", err)
	}
	return n, nil
}

func (r *UserRepository) getOne(ctx context.Context, q string, args ...any) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, q, args...))
	if err != nil {
		return nil, mapError(err)
	}
	return u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var (
		phone     sql.NullString
		email     sql.NullString
		role      string
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&u.ID, &phone, &email, &u.FullName, &u.PasswordHash, &role,
		&u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return nil, err
	}
	u.Role = authz.Role(role)
	if phone.Valid {
		s := phone.String
		u.Phone = &s
	}
	if email.Valid {
		s := email.String
		u.Email = &s
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// nullString maps nil and "" to NULL.
func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
