package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"classsite/internal/authz"
	"classsite/internal/models"
	"classsite/internal/repositories"
	"classsite/internal/utils"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// Actor is the authenticated caller of an administrative operation.
type Actor struct {
	UserID string
	Role   authz.Role
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type UserPage struct {
	Users      []*models.User `json:"users"`
	Pagination Pagination     `json:"pagination"`
}

// UserListQuery mirrors the query string of the user list endpoint.
type UserListQuery struct {
	Search string
	Role   string
	Page   int
	Limit  int
}

type UserService interface {
	ListUsers(ctx context.Context, actor Actor, q UserListQuery) (*UserPage, error)
	CreateUser(ctx context.Context, actor Actor, req models.RegisterRequest) (*models.User, error)
	GetUser(ctx context.Context, actor Actor, id string) (*models.User, error)
	UpdateUser(ctx context.Context, actor Actor, id string, req models.AdminUserUpdateRequest) (*models.User, error)
	DeleteUser(ctx context.Context, actor Actor, id string) error
	LoginHistory(ctx context.Context, actor Actor, id string, limit int) ([]models.LoginAttempt, error)
}

type userService struct {
	store        *repositories.Store
	hasher       *PasswordHasher
	emailService EmailService
	log          logrus.FieldLogger
}

func NewUserService(store *repositories.Store, hasher *PasswordHasher, emailService EmailService, log logrus.FieldLogger) UserService {
	return &userService{
		store:        store,
		hasher:       hasher,
		emailService: emailService,
		log:          log.WithField("component", "users"),
	}
}

func require(actor Actor, role authz.Role) error {
	if !authz.HasPermission(actor.Role, role) {
		return ErrForbidden
	}
	return nil
}

func (s *userService) ListUsers(ctx context.Context, actor Actor, q UserListQuery) (*UserPage, error) {
	if err := require(actor, authz.RoleTeacher); err != nil {
		return nil, err
	}
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	f := models.UserFilter{
		Search: strings.TrimSpace(q.Search),
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	// неизвестная роль в фильтре игнорируется
	if r, ok := authz.ParseRole(q.Role); ok {
		f.Role = r
	}

	users, total, err := s.store.Users.List(ctx, f)
	if err != nil {
		return nil, storeErr("list users", err)
	}
	if users == nil {
		users = []*models.User{}
	}
	return &UserPage{
		Users: users,
		Pagination: Pagination{
			Page:  page,
			Limit: limit,
			Total: total,
			Pages: (total + limit - 1) / limit,
		},
	}, nil
}

func (s *userService) CreateUser(ctx context.Context, actor Actor, req models.RegisterRequest) (*models.User, error) {
	if err := require(actor, authz.RoleTeacher); err != nil {
		return nil, err
	}
	in, err := parseNewUser(req)
	if err != nil {
		return nil, err
	}
	if in.Role == authz.RoleAdmin && actor.Role != authz.RoleAdmin {
		return nil, ErrForbidden
	}
	if !authz.HasPermission(actor.Role, in.Role) {
		return nil, ErrForbidden
	}

	user, err := createUser(ctx, s.store.Users, s.hasher, in, false)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"op": "create", "user_id": user.ID, "by": actor.UserID}).Info("[users] created")

	if s.emailService != nil && user.Email != nil {
		go func(email, name string) {
			if err := s.emailService.SendWelcomeEmail(email, name); err != nil {
				s.log.WithError(err).WithField("user_id", user.ID).Warn("[users] welcome email failed")
			}
		}(*user.Email, user.FullName)
	}
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, actor Actor, id string) (*models.User, error) {
	if err := require(actor, authz.RoleTeacher); err != nil {
		return nil, err
	}
	user, err := s.store.Users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return user, nil
}

// UpdateUser applies an administrative edit. Only an ADMIN may change roles; for anyone
// else the role field is ignored. Nobody may edit an account ranked above themselves.
func (s *userService) UpdateUser(ctx context.Context, actor Actor, id string, req models.AdminUserUpdateRequest) (*models.User, error) {
	if err := require(actor, authz.RoleTeacher); err != nil {
		return nil, err
	}
	user, err := s.store.Users.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	if authz.Rank(user.Role) > authz.Rank(actor.Role) {
		return nil, ErrForbidden
	}

	var upd models.UserUpdate
	if req.FullName != nil {
		name := strings.TrimSpace(*req.FullName)
		if name == "" {
			return nil, validation("ФИО не может быть пустым")
		}
		upd.FullName = &name
	}
	if req.IsActive != nil {
		upd.IsActive = req.IsActive
	}
	if req.Role != nil && actor.Role == authz.RoleAdmin {
		r, ok := authz.ParseRole(*req.Role)
		if !ok {
			return nil, validation("Неизвестная роль")
		}
		upd.Role = &r
	}

	phone := derefString(user.Phone)
	if req.Phone != nil {
		p := strings.TrimSpace(*req.Phone)
		if p != "" {
			if !utils.ValidPhone(p) {
				return nil, validation(msgBadPhone)
			}
			p = utils.NormalizePhone(p)
		}
		if p != phone {
			upd.Phone = &p
			phone = p
		}
	}
	email := derefString(user.Email)
	if req.Email != nil {
		e := strings.TrimSpace(*req.Email)
		if e != "" {
			if !utils.ValidEmail(e) {
				return nil, validation(msgBadEmail)
			}
			e = utils.NormalizeEmail(e)
		}
		if e != email {
			upd.Email = &e
			email = e
		}
	}
	if phone == "" && email == "" {
		return nil, validation(msgPhoneOrEmail)
	}

	if req.Password != "" {
		if err := checkNewPassword(req.Password, msgWeakPassword); err != nil {
			return nil, err
		}
		hash, err := s.hasher.HashPassword(req.Password)
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
		return nil, storeErr("update user", err)
	}
	s.log.WithFields(logrus.Fields{"op": "update", "user_id": user.ID, "by": actor.UserID}).Info("[users] updated")
	return updated, nil
}

func (s *userService) DeleteUser(ctx context.Context, actor Actor, id string) error {
	if err := require(actor, authz.RoleAdmin); err != nil {
		return err
	}
	if id == actor.UserID {
		return withMsg(ErrForbidden, msgSelfDelete)
	}
	if err := s.store.DeleteUser(ctx, id); err != nil {
		return storeErr("delete user", err)
	}
	s.log.WithFields(logrus.Fields{"op": "delete", "user_id": id, "by": actor.UserID}).Info("[users] deleted")
	return nil
}

// LoginHistory returns the newest login attempts of a user.
func (s *userService) LoginHistory(ctx context.Context, actor Actor, id string, limit int) ([]models.LoginAttempt, error) {
	if err := require(actor, authz.RoleAdmin); err != nil {
		return nil, err
	}
	if _, err := s.store.Users.GetByID(ctx, id); err != nil {
		return nil, storeErr("get user", err)
	}
	if limit < 1 || limit > maxPageLimit {
		limit = 20
	}
	attempts, err := s.store.LoginAttempts.ListByUser(ctx, id, limit)
	if err != nil {
		return nil, storeErr("login history", err)
	}
	if attempts == nil {
		attempts = []models.LoginAttempt{}
	}
	return attempts, nil
}
