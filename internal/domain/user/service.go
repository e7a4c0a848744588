package user

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/chils-store/internal/validation"
)

// RegisterRequest holds the input for creating an account.
type RegisterRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	Phone    string  `json:"phone" validate:"omitempty,phone"`
	Address  Address `json:"address"`
}

// ProfileUpdate holds the fields a user may change about themselves. Email
// and role are immutable here.
type ProfileUpdate struct {
	Name        string       `json:"name" validate:"required,max=100"`
	Phone       string       `json:"phone" validate:"omitempty,phone"`
	Address     Address      `json:"address"`
	Preferences *Preferences `json:"preferences"`
}

// Service implements registration, login and profile management.
type Service struct {
	users  Repository
	hasher Hasher
	now    func() time.Time
}

func NewService(users Repository, hasher Hasher) *Service {
	return &Service{users: users, hasher: hasher, now: time.Now}
}

// Register creates a customer account.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	return s.Create(ctx, req, RoleCustomer)
}

// Create creates an account with an explicit role. Used by Register and by
// provisioning tools.
func (s *Service) Create(ctx context.Context, req RegisterRequest, role Role) (*User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = normalizeEmail(req.Email)
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		ID:           uuid.New().String(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: hash,
		Role:         role,
		Phone:        strings.TrimSpace(req.Phone),
		Address:      req.Address,
		IsActive:     true,
		Preferences:  DefaultPreferences(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered",
		zap.String("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	return u, nil
}

// Login verifies credentials and stamps the last login time.
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, "find user")
	}
	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactive
	}

	now := s.now().UTC()
	if err := s.users.TouchLogin(ctx, u.ID, now); err != nil {
		return nil, errors.Wrap(err, "update last login")
	}
	u.LastLogin = &now
	return u, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// UpdateProfile changes name, phone, address and optionally preferences.
func (s *Service) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error) {
	upd.Name = strings.TrimSpace(upd.Name)
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	u.Name = upd.Name
	u.Phone = strings.TrimSpace(upd.Phone)
	u.Address = upd.Address
	if upd.Preferences != nil {
		u.Preferences = *upd.Preferences
	}
	u.UpdatedAt = s.now().UTC()
	if err := s.users.UpdateProfile(ctx, u); err != nil {
		return nil, errors.Wrapf(err, "update profile %s", id)
	}
	return u, nil
}

// CountCustomers returns the number of customer accounts.
func (s *Service) CountCustomers(ctx context.Context) (int, error) {
	return s.users.CountByRole(ctx, RoleCustomer)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
