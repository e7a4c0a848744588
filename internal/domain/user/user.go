package user

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

var (
	// ErrNotFound is returned when a requested user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when registering an email that is already in use.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInactive is returned when a deactivated account tries to log in.
	ErrInactive = errors.New("account is deactivated")
)

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleCustomer Role = "customer"
)

// Address is a delivery address. It is embedded in users and orders.
type Address struct {
	Street  string `json:"street" validate:"max=200"`
	City    string `json:"city" validate:"max=100"`
	ZipCode string `json:"zipCode" validate:"max=20"`
}

// Complete reports whether every part of the address is filled in.
func (a Address) Complete() bool {
	return a.Street != "" && a.City != "" && a.ZipCode != ""
}

type Notifications struct {
	OrderUpdates bool `json:"orderUpdates"`
	Promotions   bool `json:"promotions"`
}

type Preferences struct {
	Notifications      Notifications `json:"notifications"`
	FavoriteCategories []string      `json:"favoriteCategories"`
}

// DefaultPreferences are assigned to newly registered users.
func DefaultPreferences() Preferences {
	return Preferences{
		Notifications:      Notifications{OrderUpdates: true, Promotions: false},
		FavoriteCategories: []string{},
	}
}

// User is an account. PasswordHash never leaves the service layer.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Phone        string
	Address      Address
	Avatar       string
	IsActive     bool
	Preferences  Preferences
	LastLogin    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Repository defines persistence operations for accounts.
type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateProfile(ctx context.Context, u *User) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	CountByRole(ctx context.Context, role Role) (int, error)
}
