package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/chils-store/internal/domain/user"
)

const (
	userColumns = `id, name, email, password_hash, role, phone, address, avatar, is_active,
		preferences, last_login, created_at, updated_at`

	createUserSQL = `INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	getUserByIDSQL    = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	getUserByEmailSQL = `SELECT ` + userColumns + ` FROM users WHERE email = lower($1)`

	updateUserProfileSQL = `UPDATE users SET name = $2, phone = $3, address = $4, preferences = $5, updated_at = $6
		WHERE id = $1`

	touchUserLoginSQL = `UPDATE users SET last_login = $2 WHERE id = $1`

	countUsersByRoleSQL = `SELECT COUNT(*) FROM users WHERE role = $1`
)

var _ user.Repository = (*UserRepository)(nil)

// UserRepository implements user.Repository backed by PostgreSQL.
type UserRepository struct {
	db DB
}

func NewUserRepository(db DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	address, preferences, err := marshalUserJSON(u)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, createUserSQL,
		u.ID, u.Name, u.Email, u.PasswordHash, string(u.Role), u.Phone, address, u.Avatar,
		u.IsActive, preferences, u.LastLogin, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if uniqueViolation(err, "users_email_key") {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("creating user %q: %w", u.Email, err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*user.User, error) {
	return r.getOne(ctx, getUserByIDSQL, id)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.getOne(ctx, getUserByEmailSQL, email)
}

func (r *UserRepository) getOne(ctx context.Context, query, arg string) (*user.User, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting user %q: %w", arg, err)
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrNotFound
		}
		return nil, fmt.Errorf("getting user %q: %w", arg, err)
	}
	return &u, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, u *user.User) error {
	address, preferences, err := marshalUserJSON(u)
	if err != nil {
		return err
	}

	tag, err := r.db.Exec(ctx, updateUserProfileSQL, u.ID, u.Name, u.Phone, address, preferences, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("updating user %q: %w", u.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.Exec(ctx, touchUserLoginSQL, id, at); err != nil {
		return fmt.Errorf("recording login of %q: %w", id, err)
	}
	return nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role user.Role) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, countUsersByRoleSQL, string(role)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s users: %w", role, err)
	}
	return n, nil
}

func marshalUserJSON(u *user.User) (address, preferences []byte, err error) {
	address, err = json.Marshal(u.Address)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling address: %w", err)
	}
	preferences, err = json.Marshal(u.Preferences)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling preferences: %w", err)
	}
	return address, preferences, nil
}

func scanUser(row pgx.CollectableRow) (user.User, error) {
	var (
		u    user.User
		role string
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Phone, &u.Address, &u.Avatar,
		&u.IsActive, &u.Preferences, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	u.Role = user.Role(role)
	return u, err
}
