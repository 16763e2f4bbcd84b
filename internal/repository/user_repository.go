package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/safesite/ptw-service/internal/database"
	"github.com/safesite/ptw-service/internal/errors"
)

// User is an authenticated account. Role is the user's site role
// (supervisor, area_manager, safety_officer, site_leader); permit-level
// authorization is always re-checked against the permit's own slot
// bindings, never against this field alone.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserRepository handles user accounts.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a user. A duplicate email returns a conflict error.
func (r *UserRepository) Create(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (email, name, password_hash, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO NOTHING
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query, u.Email, u.Name, u.PasswordHash, u.Role).
		Scan(&u.ID, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "a user with this email already exists")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create user")
	}
	return nil
}

// GetByEmail looks a user up for login.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users
		WHERE email = $1
	`, email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", email)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}

// GetByID looks a user up by primary key.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	err := r.db.QueryRow(ctx, `
		SELECT id, email, name, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}
