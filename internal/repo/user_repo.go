package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("record not found")

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetActiveByUsername(ctx context.Context, username string) (model.User, error)
	GetActiveByEmail(ctx context.Context, email string) (model.User, error)
	Exists(ctx context.Context, username, phone, email string) (bool, error)
	UpdateLoginState(ctx context.Context, id uuid.UUID, attempts int, blockedUntil *time.Time) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, username, email, phone, first_name, last_name, password_hash,
	is_active, is_staff, is_superuser, unsuccessful_login_attempts, blocked_until,
	date_joined, date_updated`

// Create inserts a new user and fills in the store-assigned fields.
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (username, email, phone, first_name, last_name, password_hash,
			is_active, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, date_joined, date_updated
	`
	var idStr string
	err := r.db.QueryRowContext(ctx, query,
		user.Username, user.Email, user.Phone, user.FirstName, user.LastName,
		user.PasswordHash, user.IsActive, user.IsStaff, user.IsSuperuser,
	).Scan(&idStr, &user.DateJoined, &user.DateUpdated)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return fmt.Errorf("failed to parse user ID: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

// GetActiveByUsername retrieves an active user by username (case-insensitive).
func (r *userRepo) GetActiveByUsername(ctx context.Context, username string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = LOWER($1) AND is_active`
	return r.scanOne(r.db.QueryRowContext(ctx, query, username))
}

// GetActiveByEmail retrieves an active user by email (case-insensitive).
func (r *userRepo) GetActiveByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1) AND is_active`
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

// Exists reports whether any user matches the username, phone or email
// (case-insensitive, OR-combined), regardless of active state.
func (r *userRepo) Exists(ctx context.Context, username, phone, email string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM users
			WHERE LOWER(username) = LOWER($1)
			   OR LOWER(phone) = LOWER($2)
			   OR LOWER(email) = LOWER($3)
		)
	`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, username, phone, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// UpdateLoginState persists the lockout counter and block window for a user.
func (r *userRepo) UpdateLoginState(ctx context.Context, id uuid.UUID, attempts int, blockedUntil *time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET unsuccessful_login_attempts = $2, blocked_until = $3, date_updated = now()
		WHERE id = $1
	`, id, attempts, blockedUntil)
	if err != nil {
		return fmt.Errorf("failed to update login state: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepo) scanOne(row *sql.Row) (model.User, error) {
	var user model.User
	var idStr string
	err := row.Scan(
		&idStr,
		&user.Username,
		&user.Email,
		&user.Phone,
		&user.FirstName,
		&user.LastName,
		&user.PasswordHash,
		&user.IsActive,
		&user.IsStaff,
		&user.IsSuperuser,
		&user.UnsuccessfulLoginAttempts,
		&user.BlockedUntil,
		&user.DateJoined,
		&user.DateUpdated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to query user: %w", err)
	}

	user.ID, err = uuid.Parse(idStr)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to parse user ID: %w", err)
	}
	return user, nil
}
