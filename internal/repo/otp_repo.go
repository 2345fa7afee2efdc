package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/model"
)

// OtpRepo defines the interface for OTP repository operations
type OtpRepo interface {
	Create(ctx context.Context, otp *model.UserOTP) error
	GetLatest(ctx context.Context, txnID, userID uuid.UUID) (model.UserOTP, error)
}

type otpRepo struct {
	db *sql.DB
}

// NewOtpRepo creates a new OtpRepo instance
func NewOtpRepo(db *sql.DB) OtpRepo {
	return &otpRepo{db: db}
}

// Create inserts a new OTP record. The caller supplies the id so it can be
// handed back as the transaction token, and the expiry so the TTL policy
// stays in one place.
func (r *otpRepo) Create(ctx context.Context, otp *model.UserOTP) error {
	query := `
		INSERT INTO user_otps (id, user_id, code_hash, expiry)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query, otp.ID, otp.UserID, otp.CodeHash, otp.Expiry).
		Scan(&otp.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create otp: %w", err)
	}
	return nil
}

// GetLatest returns the most recently created OTP matching the transaction
// id and user, so older records for the pair are inert once superseded.
func (r *otpRepo) GetLatest(ctx context.Context, txnID, userID uuid.UUID) (model.UserOTP, error) {
	query := `
		SELECT id, user_id, code_hash, expiry, created_at
		FROM user_otps
		WHERE id = $1 AND user_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var otp model.UserOTP
	var idStr, userIDStr string
	err := r.db.QueryRowContext(ctx, query, txnID, userID).Scan(
		&idStr,
		&userIDStr,
		&otp.CodeHash,
		&otp.Expiry,
		&otp.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.UserOTP{}, ErrNotFound
		}
		return model.UserOTP{}, fmt.Errorf("failed to query otp: %w", err)
	}

	if otp.ID, err = uuid.Parse(idStr); err != nil {
		return model.UserOTP{}, fmt.Errorf("failed to parse otp ID: %w", err)
	}
	if otp.UserID, err = uuid.Parse(userIDStr); err != nil {
		return model.UserOTP{}, fmt.Errorf("failed to parse otp user ID: %w", err)
	}
	return otp, nil
}
