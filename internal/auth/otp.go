package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/model"
	"github.com/mslate/shortlink/internal/repo"
)

var (
	// ErrOTPNotFound means no OTP matches the transaction id and user.
	ErrOTPNotFound = errors.New("otp not found")
	// ErrIncorrectCode means the code does not match the stored hash.
	ErrIncorrectCode = errors.New("incorrect otp")
)

// ExpiredOTPError is returned when the OTP exists but its validity window
// has elapsed.
type ExpiredOTPError struct {
	Expiry time.Time
}

func (e *ExpiredOTPError) Error() string {
	return fmt.Sprintf("otp expired at %s", e.Expiry.Format(time.RFC3339))
}

// OTPEngine generates, stores (hashed) and validates short-lived numeric
// codes tied to a transaction identifier.
type OTPEngine struct {
	otps   repo.OtpRepo
	ttl    time.Duration
	length int
}

// NewOTPEngine creates an OTP engine with the given code lifetime and length.
func NewOTPEngine(otps repo.OtpRepo, ttl time.Duration, length int) *OTPEngine {
	if length <= 0 {
		length = 4
	}
	return &OTPEngine{otps: otps, ttl: ttl, length: length}
}

// Issue generates a fresh code for the user, persists its hash and returns
// the transaction id alongside the plaintext code. The code itself is never
// stored; delivery to the user happens out-of-band.
func (e *OTPEngine) Issue(ctx context.Context, userID uuid.UUID) (uuid.UUID, string, error) {
	code, err := GenerateCode(e.length)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("generate otp: %w", err)
	}

	hash, err := HashPassword(code)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("hash otp: %w", err)
	}

	otp := &model.UserOTP{
		ID:       uuid.New(),
		UserID:   userID,
		CodeHash: hash,
		Expiry:   time.Now().Add(e.ttl),
	}
	if err := e.otps.Create(ctx, otp); err != nil {
		return uuid.Nil, "", fmt.Errorf("store otp: %w", err)
	}

	return otp.ID, code, nil
}

// Verify checks a code against the most recent OTP for (txnID, userID).
// It returns ErrOTPNotFound, *ExpiredOTPError or ErrIncorrectCode for the
// respective failure modes; any other error is a store failure.
func (e *OTPEngine) Verify(ctx context.Context, txnID, userID uuid.UUID, code string) error {
	otp, err := e.otps.GetLatest(ctx, txnID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrOTPNotFound
		}
		return fmt.Errorf("look up otp: %w", err)
	}

	if !otp.Expiry.After(time.Now()) {
		return &ExpiredOTPError{Expiry: otp.Expiry}
	}

	if !CheckPassword(code, otp.CodeHash) {
		return ErrIncorrectCode
	}

	return nil
}

// GenerateCode returns a numeric code of exactly size digits drawn from a
// cryptographically secure source.
func GenerateCode(size int) (string, error) {
	digits := make([]byte, size)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
