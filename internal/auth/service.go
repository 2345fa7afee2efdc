package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mslate/shortlink/internal/mail"
	"github.com/mslate/shortlink/internal/model"
	"github.com/mslate/shortlink/internal/repo"
	"github.com/mslate/shortlink/internal/response"
)

// Service orchestrates registration, password login and the OTP lifecycle.
// Business-rule failures are returned inside the response envelope; a
// non-nil error means the underlying store failed.
type Service struct {
	users  repo.UserRepo
	otp    *OTPEngine
	tokens *JWTService
	policy LockoutPolicy
	mailer mail.Mailer

	defaultPassword    string
	defaultEmailDomain string
	otpTTL             time.Duration
}

// NewService creates a new auth service
func NewService(
	users repo.UserRepo,
	otp *OTPEngine,
	tokens *JWTService,
	policy LockoutPolicy,
	mailer mail.Mailer,
	defaultPassword string,
	defaultEmailDomain string,
	otpTTL time.Duration,
) *Service {
	return &Service{
		users:              users,
		otp:                otp,
		tokens:             tokens,
		policy:             policy,
		mailer:             mailer,
		defaultPassword:    defaultPassword,
		defaultEmailDomain: defaultEmailDomain,
		otpTTL:             otpTTL,
	}
}

// RegisterInput is the statically validated registration payload.
type RegisterInput struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Password    string `json:"password"`
	IsStaff     bool   `json:"isStaff"`
	IsSuperuser bool   `json:"isSuperuser"`
}

// userPayload is the sanitized user representation placed in envelopes.
type userPayload struct {
	ID         uuid.UUID `json:"id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	FirstName  *string   `json:"firstName"`
	LastName   *string   `json:"lastName"`
	DateJoined time.Time `json:"dateJoined"`
}

func toPayload(u *model.User) userPayload {
	return userPayload{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Phone:      u.Phone,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		DateJoined: u.DateJoined,
	}
}

// Register creates a new inactive user. A missing email defaults to
// {phone}@{domain} and a missing password to the system default; staff and
// superuser flags are stripped unless the caller is an administrator.
func (s *Service) Register(ctx context.Context, in RegisterInput, isAdmin bool) (*response.Resp, error) {
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Phone == "" {
		return response.Failure(http.StatusBadRequest, "Invalid Input", "Phone number is required.", nil), nil
	}

	if in.Email == "" {
		in.Email = fmt.Sprintf("%s@%s", in.Phone, s.defaultEmailDomain)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" {
		in.Username = in.Phone
	}
	in.Username = strings.ToLower(strings.TrimSpace(in.Username))

	if in.Password == "" {
		in.Password = s.defaultPassword
	}

	exists, err := s.users.Exists(ctx, in.Username, in.Phone, in.Email)
	if err != nil {
		return nil, err
	}
	if exists {
		return response.Failure(http.StatusBadRequest, "User Already Exists",
			"A user with the given credentials (username | email | phone) already exists.", nil), nil
	}

	// Validated before hashing; there is no checking it afterwards.
	if !ValidatePasswordStrength(in.Password) {
		return response.Failure(http.StatusBadRequest, "Weak Password",
			"Password MUST contain 1 UPPERCASE character, 1 lowercase character, 1 special character and 1 numerical character.", nil), nil
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: hash,
		IsActive:     false,
	}
	if in.FirstName != "" {
		user.FirstName = &in.FirstName
	}
	if in.LastName != "" {
		user.LastName = &in.LastName
	}
	if isAdmin {
		user.IsStaff = in.IsStaff
		user.IsSuperuser = in.IsSuperuser
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("[auth][register] user %s registered", user.Username)
	return response.OK(http.StatusCreated,
		fmt.Sprintf("User %s registered successfully.", user.Username),
		toPayload(user)), nil
}

// LoginInput is the password login payload. Exactly one of Username or
// Email must be set.
type LoginInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginWithPassword authenticates a user by password, driving the lockout
// state machine on failures.
func (s *Service) LoginWithPassword(ctx context.Context, in LoginInput) (*response.Resp, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if (in.Username == "") == (in.Email == "") {
		return response.Failure(http.StatusBadRequest, "Invalid Request",
			"Send either the USERNAME or the EMAIL, not both.", nil), nil
	}

	user, resp, err := s.findActiveUser(ctx, in.Username, in.Email)
	if resp != nil || err != nil {
		return resp, err
	}

	now := time.Now()
	if IsBlocked(now, user.BlockedUntil) {
		return response.Failure(http.StatusUnauthorized, "Login Blocked",
			fmt.Sprintf("The user is blocked from logging in until %s.", user.BlockedUntil.Format(time.RFC1123)), nil), nil
	}

	state := LockState{
		FailedAttempts: user.UnsuccessfulLoginAttempts,
		BlockedUntil:   user.BlockedUntil,
	}

	if !CheckPassword(in.Password, user.PasswordHash) {
		next := s.policy.OnFailure(state, now)
		if err := s.users.UpdateLoginState(ctx, user.ID, next.FailedAttempts, next.BlockedUntil); err != nil {
			return nil, err
		}

		// OnFailure resets the counter only when a block opens.
		if next.FailedAttempts == 0 {
			log.Printf("[auth][login] user %s blocked until %s", user.Username, next.BlockedUntil.Format(time.RFC3339))
			return response.Failure(http.StatusUnauthorized, "User Blocked",
				fmt.Sprintf("Too many unsuccessful login attempts. User %s is blocked for %d minutes, until %s.",
					user.Email, int(s.policy.BlockWindow.Minutes()), next.BlockedUntil.Format(time.RFC1123)),
				map[string]any{"user": user.ID, "blockedUntil": next.BlockedUntil}), nil
		}

		return response.Failure(http.StatusForbidden, "Invalid Credentials",
			"The entered password is incorrect.",
			map[string]any{"attemptsLeft": s.policy.AttemptsLeft(next)}), nil
	}

	if user.UnsuccessfulLoginAttempts != 0 {
		next := s.policy.OnSuccess(state)
		if err := s.users.UpdateLoginState(ctx, user.ID, next.FailedAttempts, next.BlockedUntil); err != nil {
			return nil, err
		}
	}

	tokens, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, err
	}

	login := time.Now()
	log.Printf("[auth][login] user %s logged in at %s via password", user.Username, login.Format(time.RFC3339))
	return response.OK(http.StatusOK,
		fmt.Sprintf("User %s logged in successfully.", user.Email),
		map[string]any{
			"user":   user.ID,
			"tokens": tokens,
			"login":  login,
		}), nil
}

// OTPRequestInput identifies the user an OTP should be issued for.
type OTPRequestInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// RequestOTP issues a fresh one-time code for the user and delivers it
// out-of-band. Only the transaction id is returned to the caller.
func (s *Service) RequestOTP(ctx context.Context, in OTPRequestInput) (*response.Resp, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if (in.Username == "") == (in.Email == "") {
		return response.Failure(http.StatusBadRequest, "Invalid Request",
			"Send either the USERNAME or the EMAIL, not both.", nil), nil
	}

	user, resp, err := s.findActiveUser(ctx, in.Username, in.Email)
	if resp != nil || err != nil {
		return resp, err
	}

	txnID, code, err := s.otp.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if err := s.mailer.SendOTP(user.Email, code, int(s.otpTTL.Minutes())); err != nil {
		// OTP is already committed; the user can retry delivery by
		// requesting a new one.
		log.Printf("[auth][otp] warning: delivery to user %s failed: %v", user.Username, err)
	}

	return response.OK(http.StatusCreated, "OTP issued successfully.",
		map[string]any{"txnId": txnID}), nil
}

// OTPVerifyInput carries the transaction id and code to validate.
type OTPVerifyInput struct {
	TxnID    string `json:"txnId"`
	OTP      string `json:"otp"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// VerifyOTP validates a code against the most recently issued OTP for the
// transaction id and user.
func (s *Service) VerifyOTP(ctx context.Context, in OTPVerifyInput) (*response.Resp, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if (in.Username == "") == (in.Email == "") {
		return response.Failure(http.StatusBadRequest, "Invalid Request",
			"Send either the USERNAME or the EMAIL, not both.", nil), nil
	}

	txnID, err := uuid.Parse(strings.TrimSpace(in.TxnID))
	if err != nil {
		return response.Failure(http.StatusNotFound, "OTP Not Found",
			"Either the user did not request an OTP or incorrect transaction ID.", nil), nil
	}

	user, resp, err := s.findActiveUser(ctx, in.Username, in.Email)
	if resp != nil || err != nil {
		return resp, err
	}

	switch err := s.otp.Verify(ctx, txnID, user.ID, in.OTP); {
	case err == nil:
		return response.OK(http.StatusOK, "OTP Authenticated.", true), nil
	case errors.Is(err, ErrOTPNotFound):
		return response.Failure(http.StatusNotFound, "OTP Not Found",
			"Either the user did not request an OTP or incorrect transaction ID.",
			map[string]any{"txnId": in.TxnID}), nil
	case errors.Is(err, ErrIncorrectCode):
		return response.Failure(http.StatusBadRequest, "Incorrect OTP",
			"The provided OTP is incorrect.", nil), nil
	default:
		var expired *ExpiredOTPError
		if errors.As(err, &expired) {
			return response.Failure(http.StatusNotAcceptable, "OTP Expired",
				fmt.Sprintf("The OTP expired at %s. Please request a new OTP.", expired.Expiry.Format(time.RFC1123)), nil), nil
		}
		return nil, err
	}
}

// findActiveUser resolves an active user by username or email. It returns a
// NotFound envelope when no user matches and an error on store failure.
func (s *Service) findActiveUser(ctx context.Context, username, email string) (*model.User, *response.Resp, error) {
	var (
		user model.User
		err  error
	)
	if username != "" {
		user, err = s.users.GetActiveByUsername(ctx, username)
	} else {
		user, err = s.users.GetActiveByEmail(ctx, email)
	}
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, response.Failure(http.StatusNotFound, "User Not Found",
				"User not found for the given credentials, please check again.", nil), nil
		}
		return nil, nil, err
	}
	return &user, nil, nil
}
