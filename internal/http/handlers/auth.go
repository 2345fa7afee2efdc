package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/mslate/shortlink/internal/auth"
	"github.com/mslate/shortlink/internal/middleware"
	"github.com/mslate/shortlink/internal/repo"
	"github.com/mslate/shortlink/internal/response"
)

// AuthHandler handles registration, login and OTP endpoints.
type AuthHandler struct {
	service *auth.Service
	tokens  *auth.JWTService
	users   repo.UserRepo

	loginLimiter *middleware.RateLimiter
	otpLimiter   *middleware.RateLimiter
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *auth.Service, tokens *auth.JWTService, users repo.UserRepo) *AuthHandler {
	// Per-IP limits: 10 login attempts and 5 OTP requests per 10 minutes.
	return &AuthHandler{
		service:      service,
		tokens:       tokens,
		users:        users,
		loginLimiter: middleware.NewRateLimiter(10*time.Minute, 10),
		otpLimiter:   middleware.NewRateLimiter(10*time.Minute, 5),
	}
}

// decodeStrict decodes a JSON body into dst, rejecting unknown fields so
// malformed payloads never reach business logic.
func decodeStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// A second object in the body is as malformed as a bad first one.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected trailing data")
	}
	return nil
}

// HandleRegister handles POST /api/user/register
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeStrict(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}

	resp, err := h.service.Register(r.Context(), in, h.callerIsAdmin(r))
	if err != nil {
		log.Printf("[auth][register] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	resp.Write(w)
}

// HandleLogin handles POST /api/user/login/v1
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.loginLimiter.Allow(middleware.GetIPKey(r)) {
		response.WriteError(w, http.StatusTooManyRequests, "Rate Limit Exceeded", "too many login attempts, try again later")
		return
	}

	var in auth.LoginInput
	if err := decodeStrict(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}

	resp, err := h.service.LoginWithPassword(r.Context(), in)
	if err != nil {
		log.Printf("[auth][login] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	resp.Write(w)
}

// HandleRequestOTP handles POST /api/user/otp/request
func (h *AuthHandler) HandleRequestOTP(w http.ResponseWriter, r *http.Request) {
	if !h.otpLimiter.Allow(middleware.GetIPKey(r)) {
		response.WriteError(w, http.StatusTooManyRequests, "Rate Limit Exceeded", "too many OTP requests, try again later")
		return
	}

	var in auth.OTPRequestInput
	if err := decodeStrict(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}

	resp, err := h.service.RequestOTP(r.Context(), in)
	if err != nil {
		log.Printf("[auth][otp] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	resp.Write(w)
}

// HandleVerifyOTP handles POST /api/user/otp/verify
func (h *AuthHandler) HandleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var in auth.OTPVerifyInput
	if err := decodeStrict(r, &in); err != nil {
		response.WriteError(w, http.StatusBadRequest, "Invalid Input", "invalid request body")
		return
	}

	resp, err := h.service.VerifyOTP(r.Context(), in)
	if err != nil {
		log.Printf("[auth][otp] store failure: %v", err)
		response.WriteInternal(w)
		return
	}
	resp.Write(w)
}

// callerIsAdmin resolves an optional bearer token on a public route. Only a
// valid access token for a staff or superuser account grants admin powers
// to registration.
func (h *AuthHandler) callerIsAdmin(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	if header == "" {
		return false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return false
	}
	claims, err := h.tokens.VerifyAccessToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return false
	}
	user, err := h.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		return false
	}
	return user.IsAdmin()
}
