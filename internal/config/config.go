package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string

	// BaseURL is the public prefix of short links ({BaseURL}/{id}).
	BaseURL string

	// Password login lockout policy.
	LoginAttemptLimit int
	LoginBlockWindow  time.Duration

	// OTP lifecycle. A single TTL knob: the persistence layer never
	// recomputes it behind the caller's back.
	OTPTTL    time.Duration
	OTPLength int

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Registration defaults.
	DefaultPassword    string
	DefaultEmailDomain string

	ItemsPerPage int

	// SMTP delivery for OTP codes. Empty host means dev mode (codes are
	// logged, not sent).
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               "8080",
		BaseURL:            "http://localhost:8080",
		LoginAttemptLimit:  5,
		LoginBlockWindow:   30 * time.Minute,
		OTPTTL:             30 * time.Minute,
		OTPLength:          4,
		AccessTokenTTL:     5 * time.Minute,
		RefreshTokenTTL:    15 * 24 * time.Hour,
		DefaultPassword:    "Password123!",
		DefaultEmailDomain: "mslate.ai",
		ItemsPerPage:       50,
		SMTPPort:           587,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}
	if base := os.Getenv("BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	var err error
	if cfg.LoginAttemptLimit, err = intEnv("LOGIN_ATTEMPT_LIMIT", cfg.LoginAttemptLimit); err != nil {
		return nil, err
	}
	if cfg.LoginBlockWindow, err = minutesEnv("LOGIN_BLOCK_MINUTES", cfg.LoginBlockWindow); err != nil {
		return nil, err
	}
	if cfg.OTPTTL, err = minutesEnv("OTP_TTL_MINUTES", cfg.OTPTTL); err != nil {
		return nil, err
	}
	if cfg.OTPLength, err = intEnv("OTP_LENGTH", cfg.OTPLength); err != nil {
		return nil, err
	}
	if cfg.AccessTokenTTL, err = minutesEnv("ACCESS_TOKEN_TTL_MINUTES", cfg.AccessTokenTTL); err != nil {
		return nil, err
	}
	if cfg.RefreshTokenTTL, err = hoursEnv("REFRESH_TOKEN_TTL_HOURS", cfg.RefreshTokenTTL); err != nil {
		return nil, err
	}
	if cfg.ItemsPerPage, err = intEnv("ITEMS_PER_PAGE", cfg.ItemsPerPage); err != nil {
		return nil, err
	}

	if pw := os.Getenv("DEFAULT_PASSWORD"); pw != "" {
		cfg.DefaultPassword = pw
	}
	if domain := os.Getenv("DEFAULT_EMAIL_DOMAIN"); domain != "" {
		cfg.DefaultEmailDomain = domain
	}

	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	if cfg.SMTPPort, err = intEnv("SMTP_PORT", cfg.SMTPPort); err != nil {
		return nil, err
	}
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.SMTPFrom = os.Getenv("SMTP_FROM")
	if cfg.SMTPFrom == "" {
		cfg.SMTPFrom = cfg.SMTPUser
	}

	return cfg, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", name, err)
	}
	return v, nil
}

func minutesEnv(name string, fallback time.Duration) (time.Duration, error) {
	v, err := intEnv(name, int(fallback/time.Minute))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Minute, nil
}

func hoursEnv(name string, fallback time.Duration) (time.Duration, error) {
	v, err := intEnv(name, int(fallback/time.Hour))
	if err != nil {
		return 0, err
	}
	return time.Duration(v) * time.Hour, nil
}
