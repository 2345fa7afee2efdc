package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/mslate/shortlink/internal/auth"
	"github.com/mslate/shortlink/internal/config"
	"github.com/mslate/shortlink/internal/db"
	httphandler "github.com/mslate/shortlink/internal/http"
	"github.com/mslate/shortlink/internal/http/handlers"
	"github.com/mslate/shortlink/internal/mail"
	"github.com/mslate/shortlink/internal/repo"
	"github.com/mslate/shortlink/internal/shortlink"
)

func main() {
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	users := repo.NewUserRepo(database)
	links := repo.NewLinkRepo(database)
	otps := repo.NewOtpRepo(database)

	// OTP delivery: SMTP when configured, log-only otherwise.
	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		log.Println("SMTP not configured; OTP delivery runs in dev mode")
		mailer = mail.NewLogMailer()
	}

	// Services
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	otpEngine := auth.NewOTPEngine(otps, cfg.OTPTTL, cfg.OTPLength)
	policy := auth.LockoutPolicy{
		AttemptLimit: cfg.LoginAttemptLimit,
		BlockWindow:  cfg.LoginBlockWindow,
	}
	authService := auth.NewService(users, otpEngine, jwtService, policy, mailer,
		cfg.DefaultPassword, cfg.DefaultEmailDomain, cfg.OTPTTL)
	linkService := shortlink.NewService(links, cfg.BaseURL, cfg.ItemsPerPage)

	// Handlers and router
	authHandler := handlers.NewAuthHandler(authService, jwtService, users)
	linkHandler := handlers.NewLinkHandler(linkService)
	router := httphandler.NewRouter(authHandler, linkHandler, jwtService, users)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the repo root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
