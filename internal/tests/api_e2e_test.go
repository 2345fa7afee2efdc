package tests

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
	"github.com/mslate/shortlink/internal/auth"
	"github.com/mslate/shortlink/internal/config"
	"github.com/mslate/shortlink/internal/db"
	httphandler "github.com/mslate/shortlink/internal/http"
	"github.com/mslate/shortlink/internal/http/handlers"
	"github.com/mslate/shortlink/internal/repo"
	"github.com/mslate/shortlink/internal/shortlink"
)

func TestMain(m *testing.M) {
	// Set env if unset. Do NOT set DATABASE_URL; integration tests skip if missing.
	if os.Getenv("JWT_SECRET") == "" {
		os.Setenv("JWT_SECRET", "test-jwt-secret-at-least-32-characters-long")
	}
	// A small limit keeps the lockout section short.
	if os.Getenv("LOGIN_ATTEMPT_LIMIT") == "" {
		os.Setenv("LOGIN_ATTEMPT_LIMIT", "3")
	}

	os.Exit(m.Run())
}

// captureMailer stands in for SMTP delivery and records the last code sent.
type captureMailer struct {
	mu    sync.Mutex
	email string
	code  string
}

func (m *captureMailer) SendOTP(email, code string, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.email = email
	m.code = code
	return nil
}

func (m *captureMailer) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.code
}

// testServer holds the server and DB for integration tests.
type testServer struct {
	Server *httptest.Server
	DB     *sql.DB
	Mailer *captureMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	cfg, err := config.Load()
	require.NoError(t, err, "config load must succeed for integration test")

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DatabaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, RunMigrations(database), "migrations must run successfully")

	userRepo := repo.NewUserRepo(database)
	otpRepo := repo.NewOtpRepo(database)
	linkRepo := repo.NewLinkRepo(database)

	mailer := &captureMailer{}
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	otpEngine := auth.NewOTPEngine(otpRepo, cfg.OTPTTL, cfg.OTPLength)
	policy := auth.LockoutPolicy{AttemptLimit: cfg.LoginAttemptLimit, BlockWindow: cfg.LoginBlockWindow}
	authService := auth.NewService(userRepo, otpEngine, jwtService, policy, mailer,
		cfg.DefaultPassword, cfg.DefaultEmailDomain, cfg.OTPTTL)
	linkService := shortlink.NewService(linkRepo, cfg.BaseURL, cfg.ItemsPerPage)

	authHandler := handlers.NewAuthHandler(authService, jwtService, userRepo)
	linkHandler := handlers.NewLinkHandler(linkService)

	router := httphandler.NewRouter(authHandler, linkHandler, jwtService, userRepo)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Mailer: mailer}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) Truncate(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateTables(context.Background(), s.DB), "truncate tables")
}

// Activate flips the is_active flag registration leaves off.
func (s *testServer) Activate(t *testing.T, username string) {
	t.Helper()
	_, err := s.DB.Exec("UPDATE users SET is_active = TRUE WHERE username = $1", username)
	require.NoError(t, err)
}

func (s *testServer) MakeStaff(t *testing.T, username string) {
	t.Helper()
	_, err := s.DB.Exec("UPDATE users SET is_staff = TRUE WHERE username = $1", username)
	require.NoError(t, err)
}

// envelope matches the uniform response body.
type envelope struct {
	Error   *string         `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func postJSON(t *testing.T, client *http.Client, url, token string, body any) (*http.Response, envelope) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env), "response must be a JSON envelope")
	return resp, env
}

func getJSON(t *testing.T, client *http.Client, url, token string) (*http.Response, envelope) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env), "response must be a JSON envelope")
	return resp, env
}

// register + activate + login, returning the access token.
func loginUser(t *testing.T, ts *testServer, username, phone, password string) string {
	t.Helper()
	client := ts.Server.Client()

	resp, env := postJSON(t, client, ts.BaseURL()+"/api/user/register", "",
		map[string]string{"username": username, "phone": phone, "password": password})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "register: %s", env.Message)
	ts.Activate(t, username)

	resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "",
		map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode, "login: %s", env.Message)

	var data struct {
		Tokens auth.TokenPair `json:"tokens"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Tokens.AccessToken)
	return data.Tokens.AccessToken
}

const testPassword = "Sup3r$ecret"

func TestAPIE2E(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set; skipping E2E test")
	}

	t.Run("A_Health", func(t *testing.T) {
		ts := newTestServer(t)
		resp, err := ts.Server.Client().Get(ts.BaseURL() + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, "GET /health must return 200")
		var body map[string]bool
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body["ok"])
	})

	t.Run("B_RegisterAndLogin", func(t *testing.T) {
		ts := newTestServer(t)
		ts.Truncate(t)
		client := ts.Server.Client()

		resp, env := postJSON(t, client, ts.BaseURL()+"/api/user/register", "",
			map[string]string{"username": "bob", "phone": "9999999999", "password": testPassword})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "register: %s", env.Message)
		require.Nil(t, env.Error)

		var created struct {
			Username string `json:"username"`
			Email    string `json:"email"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &created))
		assert.Equal(t, "bob", created.Username)
		assert.Equal(t, "9999999999@mslate.ai", created.Email, "email defaults to {phone}@domain")

		// Same phone again.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/register", "",
			map[string]string{"username": "alice", "phone": "9999999999"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "User Already Exists", *env.Error)

		// Registration leaves the account inactive.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "",
			map[string]string{"username": "bob", "password": testPassword})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "inactive users cannot log in")
		require.NotNil(t, env.Error)
		assert.Equal(t, "User Not Found", *env.Error)

		ts.Activate(t, "bob")

		// Both identifiers at once.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "",
			map[string]string{"username": "bob", "email": "9999999999@mslate.ai", "password": testPassword})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Invalid Request", *env.Error)

		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "",
			map[string]string{"email": "9999999999@mslate.ai", "password": testPassword})
		require.Equal(t, http.StatusOK, resp.StatusCode, "login by email: %s", env.Message)
		var data struct {
			Tokens auth.TokenPair `json:"tokens"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.NotEmpty(t, data.Tokens.AccessToken)
		assert.NotEmpty(t, data.Tokens.RefreshToken)
	})

	t.Run("C_Lockout", func(t *testing.T) {
		ts := newTestServer(t)
		ts.Truncate(t)
		client := ts.Server.Client()

		resp, env := postJSON(t, client, ts.BaseURL()+"/api/user/register", "",
			map[string]string{"username": "bob", "phone": "9999999999", "password": testPassword})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "register: %s", env.Message)
		ts.Activate(t, "bob")

		wrong := map[string]string{"username": "bob", "password": "Wr0ng!pass"}

		// LOGIN_ATTEMPT_LIMIT=3: three mismatches decrement attemptsLeft.
		for want := 2; want >= 0; want-- {
			resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "", wrong)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
			require.NotNil(t, env.Error)
			assert.Equal(t, "Invalid Credentials", *env.Error)
			var data struct {
				AttemptsLeft int `json:"attemptsLeft"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &data))
			assert.Equal(t, want, data.AttemptsLeft)
		}

		// The next mismatch opens the block.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "", wrong)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "User Blocked", *env.Error)

		// Even the correct password is rejected while blocked.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/login/v1", "",
			map[string]string{"username": "bob", "password": testPassword})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Login Blocked", *env.Error)
	})

	t.Run("D_OTPFlow", func(t *testing.T) {
		ts := newTestServer(t)
		ts.Truncate(t)
		client := ts.Server.Client()

		resp, env := postJSON(t, client, ts.BaseURL()+"/api/user/register", "",
			map[string]string{"username": "bob", "phone": "9999999999", "password": testPassword})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "register: %s", env.Message)
		ts.Activate(t, "bob")

		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/otp/request", "",
			map[string]string{"username": "bob"})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "otp request: %s", env.Message)
		var issued struct {
			TxnID string `json:"txnId"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &issued))
		require.NotEmpty(t, issued.TxnID)

		code := ts.Mailer.LastCode()
		require.Len(t, code, 4, "codes are delivered out-of-band, never in the response")

		// Wrong code first.
		wrongCode := "0000"
		if wrongCode == code {
			wrongCode = "1111"
		}
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/otp/verify", "",
			map[string]string{"txnId": issued.TxnID, "otp": wrongCode, "username": "bob"})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Incorrect OTP", *env.Error)

		// Right code.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/otp/verify", "",
			map[string]string{"txnId": issued.TxnID, "otp": code, "username": "bob"})
		require.Equal(t, http.StatusOK, resp.StatusCode, "otp verify: %s", env.Message)
		assert.Nil(t, env.Error)
		assert.Equal(t, "OTP Authenticated.", env.Message)

		// Force the record past its expiry.
		_, err := ts.DB.Exec("UPDATE user_otps SET expiry = NOW() - INTERVAL '1 minute'")
		require.NoError(t, err)
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/otp/verify", "",
			map[string]string{"txnId": issued.TxnID, "otp": code, "username": "bob"})
		assert.Equal(t, http.StatusNotAcceptable, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "OTP Expired", *env.Error)

		// Unknown transaction id.
		resp, env = postJSON(t, client, ts.BaseURL()+"/api/user/otp/verify", "",
			map[string]string{"txnId": "00000000-0000-0000-0000-000000000000", "otp": code, "username": "bob"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "OTP Not Found", *env.Error)
	})

	t.Run("E_ShortLinks", func(t *testing.T) {
		ts := newTestServer(t)
		ts.Truncate(t)
		client := ts.Server.Client()
		token := loginUser(t, ts, "bob", "9999999999", testPassword)

		// Unauthenticated create is rejected before the service runs.
		resp, env := postJSON(t, client, ts.BaseURL()+"/create", "",
			map[string]string{"long_url": "example.com"})
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, env.Error)

		resp, env = postJSON(t, client, ts.BaseURL()+"/create", token,
			map[string]string{"long_url": "example.com/some/page"})
		require.Equal(t, http.StatusCreated, resp.StatusCode, "create: %s", env.Message)
		var created struct {
			ID       string `json:"id"`
			ShortURL string `json:"shortUrl"`
			LongURL  string `json:"longUrl"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &created))
		require.NotEmpty(t, created.ID)
		assert.Contains(t, created.ShortURL, created.ID)

		// Resolution is public and answers with a permanent redirect.
		noRedirect := &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
		resp2, err := noRedirect.Get(ts.BaseURL() + "/" + created.ID)
		require.NoError(t, err)
		resp2.Body.Close()
		assert.Equal(t, http.StatusMovedPermanently, resp2.StatusCode)
		assert.Equal(t, "https://example.com/some/page", resp2.Header.Get("Location"),
			"destination is normalized with a scheme")

		// Unknown slug.
		resp2, err = noRedirect.Get(ts.BaseURL() + "/b71de7f2-0000-0000-0000-000000000000")
		require.NoError(t, err)
		resp2.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp2.StatusCode)

		// Listing is staff only.
		resp, env = getJSON(t, client, ts.BaseURL()+"/list?page=1", token)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.NotNil(t, env.Error)
		assert.Equal(t, "Permission Denied", *env.Error)

		ts.MakeStaff(t, "bob")
		resp, env = getJSON(t, client, ts.BaseURL()+"/list?page=1", token)
		require.Equal(t, http.StatusOK, resp.StatusCode, "list: %s", env.Message)
		var page struct {
			Hits    int               `json:"hits"`
			Results []json.RawMessage `json:"results"`
			Page    int               `json:"page"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &page))
		assert.Equal(t, 1, page.Hits)
		assert.Len(t, page.Results, 1)
		assert.Equal(t, 1, page.Page)

		// Expired links resolve to 403.
		_, err = ts.DB.Exec("UPDATE short_links SET expiry = NOW() - INTERVAL '1 minute'")
		require.NoError(t, err)
		resp2, err = noRedirect.Get(ts.BaseURL() + "/" + created.ID)
		require.NoError(t, err)
		defer resp2.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
		var expired envelope
		require.NoError(t, json.NewDecoder(resp2.Body).Decode(&expired))
		require.NotNil(t, expired.Error)
		assert.Equal(t, "Link Expired", *expired.Error)
	})

	t.Run("F_RateLimit", func(t *testing.T) {
		ts := newTestServer(t)
		ts.Truncate(t)
		client := ts.Server.Client()

		// The OTP route allows 5 requests per window per IP.
		var last *http.Response
		for i := 0; i < 6; i++ {
			raw, _ := json.Marshal(map[string]string{"username": "ghost"})
			resp, err := client.Post(ts.BaseURL()+"/api/user/otp/request", "application/json", bytes.NewReader(raw))
			require.NoError(t, err)
			last = resp
			if resp.StatusCode == http.StatusTooManyRequests {
				break
			}
			resp.Body.Close()
		}
		require.NotNil(t, last)
		defer last.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, last.StatusCode, "6th OTP request must be rate limited")
	})
}
