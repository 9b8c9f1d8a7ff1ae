// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/auth/memory"
	"github.com/groupomania/groupomania/internal/logging"
	"github.com/groupomania/groupomania/internal/observability"
	"github.com/groupomania/groupomania/internal/web"
)

const (
	adminEmail    = "admin@groupomania.com"
	adminPassword = "admin-password"
)

type testEnv struct {
	app      *fiber.App
	users    *memory.UserRepository
	sessions *memory.SessionRepository
	metrics  *observability.Metrics
	logs     *bytes.Buffer
}

func newTestEnv(t *testing.T, users auth.UserRepository) *testEnv {
	t.Helper()
	memUsers := memory.NewUserRepository()
	if users == nil {
		users = memUsers
	}
	sessions := memory.NewSessionRepository()

	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	require.NoError(t, err)
	issuer, err := auth.NewJWTIssuer("web-access-secret", "web-refresh-secret")
	require.NoError(t, err)
	policy, err := auth.NewAdminPairPolicy(adminEmail, adminPassword)
	require.NoError(t, err)

	var logs bytes.Buffer
	logger := logging.Setup(logging.Options{Service: "groupomania", Writer: &logs})

	svc, err := auth.NewAuthService(users, sessions, hasher, issuer, policy, auth.WithLogger(logger))
	require.NoError(t, err)

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	app := web.NewApp(web.Options{Service: svc, Metrics: metrics, Logger: logger})
	return &testEnv{app: app, users: memUsers, sessions: sessions, metrics: metrics, logs: &logs}
}

func (e *testEnv) do(t *testing.T, path string, body any, header ...string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(http.MethodPost, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	resp, err := e.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	}
	return resp.StatusCode, out
}

func (e *testEnv) signupAndLogin(t *testing.T, email, password string) map[string]any {
	t.Helper()
	status, _ := e.do(t, "/api/users/signup", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusCreated, status)
	status, body := e.do(t, "/api/users/login", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, status)
	return body
}

// assertExpiresAt checks that raw is a JSON number of epoch milliseconds about
// fifteen minutes after issuedAt.
func assertExpiresAt(t *testing.T, issuedAt time.Time, raw any) {
	t.Helper()
	millis, ok := raw.(float64)
	require.True(t, ok, "expiresAt should be a JSON number, got %T (%v)", raw, raw)
	want := issuedAt.Add(auth.AccessTokenTTL).UnixMilli()
	assert.InDelta(t, want, millis, float64(5*time.Second/time.Millisecond))
}

// logEntries decodes every JSON log line written so far.
func (e *testEnv) logEntries(t *testing.T) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(e.logs.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), "log line: %s", line)
		entries = append(entries, entry)
	}
	return entries
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, "/api/users/signup", map[string]string{
		"email": "a@x.com", "password": "pw1", "firstName": "Ada", "lastName": "Lovelace",
	})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, web.MsgSignupSuccess, body["message"])

	loginAt := time.Now()
	status, body = env.do(t, "/api/users/login", map[string]string{"email": "a@x.com", "password": "pw1"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "basic", body["role"])
	assert.NotEmpty(t, body["userId"])
	assertExpiresAt(t, loginAt, body["expiresAt"])
	access, _ := body["accessToken"].(string)
	refresh, _ := body["refreshToken"].(string)
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)

	refreshAt := time.Now()
	status, body = env.do(t, "/api/users/token", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["accessToken"])
	assertExpiresAt(t, refreshAt, body["expiresAt"])
	assert.NotEqual(t, access, body["accessToken"])

	status, body = env.do(t, "/api/users/logout", map[string]string{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, web.MsgLogoutSuccess, body["message"])

	status, body = env.do(t, "/api/users/token", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, web.MsgRefreshTokenUnknown, body["error"])

	status, body = env.do(t, "/api/users/logout", map[string]string{"refreshToken": refresh})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, web.MsgTokenNotFound, body["error"])
}

func TestSignup(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		status  int
		message string
	}{
		{"missing password", map[string]string{"email": "a@x.com"}, http.StatusBadRequest, "password is required"},
		{"missing email", map[string]string{"password": "pw"}, http.StatusBadRequest, "email is required"},
		{"malformed json", `{"email":`, http.StatusBadRequest, web.MsgInvalidBody},
		{"overlong password", map[string]string{"email": "a@x.com", "password": strings.Repeat("p", auth.MaxPasswordBytes+1)}, http.StatusBadRequest, web.MsgInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, nil)
			status, body := env.do(t, "/api/users/signup", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, body["error"])
			assert.Zero(t, env.users.Len())
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t, nil)
	status, _ := env.do(t, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "pw1"})
	require.Equal(t, http.StatusCreated, status)

	status, body := env.do(t, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "other"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, web.MsgEmailExists, body["error"])
	assert.Equal(t, 1, env.users.Len())
}

func TestSignup_AdminPair(t *testing.T) {
	env := newTestEnv(t, nil)
	body := env.signupAndLogin(t, adminEmail, adminPassword)
	assert.Equal(t, "admin", body["role"])
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signupAndLogin(t, "a@x.com", "pw1")

	status, body := env.do(t, "/api/users/login", map[string]string{"email": "nobody@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, web.MsgUserNotFound, body["error"])

	status, body = env.do(t, "/api/users/login", map[string]string{"email": "a@x.com", "password": "wrong"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, web.MsgInvalidPassword, body["error"])

	status, body = env.do(t, "/api/users/login", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "password is required", body["error"])
}

// brokenUsers fails every email lookup.
type brokenUsers struct {
	*memory.UserRepository
}

func (brokenUsers) GetByEmail(context.Context, string) (*auth.User, error) {
	return nil, errors.New("connection refused")
}

func TestLogin_StorageFailure(t *testing.T) {
	env := newTestEnv(t, brokenUsers{memory.NewUserRepository()})

	status, body := env.do(t, "/api/users/login", map[string]string{"email": "a@x.com", "password": "pw1"})
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, web.MsgLoginFailed, body["error"])
	assert.NotContains(t, body["error"], "connection refused")
	assert.Contains(t, env.logs.String(), "connection refused")
}

func TestServerErrorLogCarriesRequestID(t *testing.T) {
	env := newTestEnv(t, brokenUsers{memory.NewUserRepository()})

	req := httptest.NewRequest(http.MethodPost, "/api/users/login",
		strings.NewReader(`{"email":"a@x.com","password":"pw1"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	requestID := resp.Header.Get(fiber.HeaderXRequestID)
	require.NotEmpty(t, requestID)

	var found bool
	for _, entry := range env.logEntries(t) {
		if entry["msg"] != "login failed" {
			continue
		}
		found = true
		assert.Equal(t, "ERROR", entry["level"])
		assert.Equal(t, requestID, entry["request_id"])
		assert.Equal(t, auth.CodeLoginFailed, entry["code"])
	}
	assert.True(t, found, "expected an error log line for the failed login")
}

func TestRefresh_Failures(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, "/api/users/token", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, web.MsgRefreshTokenMissing, body["error"])

	status, body = env.do(t, "/api/users/token", map[string]string{})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, web.MsgRefreshTokenMissing, body["error"])

	status, body = env.do(t, "/api/users/token", map[string]string{"refreshToken": "never-issued"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, web.MsgRefreshTokenUnknown, body["error"])

	// Stored but unsigned: the store gate passes and the signature gate fails.
	login := env.signupAndLogin(t, "a@x.com", "pw1")
	userID, err := parseULID(login["userId"])
	require.NoError(t, err)
	forged := "forged.refresh.token"
	session, err := auth.NewSession(userID, forged)
	require.NoError(t, err)
	require.NoError(t, env.sessions.Create(context.Background(), session))

	status, body = env.do(t, "/api/users/token", map[string]string{"refreshToken": forged})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, web.MsgJWTVerifyFailed, body["error"])
}

func TestLogout_MissingToken(t *testing.T) {
	env := newTestEnv(t, nil)

	status, body := env.do(t, "/api/users/logout", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, web.MsgRefreshTokenMissing, body["error"])

	status, body = env.do(t, "/api/users/logout", `not json`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, web.MsgInvalidBody, body["error"])
}

func TestLogoutAll(t *testing.T) {
	env := newTestEnv(t, nil)
	first := env.signupAndLogin(t, "a@x.com", "pw1")
	status, second := env.do(t, "/api/users/login", map[string]string{"email": "a@x.com", "password": "pw1"})
	require.Equal(t, http.StatusOK, status)

	status, body := env.do(t, "/api/users/logout-all", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, web.MsgMissingAuthorization, body["error"])

	status, body = env.do(t, "/api/users/logout-all", nil, "Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, web.MsgInvalidAccessToken, body["error"])

	// A refresh token is signed with the other secret and must not pass.
	status, _ = env.do(t, "/api/users/logout-all", nil, "Authorization", "Bearer "+first["refreshToken"].(string))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body = env.do(t, "/api/users/logout-all", nil, "Authorization", "Bearer "+second["accessToken"].(string))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, web.MsgSessionsRevoked, body["message"])
	assert.EqualValues(t, 2, body["revoked"])

	for _, login := range []map[string]any{first, second} {
		status, _ = env.do(t, "/api/users/token", map[string]any{"refreshToken": login["refreshToken"]})
		assert.Equal(t, http.StatusForbidden, status)
	}
}

func TestSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/users/token", nil)
	req.Header.Set("Origin", "https://groupomania.example")

	resp, err := env.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "cross-origin", resp.Header.Get("Cross-Origin-Resource-Policy"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))
}

func TestRequestLoggingAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	env.signupAndLogin(t, "a@x.com", "pw1")
	status, _ := env.do(t, "/api/users/login", map[string]string{"email": "a@x.com", "password": "bad"})
	require.Equal(t, http.StatusForbidden, status)

	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/api/users/login", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.HTTPRequests.WithLabelValues("/api/users/login", "403")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.AuthOperations.WithLabelValues("login", observability.OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(env.metrics.AuthOperations.WithLabelValues("login", observability.OutcomeFailure)), 0)

	var found bool
	for _, entry := range env.logEntries(t) {
		if entry["msg"] != "http request" || entry["path"] != "/api/users/signup" {
			continue
		}
		found = true
		assert.EqualValues(t, http.StatusCreated, entry["status"])
		assert.NotEmpty(t, entry["request_id"])
		assert.Equal(t, "groupomania", entry["service"])
	}
	assert.True(t, found, "expected a request log line for signup")
	assert.NotContains(t, env.logs.String(), "pw1")
}

func TestUserID_WithoutMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c fiber.Ctx) error {
		_, ok := web.UserID(c)
		return c.JSON(fiber.Map{"ok": ok})
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body["ok"])
}

func TestServer_StartStop(t *testing.T) {
	app := web.NewApp(web.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	srv := web.NewServer("127.0.0.1:0", app, nil)

	errCh, err := srv.Start()
	require.NoError(t, err)
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	// The request is only answered once the app is serving.
	resp, err := http.Get("http://" + srv.Addr() + "/unknown")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestServer_StartBindFailure(t *testing.T) {
	srv := web.NewServer("256.0.0.1:99999", fiber.New(), nil)
	_, err := srv.Start()
	require.Error(t, err)
}
