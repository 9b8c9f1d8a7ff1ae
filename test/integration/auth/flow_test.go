// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

//go:build integration

package auth_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v3"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/groupomania/groupomania/internal/auth"
	"github.com/groupomania/groupomania/internal/auth/postgres"
	"github.com/groupomania/groupomania/internal/auth/redisstore"
	"github.com/groupomania/groupomania/internal/web"
)

const (
	adminEmail    = "admin@groupomania.com"
	adminPassword = "admin-password"
)

func newApp(sessions auth.SessionRepository) *fiber.App {
	hasher, err := auth.NewBcryptHasher(bcrypt.MinCost)
	Expect(err).NotTo(HaveOccurred())
	issuer, err := auth.NewJWTIssuer("it-access-secret", "it-refresh-secret")
	Expect(err).NotTo(HaveOccurred())
	policy, err := auth.NewAdminPairPolicy(adminEmail, adminPassword)
	Expect(err).NotTo(HaveOccurred())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc, err := auth.NewAuthService(postgres.NewUserRepository(env.pool), sessions, hasher, issuer, policy,
		auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())
	return web.NewApp(web.Options{Service: svc, Logger: logger})
}

func post(app *fiber.App, path string, body any, header ...string) (int, map[string]any) {
	raw, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if len(header) == 2 {
		req.Header.Set(header[0], header[1])
	}

	resp, err := app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	out := map[string]any{}
	Expect(json.NewDecoder(resp.Body).Decode(&out)).To(Succeed())
	return resp.StatusCode, out
}

var _ = Describe("Account and session flow", func() {
	for _, backend := range []string{"postgres", "redis"} {
		Context("with the "+backend+" session store", func() {
			var app *fiber.App

			BeforeEach(func() {
				env.truncate()

				var sessions auth.SessionRepository
				if backend == "redis" {
					mr := miniredis.NewMiniRedis()
					Expect(mr.Start()).To(Succeed())
					DeferCleanup(mr.Close)
					client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
					DeferCleanup(client.Close)
					sessions = redisstore.NewSessionRepository(client, redisstore.DefaultPrefix)
				} else {
					sessions = postgres.NewSessionRepository(env.pool)
				}
				app = newApp(sessions)
			})

			It("signs up, logs in, refreshes and logs out", func() {
				status, body := post(app, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "pw1"})
				Expect(status).To(Equal(http.StatusCreated))
				Expect(body["message"]).To(Equal(web.MsgSignupSuccess))

				status, body = post(app, "/api/users/login", map[string]string{"email": "a@x.com", "password": "pw1"})
				Expect(status).To(Equal(http.StatusOK))
				Expect(body["role"]).To(Equal("basic"))
				access := body["accessToken"]
				refresh := body["refreshToken"]

				status, body = post(app, "/api/users/token", map[string]any{"refreshToken": refresh})
				Expect(status).To(Equal(http.StatusOK))
				Expect(body["accessToken"]).NotTo(Equal(access))

				status, _ = post(app, "/api/users/logout", map[string]any{"refreshToken": refresh})
				Expect(status).To(Equal(http.StatusOK))

				status, body = post(app, "/api/users/token", map[string]any{"refreshToken": refresh})
				Expect(status).To(Equal(http.StatusForbidden))
				Expect(body["error"]).To(Equal(web.MsgRefreshTokenUnknown))

				status, body = post(app, "/api/users/logout", map[string]any{"refreshToken": refresh})
				Expect(status).To(Equal(http.StatusNotFound))
				Expect(body["error"]).To(Equal(web.MsgTokenNotFound))
			})

			It("rejects a duplicate email through the unique index", func() {
				status, _ := post(app, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "pw1"})
				Expect(status).To(Equal(http.StatusCreated))

				status, body := post(app, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "pw2"})
				Expect(status).To(Equal(http.StatusConflict))
				Expect(body["error"]).To(Equal(web.MsgEmailExists))
			})

			It("grants admin only for the exact admin pair", func() {
				post(app, "/api/users/signup", map[string]string{"email": adminEmail, "password": adminPassword})
				_, body := post(app, "/api/users/login", map[string]string{"email": adminEmail, "password": adminPassword})
				Expect(body["role"]).To(Equal("admin"))
			})

			It("distinguishes unknown users from wrong passwords", func() {
				post(app, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "pw1"})

				status, _ := post(app, "/api/users/login", map[string]string{"email": "b@x.com", "password": "pw1"})
				Expect(status).To(Equal(http.StatusUnauthorized))

				status, _ = post(app, "/api/users/login", map[string]string{"email": "a@x.com", "password": "nope"})
				Expect(status).To(Equal(http.StatusForbidden))
			})

			It("revokes every session with logout-all", func() {
				post(app, "/api/users/signup", map[string]string{"email": "a@x.com", "password": "pw1"})
				_, first := post(app, "/api/users/login", map[string]string{"email": "a@x.com", "password": "pw1"})
				_, second := post(app, "/api/users/login", map[string]string{"email": "a@x.com", "password": "pw1"})

				status, body := post(app, "/api/users/logout-all", map[string]any{},
					"Authorization", "Bearer "+second["accessToken"].(string))
				Expect(status).To(Equal(http.StatusOK))
				Expect(body["revoked"]).To(BeNumerically("==", 2))

				for _, login := range []map[string]any{first, second} {
					status, _ = post(app, "/api/users/token", map[string]any{"refreshToken": login["refreshToken"]})
					Expect(status).To(Equal(http.StatusForbidden))
				}
			})
		})
	}
})
