// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Groupomania Contributors

package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// AccessTokenTTL is the validity window of an access token.
const AccessTokenTTL = 15 * time.Minute

// Claims is the payload of both token kinds. Refresh tokens carry no exp.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims

	userID ulid.ULID
}

// NewClaims returns claims for userID with no registered claims set.
func NewClaims(userID ulid.ULID) *Claims {
	return &Claims{UserID: userID.String(), userID: userID}
}

// User returns the verified user ID.
func (c *Claims) User() ulid.ULID {
	return c.userID
}

// AccessToken is a signed access token and the instant it stops verifying.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// TokenIssuer creates and verifies access and refresh tokens.
type TokenIssuer interface {
	IssueAccess(userID ulid.ULID) (AccessToken, error)
	IssueRefresh(userID ulid.ULID) (string, error)
	VerifyAccess(token string) (*Claims, error)
	VerifyRefresh(token string) (*Claims, error)
}

// JWTIssuer implements TokenIssuer with HS256 JSON Web Tokens. Access and
// refresh tokens are signed with different secrets.
type JWTIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	now           func() time.Time
}

// IssuerOption configures a JWTIssuer.
type IssuerOption func(*JWTIssuer)

// WithAccessTTL overrides AccessTokenTTL.
func WithAccessTTL(ttl time.Duration) IssuerOption {
	return func(i *JWTIssuer) {
		i.accessTTL = ttl
	}
}

// WithClock sets the time source used for issuing and verifying.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *JWTIssuer) {
		i.now = now
	}
}

// NewJWTIssuer creates a JWTIssuer. Both secrets are required and must differ.
func NewJWTIssuer(accessSecret, refreshSecret string, opts ...IssuerOption) (*JWTIssuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, oops.Code("TOKEN_INVALID_SECRET").Errorf("access and refresh secrets are required")
	}
	if accessSecret == refreshSecret {
		return nil, oops.Code("TOKEN_INVALID_SECRET").Errorf("access and refresh secrets must differ")
	}

	i := &JWTIssuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     AccessTokenTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.accessTTL <= 0 {
		return nil, oops.Code("TOKEN_INVALID_TTL").With("ttl", i.accessTTL.String()).Errorf("access token TTL must be positive")
	}
	return i, nil
}

// IssueAccess signs an access token for userID valid for the access TTL.
func (i *JWTIssuer) IssueAccess(userID ulid.ULID) (AccessToken, error) {
	now := i.now()
	expiresAt := now.Add(i.accessTTL)

	claims := i.claims(userID, now)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
	if err != nil {
		return AccessToken{}, oops.Code("TOKEN_SIGN_FAILED").
			With("kind", "access").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return AccessToken{Token: signed, ExpiresAt: expiresAt}, nil
}

// IssueRefresh signs a refresh token for userID. It never expires on its
// own; it is honored only while its session exists.
func (i *JWTIssuer) IssueRefresh(userID ulid.ULID) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, i.claims(userID, i.now())).SignedString(i.refreshSecret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").
			With("kind", "refresh").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return signed, nil
}

// VerifyAccess verifies an access token's signature and expiry.
func (i *JWTIssuer) VerifyAccess(token string) (*Claims, error) {
	return i.verify(token, i.accessSecret, jwt.WithExpirationRequired())
}

// VerifyRefresh verifies a refresh token's signature.
func (i *JWTIssuer) VerifyRefresh(token string) (*Claims, error) {
	return i.verify(token, i.refreshSecret)
}

// claims carries a random jti so tokens issued in the same second differ.
func (i *JWTIssuer) claims(userID ulid.ULID, now time.Time) *Claims {
	c := NewClaims(userID)
	c.RegisteredClaims = jwt.RegisteredClaims{
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(now),
	}
	return c
}

func (i *JWTIssuer) verify(token string, secret []byte, extra ...jwt.ParserOption) (*Claims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	}, extra...)

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).Wrap(err)
	}

	userID, err := ulid.Parse(claims.UserID)
	if err != nil {
		return nil, oops.Code(CodeTokenInvalid).With("claim", "userId").Wrap(err)
	}
	claims.userID = userID
	return claims, nil
}
