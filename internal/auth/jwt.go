// Package auth provides JWT session tokens, bcrypt password hashing, and
// the Google OAuth code exchange for the SWC backend API.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Local accounts: POST /auth/register stores a bcrypt hash;
//     POST /auth/login verifies it and returns a JWT in the JSON body.
//  2. Google accounts: /auth/google/login → Google consent screen →
//     /auth/google/callback exchanges the code, resolves the user by
//     email, and redirects to the frontend with the JWT in the URL.
//  3. On later API calls, middleware reads the Authorization: Bearer
//     header, validates the JWT, and puts the username in the request
//     context.
//
// WHY JWT?
// The token is self-contained: the signed claims carry the username and
// the expiry, so validating a request needs no session table and no DB
// lookup — just the HMAC secret. The flip side is that there is no
// server-side revocation: a token stays valid until it expires, even if
// the account changes underneath it. With a 24-hour lifetime that is an
// accepted trade-off here.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// issuer identifies tokens minted by this service. Validation rejects
// tokens carrying any other issuer, so a JWT signed by some other app
// that happens to share a secret still won't pass.
const issuer = "swc-backend"

// TokenService issues and validates the signed session tokens.
//
// It holds the HMAC secret and the token lifetime. Both come from
// configuration — the secret is NEVER a constant in source, and the same
// secret must be used for signing and verifying.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService.
//
// The secret should be at least 32 bytes of random data in production
// (JWT_SECRET=$(openssl rand -hex 32)); anything under 16 characters is
// rejected outright. ttl is the validity window of issued tokens —
// 24 hours in the default configuration.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("auth: token TTL must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims is the JWT payload. jwt.RegisteredClaims covers everything we
// need: "sub" holds the username, plus "iat"/"exp"/"iss".
type claims struct {
	jwt.RegisteredClaims
}

// Generate creates and signs a session token whose subject is the given
// username. Claims: {sub: username, iat: now, exp: now + ttl}.
//
// Signing algorithm: HS256 (HMAC-SHA256) — symmetric, one shared secret
// for the single-server deployment this backend targets.
func (s *TokenService) Generate(username string) (string, error) {
	return s.GenerateWithDuration(username, s.ttl)
}

// GenerateWithDuration creates a token with a custom validity window.
// Used by tests to mint already-expired tokens; production code goes
// through Generate.
func (s *TokenService) GenerateWithDuration(username string, d time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("auth: token subject must not be empty")
	}

	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, nil
}

// Validate parses and verifies a token string and returns the username
// from the "sub" claim.
//
// A token is valid iff ALL of these hold:
//   - the HMAC-SHA256 signature matches our secret
//   - the current time is before "exp"
//   - the issuer claim is ours
//   - the algorithm is HS256 (jwt.WithValidMethods blocks the classic
//     "alg confusion" attack where an attacker downgrades to "none")
//
// Every failure mode — garbage input, tampered signature, expiry —
// comes back as an ordinary error, never a panic. Callers treat any
// error as "not authenticated"; the HTTP layer never distinguishes
// between the failure kinds.
func (s *TokenService) Validate(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("auth: token expired")
		}
		return "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("auth: invalid token claims")
	}

	if c.Subject == "" {
		return "", fmt.Errorf("auth: token has no subject")
	}

	return c.Subject, nil
}
