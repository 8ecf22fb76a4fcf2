// Package service — authentication business logic.
//
// AuthService sits between the HTTP handlers and the repository/auth
// utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT) / PasswordService (bcrypt)
//
// KEY RESPONSIBILITIES:
//   - Register/Login for local username+password accounts
//   - Resolve-or-create for Google federated logins
//   - Keep every credential rule here, away from HTTP concerns
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/icar/swc-backend/internal/apperror"
	"github.com/icar/swc-backend/internal/auth"
	"github.com/icar/swc-backend/internal/metrics"
	"github.com/icar/swc-backend/internal/model"
	"github.com/icar/swc-backend/internal/repository"
)

// invalidCredentials is the ONE message every local login failure gets.
// Unknown user and wrong password are indistinguishable on purpose:
// separate messages would let an attacker enumerate which usernames
// exist. Don't "fix" this by making the errors more specific.
const invalidCredentials = "invalid username or password"

// AuthService handles the authentication business logic.
type AuthService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	recorder  metrics.Recorder
	logger    *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Wired in server.go alongside the rest of the dependency graph.
func NewAuthService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	recorder metrics.Recorder,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		recorder:  recorder,
		logger:    logger,
	}
}

// AuthResult bundles the resolved user and the issued JWT so the handler
// can respond (or redirect) in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// Register creates a local account.
//
// Registration does NOT log the user in — no token is issued. The caller
// logs in separately, which keeps the register response shape trivial and
// matches what the frontend expects.
//
// Duplicate handling is two-layered: the FindByUsername pre-check catches
// the common case with a clean error, and the UNIQUE constraint behind
// users.Create catches the race where two registrations interleave. Both
// surface as the same conflict error.
func (s *AuthService) Register(ctx context.Context, username, password string) error {
	if username == "" {
		return apperror.ValidationFailed("username", "username is required")
	}
	if password == "" {
		return apperror.ValidationFailed("password", "password is required")
	}

	_, err := s.users.FindByUsername(ctx, username)
	switch {
	case err == nil:
		return apperror.Conflict("user", username)
	case !errors.Is(err, apperror.ErrNotFound):
		return fmt.Errorf("service/auth: checking username %q: %w", username, err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		// bcrypt rejects >72-byte input; surface that as a validation
		// problem rather than a server fault.
		return apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		Username:     username,
		PasswordHash: hash,
		Provider:     model.ProviderLocal,
		Role:         model.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return fmt.Errorf("service/auth: creating user %q: %w", username, err)
	}

	s.recorder.RecordRegistration()
	s.logger.Info("user registered", slog.String("username", username))

	return nil
}

// Login checks local credentials and issues a session token.
//
// Every credential failure — unknown user, federated-only account, wrong
// password — returns the same generic unauthorized error. See
// invalidCredentials above for why.
func (s *AuthService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.recorder.RecordLogin(metrics.OutcomeFailure)
			return nil, apperror.Unauthorized(invalidCredentials)
		}
		return nil, fmt.Errorf("service/auth: looking up user %q: %w", username, err)
	}

	// A federated account has no password hash; Verify on an empty hash
	// always fails, so this path collapses into the generic error too.
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.recorder.RecordLogin(metrics.OutcomeFailure)
		return nil, apperror.Unauthorized(invalidCredentials)
	}

	token, err := s.tokens.Generate(user.Username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %q: %w", username, err)
	}

	s.recorder.RecordLogin(metrics.OutcomeSuccess)
	s.logger.Info("user logged in", slog.String("username", username))

	return &AuthResult{User: user, Token: token}, nil
}

// LoginOrRegisterGoogle completes a federated login after Google has
// asserted the user's identity.
//
// The email claim is the local username. First login creates the account
// lazily (provider=GOOGLE, no password); every later login resolves the
// same row — row count never grows for a repeat email.
//
// CONCURRENT FIRST LOGIN:
// Two simultaneous first logins can both see "not found" and both try to
// create. The UNIQUE(username) constraint lets exactly one INSERT win;
// the loser observes a conflict, re-reads the row the winner created, and
// proceeds. Both callers end up logged into the same single account.
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, gUser *auth.GoogleUser) (*AuthResult, error) {
	if gUser == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}

	identity := gUser.Identity()
	if identity == "" {
		return nil, fmt.Errorf("service/auth: Google user has no usable identity claim")
	}

	user, err := s.users.FindByUsername(ctx, identity)
	if errors.Is(err, apperror.ErrNotFound) {
		user = &model.User{
			Username: identity,
			Provider: model.ProviderGoogle,
			Role:     model.RoleUser,
			// PasswordHash deliberately empty — identity lives with Google
		}
		err = s.users.Create(ctx, user)
		if errors.Is(err, apperror.ErrConflict) {
			// Lost the creation race — somebody else's first login just
			// created this account. Use theirs.
			user, err = s.users.FindByUsername(ctx, identity)
		}
		if err == nil {
			s.logger.Info("federated user created",
				slog.String("username", identity),
				slog.String("provider", model.ProviderGoogle),
			)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("service/auth: resolving federated user %q: %w", identity, err)
	}

	token, err := s.tokens.Generate(user.Username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for %q: %w", identity, err)
	}

	s.recorder.RecordFederatedLogin()

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByUsername returns the account behind a validated token subject.
// Used by /api/me after the middleware extracts the username.
func (s *AuthService) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	if username == "" {
		return nil, fmt.Errorf("service/auth: username must not be empty")
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %q: %w", username, err)
	}

	return user, nil
}
