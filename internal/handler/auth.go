package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/rs/xid"

	"github.com/icar/swc-backend/internal/auth"
	"github.com/icar/swc-backend/internal/service"
)

// AuthHandler exposes the authentication endpoints.
//
// ROUTES:
//   - POST /auth/register        → create a local account
//   - POST /auth/login           → check credentials, return {token}
//   - GET  /auth/google/login    → redirect the browser to Google
//   - GET  /auth/google/callback → complete the OAuth flow, redirect to
//     the frontend with the token in the URL
//   - GET  /api/me               → the authenticated user's record
//
// The Google routes exist only when a GoogleProvider was configured; the
// server skips registering them otherwise.
type AuthHandler struct {
	authService *service.AuthService
	google      *auth.GoogleProvider // nil when federated login is disabled
	frontendURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. google may be nil.
func NewAuthHandler(
	authService *service.AuthService,
	google *auth.GoogleProvider,
	frontendURL string,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		google:      google,
		frontendURL: frontendURL,
		logger:      logger,
	}
}

// credentialsRequest is the body of both /auth/register and /auth/login.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the login success body.
type tokenResponse struct {
	Token string `json:"token"`
}

// HandleRegister creates a local account.
//
// HTTP: POST /auth/register
// 200 with a plain confirmation, 400 when the username is taken or the
// input is unusable. No token — registering does not log the caller in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.authService.Register(r.Context(), req.Username, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "registered successfully"})
}

// HandleLogin checks credentials and returns a session token.
//
// HTTP: POST /auth/login
// 200 with {"token": "..."} — the frontend stores it and sends it back
// as a bearer header. 401 with ONE generic message for any credential
// failure.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: result.Token})
}

// HandleGoogleLogin redirects the user to Google's consent screen.
//
// HTTP: GET /auth/google/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie before the
// redirect; the callback verifies the query parameter against it. That
// proves the flow started here, not on an attacker's page.
func (h *AuthHandler) HandleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes — enough to click through the consent screen
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.google.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGoogleCallback completes the federated login.
//
// HTTP: GET /auth/google/callback?code=xxx&state=yyy
//
// FLOW: state check → code exchange → resolve-or-create the user by
// email → issue JWT → redirect to {frontend}/oauth-success?token=...
//
// TOKEN IN THE REDIRECT URL:
// The token travels as a query parameter, not a response body. This is
// the contract the frontend's /oauth-success page was built against.
// Query strings end up in browser history and possibly in logs, so this
// is weaker secrecy than a body — a known, accepted property of this
// interface; don't change it without changing the frontend.
//
// Failures after the provider asserted identity (user resolution, token
// issuance) are fatal for the request: one 500, no retry states.
func (h *AuthHandler) HandleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("google callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("google callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use
	http.SetCookie(w, &http.Cookie{
		Name:   "oauth_state",
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	// The user can deny the consent screen; send them back to the login page
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("google callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, h.frontendURL+"/login?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	gUser, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("google callback: exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.authService.LoginOrRegisterGoogle(r.Context(), gUser)
	if err != nil {
		h.logger.Error("google callback: resolving user failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	redirect := fmt.Sprintf("%s/oauth-success?token=%s",
		h.frontendURL, url.QueryEscape(result.Token))
	http.Redirect(w, r, redirect, http.StatusSeeOther)
}

// HandleMe returns the currently authenticated user's profile.
//
// HTTP: GET /api/me
// Auth: required — RequireAuth put the username in the context.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	username, ok := auth.UsernameFromContext(r.Context())
	if !ok {
		// Unreachable behind RequireAuth, but don't assume the wiring.
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	user, err := h.authService.GetUserByUsername(r.Context(), username)
	if err != nil {
		h.logger.Error("HandleMe: lookup failed", slog.String("username", username))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}
