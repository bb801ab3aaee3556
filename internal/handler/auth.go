package handler

import (
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/recipe-finder/internal/auth"
	"github.com/sakif/recipe-finder/internal/service"
)

const stateCookie = "oauth_state"

// AuthHandler runs the GitHub OAuth login flow and the session cookie.
//
//   - HandleGitHubLogin    → redirect the browser to GitHub
//   - HandleGitHubCallback → exchange the code, issue the JWT cookie
//   - HandleLogout         → clear the JWT cookie
//   - HandleMe             → report who is signed in
type AuthHandler struct {
	github      *auth.GitHubProvider
	auth        *service.AuthService
	ttlSeconds  int
	redirectURL string
	logger      *slog.Logger
}

// NewAuthHandler creates an AuthHandler. After a successful login the browser
// is sent to redirectURL, normally the frontend's origin.
func NewAuthHandler(
	github *auth.GitHubProvider,
	authService *service.AuthService,
	tokens *auth.TokenService,
	redirectURL string,
	logger *slog.Logger,
) *AuthHandler {
	if redirectURL == "" {
		redirectURL = "/"
	}
	return &AuthHandler{
		github:      github,
		auth:        authService,
		ttlSeconds:  int(tokens.TTL().Seconds()),
		redirectURL: redirectURL,
		logger:      logger,
	}
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// The random state goes into a short-lived HttpOnly cookie and the callback
// only proceeds if GitHub hands the same value back (CSRF protection).
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != cookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// single use
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, h.redirectURL+"?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	result, err := h.auth.LoginGitHub(r.Context(), ghUser)
	if err != nil {
		h.logger.Error("auth callback: login failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// Secure should be set when served over HTTPS.
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    result.Token,
		Path:     "/",
		MaxAge:   h.ttlSeconds,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.redirectURL, http.StatusSeeOther)
}

// HandleLogout clears the JWT cookie.
//
// HTTP: POST /auth/logout
//
// Tokens are stateless, so the token itself stays valid until it expires;
// the browser just stops sending it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, Envelope{Success: true, Message: "logged out"})
}

// MeResponse is the body of GET /api/me.
type MeResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
}

// HandleMe tells the frontend which user ID to use for recipe calls.
//
// HTTP: GET /api/me (behind RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Envelope{
			Success: false,
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return
	}
	writeJSON(w, http.StatusOK, MeResponse{Success: true, UserID: userID})
}
