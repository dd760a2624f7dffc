package webauth

import (
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// normalizeEmail canonicalizes an address before every lookup or insert so
// the unique email index sees one spelling per mailbox.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleLogin verifies credentials and starts a new session. The unknown
// email and wrong password messages differ on purpose; clients show the
// wrong password one inline next to the field.
func (a *Auth) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" || req.Password == "" {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Email and password are required", ""))
		return
	}

	account, err := a.Accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeInvalidCreds, "Invalid email or password", "email"))
		return
	}
	if account.PasswordHash == "" {
		// Social-only account: no password to check against.
		writeAuthError(w, NewAuthError(ErrCodeInvalidCreds, "Invalid email or password", "email"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		writeAuthError(w, NewAuthError(ErrCodeInvalidCreds, "Invalid password", "password"))
		return
	}

	pair, err := a.Sessions.Issue(r.Context(), account)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, "Logged in", map[string]any{
		"user":   account,
		"tokens": pair,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRefresh rotates a refresh token for a new pair. The token comes
// from the body or the refresh_token cookie. Any failure clears cookies:
// the client's stored session is dead either way.
func (a *Auth) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented := refreshTokenFromRequest(r)
	if presented == "" {
		a.clearTokenCookies(w)
		writeError(w, http.StatusUnauthorized, ErrCodeTokenNotFound, "Refresh token not found")
		return
	}

	account, pair, err := a.Sessions.Rotate(r.Context(), presented)
	if err != nil {
		a.clearTokenCookies(w)
		writeAuthError(w, err)
		return
	}

	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, "Token refreshed", map[string]any{
		"user":   account,
		"tokens": pair,
	})
}

// handleLogout revokes the presented refresh session and clears cookies.
// Revoking an already-gone session still succeeds.
func (a *Auth) handleLogout(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if presented := refreshTokenFromRequest(r); presented != "" {
		if err := a.Sessions.Revoke(r.Context(), account, presented); err != nil {
			writeAuthError(w, err)
			return
		}
	}
	a.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, "Logged out", nil)
}

func refreshTokenFromRequest(r *http.Request) string {
	var req refreshRequest
	if r.Body != nil {
		// Body decode failures fall through to the cookie.
		_ = decodeJSON(r, &req)
	}
	if req.RefreshToken != "" {
		return req.RefreshToken
	}
	if cookie, err := r.Cookie(CookieRefreshToken); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}
