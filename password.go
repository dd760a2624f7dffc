package webauth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword mails a reset link for a known email. Unknown emails
// get a plain 404; this module does not pretend the mail was sent.
func (a *Auth) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Email is required", "email"))
		return
	}

	account, err := a.Accounts.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	token, err := GenerateSecureToken(20)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	expires := time.Now().Add(a.Config.ResetTokenTTL)
	if _, err := a.Accounts.UpdateByID(r.Context(), account.ID, &AccountUpdate{
		ResetPasswordToken:   &token,
		ResetPasswordExpires: &expires,
	}); err != nil {
		writeAuthError(w, err)
		return
	}
	if err := a.sendPasswordResetEmail(r.Context(), account.Email, token); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Password reset email sent", nil)
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

// handleResetPassword sets a new password from an emailed token. The token
// clears on success and every refresh session is revoked, so a password
// reset forces all devices to sign in again.
func (a *Auth) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput,
			fmt.Sprintf("Password must be at least %d characters", minPasswordLength), "password"))
		return
	}

	account, err := a.Accounts.GetByResetToken(r.Context(), token)
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeInvalidState, "Reset token is invalid or expired", "token"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	passwordHash := string(hash)
	clearToken := ""
	clearExpires := time.Time{}
	if _, err := a.Accounts.UpdateByID(r.Context(), account.ID, &AccountUpdate{
		PasswordHash:         &passwordHash,
		ResetPasswordToken:   &clearToken,
		ResetPasswordExpires: &clearExpires,
	}); err != nil {
		writeAuthError(w, err)
		return
	}
	if err := a.Sessions.RevokeAll(r.Context(), account.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Password updated", nil)
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleUpdatePassword changes the authenticated account's password. The
// current password must check out, except for social-only accounts that
// never had one and are setting their first.
func (a *Auth) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	var req updatePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput,
			fmt.Sprintf("Password must be at least %d characters", minPasswordLength), "new_password"))
		return
	}
	if account.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			writeAuthError(w, NewAuthError(ErrCodeInvalidCreds, "Invalid password", "current_password"))
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	passwordHash := string(hash)
	if _, err := a.Accounts.UpdateByID(r.Context(), account.ID, &AccountUpdate{
		PasswordHash: &passwordHash,
	}); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Password updated", nil)
}
