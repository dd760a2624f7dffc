package webauth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// anonymousEmailDomain hosts the synthetic addresses given to anonymous
// accounts so the unique email index holds for them too.
const anonymousEmailDomain = "anonymous.local"

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	OTP      string `json:"otp"`
}

// handleSignup creates a local credentials account. When email verification
// is on, the request must carry the OTP previously mailed via the
// verification endpoint.
func (a *Auth) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Email is required", "email"))
		return
	}
	if len(req.Password) < minPasswordLength {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput,
			fmt.Sprintf("Password must be at least %d characters", minPasswordLength), "password"))
		return
	}

	if a.RequireVerifiedEmail {
		if req.OTP == "" {
			writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Verification code is required", "otp"))
			return
		}
		if err := a.States.ConsumeOTP(r.Context(), req.Email, req.OTP, OTPPurposeEmailVerification); err != nil {
			writeAuthError(w, NewAuthError(ErrCodeInvalidState, "Verification code is invalid or expired", "otp"))
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	account, err := a.Accounts.Create(r.Context(), &Account{
		Email:        req.Email,
		PasswordHash: string(hash),
		Name:         req.Name,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.Notify.AccountCreated(r.Context(), account)

	pair, err := a.Sessions.Issue(r.Context(), account)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusCreated, "Account created", map[string]any{
		"user":   account,
		"tokens": pair,
	})
}

type sendVerificationRequest struct {
	Email string `json:"email"`
}

// handleSendEmailVerification mails a fresh OTP for signup. Re-requesting
// invalidates any code still pending for the address, so only the latest
// mail verifies.
func (a *Auth) handleSendEmailVerification(w http.ResponseWriter, r *http.Request) {
	var req sendVerificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Email is required", "email"))
		return
	}
	if _, err := a.Accounts.GetByEmail(r.Context(), req.Email); err == nil {
		writeAuthError(w, NewAuthError(ErrCodeDuplicateEmail, "Email already in use", "email"))
		return
	} else if !errors.Is(err, ErrAccountNotFound) {
		writeAuthError(w, err)
		return
	}

	if err := a.States.DeleteUnusedOTPs(r.Context(), req.Email, OTPPurposeEmailVerification); err != nil {
		writeAuthError(w, err)
		return
	}
	code, err := generateOTPCode()
	if err != nil {
		writeAuthError(w, err)
		return
	}
	now := time.Now()
	otp := &OTP{
		Email:     req.Email,
		Code:      code,
		Purpose:   OTPPurposeEmailVerification,
		ExpiresAt: now.Add(a.Config.OneTimeStateTTL),
		CreatedAt: now,
	}
	if err := a.States.CreateOTP(r.Context(), otp); err != nil {
		writeAuthError(w, err)
		return
	}
	if err := a.sendOTPEmail(r.Context(), req.Email, code); err != nil {
		writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "Verification code sent", nil)
}

// handleAnonymousSignup creates a throwaway account with a synthetic email
// and a random password nobody knows. The session tokens are the only way
// in, which is the point: instant accounts for try-before-signup flows.
func (a *Auth) handleAnonymousSignup(w http.ResponseWriter, r *http.Request) {
	suffix, err := GenerateSecureToken(8)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	password, err := GenerateSecureToken(16)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	account, err := a.Accounts.Create(r.Context(), &Account{
		Email:        fmt.Sprintf("anon_%s@%s", suffix, anonymousEmailDomain),
		PasswordHash: string(hash),
		IsAnonymous:  true,
	})
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.Notify.AccountCreated(r.Context(), account)

	pair, err := a.Sessions.Issue(r.Context(), account)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusCreated, "Anonymous account created", map[string]any{
		"user":   account,
		"tokens": pair,
	})
}

type mergeRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	OTP      string `json:"otp"`
}

// handleMerge upgrades the authenticated anonymous account into a real one,
// keeping its id and everything attached to it. One shot: once the account
// stops being anonymous the endpoint refuses it.
func (a *Auth) handleMerge(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if !account.IsAnonymous {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Account is not anonymous", ""))
		return
	}

	var req mergeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	req.Email = normalizeEmail(req.Email)
	if req.Email == "" {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Email is required", "email"))
		return
	}
	if len(req.Password) < minPasswordLength {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput,
			fmt.Sprintf("Password must be at least %d characters", minPasswordLength), "password"))
		return
	}
	if _, err := a.Accounts.GetByEmail(r.Context(), req.Email); err == nil {
		writeAuthError(w, NewAuthError(ErrCodeDuplicateEmail, "Email already in use", "email"))
		return
	} else if !errors.Is(err, ErrAccountNotFound) {
		writeAuthError(w, err)
		return
	}

	if a.RequireVerifiedEmail {
		if req.OTP == "" {
			writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "Verification code is required", "otp"))
			return
		}
		if err := a.States.ConsumeOTP(r.Context(), req.Email, req.OTP, OTPPurposeEmailVerification); err != nil {
			writeAuthError(w, NewAuthError(ErrCodeInvalidState, "Verification code is invalid or expired", "otp"))
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeAuthError(w, err)
		return
	}

	before := *account
	passwordHash := string(hash)
	anonymous := false
	update := &AccountUpdate{
		Email:        &req.Email,
		PasswordHash: &passwordHash,
		IsAnonymous:  &anonymous,
	}
	if req.Name != "" {
		update.Name = &req.Name
	}
	merged, err := a.Accounts.UpdateByID(r.Context(), account.ID, update)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.Notify.AccountsMerged(r.Context(), &before, merged)

	// The old tokens carry the synthetic email claim; start clean.
	if err := a.Sessions.RevokeAll(r.Context(), merged.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	merged.RefreshTokens = nil
	pair, err := a.Sessions.Issue(r.Context(), merged)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	a.setTokenCookies(w, pair)
	writeJSON(w, http.StatusOK, "Account merged", map[string]any{
		"user":   merged,
		"tokens": pair,
	})
}

// generateOTPCode returns a random 6 digit code, zero padded.
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
