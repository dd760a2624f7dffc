package webauth

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"google.golang.org/api/idtoken"
)

// ==========================================================================
// Top level entry point for serving all auth flows under a single router.
// ==========================================================================

// Auth bundles the token machinery, stores and outbound hooks behind one
// http.Handler. Callers fill in the stores and any custom senders, call
// EnsureDefaults, and mount Handler() under a prefix of their choosing:
//
//	auth := (&webauth.Auth{
//		Config:   cfg,
//		Accounts: accountStore,
//		States:   stateStore,
//	}).EnsureDefaults()
//	http.Handle("/auth/", http.StripPrefix("/auth", auth.Handler()))
type Auth struct {
	Config   *Config
	Accounts AccountStore
	States   StateStore

	// Email delivers OTP and password reset mail. Defaults to console logging.
	Email EmailSender

	// Notify receives account lifecycle events. Defaults to log only.
	Notify Notifier

	// RequireVerifiedEmail gates local signup behind an emailed OTP.
	RequireVerifiedEmail bool

	// IDTokenValidator replaces Google ID token validation in tests. Nil
	// means validate against Google's published keys.
	IDTokenValidator func(ctx context.Context, raw, audience string) (*idtoken.Payload, error)

	Issuer   *TokenIssuer
	Cipher   *TokenCipher
	Sessions *RefreshSessions

	router *mux.Router
}

// EnsureDefaults validates config and fills in the derived components.
// Panics on an unusable encryption key since nothing can work without it.
func (a *Auth) EnsureDefaults() *Auth {
	if a.Config == nil {
		a.Config = (&Config{}).EnsureDefaults()
	}
	if a.Email == nil {
		a.Email = ConsoleEmailSender{}
	}
	if a.Notify == nil {
		a.Notify = LogNotifier{}
	}
	if a.Issuer == nil {
		a.Issuer = NewTokenIssuer(a.Config)
	}
	if a.Cipher == nil {
		cipher, err := NewTokenCipher(a.Config.EncryptionKey)
		if err != nil {
			panic("webauth: invalid encryption key: " + err.Error())
		}
		a.Cipher = cipher
	}
	if a.Sessions == nil {
		a.Sessions = NewRefreshSessions(a.Config, a.Issuer, a.Cipher, a.Accounts)
	}
	return a
}

// Handler returns the router serving every auth route. Routes are relative
// to wherever the caller mounts it.
func (a *Auth) Handler() http.Handler {
	if a.router == nil {
		a.router = a.buildRouter()
	}
	return a.router
}

func (a *Auth) buildRouter() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/refresh", a.handleRefresh).Methods(http.MethodPost)
	r.Handle("/logout", a.RequireAuth(http.HandlerFunc(a.handleLogout))).Methods(http.MethodPost)

	r.HandleFunc("/signup", a.handleSignup).Methods(http.MethodPost)
	r.HandleFunc("/signup/anonymous", a.handleAnonymousSignup).Methods(http.MethodPost)
	r.Handle("/signup/merge", a.RequireAuth(http.HandlerFunc(a.handleMerge))).Methods(http.MethodPost)
	r.HandleFunc("/email/verification", a.handleSendEmailVerification).Methods(http.MethodPost)

	r.HandleFunc("/google", a.handleGoogleRedirect).Methods(http.MethodGet)
	r.HandleFunc("/google/callback", a.handleGoogleCallback).Methods(http.MethodGet)
	r.HandleFunc("/google/mobile", a.handleGoogleMobile).Methods(http.MethodPost)

	r.HandleFunc("/password/forgot", a.handleForgotPassword).Methods(http.MethodPost)
	r.HandleFunc("/password/reset/{token}", a.handleResetPassword).Methods(http.MethodPost)
	r.Handle("/password", a.RequireAuth(http.HandlerFunc(a.handleUpdatePassword))).Methods(http.MethodPut)

	r.Handle("/me", a.RequireAuth(http.HandlerFunc(a.handleMe))).Methods(http.MethodGet)
	r.Handle("/me", a.RequireAuth(http.HandlerFunc(a.handleDeleteMe))).Methods(http.MethodDelete)

	return r
}
