package webauth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const accountContextKey = contextKey("webauth.account")

// lastAccessWindow throttles how often an authenticated request writes the
// account's last access timestamp.
const lastAccessWindow = 15 * time.Minute

// AccountFromContext returns the authenticated account placed by
// RequireAuth, or nil for unauthenticated requests.
func AccountFromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey).(*Account)
	return account
}

// ContextWithAccount returns a context carrying the account, for tests and
// non-HTTP callers.
func ContextWithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey, account)
}

// RequireAuth gates a handler behind a valid access token. The token is
// read from the Authorization header first, the access_token cookie second.
// Each failure gets its own client code so frontends can tell a refreshable
// expiry apart from a broken token. Cookies are cleared on every failure
// except expiry, since an expired access token usually pairs with a still
// valid refresh token the client is about to use.
func (a *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			a.clearTokenCookies(w)
			writeError(w, http.StatusUnauthorized, ErrCodeTokenNotFound, "Authentication token not found")
			return
		}

		claims, err := a.Issuer.VerifyAccessToken(token)
		if err != nil {
			switch {
			case errors.Is(err, ErrTokenExpired):
				writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "Token expired")
			case errors.Is(err, ErrTokenMalformed):
				a.clearTokenCookies(w)
				writeError(w, http.StatusUnauthorized, ErrCodeTokenMalformed, "Token malformed")
			default:
				a.clearTokenCookies(w)
				writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "Token invalid")
			}
			return
		}

		if claims.SubjectID == "" {
			a.clearTokenCookies(w)
			writeError(w, http.StatusNotFound, ErrCodeUserNotFound, "User not found")
			return
		}
		account, err := a.Accounts.GetByID(r.Context(), claims.SubjectID)
		if err != nil {
			a.clearTokenCookies(w)
			writeError(w, http.StatusNotFound, ErrCodeUserNotFound, "User not found")
			return
		}

		a.touchLastAccess(r.Context(), account)

		ctx := ContextWithAccount(r.Context(), account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken extracts the access token: Authorization header wins, cookie
// is the fallback.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(CookieAccessToken); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return ""
}

// touchLastAccess writes the last access timestamp at most once per window.
// Failures only log; a stats write never breaks an authenticated request.
func (a *Auth) touchLastAccess(ctx context.Context, account *Account) {
	now := time.Now()
	if now.Sub(account.LastAccess) < lastAccessWindow {
		return
	}
	if err := a.Accounts.TouchLastAccess(ctx, account.ID, now); err != nil {
		slog.Warn("updating last access failed", "account", account.ID, "err", err)
		return
	}
	account.LastAccess = now
}
