package webauth

import (
	"net/http"
	"time"
)

// Cookie names for the token pair.
const (
	CookieAccessToken  = "access_token"
	CookieRefreshToken = "refresh_token"
)

// setTokenCookies writes both tokens as cookies alongside the JSON body.
// Production cookies are locked down for cross-site frontends; development
// relaxes them so plain http localhost setups work.
func (a *Auth) setTokenCookies(w http.ResponseWriter, pair *TokenPair) {
	a.setCookie(w, CookieAccessToken, pair.AccessToken, a.Config.AccessTokenTTL)
	a.setCookie(w, CookieRefreshToken, pair.RefreshToken, a.Config.RefreshTokenTTL)
}

func (a *Auth) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
	}
	if a.Config.IsProduction() {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	} else {
		cookie.SameSite = http.SameSiteLaxMode
	}
	http.SetCookie(w, cookie)
}

// clearTokenCookies expires both token cookies. Attributes must match the
// ones used when setting or browsers keep the old cookie around.
func (a *Auth) clearTokenCookies(w http.ResponseWriter) {
	for _, name := range []string{CookieAccessToken, CookieRefreshToken} {
		cookie := &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			MaxAge:   -1,
			HttpOnly: true,
		}
		if a.Config.IsProduction() {
			cookie.Secure = true
			cookie.SameSite = http.SameSiteNoneMode
		} else {
			cookie.SameSite = http.SameSiteLaxMode
		}
		http.SetCookie(w, cookie)
	}
}
