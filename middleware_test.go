package webauth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	oa "github.com/panyam/webauth"
)

// gateProbe returns the gated handler plus a pointer to the account the
// inner handler observed.
func gateProbe(auth *oa.Auth) (http.Handler, **oa.Account) {
	var seen *oa.Account
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = oa.AccountFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	return auth.RequireAuth(inner), &seen
}

func TestRequireAuth(t *testing.T) {
	auth, _ := setupTestAuth(t)
	access, _ := signupUser(t, auth.Handler(), "gate@example.com", "password123")

	expiredCfg := testConfig()
	expiredCfg.AccessTokenTTL = -time.Minute
	// Claims carry a real account id so only the expiry fails.
	gated, seen := gateProbe(auth)
	account := func() *oa.Account {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		gated.ServeHTTP(httptest.NewRecorder(), req)
		return *seen
	}()
	if account == nil {
		t.Fatal("valid token did not authenticate")
	}
	expired, _ := oa.NewTokenIssuer(expiredCfg).IssueAccessToken(account.ID, account.Email)
	unknownUser, _ := auth.Issuer.IssueAccessToken("no-such-id", "ghost@example.com")

	// Correctly signed but minted without a subject claim.
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"x-email": "ghost@example.com",
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte("test-access-secret"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name           string
		method         string
		header         string
		cookie         string
		expectedStatus int
		expectedCode   string
		cookiesCleared bool
	}{
		{
			name:           "no token",
			method:         http.MethodGet,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "token_not_found",
			cookiesCleared: true,
		},
		{
			name:           "valid bearer header",
			method:         http.MethodGet,
			header:         access,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "valid cookie",
			method:         http.MethodGet,
			cookie:         access,
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "expired token keeps cookies",
			method:         http.MethodGet,
			header:         expired,
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "token_expired",
			cookiesCleared: false,
		},
		{
			name:           "malformed token",
			method:         http.MethodGet,
			header:         "not-a-jwt",
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "token_malformed",
			cookiesCleared: true,
		},
		{
			name:           "token without subject claim",
			method:         http.MethodGet,
			header:         noSubject,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "user_not_found",
			cookiesCleared: true,
		},
		{
			name:           "token for deleted user",
			method:         http.MethodGet,
			header:         unknownUser,
			expectedStatus: http.StatusNotFound,
			expectedCode:   "user_not_found",
			cookiesCleared: true,
		},
		{
			name:           "preflight passes through",
			method:         http.MethodOptions,
			expectedStatus: http.StatusNoContent,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", "Bearer "+tc.header)
			}
			if tc.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tc.cookie})
			}
			w := httptest.NewRecorder()
			gated.ServeHTTP(w, req)

			if w.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.expectedStatus, w.Code, w.Body.String())
			}
			if tc.expectedCode != "" && errorCode(t, w) != tc.expectedCode {
				t.Errorf("expected code %q, got %q", tc.expectedCode, errorCode(t, w))
			}
			cleared := false
			for _, cookie := range w.Result().Cookies() {
				if cookie.Name == "access_token" && cookie.MaxAge < 0 {
					cleared = true
				}
			}
			if cleared != tc.cookiesCleared {
				t.Errorf("cookiesCleared = %v, expected %v", cleared, tc.cookiesCleared)
			}
		})
	}
}

// The Authorization header wins over the cookie when both are present.
func TestBearerHeaderPrecedence(t *testing.T) {
	auth, _ := setupTestAuth(t)
	access, _ := signupUser(t, auth.Handler(), "prec@example.com", "password123")

	gated, _ := gateProbe(auth)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage-token")
	req.AddCookie(&http.Cookie{Name: "access_token", Value: access})
	w := httptest.NewRecorder()
	gated.ServeHTTP(w, req)

	// The garbage header must not fall back to the valid cookie.
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLastAccessThrottling(t *testing.T) {
	auth, _ := setupTestAuth(t)
	access, _ := signupUser(t, auth.Handler(), "touch@example.com", "password123")
	gated, seen := gateProbe(auth)

	request := func() *oa.Account {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+access)
		gated.ServeHTTP(httptest.NewRecorder(), req)
		return *seen
	}

	first := request()
	if first.LastAccess.IsZero() {
		t.Fatal("first request did not set last access")
	}
	second := request()
	if !second.LastAccess.Equal(first.LastAccess) {
		t.Error("back-to-back request touched last access inside the window")
	}
}
