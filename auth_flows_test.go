package webauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	oa "github.com/panyam/webauth"
	"github.com/panyam/webauth/stores/mem"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// captureEmailSender records outbound mail for assertions.
type captureEmailSender struct {
	mu   sync.Mutex
	sent []capturedEmail
}

type capturedEmail struct {
	To      string
	Subject string
	Body    string
}

func (c *captureEmailSender) Send(ctx context.Context, to, subject, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, capturedEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (c *captureEmailSender) last(t *testing.T) capturedEmail {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return c.sent[len(c.sent)-1]
}

// setupTestAuth builds an Auth over in-memory stores with a capture sender.
func setupTestAuth(t *testing.T) (*oa.Auth, *captureEmailSender) {
	t.Helper()
	email := &captureEmailSender{}
	auth := (&oa.Auth{
		Config: (&oa.Config{
			Environment:        "development",
			AccessTokenSecret:  "test-access-secret",
			RefreshTokenSecret: "test-refresh-secret",
			EncryptionKey:      testEncryptionKey,
			BaseURL:            "http://localhost:8080",
		}).EnsureDefaults(),
		Accounts: mem.NewAccountStore(),
		States:   mem.NewStateStore(),
		Email:    email,
	}).EnsureDefaults()
	return auth, email
}

func postJSON(t *testing.T, handler http.Handler, path string, body map[string]any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, handler, http.MethodPost, path, body, "", cookies...)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body map[string]any, bearer string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
	return envelope
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	envelope := decodeEnvelope(t, w)
	data, _ := envelope["data"].(map[string]any)
	code, _ := data["error"].(string)
	return code
}

func tokensFrom(t *testing.T, w *httptest.ResponseRecorder) (access, refresh string) {
	t.Helper()
	envelope := decodeEnvelope(t, w)
	data, _ := envelope["data"].(map[string]any)
	tokens, _ := data["tokens"].(map[string]any)
	access, _ = tokens["access_token"].(string)
	refresh, _ = tokens["refresh_token"].(string)
	if access == "" || refresh == "" {
		t.Fatalf("response carries no token pair: %s", w.Body.String())
	}
	return access, refresh
}

func signupUser(t *testing.T, handler http.Handler, email, password string) (access, refresh string) {
	t.Helper()
	w := postJSON(t, handler, "/signup", map[string]any{"email": email, "password": password})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup returned %d: %s", w.Code, w.Body.String())
	}
	return tokensFrom(t, w)
}

func TestSignupAndLogin(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	signupUser(t, handler, "alice@example.com", "password123")

	tests := []struct {
		name           string
		body           map[string]any
		expectedStatus int
		expectedCode   string
		expectedMsg    string
	}{
		{
			name:           "successful login",
			body:           map[string]any{"email": "alice@example.com", "password": "password123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "email is normalized",
			body:           map[string]any{"email": "  ALICE@Example.COM ", "password": "password123"},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unknown email",
			body:           map[string]any{"email": "nobody@example.com", "password": "password123"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "invalid_credentials",
			expectedMsg:    "Invalid email or password",
		},
		{
			name:           "wrong password",
			body:           map[string]any{"email": "alice@example.com", "password": "wrongpassword"},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   "invalid_credentials",
			expectedMsg:    "Invalid password",
		},
		{
			name:           "missing fields",
			body:           map[string]any{"email": "alice@example.com"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "invalid_input",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, handler, "/login", tc.body)
			if w.Code != tc.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tc.expectedStatus, w.Code, w.Body.String())
			}
			if tc.expectedCode != "" && errorCode(t, w) != tc.expectedCode {
				t.Errorf("expected error code %q, got %q", tc.expectedCode, errorCode(t, w))
			}
			if tc.expectedMsg != "" {
				envelope := decodeEnvelope(t, w)
				if msg, _ := envelope["message"].(string); msg != tc.expectedMsg {
					t.Errorf("expected message %q, got %q", tc.expectedMsg, msg)
				}
			}
		})
	}
}

func TestDuplicateSignup(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	signupUser(t, handler, "bob@example.com", "password123")
	w := postJSON(t, handler, "/signup", map[string]any{"email": "bob@example.com", "password": "password456"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if errorCode(t, w) != "duplicate_email" {
		t.Errorf("expected duplicate_email, got %q", errorCode(t, w))
	}
}

func TestRefreshRotation(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	_, refresh := signupUser(t, handler, "carol@example.com", "password123")

	// First rotation succeeds and returns a new pair.
	w := postJSON(t, handler, "/refresh", map[string]any{"refresh_token": refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", w.Code, w.Body.String())
	}
	_, newRefresh := tokensFrom(t, w)
	if newRefresh == refresh {
		t.Fatal("rotation returned the same refresh token")
	}

	// Replaying the consumed token fails: its record is gone.
	w = postJSON(t, handler, "/refresh", map[string]any{"refresh_token": refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 on replay, got %d: %s", w.Code, w.Body.String())
	}

	// The token from the rotation still works.
	w = postJSON(t, handler, "/refresh", map[string]any{"refresh_token": newRefresh})
	if w.Code != http.StatusOK {
		t.Fatalf("second rotation returned %d: %s", w.Code, w.Body.String())
	}
}

func TestRefreshFromCookie(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	_, refresh := signupUser(t, handler, "dave@example.com", "password123")

	w := postJSON(t, handler, "/refresh", nil, &http.Cookie{Name: "refresh_token", Value: refresh})
	if w.Code != http.StatusOK {
		t.Fatalf("cookie refresh returned %d: %s", w.Code, w.Body.String())
	}
}

// A validly signed refresh token for an account that no longer exists gets
// the same 401 as any bad token; the response must not reveal whether the
// account is there.
func TestRefreshForMissingAccount(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	ghost, err := auth.Issuer.IssueRefreshToken("no-such-id", "ghost@example.com")
	if err != nil {
		t.Fatal(err)
	}
	w := postJSON(t, handler, "/refresh", map[string]any{"refresh_token": ghost})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if code := errorCode(t, w); code == "user_not_found" {
		t.Errorf("response leaks account existence: %q", code)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	access, refresh := signupUser(t, handler, "erin@example.com", "password123")

	w := doJSON(t, handler, http.MethodPost, "/logout", map[string]any{"refresh_token": refresh}, access)
	if w.Code != http.StatusOK {
		t.Fatalf("logout returned %d: %s", w.Code, w.Body.String())
	}

	// The revoked session cannot rotate.
	w = postJSON(t, handler, "/refresh", map[string]any{"refresh_token": refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after logout, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAnonymousSignupAndMerge(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	w := postJSON(t, handler, "/signup/anonymous", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("anonymous signup returned %d: %s", w.Code, w.Body.String())
	}
	envelope := decodeEnvelope(t, w)
	data := envelope["data"].(map[string]any)
	user := data["user"].(map[string]any)
	if anonymous, _ := user["is_anonymous"].(bool); !anonymous {
		t.Fatal("account is not marked anonymous")
	}
	email, _ := user["email"].(string)
	if !strings.HasPrefix(email, "anon_") || !strings.HasSuffix(email, "@anonymous.local") {
		t.Fatalf("unexpected synthetic email %q", email)
	}
	access, _ := tokensFrom(t, w)

	// Merge into a real account.
	w = doJSON(t, handler, http.MethodPost, "/signup/merge",
		map[string]any{"email": "frank@example.com", "password": "password123", "name": "Frank"}, access)
	if w.Code != http.StatusOK {
		t.Fatalf("merge returned %d: %s", w.Code, w.Body.String())
	}
	mergedAccess, _ := tokensFrom(t, w)

	// Second merge on the now-real account is refused.
	w = doJSON(t, handler, http.MethodPost, "/signup/merge",
		map[string]any{"email": "other@example.com", "password": "password123"}, mergedAccess)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second merge, got %d: %s", w.Code, w.Body.String())
	}

	// The merged account logs in with its real credentials.
	w = postJSON(t, handler, "/login", map[string]any{"email": "frank@example.com", "password": "password123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login after merge returned %d: %s", w.Code, w.Body.String())
	}
}

func TestMergeRejectsTakenEmail(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	signupUser(t, handler, "taken@example.com", "password123")
	w := postJSON(t, handler, "/signup/anonymous", nil)
	access, _ := tokensFrom(t, w)

	w = doJSON(t, handler, http.MethodPost, "/signup/merge",
		map[string]any{"email": "taken@example.com", "password": "password123"}, access)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
}

var otpPattern = regexp.MustCompile(`\b(\d{6})\b`)

func TestSignupWithEmailVerification(t *testing.T) {
	auth, email := setupTestAuth(t)
	auth.RequireVerifiedEmail = true
	handler := auth.Handler()

	w := postJSON(t, handler, "/email/verification", map[string]any{"email": "grace@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("verification request returned %d: %s", w.Code, w.Body.String())
	}
	match := otpPattern.FindStringSubmatch(email.last(t).Body)
	if match == nil {
		t.Fatalf("no OTP code in email body %q", email.last(t).Body)
	}
	code := match[1]

	// Signup without the code is refused.
	w = postJSON(t, handler, "/signup", map[string]any{"email": "grace@example.com", "password": "password123"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without code, got %d: %s", w.Code, w.Body.String())
	}

	// Wrong code is refused.
	w = postJSON(t, handler, "/signup",
		map[string]any{"email": "grace@example.com", "password": "password123", "otp": "000000"})
	if w.Code == http.StatusCreated {
		t.Fatal("signup succeeded with a wrong code")
	}

	// Right code works.
	w = postJSON(t, handler, "/signup",
		map[string]any{"email": "grace@example.com", "password": "password123", "otp": code})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup with code returned %d: %s", w.Code, w.Body.String())
	}

	// The code was consumed; it cannot create another account.
	w = postJSON(t, handler, "/signup",
		map[string]any{"email": "grace2@example.com", "password": "password123", "otp": code})
	if w.Code == http.StatusCreated {
		t.Fatal("a consumed code verified a second signup")
	}
}

func TestResendInvalidatesPriorOTP(t *testing.T) {
	auth, email := setupTestAuth(t)
	auth.RequireVerifiedEmail = true
	handler := auth.Handler()

	postJSON(t, handler, "/email/verification", map[string]any{"email": "heidi@example.com"})
	first := otpPattern.FindStringSubmatch(email.last(t).Body)[1]
	postJSON(t, handler, "/email/verification", map[string]any{"email": "heidi@example.com"})
	second := otpPattern.FindStringSubmatch(email.last(t).Body)[1]

	if first != second {
		w := postJSON(t, handler, "/signup",
			map[string]any{"email": "heidi@example.com", "password": "password123", "otp": first})
		if w.Code == http.StatusCreated {
			t.Fatal("a superseded code still verified")
		}
	}
	w := postJSON(t, handler, "/signup",
		map[string]any{"email": "heidi@example.com", "password": "password123", "otp": second})
	if w.Code != http.StatusCreated {
		t.Fatalf("latest code was refused: %d %s", w.Code, w.Body.String())
	}
}

func TestPasswordResetFlow(t *testing.T) {
	auth, email := setupTestAuth(t)
	handler := auth.Handler()

	_, refresh := signupUser(t, handler, "ivan@example.com", "oldpassword1")

	// Unknown email gets a 404, not a silent success.
	w := postJSON(t, handler, "/password/forgot", map[string]any{"email": "nobody@example.com"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown email, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, handler, "/password/forgot", map[string]any{"email": "ivan@example.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("forgot returned %d: %s", w.Code, w.Body.String())
	}
	body := email.last(t).Body
	idx := strings.LastIndex(body, "/password/reset/")
	if idx < 0 {
		t.Fatalf("no reset link in email body %q", body)
	}
	token := strings.Fields(body[idx+len("/password/reset/"):])[0]

	// Bad token is refused.
	w = postJSON(t, handler, "/password/reset/deadbeef", map[string]any{"password": "newpassword1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad token, got %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, handler, "/password/reset/"+token, map[string]any{"password": "newpassword1"})
	if w.Code != http.StatusOK {
		t.Fatalf("reset returned %d: %s", w.Code, w.Body.String())
	}

	// The token is single use.
	w = postJSON(t, handler, "/password/reset/"+token, map[string]any{"password": "anotherpass1"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 reusing token, got %d: %s", w.Code, w.Body.String())
	}

	// Old password dead, new password works, old sessions revoked.
	w = postJSON(t, handler, "/login", map[string]any{"email": "ivan@example.com", "password": "oldpassword1"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("old password still works: %d", w.Code)
	}
	w = postJSON(t, handler, "/login", map[string]any{"email": "ivan@example.com", "password": "newpassword1"})
	if w.Code != http.StatusOK {
		t.Fatalf("new password refused: %d %s", w.Code, w.Body.String())
	}
	w = postJSON(t, handler, "/refresh", map[string]any{"refresh_token": refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("pre-reset session survived: %d", w.Code)
	}
}

func TestUpdatePassword(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	access, _ := signupUser(t, handler, "judy@example.com", "oldpassword1")

	w := doJSON(t, handler, http.MethodPut, "/password",
		map[string]any{"current_password": "wrongpass", "new_password": "newpassword1"}, access)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong current password, got %d", w.Code)
	}

	w = doJSON(t, handler, http.MethodPut, "/password",
		map[string]any{"current_password": "oldpassword1", "new_password": "newpassword1"}, access)
	if w.Code != http.StatusOK {
		t.Fatalf("update returned %d: %s", w.Code, w.Body.String())
	}

	w = postJSON(t, handler, "/login", map[string]any{"email": "judy@example.com", "password": "newpassword1"})
	if w.Code != http.StatusOK {
		t.Fatalf("login with new password returned %d: %s", w.Code, w.Body.String())
	}
}

func TestMeEndpoints(t *testing.T) {
	auth, _ := setupTestAuth(t)
	handler := auth.Handler()

	access, refresh := signupUser(t, handler, "ken@example.com", "password123")

	w := doJSON(t, handler, http.MethodGet, "/me", nil, access)
	if w.Code != http.StatusOK {
		t.Fatalf("me returned %d: %s", w.Code, w.Body.String())
	}
	envelope := decodeEnvelope(t, w)
	user := envelope["data"].(map[string]any)["user"].(map[string]any)
	if email, _ := user["email"].(string); email != "ken@example.com" {
		t.Errorf("expected ken@example.com, got %q", email)
	}
	if _, leaked := user["password"]; leaked {
		t.Error("password hash leaked in profile response")
	}

	w = doJSON(t, handler, http.MethodDelete, "/me", nil, access)
	if w.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", w.Code, w.Body.String())
	}

	// Deletion revoked every session.
	w = postJSON(t, handler, "/refresh", map[string]any{"refresh_token": refresh})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("session survived account deletion: %d", w.Code)
	}
}
