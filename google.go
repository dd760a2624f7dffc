package webauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/idtoken"
)

// ==========================================================================
// Google OAuth: browser redirect flow and mobile ID token flow.
// ==========================================================================

// googleOAuthConfig builds the x/oauth2 config for the redirect flow.
func (a *Auth) googleOAuthConfig() *oauth2.Config {
	endpoint := a.Config.Google.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	return &oauth2.Config{
		ClientID:     a.Config.Google.ClientID,
		ClientSecret: a.Config.Google.ClientSecret,
		RedirectURL:  a.Config.Google.RedirectURL,
		Scopes:       []string{"email", "profile"},
		Endpoint:     endpoint,
	}
}

// googleProfile is the subset of the userinfo document we care about.
type googleProfile struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
}

// handleGoogleRedirect starts the browser flow: record a one-time state and
// send the user to Google's consent page.
func (a *Auth) handleGoogleRedirect(w http.ResponseWriter, r *http.Request) {
	value, err := GenerateSecureToken(16)
	if err != nil {
		writeAuthError(w, err)
		return
	}
	intent := r.URL.Query().Get("intent")
	if intent != IntentSignup {
		intent = IntentLogin
	}
	now := time.Now()
	state := &OAuthState{
		Value:     value,
		Intent:    intent,
		ExpiresAt: now.Add(a.Config.OneTimeStateTTL),
		CreatedAt: now,
	}
	if err := a.States.CreateState(r.Context(), state); err != nil {
		writeAuthError(w, err)
		return
	}
	http.Redirect(w, r, a.googleOAuthConfig().AuthCodeURL(value), http.StatusTemporaryRedirect)
}

// handleGoogleCallback finishes the browser flow. Every failure redirects
// to the error URL with a reason query param - the caller is a browser mid
// redirect chain, JSON would dead-end it.
func (a *Auth) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		a.redirectError(w, r, "consent_denied")
		return
	}
	stateValue := query.Get("state")
	code := query.Get("code")
	if stateValue == "" || code == "" {
		a.redirectError(w, r, "missing_params")
		return
	}
	state, err := a.States.ConsumeState(r.Context(), stateValue)
	if err != nil {
		a.redirectError(w, r, "invalid_state")
		return
	}

	conf := a.googleOAuthConfig()
	token, err := conf.Exchange(r.Context(), code)
	if err != nil {
		a.redirectError(w, r, "exchange_failed")
		return
	}
	profile, err := a.fetchGoogleProfile(r.Context(), conf, token)
	if err != nil {
		a.redirectError(w, r, "userinfo_failed")
		return
	}
	if profile.Email == "" {
		a.redirectError(w, r, "no_email")
		return
	}

	// The recorded intent decides the branch: login wants an existing
	// account, signup wants a fresh one.
	var account *Account
	switch state.Intent {
	case IntentSignup:
		account, err = a.createGoogleAccount(r.Context(), profile)
		if errors.Is(err, ErrDuplicateEmail) {
			a.redirectError(w, r, "account_exists")
			return
		}
	default:
		account, err = a.loginGoogleAccount(r.Context(), profile)
		if errors.Is(err, ErrAccountNotFound) {
			a.redirectError(w, r, "account_not_found")
			return
		}
	}
	if err != nil {
		a.redirectError(w, r, "account_failed")
		return
	}
	pair, err := a.Sessions.Issue(r.Context(), account)
	if err != nil {
		a.redirectError(w, r, "session_failed")
		return
	}
	a.setTokenCookies(w, pair)
	http.Redirect(w, r, a.Config.Google.SuccessRedirectURL, http.StatusTemporaryRedirect)
}

type googleMobileRequest struct {
	IDToken string `json:"id_token"`
}

// handleGoogleMobile signs a mobile client in from a Google ID token. The
// token's audience must be our client id; validation happens against
// Google's published keys so no extra round trip to userinfo is needed.
func (a *Auth) handleGoogleMobile(w http.ResponseWriter, r *http.Request) {
	var req googleMobileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAuthError(w, err)
		return
	}
	if req.IDToken == "" {
		writeAuthError(w, NewAuthError(ErrCodeInvalidInput, "id_token is required", "id_token"))
		return
	}

	payload, err := a.validateIDToken(r.Context(), req.IDToken)
	if err != nil {
		writeAuthError(w, NewAuthError(ErrCodeUpstreamFailed, "ID token validation failed", "id_token"))
		return
	}
	profile := &googleProfile{
		ID:      payload.Subject,
		Email:   claimString(payload.Claims, "email"),
		Name:    claimString(payload.Claims, "name"),
		Picture: claimString(payload.Claims, "picture"),
	}
	if profile.Email == "" {
		writeAuthError(w, NewAuthError(ErrCodeUpstreamFailed, "ID token carries no email", "id_token"))
		return
	}

	account, err := a.findOrCreateGoogleAccount(r.Context(), profile)
	if err != nil {
		writeAuthError(w, err)
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

// validateIDToken checks the token against Google's keys, replaceable in
// tests.
func (a *Auth) validateIDToken(ctx context.Context, raw string) (*idtoken.Payload, error) {
	if a.IDTokenValidator != nil {
		return a.IDTokenValidator(ctx, raw, a.Config.Google.ClientID)
	}
	return idtoken.Validate(ctx, raw, a.Config.Google.ClientID)
}

func (a *Auth) fetchGoogleProfile(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (*googleProfile, error) {
	client := conf.Client(ctx, token)
	resp, err := client.Get(a.Config.Google.UserInfoURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("userinfo request failed")
	}
	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// loginGoogleAccount signs a known email in, refreshing name and picture
// so the stored profile tracks Google's. Fails with ErrAccountNotFound for
// an email that never signed up.
func (a *Auth) loginGoogleAccount(ctx context.Context, profile *googleProfile) (*Account, error) {
	account, err := a.Accounts.GetByEmail(ctx, normalizeEmail(profile.Email))
	if err != nil {
		return nil, err
	}
	update := &AccountUpdate{}
	if profile.Name != "" && profile.Name != account.Name {
		update.Name = &profile.Name
	}
	if profile.Picture != "" && profile.Picture != account.PictureURL {
		update.PictureURL = &profile.Picture
	}
	if update.Name == nil && update.PictureURL == nil {
		return account, nil
	}
	return a.Accounts.UpdateByID(ctx, account.ID, update)
}

// createGoogleAccount provisions a passwordless account for a new email.
// Fails with ErrDuplicateEmail when the email already signed up.
func (a *Auth) createGoogleAccount(ctx context.Context, profile *googleProfile) (*Account, error) {
	account, err := a.Accounts.Create(ctx, &Account{
		Email:      normalizeEmail(profile.Email),
		Name:       profile.Name,
		PictureURL: profile.Picture,
	})
	if err != nil {
		return nil, err
	}
	a.Notify.AccountCreated(ctx, account)
	return account, nil
}

// findOrCreateGoogleAccount serves the mobile flow, which has no recorded
// intent: a known email logs in, a new one signs up.
func (a *Auth) findOrCreateGoogleAccount(ctx context.Context, profile *googleProfile) (*Account, error) {
	account, err := a.loginGoogleAccount(ctx, profile)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	return a.createGoogleAccount(ctx, profile)
}

func (a *Auth) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	target := a.Config.Google.ErrorRedirectURL
	if target == "" {
		writeError(w, http.StatusBadRequest, ErrCodeUpstreamFailed, "Google sign-in failed: "+reason)
		return
	}
	u, err := url.Parse(target)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeUpstreamFailed, "Google sign-in failed: "+reason)
		return
	}
	q := u.Query()
	q.Set("reason", reason)
	u.RawQuery = q.Encode()
	http.Redirect(w, r, u.String(), http.StatusTemporaryRedirect)
}

func claimString(claims map[string]any, key string) string {
	s, _ := claims[key].(string)
	return s
}
