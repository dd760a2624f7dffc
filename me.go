package webauth

import (
	"net/http"
)

// handleMe returns the authenticated account's profile.
func (a *Auth) handleMe(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	writeJSON(w, http.StatusOK, "OK", map[string]any{"user": account})
}

// handleDeleteMe ends the account: all sessions revoked, cookies cleared,
// and the host notified. The account document itself and any app data stay
// until the host's deletion pipeline gets to them - the notifier is the
// trigger, not the cleanup.
func (a *Auth) handleDeleteMe(w http.ResponseWriter, r *http.Request) {
	account := AccountFromContext(r.Context())
	if err := a.Sessions.RevokeAll(r.Context(), account.ID); err != nil {
		writeAuthError(w, err)
		return
	}
	a.Notify.AccountDeleted(r.Context(), account)
	a.clearTokenCookies(w)
	writeJSON(w, http.StatusOK, "Account deletion requested", nil)
}
