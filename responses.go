package webauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ==========================================================================
// JSON response envelope
// ==========================================================================

// writeJSON emits the standard envelope: {"status": "success"|"error",
// "message": ..., "data": ...}. Data may be nil.
func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	outcome := "success"
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	body := map[string]any{
		"status":  outcome,
		"message": message,
	}
	if data != nil {
		body["data"] = data
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encoding response failed", "err", err)
	}
}

// writeError emits an error envelope with a machine readable code under
// data.error so clients can branch without parsing messages.
func writeError(w http.ResponseWriter, status int, code, message string) {
	data := map[string]any{"error": code}
	writeJSON(w, status, message, data)
}

// writeAuthError maps an error to the envelope. AuthError values carry
// their own code and message; sentinel errors get their canonical mapping;
// anything else becomes an opaque 500.
func writeAuthError(w http.ResponseWriter, err error) {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		status := http.StatusBadRequest
		switch authErr.Code {
		case ErrCodeUserNotFound:
			status = http.StatusNotFound
		case ErrCodeInvalidCreds, ErrCodeTokenExpired, ErrCodeTokenInvalid,
			ErrCodeTokenMalformed, ErrCodeTokenNotFound:
			status = http.StatusUnauthorized
		case ErrCodeDuplicateEmail:
			status = http.StatusConflict
		}
		writeError(w, status, authErr.Code, authErr.Message)
		return
	}
	switch {
	case errors.Is(err, ErrAccountNotFound):
		writeError(w, http.StatusNotFound, ErrCodeUserNotFound, "User not found")
	case errors.Is(err, ErrDuplicateEmail):
		writeError(w, http.StatusConflict, ErrCodeDuplicateEmail, "Email already in use")
	case errors.Is(err, ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "Token expired")
	case errors.Is(err, ErrTokenMalformed):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenMalformed, "Token malformed")
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrInvalidSession):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenInvalid, "Token invalid")
	case errors.Is(err, ErrStateNotFound):
		writeError(w, http.StatusBadRequest, ErrCodeInvalidState, "State invalid or expired")
	default:
		slog.Error("unhandled error", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Something went wrong")
	}
}

// decodeJSON reads a request body into dst, rejecting unknown garbage early.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return NewAuthError(ErrCodeInvalidInput, "Invalid request body", "")
	}
	return nil
}
