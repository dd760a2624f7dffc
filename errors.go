package webauth

import "errors"

// Sentinel errors returned by the token issuer and stores. Handlers map
// these onto HTTP statuses and client-facing error codes.
var (
	// ErrTokenExpired means the token was well-formed and correctly signed
	// but its expiry has passed. Clients should attempt a refresh rather
	// than a full re-login.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid means the token parsed as a JWT but failed
	// verification (bad signature, wrong key, bad claims).
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenMalformed means the value was not a JWT at all.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrAccountNotFound is returned by account stores on id/email misses.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateEmail is returned when an insert or update would violate
	// the unique email index. Signup reports it distinctly, never as a
	// generic failure.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidSession is the single signal for any refresh rotation
	// failure: unknown account, empty token list, or no matching record.
	// Callers must not learn which part failed.
	ErrInvalidSession = errors.New("invalid session")

	// ErrStateNotFound is returned when a one-time state value is missing,
	// expired, or already consumed.
	ErrStateNotFound = errors.New("state not found or expired")
)

// Client-facing error codes used in the JSON envelope's data.error field.
// These form the wire contract with frontends and must stay stable.
const (
	ErrCodeTokenNotFound  = "token_not_found"
	ErrCodeTokenExpired   = "token_expired"
	ErrCodeTokenInvalid   = "token_invalid"
	ErrCodeTokenMalformed = "token_malformed"
	ErrCodeUserNotFound   = "user_not_found"
	ErrCodeInvalidCreds   = "invalid_credentials"
	ErrCodeDuplicateEmail = "duplicate_email"
	ErrCodeInvalidInput   = "invalid_input"
	ErrCodeInvalidState   = "invalid_or_expired_state"
	ErrCodeUpstreamFailed = "upstream_provider_failure"
)

// AuthError carries a code, message and the offending field for
// handler-boundary error reporting.
type AuthError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *AuthError) Error() string { return e.Message }

// NewAuthError creates an AuthError with the given code, message and field
func NewAuthError(code, message, field string) *AuthError {
	return &AuthError{Code: code, Message: message, Field: field}
}
