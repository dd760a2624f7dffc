package webauth

import (
	"context"
	"time"
)

// RefreshTokenRecord is one entry in an account's embedded refresh token
// list. A record is valid iff ExpiresAt is in the future; invalid records
// are lazily pruned on the next issue for the same account.
type RefreshTokenRecord struct {
	ExpiresAt    time.Time `json:"expires_at" bson:"expires_at"`
	EncryptedJWT string    `json:"encrypted_jwt" bson:"encrypted_jwt"`
}

// IsExpired returns true if the record's expiry has passed.
func (r *RefreshTokenRecord) IsExpired() bool {
	return time.Now().After(r.ExpiresAt)
}

// Account is the persistent record per user. Anonymous accounts carry a
// synthetic placeholder email until merged into a real account.
type Account struct {
	ID           string `json:"id" bson:"_id,omitempty"`
	Email        string `json:"email" bson:"email"`
	PasswordHash string `json:"-" bson:"password"`
	IsAnonymous  bool   `json:"is_anonymous" bson:"is_anonymous"`

	Name       string `json:"name,omitempty" bson:"name,omitempty"`
	PictureURL string `json:"picture_url,omitempty" bson:"picture_url,omitempty"`

	ResetPasswordToken   string    `json:"-" bson:"reset_password_token,omitempty"`
	ResetPasswordExpires time.Time `json:"-" bson:"reset_password_expires,omitempty"`

	LastAccess time.Time `json:"last_access,omitempty" bson:"last_access,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at"`

	RefreshTokens []RefreshTokenRecord `json:"-" bson:"refresh_tokens"`
}

// AccountUpdate describes a partial update. Nil fields are left untouched;
// non-nil fields are written, including zero values (a pointer to "" clears
// the reset token).
type AccountUpdate struct {
	Email                *string
	PasswordHash         *string
	IsAnonymous          *bool
	Name                 *string
	PictureURL           *string
	ResetPasswordToken   *string
	ResetPasswordExpires *time.Time
}

// AccountStore is the credential store boundary. Implementations must back
// the refresh token operations with the storage engine's native atomic
// array update operators so concurrent rotations on one account cannot
// corrupt the embedded list.
type AccountStore interface {
	// GetByEmail looks an account up by exact (already normalized) email.
	// Returns ErrAccountNotFound on a miss.
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// GetByID looks an account up by id. Returns ErrAccountNotFound on a miss.
	GetByID(ctx context.Context, id string) (*Account, error)

	// Create inserts a new account, assigning ID and timestamps. A unique
	// email index violation comes back as ErrDuplicateEmail.
	Create(ctx context.Context, account *Account) (*Account, error)

	// UpdateByID applies a partial update and returns the updated account.
	UpdateByID(ctx context.Context, id string, update *AccountUpdate) (*Account, error)

	// GetByResetToken finds the account holding an unexpired password reset
	// token. Returns ErrAccountNotFound when missing or expired.
	GetByResetToken(ctx context.Context, token string) (*Account, error)

	// TouchLastAccess updates the last access timestamp. Best effort.
	TouchLastAccess(ctx context.Context, id string, at time.Time) error

	// PushRefreshToken atomically appends a record to the account's list.
	PushRefreshToken(ctx context.Context, id string, record RefreshTokenRecord) error

	// PullRefreshToken atomically removes the record matching the exact
	// encrypted value. Idempotent: removing an absent value is a no-op.
	PullRefreshToken(ctx context.Context, id string, encryptedJWT string) error

	// PruneRefreshTokens atomically removes every record whose expiry is
	// before the given instant, by a store-side filtered update. It must
	// not touch unexpired records, including ones pushed concurrently.
	PruneRefreshTokens(ctx context.Context, id string, before time.Time) error

	// SetRefreshTokens replaces the account's list wholesale (pruning).
	SetRefreshTokens(ctx context.Context, id string, records []RefreshTokenRecord) error
}

// Flow intents recorded in OAuth states so the callback can branch.
const (
	IntentLogin  = "login"
	IntentSignup = "signup"
)

// OAuthState is a single-use CSRF token linking an OAuth redirect
// initiation to its callback. Consumption deletes it.
type OAuthState struct {
	Value     string    `json:"state" bson:"state"`
	Intent    string    `json:"intent" bson:"intent"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// OTP purposes.
const (
	OTPPurposeEmailVerification = "email_verification"
	OTPPurposeTwoFactor         = "two_factor"
)

// OTP is a short-lived numeric code emailed for verification. Consumption
// marks it used; used and expired codes never match again.
type OTP struct {
	Email     string    `json:"email" bson:"email"`
	Code      string    `json:"otp" bson:"otp"`
	Purpose   string    `json:"purpose" bson:"purpose"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
	IsUsed    bool      `json:"is_used" bson:"is_used"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// StateStore holds one-time values: OAuth CSRF states and OTP codes.
// Implementations expire records physically via a TTL index or equivalent;
// lookups must never return expired records either way. Consumption is
// atomic with the lookup to close the check/delete replay window.
type StateStore interface {
	// CreateState stores a new OAuth state.
	CreateState(ctx context.Context, state *OAuthState) error

	// ConsumeState returns the unexpired state matching value and deletes
	// it in the same operation. Returns ErrStateNotFound otherwise.
	ConsumeState(ctx context.Context, value string) (*OAuthState, error)

	// CreateOTP stores a new OTP code.
	CreateOTP(ctx context.Context, otp *OTP) error

	// DeleteUnusedOTPs removes pending codes for an email+purpose so only
	// the most recently sent code can verify.
	DeleteUnusedOTPs(ctx context.Context, email, purpose string) error

	// ConsumeOTP finds the unexpired, unused code and marks it used in the
	// same operation. Returns ErrStateNotFound otherwise.
	ConsumeOTP(ctx context.Context, email, code, purpose string) error
}
