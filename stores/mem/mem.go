// Package mem provides in-memory store implementations, used in tests and
// quick development setups. State is lost on restart.
package mem

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panyam/webauth"
)

// AccountStore keeps accounts in a map guarded by a mutex. The mutex makes
// each operation atomic, mirroring the single-document update guarantees
// the other backends get from their engines.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]*webauth.Account
}

// NewAccountStore creates an empty in-memory account store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: map[string]*webauth.Account{}}
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*webauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, account := range s.accounts {
		if account.Email == email {
			return copyAccount(account), nil
		}
	}
	return nil, webauth.ErrAccountNotFound
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*webauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, webauth.ErrAccountNotFound
	}
	return copyAccount(account), nil
}

func (s *AccountStore) Create(ctx context.Context, account *webauth.Account) (*webauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.Email == account.Email {
			return nil, webauth.ErrDuplicateEmail
		}
	}
	stored := copyAccount(account)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.accounts[stored.ID] = stored
	return copyAccount(stored), nil
}

func (s *AccountStore) UpdateByID(ctx context.Context, id string, update *webauth.AccountUpdate) (*webauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return nil, webauth.ErrAccountNotFound
	}
	if update.Email != nil {
		for otherID, other := range s.accounts {
			if otherID != id && other.Email == *update.Email {
				return nil, webauth.ErrDuplicateEmail
			}
		}
		account.Email = *update.Email
	}
	if update.PasswordHash != nil {
		account.PasswordHash = *update.PasswordHash
	}
	if update.IsAnonymous != nil {
		account.IsAnonymous = *update.IsAnonymous
	}
	if update.Name != nil {
		account.Name = *update.Name
	}
	if update.PictureURL != nil {
		account.PictureURL = *update.PictureURL
	}
	if update.ResetPasswordToken != nil {
		account.ResetPasswordToken = *update.ResetPasswordToken
	}
	if update.ResetPasswordExpires != nil {
		account.ResetPasswordExpires = *update.ResetPasswordExpires
	}
	account.UpdatedAt = time.Now()
	return copyAccount(account), nil
}

func (s *AccountStore) GetByResetToken(ctx context.Context, token string) (*webauth.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token == "" {
		return nil, webauth.ErrAccountNotFound
	}
	for _, account := range s.accounts {
		if account.ResetPasswordToken == token && time.Now().Before(account.ResetPasswordExpires) {
			return copyAccount(account), nil
		}
	}
	return nil, webauth.ErrAccountNotFound
}

func (s *AccountStore) TouchLastAccess(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return webauth.ErrAccountNotFound
	}
	account.LastAccess = at
	return nil
}

func (s *AccountStore) PushRefreshToken(ctx context.Context, id string, record webauth.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return webauth.ErrAccountNotFound
	}
	account.RefreshTokens = append(account.RefreshTokens, record)
	return nil
}

func (s *AccountStore) PruneRefreshTokens(ctx context.Context, id string, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return webauth.ErrAccountNotFound
	}
	kept := account.RefreshTokens[:0]
	for _, rec := range account.RefreshTokens {
		if !rec.ExpiresAt.Before(before) {
			kept = append(kept, rec)
		}
	}
	account.RefreshTokens = kept
	return nil
}

func (s *AccountStore) PullRefreshToken(ctx context.Context, id string, encryptedJWT string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return webauth.ErrAccountNotFound
	}
	kept := account.RefreshTokens[:0]
	for _, rec := range account.RefreshTokens {
		if rec.EncryptedJWT != encryptedJWT {
			kept = append(kept, rec)
		}
	}
	account.RefreshTokens = kept
	return nil
}

func (s *AccountStore) SetRefreshTokens(ctx context.Context, id string, records []webauth.RefreshTokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[id]
	if !ok {
		return webauth.ErrAccountNotFound
	}
	account.RefreshTokens = append([]webauth.RefreshTokenRecord(nil), records...)
	return nil
}

func copyAccount(account *webauth.Account) *webauth.Account {
	out := *account
	out.RefreshTokens = append([]webauth.RefreshTokenRecord(nil), account.RefreshTokens...)
	return &out
}

// StateStore keeps one-time states and OTP codes in maps. Expiry is checked
// on read; there is no background sweeper.
type StateStore struct {
	mu     sync.Mutex
	states map[string]*webauth.OAuthState
	otps   []*webauth.OTP
}

// NewStateStore creates an empty in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{states: map[string]*webauth.OAuthState{}}
}

func (s *StateStore) CreateState(ctx context.Context, state *webauth.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *state
	s.states[state.Value] = &stored
	return nil
}

func (s *StateStore) ConsumeState(ctx context.Context, value string) (*webauth.OAuthState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[value]
	if !ok {
		return nil, webauth.ErrStateNotFound
	}
	delete(s.states, value)
	if time.Now().After(state.ExpiresAt) {
		return nil, webauth.ErrStateNotFound
	}
	out := *state
	return &out, nil
}

func (s *StateStore) CreateOTP(ctx context.Context, otp *webauth.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *otp
	s.otps = append(s.otps, &stored)
	return nil
}

func (s *StateStore) DeleteUnusedOTPs(ctx context.Context, email, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.otps[:0]
	for _, otp := range s.otps {
		if otp.Email == email && otp.Purpose == purpose && !otp.IsUsed {
			continue
		}
		kept = append(kept, otp)
	}
	s.otps = kept
	return nil
}

func (s *StateStore) ConsumeOTP(ctx context.Context, email, code, purpose string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, otp := range s.otps {
		if otp.Email != email || otp.Purpose != purpose || otp.IsUsed {
			continue
		}
		if otp.Code != code {
			continue
		}
		if time.Now().After(otp.ExpiresAt) {
			return webauth.ErrStateNotFound
		}
		otp.IsUsed = true
		return nil
	}
	return webauth.ErrStateNotFound
}
