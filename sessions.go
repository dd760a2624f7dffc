package webauth

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RefreshSessions manages the encrypted refresh token records embedded in
// each account. Tokens are stored encrypted at rest; matching a presented
// token means decrypting each stored record and comparing plaintexts, since
// every encryption uses a fresh IV and ciphertexts are never comparable.
type RefreshSessions struct {
	Issuer *TokenIssuer
	Cipher *TokenCipher
	Store  AccountStore
	Config *Config
}

// NewRefreshSessions creates a session manager over the given store.
func NewRefreshSessions(cfg *Config, issuer *TokenIssuer, cipher *TokenCipher, store AccountStore) *RefreshSessions {
	return &RefreshSessions{Issuer: issuer, Cipher: cipher, Store: store, Config: cfg}
}

// TokenPair is an access/refresh token pair returned to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Issue signs a fresh token pair for the account, appends the encrypted
// refresh token to the account's record list, and prunes expired records
// while it is there. Pruning is lazy: expired records only leave storage
// when the account next gets a new session.
func (s *RefreshSessions) Issue(ctx context.Context, account *Account) (*TokenPair, error) {
	access, err := s.Issuer.IssueAccessToken(account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issuer.IssueRefreshToken(account.ID, account.Email)
	if err != nil {
		return nil, err
	}
	encrypted, err := s.Cipher.Encrypt(refresh)
	if err != nil {
		return nil, err
	}

	record := RefreshTokenRecord{
		ExpiresAt:    time.Now().Add(s.Config.RefreshTokenTTL),
		EncryptedJWT: encrypted,
	}

	// Pruning goes through a store-side filtered removal, never a rewrite
	// of the caller's snapshot: the snapshot may predate a concurrent push
	// or a revocation, and writing it back would resurrect dead records.
	if err := s.Store.PruneRefreshTokens(ctx, account.ID, time.Now()); err != nil {
		// The new session still matters more than the cleanup.
		slog.Warn("pruning expired refresh tokens failed", "account", account.ID, "err", err)
	}
	if err := s.Store.PushRefreshToken(ctx, account.ID, record); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Rotate exchanges a presented refresh token for a new pair. The presented
// token must verify as a refresh JWT and match one of the account's stored
// records exactly; the matched record is revoked before the new pair is
// issued, so a crash between the two steps loses the session rather than
// duplicating it. A token that already rotated finds no record and fails
// with ErrInvalidSession.
func (s *RefreshSessions) Rotate(ctx context.Context, presented string) (*Account, *TokenPair, error) {
	claims, err := s.Issuer.VerifyRefreshToken(presented)
	if err != nil {
		return nil, nil, err
	}
	// A vanished account answers the same way as a non-matching token;
	// callers never learn which part of the session was missing.
	account, err := s.Store.GetByID(ctx, claims.SubjectID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, nil, ErrInvalidSession
		}
		return nil, nil, err
	}

	matched := ""
	for _, rec := range account.RefreshTokens {
		if rec.IsExpired() {
			continue
		}
		plain, err := s.Cipher.Decrypt(rec.EncryptedJWT)
		if err != nil {
			continue
		}
		if plain == presented {
			matched = rec.EncryptedJWT
			break
		}
	}
	if matched == "" {
		return nil, nil, ErrInvalidSession
	}

	if err := s.Store.PullRefreshToken(ctx, account.ID, matched); err != nil {
		return nil, nil, err
	}
	pair, err := s.Issue(ctx, account)
	if err != nil {
		return nil, nil, err
	}
	return account, pair, nil
}

// ListByAccount returns the account's refresh token records in storage
// order. A missing account is an empty list, not an error.
func (s *RefreshSessions) ListByAccount(ctx context.Context, accountID string) []RefreshTokenRecord {
	account, err := s.Store.GetByID(ctx, accountID)
	if err != nil {
		return nil
	}
	return account.RefreshTokens
}

// Revoke removes the record matching the presented refresh token, ending
// that session. Unknown tokens revoke cleanly: logout never fails because
// the session was already gone.
func (s *RefreshSessions) Revoke(ctx context.Context, account *Account, presented string) error {
	for _, rec := range account.RefreshTokens {
		plain, err := s.Cipher.Decrypt(rec.EncryptedJWT)
		if err != nil {
			continue
		}
		if plain == presented {
			return s.Store.PullRefreshToken(ctx, account.ID, rec.EncryptedJWT)
		}
	}
	return nil
}

// RevokeAll removes every refresh session for the account.
func (s *RefreshSessions) RevokeAll(ctx context.Context, accountID string) error {
	return s.Store.SetRefreshTokens(ctx, accountID, []RefreshTokenRecord{})
}
