// Package gorm implements the stores on any GORM-supported relational
// database. Refresh token records live in a child table; account-scoped
// operations that touch them run inside transactions to match the
// single-document atomicity the document backends get for free.
package gorm

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	oa "github.com/panyam/webauth"
)

// AutoMigrate runs database migrations for all auth tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&AccountModel{},
		&RefreshTokenModel{},
		&OAuthStateModel{},
		&OTPModel{},
	)
}

// =============================================================================
// AccountStore
// =============================================================================

// AccountStore implements oa.AccountStore on GORM.
type AccountStore struct {
	db *gorm.DB
}

// NewAccountStore creates an account store over the given DB handle. The
// session is opened with TranslateError so unique-index violations surface
// as gorm.ErrDuplicatedKey on every dialect; without it the raw driver
// error would slip past the duplicate-email mapping.
func NewAccountStore(db *gorm.DB) *AccountStore {
	sess := db.Session(&gorm.Session{})
	sess.Config.TranslateError = true
	return &AccountStore{db: sess}
}

func (s *AccountStore) get(ctx context.Context, query string, args ...any) (*oa.Account, error) {
	var model AccountModel
	err := s.db.WithContext(ctx).Preload("RefreshTokens").Where(query, args...).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, oa.ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) GetByEmail(ctx context.Context, email string) (*oa.Account, error) {
	return s.get(ctx, "email = ?", email)
}

func (s *AccountStore) GetByID(ctx context.Context, id string) (*oa.Account, error) {
	return s.get(ctx, "id = ?", id)
}

func (s *AccountStore) GetByResetToken(ctx context.Context, token string) (*oa.Account, error) {
	if token == "" {
		return nil, oa.ErrAccountNotFound
	}
	return s.get(ctx, "reset_password_token = ? AND reset_password_expires > ?", token, time.Now())
}

func (s *AccountStore) Create(ctx context.Context, account *oa.Account) (*oa.Account, error) {
	model := AccountModel{
		ID:           uuid.NewString(),
		Email:        account.Email,
		PasswordHash: account.PasswordHash,
		IsAnonymous:  account.IsAnonymous,
		Name:         account.Name,
		PictureURL:   account.PictureURL,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, oa.ErrDuplicateEmail
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *AccountStore) UpdateByID(ctx context.Context, id string, update *oa.AccountUpdate) (*oa.Account, error) {
	fields := map[string]any{}
	if update.Email != nil {
		fields["email"] = *update.Email
	}
	if update.PasswordHash != nil {
		fields["password_hash"] = *update.PasswordHash
	}
	if update.IsAnonymous != nil {
		fields["is_anonymous"] = *update.IsAnonymous
	}
	if update.Name != nil {
		fields["name"] = *update.Name
	}
	if update.PictureURL != nil {
		fields["picture_url"] = *update.PictureURL
	}
	if update.ResetPasswordToken != nil {
		fields["reset_password_token"] = *update.ResetPasswordToken
	}
	if update.ResetPasswordExpires != nil {
		fields["reset_password_expires"] = *update.ResetPasswordExpires
	}

	if len(fields) > 0 {
		result := s.db.WithContext(ctx).Model(&AccountModel{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return nil, oa.ErrDuplicateEmail
			}
			return nil, result.Error
		}
		if result.RowsAffected == 0 {
			return nil, oa.ErrAccountNotFound
		}
	}
	return s.GetByID(ctx, id)
}

func (s *AccountStore) TouchLastAccess(ctx context.Context, id string, at time.Time) error {
	return s.db.WithContext(ctx).Model(&AccountModel{}).
		Where("id = ?", id).
		UpdateColumn("last_access", at).Error
}

func (s *AccountStore) PushRefreshToken(ctx context.Context, id string, record oa.RefreshTokenRecord) error {
	return s.db.WithContext(ctx).Create(&RefreshTokenModel{
		AccountID:    id,
		EncryptedJWT: record.EncryptedJWT,
		ExpiresAt:    record.ExpiresAt,
	}).Error
}

func (s *AccountStore) PruneRefreshTokens(ctx context.Context, id string, before time.Time) error {
	return s.db.WithContext(ctx).
		Where("account_id = ? AND expires_at < ?", id, before).
		Delete(&RefreshTokenModel{}).Error
}

func (s *AccountStore) PullRefreshToken(ctx context.Context, id string, encryptedJWT string) error {
	return s.db.WithContext(ctx).
		Where("account_id = ? AND encrypted_jwt = ?", id, encryptedJWT).
		Delete(&RefreshTokenModel{}).Error
}

func (s *AccountStore) SetRefreshTokens(ctx context.Context, id string, records []oa.RefreshTokenRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", id).Delete(&RefreshTokenModel{}).Error; err != nil {
			return err
		}
		for _, rec := range records {
			err := tx.Create(&RefreshTokenModel{
				AccountID:    id,
				EncryptedJWT: rec.EncryptedJWT,
				ExpiresAt:    rec.ExpiresAt,
			}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// =============================================================================
// StateStore
// =============================================================================

// StateStore implements oa.StateStore on GORM. There is no TTL monitor in a
// relational database, so expired rows are filtered on read and cleaned up
// opportunistically on consume.
type StateStore struct {
	db *gorm.DB
}

// NewStateStore creates a state store over the given DB handle.
func NewStateStore(db *gorm.DB) *StateStore {
	return &StateStore{db: db}
}

func (s *StateStore) CreateState(ctx context.Context, state *oa.OAuthState) error {
	return s.db.WithContext(ctx).Create(&OAuthStateModel{
		Value:     state.Value,
		Intent:    state.Intent,
		ExpiresAt: state.ExpiresAt,
		CreatedAt: state.CreatedAt,
	}).Error
}

func (s *StateStore) ConsumeState(ctx context.Context, value string) (*oa.OAuthState, error) {
	var state *oa.OAuthState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model OAuthStateModel
		err := tx.Where("value = ? AND expires_at > ?", value, time.Now()).First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return oa.ErrStateNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&OAuthStateModel{}, "value = ?", value).Error; err != nil {
			return err
		}
		state = model.ToState()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *StateStore) CreateOTP(ctx context.Context, otp *oa.OTP) error {
	return s.db.WithContext(ctx).Create(&OTPModel{
		Email:     otp.Email,
		Code:      otp.Code,
		Purpose:   otp.Purpose,
		ExpiresAt: otp.ExpiresAt,
		IsUsed:    otp.IsUsed,
		CreatedAt: otp.CreatedAt,
	}).Error
}

func (s *StateStore) DeleteUnusedOTPs(ctx context.Context, email, purpose string) error {
	return s.db.WithContext(ctx).
		Where("email = ? AND purpose = ? AND is_used = ?", email, purpose, false).
		Delete(&OTPModel{}).Error
}

func (s *StateStore) ConsumeOTP(ctx context.Context, email, code, purpose string) error {
	result := s.db.WithContext(ctx).Model(&OTPModel{}).
		Where("email = ? AND code = ? AND purpose = ? AND is_used = ? AND expires_at > ?",
			email, code, purpose, false, time.Now()).
		Update("is_used", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return oa.ErrStateNotFound
	}
	return nil
}
