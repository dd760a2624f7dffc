package gorm

import (
	"time"

	oa "github.com/panyam/webauth"
)

// AccountModel is the GORM model for accounts.
type AccountModel struct {
	ID                   string    `gorm:"primaryKey;size:64"`
	Email                string    `gorm:"size:320;uniqueIndex"`
	PasswordHash         string    `gorm:"size:128"`
	IsAnonymous          bool      `gorm:"default:false"`
	Name                 string    `gorm:"size:255"`
	PictureURL           string    `gorm:"size:1024"`
	ResetPasswordToken   string    `gorm:"size:128;index"`
	ResetPasswordExpires time.Time
	LastAccess           time.Time
	CreatedAt            time.Time `gorm:"autoCreateTime"`
	UpdatedAt            time.Time `gorm:"autoUpdateTime"`

	RefreshTokens []RefreshTokenModel `gorm:"foreignKey:AccountID;constraint:OnDelete:CASCADE"`
}

func (AccountModel) TableName() string {
	return "auth_accounts"
}

func (m *AccountModel) ToAccount() *oa.Account {
	account := &oa.Account{
		ID:                   m.ID,
		Email:                m.Email,
		PasswordHash:         m.PasswordHash,
		IsAnonymous:          m.IsAnonymous,
		Name:                 m.Name,
		PictureURL:           m.PictureURL,
		ResetPasswordToken:   m.ResetPasswordToken,
		ResetPasswordExpires: m.ResetPasswordExpires,
		LastAccess:           m.LastAccess,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
	for _, rec := range m.RefreshTokens {
		account.RefreshTokens = append(account.RefreshTokens, rec.ToRecord())
	}
	return account
}

// RefreshTokenModel is the GORM model for refresh token records. The other
// backends embed these in the account document; relational storage gets a
// child table with the account's transaction standing in for the
// single-document atomicity.
type RefreshTokenModel struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	AccountID    string `gorm:"size:64;index"`
	EncryptedJWT string `gorm:"size:2048"`
	ExpiresAt    time.Time
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

func (RefreshTokenModel) TableName() string {
	return "auth_refresh_tokens"
}

func (m *RefreshTokenModel) ToRecord() oa.RefreshTokenRecord {
	return oa.RefreshTokenRecord{
		ExpiresAt:    m.ExpiresAt,
		EncryptedJWT: m.EncryptedJWT,
	}
}

// OAuthStateModel is the GORM model for one-time OAuth states.
type OAuthStateModel struct {
	Value     string `gorm:"primaryKey;size:128"`
	Intent    string `gorm:"size:32"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (OAuthStateModel) TableName() string {
	return "auth_states"
}

func (m *OAuthStateModel) ToState() *oa.OAuthState {
	return &oa.OAuthState{
		Value:     m.Value,
		Intent:    m.Intent,
		ExpiresAt: m.ExpiresAt,
		CreatedAt: m.CreatedAt,
	}
}

// OTPModel is the GORM model for one-time codes.
type OTPModel struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Email     string `gorm:"size:320;index"`
	Code      string `gorm:"size:16"`
	Purpose   string `gorm:"size:32"`
	ExpiresAt time.Time `gorm:"index"`
	IsUsed    bool      `gorm:"default:false"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

func (OTPModel) TableName() string {
	return "auth_otps"
}
