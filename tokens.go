package webauth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names carried by both token classes. These are part of the wire
// contract with existing frontends and must not change.
const (
	ClaimUserID = "x-user-id"
	ClaimEmail  = "x-email"
)

// TokenClaims is the verified content of an access or refresh token.
type TokenClaims struct {
	SubjectID string
	Email     string
	Raw       jwt.MapClaims
}

// TokenIssuer mints and verifies the two bearer token classes. It is
// stateless: pure functions over the secrets and the clock.
type TokenIssuer struct {
	Config *Config
}

// NewTokenIssuer creates a TokenIssuer over the given config.
func NewTokenIssuer(config *Config) *TokenIssuer {
	return &TokenIssuer{Config: config.EnsureDefaults()}
}

// IssueAccessToken signs a short-lived token binding subject id and email.
func (t *TokenIssuer) IssueAccessToken(subjectID, email string) (string, error) {
	return t.issue(subjectID, email, t.Config.AccessTokenSecret, t.Config.AccessTokenTTL)
}

// IssueRefreshToken signs a long-lived token with the same claims under the
// refresh secret.
func (t *TokenIssuer) IssueRefreshToken(subjectID, email string) (string, error) {
	return t.issue(subjectID, email, t.Config.RefreshTokenSecret, t.Config.RefreshTokenTTL)
}

func (t *TokenIssuer) issue(subjectID, email, secret string, ttl time.Duration) (string, error) {
	// A random jti keeps two tokens minted in the same second distinct;
	// refresh rotation depends on every token being unique.
	jti, err := GenerateSecureToken(8)
	if err != nil {
		return "", err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		ClaimUserID: subjectID,
		ClaimEmail:  email,
		"jti":       jti,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// VerifyAccessToken verifies a token against the access secret.
func (t *TokenIssuer) VerifyAccessToken(tokenString string) (*TokenClaims, error) {
	return t.verify(tokenString, t.Config.AccessTokenSecret)
}

// VerifyRefreshToken verifies a token against the refresh secret.
func (t *TokenIssuer) VerifyRefreshToken(tokenString string) (*TokenClaims, error) {
	return t.verify(tokenString, t.Config.RefreshTokenSecret)
}

// verify distinguishes three failure kinds: ErrTokenExpired for
// well-signed-but-stale tokens, ErrTokenMalformed for values that are not
// JWTs, and ErrTokenInvalid for everything else. The Request Gate relies on
// this distinction - an expired access token should trigger a refresh
// attempt on the client, not a logout.
func (t *TokenIssuer) verify(tokenString, secret string) (*TokenClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		default:
			return nil, ErrTokenInvalid
		}
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return nil, ErrTokenInvalid
	}

	out := &TokenClaims{Raw: claims}
	if sub, ok := claims[ClaimUserID].(string); ok {
		out.SubjectID = sub
	}
	if email, ok := claims[ClaimEmail].(string); ok {
		out.Email = email
	}
	return out, nil
}

// GenerateSecureToken generates a cryptographically secure random token,
// hex encoded. Used for OAuth states and password reset tokens.
func GenerateSecureToken(numBytes int) (string, error) {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
