package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/subitlab-buf/sms4-backend/internal/model"
)

const issuer = "sms4-backend"

// TokenService signs and verifies session tokens.
//
// Tokens are HS256 JWTs, but a valid signature alone never grants
// access: every request re-checks the token's id against the account's
// active session list, so revocation (logout, password reset) takes
// effect immediately. The expiry claim is a hint; the account record
// is authoritative.
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: token secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret)}, nil
}

type claims struct {
	jwt.RegisteredClaims
}

// Issue signs a token for the account carrying the session id jti.
// A nil expireAt produces a token with no expiry claim; the account's
// session list still bounds its life.
func (s *TokenService) Issue(accountID model.ID, jti string, expireAt *time.Time) (string, error) {
	now := time.Now()

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  accountID.String(),
			ID:       jti,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   issuer,
		},
	}
	if expireAt != nil {
		c.ExpiresAt = jwt.NewNumericDate(*expireAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token string, returning the account
// id and session id it carries.
func (s *TokenService) Validate(tokenStr string) (model.ID, string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return 0, "", fmt.Errorf("auth: token expired")
		}
		return 0, "", fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return 0, "", fmt.Errorf("auth: invalid token claims")
	}
	if c.Subject == "" || c.ID == "" {
		return 0, "", fmt.Errorf("auth: token missing subject or id")
	}

	accountID, err := model.ParseID(c.Subject)
	if err != nil {
		return 0, "", fmt.Errorf("auth: token subject is not an account id: %w", err)
	}
	return accountID, c.ID, nil
}
