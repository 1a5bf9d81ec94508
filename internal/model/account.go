package model

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
)

// CaptchaCooldown is the least duration between two captcha issues for
// the same verify context.
const CaptchaCooldown = 10 * time.Minute

// captchaDigits is the length of a captcha code.
const captchaDigits = 6

// NewCaptcha generates a 6-digit zero-padded numeric captcha uniformly
// at random. The 64-bit draw makes the modulo residue uniform for all
// practical purposes.
func NewCaptcha() string {
	var buf [8]byte
	rand.Read(buf[:])
	n := binary.BigEndian.Uint64(buf[:]) % 1_000_000
	return fmt.Sprintf("%0*d", captchaDigits, n)
}

// VerifyContext is the mutable captcha state of a pending verification:
// the current captcha value and when it was last issued.
type VerifyContext struct {
	Captcha   string    `json:"captcha"`
	LastIssue time.Time `json:"lastIssue"`
}

// Issue re-issues the captcha. It fails with a rate-limited error
// carrying the exact remaining cooldown if called within
// CaptchaCooldown of the previous issue.
func (v *VerifyContext) Issue(now time.Time) (string, error) {
	if elapsed := now.Sub(v.LastIssue); elapsed < CaptchaCooldown {
		return "", apperror.RateLimited(CaptchaCooldown - elapsed)
	}
	v.Captcha = NewCaptcha()
	v.LastIssue = now
	return v.Captcha, nil
}

// Matches compares a caller-supplied captcha against the stored value.
// A mismatch is side-effect free: the stored captcha stays valid for
// retry.
func (v *VerifyContext) Matches(captcha string) bool {
	return v.Captcha != "" && v.Captcha == captcha
}

// Unverified is a pending registration. It is keyed by EmailID so that
// repeated send-captcha calls find the same record, and it is destroyed
// when verification succeeds.
type Unverified struct {
	ID     ID            `json:"id"`
	Email  string        `json:"email"`
	Verify VerifyContext `json:"verify"`
}

// NewUnverified creates a pending registration for the given email.
func NewUnverified(email string) *Unverified {
	return &Unverified{ID: EmailID(email), Email: email}
}

// Token is one active session credential on an account. Tokens are
// independent: logging out one leaves the others valid.
type Token struct {
	JTI      string     `json:"jti"`
	IssuedAt time.Time  `json:"issuedAt"`
	ExpireAt *time.Time `json:"expireAt,omitempty"` // nil = never expires
}

// Account is a verified account record.
type Account struct {
	ID       ID     `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	SchoolID string `json:"schoolId"`
	Phone    string `json:"phone,omitempty"`

	PasswordHash string `json:"passwordHash"`

	// TokenExpirySecs is the lifetime applied to newly issued tokens.
	// Zero means tokens never expire.
	TokenExpirySecs uint64 `json:"tokenExpirySecs"`

	Tags   Tags    `json:"tags"`
	Tokens []Token `json:"tokens"`

	// ResetVerify is the captcha context for password resets; nil
	// until the first reset captcha is requested.
	ResetVerify *VerifyContext `json:"resetVerify,omitempty"`
}

// AddToken records a newly issued token. Returns the expiry applied,
// or nil when the account is configured for non-expiring tokens.
func (a *Account) AddToken(jti string, now time.Time) *time.Time {
	t := Token{JTI: jti, IssuedAt: now}
	if a.TokenExpirySecs > 0 {
		exp := now.Add(time.Duration(a.TokenExpirySecs) * time.Second)
		t.ExpireAt = &exp
	}
	a.Tokens = append(a.Tokens, t)
	return t.ExpireAt
}

// IsTokenValid reports whether jti names an active token: present and
// either non-expiring or not yet expired.
func (a *Account) IsTokenValid(jti string, now time.Time) bool {
	for _, t := range a.Tokens {
		if t.JTI == jti {
			return t.ExpireAt == nil || t.ExpireAt.After(now)
		}
	}
	return false
}

// RemoveToken invalidates exactly the matching token. It fails if the
// token is not currently active.
func (a *Account) RemoveToken(jti string, now time.Time) error {
	for i, t := range a.Tokens {
		if t.JTI == jti && (t.ExpireAt == nil || t.ExpireAt.After(now)) {
			a.Tokens = append(a.Tokens[:i], a.Tokens[i+1:]...)
			return nil
		}
	}
	return apperror.Unauthorized("token is not valid")
}

// ClearTokens revokes every active session, e.g. after a password
// reset.
func (a *Account) ClearTokens() {
	a.Tokens = nil
}

// PruneTokens drops expired token records. Called opportunistically on
// login so the list does not grow without bound.
func (a *Account) PruneTokens(now time.Time) {
	kept := a.Tokens[:0]
	for _, t := range a.Tokens {
		if t.ExpireAt == nil || t.ExpireAt.After(now) {
			kept = append(kept, t)
		}
	}
	a.Tokens = kept
}
