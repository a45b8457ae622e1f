package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the "type" claim.
const (
	TypeAccess            = "access"
	TypeEmailVerification = "email_verification"
	TypePasswordReset     = "password_reset"
)

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = time.Hour
)

// Claims is the JWT payload. Subject is the user's email.
type Claims struct {
	Type       string `json:"type,omitempty"`
	RememberMe bool   `json:"remember_me,omitempty"`
	jwt.RegisteredClaims
}

// Tokens signs and verifies HS256 tokens.
type Tokens struct {
	secret      []byte
	accessTTL   time.Duration
	rememberTTL time.Duration
	now         func() time.Time
}

// NewTokens creates a signer. rememberTTL applies to remember-me logins.
func NewTokens(secret string, accessTTL, rememberTTL time.Duration) *Tokens {
	return &Tokens{
		secret:      []byte(secret),
		accessTTL:   accessTTL,
		rememberTTL: rememberTTL,
		now:         time.Now,
	}
}

func (t *Tokens) issue(subject, typ string, ttl time.Duration, remember bool) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(ttl)
	claims := Claims{
		Type:       typ,
		RememberMe: remember,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return s, exp, nil
}

// Access issues a login token.
func (t *Tokens) Access(email string, remember bool) (string, time.Time, error) {
	ttl := t.accessTTL
	if remember {
		ttl = t.rememberTTL
	}
	return t.issue(email, TypeAccess, ttl, remember)
}

// Verification issues an email verification token.
func (t *Tokens) Verification(email string) (string, error) {
	s, _, err := t.issue(email, TypeEmailVerification, verificationTTL, false)
	return s, err
}

// Reset issues a password reset token.
func (t *Tokens) Reset(email string) (string, error) {
	s, _, err := t.issue(email, TypePasswordReset, resetTTL, false)
	return s, err
}

var (
	errInvalidToken = errors.New("invalid or expired token")
	errTokenType    = errors.New("invalid token type")
)

// Parse verifies signature, expiry and type.
func (t *Tokens) Parse(token, wantType string) (*Claims, error) {
	var c Claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, errInvalidToken
	}
	if c.Subject == "" {
		return nil, errInvalidToken
	}
	if c.Type != wantType {
		return nil, errTokenType
	}
	return &c, nil
}
