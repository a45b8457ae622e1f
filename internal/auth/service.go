// Package auth registers users, issues and verifies tokens, and manages
// TOTP two-factor enrolment.
package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"tradedesk/internal/model"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const minPasswordLen = 8

// ResetRequestedMessage is returned whether or not the email is registered.
const ResetRequestedMessage = "If the email is registered, a password reset link will be sent."

// Service implements the authentication flows.
type Service struct {
	users  model.UserStore
	tokens *Tokens
	issuer string
	now    func() time.Time

	// OnToken delivers verification and reset tokens out of band.
	OnToken func(email, typ, token string)
}

// NewService creates a Service.
func NewService(users model.UserStore, tokens *Tokens, issuer string) *Service {
	return &Service{users: users, tokens: tokens, issuer: issuer, now: time.Now}
}

// Tokens exposes the token signer.
func (s *Service) Tokens() *Tokens { return s.tokens }

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	FullName        string `json:"full_name"`
}

// LoginInput is the sign-in form.
type LoginInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	TOTPCode   string `json:"totp_code"`
}

// TokenResponse is returned by Login.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Session describes the caller's token.
type Session struct {
	User       *model.User `json:"user"`
	ExpiresAt  time.Time   `json:"expires_at"`
	RememberMe bool        `json:"remember_me"`
	IsActive   bool        `json:"is_active"`
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func validEmail(email string) bool {
	a, err := mail.ParseAddress(email)
	return err == nil && a.Address == email
}

// Register creates an active, unverified user and returns it with an email
// verification token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, string, error) {
	email := normalizeEmail(in.Email)
	var errs []string
	if !validEmail(email) {
		errs = append(errs, "a valid email is required")
	}
	if len(in.Password) < minPasswordLen {
		errs = append(errs, "password must be at least 8 characters")
	}
	if in.Password != in.ConfirmPassword {
		errs = append(errs, "Passwords do not match")
	}
	if len(errs) > 0 {
		return nil, "", model.Invalid(errs...)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", err
	}
	u := &model.User{
		Email:          email,
		FullName:       strings.TrimSpace(in.FullName),
		HashedPassword: hash,
		IsActive:       true,
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return nil, "", model.E(model.ErrConflict, "Email already registered")
		}
		return nil, "", err
	}

	tok, err := s.tokens.Verification(u.Email)
	if err != nil {
		return nil, "", err
	}
	if s.OnToken != nil {
		s.OnToken(u.Email, TypeEmailVerification, tok)
	}
	return u, tok, nil
}

var errBadCredentials = model.E(model.ErrUnauthorized, "Incorrect email or password")

// Login checks credentials (and the TOTP code when enabled) and issues an
// access token.
func (s *Service) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	u, err := s.users.UserByEmail(ctx, normalizeEmail(in.Email))
	if errors.Is(err, model.ErrNotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !CheckPassword(u.HashedPassword, in.Password) {
		return nil, errBadCredentials
	}
	if !u.IsActive {
		return nil, model.E(model.ErrForbidden, "Inactive user")
	}
	if u.TOTPEnabled {
		if in.TOTPCode == "" {
			return nil, model.E(model.ErrUnauthorized, "Two-factor code required")
		}
		if !s.validCode(u.TOTPSecret, in.TOTPCode) {
			return nil, model.E(model.ErrUnauthorized, "Invalid two-factor code")
		}
	}

	tok, exp, err := s.tokens.Access(u.Email, in.RememberMe)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	u.LastLogin = &now
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return &TokenResponse{AccessToken: tok, TokenType: "bearer", ExpiresAt: exp.UTC()}, nil
}

func tokenError(err error) error {
	return model.E(model.ErrInvalid, titleFirst(err.Error()))
}

func titleFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// VerifyEmail marks the token's user as verified.
func (s *Service) VerifyEmail(ctx context.Context, token string) (*model.User, error) {
	c, err := s.tokens.Parse(token, TypeEmailVerification)
	if err != nil {
		return nil, tokenError(err)
	}
	u, err := s.users.UserByEmail(ctx, c.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return nil, model.E(model.ErrInvalid, "User not found")
	}
	if err != nil {
		return nil, err
	}
	if u.EmailVerified {
		return nil, model.E(model.ErrInvalid, "Email already verified")
	}
	u.EmailVerified = true
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// RequestPasswordReset issues a reset token for a registered email. It
// returns "" for unknown emails; callers must respond identically either way.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	u, err := s.users.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, model.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	tok, err := s.tokens.Reset(u.Email)
	if err != nil {
		return "", err
	}
	if s.OnToken != nil {
		s.OnToken(u.Email, TypePasswordReset, tok)
	}
	return tok, nil
}

// ResetPassword sets a new password from a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, password, confirm string) error {
	if password != confirm {
		return model.E(model.ErrInvalid, "Passwords do not match")
	}
	if len(password) < minPasswordLen {
		return model.E(model.ErrInvalid, "Password must be at least 8 characters")
	}
	c, err := s.tokens.Parse(token, TypePasswordReset)
	if err != nil {
		return tokenError(err)
	}
	u, err := s.users.UserByEmail(ctx, c.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return model.E(model.ErrInvalid, "User not found")
	}
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.HashedPassword = hash
	return s.users.UpdateUser(ctx, u)
}

var errCredentials = model.E(model.ErrUnauthorized, "Could not validate credentials")

// Authenticate resolves a bearer access token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, *Claims, error) {
	c, err := s.tokens.Parse(token, TypeAccess)
	if err != nil {
		return nil, nil, errCredentials
	}
	u, err := s.users.UserByEmail(ctx, c.Subject)
	if errors.Is(err, model.ErrNotFound) {
		return nil, nil, errCredentials
	}
	if err != nil {
		return nil, nil, err
	}
	return u, c, nil
}

// Session describes the given access token.
func (s *Service) Session(ctx context.Context, token string) (*Session, error) {
	u, c, err := s.Authenticate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:       u,
		ExpiresAt:  c.ExpiresAt.Time.UTC(),
		RememberMe: c.RememberMe,
		IsActive:   u.IsActive,
	}, nil
}

// ── TOTP ──

// TOTPSetup is returned when enrolment starts.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
}

func (s *Service) validCode(secret, code string) bool {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, s.now(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// SetupTOTP generates and stores a new secret. Two-factor stays disabled
// until EnableTOTP confirms a code.
func (s *Service) SetupTOTP(ctx context.Context, u *model.User) (*TOTPSetup, error) {
	if u.TOTPEnabled {
		return nil, model.E(model.ErrConflict, "Two-factor authentication is already enabled")
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: s.issuer, AccountName: u.Email})
	if err != nil {
		return nil, err
	}
	u.TOTPSecret = key.Secret()
	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	return &TOTPSetup{Secret: key.Secret(), URL: key.URL()}, nil
}

// EnableTOTP turns on two-factor after checking a code against the pending secret.
func (s *Service) EnableTOTP(ctx context.Context, u *model.User, code string) error {
	if u.TOTPSecret == "" {
		return model.E(model.ErrInvalid, "Two-factor setup has not been started")
	}
	if !s.validCode(u.TOTPSecret, code) {
		return model.E(model.ErrInvalid, "Invalid two-factor code")
	}
	u.TOTPEnabled = true
	return s.users.UpdateUser(ctx, u)
}

// DisableTOTP turns off two-factor after checking a current code.
func (s *Service) DisableTOTP(ctx context.Context, u *model.User, code string) error {
	if !u.TOTPEnabled {
		return model.E(model.ErrInvalid, "Two-factor authentication is not enabled")
	}
	if !s.validCode(u.TOTPSecret, code) {
		return model.E(model.ErrInvalid, "Invalid two-factor code")
	}
	u.TOTPEnabled = false
	u.TOTPSecret = ""
	return s.users.UpdateUser(ctx, u)
}
