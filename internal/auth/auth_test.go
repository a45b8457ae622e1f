package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tradedesk/internal/model"
	"tradedesk/internal/store/sqlite"

	"github.com/pquerna/otp/totp"
)

func newTestService(t *testing.T) (*Service, *sqlite.Store) {
	t.Helper()
	st, err := sqlite.New(filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	tokens := NewTokens("test-secret-key-0123456789", 30*time.Minute, 30*24*time.Hour)
	return NewService(st, tokens, "TradeDesk"), st
}

func register(t *testing.T, s *Service, email string) *model.User {
	t.Helper()
	u, _, err := s.Register(context.Background(), RegisterInput{
		Email: email, Password: "password123", ConfirmPassword: "password123", FullName: "Test User",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return u
}

func TestPassword_HashAndCheck(t *testing.T) {
	long := strings.Repeat("x", 100)
	h, err := HashPassword(long)
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword(h, long) {
		t.Error("long password should verify")
	}
	if CheckPassword(h, long[:72]) {
		t.Error("72-byte prefix must not verify")
	}
}

func TestRegister_Validation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := s.Register(ctx, RegisterInput{Email: "bad", Password: "short", ConfirmPassword: "other"})
	var ve *model.ValidationError
	if !errors.As(err, &ve) || len(ve.Errors) != 3 {
		t.Fatalf("err = %v, want 3 validation errors", err)
	}

	u := register(t, s, "New@Example.com")
	if u.Email != "new@example.com" || !u.IsActive || u.EmailVerified {
		t.Errorf("registered user = %+v", u)
	}
	_, _, err = s.Register(ctx, RegisterInput{Email: "new@example.com", Password: "password123", ConfirmPassword: "password123"})
	if !errors.Is(err, model.ErrConflict) || err.Error() != "Email already registered" {
		t.Errorf("duplicate err = %v", err)
	}
}

func TestLogin_AndSession(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	register(t, s, "a@example.com")

	if _, err := s.Login(ctx, LoginInput{Email: "a@example.com", Password: "wrong-password"}); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := s.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "password123"}); !errors.Is(err, model.ErrUnauthorized) {
		t.Errorf("unknown user err = %v", err)
	}

	tok, err := s.Login(ctx, LoginInput{Email: "A@example.com", Password: "password123", RememberMe: true})
	if err != nil {
		t.Fatal(err)
	}
	if tok.TokenType != "bearer" || time.Until(tok.ExpiresAt) < 29*24*time.Hour {
		t.Errorf("token = %+v", tok)
	}

	sess, err := s.Session(ctx, tok.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if !sess.RememberMe || sess.User.Email != "a@example.com" || !sess.IsActive || sess.User.LastLogin == nil {
		t.Errorf("session = %+v", sess)
	}

	u, _ := st.UserByEmail(ctx, "a@example.com")
	u.IsActive = false
	st.UpdateUser(ctx, u)
	if _, err := s.Login(ctx, LoginInput{Email: "a@example.com", Password: "password123"}); !errors.Is(err, model.ErrForbidden) {
		t.Errorf("inactive err = %v", err)
	}
}

func TestTokens_TypeAndExpiry(t *testing.T) {
	tokens := NewTokens("test-secret-key-0123456789", time.Minute, time.Hour)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tokens.now = func() time.Time { return now }

	access, _, _ := tokens.Access("a@example.com", false)
	reset, _ := tokens.Reset("a@example.com")

	if _, err := tokens.Parse(reset, TypeAccess); err == nil {
		t.Error("reset token accepted as access token")
	}
	if c, err := tokens.Parse(access, TypeAccess); err != nil || c.Subject != "a@example.com" {
		t.Errorf("Parse = %+v, %v", c, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := tokens.Parse(access, TypeAccess); err == nil {
		t.Error("expired token accepted")
	}
	if _, err := tokens.Parse(reset, TypePasswordReset); err != nil {
		t.Errorf("reset token within 1h rejected: %v", err)
	}

	other := NewTokens("another-secret-key-abcdef", time.Minute, time.Hour)
	other.now = tokens.now
	forged, _, _ := other.Access("a@example.com", false)
	if _, err := tokens.Parse(forged, TypeAccess); err == nil {
		t.Error("token signed with a different key accepted")
	}
}

func TestVerifyEmailAndPasswordReset(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	var delivered []string
	s.OnToken = func(email, typ, token string) { delivered = append(delivered, typ) }

	_, vtok, err := s.Register(ctx, RegisterInput{Email: "r@example.com", Password: "password123", ConfirmPassword: "password123"})
	if err != nil {
		t.Fatal(err)
	}
	u, err := s.VerifyEmail(ctx, vtok)
	if err != nil || !u.EmailVerified {
		t.Fatalf("VerifyEmail = %+v, %v", u, err)
	}
	if _, err := s.VerifyEmail(ctx, vtok); err == nil || err.Error() != "Email already verified" {
		t.Errorf("second verify err = %v", err)
	}
	if _, err := s.VerifyEmail(ctx, "garbage"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("garbage token err = %v", err)
	}

	if tok, err := s.RequestPasswordReset(ctx, "ghost@example.com"); tok != "" || err != nil {
		t.Errorf("unknown email reset = %q, %v", tok, err)
	}
	rtok, err := s.RequestPasswordReset(ctx, "r@example.com")
	if err != nil || rtok == "" {
		t.Fatalf("RequestPasswordReset = %q, %v", rtok, err)
	}
	if err := s.ResetPassword(ctx, rtok, "newpassword1", "mismatch"); err == nil {
		t.Error("mismatched confirmation accepted")
	}
	if err := s.ResetPassword(ctx, vtok, "newpassword1", "newpassword1"); err == nil || err.Error() != "Invalid token type" {
		t.Errorf("verification token used for reset err = %v", err)
	}
	if err := s.ResetPassword(ctx, rtok, "newpassword1", "newpassword1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Login(ctx, LoginInput{Email: "r@example.com", Password: "newpassword1"}); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if len(delivered) != 2 || delivered[0] != TypeEmailVerification || delivered[1] != TypePasswordReset {
		t.Errorf("delivered = %v", delivered)
	}
}

func TestTOTP_EnrolLoginDisable(t *testing.T) {
	s, st := newTestService(t)
	ctx := context.Background()
	u := register(t, s, "mfa@example.com")

	setup, err := s.SetupTOTP(ctx, u)
	if err != nil {
		t.Fatal(err)
	}
	if setup.Secret == "" || !strings.HasPrefix(setup.URL, "otpauth://totp/") {
		t.Fatalf("setup = %+v", setup)
	}
	if err := s.EnableTOTP(ctx, u, "000000x"); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("bad code err = %v", err)
	}

	code, err := totp.GenerateCode(setup.Secret, s.now())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.EnableTOTP(ctx, u, code); err != nil {
		t.Fatal(err)
	}
	stored, _ := st.UserByEmail(ctx, "mfa@example.com")
	if !stored.TOTPEnabled {
		t.Fatal("TOTP not persisted")
	}

	if _, err := s.Login(ctx, LoginInput{Email: "mfa@example.com", Password: "password123"}); err == nil || err.Error() != "Two-factor code required" {
		t.Errorf("login without code err = %v", err)
	}
	if _, err := s.Login(ctx, LoginInput{Email: "mfa@example.com", Password: "password123", TOTPCode: code}); err != nil {
		t.Errorf("login with code: %v", err)
	}

	if err := s.DisableTOTP(ctx, stored, code); err != nil {
		t.Fatal(err)
	}
	if stored.TOTPEnabled || stored.TOTPSecret != "" {
		t.Errorf("after disable = %+v", stored)
	}
}
