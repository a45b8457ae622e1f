package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tradedesk/internal/auth"
	"tradedesk/internal/model"
)

func (s *Server) authRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", s.register)
		r.Post("/verify-email", s.verifyEmail)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Post("/password-reset-request", s.passwordResetRequest)
		r.Post("/password-reset", s.passwordReset)
		r.Get("/session", s.session)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Get("/me", s.me)
			r.With(requireBearer).Post("/2fa/setup", s.totpSetup)
			r.With(requireBearer).Post("/2fa/enable", s.totpEnable)
			r.With(requireBearer).Post("/2fa/disable", s.totpDisable)
		})
	})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !decode(w, r, &in) {
		return
	}
	u, _, err := s.auth.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token string `json:"token"`
	}
	if !decode(w, r, &in) {
		return
	}
	if _, err := s.auth.VerifyEmail(r.Context(), in.Token); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Email verified successfully")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if !decode(w, r, &in) {
		return
	}
	tok, err := s.auth.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// logout is stateless: access tokens are not tracked server side.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, "Logout successful. Please clear your stored token.")
}

func (s *Server) passwordResetRequest(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if !decode(w, r, &in) {
		return
	}
	if _, err := s.auth.RequestPasswordReset(r.Context(), in.Email); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, auth.ResetRequestedMessage)
}

func (s *Server) passwordReset(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token           string `json:"token"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if !decode(w, r, &in) {
		return
	}
	if err := s.auth.ResetPassword(r.Context(), in.Token, in.NewPassword, in.ConfirmPassword); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Password reset successfully. You can now login with your new password.")
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) {
	tok, isKey := credential(r)
	if tok == "" || isKey {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	sess, err := s.auth.Session(r.Context(), tok)
	if err != nil {
		writeError(w, r, model.E(model.ErrUnauthorized, "Invalid token"))
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, UserFrom(r.Context()))
}

type totpCode struct {
	Code string `json:"code"`
}

func (s *Server) totpSetup(w http.ResponseWriter, r *http.Request) {
	setup, err := s.auth.SetupTOTP(r.Context(), UserFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setup)
}

func (s *Server) totpEnable(w http.ResponseWriter, r *http.Request) {
	var in totpCode
	if !decode(w, r, &in) {
		return
	}
	if err := s.auth.EnableTOTP(r.Context(), UserFrom(r.Context()), in.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Two-factor authentication enabled")
}

func (s *Server) totpDisable(w http.ResponseWriter, r *http.Request) {
	var in totpCode
	if !decode(w, r, &in) {
		return
	}
	if err := s.auth.DisableTOTP(r.Context(), UserFrom(r.Context()), in.Code); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, "Two-factor authentication disabled")
}
