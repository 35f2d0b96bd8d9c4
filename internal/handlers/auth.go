// Package handlers exposes the HTTP surface: the auth lifecycle endpoints,
// the superadmin admin endpoint, and operational routes.
package handlers

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wayfarerhq/wayfarer/internal/auth"
	"github.com/wayfarerhq/wayfarer/internal/metrics"
	"github.com/wayfarerhq/wayfarer/internal/middleware"
	"github.com/wayfarerhq/wayfarer/internal/models"
	"github.com/wayfarerhq/wayfarer/internal/permission"
)

const minPasswordLength = 8

// AuthHandler serves the auth lifecycle endpoints.
type AuthHandler struct {
	svc    *auth.Service
	perms  *permission.Checker
	mailer Mailer
	log    zerolog.Logger
}

// NewAuthHandler wires an AuthHandler. A nil mailer falls back to LogMailer.
func NewAuthHandler(svc *auth.Service, perms *permission.Checker, mailer Mailer, log zerolog.Logger) *AuthHandler {
	if mailer == nil {
		mailer = LogMailer{Log: log}
	}
	return &AuthHandler{svc: svc, perms: perms, mailer: mailer, log: log}
}

type sessionPayload struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	IsSuperAdmin bool         `json:"isSuperAdmin"`
}

func sessionData(sess *auth.Session) sessionPayload {
	return sessionPayload{
		User:         sess.User,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		IsSuperAdmin: sess.IsSuperAdmin,
	}
}

func device(r *http.Request) auth.Device {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	return auth.Device{UserAgent: r.UserAgent(), IP: ip}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if !validEmail(req.Email) {
		respondError(w, http.StatusBadRequest, "a valid email is required")
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	sess, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     strings.TrimSpace(req.Name),
		Phone:    strings.TrimSpace(req.Phone),
	}, device(r))
	if err != nil {
		metrics.Registrations.WithLabelValues("failure").Inc()
		respondServiceError(w, err)
		return
	}
	metrics.Registrations.WithLabelValues("success").Inc()

	if sess.User.VerificationToken != nil {
		if merr := h.mailer.SendVerification(r.Context(), sess.User.Email, *sess.User.VerificationToken); merr != nil {
			h.log.Error().Err(merr).Str("email", sess.User.Email).Msg("verification email not sent")
		}
	}

	respond(w, http.StatusCreated, "registered", sessionData(sess))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sess, err := h.svc.Login(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password, device(r))
	if err != nil {
		metrics.Logins.WithLabelValues(loginOutcome(err)).Inc()
		respondServiceError(w, err)
		return
	}
	metrics.Logins.WithLabelValues("success").Inc()

	respond(w, http.StatusOK, "logged in", sessionData(sess))
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil || req.RefreshToken == "" {
		respondError(w, http.StatusBadRequest, "refreshToken is required")
		return
	}

	access, err := h.svc.Refresh(r.Context(), req.RefreshToken, device(r))
	if err != nil {
		metrics.Refreshes.WithLabelValues("rejected").Inc()
		respondServiceError(w, err)
		return
	}
	metrics.Refreshes.WithLabelValues("success").Inc()

	respond(w, http.StatusOK, "token refreshed", map[string]string{"accessToken": access})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout ends the session named by the refresh token, or every session when
// none is supplied. The presented access token is blacklisted either way.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req logoutRequest
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	accessToken, _ := bearerToken(r.Header.Get("Authorization"))
	if err := h.svc.Logout(r.Context(), principal.UserID, principal.Email, req.RefreshToken, accessToken); err != nil {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, "logged out", nil)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := h.svc.ChangePassword(r.Context(), principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, "password changed, all sessions revoked", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword always answers 200: the response must not reveal whether
// the address is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	resetToken, err := h.svc.ForgotPassword(r.Context(), email)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if resetToken != "" {
		if merr := h.mailer.SendPasswordReset(r.Context(), email, resetToken); merr != nil {
			h.log.Error().Err(merr).Str("email", email).Msg("password reset email not sent")
		}
	}

	respond(w, http.StatusOK, "if the email is registered, a reset link has been sent", nil)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil || req.Token == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		respondError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, "password reset, all sessions revoked", nil)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	verificationToken := chi.URLParam(r, "token")
	if verificationToken == "" {
		respondError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.svc.VerifyEmail(r.Context(), verificationToken); err != nil {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, "email verified", nil)
}

type resendVerificationRequest struct {
	Email string `json:"email"`
}

// ResendVerification mirrors ForgotPassword: the response never reveals
// whether the address exists or is already verified.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req resendVerificationRequest
	if err := decode(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	verificationToken, err := h.svc.ResendVerification(r.Context(), email)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if verificationToken != "" {
		if merr := h.mailer.SendVerification(r.Context(), email, verificationToken); merr != nil {
			h.log.Error().Err(merr).Str("email", email).Msg("verification email not sent")
		}
	}

	respond(w, http.StatusOK, "if the email is registered, a verification link has been sent", nil)
}

// AssignSuperAdmin grants the global superadmin relation. Reachable only
// behind RequireSuperAdmin.
func (h *AuthHandler) AssignSuperAdmin(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	if err := h.perms.AssignSuperAdmin(r.Context(), userID.String()); err != nil {
		respondServiceError(w, err)
		return
	}

	respond(w, http.StatusOK, "superadmin granted", nil)
}

func loginOutcome(err error) string {
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return "invalid_credentials"
	}
	return "error"
}

func validEmail(email string) bool {
	at := strings.IndexByte(email, '@')
	return at > 0 && at < len(email)-1 && !strings.ContainsAny(email, " \t")
}

func bearerToken(value string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(value, prefix) || len(value) == len(prefix) {
		return "", false
	}
	return value[len(prefix):], true
}
