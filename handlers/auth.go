package handlers

import (
	"errors"
	"net/http"

	"workhub/httputil"
	"workhub/identity"
	"workhub/middleware"
	"workhub/models"
)

type AuthHandler struct {
	Deps
}

func NewAuthHandler(d Deps) *AuthHandler {
	return &AuthHandler{Deps: d}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.Identity.Authenticate(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid credentials")
		return
	case errors.Is(err, identity.ErrLocked):
		httputil.WriteErrorMessage(w, http.StatusLocked, "account temporarily locked, try again later")
		return
	case err != nil:
		writeError(w, r, h.Log, err)
		return
	}

	h.startSession(w, r, user, http.StatusOK)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	middleware.ClearTokenCookie(w)
	httputil.WriteNoContent(w)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req identity.RegisterInput
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.Identity.Register(r.Context(), req)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	h.Log.WithContext(r.Context()).Info("user registered", "user_id", user.ID, "username", user.Username)
	h.startSession(w, r, user, http.StatusCreated)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, currentUser(r))
}

// MyAccess returns the caller's resolved access scope.
func (h *AuthHandler) MyAccess(w http.ResponseWriter, r *http.Request) {
	a, err := h.Resolver.GetUserAccess(r.Context(), currentUser(r).ID)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"access":       a,
		"can_view_all": a.CanViewAll(),
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	err := h.Identity.ChangePassword(r.Context(), currentUser(r).ID, req.CurrentPassword, req.NewPassword)
	if errors.Is(err, identity.ErrInvalidCredentials) {
		httputil.WriteBadRequest(w, "current password is incorrect")
		return
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

type resetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset always answers 202 so callers cannot discover which
// emails are registered.
func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.Identity.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"status": "if the email is registered, a reset code has been sent",
	})
}

type resetConfirmRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	err := h.Identity.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword)
	if errors.Is(err, identity.ErrInvalidCode) {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, user *models.User, status int) {
	token, err := h.Tokens.Issue(user)
	if err != nil {
		writeError(w, r, h.Log, err)
		return
	}

	middleware.SetTokenCookie(w, token, int(h.Tokens.Expiration().Seconds()), h.Config.IsProduction())
	httputil.WriteJSON(w, status, sessionResponse{Token: token, User: user})
}
