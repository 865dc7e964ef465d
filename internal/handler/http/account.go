package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gitrueng/user-management-app/internal/auth"
	"github.com/gitrueng/user-management-app/internal/service"
	apperrors "github.com/gitrueng/user-management-app/pkg/errors"
	"github.com/gitrueng/user-management-app/pkg/httputil"
	"github.com/gitrueng/user-management-app/pkg/pagination"
	"github.com/gitrueng/user-management-app/pkg/validator"
)

// AccountHandler serves the /user endpoints.
type AccountHandler struct {
	service *service.AccountService
	logger  *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(svc *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SignupRequest is the JSON body of POST /user/signup. Usernames may not
// collide with the static segments under /user, which GET /user/{user} could
// not address. Passwords only carry bcrypt's 72-byte ceiling.
type SignupRequest struct {
	Username    string `json:"username" validate:"required,alphanum,min=3,max=32,noneof=login signup verify reset get update"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,max=72"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
}

// LoginRequest is the JSON body of POST /user/login.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ResetPasswordRequest is the JSON body of POST /user/reset.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

// UpdateAccountRequest is the JSON body of PUT /user/update. Omitted fields
// are left unchanged.
type UpdateAccountRequest struct {
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	PhoneNumber string `json:"phone_number" validate:"omitempty,e164"`
	Email       string `json:"email" validate:"omitempty,email"`
	Password    string `json:"password" validate:"omitempty,max=72"`
}

// MessageResponse is the body of endpoints that only acknowledge.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Handlers ---

// Signup handles POST /user/signup
func (h *AccountHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	account, err := h.service.Signup(r.Context(), service.SignupInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}

// Login handles POST /user/login. The session token is returned raw in the
// Authorization response header.
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	_, token, account, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Authorization", token)
	httputil.WriteJSON(w, http.StatusOK, account)
}

// VerifyEmail handles GET /user/verify/email?token=
func (h *AccountHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("token query parameter is required"), h.logger)
		return
	}

	account, err := h.service.VerifyEmail(r.Context(), token)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}

// RequestPasswordReset handles GET /user/reset/{email}. It answers the same
// way whether or not the address is registered.
func (h *AccountHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RequestPasswordReset(r.Context(), chi.URLParam(r, "email")); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MessageResponse{
		Message: "If the email is registered, a password reset link has been sent",
	})
}

// ResetPassword handles POST /user/reset
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password Reset Successfully"})
}

// CurrentAccount handles GET /user/get
func (h *AccountHandler) CurrentAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.NotAuthenticated(), h.logger)
		return
	}

	account, err := h.service.CurrentAccount(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}

// UpdateAccount handles PUT /user/update
func (h *AccountHandler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.NotAuthenticated(), h.logger)
		return
	}

	var req UpdateAccountRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	account, err := h.service.UpdateAccount(r.Context(), id, service.UpdateInput{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Email:       req.Email,
		Password:    req.Password,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}

// ListAccounts handles GET /user/?page=&per_page=
func (h *AccountHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ListAccounts(r.Context(), pagination.FromRequest(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// FindByUsername handles GET /user/{user}
func (h *AccountHandler) FindByUsername(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.FindByUsername(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, account)
}

// DeleteAccount handles DELETE /user/{user}, where the segment is the
// account ID.
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParseUUID(chi.URLParam(r, "user"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "User Deleted Successfully"})
}
