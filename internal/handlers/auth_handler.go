package handlers

import (
	"log"
	"net/http"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/services"
)

type AuthHandler struct {
	auth      *services.AuthService
	directory *services.DirectoryService
	validator *services.ValidationHelper
}

func NewAuthHandler(auth *services.AuthService, directory *services.DirectoryService) *AuthHandler {
	return &AuthHandler{
		auth:      auth,
		directory: directory,
		validator: services.NewValidationHelper(),
	}
}

// Login exchanges an enrolled credential for an access token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Signup opens a customer account and logs it in.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	account, err := h.directory.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.auth.IssueToken(account)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Logout(r.Context(), middleware.Token(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logout successful"})
}
