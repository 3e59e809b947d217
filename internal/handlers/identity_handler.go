package handlers

import (
	"net/http"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/services"
)

type IdentityHandler struct {
	directory *services.DirectoryService
	capture   *services.CaptureService
	validator *services.ValidationHelper
}

func NewIdentityHandler(directory *services.DirectoryService, capture *services.CaptureService) *IdentityHandler {
	return &IdentityHandler{
		directory: directory,
		capture:   capture,
		validator: services.NewValidationHelper(),
	}
}

// Enroll replaces the caller's identity credential.
func (h *IdentityHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	var req services.EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.directory.Enroll(r.Context(), userID, req.Method, req.Sample); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "method": req.Method})
}

// Authenticate runs an identity capture. A successful capture returns the
// session token to send as X-Identity-Session on money-moving calls.
func (h *IdentityHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	var req services.CaptureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	req.Account = userID

	result, err := h.capture.Authenticate(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, result)
}

func (h *IdentityHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	history, err := h.capture.History(r.Context(), userID, queryLimit(r, 20, 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": history})
}
