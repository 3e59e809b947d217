package handlers

import (
	"net/http"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

type AuditHandler struct {
	trail *services.AuditTrail
}

func NewAuditHandler(trail *services.AuditTrail) *AuditHandler {
	return &AuditHandler{trail: trail}
}

// List returns the caller's audit entries newest first. Admins may pass
// ?account= to read any account, or omit it for the whole ledger.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	q := services.AuditQuery{
		Account: userID,
		Kind:    models.AuditKind(r.URL.Query().Get("kind")),
		Limit:   queryLimit(r, 50, 500),
	}
	if q.Kind != "" && !q.Kind.Valid() {
		services.SendCodedError(w, "Unknown audit kind", "invalid_request", http.StatusBadRequest, nil)
		return
	}
	if middleware.Role(r.Context()) == models.RoleAdmin {
		q.Account = r.URL.Query().Get("account")
	}

	entries := make([]models.AuditEntry, 0, q.Limit)
	for e, err := range h.trail.Query(r.Context(), q) {
		if err != nil {
			writeServiceError(w, err)
			return
		}
		entries = append(entries, e)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
