package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/services"
)

type AdminHandler struct {
	directory *services.DirectoryService
	freeze    *services.FreezeService
	loans     *services.LoanService
	validator *services.ValidationHelper
}

func NewAdminHandler(directory *services.DirectoryService, freeze *services.FreezeService, loans *services.LoanService) *AdminHandler {
	return &AdminHandler{
		directory: directory,
		freeze:    freeze,
		loans:     loans,
		validator: services.NewValidationHelper(),
	}
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.directory.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

// Stats serves the dashboard totals.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.directory.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) Credit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int64 `json:"amount" validate:"required,gt=0"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}

	entry, err := h.freeze.Fund(r.Context(), middleware.UserID(r.Context()), chi.URLParam(r, "address"), req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *AdminHandler) Freeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, true)
}

func (h *AdminHandler) Unfreeze(w http.ResponseWriter, r *http.Request) {
	h.setFrozen(w, r, false)
}

func (h *AdminHandler) setFrozen(w http.ResponseWriter, r *http.Request, frozen bool) {
	address := chi.URLParam(r, "address")
	actor := middleware.UserID(r.Context())

	var err error
	if frozen {
		err = h.freeze.Freeze(r.Context(), actor, address)
	} else {
		err = h.freeze.Unfreeze(r.Context(), actor, address)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	account, err := h.directory.Lookup(r.Context(), address)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

func (h *AdminHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.loans.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Sweep runs loan servicing immediately instead of waiting for the schedule.
func (h *AdminHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.loans.Sweep(r.Context(), time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
