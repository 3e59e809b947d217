package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

type AccountHandler struct {
	directory *services.DirectoryService
	loans     *services.LoanService
}

func NewAccountHandler(directory *services.DirectoryService, loans *services.LoanService) *AccountHandler {
	return &AccountHandler{directory: directory, loans: loans}
}

type accountView struct {
	*models.Account
	Loan *models.Loan `json:"outstandingLoan,omitempty"`
}

// publicAccount is what other customers may see of an account.
type publicAccount struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	account, err := h.directory.Lookup(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	loan, err := h.loans.Outstanding(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountView{Account: account, Loan: loan})
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.directory.Lookup(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if account.ID == models.NormalizeAccountID(middleware.UserID(r.Context())) || middleware.Role(r.Context()) == models.RoleAdmin {
		writeJSON(w, http.StatusOK, account)
		return
	}
	writeJSON(w, http.StatusOK, publicAccount{Address: account.ID, Name: account.Profile.Name})
}
