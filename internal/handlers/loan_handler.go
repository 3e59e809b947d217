package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

type LoanHandler struct {
	loans     *services.LoanService
	capture   *services.CaptureService
	validator *services.ValidationHelper
}

func NewLoanHandler(loans *services.LoanService, capture *services.CaptureService) *LoanHandler {
	return &LoanHandler{
		loans:     loans,
		capture:   capture,
		validator: services.NewValidationHelper(),
	}
}

func (h *LoanHandler) Apply(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	var req services.LoanApplication
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	req.Account = userID

	loan, err := h.loans.Apply(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if loan.Status == models.LoanPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, loan)
}

func (h *LoanHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	loans, err := h.loans.ListForAccount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loans": loans})
}

// owned loads a loan visible to the caller.
func (h *LoanHandler) owned(r *http.Request) (*models.Loan, error) {
	loan, err := h.loans.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if loan.AccountID != models.NormalizeAccountID(middleware.UserID(r.Context())) && middleware.Role(r.Context()) != models.RoleAdmin {
		return nil, models.ErrLoanNotFound
	}
	return loan, nil
}

func (h *LoanHandler) Get(w http.ResponseWriter, r *http.Request) {
	loan, err := h.owned(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (h *LoanHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	loan, err := h.owned(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	plan, err := h.loans.ScheduleFor(r.Context(), loan.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"loanId": loan.ID, "installments": plan})
}

func (h *LoanHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	var req services.LoanPayment
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	req.LoanID = chi.URLParam(r, "id")
	req.Account = userID
	req.Proof = identityProof(r, h.capture)

	loan, err := h.loans.MakePayment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}
