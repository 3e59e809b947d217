package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/banksec/backend/internal/middleware"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

type TransferHandler struct {
	transactions *services.TransactionService
	capture      *services.CaptureService
	iso20022     *services.ISO20022Service
	validator    *services.ValidationHelper
}

func NewTransferHandler(transactions *services.TransactionService, capture *services.CaptureService, iso20022 *services.ISO20022Service) *TransferHandler {
	return &TransferHandler{
		transactions: transactions,
		capture:      capture,
		iso20022:     iso20022,
		validator:    services.NewValidationHelper(),
	}
}

// rejectedTransfer carries the stored record of a refused or failed attempt.
type rejectedTransfer struct {
	services.ErrorResponse
	Transfer *models.Transfer `json:"transfer"`
}

// identityProof resolves the identity session header, if present.
func identityProof(r *http.Request, capture *services.CaptureService) *models.IdentityProof {
	token := r.Header.Get(IdentitySessionHeader)
	if token == "" {
		return nil
	}
	proof := capture.Proof(r.Context(), token)
	return &proof
}

// Create sends money from the caller to another account. Rejected and
// failed attempts are recorded and reported with their verdict.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	var req services.TransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		writeServiceError(w, err)
		return
	}
	req.From = userID
	req.Proof = identityProof(r, h.capture)

	record, err := h.transactions.Transfer(r.Context(), req)
	if err != nil && record != nil {
		status, code, msg := classify(err)
		writeJSON(w, status, rejectedTransfer{
			ErrorResponse: services.ErrorResponse{Error: msg, Code: code},
			Transfer:      record,
		})
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	if userID == "" {
		unauthorized(w)
		return
	}

	transfers, err := h.transactions.ListForAccount(r.Context(), userID, queryLimit(r, 50, 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": transfers})
}

func (h *TransferHandler) Get(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transactions.Get(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// ISO20022 renders the transfer as a pacs message.
func (h *TransferHandler) ISO20022(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.transactions.Get(r.Context(), chi.URLParam(r, "id"), middleware.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	export, err := h.iso20022.Export(transfer)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "xml" {
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte(export.XML))
		return
	}
	writeJSON(w, http.StatusOK, export)
}
