package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

const (
	maxBodyBytes = 1_048_576

	// IdentitySessionHeader carries the token of a fresh identity capture.
	IdentitySessionHeader = "X-Identity-Session"
)

// decodeJSON reads exactly one JSON object into dst, writing the error
// response itself when it fails.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendCodedError(w, "Invalid request body", "invalid_request", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendCodedError(w, "Request body must only contain a single JSON object", "invalid_request", http.StatusBadRequest, nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{models.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{models.ErrSelfTransfer, http.StatusBadRequest, "self_transfer"},
	{models.ErrInvalidTerm, http.StatusBadRequest, "invalid_term"},
	{models.ErrInsufficientFunds, http.StatusUnprocessableEntity, "insufficient_funds"},
	{models.ErrAmountExceedsLimit, http.StatusUnprocessableEntity, "amount_exceeds_limit"},
	{models.ErrInsufficientLiquidity, http.StatusUnprocessableEntity, "insufficient_liquidity"},
	{models.ErrAccountFrozen, http.StatusLocked, "account_frozen"},
	{models.ErrIdentityNotVerified, http.StatusForbidden, "identity_not_verified"},
	{models.ErrRiskRejected, http.StatusForbidden, "risk_rejected"},
	{models.ErrPermissionDenied, http.StatusForbidden, "permission_denied"},
	{models.ErrLoanAlreadyOutstanding, http.StatusConflict, "loan_already_outstanding"},
	{models.ErrLoanNotActive, http.StatusConflict, "loan_not_active"},
	{models.ErrDuplicateAccount, http.StatusConflict, "duplicate_account"},
	{models.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
	{models.ErrLoanNotFound, http.StatusNotFound, "loan_not_found"},
	{models.ErrTransferNotFound, http.StatusNotFound, "transfer_not_found"},
	{models.ErrSettlementTimeout, http.StatusGatewayTimeout, "settlement_timeout"},
	{services.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
	{services.ErrInvalidToken, http.StatusUnauthorized, "unauthorized"},
	{services.ErrQRExpired, http.StatusGone, "qr_expired"},
}

// writeServiceError maps a domain error to its status and code. Anything
// unrecognised is logged and reported as an internal error.
func writeServiceError(w http.ResponseWriter, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		services.SendCodedError(w, "Validation failed", "validation_failed", http.StatusBadRequest, err)
		return
	}

	status, code, msg := classify(err)
	services.SendCodedError(w, msg, code, status, nil)
}

func classify(err error) (status int, code, msg string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, err.Error()
		}
	}
	log.Printf("[HTTP] unhandled error: %v", err)
	return http.StatusInternalServerError, "internal_error", "Internal server error"
}

func unauthorized(w http.ResponseWriter) {
	services.SendCodedError(w, "Unauthorized", "unauthorized", http.StatusUnauthorized, nil)
}

// queryLimit parses ?limit= within [1, max], defaulting to def.
func queryLimit(r *http.Request, def, max int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
