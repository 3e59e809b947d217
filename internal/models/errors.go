package models

import (
	"errors"
	"fmt"
)

// Domain errors. Handlers map each one to a distinct response so callers can
// react to the specific gate or invariant that failed.
var (
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrSelfTransfer           = errors.New("cannot transfer to the same account")
	ErrAccountFrozen          = errors.New("account frozen")
	ErrIdentityNotVerified    = errors.New("identity not verified")
	ErrRiskRejected           = errors.New("risk check rejected")
	ErrLoanAlreadyOutstanding = errors.New("loan already outstanding")
	ErrAmountExceedsLimit     = errors.New("amount exceeds loan limit")
	ErrLoanNotActive          = errors.New("loan not active")
	ErrInsufficientLiquidity  = errors.New("insufficient liquidity")
	ErrDuplicateAccount       = errors.New("account already exists")
	ErrAccountNotFound        = errors.New("account not found")
	ErrSettlementTimeout      = errors.New("settlement timeout")

	ErrLoanNotFound     = errors.New("loan not found")
	ErrTransferNotFound = errors.New("transfer not found")
	ErrInvalidTerm      = errors.New("loan term not allowed")
	ErrPermissionDenied = errors.New("permission denied")
)

// RiskRejectedError carries the risk service's reason verbatim.
type RiskRejectedError struct {
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrRiskRejected.Error(), e.Reason)
}

func (e *RiskRejectedError) Is(target error) bool {
	return target == ErrRiskRejected
}

// RiskReason extracts the risk service reason from err, if any.
func RiskReason(err error) (string, bool) {
	var rr *RiskRejectedError
	if errors.As(err, &rr) {
		return rr.Reason, true
	}
	return "", false
}
