// Package settlement talks to the external environment that executes
// ledger mutations and hands back a reference and a commit sequence.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Operation string

const (
	OpCreditBalance Operation = "credit_balance"
	OpDebit         Operation = "debit"
	OpTransfer      Operation = "transfer"
	OpRegisterLoan  Operation = "register_loan"
	OpRepayLoan     Operation = "repay_loan"
	OpSetFrozen     Operation = "set_frozen"
)

func (o Operation) Valid() bool {
	switch o {
	case OpCreditBalance, OpDebit, OpTransfer, OpRegisterLoan, OpRepayLoan, OpSetFrozen:
		return true
	}
	return false
}

var (
	// ErrTransient marks failures that may succeed when resubmitted with the same key.
	ErrTransient      = errors.New("settlement environment unavailable")
	ErrInvalidRequest = errors.New("invalid settlement request")
)

// Request is one mutation submitted for settlement. Key makes the
// submission idempotent: resubmitting a key returns the first receipt.
type Request struct {
	Key          string    `json:"key"`
	Op           Operation `json:"op"`
	Account      string    `json:"account"`
	Counterparty string    `json:"counterparty,omitempty"`
	Amount       int64     `json:"amount"`
	LoanID       string    `json:"loanId,omitempty"`
	Frozen       bool      `json:"frozen,omitempty"`
}

func (r Request) Validate() error {
	switch {
	case r.Key == "":
		return fmt.Errorf("%w: missing key", ErrInvalidRequest)
	case !r.Op.Valid():
		return fmt.Errorf("%w: unknown operation %q", ErrInvalidRequest, r.Op)
	case r.Account == "":
		return fmt.Errorf("%w: missing account", ErrInvalidRequest)
	case r.Amount < 0:
		return fmt.Errorf("%w: negative amount", ErrInvalidRequest)
	case r.Op == OpTransfer && r.Counterparty == "":
		return fmt.Errorf("%w: transfer without counterparty", ErrInvalidRequest)
	}
	return nil
}

type Receipt struct {
	Reference  string    `json:"reference"`
	Sequence   uint64    `json:"sequence"`
	AcceptedAt time.Time `json:"acceptedAt"`
}

// Event is an entry of the environment's own log.
type Event struct {
	Request Request `json:"request"`
	Receipt Receipt `json:"receipt"`
}

func (e Event) involves(account string) bool {
	return account == "" || e.Request.Account == account || e.Request.Counterparty == account
}

type Environment interface {
	Submit(ctx context.Context, req Request) (Receipt, error)
	Events(ctx context.Context, account string) ([]Event, error)
}

func reference(seq uint64) string {
	return fmt.Sprintf("stl-%010d", seq)
}
