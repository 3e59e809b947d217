package hsm

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Reference string    `json:"reference,omitempty"`
	AccountID string    `json:"account_id"`
	Actor     string    `json:"actor,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Status    string    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// AuditLogger writes security-relevant decisions as JSON lines. It is
// separate from the ledger's audit trail, which records only committed
// mutations.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

// LogDecision records an authorization gate outcome.
func (a *AuditLogger) LogDecision(action, accountID string, amount int64, allowed bool, reason string) {
	status := "ALLOWED"
	if !allowed {
		status = "DENIED"
	}
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "GATE_" + action,
		AccountID: accountID,
		Amount:    amount,
		Status:    status,
		Details:   map[string]string{"reason": reason},
	})
}

func (a *AuditLogger) LogFreeze(actor, accountID string, frozen bool, reference string) {
	eventType := "ACCOUNT_UNFROZEN"
	if frozen {
		eventType = "ACCOUNT_FROZEN"
	}
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: eventType,
		Reference: reference,
		AccountID: accountID,
		Actor:     actor,
		Status:    "SUCCESS",
	})
}

func (a *AuditLogger) LogAdminCredit(actor, accountID string, amount int64, reference string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "ADMIN_CREDIT",
		Reference: reference,
		AccountID: accountID,
		Actor:     actor,
		Amount:    amount,
		Status:    "SUCCESS",
	})
}

func (a *AuditLogger) LogLoanStatus(loanID, accountID, status string, balance int64) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "LOAN_STATUS",
		Reference: loanID,
		AccountID: accountID,
		Amount:    balance,
		Status:    status,
	})
}

func (a *AuditLogger) LogError(reference, accountID string, err error) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "ERROR",
		Reference: reference,
		AccountID: accountID,
		Status:    "FAILED",
		Details:   map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) LogOperation(accountID, operation, details string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: operation,
		AccountID: accountID,
		Status:    "SUCCESS",
		Details:   map[string]string{"details": details},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
