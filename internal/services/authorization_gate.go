package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/banksec/backend/internal/config"
	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

type Action string

const (
	ActionTransfer         Action = "transfer"
	ActionLoanPayment      Action = "loan_payment"
	ActionLoanDisbursement Action = "loan_disbursement"
)

func (a Action) needsIdentity() bool {
	return a == ActionTransfer || a == ActionLoanPayment
}

func (a Action) needsRisk() bool {
	return a == ActionTransfer
}

// IdentityVerifier confirms that a proof of presence belongs to the account.
type IdentityVerifier interface {
	VerifyProof(ctx context.Context, accountID string, proof models.IdentityProof) error
}

// RiskScorer rates a transaction amount.
type RiskScorer interface {
	Score(ctx context.Context, amount int64) (models.RiskVerdict, error)
}

type AuthorizationRequest struct {
	Action       Action
	Account      string
	Counterparty string
	Amount       int64
	Proof        *models.IdentityProof
}

type Decision struct {
	IdentityVerified bool
	Verdict          models.RiskVerdict
}

// AuthorizationGate runs identity, then risk, then freeze checks. Any
// failure, timeout or collaborator error denies.
type AuthorizationGate struct {
	store    store.Store
	identity IdentityVerifier
	risk     RiskScorer
	cfg      config.GateConfig
	audit    *hsm.AuditLogger
	now      func() time.Time
}

func NewAuthorizationGate(st store.Store, identity IdentityVerifier, risk RiskScorer, cfg config.GateConfig, audit *hsm.AuditLogger) *AuthorizationGate {
	return &AuthorizationGate{
		store:    st,
		identity: identity,
		risk:     risk,
		cfg:      cfg,
		audit:    audit,
		now:      time.Now,
	}
}

func (g *AuthorizationGate) Authorize(ctx context.Context, req AuthorizationRequest) (Decision, error) {
	req.Account = models.NormalizeAccountID(req.Account)
	req.Counterparty = models.NormalizeAccountID(req.Counterparty)

	decision, err := g.authorize(ctx, req)
	if err != nil {
		reason := err.Error()
		if r, ok := models.RiskReason(err); ok {
			reason = r
		}
		log.Printf("[GATE] %s denied for %s: %v", req.Action, req.Account, err)
		g.audit.LogDecision(string(req.Action), req.Account, req.Amount, false, reason)
		return decision, err
	}

	g.audit.LogDecision(string(req.Action), req.Account, req.Amount, true, decision.Verdict.Verdict)
	return decision, nil
}

func (g *AuthorizationGate) authorize(ctx context.Context, req AuthorizationRequest) (Decision, error) {
	var decision Decision

	account, err := g.store.GetAccount(ctx, req.Account)
	if err != nil {
		return decision, err
	}

	if req.Action.needsIdentity() {
		if err := g.checkIdentity(ctx, account, req.Proof); err != nil {
			return decision, err
		}
		decision.IdentityVerified = true
	}

	if req.Action.needsRisk() {
		verdict, err := g.checkRisk(ctx, req.Amount)
		decision.Verdict = verdict
		if err != nil {
			return decision, err
		}
	}

	// Re-read: a freeze may have landed while the collaborators were running.
	account, err = g.store.GetAccount(ctx, req.Account)
	if err != nil {
		return decision, err
	}
	if account.Frozen {
		return decision, models.ErrAccountFrozen
	}
	if req.Counterparty != "" {
		receiver, err := g.store.GetAccount(ctx, req.Counterparty)
		if err != nil {
			return decision, err
		}
		if receiver.Frozen {
			return decision, models.ErrAccountFrozen
		}
	}

	return decision, nil
}

func (g *AuthorizationGate) checkIdentity(ctx context.Context, account *models.Account, proof *models.IdentityProof) error {
	if proof == nil || !proof.Verified {
		return models.ErrIdentityNotVerified
	}
	if g.cfg.ProofFreshness > 0 && g.now().Sub(proof.CapturedAt) > g.cfg.ProofFreshness {
		return fmt.Errorf("%w: proof expired", models.ErrIdentityNotVerified)
	}
	if g.cfg.RequireEnrollment && !account.Identity.Verified {
		return fmt.Errorf("%w: no enrolled identity", models.ErrIdentityNotVerified)
	}

	_, err := await(ctx, g.cfg.IdentityTimeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.identity.VerifyProof(ctx, account.ID, *proof)
	})
	if err != nil {
		if errors.Is(err, models.ErrIdentityNotVerified) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrIdentityNotVerified, err)
	}
	return nil
}

func (g *AuthorizationGate) checkRisk(ctx context.Context, amount int64) (models.RiskVerdict, error) {
	verdict, err := await(ctx, g.cfg.RiskTimeout, func(ctx context.Context) (models.RiskVerdict, error) {
		return g.risk.Score(ctx, amount)
	})
	if err != nil {
		return models.RiskVerdict{}, &models.RiskRejectedError{Reason: "risk service unavailable"}
	}
	if !verdict.Approved() {
		return verdict, &models.RiskRejectedError{Reason: verdict.Reason}
	}
	return verdict, nil
}

// await runs fn with a deadline and stops waiting when it passes, even if
// fn ignores its context.
func await[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
