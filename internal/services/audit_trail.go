package services

import (
	"context"
	"iter"

	"github.com/banksec/backend/internal/hsm"
	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/store"
)

const defaultAuditPageSize = 50

type AuditQuery struct {
	Account string
	Kind    models.AuditKind
	Limit   int // 0 returns the whole history
}

// AuditTrail is the read side of the ledger's committed history. Entries
// are sealed here and written only as part of a ledger commit.
type AuditTrail struct {
	store    store.Store
	signer   *hsm.Signer
	pageSize int
}

func NewAuditTrail(st store.Store, signer *hsm.Signer) *AuditTrail {
	return &AuditTrail{store: st, signer: signer, pageSize: defaultAuditPageSize}
}

func (t *AuditTrail) seal(e *models.AuditEntry) {
	e.Signature = t.signer.SignEntry(e)
}

// Query yields matching entries newest first. Pages are fetched as the
// caller ranges, and every range starts a fresh query.
func (t *AuditTrail) Query(ctx context.Context, q AuditQuery) iter.Seq2[models.AuditEntry, error] {
	q.Account = models.NormalizeAccountID(q.Account)

	return func(yield func(models.AuditEntry, error) bool) {
		var (
			before  uint64
			yielded int
		)
		for {
			size := t.pageSize
			if q.Limit > 0 && q.Limit-yielded < size {
				size = q.Limit - yielded
			}
			if size <= 0 {
				return
			}

			page, err := t.store.AuditPage(ctx, store.AuditFilter{
				AccountID: q.Account,
				Kind:      q.Kind,
				BeforeSeq: before,
				Limit:     size,
			})
			if err != nil {
				yield(models.AuditEntry{}, err)
				return
			}

			for _, e := range page {
				if !yield(e, nil) {
					return
				}
				yielded++
				before = e.Sequence
			}

			if len(page) < size {
				return
			}
		}
	}
}

// Collect drains a query into a slice.
func (t *AuditTrail) Collect(ctx context.Context, q AuditQuery) ([]models.AuditEntry, error) {
	var out []models.AuditEntry
	for e, err := range t.Query(ctx, q) {
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Verify reports whether an entry still carries a valid seal.
func (t *AuditTrail) Verify(e *models.AuditEntry) bool {
	return t.signer.VerifyEntry(e)
}
