package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banksec/backend/internal/models"
)

func TestISO20022Service_Export(t *testing.T) {
	service := NewISO20022Service("", "")
	service.now = func() time.Time { return time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC) }
	completed := time.Date(2026, 4, 2, 9, 59, 0, 0, time.UTC)

	t.Run("completed transfer", func(t *testing.T) {
		tr := &models.Transfer{
			ID:            "6f1c2a9e-1b7d-4c3e-9a51-2f0d8e7b4c11",
			From:          "alice",
			To:            "bob",
			Amount:        3050,
			Status:        models.TransferCompleted,
			SettlementRef: "stl-0000000042",
			CompletedAt:   &completed,
		}

		export, err := service.Export(tr)
		require.NoError(t, err)
		assert.Equal(t, MessagePacs008, export.MessageType)
		assert.Equal(t, tr.ID, export.TransferID)
		assert.Contains(t, export.XML, "<?xml")
		assert.Contains(t, export.XML, "stl-0000000042")
		assert.Contains(t, export.XML, "alice")
		assert.Contains(t, export.XML, "bob")
		assert.Contains(t, export.XML, "BANKSECXXXX")
		assert.Contains(t, export.XML, "INDA")

		doc := service.CreatePacs008(tr)
		require.Len(t, doc.CdtTrfTxInf, 1)
		assert.InDelta(t, 30.50, float64(doc.CdtTrfTxInf[0].IntrBkSttlmAmt.Value), 1e-9)
		assert.Equal(t, "USD", string(doc.CdtTrfTxInf[0].IntrBkSttlmAmt.Ccy))
	})

	t.Run("rejected transfer", func(t *testing.T) {
		tr := &models.Transfer{
			ID:         "a1",
			From:       "alice",
			To:         "bob",
			Amount:     100000,
			Status:     models.TransferRejected,
			RiskReason: ReasonAmountThreshold,
		}

		export, err := service.Export(tr)
		require.NoError(t, err)
		assert.Equal(t, MessagePacs002, export.MessageType)
		assert.Contains(t, export.XML, "RJCT")
	})
}

func TestTransferStatusCode(t *testing.T) {
	assert.Equal(t, "ACSC", transferStatusCode(models.TransferCompleted))
	assert.Equal(t, "RJCT", transferStatusCode(models.TransferFailed))
	assert.Equal(t, "PDNG", transferStatusCode(models.TransferPending))
}

func TestShortID(t *testing.T) {
	assert.Len(t, shortID("6f1c2a9e-1b7d-4c3e-9a51-2f0d8e7b4c11"), 35)
	assert.Equal(t, "abc", shortID("abc"))
	assert.Nil(t, max35(""))
}
