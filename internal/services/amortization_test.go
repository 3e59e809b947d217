package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonthlyPayment(t *testing.T) {
	tests := []struct {
		name      string
		principal int64
		rate      float64
		months    int
		want      int64
	}{
		{"twelve percent one year", 1_000_000, 0.12, 12, 88849},
		{"small loan", 1000, 0.12, 12, 89},
		{"zero rate rounds up", 50, 0, 12, 5},
		{"zero rate even split", 1200, 0, 12, 100},
		{"no term", 500, 0.1, 0, 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthlyPayment(tt.principal, tt.rate, tt.months))
		})
	}
}

func TestMonthlyInterest(t *testing.T) {
	assert.Equal(t, int64(10), MonthlyInterest(1000, 0.12))
	assert.Equal(t, int64(0), MonthlyInterest(1000, 0))
	assert.Equal(t, int64(7083), MonthlyInterest(1_000_000, 0.085))
}

func TestSchedule(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	plan := Schedule(1_000_000, 0.12, 12, start)
	require.Len(t, plan, 12)

	var principal int64
	for i, inst := range plan {
		assert.Equal(t, i+1, inst.Number)
		assert.Equal(t, start.AddDate(0, i+1, 0), inst.Due)
		assert.Equal(t, inst.Principal+inst.Interest, inst.Payment)
		principal += inst.Principal
	}
	assert.Equal(t, int64(1_000_000), principal)
	assert.Equal(t, int64(0), plan[11].Balance)
	assert.Equal(t, int64(10_000), plan[0].Interest)
	assert.Equal(t, int64(88849), plan[0].Payment)
}
