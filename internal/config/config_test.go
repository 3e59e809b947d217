package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 3, cfg.Ledger.SettlementAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Gate.ProofFreshness)
	assert.True(t, cfg.Gate.RequireEnrollment)
	assert.Equal(t, RepaymentExact, cfg.Loan.RepaymentPolicy)
	assert.True(t, cfg.Loan.InstantDisbursement)
	assert.Equal(t, []int{12, 24, 36, 48, 60}, cfg.Loan.AllowedTerms)
	assert.Equal(t, int64(500), cfg.Risk.FraudThreshold)
	assert.Equal(t, "memory", cfg.Store)
}

func TestLoad_EnvOverrides(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	t.Setenv("LOAN_REPAYMENT_POLICY", "partial")
	t.Setenv("RISK_FRAUD_THRESHOLD", "2500")
	viper.BindEnv("loan.repayment_policy", "LOAN_REPAYMENT_POLICY")
	viper.BindEnv("risk.fraud_threshold", "RISK_FRAUD_THRESHOLD")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, RepaymentPartial, cfg.Loan.RepaymentPolicy)
	assert.Equal(t, int64(2500), cfg.Risk.FraudThreshold)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  interface{}
	}{
		{"repayment policy", "loan.repayment_policy", "whatever"},
		{"store backend", "store.backend", "mongo"},
		{"settlement backend", "settlement.backend", "kafka"},
		{"attempts", "ledger.settlement_attempts", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			defer viper.Reset()
			viper.Set(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoanConfig_TermAllowed(t *testing.T) {
	l := LoanConfig{AllowedTerms: []int{12, 24}}
	assert.True(t, l.TermAllowed(12))
	assert.False(t, l.TermAllowed(13))
}

func TestLoad_AdminRequiresPin(t *testing.T) {
	viper.Reset()
	defer viper.Reset()

	viper.Set("admin.address", "ops")
	_, err := Load()
	assert.Error(t, err)

	viper.Set("admin.pin", "9876")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ops", cfg.Admin.Address)
}
