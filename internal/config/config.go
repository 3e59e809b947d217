package config

import (
	"fmt"
	"log"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RateLimit       float64 // requests per second per subject on money-moving routes
	RateBurst       int
}

type LedgerConfig struct {
	SettlementTimeout  time.Duration
	SettlementAttempts int
	SettlementBackoff  time.Duration
}

type GateConfig struct {
	IdentityTimeout   time.Duration
	RiskTimeout       time.Duration
	ProofFreshness    time.Duration
	RequireEnrollment bool
}

type LoanConfig struct {
	MaxAmount           int64
	AllowedTerms        []int
	InterestRate        float64
	LiquidityCap        int64
	InstantDisbursement bool
	RepaymentPolicy     string
	DefaultAfter        time.Duration
	SweepSchedule       string
}

type RiskConfig struct {
	URL            string
	FraudThreshold int64
}

type IdentityConfig struct {
	MinConfidence float64
	LanguageCode  string
}

// AdminConfig bootstraps the operator account on startup. Empty Address
// skips it.
type AdminConfig struct {
	Address string
	Pin     string
}

type JWTConfig struct {
	SecretKey   string
	ExpiryHours int
}

type Config struct {
	Server     ServerConfig
	Ledger     LedgerConfig
	Gate       GateConfig
	Loan       LoanConfig
	Risk       RiskConfig
	Identity   IdentityConfig
	JWT        JWTConfig
	Admin      AdminConfig
	HSMKey     string
	HSMSalt    string
	Store      string // memory | postgres
	Settlement string // memory | redis
}

const (
	RepaymentExact   = "exact"
	RepaymentPartial = "partial"
)

// Init points viper at the .env file and binds the environment overrides.
func Init() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	bindings := map[string]string{
		"database.host":     "DATABASE_HOST",
		"database.port":     "DATABASE_PORT",
		"database.user":     "DATABASE_USER",
		"database.password": "DATABASE_PASSWORD",
		"database.name":     "DATABASE_NAME",
		"database.ssl_mode": "DATABASE_SSL_MODE",

		"redis.host":     "REDIS_HOST",
		"redis.port":     "REDIS_PORT",
		"redis.password": "REDIS_PASSWORD",
		"redis.db":       "REDIS_DB",

		"server.port":          "PORT",
		"hsm.master_key":       "HSM_MASTER_KEY",
		"hsm.salt":             "HSM_SALT",
		"jwt.secret_key":       "JWT_SECRET_KEY",
		"jwt.expiry_hours":     "JWT_EXPIRY_HOURS",
		"store.backend":        "STORE_BACKEND",
		"settlement.backend":   "SETTLEMENT_BACKEND",
		"risk.url":             "RISK_URL",
		"admin.address":        "ADMIN_ADDRESS",
		"admin.pin":            "ADMIN_PIN",
		"risk.fraud_threshold": "RISK_FRAUD_THRESHOLD",

		"ledger.settlement_timeout":  "LEDGER_SETTLEMENT_TIMEOUT",
		"ledger.settlement_attempts": "LEDGER_SETTLEMENT_ATTEMPTS",
		"gate.proof_freshness":       "GATE_PROOF_FRESHNESS",
		"gate.require_enrollment":    "GATE_REQUIRE_ENROLLMENT",
		"loan.max_amount":            "LOAN_MAX_AMOUNT",
		"loan.interest_rate":         "LOAN_INTEREST_RATE",
		"loan.liquidity_cap":         "LOAN_LIQUIDITY_CAP",
		"loan.instant_disbursement":  "LOAN_INSTANT_DISBURSEMENT",
		"loan.repayment_policy":      "LOAN_REPAYMENT_POLICY",
		"loan.sweep_schedule":        "LOAN_SWEEP_SCHEDULE",
	}
	for key, env := range bindings {
		viper.BindEnv(key, env)
	}

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)
	viper.SetDefault("server.rate_limit", 5.0)
	viper.SetDefault("server.rate_burst", 10)

	viper.SetDefault("ledger.settlement_timeout", 5*time.Second)
	viper.SetDefault("ledger.settlement_attempts", 3)
	viper.SetDefault("ledger.settlement_backoff", 200*time.Millisecond)

	viper.SetDefault("gate.identity_timeout", 3*time.Second)
	viper.SetDefault("gate.risk_timeout", 3*time.Second)
	viper.SetDefault("gate.proof_freshness", 5*time.Minute)
	viper.SetDefault("gate.require_enrollment", true)

	viper.SetDefault("loan.max_amount", int64(1_000_000))
	viper.SetDefault("loan.allowed_terms", []int{12, 24, 36, 48, 60})
	viper.SetDefault("loan.interest_rate", 0.085)
	viper.SetDefault("loan.liquidity_cap", int64(10_000_000))
	viper.SetDefault("loan.instant_disbursement", true)
	viper.SetDefault("loan.repayment_policy", RepaymentExact)
	viper.SetDefault("loan.default_after", 90*24*time.Hour)
	viper.SetDefault("loan.sweep_schedule", "@every 1h")

	viper.SetDefault("risk.url", "")
	viper.SetDefault("risk.fraud_threshold", int64(500))

	viper.SetDefault("identity.min_confidence", 0.8)
	viper.SetDefault("identity.language_code", "en-US")

	viper.SetDefault("jwt.expiry_hours", 24)
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("settlement.backend", "memory")
}

// Load reads the typed configuration from viper.
func Load() (*Config, error) {
	setDefaults()

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("server.port"),
			ReadTimeout:     viper.GetDuration("server.read_timeout"),
			WriteTimeout:    viper.GetDuration("server.write_timeout"),
			ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
			RateLimit:       viper.GetFloat64("server.rate_limit"),
			RateBurst:       viper.GetInt("server.rate_burst"),
		},
		Ledger: LedgerConfig{
			SettlementTimeout:  viper.GetDuration("ledger.settlement_timeout"),
			SettlementAttempts: viper.GetInt("ledger.settlement_attempts"),
			SettlementBackoff:  viper.GetDuration("ledger.settlement_backoff"),
		},
		Gate: GateConfig{
			IdentityTimeout:   viper.GetDuration("gate.identity_timeout"),
			RiskTimeout:       viper.GetDuration("gate.risk_timeout"),
			ProofFreshness:    viper.GetDuration("gate.proof_freshness"),
			RequireEnrollment: viper.GetBool("gate.require_enrollment"),
		},
		Loan: LoanConfig{
			MaxAmount:           viper.GetInt64("loan.max_amount"),
			AllowedTerms:        viper.GetIntSlice("loan.allowed_terms"),
			InterestRate:        viper.GetFloat64("loan.interest_rate"),
			LiquidityCap:        viper.GetInt64("loan.liquidity_cap"),
			InstantDisbursement: viper.GetBool("loan.instant_disbursement"),
			RepaymentPolicy:     viper.GetString("loan.repayment_policy"),
			DefaultAfter:        viper.GetDuration("loan.default_after"),
			SweepSchedule:       viper.GetString("loan.sweep_schedule"),
		},
		Risk: RiskConfig{
			URL:            viper.GetString("risk.url"),
			FraudThreshold: viper.GetInt64("risk.fraud_threshold"),
		},
		Identity: IdentityConfig{
			MinConfidence: viper.GetFloat64("identity.min_confidence"),
			LanguageCode:  viper.GetString("identity.language_code"),
		},
		JWT: JWTConfig{
			SecretKey:   viper.GetString("jwt.secret_key"),
			ExpiryHours: viper.GetInt("jwt.expiry_hours"),
		},
		Admin: AdminConfig{
			Address: viper.GetString("admin.address"),
			Pin:     viper.GetString("admin.pin"),
		},
		HSMKey:     viper.GetString("hsm.master_key"),
		HSMSalt:    viper.GetString("hsm.salt"),
		Store:      viper.GetString("store.backend"),
		Settlement: viper.GetString("settlement.backend"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Loan.RepaymentPolicy != RepaymentExact && c.Loan.RepaymentPolicy != RepaymentPartial:
		return fmt.Errorf("unknown loan.repayment_policy %q", c.Loan.RepaymentPolicy)
	case c.Loan.InterestRate < 0:
		return fmt.Errorf("loan.interest_rate must not be negative")
	case len(c.Loan.AllowedTerms) == 0:
		return fmt.Errorf("loan.allowed_terms must not be empty")
	case c.Ledger.SettlementAttempts < 1:
		return fmt.Errorf("ledger.settlement_attempts must be at least 1")
	case c.Store != "memory" && c.Store != "postgres":
		return fmt.Errorf("unknown store.backend %q", c.Store)
	case c.Settlement != "memory" && c.Settlement != "redis":
		return fmt.Errorf("unknown settlement.backend %q", c.Settlement)
	case c.Admin.Address != "" && len(c.Admin.Pin) < 4:
		return fmt.Errorf("admin.pin must be at least 4 digits")
	}
	return nil
}

// TermAllowed reports whether a loan term in months is offered.
func (l LoanConfig) TermAllowed(months int) bool {
	for _, t := range l.AllowedTerms {
		if t == months {
			return true
		}
	}
	return false
}
