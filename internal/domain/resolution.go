package domain

import (
	"github.com/shopspring/decimal"
)

// CodeRequest is the input of billing-code resolution.
type CodeRequest struct {
	ServiceType        ServiceType `json:"serviceType"`
	PrimaryDiagnosis   string      `json:"primaryDiagnosis"`
	SecondaryDiagnoses []string    `json:"secondaryDiagnoses,omitempty"`
	Procedures         []string    `json:"procedures,omitempty"`
}

// Strategy names the fallback level that produced a billing code.
type Strategy string

const (
	StrategyExactFull        Strategy = "exact_full_match"
	StrategyMainProcedure    Strategy = "main_procedure_match"
	StrategyDiagnosisOnly    Strategy = "diagnosis_only_match"
	StrategySimilarProcedure Strategy = "similar_procedure_match"
	StrategyRuleBased        Strategy = "rule_based"
)

// Level returns the 1-based position of the strategy in the fallback order.
func (s Strategy) Level() int {
	switch s {
	case StrategyExactFull:
		return 1
	case StrategyMainProcedure:
		return 2
	case StrategyDiagnosisOnly:
		return 3
	case StrategySimilarProcedure:
		return 4
	case StrategyRuleBased:
		return 5
	}
	return 0
}

// Empirical reports whether the code came from historical claims.
func (s Strategy) Empirical() bool {
	return s != StrategyRuleBased && s.Level() > 0
}

// CodeResolution is the result of billing-code resolution.
type CodeResolution struct {
	BillingCode string   `json:"billingCode"`
	Strategy    Strategy `json:"strategy"`
	// Confidence is on a 0..100 scale.
	Confidence float64 `json:"confidence"`
	Detail     string  `json:"detail,omitempty"`
	// CacheHit is informational only and never affects the code.
	CacheHit bool `json:"cacheHit"`
}

// Billing code segments used by rule-based construction.
const (
	DefaultCategory     = "Z"
	DefaultSpecificCode = "10"
	SeverityInpatient   = "I"
	SeverityOutpatient  = "0"
)

// TariffQuote is a resolved price for a billing code at a facility.
type TariffQuote struct {
	BillingCode string          `json:"billingCode"`
	Description string          `json:"description,omitempty"`
	Facility    Facility        `json:"facility"`
	Price       decimal.Decimal `json:"price"`
}
