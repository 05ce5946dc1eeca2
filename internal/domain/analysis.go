package domain

import (
	"time"
)

// Analysis flags raised for reviewer attention.
const (
	FlagLowConfidence     = "low_confidence"
	FlagTariffUnavailable = "tariff_unavailable"
	FlagConsistencyLow    = "consistency_low"
)

// LowConfidenceThreshold is the confidence below which a billing code is
// flagged for manual review.
const LowConfidenceThreshold = 50.0

// ClaimAnalysis is the merged result of code resolution, tariff lookup
// and consistency scoring for one claim.
type ClaimAnalysis struct {
	ID        string    `json:"id"`
	ClaimID   string    `json:"claimId"`
	Claim     Claim     `json:"claim"`
	Timestamp time.Time `json:"timestamp"`

	Code   *CodeResolution `json:"code"`
	Tariff *TariffQuote    `json:"tariff,omitempty"`
	// TariffError carries the user-facing message when no tariff exists.
	TariffError string `json:"tariffError,omitempty"`

	Consistency *ConsistencyResult `json:"consistency"`

	Flags    []string         `json:"flags,omitempty"`
	Metadata AnalysisMetadata `json:"metadata"`
}

// Flagged reports whether any flag was raised.
func (a *ClaimAnalysis) Flagged() bool {
	return len(a.Flags) > 0
}

// AnalysisMetadata contains processing information.
type AnalysisMetadata struct {
	TraceID       string `json:"traceId,omitempty"`
	ResolveMs     int64  `json:"resolveMs"`
	TariffMs      int64  `json:"tariffMs"`
	ConsistencyMs int64  `json:"consistencyMs"`
	TotalMs       int64  `json:"totalMs"`
	EngineVersion string `json:"engineVersion"`
}

// AnalysisSummary is the compact form published on the event bus.
type AnalysisSummary struct {
	AnalysisID       string   `json:"analysisId"`
	ClaimID          string   `json:"claimId"`
	BillingCode      string   `json:"billingCode"`
	Strategy         Strategy `json:"strategy"`
	Confidence       float64  `json:"confidence"`
	Price            string   `json:"price,omitempty"`
	ConsistencyLevel Level    `json:"consistencyLevel"`
	Flags            []string `json:"flags,omitempty"`
}

// Summary converts an analysis to its bus form.
func (a *ClaimAnalysis) Summary() *AnalysisSummary {
	s := &AnalysisSummary{
		AnalysisID: a.ID,
		ClaimID:    a.ClaimID,
		Flags:      a.Flags,
	}
	if a.Code != nil {
		s.BillingCode = a.Code.BillingCode
		s.Strategy = a.Code.Strategy
		s.Confidence = a.Code.Confidence
	}
	if a.Tariff != nil {
		s.Price = a.Tariff.Price.StringFixed(2)
	}
	if a.Consistency != nil {
		s.ConsistencyLevel = a.Consistency.Level
	}
	return s
}
