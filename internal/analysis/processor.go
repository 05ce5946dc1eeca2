// Package analysis merges code resolution, tariff lookup and consistency
// scoring into one reviewed claim analysis.
package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// EngineVersion is stamped on every analysis.
const EngineVersion = "claimengine-1.0"

// Processor turns the component results into a flagged analysis.
type Processor struct {
	// ConfidenceThreshold is the code confidence below which a claim is
	// flagged for manual coding review.
	ConfidenceThreshold float64

	// FlagLevel is the consistency level that raises consistency_low.
	FlagLevel domain.Level
}

// NewProcessor creates a processor with the default thresholds.
func NewProcessor() *Processor {
	return &Processor{
		ConfidenceThreshold: domain.LowConfidenceThreshold,
		FlagLevel:           domain.LevelLow,
	}
}

// DecisionInput contains everything gathered for one claim.
type DecisionInput struct {
	Claim       domain.Claim
	TraceID     string
	Code        *domain.CodeResolution
	Tariff      *domain.TariffQuote
	TariffErr   error
	Consistency *domain.ConsistencyResult

	ResolveMs     int64
	TariffMs      int64
	ConsistencyMs int64
	StartTime     time.Time
}

// Process builds the analysis and raises flags.
func (p *Processor) Process(_ context.Context, input *DecisionInput) *domain.ClaimAnalysis {
	a := &domain.ClaimAnalysis{
		ID:          uuid.New().String(),
		ClaimID:     input.Claim.ID,
		Claim:       input.Claim,
		Timestamp:   time.Now().UTC(),
		Code:        input.Code,
		Tariff:      input.Tariff,
		Consistency: input.Consistency,
	}

	if input.TariffErr != nil && errors.Is(input.TariffErr, domain.ErrTariffNotFound) {
		a.TariffError = domain.ErrTariffNotFound.Error()
	}
	a.Flags = p.flags(a)

	a.Metadata = domain.AnalysisMetadata{
		TraceID:       input.TraceID,
		ResolveMs:     input.ResolveMs,
		TariffMs:      input.TariffMs,
		ConsistencyMs: input.ConsistencyMs,
		TotalMs:       time.Since(input.StartTime).Milliseconds(),
		EngineVersion: EngineVersion,
	}
	return a
}

func (p *Processor) flags(a *domain.ClaimAnalysis) []string {
	var flags []string
	if a.Code != nil && a.Code.Confidence < p.ConfidenceThreshold {
		flags = append(flags, domain.FlagLowConfidence)
	}
	if a.Tariff == nil {
		flags = append(flags, domain.FlagTariffUnavailable)
	}
	if a.Consistency != nil && a.Consistency.Level == p.FlagLevel {
		flags = append(flags, domain.FlagConsistencyLow)
	}
	return flags
}

// Reasons renders the flags of an analysis for reviewers.
func Reasons(a *domain.ClaimAnalysis) []string {
	var reasons []string
	for _, f := range a.Flags {
		switch f {
		case domain.FlagLowConfidence:
			if a.Code != nil {
				reasons = append(reasons, "billing code "+a.Code.BillingCode+" came from "+string(a.Code.Strategy)+" with low confidence")
			}
		case domain.FlagTariffUnavailable:
			reasons = append(reasons, domain.ErrTariffNotFound.Error())
		case domain.FlagConsistencyLow:
			for _, r := range a.Consistency.Relations() {
				if r.Verdict == domain.VerdictNonCompliant {
					reasons = append(reasons, string(r.Relation)+" is "+string(r.Verdict))
				}
			}
		}
	}
	return reasons
}
