package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/claimengine/internal/domain"
)

var tracer = otel.Tracer("claimengine-analysis")

// CodeResolver resolves billing codes.
type CodeResolver interface {
	Resolve(ctx context.Context, req domain.CodeRequest) (*domain.CodeResolution, error)
}

// TariffResolver prices billing codes.
type TariffResolver interface {
	Resolve(ctx context.Context, billingCode string, facility domain.Facility) (*domain.TariffQuote, error)
}

// ConsistencyScorer scores clinical plausibility.
type ConsistencyScorer interface {
	Score(diagnosis string, procedures, drugs []string) *domain.ConsistencyResult
}

// Store persists analyses.
type Store interface {
	SaveAnalysis(ctx context.Context, a *domain.ClaimAnalysis) error
}

// Engine runs the full claim analysis.
type Engine struct {
	codes     CodeResolver
	tariffs   TariffResolver
	scorer    ConsistencyScorer
	processor *Processor
	store     Store
}

// NewEngine wires the components. A nil store skips persistence.
func NewEngine(codes CodeResolver, tariffs TariffResolver, scorer ConsistencyScorer, processor *Processor, store Store) *Engine {
	if processor == nil {
		processor = NewProcessor()
	}
	return &Engine{
		codes:     codes,
		tariffs:   tariffs,
		scorer:    scorer,
		processor: processor,
		store:     store,
	}
}

// Validate rejects claims that cannot be analysed.
func Validate(c *domain.Claim) error {
	if strings.TrimSpace(c.PrimaryDiagnosis) == "" {
		return fmt.Errorf("%w: primary diagnosis is required", domain.ErrInvalidClaimInput)
	}
	if !c.ServiceType.Valid() {
		st, err := domain.ParseServiceType(string(c.ServiceType))
		if err != nil {
			return err
		}
		c.ServiceType = st
	}
	if !c.Facility.HospitalType.Valid() {
		ht, err := domain.ParseHospitalType(string(c.Facility.HospitalType))
		if err != nil {
			return err
		}
		c.Facility.HospitalType = ht
	}
	return c.Facility.Validate()
}

// Analyze resolves the code and its tariff while scoring consistency in
// parallel. A missing tariff is recorded on the analysis, not returned;
// invalid input and store failures are returned.
func (e *Engine) Analyze(ctx context.Context, claim domain.Claim, traceID string) (*domain.ClaimAnalysis, error) {
	start := time.Now()
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}

	ctx, span := tracer.Start(ctx, "analysis.Analyze",
		trace.WithAttributes(attribute.String("claim.id", claim.ID)),
	)
	defer span.End()

	if err := Validate(&claim); err != nil {
		return nil, err
	}

	input := &DecisionInput{Claim: claim, TraceID: traceID, StartTime: start}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.Now()
		code, err := e.codes.Resolve(gctx, claim.CodeRequest())
		input.ResolveMs = time.Since(t).Milliseconds()
		if err != nil {
			return err
		}
		input.Code = code

		t = time.Now()
		quote, err := e.tariffs.Resolve(gctx, code.BillingCode, claim.Facility)
		input.TariffMs = time.Since(t).Milliseconds()
		switch {
		case err == nil:
			input.Tariff = quote
		case errors.Is(err, domain.ErrTariffNotFound):
			input.TariffErr = err
		default:
			return err
		}
		return nil
	})
	g.Go(func() error {
		t := time.Now()
		input.Consistency = e.scorer.Score(claim.PrimaryDiagnosis, claim.Procedures, claim.Drugs)
		input.ConsistencyMs = time.Since(t).Milliseconds()
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	a := e.processor.Process(ctx, input)
	span.SetAttributes(
		attribute.String("analysis.id", a.ID),
		attribute.String("analysis.billing_code", a.Code.BillingCode),
		attribute.Bool("analysis.flagged", a.Flagged()),
	)

	if e.store != nil {
		if err := e.store.SaveAnalysis(ctx, a); err != nil {
			slog.Error("failed to save analysis",
				"claim_id", claim.ID,
				"analysis_id", a.ID,
				"error", err,
			)
		}
	}

	slog.Debug("claim analysed",
		"claim_id", claim.ID,
		"billing_code", a.Code.BillingCode,
		"strategy", a.Code.Strategy,
		"flags", a.Flags,
		"duration_ms", a.Metadata.TotalMs,
	)
	return a, nil
}
