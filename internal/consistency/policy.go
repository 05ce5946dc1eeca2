package consistency

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// DefaultBands are the per-relation verdict thresholds. Diagnosis to
// procedure is strict, diagnosis to drug moderate and procedure to drug
// lenient: one matched drug is enough there.
func DefaultBands() map[domain.Relation]domain.VerdictBand {
	return map[domain.Relation]domain.VerdictBand{
		domain.RelationDiagnosisProcedure: {
			Compliant: "score >= 0.8",
			Partial:   "score >= 0.4",
		},
		domain.RelationDiagnosisDrug: {
			Compliant: "score >= 0.7",
			Partial:   "score >= 0.3",
		},
		domain.RelationProcedureDrug: {
			Compliant: "score >= 0.5 || matched > 0",
			Partial:   "score >= 0.2",
		},
	}
}

// Policy maps match statistics to verdicts through compiled CEL
// conditions.
type Policy struct {
	bands    map[domain.Relation]*compiledBand
	defaults map[domain.Relation]*compiledBand
}

type compiledBand struct {
	source    domain.VerdictBand
	compliant cel.Program
	partial   cel.Program
}

// Stats are the variables visible to band expressions.
type Stats struct {
	Score    float64
	Matched  int
	Actual   int
	Expected int
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("score", cel.DoubleType),
		cel.Variable("matched", cel.IntType),
		cel.Variable("actual", cel.IntType),
		cel.Variable("expected", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewPolicy compiles the default bands with overrides applied on top.
// An override may set only one of its two conditions.
func NewPolicy(overrides map[domain.Relation]domain.VerdictBand) (*Policy, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	p := &Policy{
		bands:    make(map[domain.Relation]*compiledBand, len(domain.Relations)),
		defaults: make(map[domain.Relation]*compiledBand, len(domain.Relations)),
	}

	defaults := DefaultBands()
	for _, rel := range domain.Relations {
		def, err := compileBand(env, rel, defaults[rel])
		if err != nil {
			return nil, err
		}
		p.defaults[rel] = def
		p.bands[rel] = def
	}

	for rel, band := range overrides {
		base, ok := defaults[rel]
		if !ok {
			return nil, fmt.Errorf("unknown relation %q in policy", rel)
		}
		if band.Compliant == "" {
			band.Compliant = base.Compliant
		}
		if band.Partial == "" {
			band.Partial = base.Partial
		}
		compiled, err := compileBand(env, rel, band)
		if err != nil {
			return nil, err
		}
		p.bands[rel] = compiled
	}

	return p, nil
}

// DefaultPolicy returns the policy with no overrides.
func DefaultPolicy() *Policy {
	p, err := NewPolicy(nil)
	if err != nil {
		panic(fmt.Sprintf("default consistency policy: %v", err))
	}
	return p
}

func compileBand(env *cel.Env, rel domain.Relation, band domain.VerdictBand) (*compiledBand, error) {
	compliant, err := compileCondition(env, band.Compliant)
	if err != nil {
		return nil, fmt.Errorf("relation %s compliant condition: %w", rel, err)
	}
	partial, err := compileCondition(env, band.Partial)
	if err != nil {
		return nil, fmt.Errorf("relation %s partial condition: %w", rel, err)
	}
	return &compiledBand{source: band, compliant: compliant, partial: partial}, nil
}

func compileCondition(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile %q: %w", expr, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	return env.Program(ast)
}

// Verdict classifies stats for a relation. An evaluation error falls back
// to the default band, so scoring never fails.
func (p *Policy) Verdict(rel domain.Relation, s Stats) domain.Verdict {
	band, ok := p.bands[rel]
	if !ok {
		return domain.VerdictCompliant
	}
	v, err := band.verdict(s)
	if err != nil {
		slog.Warn("verdict band evaluation failed, using default",
			"relation", rel,
			"error", err,
		)
		v, _ = p.defaults[rel].verdict(s)
	}
	return v
}

// Bands returns the effective condition sources.
func (p *Policy) Bands() map[domain.Relation]domain.VerdictBand {
	out := make(map[domain.Relation]domain.VerdictBand, len(p.bands))
	for rel, b := range p.bands {
		out[rel] = b.source
	}
	return out
}

func (b *compiledBand) verdict(s Stats) (domain.Verdict, error) {
	activation := map[string]any{
		"score":    s.Score,
		"matched":  int64(s.Matched),
		"actual":   int64(s.Actual),
		"expected": int64(s.Expected),
	}

	ok, err := eval(b.compliant, activation)
	if err != nil {
		return domain.VerdictNonCompliant, err
	}
	if ok {
		return domain.VerdictCompliant, nil
	}

	ok, err = eval(b.partial, activation)
	if err != nil {
		return domain.VerdictNonCompliant, err
	}
	if ok {
		return domain.VerdictPartial, nil
	}
	return domain.VerdictNonCompliant, nil
}

func eval(prg cel.Program, activation map[string]any) (bool, error) {
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("unexpected result type %T", out)
	}
	return bool(b), nil
}
