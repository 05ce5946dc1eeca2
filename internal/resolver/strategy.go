package resolver

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// Strategy is one level of the fallback chain. Attempt returns nil, nil
// when the level has no answer.
type Strategy interface {
	Name() domain.Strategy
	Attempt(ctx context.Context, req *Request) (*domain.CodeResolution, error)
}

// DefaultStrategies returns the five levels in resolution order.
func DefaultStrategies(store domain.ReferenceStore) []Strategy {
	return []Strategy{
		&ExactFull{store: store},
		&MainProcedure{store: store},
		&DiagnosisOnly{store: store},
		&SimilarProcedure{store: store},
		&RuleBased{store: store},
	}
}

// confidence is base + min(cap, bonus), rounded to two decimals.
func confidence(base, bonusCap, bonus float64) float64 {
	if bonus < 0 {
		bonus = 0
	}
	return math.Round((base+math.Min(bonusCap, bonus))*100) / 100
}

func lnFreq(freq int) float64 {
	if freq < 1 {
		return 0
	}
	return math.Log(float64(freq))
}

// best picks the most frequent pattern, then the smallest billing code.
func best(patterns []domain.EmpiricalPattern, keep func(*domain.EmpiricalPattern) bool) *domain.EmpiricalPattern {
	var winner *domain.EmpiricalPattern
	for i := range patterns {
		p := &patterns[i]
		if keep != nil && !keep(p) {
			continue
		}
		if winner == nil || p.Frequency > winner.Frequency ||
			(p.Frequency == winner.Frequency && p.BillingCode < winner.BillingCode) {
			winner = p
		}
	}
	return winner
}

// ExactFull matches diagnosis and the full procedure signature.
type ExactFull struct {
	store domain.ReferenceStore
}

func (s *ExactFull) Name() domain.Strategy { return domain.StrategyExactFull }

func (s *ExactFull) Attempt(ctx context.Context, req *Request) (*domain.CodeResolution, error) {
	patterns, err := s.store.PatternsByDiagnosis(ctx, req.ServiceType, req.Diagnosis)
	if err != nil {
		return nil, err
	}
	p := best(patterns, func(p *domain.EmpiricalPattern) bool {
		return slices.Equal(p.Procedures, req.Signature)
	})
	if p == nil {
		return nil, nil
	}
	return &domain.CodeResolution{
		BillingCode: p.BillingCode,
		Strategy:    s.Name(),
		Confidence:  confidence(95, 5, 1.5*lnFreq(p.Frequency)),
		Detail:      fmt.Sprintf("%d claims with the same diagnosis and procedures", p.Frequency),
	}, nil
}

// MainProcedure matches diagnosis and the first claimed procedure.
type MainProcedure struct {
	store domain.ReferenceStore
}

func (s *MainProcedure) Name() domain.Strategy { return domain.StrategyMainProcedure }

func (s *MainProcedure) Attempt(ctx context.Context, req *Request) (*domain.CodeResolution, error) {
	main := req.MainProcedure()
	if main == "" {
		return nil, nil
	}
	patterns, err := s.store.PatternsByDiagnosis(ctx, req.ServiceType, req.Diagnosis)
	if err != nil {
		return nil, err
	}
	p := best(patterns, func(p *domain.EmpiricalPattern) bool {
		return p.Main() == main
	})
	if p == nil {
		return nil, nil
	}
	return &domain.CodeResolution{
		BillingCode: p.BillingCode,
		Strategy:    s.Name(),
		Confidence:  confidence(80, 14, 2*lnFreq(p.Frequency)),
		Detail:      fmt.Sprintf("main procedure %s seen %d times", main, p.Frequency),
	}, nil
}

// DiagnosisOnly takes the most frequent code for the diagnosis.
type DiagnosisOnly struct {
	store domain.ReferenceStore
}

func (s *DiagnosisOnly) Name() domain.Strategy { return domain.StrategyDiagnosisOnly }

func (s *DiagnosisOnly) Attempt(ctx context.Context, req *Request) (*domain.CodeResolution, error) {
	patterns, err := s.store.PatternsByDiagnosis(ctx, req.ServiceType, req.Diagnosis)
	if err != nil {
		return nil, err
	}
	p := best(patterns, nil)
	if p == nil {
		return nil, nil
	}
	return &domain.CodeResolution{
		BillingCode: p.BillingCode,
		Strategy:    s.Name(),
		Confidence:  confidence(60, 19, 2.5*lnFreq(p.Frequency)),
		Detail:      fmt.Sprintf("most frequent code for %s (%d claims)", req.Diagnosis, p.Frequency),
	}, nil
}

// SimilarProcedure relaxes procedure equality to a shared chapter range
// or body system, within the diagnosis category.
type SimilarProcedure struct {
	store domain.ReferenceStore
}

func (s *SimilarProcedure) Name() domain.Strategy { return domain.StrategySimilarProcedure }

func (s *SimilarProcedure) Attempt(ctx context.Context, req *Request) (*domain.CodeResolution, error) {
	if len(req.Signature) == 0 {
		return nil, nil
	}
	candidates, err := s.store.PatternsByCategory(ctx, req.ServiceType, req.Category)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	infos := make(map[string]*domain.ProcedureInfo)
	info := func(code string) (*domain.ProcedureInfo, error) {
		if p, ok := infos[code]; ok {
			return p, nil
		}
		p, err := s.store.Procedure(ctx, code)
		if err != nil {
			return nil, err
		}
		infos[code] = p
		return p, nil
	}

	type scored struct {
		pattern *domain.EmpiricalPattern
		overlap int
	}
	var ranked []scored
	for i := range candidates {
		n, err := overlap(req.Signature, candidates[i].Procedures, info)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			ranked = append(ranked, scored{pattern: &candidates[i], overlap: n})
		}
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.overlap != b.overlap {
			return a.overlap > b.overlap
		}
		if a.pattern.Frequency != b.pattern.Frequency {
			return a.pattern.Frequency > b.pattern.Frequency
		}
		return a.pattern.BillingCode < b.pattern.BillingCode
	})

	top := ranked[0]
	bonus := 5*float64(top.overlap-1) + 2*lnFreq(top.pattern.Frequency)
	return &domain.CodeResolution{
		BillingCode: top.pattern.BillingCode,
		Strategy:    s.Name(),
		Confidence:  confidence(40, 19, bonus),
		Detail: fmt.Sprintf("%d similar procedures with %s pattern (%d claims)",
			top.overlap, top.pattern.PrimaryDiagnosis, top.pattern.Frequency),
	}, nil
}

// overlap counts claimed procedures that are similar to at least one
// pattern procedure.
func overlap(claimed, pattern []string, info func(string) (*domain.ProcedureInfo, error)) (int, error) {
	n := 0
	for _, c := range claimed {
		for _, p := range pattern {
			ok, err := similar(c, p, info)
			if err != nil {
				return 0, err
			}
			if ok {
				n++
				break
			}
		}
	}
	return n, nil
}

func similar(a, b string, info func(string) (*domain.ProcedureInfo, error)) (bool, error) {
	if a == b {
		return true, nil
	}
	ia, err := info(a)
	if err != nil || ia == nil {
		return false, err
	}
	ib, err := info(b)
	if err != nil || ib == nil {
		return false, err
	}
	if ia.ChapterRange != "" && ia.ChapterRange == ib.ChapterRange {
		return true, nil
	}
	return ia.BodySystem != "" && ia.BodySystem == ib.BodySystem, nil
}
