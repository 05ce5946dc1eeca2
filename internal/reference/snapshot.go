// Package reference serves the reference tables to the resolvers: an
// immutable in-memory snapshot, a caching wrapper for any store, and the
// YAML and Parquet loaders that fill the database.
package reference

import (
	"context"
	"fmt"
	"sort"

	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// Snapshot is an indexed, read-only copy of every reference table. It is
// built once and shared between goroutines without locking. Returned
// slices must not be modified.
type Snapshot struct {
	byDiagnosis map[string][]domain.EmpiricalPattern
	byCategory  map[string][]domain.EmpiricalPattern
	procedures  map[string]domain.ProcedureInfo
	groupRules  []domain.DiagnosisGroupRule
	tariffs     map[domain.TariffKey]domain.TariffEntry
	rules       map[domain.Relation]map[string][]string
}

// NewSnapshot indexes data. Codes are normalized on the way in; a
// duplicate tariff key is an error.
func NewSnapshot(data *domain.ReferenceData) (*Snapshot, error) {
	s := &Snapshot{
		byDiagnosis: make(map[string][]domain.EmpiricalPattern),
		byCategory:  make(map[string][]domain.EmpiricalPattern),
		procedures:  make(map[string]domain.ProcedureInfo, len(data.Procedures)),
		tariffs:     make(map[domain.TariffKey]domain.TariffEntry, len(data.Tariffs)),
		rules:       make(map[domain.Relation]map[string][]string, len(domain.Relations)),
	}

	for _, p := range data.Patterns {
		if p.Frequency < 1 {
			return nil, fmt.Errorf("pattern %s/%s: frequency must be at least 1", p.PrimaryDiagnosis, p.BillingCode)
		}
		p.PrimaryDiagnosis = codes.Diagnosis(p.PrimaryDiagnosis)
		p.MainProcedure = codes.Procedure(p.Main())
		p.Procedures = codes.Signature(p.Procedures)

		dk := patternKey(p.ServiceType, p.PrimaryDiagnosis)
		s.byDiagnosis[dk] = append(s.byDiagnosis[dk], p)
		ck := patternKey(p.ServiceType, codes.Category(p.PrimaryDiagnosis))
		s.byCategory[ck] = append(s.byCategory[ck], p)
	}
	for _, list := range s.byDiagnosis {
		sortPatterns(list)
	}
	for _, list := range s.byCategory {
		sortPatterns(list)
	}

	for _, p := range data.Procedures {
		p.Code = codes.Procedure(p.Code)
		s.procedures[p.Code] = p
	}

	s.groupRules = make([]domain.DiagnosisGroupRule, 0, len(data.GroupRules))
	for _, g := range data.GroupRules {
		g.RangeStart = codes.Diagnosis(g.RangeStart)
		g.RangeEnd = codes.Diagnosis(g.RangeEnd)
		s.groupRules = append(s.groupRules, g)
	}

	for _, t := range data.Tariffs {
		t.BillingCode = codes.BillingCode(t.BillingCode)
		t.HospitalClass = codes.HospitalClass(t.HospitalClass)
		key := t.Key()
		if _, dup := s.tariffs[key]; dup {
			return nil, fmt.Errorf("duplicate tariff %s", key)
		}
		s.tariffs[key] = t
	}

	for _, rel := range domain.Relations {
		s.rules[rel] = make(map[string][]string)
	}
	for _, r := range data.ConsistencyRules {
		m, ok := s.rules[r.Relation]
		if !ok {
			return nil, fmt.Errorf("unknown consistency relation %q", r.Relation)
		}
		m[r.Key] = r.Values
	}

	return s, nil
}

func patternKey(serviceType domain.ServiceType, code string) string {
	return string(serviceType) + "|" + code
}

// sortPatterns orders by frequency descending, then billing code.
func sortPatterns(list []domain.EmpiricalPattern) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Frequency != list[j].Frequency {
			return list[i].Frequency > list[j].Frequency
		}
		return list[i].BillingCode < list[j].BillingCode
	})
}

// PatternsByDiagnosis implements domain.ReferenceStore.
func (s *Snapshot) PatternsByDiagnosis(_ context.Context, serviceType domain.ServiceType, diagnosis string) ([]domain.EmpiricalPattern, error) {
	return s.byDiagnosis[patternKey(serviceType, codes.Diagnosis(diagnosis))], nil
}

// PatternsByCategory implements domain.ReferenceStore.
func (s *Snapshot) PatternsByCategory(_ context.Context, serviceType domain.ServiceType, category string) ([]domain.EmpiricalPattern, error) {
	return s.byCategory[patternKey(serviceType, codes.Category(category))], nil
}

// Procedure implements domain.ReferenceStore.
func (s *Snapshot) Procedure(_ context.Context, code string) (*domain.ProcedureInfo, error) {
	p, ok := s.procedures[codes.Procedure(code)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GroupRules implements domain.ReferenceStore.
func (s *Snapshot) GroupRules(context.Context) ([]domain.DiagnosisGroupRule, error) {
	return s.groupRules, nil
}

// Tariff implements domain.ReferenceStore.
func (s *Snapshot) Tariff(_ context.Context, key domain.TariffKey) (*domain.TariffEntry, error) {
	t, ok := s.tariffs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTariffNotFound, key)
	}
	return &t, nil
}

// ConsistencyRules returns the rule map of one relation.
func (s *Snapshot) ConsistencyRules(relation domain.Relation) map[string][]string {
	return s.rules[relation]
}

// Counts reports table sizes for logging.
func (s *Snapshot) Counts() map[string]int {
	patterns := 0
	for _, list := range s.byDiagnosis {
		patterns += len(list)
	}
	rules := 0
	for _, m := range s.rules {
		rules += len(m)
	}
	return map[string]int{
		"patterns":          patterns,
		"procedures":        len(s.procedures),
		"group_rules":       len(s.groupRules),
		"tariffs":           len(s.tariffs),
		"consistency_rules": rules,
	}
}

var _ domain.ReferenceStore = (*Snapshot)(nil)
