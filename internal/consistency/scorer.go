// Package consistency scores the clinical plausibility of a claim's
// diagnosis, procedures and drugs against guideline rule maps.
package consistency

import (
	"sort"
	"strings"

	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// Notes attached to verdicts that were not computed from a rule.
const (
	NoteNoRule      = "no specific rule"
	NoteNoneClaimed = "nothing claimed for this relation"
)

// Aggregate thresholds on the 0..3 scale.
const (
	HighThreshold   = 2.5
	MediumThreshold = 1.5
)

// Scorer compares a claim with the rule maps. It holds no mutable state
// and is safe for concurrent use.
type Scorer struct {
	dxProcedure map[string][]string
	dxDrug      map[string][]string
	procDrug    map[string][]string
	policy      *Policy
}

// NewScorer normalizes rule keys and values once. A nil policy uses the
// default bands.
func NewScorer(rules map[domain.Relation]map[string][]string, policy *Policy) *Scorer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Scorer{
		dxProcedure: normalizeRules(rules[domain.RelationDiagnosisProcedure], codes.Diagnosis, codes.Procedure),
		dxDrug:      normalizeRules(rules[domain.RelationDiagnosisDrug], codes.Diagnosis, Drug),
		procDrug:    normalizeRules(rules[domain.RelationProcedureDrug], codes.Procedure, Drug),
		policy:      policy,
	}
}

// normalizeRules drops keys whose values normalize to nothing. Such a
// key is treated as having no rule, so a diagnosis falls back to its
// category rule instead of being shadowed by an empty one.
func normalizeRules(in map[string][]string, key, value func(string) string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, values := range in {
		normalized := normalizeAll(values, value)
		if len(normalized) == 0 {
			continue
		}
		nk := key(k)
		out[nk] = append(out[nk], normalized...)
	}
	return out
}

// Score never fails: absent rules and empty lists count as compliant.
func (s *Scorer) Score(diagnosis string, procedures, drugs []string) *domain.ConsistencyResult {
	dx := codes.Diagnosis(diagnosis)
	procs := codes.Procedures(procedures)
	meds := normalizeAll(drugs, Drug)

	result := &domain.ConsistencyResult{
		DiagnosisProcedure: s.compare(domain.RelationDiagnosisProcedure, lookupDiagnosis(s.dxProcedure, dx), procs),
		DiagnosisDrug:      s.compare(domain.RelationDiagnosisDrug, lookupDiagnosis(s.dxDrug, dx), meds),
		ProcedureDrug:      s.compare(domain.RelationProcedureDrug, s.procedureDrugs(procs), meds),
	}

	for _, r := range result.Relations() {
		result.AggregateScore += r.Verdict.Value()
	}
	result.Level = LevelFor(result.AggregateScore)
	return result
}

// LevelFor maps an aggregate score to a level.
func LevelFor(score float64) domain.Level {
	switch {
	case score >= HighThreshold:
		return domain.LevelHigh
	case score >= MediumThreshold:
		return domain.LevelMedium
	default:
		return domain.LevelLow
	}
}

// lookupDiagnosis finds the rule for a full code, then for its category.
func lookupDiagnosis(rules map[string][]string, dx string) []string {
	if values, ok := rules[dx]; ok {
		return values
	}
	if values, ok := rules[codes.Category(dx)]; ok {
		return values
	}
	return nil
}

// procedureDrugs merges the drug lists of every claimed procedure that
// has a rule. Nil means no procedure has one.
func (s *Scorer) procedureDrugs(procs []string) []string {
	var merged []string
	seen := make(map[string]struct{})
	for _, p := range procs {
		for _, v := range s.procDrug[p] {
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			merged = append(merged, v)
		}
	}
	sort.Strings(merged)
	return merged
}

func (s *Scorer) compare(rel domain.Relation, expected, actual []string) domain.RelationResult {
	result := domain.RelationResult{
		Relation:  rel,
		Actual:    len(actual),
		Expected:  expected,
		RuleFound: expected != nil,
	}

	if expected == nil {
		result.Verdict = domain.VerdictCompliant
		result.Score = 1.0
		result.Note = NoteNoRule
		return result
	}
	if len(actual) == 0 {
		result.Verdict = domain.VerdictCompliant
		result.Score = 1.0
		result.Note = NoteNoneClaimed
		return result
	}

	for _, a := range actual {
		if matchesAny(a, expected) {
			result.Matched++
		} else {
			result.Unmatched = append(result.Unmatched, a)
		}
	}
	result.Score = float64(result.Matched) / float64(result.Actual)
	result.Verdict = s.policy.Verdict(rel, Stats{
		Score:    result.Score,
		Matched:  result.Matched,
		Actual:   result.Actual,
		Expected: len(expected),
	})
	return result
}

// matchesAny is bidirectional containment, so "amoxicillin" matches
// "amoxicillin clavulanate" and the other way round.
func matchesAny(actual string, expected []string) bool {
	for _, e := range expected {
		if e == "" {
			continue
		}
		if strings.Contains(e, actual) || strings.Contains(actual, e) {
			return true
		}
	}
	return false
}
