package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// Case types of the rule-based billing code.
const (
	CaseInpatientProcedure  = "1"
	CaseOutpatientMajor     = "2"
	CaseOutpatientProcedure = "3"
	CaseInpatientMedical    = "4"
	CaseOutpatientVisit     = "5"
)

// Rule-based confidence by how the category was found.
const (
	confidenceExactRule = 30
	confidenceRangeRule = 25
	confidenceNoRule    = 20
)

// RuleBased builds <category>-<caseType>-<specific>-<severity> from group
// rules and procedure taxonomy. It always produces a code.
type RuleBased struct {
	store domain.ReferenceStore
}

func (s *RuleBased) Name() domain.Strategy { return domain.StrategyRuleBased }

func (s *RuleBased) Attempt(ctx context.Context, req *Request) (*domain.CodeResolution, error) {
	rules, err := s.store.GroupRules(ctx)
	if err != nil {
		return nil, err
	}
	rule, exact := MatchGroupRule(rules, req.Diagnosis)

	category := domain.DefaultCategory
	conf := float64(confidenceNoRule)
	detail := "no group rule for " + req.Diagnosis
	switch {
	case rule != nil && exact:
		category = rule.Category
		conf = confidenceExactRule
		detail = "exact group rule " + rule.RangeStart
	case rule != nil:
		category = rule.Category
		conf = confidenceRangeRule
		detail = fmt.Sprintf("group rule %s-%s", rule.RangeStart, rule.RangeEnd)
	}

	caseType, err := s.caseType(ctx, req)
	if err != nil {
		return nil, err
	}

	severity := domain.SeverityOutpatient
	if req.ServiceType == domain.ServiceInpatient {
		severity = domain.SeverityInpatient
	}

	return &domain.CodeResolution{
		BillingCode: strings.Join([]string{category, caseType, domain.DefaultSpecificCode, severity}, "-"),
		Strategy:    s.Name(),
		Confidence:  conf,
		Detail:      detail,
	}, nil
}

func (s *RuleBased) caseType(ctx context.Context, req *Request) (string, error) {
	if req.ServiceType == domain.ServiceInpatient {
		if len(req.Procedures) > 0 {
			return CaseInpatientProcedure, nil
		}
		return CaseInpatientMedical, nil
	}
	if len(req.Procedures) == 0 {
		return CaseOutpatientVisit, nil
	}
	for _, code := range req.Procedures {
		info, err := s.store.Procedure(ctx, code)
		if err != nil {
			return "", err
		}
		if info != nil && info.IsMajor {
			return CaseOutpatientMajor, nil
		}
	}
	return CaseOutpatientProcedure, nil
}

// MatchGroupRule returns the rule that categorizes dx and whether it is
// an exact-code rule. Exact rules win; among range rules the lowest
// priority wins, then the narrowest range, then the smallest category.
func MatchGroupRule(rules []domain.DiagnosisGroupRule, dx string) (*domain.DiagnosisGroupRule, bool) {
	var best *domain.DiagnosisGroupRule
	for i := range rules {
		r := &rules[i]
		if isExactRule(r) {
			if r.RangeStart == dx {
				return r, true
			}
			continue
		}
		if !inRange(r, dx) {
			continue
		}
		if best == nil || narrower(r, best) {
			best = r
		}
	}
	return best, false
}

// isExactRule reports a single-code rule. A 3-character code such as
// I10 is still exact when both ends name it.
func isExactRule(r *domain.DiagnosisGroupRule) bool {
	return r.RangeStart != "" && r.RangeStart == r.RangeEnd
}

// inRange treats the end as inclusive of every code under it, so
// J00-J06 covers J06.9.
func inRange(r *domain.DiagnosisGroupRule, dx string) bool {
	if dx < r.RangeStart {
		return false
	}
	return dx <= r.RangeEnd || strings.HasPrefix(dx, r.RangeEnd)
}

func narrower(a, b *domain.DiagnosisGroupRule) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if a.RangeStart != b.RangeStart {
		return a.RangeStart > b.RangeStart
	}
	if a.RangeEnd != b.RangeEnd {
		return a.RangeEnd < b.RangeEnd
	}
	return a.Category < b.Category
}
