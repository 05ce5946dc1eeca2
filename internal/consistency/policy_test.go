package consistency

import (
	"testing"

	"github.com/opensource-finance/claimengine/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		rel  domain.Relation
		s    Stats
		want domain.Verdict
	}{
		{domain.RelationDiagnosisProcedure, Stats{Score: 0.8}, domain.VerdictCompliant},
		{domain.RelationDiagnosisProcedure, Stats{Score: 0.79}, domain.VerdictPartial},
		{domain.RelationDiagnosisProcedure, Stats{Score: 0.39}, domain.VerdictNonCompliant},
		{domain.RelationDiagnosisDrug, Stats{Score: 0.7}, domain.VerdictCompliant},
		{domain.RelationDiagnosisDrug, Stats{Score: 0.3}, domain.VerdictPartial},
		{domain.RelationDiagnosisDrug, Stats{Score: 0.29}, domain.VerdictNonCompliant},
		{domain.RelationProcedureDrug, Stats{Score: 0.1, Matched: 1, Actual: 10}, domain.VerdictCompliant},
		{domain.RelationProcedureDrug, Stats{Score: 0.0, Actual: 3}, domain.VerdictNonCompliant},
	}
	for _, tt := range tests {
		if got := p.Verdict(tt.rel, tt.s); got != tt.want {
			t.Errorf("%s %+v: got %s, want %s", tt.rel, tt.s, got, tt.want)
		}
	}
}

func TestPolicyOverride(t *testing.T) {
	p, err := NewPolicy(map[domain.Relation]domain.VerdictBand{
		domain.RelationDiagnosisProcedure: {Compliant: "score >= 0.5 && actual >= 1"},
	})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}

	if got := p.Verdict(domain.RelationDiagnosisProcedure, Stats{Score: 0.5, Matched: 1, Actual: 2}); got != domain.VerdictCompliant {
		t.Errorf("expected override to apply, got %s", got)
	}
	if got := p.Bands()[domain.RelationDiagnosisProcedure].Partial; got != "score >= 0.4" {
		t.Errorf("expected default partial condition to be kept, got %q", got)
	}
}

func TestPolicyRejectsInvalidExpressions(t *testing.T) {
	tests := []struct {
		name string
		band domain.VerdictBand
	}{
		{"syntax", domain.VerdictBand{Compliant: "score >="}},
		{"unknown variable", domain.VerdictBand{Compliant: "coverage > 0.5"}},
		{"non-bool", domain.VerdictBand{Compliant: "score * 2.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPolicy(map[domain.Relation]domain.VerdictBand{
				domain.RelationDiagnosisDrug: tt.band,
			})
			if err == nil {
				t.Error("expected compile error")
			}
		})
	}

	if _, err := NewPolicy(map[domain.Relation]domain.VerdictBand{"drug_drug": {Compliant: "true"}}); err == nil {
		t.Error("expected error for unknown relation")
	}
}

func TestPolicyFallsBackOnEvalError(t *testing.T) {
	// Integer division by zero only fails at evaluation time.
	p, err := NewPolicy(map[domain.Relation]domain.VerdictBand{
		domain.RelationDiagnosisDrug: {Compliant: "matched / expected > 0"},
	})
	if err != nil {
		t.Fatalf("NewPolicy failed: %v", err)
	}

	got := p.Verdict(domain.RelationDiagnosisDrug, Stats{Score: 1.0, Matched: 1, Actual: 1, Expected: 0})
	if got != domain.VerdictCompliant {
		t.Errorf("expected default band verdict Sesuai, got %s", got)
	}
}
