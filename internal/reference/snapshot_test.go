package reference

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/domain"
)

func testData() *domain.ReferenceData {
	return &domain.ReferenceData{
		Patterns: []domain.EmpiricalPattern{
			{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "j18.9", Procedures: []string{"93.96", "87.44"}, BillingCode: "J-4-16-I", Frequency: 100},
			{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "J189", Procedures: []string{"87.44"}, BillingCode: "J-4-16-II", Frequency: 20},
			{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "J18.0", Procedures: []string{"96.04"}, BillingCode: "J-1-10-I", Frequency: 20},
			{ServiceType: domain.ServiceOutpatient, PrimaryDiagnosis: "J18.9", BillingCode: "Q-5-44-0", Frequency: 7},
		},
		Procedures: []domain.ProcedureInfo{
			{Code: "8744", ChapterRange: "87-99", BodySystem: "respiratory"},
		},
		GroupRules: []domain.DiagnosisGroupRule{
			{RangeStart: "k35", RangeEnd: "k38", Category: "K", Priority: 1},
		},
		Tariffs: []domain.TariffEntry{
			{
				BillingCode: "J-4-16-I", Region: 1, HospitalClass: "C", HospitalType: domain.HospitalGovernment,
				Prices: map[domain.PayerClass]decimal.Decimal{domain.PayerClass3: decimal.NewFromInt(5178600)},
			},
		},
		ConsistencyRules: []domain.ConsistencyRule{
			{Relation: domain.RelationDiagnosisDrug, Key: "J18", Values: []string{"ceftriaxone"}},
		},
	}
}

func TestSnapshot_PatternsByDiagnosis(t *testing.T) {
	snap, err := NewSnapshot(testData())
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	ctx := context.Background()

	patterns, err := snap.PatternsByDiagnosis(ctx, domain.ServiceInpatient, "J18.9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("expected 2 patterns, got %d", len(patterns))
	}
	if patterns[0].BillingCode != "J-4-16-I" {
		t.Errorf("expected most frequent pattern first, got %s", patterns[0].BillingCode)
	}

	t.Run("SignatureSortedMainKept", func(t *testing.T) {
		p := patterns[0]
		if p.Procedures[0] != "87.44" || p.Procedures[1] != "93.96" {
			t.Errorf("expected sorted signature, got %v", p.Procedures)
		}
		if p.MainProcedure != "93.96" {
			t.Errorf("expected main procedure from claim order 93.96, got %s", p.MainProcedure)
		}
	})

	t.Run("ServiceTypeSeparates", func(t *testing.T) {
		out, _ := snap.PatternsByDiagnosis(ctx, domain.ServiceOutpatient, "J18.9")
		if len(out) != 1 || out[0].BillingCode != "Q-5-44-0" {
			t.Errorf("expected only the outpatient pattern, got %+v", out)
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		out, err := snap.PatternsByDiagnosis(ctx, domain.ServiceInpatient, "Z99.9")
		if err != nil || len(out) != 0 {
			t.Errorf("expected empty result, got %v, %v", out, err)
		}
	})
}

func TestSnapshot_PatternsByCategory(t *testing.T) {
	snap, _ := NewSnapshot(testData())

	patterns, err := snap.PatternsByCategory(context.Background(), domain.ServiceInpatient, "J18")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(patterns) != 3 {
		t.Fatalf("expected 3 patterns in category, got %d", len(patterns))
	}
	// Equal frequency falls back to billing code order.
	if patterns[1].BillingCode != "J-1-10-I" || patterns[2].BillingCode != "J-4-16-II" {
		t.Errorf("unexpected order: %s, %s", patterns[1].BillingCode, patterns[2].BillingCode)
	}
}

func TestSnapshot_Lookups(t *testing.T) {
	snap, _ := NewSnapshot(testData())
	ctx := context.Background()

	info, err := snap.Procedure(ctx, "87.44")
	if err != nil || info == nil {
		t.Fatalf("expected procedure, got %v, %v", info, err)
	}
	if info.BodySystem != "respiratory" {
		t.Errorf("expected respiratory, got %s", info.BodySystem)
	}

	missing, err := snap.Procedure(ctx, "01.01")
	if err != nil || missing != nil {
		t.Errorf("expected nil, nil for unknown procedure, got %v, %v", missing, err)
	}

	rules, _ := snap.GroupRules(ctx)
	if len(rules) != 1 || rules[0].RangeStart != "K35" {
		t.Errorf("expected normalized group rule, got %+v", rules)
	}

	if got := snap.ConsistencyRules(domain.RelationDiagnosisDrug)["J18"]; len(got) != 1 {
		t.Errorf("expected J18 drug rule, got %v", got)
	}
	if got := snap.ConsistencyRules(domain.RelationProcedureDrug); got == nil {
		t.Error("expected empty, non-nil map for relation without rules")
	}
}

func TestSnapshot_Tariff(t *testing.T) {
	snap, _ := NewSnapshot(testData())
	ctx := context.Background()
	key := domain.TariffKey{BillingCode: "J-4-16-I", Region: 1, HospitalClass: "C", HospitalType: domain.HospitalGovernment}

	entry, err := snap.Tariff(ctx, key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !entry.Prices[domain.PayerClass3].Equal(decimal.NewFromInt(5178600)) {
		t.Errorf("unexpected price %s", entry.Prices[domain.PayerClass3])
	}

	key.HospitalType = domain.HospitalPrivate
	if _, err := snap.Tariff(ctx, key); !errors.Is(err, domain.ErrTariffNotFound) {
		t.Errorf("expected ErrTariffNotFound, got %v", err)
	}
}

func TestNewSnapshot_Invalid(t *testing.T) {
	t.Run("DuplicateTariff", func(t *testing.T) {
		data := testData()
		data.Tariffs = append(data.Tariffs, data.Tariffs[0])
		if _, err := NewSnapshot(data); err == nil {
			t.Error("expected duplicate tariff error")
		}
	})

	t.Run("ZeroFrequency", func(t *testing.T) {
		data := testData()
		data.Patterns[0].Frequency = 0
		if _, err := NewSnapshot(data); err == nil {
			t.Error("expected frequency error")
		}
	})

	t.Run("UnknownRelation", func(t *testing.T) {
		data := testData()
		data.ConsistencyRules = append(data.ConsistencyRules, domain.ConsistencyRule{Relation: "drug_drug", Key: "x"})
		if _, err := NewSnapshot(data); err == nil {
			t.Error("expected relation error")
		}
	})
}

func TestSnapshot_Counts(t *testing.T) {
	snap, _ := NewSnapshot(testData())
	counts := snap.Counts()

	want := map[string]int{"patterns": 4, "procedures": 1, "group_rules": 1, "tariffs": 1, "consistency_rules": 1}
	for k, v := range want {
		if counts[k] != v {
			t.Errorf("expected %s=%d, got %d", k, v, counts[k])
		}
	}
}
