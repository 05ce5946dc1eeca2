package reference

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/domain"
)

const seedFixture = "testdata/seed.yaml"

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed(seedFixture)
	if err != nil {
		t.Fatalf("LoadSeed failed: %v", err)
	}

	data, err := seed.ReferenceData()
	if err != nil {
		t.Fatalf("ReferenceData failed: %v", err)
	}

	if len(data.Tariffs) != 5 {
		t.Errorf("expected 5 tariffs, got %d", len(data.Tariffs))
	}
	if len(data.Patterns) != 4 {
		t.Errorf("expected 4 patterns, got %d", len(data.Patterns))
	}
	if len(data.GroupRules) != 2 || len(data.Procedures) != 4 {
		t.Errorf("unexpected group rules %d or procedures %d", len(data.GroupRules), len(data.Procedures))
	}
	if len(data.ConsistencyRules) != 4 {
		t.Errorf("expected 4 consistency rules, got %d", len(data.ConsistencyRules))
	}

	t.Run("HospitalTypeAliases", func(t *testing.T) {
		if data.Tariffs[0].HospitalType != domain.HospitalGovernment {
			t.Errorf("expected pemerintah to parse as government, got %s", data.Tariffs[0].HospitalType)
		}
		if data.Tariffs[1].HospitalType != domain.HospitalPrivate {
			t.Errorf("expected swasta to parse as private, got %s", data.Tariffs[1].HospitalType)
		}
	})

	t.Run("ServiceTypeAliases", func(t *testing.T) {
		if data.Patterns[3].ServiceType != domain.ServiceOutpatient {
			t.Errorf("expected RJ to parse as outpatient, got %s", data.Patterns[3].ServiceType)
		}
	})

	t.Run("PartialPrices", func(t *testing.T) {
		q := data.Tariffs[3]
		if len(q.Prices) != 1 {
			t.Fatalf("expected one price, got %v", q.Prices)
		}
		if !q.Prices[domain.PayerClass3].Equal(decimal.NewFromInt(215500)) {
			t.Errorf("unexpected price %s", q.Prices[domain.PayerClass3])
		}
	})

	t.Run("Policy", func(t *testing.T) {
		band, ok := seed.Policy[domain.RelationProcedureDrug]
		if !ok || band.Compliant != "score >= 0.6" {
			t.Errorf("expected procedure_drug policy override, got %+v", seed.Policy)
		}
	})
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"UnknownField", "tarifs: []\n"},
		{"BadHospitalType", "tariffs:\n  - {billing_code: A, region: 1, hospital_class: C, hospital_type: mixed, prices: {1: \"1\"}}\n"},
		{"BadRegion", "tariffs:\n  - {billing_code: A, region: 0, hospital_class: C, hospital_type: swasta, prices: {1: \"1\"}}\n"},
		{"BadPayerClass", "tariffs:\n  - {billing_code: A, region: 1, hospital_class: C, hospital_type: swasta, prices: {4: \"1\"}}\n"},
		{"BadPrice", "tariffs:\n  - {billing_code: A, region: 1, hospital_class: C, hospital_type: swasta, prices: {1: \"abc\"}}\n"},
		{"BadServiceType", "patterns:\n  - {service_type: daycare, primary_diagnosis: A09, billing_code: A, frequency: 1}\n"},
		{"ZeroFrequency", "patterns:\n  - {service_type: RI, primary_diagnosis: A09, billing_code: A, frequency: 0}\n"},
		{"UnknownRelation", "consistency:\n  drug_drug:\n    x: [y]\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seed, err := ParseSeed([]byte(tt.yaml))
			if err == nil {
				_, err = seed.ReferenceData()
			}
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSeed_Missing(t *testing.T) {
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
