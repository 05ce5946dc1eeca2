package reference

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/domain"
)

func TestTariffParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tariffs.parquet")
	in := []domain.TariffEntry{
		{
			BillingCode: "A-4-10-I", Description: "Intestinal infection", Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment,
			Prices: map[domain.PayerClass]decimal.Decimal{
				domain.PayerClass1: decimal.RequireFromString("5416300"),
				domain.PayerClass2: decimal.RequireFromString("4642500.50"),
				domain.PayerClass3: decimal.RequireFromString("3868800"),
			},
		},
		{
			BillingCode: "Q-5-44-0", Region: 2, HospitalClass: "C", HospitalType: domain.HospitalPrivate,
			Prices: map[domain.PayerClass]decimal.Decimal{
				domain.PayerClass3: decimal.RequireFromString("215500"),
			},
		},
	}

	if err := WriteTariffParquet(path, in); err != nil {
		t.Fatalf("WriteTariffParquet failed: %v", err)
	}

	out, err := ReadTariffParquet(path)
	if err != nil {
		t.Fatalf("ReadTariffParquet failed: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(out))
	}

	if out[0].Key() != in[0].Key() {
		t.Errorf("expected key %s, got %s", in[0].Key(), out[0].Key())
	}
	if !out[0].Prices[domain.PayerClass2].Equal(in[0].Prices[domain.PayerClass2]) {
		t.Errorf("expected exact decimal price, got %s", out[0].Prices[domain.PayerClass2])
	}

	t.Run("MissingPricesStayMissing", func(t *testing.T) {
		if _, ok := out[1].Prices[domain.PayerClass1]; ok {
			t.Error("expected no class 1 price")
		}
		if len(out[1].Prices) != 1 {
			t.Errorf("expected one price, got %v", out[1].Prices)
		}
	})
}

func TestReadTariffParquet_Missing(t *testing.T) {
	if _, err := ReadTariffParquet(filepath.Join(t.TempDir(), "none.parquet")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestTariffParquet_NormalizesSpelling(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lower.parquet")
	in := []domain.TariffEntry{{
		BillingCode: "q-5-44-0", Region: 1, HospitalClass: " c", HospitalType: domain.HospitalPrivate,
		Prices: map[domain.PayerClass]decimal.Decimal{domain.PayerClass3: decimal.RequireFromString("215500")},
	}}
	if err := WriteTariffParquet(path, in); err != nil {
		t.Fatalf("WriteTariffParquet failed: %v", err)
	}
	out, err := ReadTariffParquet(path)
	if err != nil {
		t.Fatalf("ReadTariffParquet failed: %v", err)
	}
	if out[0].BillingCode != "Q-5-44-0" || out[0].HospitalClass != "C" {
		t.Errorf("expected Q-5-44-0 class C, got %s class %q", out[0].BillingCode, out[0].HospitalClass)
	}
}
