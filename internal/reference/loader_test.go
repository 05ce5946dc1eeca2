package reference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/claimengine/internal/domain"
	"github.com/opensource-finance/claimengine/internal/repository"
)

func newSQLite(t *testing.T) *repository.SQLRepository {
	t.Helper()
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "reference.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func importFixture(t *testing.T, repo *repository.SQLRepository) *ImportResult {
	t.Helper()
	result, err := Import(context.Background(), repo, seedFixture, "")
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	return result
}

func TestImport(t *testing.T) {
	repo := newSQLite(t)
	result := importFixture(t, repo)

	if result.Tariffs != 5 || result.Patterns != 4 || result.GroupRules != 2 || result.Procedures != 4 {
		t.Errorf("unexpected import counts: %+v", result)
	}
	if result.ConsistencyRules != 4 {
		t.Errorf("expected 4 consistency rules, got %d", result.ConsistencyRules)
	}
	if _, ok := result.Policy[domain.RelationProcedureDrug]; !ok {
		t.Error("expected policy override in result")
	}

	t.Run("Idempotent", func(t *testing.T) {
		importFixture(t, repo)
		data, err := repo.LoadReferenceData(context.Background())
		if err != nil {
			t.Fatalf("LoadReferenceData failed: %v", err)
		}
		if len(data.Tariffs) != 5 || len(data.Patterns) != 4 {
			t.Errorf("expected re-import to upsert, got %d tariffs and %d patterns", len(data.Tariffs), len(data.Patterns))
		}
	})
}

func TestImport_WithParquet(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()
	importFixture(t, repo)

	tariffs, err := repo.ListTariffs(ctx)
	if err != nil {
		t.Fatalf("ListTariffs failed: %v", err)
	}
	for i := range tariffs {
		tariffs[i].Region = 2
	}
	path := filepath.Join(t.TempDir(), "region2.parquet")
	if err := WriteTariffParquet(path, tariffs); err != nil {
		t.Fatalf("WriteTariffParquet failed: %v", err)
	}

	result, err := Import(ctx, repo, "", path)
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Tariffs != 5 || result.Patterns != 0 {
		t.Errorf("expected tariff-only import, got %+v", result)
	}

	all, _ := repo.ListTariffs(ctx)
	if len(all) != 10 {
		t.Errorf("expected 10 tariffs across two regions, got %d", len(all))
	}
}

func TestLoad_Modes(t *testing.T) {
	repo := newSQLite(t)
	importFixture(t, repo)
	ctx := context.Background()

	for _, mode := range []domain.ReferenceMode{domain.ReferenceSnapshot, domain.ReferenceLive} {
		t.Run(string(mode), func(t *testing.T) {
			loaded, err := Load(ctx, repo, mode, 64, time.Hour)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if loaded.Mode != mode {
				t.Errorf("expected mode %s, got %s", mode, loaded.Mode)
			}

			patterns, err := loaded.Store.PatternsByDiagnosis(ctx, domain.ServiceInpatient, "J18.9")
			if err != nil {
				t.Fatalf("PatternsByDiagnosis failed: %v", err)
			}
			if len(patterns) != 2 || patterns[0].BillingCode != "J-4-16-I" {
				t.Errorf("unexpected patterns: %+v", patterns)
			}
			if patterns[0].MainProcedure != "87.44" {
				t.Errorf("expected main procedure 87.44, got %s", patterns[0].MainProcedure)
			}

			entry, err := loaded.Store.Tariff(ctx, domain.TariffKey{
				BillingCode: "J-4-16-I", Region: 1, HospitalClass: "C", HospitalType: domain.HospitalPrivate,
			})
			if err != nil {
				t.Fatalf("Tariff failed: %v", err)
			}
			if entry.Prices[domain.PayerClass1].String() != "7612500" {
				t.Errorf("expected private class 1 price 7612500, got %s", entry.Prices[domain.PayerClass1])
			}

			if got := loaded.Rules[domain.RelationDiagnosisDrug]["J18"]; len(got) != 3 {
				t.Errorf("expected 3 drugs for J18, got %v", got)
			}
		})
	}
}

func TestLoad_UnknownMode(t *testing.T) {
	repo := newSQLite(t)
	if _, err := Load(context.Background(), repo, "lazy", 8, time.Minute); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestLoad_StoreUnavailable(t *testing.T) {
	repo := newSQLite(t)
	repo.Close()

	_, err := Load(context.Background(), repo, domain.ReferenceSnapshot, 8, time.Minute)
	if !errors.Is(err, domain.ErrReferenceStoreUnavailable) {
		t.Errorf("expected ErrReferenceStoreUnavailable, got %v", err)
	}
}

func TestImport_NormalizesTariffSpelling(t *testing.T) {
	repo := newSQLite(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "seed.yaml")
	seed := "tariffs:\n  - {billing_code: \" a-4-10-i \", region: 1, hospital_class: b, hospital_type: pemerintah, prices: {1: \"5416300\"}}\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("failed to write seed: %v", err)
	}
	if _, err := Import(ctx, repo, path, ""); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	key := domain.TariffKey{BillingCode: "A-4-10-I", Region: 1, HospitalClass: "B", HospitalType: domain.HospitalGovernment}
	if _, err := repo.Tariff(ctx, key); err != nil {
		t.Errorf("expected live lookup to find %s, got %v", key, err)
	}

	loaded, err := Load(ctx, repo, domain.ReferenceSnapshot, 8, time.Minute)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := loaded.Store.Tariff(ctx, key); err != nil {
		t.Errorf("expected snapshot lookup to find %s, got %v", key, err)
	}
}
