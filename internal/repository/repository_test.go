package repository

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/domain"
)

func testReferenceData() *domain.ReferenceData {
	return &domain.ReferenceData{
		Tariffs: []domain.TariffEntry{
			{
				BillingCode: "A-4-10-I", Description: "Pneumonia", Region: 1,
				HospitalClass: "C", HospitalType: domain.HospitalGovernment,
				Prices: map[domain.PayerClass]decimal.Decimal{
					domain.PayerClass1: decimal.RequireFromString("5100000"),
					domain.PayerClass2: decimal.RequireFromString("4370000"),
					domain.PayerClass3: decimal.RequireFromString("3640000"),
				},
			},
			{
				BillingCode: "A-4-10-I", Description: "Pneumonia", Region: 1,
				HospitalClass: "C", HospitalType: domain.HospitalPrivate,
				Prices: map[domain.PayerClass]decimal.Decimal{
					domain.PayerClass1: decimal.RequireFromString("5350000"),
					domain.PayerClass2: decimal.RequireFromString("4590000"),
				},
			},
		},
		Patterns: []domain.EmpiricalPattern{
			{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "j189", Procedures: []string{"93.94", "8744"}, MainProcedure: "87.44", BillingCode: "J-4-16-I", Frequency: 12},
			{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "J18.9", Procedures: []string{"87.44"}, BillingCode: "J-4-17-I", Frequency: 3},
			{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "J18.0", Procedures: []string{"96.04"}, BillingCode: "J-1-20-I", Frequency: 5},
		},
		GroupRules: []domain.DiagnosisGroupRule{
			{RangeStart: "J00", RangeEnd: "J99.9", Category: "J", Priority: 10},
			{RangeStart: "A00", RangeEnd: "B99.9", Category: "A", Priority: 10},
		},
		Procedures: []domain.ProcedureInfo{
			{Code: "87.44", ChapterRange: "87-99", IsMajor: false, BodySystem: "imaging"},
			{Code: "3601", ChapterRange: "35-39", IsMajor: true, BodySystem: "cardiovascular"},
		},
		ConsistencyRules: []domain.ConsistencyRule{
			{Relation: domain.RelationDiagnosisProcedure, Key: "J18.9", Values: []string{"87.44", "93.94"}},
			{Relation: domain.RelationDiagnosisDrug, Key: "J18.9", Values: []string{"ceftriaxone", "azithromycin"}},
		},
	}
}

func TestSQLiteRepository(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimengine-test.db")

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: path,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	runRepositorySuite(t, repo)
}

// TestPostgresRepository runs the same suite against an embedded
// PostgreSQL through both postgres drivers. It downloads a postgres
// binary on first use, so it only runs with CLAIMENGINE_PG_TESTS=1.
func TestPostgresRepository(t *testing.T) {
	if os.Getenv("CLAIMENGINE_PG_TESTS") != "1" {
		t.Skip("set CLAIMENGINE_PG_TESTS=1 to run embedded postgres tests")
	}

	pg := startEmbeddedPostgres(t)
	defer pg.Stop()

	for _, driver := range []string{"postgres", "pgx"} {
		t.Run(driver, func(t *testing.T) {
			repo, err := New(domain.RepositoryConfig{
				Driver:           driver,
				PostgresHost:     "localhost",
				PostgresPort:     embeddedPort,
				PostgresUser:     "test",
				PostgresPassword: "test",
				PostgresDB:       "test",
			})
			if err != nil {
				t.Fatalf("failed to create repository: %v", err)
			}
			defer repo.Close()

			resetTables(t, repo)
			runRepositorySuite(t, repo)
		})
	}
}

func resetTables(t *testing.T, repo *SQLRepository) {
	t.Helper()
	for _, table := range []string{"tariffs", "empirical_patterns", "diagnosis_group_rules", "procedures", "consistency_rules", "analyses"} {
		if _, err := repo.db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("failed to reset %s: %v", table, err)
		}
	}
}

func runRepositorySuite(t *testing.T, repo *SQLRepository) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	if err := repo.SaveReferenceData(ctx, testReferenceData()); err != nil {
		t.Fatalf("SaveReferenceData failed: %v", err)
	}

	t.Run("SaveIsIdempotent", func(t *testing.T) {
		if err := repo.SaveReferenceData(ctx, testReferenceData()); err != nil {
			t.Fatalf("second SaveReferenceData failed: %v", err)
		}
		tariffs, err := repo.ListTariffs(ctx)
		if err != nil {
			t.Fatalf("ListTariffs failed: %v", err)
		}
		if len(tariffs) != 2 {
			t.Errorf("expected 2 tariffs after re-save, got %d", len(tariffs))
		}
	})

	t.Run("PatternsByDiagnosis", func(t *testing.T) {
		patterns, err := repo.PatternsByDiagnosis(ctx, domain.ServiceInpatient, "J18.9")
		if err != nil {
			t.Fatalf("PatternsByDiagnosis failed: %v", err)
		}
		if len(patterns) != 2 {
			t.Fatalf("expected 2 patterns, got %d", len(patterns))
		}
		first := patterns[0]
		if first.BillingCode != "J-4-16-I" || first.Frequency != 12 {
			t.Errorf("expected most frequent pattern first, got %+v", first)
		}
		if len(first.Procedures) != 2 || first.Procedures[0] != "87.44" || first.Procedures[1] != "93.94" {
			t.Errorf("expected normalized sorted signature, got %v", first.Procedures)
		}
		if first.MainProcedure != "87.44" {
			t.Errorf("expected main procedure 87.44, got %q", first.MainProcedure)
		}
	})

	t.Run("PatternsByCategory", func(t *testing.T) {
		patterns, err := repo.PatternsByCategory(ctx, domain.ServiceInpatient, "J18")
		if err != nil {
			t.Fatalf("PatternsByCategory failed: %v", err)
		}
		if len(patterns) != 3 {
			t.Errorf("expected 3 patterns in J18, got %d", len(patterns))
		}

		patterns, _ = repo.PatternsByCategory(ctx, domain.ServiceOutpatient, "J18")
		if len(patterns) != 0 {
			t.Errorf("expected no outpatient patterns, got %d", len(patterns))
		}
	})

	t.Run("Procedure", func(t *testing.T) {
		p, err := repo.Procedure(ctx, "36.01")
		if err != nil {
			t.Fatalf("Procedure failed: %v", err)
		}
		if p == nil || !p.IsMajor || p.ChapterRange != "35-39" {
			t.Errorf("unexpected procedure: %+v", p)
		}

		p, err = repo.Procedure(ctx, "00.00")
		if err != nil || p != nil {
			t.Errorf("expected nil, nil for unknown procedure, got %+v, %v", p, err)
		}
	})

	t.Run("GroupRules", func(t *testing.T) {
		rules, err := repo.GroupRules(ctx)
		if err != nil {
			t.Fatalf("GroupRules failed: %v", err)
		}
		if len(rules) != 2 {
			t.Errorf("expected 2 rules, got %d", len(rules))
		}
	})

	t.Run("TariffExactKey", func(t *testing.T) {
		gov, err := repo.Tariff(ctx, domain.TariffKey{
			BillingCode: "A-4-10-I", Region: 1, HospitalClass: "C", HospitalType: domain.HospitalGovernment,
		})
		if err != nil {
			t.Fatalf("Tariff failed: %v", err)
		}
		priv, err := repo.Tariff(ctx, domain.TariffKey{
			BillingCode: "A-4-10-I", Region: 1, HospitalClass: "C", HospitalType: domain.HospitalPrivate,
		})
		if err != nil {
			t.Fatalf("Tariff failed: %v", err)
		}

		if !gov.Prices[domain.PayerClass1].Equal(decimal.RequireFromString("5100000")) {
			t.Errorf("unexpected government price: %s", gov.Prices[domain.PayerClass1])
		}
		if gov.Prices[domain.PayerClass1].Equal(priv.Prices[domain.PayerClass1]) {
			t.Error("government and private tariffs must differ")
		}
		if _, ok := priv.Prices[domain.PayerClass3]; ok {
			t.Error("expected missing class 3 price to stay absent")
		}
	})

	t.Run("TariffNotFound", func(t *testing.T) {
		_, err := repo.Tariff(ctx, domain.TariffKey{
			BillingCode: "A-4-10-I", Region: 2, HospitalClass: "C", HospitalType: domain.HospitalGovernment,
		})
		if !errors.Is(err, domain.ErrTariffNotFound) {
			t.Errorf("expected ErrTariffNotFound, got %v", err)
		}
	})

	t.Run("ConsistencyRules", func(t *testing.T) {
		rules, err := repo.ConsistencyRules(ctx, domain.RelationDiagnosisDrug)
		if err != nil {
			t.Fatalf("ConsistencyRules failed: %v", err)
		}
		if got := rules["J18.9"]; len(got) != 2 || got[0] != "ceftriaxone" {
			t.Errorf("unexpected rule values: %v", got)
		}
	})

	t.Run("LoadReferenceData", func(t *testing.T) {
		data, err := repo.LoadReferenceData(ctx)
		if err != nil {
			t.Fatalf("LoadReferenceData failed: %v", err)
		}
		if len(data.Tariffs) != 2 || len(data.Patterns) != 3 || len(data.GroupRules) != 2 ||
			len(data.Procedures) != 2 || len(data.ConsistencyRules) != 2 {
			t.Errorf("unexpected table sizes: %d/%d/%d/%d/%d",
				len(data.Tariffs), len(data.Patterns), len(data.GroupRules),
				len(data.Procedures), len(data.ConsistencyRules))
		}
	})

	t.Run("RejectsInvalidPattern", func(t *testing.T) {
		err := repo.SaveReferenceData(ctx, &domain.ReferenceData{
			Patterns: []domain.EmpiricalPattern{{ServiceType: domain.ServiceInpatient, PrimaryDiagnosis: "J18.9", BillingCode: "X", Frequency: 0}},
		})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("SaveAndGetAnalysis", func(t *testing.T) {
		a := &domain.ClaimAnalysis{
			ID:        "analysis-001",
			ClaimID:   "claim-001",
			Timestamp: time.Now().UTC(),
			Code: &domain.CodeResolution{
				BillingCode: "J-4-16-I",
				Strategy:    domain.StrategyExactFull,
				Confidence:  98.7,
			},
			Consistency: &domain.ConsistencyResult{Level: domain.LevelHigh, AggregateScore: 3},
			Flags:       []string{domain.FlagTariffUnavailable},
		}
		if err := repo.SaveAnalysis(ctx, a); err != nil {
			t.Fatalf("SaveAnalysis failed: %v", err)
		}

		got, err := repo.GetAnalysis(ctx, a.ID)
		if err != nil {
			t.Fatalf("GetAnalysis failed: %v", err)
		}
		if got.Code.BillingCode != "J-4-16-I" || got.Consistency.Level != domain.LevelHigh {
			t.Errorf("unexpected analysis: %+v", got)
		}
		if len(got.Flags) != 1 || got.Flags[0] != domain.FlagTariffUnavailable {
			t.Errorf("unexpected flags: %v", got.Flags)
		}

		if _, err := repo.GetAnalysis(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestClosedRepositoryReportsUnavailable(t *testing.T) {
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "closed.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	repo.Close()

	_, err = repo.PatternsByDiagnosis(context.Background(), domain.ServiceInpatient, "J18.9")
	if !errors.Is(err, domain.ErrReferenceStoreUnavailable) {
		t.Errorf("expected ErrReferenceStoreUnavailable, got %v", err)
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLRepository{driver: "pgx"}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("rebind = %q", got)
	}
	lite := &SQLRepository{driver: "sqlite"}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestPostgresURL(t *testing.T) {
	got := PostgresURL(domain.RepositoryConfig{PostgresUser: "u", PostgresPassword: "p"})
	want := "postgres://u:p@localhost:5432/claimengine?sslmode=disable"
	if got != want {
		t.Errorf("PostgresURL = %q, want %q", got, want)
	}
}

func TestUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
