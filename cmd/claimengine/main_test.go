package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/opensource-finance/claimengine/internal/domain"
)

const seedFixture = "../../internal/reference/testdata/seed.yaml"

func testConfig(t *testing.T) *domain.Config {
	t.Helper()
	cfg := domain.DefaultConfig()
	cfg.Repository.SQLitePath = filepath.Join(t.TempDir(), "claimengine.db")
	cfg.Reference.SeedPath = seedFixture
	return cfg
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logger := newLogger(domain.LoggingConfig{Level: tt.level, Format: "text"})
			ctx := context.Background()
			if !logger.Enabled(ctx, tt.want) {
				t.Errorf("expected %v enabled", tt.want)
			}
			if tt.want > slog.LevelDebug && logger.Enabled(ctx, tt.want-4) {
				t.Errorf("expected %v disabled", tt.want-4)
			}
		})
	}
}

func TestNewApp_SeedsEmptyDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	a, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	out, err := resolveOne(ctx, a, domain.CodeRequest{
		ServiceType:      domain.ServiceInpatient,
		PrimaryDiagnosis: "J18.9",
		Procedures:       []string{"93.96", "87.44"},
	}, domain.Facility{
		Region:        1,
		HospitalClass: "C",
		HospitalType:  domain.HospitalGovernment,
		PayerClass:    domain.PayerClass3,
	}, []string{"Ceftriaxone 1g"})
	if err != nil {
		t.Fatalf("resolveOne failed: %v", err)
	}

	if out.Code.BillingCode != "J-4-16-I" {
		t.Errorf("expected J-4-16-I, got %s", out.Code.BillingCode)
	}
	if out.Code.Strategy != domain.StrategyExactFull {
		t.Errorf("expected exact match, got %s", out.Code.Strategy)
	}
	if out.Tariff == nil || out.Tariff.Price.String() != "5178600" {
		t.Errorf("expected class 3 government price 5178600, got %+v", out.Tariff)
	}
	if out.Consistency.Level != domain.LevelHigh {
		t.Errorf("expected high consistency, got %s", out.Consistency.Level)
	}

	stats := a.cacheStats()
	for _, name := range []string{"patterns", "procedures", "group_rules", "code_resolutions", "tariffs"} {
		if _, ok := stats[name]; !ok {
			t.Errorf("expected %s in cache stats", name)
		}
	}
}

func TestNewApp_TariffUnavailable(t *testing.T) {
	ctx := context.Background()
	a, err := newApp(ctx, testConfig(t))
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	defer a.Close()

	out, err := resolveOne(ctx, a, domain.CodeRequest{
		ServiceType:      domain.ServiceInpatient,
		PrimaryDiagnosis: "J18.9",
		Procedures:       []string{"87.44"},
	}, domain.Facility{
		Region:        1,
		HospitalClass: "C",
		HospitalType:  domain.HospitalGovernment,
		PayerClass:    domain.PayerClass1,
	}, nil)
	if err != nil {
		t.Fatalf("resolveOne failed: %v", err)
	}

	if out.Code.BillingCode != "J-4-16-II" {
		t.Errorf("expected J-4-16-II, got %s", out.Code.BillingCode)
	}
	if out.Tariff != nil || out.TariffError != domain.ErrTariffNotFound.Error() {
		t.Errorf("expected tariff unavailable, got %+v / %q", out.Tariff, out.TariffError)
	}
}

func TestSeedIfEmpty_SkipsPopulatedDatabase(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	first, err := newApp(ctx, cfg)
	if err != nil {
		t.Fatalf("newApp failed: %v", err)
	}
	first.Close()

	cfg.Reference.SeedPath = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := newApp(ctx, cfg); err == nil {
		t.Error("expected missing seed file to fail even when data exists")
	}
}
