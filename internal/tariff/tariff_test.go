package tariff

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/claimengine/internal/domain"
	"github.com/opensource-finance/claimengine/internal/reference"
)

func prices(c1, c2, c3 string) map[domain.PayerClass]decimal.Decimal {
	out := map[domain.PayerClass]decimal.Decimal{}
	for i, s := range []string{c1, c2, c3} {
		if s == "" {
			continue
		}
		out[domain.PayerClass(i+1)] = decimal.RequireFromString(s)
	}
	return out
}

type countingStore struct {
	domain.ReferenceStore
	calls atomic.Int64
}

func (s *countingStore) Tariff(ctx context.Context, key domain.TariffKey) (*domain.TariffEntry, error) {
	s.calls.Add(1)
	return s.ReferenceStore.Tariff(ctx, key)
}

func newTestResolver(t *testing.T) (*Resolver, *countingStore) {
	t.Helper()
	snap, err := reference.NewSnapshot(&domain.ReferenceData{
		Tariffs: []domain.TariffEntry{
			{BillingCode: "A-4-10-I", Description: "Infeksi usus", Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment, Prices: prices("5416300.00", "4642500.00", "3868800.00")},
			{BillingCode: "A-4-10-I", Description: "Infeksi usus", Region: 1, HospitalClass: "A", HospitalType: domain.HospitalPrivate, Prices: prices("5687100.00", "4874700.00", "4062200.00")},
			{BillingCode: "A-4-10-I", Description: "Infeksi usus", Region: 2, HospitalClass: "A", HospitalType: domain.HospitalGovernment, Prices: prices("5489000.00", "4705000.00", "3920800.00")},
			{BillingCode: "Q-5-44-0", Description: "Hipertensi", Region: 1, HospitalClass: "C", HospitalType: domain.HospitalPrivate, Prices: prices("", "", "191000.00")},
		},
	})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	store := &countingStore{ReferenceStore: snap}
	return New(store, 16, time.Hour), store
}

func TestResolveDistinguishesHospitalType(t *testing.T) {
	r, _ := newTestResolver(t)
	gov := domain.Facility{Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: domain.PayerClass1}
	priv := gov
	priv.HospitalType = domain.HospitalPrivate

	g, err := r.Resolve(context.Background(), "A-4-10-I", gov)
	if err != nil {
		t.Fatalf("government tariff failed: %v", err)
	}
	p, err := r.Resolve(context.Background(), "A-4-10-I", priv)
	if err != nil {
		t.Fatalf("private tariff failed: %v", err)
	}

	if g.Price.Equal(p.Price) {
		t.Errorf("expected distinct prices, both were %s", g.Price)
	}
	if !g.Price.Equal(decimal.RequireFromString("5416300")) {
		t.Errorf("expected government price 5416300, got %s", g.Price)
	}
	if !p.Price.Equal(decimal.RequireFromString("5687100")) {
		t.Errorf("expected private price 5687100, got %s", p.Price)
	}
}

func TestResolvePayerClassAndRegion(t *testing.T) {
	r, _ := newTestResolver(t)
	tests := []struct {
		name     string
		facility domain.Facility
		want     string
	}{
		{"Class2", domain.Facility{Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 2}, "4642500"},
		{"Class3", domain.Facility{Region: 1, HospitalClass: "a", HospitalType: domain.HospitalGovernment, PayerClass: 3}, "3868800"},
		{"Region2", domain.Facility{Region: 2, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 1}, "5489000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := r.Resolve(context.Background(), "a-4-10-i", tt.facility)
			if err != nil {
				t.Fatalf("Resolve failed: %v", err)
			}
			if !q.Price.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, q.Price)
			}
			if q.BillingCode != "A-4-10-I" {
				t.Errorf("expected normalized code, got %s", q.BillingCode)
			}
		})
	}
}

func TestResolveNotFound(t *testing.T) {
	r, _ := newTestResolver(t)
	tests := []struct {
		name     string
		code     string
		facility domain.Facility
	}{
		{"UnknownCode", "Z-9-99-I", domain.Facility{Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 1}},
		{"NoRowForRegion", "A-4-10-I", domain.Facility{Region: 3, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 1}},
		{"NoRowForType", "A-4-10-I", domain.Facility{Region: 2, HospitalClass: "A", HospitalType: domain.HospitalPrivate, PayerClass: 1}},
		{"NoPriceForClass", "Q-5-44-0", domain.Facility{Region: 1, HospitalClass: "C", HospitalType: domain.HospitalPrivate, PayerClass: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := r.Resolve(context.Background(), tt.code, tt.facility)
			if !errors.Is(err, domain.ErrTariffNotFound) {
				t.Fatalf("expected ErrTariffNotFound, got %v (%+v)", err, q)
			}
			if q != nil {
				t.Error("expected no quote")
			}
		})
	}
}

func TestResolveInvalidFacility(t *testing.T) {
	r, store := newTestResolver(t)
	bad := []domain.Facility{
		{Region: 0, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 1},
		{Region: 1, HospitalClass: "", HospitalType: domain.HospitalGovernment, PayerClass: 1},
		{Region: 1, HospitalClass: "A", HospitalType: "clinic", PayerClass: 1},
		{Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 4},
	}
	for _, f := range bad {
		if _, err := r.Resolve(context.Background(), "A-4-10-I", f); !errors.Is(err, domain.ErrInvalidClaimInput) {
			t.Errorf("facility %+v: expected ErrInvalidClaimInput, got %v", f, err)
		}
	}
	if _, err := r.Resolve(context.Background(), " ", bad[0]); !errors.Is(err, domain.ErrInvalidClaimInput) {
		t.Errorf("empty code: expected ErrInvalidClaimInput, got %v", err)
	}
	if store.calls.Load() != 0 {
		t.Error("invalid input should not reach the store")
	}
}

func TestResolveCachesFoundRows(t *testing.T) {
	r, store := newTestResolver(t)
	f := domain.Facility{Region: 1, HospitalClass: "A", HospitalType: domain.HospitalGovernment, PayerClass: 1}

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), "A-4-10-I", f); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	// Another payer class shares the cached row.
	f.PayerClass = 2
	if _, err := r.Resolve(context.Background(), "A-4-10-I", f); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if store.calls.Load() != 1 {
		t.Errorf("expected 1 store call, got %d", store.calls.Load())
	}

	f.Region = 4
	r.Resolve(context.Background(), "A-4-10-I", f)
	r.Resolve(context.Background(), "A-4-10-I", f)
	if store.calls.Load() != 3 {
		t.Errorf("misses should not be cached, got %d store calls", store.calls.Load())
	}
}

func TestResolveMixedCaseReferenceRows(t *testing.T) {
	snap, err := reference.NewSnapshot(&domain.ReferenceData{
		Tariffs: []domain.TariffEntry{
			{BillingCode: " a-4-10-i", Region: 1, HospitalClass: "b ", HospitalType: domain.HospitalGovernment, Prices: prices("5416300", "", "")},
		},
	})
	if err != nil {
		t.Fatalf("NewSnapshot failed: %v", err)
	}
	r := New(snap, 4, time.Hour)

	for _, code := range []string{"a-4-10-i", "A-4-10-I"} {
		q, err := r.Resolve(context.Background(), code, domain.Facility{
			Region: 1, HospitalClass: "b", HospitalType: domain.HospitalGovernment, PayerClass: domain.PayerClass1,
		})
		if err != nil {
			t.Fatalf("Resolve(%s) failed: %v", code, err)
		}
		if q.Price.String() != "5416300" {
			t.Errorf("expected 5416300, got %s", q.Price)
		}
	}
}
