// Package tariff prices a billing code for a facility.
package tariff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimengine/internal/cache"
	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

var tracer = otel.Tracer("claimengine-tariff")

// Resolver looks up the exact (code, region, class, type) row and picks
// the price of the payer class. Found rows are memoized; misses are not.
type Resolver struct {
	store   domain.ReferenceStore
	entries *cache.LRU[domain.TariffEntry]
}

// New creates a tariff resolver over store.
func New(store domain.ReferenceStore, capacity int, ttl time.Duration) *Resolver {
	return &Resolver{
		store:   store,
		entries: cache.NewLRU[domain.TariffEntry](capacity, ttl),
	}
}

// Resolve returns the price of billingCode at facility. A missing row or
// a missing price for the payer class is ErrTariffNotFound; no price is
// ever substituted.
func (r *Resolver) Resolve(ctx context.Context, billingCode string, facility domain.Facility) (*domain.TariffQuote, error) {
	ctx, span := tracer.Start(ctx, "tariff.Resolve",
		trace.WithAttributes(
			attribute.String("tariff.billing_code", billingCode),
			attribute.Int("tariff.region", facility.Region),
			attribute.String("tariff.hospital_type", string(facility.HospitalType)),
		),
	)
	defer span.End()

	billingCode = codes.BillingCode(billingCode)
	if billingCode == "" {
		return nil, fmt.Errorf("%w: billing code is required", domain.ErrInvalidClaimInput)
	}
	if err := facility.Validate(); err != nil {
		return nil, err
	}
	facility.HospitalClass = codes.HospitalClass(facility.HospitalClass)

	key := domain.TariffKey{
		BillingCode:   billingCode,
		Region:        facility.Region,
		HospitalClass: facility.HospitalClass,
		HospitalType:  facility.HospitalType,
	}

	entry, hit := r.entries.Get(key.String())
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if !hit {
		found, err := r.store.Tariff(ctx, key)
		if err != nil {
			if !errors.Is(err, domain.ErrTariffNotFound) {
				span.RecordError(err)
			}
			return nil, err
		}
		entry = *found
		r.entries.Put(key.String(), entry)
	}

	price, ok := entry.Prices[facility.PayerClass]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no price for payer class %d", domain.ErrTariffNotFound, key, facility.PayerClass)
	}

	return &domain.TariffQuote{
		BillingCode: billingCode,
		Description: entry.Description,
		Facility:    facility,
		Price:       price,
	}, nil
}

// Stats returns the tariff cache statistics.
func (r *Resolver) Stats() cache.Stats {
	return r.entries.Stats()
}
