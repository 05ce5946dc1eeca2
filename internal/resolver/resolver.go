// Package resolver maps a diagnosis and procedure set to a billing code
// through a fixed chain of fallback strategies.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimengine/internal/cache"
	"github.com/opensource-finance/claimengine/internal/domain"
)

var tracer = otel.Tracer("claimengine-resolver")

const sharedKeyPrefix = "code:"

// Resolver runs the strategy chain behind an in-process LRU and an
// optional shared cache. It is safe for concurrent use.
type Resolver struct {
	strategies []Strategy
	local      *cache.LRU[domain.CodeResolution]
	shared     domain.Cache
	sharedTTL  time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSharedCache adds a second-level cache consulted after a local miss.
func WithSharedCache(c domain.Cache, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.shared = c
		r.sharedTTL = ttl
	}
}

// WithStrategies replaces the default chain.
func WithStrategies(strategies ...Strategy) Option {
	return func(r *Resolver) {
		r.strategies = strategies
	}
}

// New creates a resolver over store with the default five strategies.
func New(store domain.ReferenceStore, capacity int, ttl time.Duration, opts ...Option) *Resolver {
	r := &Resolver{
		strategies: DefaultStrategies(store),
		local:      cache.NewLRU[domain.CodeResolution](capacity, ttl),
		sharedTTL:  ttl,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a billing code for the request. On valid input it never
// reports "not found"; the last strategy always answers.
func (r *Resolver) Resolve(ctx context.Context, in domain.CodeRequest) (*domain.CodeResolution, error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve",
		trace.WithAttributes(
			attribute.String("claim.service_type", string(in.ServiceType)),
			attribute.String("claim.primary_diagnosis", in.PrimaryDiagnosis),
		),
	)
	defer span.End()

	req, err := NewRequest(in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	key := req.CacheKey()

	if res, ok := r.local.Get(key); ok {
		res.CacheHit = true
		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.String("resolver.strategy", string(res.Strategy)))
		return &res, nil
	}

	if res := r.sharedGet(ctx, key); res != nil {
		r.local.Put(key, *res)
		res.CacheHit = true
		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.String("resolver.strategy", string(res.Strategy)))
		return res, nil
	}

	for _, s := range r.strategies {
		res, err := s.Attempt(ctx, req)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%s: %w", s.Name(), err)
		}
		if res == nil || res.BillingCode == "" {
			continue
		}

		res.CacheHit = false
		r.local.Put(key, *res)
		r.sharedSet(ctx, key, res)

		span.SetAttributes(
			attribute.Bool("cache.hit", false),
			attribute.String("resolver.strategy", string(res.Strategy)),
			attribute.Int("resolver.level", res.Strategy.Level()),
		)
		return res, nil
	}

	// Only reachable with a custom chain that omits the rule-based level.
	return nil, fmt.Errorf("%w: no strategy produced a code for %s", domain.ErrInvalidClaimInput, req.Diagnosis)
}

func (r *Resolver) sharedGet(ctx context.Context, key string) *domain.CodeResolution {
	if r.shared == nil {
		return nil
	}
	data, err := r.shared.Get(ctx, sharedKeyPrefix+key)
	if err != nil {
		slog.Warn("shared code cache read failed", "key", key, "error", err)
		return nil
	}
	if data == nil {
		return nil
	}
	var res domain.CodeResolution
	if err := json.Unmarshal(data, &res); err != nil {
		slog.Warn("discarding corrupt shared cache entry", "key", key, "error", err)
		return nil
	}
	return &res
}

func (r *Resolver) sharedSet(ctx context.Context, key string, res *domain.CodeResolution) {
	if r.shared == nil {
		return
	}
	data, err := json.Marshal(res)
	if err != nil {
		return
	}
	if err := r.shared.Set(ctx, sharedKeyPrefix+key, data, r.sharedTTL); err != nil {
		slog.Warn("shared code cache write failed", "key", key, "error", err)
	}
}

// Stats returns the local cache statistics.
func (r *Resolver) Stats() cache.Stats {
	return r.local.Stats()
}

// Purge drops every locally cached resolution.
func (r *Resolver) Purge() {
	r.local.Purge()
}
