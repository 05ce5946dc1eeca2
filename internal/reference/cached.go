package reference

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/claimengine/internal/cache"
	"github.com/opensource-finance/claimengine/internal/codes"
	"github.com/opensource-finance/claimengine/internal/domain"
)

// CachedStore memoizes pattern, procedure and group-rule lookups of an
// underlying store in per-table LRUs. Concurrent misses for the same key
// share one store call. Errors are never cached. Tariff lookups pass
// through; the tariff resolver keeps its own cache.
type CachedStore struct {
	store domain.ReferenceStore

	patterns   *cache.LRU[[]domain.EmpiricalPattern]
	procedures *cache.LRU[procedureLookup]
	groupRules *cache.LRU[[]domain.DiagnosisGroupRule]

	group singleflight.Group
}

// procedureLookup caches unknown codes as well as known ones.
type procedureLookup struct {
	info *domain.ProcedureInfo
}

const groupRulesKey = "all"

// NewCachedStore wraps store with LRUs of the given bounds.
func NewCachedStore(store domain.ReferenceStore, capacity int, ttl time.Duration) *CachedStore {
	return &CachedStore{
		store:      store,
		patterns:   cache.NewLRU[[]domain.EmpiricalPattern](capacity, ttl),
		procedures: cache.NewLRU[procedureLookup](capacity, ttl),
		groupRules: cache.NewLRU[[]domain.DiagnosisGroupRule](1, ttl),
	}
}

// PatternsByDiagnosis implements domain.ReferenceStore.
func (c *CachedStore) PatternsByDiagnosis(ctx context.Context, serviceType domain.ServiceType, diagnosis string) ([]domain.EmpiricalPattern, error) {
	key := "dx|" + patternKey(serviceType, codes.Diagnosis(diagnosis))
	return c.loadPatterns(ctx, key, func(ctx context.Context) ([]domain.EmpiricalPattern, error) {
		return c.store.PatternsByDiagnosis(ctx, serviceType, diagnosis)
	})
}

// PatternsByCategory implements domain.ReferenceStore.
func (c *CachedStore) PatternsByCategory(ctx context.Context, serviceType domain.ServiceType, category string) ([]domain.EmpiricalPattern, error) {
	key := "cat|" + patternKey(serviceType, codes.Category(category))
	return c.loadPatterns(ctx, key, func(ctx context.Context) ([]domain.EmpiricalPattern, error) {
		return c.store.PatternsByCategory(ctx, serviceType, category)
	})
}

func (c *CachedStore) loadPatterns(ctx context.Context, key string, load func(context.Context) ([]domain.EmpiricalPattern, error)) ([]domain.EmpiricalPattern, error) {
	if v, ok := c.patterns.Get(key); ok {
		return v, nil
	}
	v, err := c.shared(ctx, key, func(ctx context.Context) (any, error) {
		patterns, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.patterns.Put(key, patterns)
		return patterns, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.EmpiricalPattern), nil
}

// Procedure implements domain.ReferenceStore.
func (c *CachedStore) Procedure(ctx context.Context, code string) (*domain.ProcedureInfo, error) {
	key := codes.Procedure(code)
	if v, ok := c.procedures.Get(key); ok {
		return v.info, nil
	}
	v, err := c.shared(ctx, "proc|"+key, func(ctx context.Context) (any, error) {
		info, err := c.store.Procedure(ctx, code)
		if err != nil {
			return nil, err
		}
		lookup := procedureLookup{info: info}
		c.procedures.Put(key, lookup)
		return lookup, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(procedureLookup).info, nil
}

// GroupRules implements domain.ReferenceStore.
func (c *CachedStore) GroupRules(ctx context.Context) ([]domain.DiagnosisGroupRule, error) {
	if v, ok := c.groupRules.Get(groupRulesKey); ok {
		return v, nil
	}
	v, err := c.shared(ctx, "rules|"+groupRulesKey, func(ctx context.Context) (any, error) {
		rules, err := c.store.GroupRules(ctx)
		if err != nil {
			return nil, err
		}
		c.groupRules.Put(groupRulesKey, rules)
		return rules, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.DiagnosisGroupRule), nil
}

// shared runs load once per key for all concurrent callers. The load is
// detached from the cancellation of whichever caller started it; each
// caller stops waiting when its own ctx is done.
func (c *CachedStore) shared(ctx context.Context, key string, load func(context.Context) (any, error)) (any, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		return load(detached)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// Tariff implements domain.ReferenceStore.
func (c *CachedStore) Tariff(ctx context.Context, key domain.TariffKey) (*domain.TariffEntry, error) {
	return c.store.Tariff(ctx, key)
}

// Stats returns the counters of each table cache.
func (c *CachedStore) Stats() map[string]cache.Stats {
	return map[string]cache.Stats{
		"patterns":    c.patterns.Stats(),
		"procedures":  c.procedures.Stats(),
		"group_rules": c.groupRules.Stats(),
	}
}

var _ domain.ReferenceStore = (*CachedStore)(nil)
