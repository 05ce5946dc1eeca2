package reference

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/claimengine/internal/domain"
)

// Source is a repository able to serve and bulk-load reference tables.
type Source interface {
	domain.ReferenceStore
	LoadReferenceData(ctx context.Context) (*domain.ReferenceData, error)
	ConsistencyRules(ctx context.Context, relation domain.Relation) (map[string][]string, error)
}

// Loaded is the reference layer handed to the resolvers.
type Loaded struct {
	// Store serves lookups through per-table caches.
	Store *CachedStore

	// Rules are the consistency rule maps, loaded once.
	Rules map[domain.Relation]map[string][]string

	Mode domain.ReferenceMode
}

// Load builds the reference layer from src. In snapshot mode every table
// is read once into memory; in live mode lookups go to src on cache miss.
func Load(ctx context.Context, src Source, mode domain.ReferenceMode, capacity int, ttl time.Duration) (*Loaded, error) {
	loaded := &Loaded{Mode: mode}

	switch mode {
	case "", domain.ReferenceSnapshot:
		loaded.Mode = domain.ReferenceSnapshot
		data, err := src.LoadReferenceData(ctx)
		if err != nil {
			return nil, fmt.Errorf("load reference data: %w", err)
		}
		snap, err := NewSnapshot(data)
		if err != nil {
			return nil, fmt.Errorf("index reference data: %w", err)
		}
		loaded.Store = NewCachedStore(snap, capacity, ttl)
		loaded.Rules = make(map[domain.Relation]map[string][]string, len(domain.Relations))
		for _, rel := range domain.Relations {
			loaded.Rules[rel] = snap.ConsistencyRules(rel)
		}
		slog.Info("reference snapshot loaded", "counts", snap.Counts())

	case domain.ReferenceLive:
		loaded.Store = NewCachedStore(src, capacity, ttl)
		loaded.Rules = make(map[domain.Relation]map[string][]string, len(domain.Relations))
		for _, rel := range domain.Relations {
			rules, err := src.ConsistencyRules(ctx, rel)
			if err != nil {
				return nil, fmt.Errorf("load consistency rules: %w", err)
			}
			loaded.Rules[rel] = rules
		}
		slog.Info("reference store in live mode")

	default:
		return nil, fmt.Errorf("unsupported reference mode: %s", mode)
	}

	return loaded, nil
}

// Writer persists reference tables.
type Writer interface {
	SaveReferenceData(ctx context.Context, data *domain.ReferenceData) error
}

// ImportResult summarizes an import.
type ImportResult struct {
	Tariffs          int
	Patterns         int
	GroupRules       int
	Procedures       int
	ConsistencyRules int

	// Policy carries verdict band overrides found in the seed file.
	Policy map[domain.Relation]domain.VerdictBand
}

// Import writes a YAML seed and an optional tariff Parquet file into w.
// Either path may be empty.
func Import(ctx context.Context, w Writer, seedPath, parquetPath string) (*ImportResult, error) {
	data := &domain.ReferenceData{}
	result := &ImportResult{}

	if seedPath != "" {
		seed, err := LoadSeed(seedPath)
		if err != nil {
			return nil, err
		}
		if data, err = seed.ReferenceData(); err != nil {
			return nil, fmt.Errorf("invalid seed %s: %w", seedPath, err)
		}
		result.Policy = seed.Policy
	}

	if parquetPath != "" {
		tariffs, err := ReadTariffParquet(parquetPath)
		if err != nil {
			return nil, err
		}
		data.Tariffs = append(data.Tariffs, tariffs...)
	}

	if err := w.SaveReferenceData(ctx, data); err != nil {
		return nil, fmt.Errorf("save reference data: %w", err)
	}

	result.Tariffs = len(data.Tariffs)
	result.Patterns = len(data.Patterns)
	result.GroupRules = len(data.GroupRules)
	result.Procedures = len(data.Procedures)
	result.ConsistencyRules = len(data.ConsistencyRules)
	return result, nil
}
