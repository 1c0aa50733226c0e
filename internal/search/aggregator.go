// Package search implements the cross-provider flight search: concurrent
// fan-out to every registered adapter, priority merge, deduplication, and
// result capping.
package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"seatscan/internal/providers"
	"seatscan/internal/types"
)

// ProviderMetrics receives one data point per provider per search. A nil
// emitter disables emission.
type ProviderMetrics interface {
	RecordProviderSearch(ctx context.Context, tag types.ProviderTag, ok bool, latency time.Duration)
}

// providerResult is one adapter's explicit outcome. Offers and Err are
// mutually exclusive; an empty Offers with a nil Err is a legitimate
// "nothing found".
type providerResult struct {
	tag     types.ProviderTag
	offers  []types.NormalizedOffer
	err     error
	elapsed time.Duration
}

// Aggregator fans a search out to both providers concurrently and merges the
// results. The REST provider wins ties: when both providers return the same
// physical flight, its offer is kept and the session provider's copy is
// dropped. One provider failing degrades the result set; both failing is an
// error.
type Aggregator struct {
	amadeus providers.Adapter
	sabre   providers.Adapter
	metrics ProviderMetrics
	logger  *slog.Logger
}

// NewAggregator creates an Aggregator over the two provider adapters. Metrics
// may be nil.
func NewAggregator(amadeus, sabre providers.Adapter, metrics ProviderMetrics, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{amadeus: amadeus, sabre: sabre, metrics: metrics, logger: logger}
}

// sourcesLabel names both upstream sources. It is stamped on every result
// regardless of which providers actually contributed, so response shape does
// not leak per-request provider health.
func sourcesLabel() string {
	return strings.Join([]string{
		string(types.ProviderAmadeus),
		string(types.ProviderSabre),
	}, ",")
}

// Search runs the fan-out and merge. Both providers are always queried to
// completion; a slow provider is waited on rather than cancelled, because a
// partial result from one source is still worth returning.
func (a *Aggregator) Search(ctx context.Context, criteria types.SearchCriteria) (types.SearchResult, error) {
	results := make([]providerResult, 2)

	g := &errgroup.Group{}
	g.Go(func() error {
		start := time.Now()
		offers, err := a.amadeus.SearchFlights(ctx, criteria)
		results[0] = providerResult{tag: a.amadeus.Tag(), offers: offers, err: err, elapsed: time.Since(start)}
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		offers, err := a.sabre.SearchFlights(ctx, criteria)
		results[1] = providerResult{tag: a.sabre.Tag(), offers: offers, err: err, elapsed: time.Since(start)}
		return nil
	})
	g.Wait()

	failures := 0
	for _, r := range results {
		if a.metrics != nil {
			a.metrics.RecordProviderSearch(ctx, r.tag, r.err == nil, r.elapsed)
		}
		if r.err != nil {
			failures++
			a.logger.Warn("provider search failed",
				"provider", string(r.tag),
				"error", r.err,
			)
		}
	}
	if failures == len(results) {
		return types.SearchResult{}, types.NewAppError(
			types.ErrCodeProviderAllFailed,
			"all flight data sources are currently unavailable",
			results[0].err,
		)
	}

	merged := a.merge(results[0].offers, results[1].offers)

	max := criteria.MaxResults
	if max <= 0 {
		max = types.DefaultMaxResults
	}
	if len(merged) > max {
		merged = merged[:max]
	}

	a.logger.Info("search aggregated",
		"amadeus_offers", len(results[0].offers),
		"sabre_offers", len(results[1].offers),
		"merged", len(merged),
		"degraded", failures > 0,
	)

	return types.SearchResult{
		Offers:  merged,
		Sources: sourcesLabel(),
		Count:   len(merged),
	}, nil
}

// merge concatenates with priority: every priority offer is kept, and a
// secondary offer is inserted only when no priority offer shares its merge
// key. Offers with an empty merge key (missing segment data) bypass
// deduplication entirely and are always kept.
func (a *Aggregator) merge(priority, secondary []types.NormalizedOffer) []types.NormalizedOffer {
	merged := make([]types.NormalizedOffer, 0, len(priority)+len(secondary))
	seen := make(map[string]struct{}, len(priority))

	for _, o := range priority {
		merged = append(merged, o)
		if key := o.MergeKey(); key != "" {
			seen[key] = struct{}{}
		}
	}
	for _, o := range secondary {
		key := o.MergeKey()
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		merged = append(merged, o)
	}
	return merged
}
