package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"seatscan/internal/types"
)

// SeatMapRef identifies the flight whose seat map is requested. RawOffer is
// set when the caller still holds the provider's original offer payload (the
// REST provider prefers it); the discrete fields are always populated so the
// session provider can issue its field-based query.
type SeatMapRef struct {
	OfferID       string
	RawOffer      json.RawMessage
	CarrierCode   string
	FlightNumber  string
	DepartureDate string // YYYY-MM-DD
	Origin        string
	Destination   string
}

// Adapter normalizes one upstream GDS into the common offer shape. Each
// concrete adapter owns its own credential lifecycle; callers never see
// tokens or sessions.
type Adapter interface {
	// Tag returns the provider tag stamped on every offer this adapter mints.
	Tag() types.ProviderTag

	// SearchFlights runs a flight search and returns offers that carry
	// seat-map data. An empty slice with a nil error is a valid "nothing
	// found" outcome, distinct from an error.
	SearchFlights(ctx context.Context, criteria types.SearchCriteria) ([]types.NormalizedOffer, error)

	// GetSeatMap fetches the seat map for one flight.
	GetSeatMap(ctx context.Context, ref SeatMapRef) (types.SeatMapResult, error)
}

// Registry resolves adapters by provider tag for bookmark replay routing.
type Registry struct {
	adapters map[types.ProviderTag]Adapter
}

// NewRegistry creates a Registry from the given adapters, keyed by Tag().
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[types.ProviderTag]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Tag()] = a
	}
	return &Registry{adapters: m}
}

// ByTag returns the adapter registered under the given tag.
func (r *Registry) ByTag(tag types.ProviderTag) (Adapter, error) {
	a, ok := r.adapters[tag]
	if !ok {
		return nil, types.NewAppError(
			types.ErrCodeValidationMissingSource,
			fmt.Sprintf("no provider registered for tag %q", tag),
			nil,
		)
	}
	return a, nil
}
