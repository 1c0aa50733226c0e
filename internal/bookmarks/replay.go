package bookmarks

import (
	"context"
	"log/slog"

	"seatscan/internal/providers"
	"seatscan/internal/types"
)

// legacyProviderTag is assumed for bookmark records written before the
// provider tag became mandatory. The assumption is wrong for old
// session-provider bookmarks, whose replay will fail against the wrong
// upstream; such failures surface as a retryable refresh error, never as a
// claim that the flight is unsupported. New records always carry a tag.
const legacyProviderTag = types.ProviderAmadeus

// Replayer refreshes the seat map for a stored bookmark by routing the
// request back to the provider that minted the snapshot.
type Replayer struct {
	registry *providers.Registry
	logger   *slog.Logger
}

// NewReplayer creates a Replayer over the adapter registry.
func NewReplayer(registry *providers.Registry, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{registry: registry, logger: logger}
}

// Replay fetches a fresh seat map for the bookmark. Routing uses the stored
// provider tag and the discrete flight fields; the snapshot payload is only
// handed to the adapter as an opaque hint, never parsed here.
func (r *Replayer) Replay(ctx context.Context, bm *types.Bookmark) (types.SeatMapResult, error) {
	tag := bm.ProviderTag
	if tag == "" {
		tag = legacyProviderTag
		r.logger.Warn("bookmark has no provider tag; assuming legacy default",
			"bookmark", bm.BookmarkID,
			"assumed", string(tag),
		)
	}

	adapter, err := r.registry.ByTag(tag)
	if err != nil {
		return types.SeatMapResult{}, err
	}

	raw, err := decompressSnapshot(bm.Snapshot)
	if err != nil {
		return types.SeatMapResult{}, err
	}

	result, err := adapter.GetSeatMap(ctx, providers.SeatMapRef{
		OfferID:       bm.BookmarkID,
		RawOffer:      raw,
		CarrierCode:   bm.CarrierCode,
		FlightNumber:  bm.FlightNumber,
		DepartureDate: bm.DepartureAt.UTC().Format("2006-01-02"),
		Origin:        bm.Origin,
		Destination:   bm.Destination,
	})
	if err != nil {
		// A replay failure is transient by contract: the flight was real when
		// bookmarked, so the caller is told to retry, not that the flight is
		// unsupported.
		r.logger.Warn("seat map replay failed",
			"bookmark", bm.BookmarkID,
			"provider", string(tag),
			"error", err,
		)
		return types.SeatMapResult{}, types.NewAppError(
			types.ErrCodeSeatmapUnavailable,
			"seat map is temporarily unavailable; try again shortly",
			err,
		)
	}
	return result, nil
}
