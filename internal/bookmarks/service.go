// Package bookmarks implements persisted offer snapshots: creation under
// usage limits, listing, deletion, and seat-map replay routed back to the
// originating provider.
package bookmarks

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"seatscan/internal/types"
)

// BookmarkStore is the persistence access the service needs.
type BookmarkStore interface {
	Put(ctx context.Context, b *types.Bookmark) error
	Get(ctx context.Context, userID, bookmarkID string) (*types.Bookmark, error)
	ListByUser(ctx context.Context, userID string) ([]types.Bookmark, error)
	Delete(ctx context.Context, userID, bookmarkID string) error
}

// UsageGate is the limiter surface the service needs.
type UsageGate interface {
	CanUse(ctx context.Context, id types.Identity, cap types.Capability) error
	Record(ctx context.Context, id types.Identity, cap types.Capability) error
}

// AlertEnqueuer dispatches fare-alert jobs for bookmarks that opted in.
type AlertEnqueuer interface {
	EnqueueAlert(ctx context.Context, bm types.Bookmark, reason string) error
}

// CreateInput is the validated input for bookmark creation. Offer must carry
// a provider tag; untagged offers are rejected at construction time upstream,
// and rejected again here as a guard.
type CreateInput struct {
	Title        string
	Offer        types.NormalizedOffer
	AlertEnabled bool
}

// Service owns the bookmark lifecycle. Creation is gated by the usage
// limiter; the snapshot is stored gzip-compressed along with the discrete
// routing fields so replay never has to parse it.
type Service struct {
	store  BookmarkStore
	gate   UsageGate
	alerts AlertEnqueuer
	ttl    time.Duration
	clock  types.Clock
	logger *slog.Logger
}

// ServiceConfig configures a bookmark Service. Alerts may be nil when no
// queue is configured; alert-enabled bookmarks are then created without a
// job.
type ServiceConfig struct {
	Store  BookmarkStore
	Gate   UsageGate
	Alerts AlertEnqueuer
	TTL    time.Duration
	Clock  types.Clock
	Logger *slog.Logger
}

// NewService creates a bookmark Service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = types.RealClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  cfg.Store,
		gate:   cfg.Gate,
		alerts: cfg.Alerts,
		ttl:    cfg.TTL,
		clock:  clock,
		logger: logger,
	}
}

// Create persists a bookmark for the identity. The limit check runs before
// any write and the usage record after a successful write, so a failed write
// never consumes quota.
func (s *Service) Create(ctx context.Context, id types.Identity, in CreateInput) (*types.Bookmark, error) {
	if err := s.gate.CanUse(ctx, id, types.CapabilityBookmark); err != nil {
		return nil, err
	}
	if !in.Offer.ProviderTag.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationMissingSource,
			"offer is missing a provider tag and cannot be bookmarked", nil)
	}

	snapshot, err := compressSnapshot(in.Offer.RawPayload)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	bm := &types.Bookmark{
		UserID:       id.Key(),
		BookmarkID:   uuid.New().String(),
		Title:        in.Title,
		ProviderTag:  in.Offer.ProviderTag,
		CarrierCode:  in.Offer.CarrierCode,
		FlightNumber: in.Offer.FlightNumber,
		Origin:       in.Offer.Origin,
		Destination:  in.Offer.Destination,
		DepartureAt:  in.Offer.DepartureAt,
		Snapshot:     snapshot,
		AlertEnabled: in.AlertEnabled,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl).Unix(),
	}

	if err := s.store.Put(ctx, bm); err != nil {
		return nil, err
	}
	if err := s.gate.Record(ctx, id, types.CapabilityBookmark); err != nil {
		// The bookmark exists; a failed usage record is logged, not unwound.
		s.logger.Error("failed to record bookmark usage", "user", id.Key(), "error", err)
	}

	if bm.AlertEnabled && s.alerts != nil {
		if err := s.alerts.EnqueueAlert(ctx, *bm, "bookmark_created"); err != nil {
			s.logger.Error("failed to enqueue fare alert", "bookmark", bm.BookmarkID, "error", err)
		}
	}

	s.logger.Info("bookmark created",
		"user", id.Key(),
		"bookmark", bm.BookmarkID,
		"provider", string(bm.ProviderTag),
	)
	return bm, nil
}

// Get returns one bookmark owned by the identity. An expired record surfaces
// as gone rather than not-found.
func (s *Service) Get(ctx context.Context, id types.Identity, bookmarkID string) (*types.Bookmark, error) {
	bm, err := s.store.Get(ctx, id.Key(), bookmarkID)
	if err != nil {
		return nil, err
	}
	if bm.Expired(s.clock.Now()) {
		return nil, types.NewAppError(types.ErrCodeBookmarkExpired,
			"bookmark has expired; search again for current data", nil)
	}
	return bm, nil
}

// List returns the identity's bookmarks, filtering out records whose TTL has
// passed but that the store has not yet reaped.
func (s *Service) List(ctx context.Context, id types.Identity) ([]types.Bookmark, error) {
	all, err := s.store.ListByUser(ctx, id.Key())
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	live := make([]types.Bookmark, 0, len(all))
	for _, bm := range all {
		if !bm.Expired(now) {
			live = append(live, bm)
		}
	}
	return live, nil
}

// Delete removes a bookmark owned by the identity.
func (s *Service) Delete(ctx context.Context, id types.Identity, bookmarkID string) error {
	// Existence check first so deleting someone else's id reads as not-found.
	if _, err := s.store.Get(ctx, id.Key(), bookmarkID); err != nil {
		return err
	}
	return s.store.Delete(ctx, id.Key(), bookmarkID)
}

// compressSnapshot gzips the raw offer payload for storage. A nil payload
// stores as an empty snapshot.
func compressSnapshot(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to compress bookmark snapshot", err)
	}
	if err := w.Close(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to compress bookmark snapshot", err)
	}
	return buf.Bytes(), nil
}

// decompressSnapshot reverses compressSnapshot.
func decompressSnapshot(snapshot []byte) ([]byte, error) {
	if len(snapshot) == 0 {
		return nil, nil
	}
	r, err := gzip.NewReader(bytes.NewReader(snapshot))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read bookmark snapshot", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to read bookmark snapshot", err)
	}
	return raw, nil
}
