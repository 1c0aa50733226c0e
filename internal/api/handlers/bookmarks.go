package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"seatscan/internal/bookmarks"
	"seatscan/internal/core"
	"seatscan/internal/types"
)

// BookmarkService is the bookmark lifecycle surface the handler needs.
type BookmarkService interface {
	Create(ctx context.Context, id types.Identity, in bookmarks.CreateInput) (*types.Bookmark, error)
	Get(ctx context.Context, id types.Identity, bookmarkID string) (*types.Bookmark, error)
	List(ctx context.Context, id types.Identity) ([]types.Bookmark, error)
	Delete(ctx context.Context, id types.Identity, bookmarkID string) error
}

// SeatMapReplayer refreshes a stored bookmark's seat map from its provider.
type SeatMapReplayer interface {
	Replay(ctx context.Context, bm *types.Bookmark) (types.SeatMapResult, error)
}

// BookmarksHandler serves bookmark CRUD and the per-bookmark seat-map
// refresh.
type BookmarksHandler struct {
	svc       BookmarkService
	replayer  SeatMapReplayer
	gate      SearchGate
	metrics   ViewMetrics
	validator *core.Validator
	logger    *slog.Logger
}

// NewBookmarksHandler creates a BookmarksHandler. Metrics may be nil.
func NewBookmarksHandler(svc BookmarkService, replayer SeatMapReplayer, gate SearchGate, metrics ViewMetrics, validator *core.Validator, logger *slog.Logger) *BookmarksHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookmarksHandler{
		svc:       svc,
		replayer:  replayer,
		gate:      gate,
		metrics:   metrics,
		validator: validator,
		logger:    logger,
	}
}

// RegisterRoutes mounts the bookmark endpoints. The caller wraps the
// registrar in RequireAuth; the limiter refuses guests on creation.
func (h *BookmarksHandler) RegisterRoutes(r chi.Router) {
	r.Route("/bookmarks", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{bookmarkID}", h.HandleGet)
		r.Delete("/{bookmarkID}", h.HandleDelete)
		r.Get("/{bookmarkID}/seatmap", h.HandleSeatMap)
	})
}

// createBookmarkRequest is the creation DTO. The offer is the normalized
// shape returned by flight search, echoed back by the client.
type createBookmarkRequest struct {
	Title        string                `json:"title" validate:"required,max=120"`
	Offer        types.NormalizedOffer `json:"offer" validate:"required"`
	AlertEnabled bool                  `json:"alertEnabled"`
}

// bookmarkView is the list/detail projection. The compressed snapshot stays
// server-side.
type bookmarkView struct {
	BookmarkID   string            `json:"bookmarkId"`
	Title        string            `json:"title"`
	ProviderTag  types.ProviderTag `json:"providerTag"`
	CarrierCode  string            `json:"carrierCode"`
	FlightNumber string            `json:"flightNumber"`
	Origin       string            `json:"origin"`
	Destination  string            `json:"destination"`
	DepartureAt  time.Time         `json:"departureAt"`
	AlertEnabled bool              `json:"alertEnabled"`
	CreatedAt    time.Time         `json:"createdAt"`
	ExpiresAt    int64             `json:"expiresAt"`
}

func toView(bm types.Bookmark) bookmarkView {
	return bookmarkView{
		BookmarkID:   bm.BookmarkID,
		Title:        bm.Title,
		ProviderTag:  bm.ProviderTag,
		CarrierCode:  bm.CarrierCode,
		FlightNumber: bm.FlightNumber,
		Origin:       bm.Origin,
		Destination:  bm.Destination,
		DepartureAt:  bm.DepartureAt,
		AlertEnabled: bm.AlertEnabled,
		CreatedAt:    bm.CreatedAt,
		ExpiresAt:    bm.ExpiresAt,
	}
}

// HandleCreate persists a bookmark for the authenticated user.
func (h *BookmarksHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	var req createBookmarkRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	bm, err := h.svc.Create(r.Context(), id, bookmarks.CreateInput{
		Title:        req.Title,
		Offer:        req.Offer,
		AlertEnabled: req.AlertEnabled,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: toView(*bm)})
}

// HandleList returns the caller's live bookmarks.
func (h *BookmarksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	all, err := h.svc.List(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	views := make([]bookmarkView, 0, len(all))
	for _, bm := range all {
		views = append(views, toView(bm))
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: views,
		Meta: &core.ResponseMeta{Count: len(views)},
	})
}

// HandleGet returns one bookmark.
func (h *BookmarksHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	bm, err := h.svc.Get(r.Context(), id, chi.URLParam(r, "bookmarkID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: toView(*bm)})
}

// HandleDelete removes one bookmark.
func (h *BookmarksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), id, chi.URLParam(r, "bookmarkID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSeatMap refreshes the seat map for a stored bookmark. The view is
// gated and recorded like a fresh search: the limit check runs before the
// provider call, the usage record only after success.
func (h *BookmarksHandler) HandleSeatMap(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.gate.CanUse(r.Context(), id, types.CapabilitySeatmapCall); err != nil {
		if h.metrics != nil {
			h.metrics.RecordLimitRejection(r.Context(), id.Role)
		}
		core.Error(w, r, err)
		return
	}

	bm, err := h.svc.Get(r.Context(), id, chi.URLParam(r, "bookmarkID"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	result, err := h.replayer.Replay(r.Context(), bm)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.gate.Record(r.Context(), id, types.CapabilitySeatmapCall); err != nil {
		h.logger.Error("failed to record seat map usage", "identity", id.Key(), "error", err)
	}
	if h.metrics != nil {
		h.metrics.RecordSeatmapView(r.Context(), id.Role)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}
