package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"seatscan/internal/core"
	"seatscan/internal/types"
)

// TierCatalog is the catalog surface the handler needs.
type TierCatalog interface {
	PublicDefinitions(ctx context.Context) ([]types.TierDefinition, error)
}

// TiersHandler serves the public tier listing and the caller's remaining
// usage.
type TiersHandler struct {
	catalog TierCatalog
	gate    SearchGate
	logger  *slog.Logger
}

// NewTiersHandler creates a TiersHandler.
func NewTiersHandler(catalog TierCatalog, gate SearchGate, logger *slog.Logger) *TiersHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TiersHandler{catalog: catalog, gate: gate, logger: logger}
}

// RegisterPublicRoutes mounts the unauthenticated pricing surface.
func (h *TiersHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/tiers", h.HandleListTiers)
}

// RegisterUsageRoutes mounts the authenticated usage endpoint. The caller
// wraps this registrar in RequireAuth.
func (h *TiersHandler) RegisterUsageRoutes(r chi.Router) {
	r.Get("/me/usage", h.HandleUsage)
}

// tierView is the public projection of a tier definition.
type tierView struct {
	TierName        types.AccountTier `json:"tierName"`
	DisplayName     string            `json:"displayName"`
	MaxBookmarks    int               `json:"maxBookmarksPerMonth"`
	MaxSeatmapCalls int               `json:"maxSeatmapCallsPerMonth"`
}

// HandleListTiers returns the publicly accessible tier definitions. A
// poisoned catalog surfaces the same fail-closed 503 the limiter returns.
func (h *TiersHandler) HandleListTiers(w http.ResponseWriter, r *http.Request) {
	defs, err := h.catalog.PublicDefinitions(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	views := make([]tierView, 0, len(defs))
	for _, def := range defs {
		views = append(views, tierView{
			TierName:        def.TierName,
			DisplayName:     def.DisplayName,
			MaxBookmarks:    def.MaxBookmarks,
			MaxSeatmapCalls: def.MaxSeatmapCalls,
		})
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: views,
		Meta: &core.ResponseMeta{Count: len(views)},
	})
}

// usageView reports remaining quota. -1 means unlimited.
type usageView struct {
	SeatmapCallsRemaining int `json:"seatmapCallsRemaining"`
	BookmarksRemaining    int `json:"bookmarksRemaining"`
}

// HandleUsage reports the caller's remaining quota for this period. Guests
// see their remaining seat-map views and zero bookmarks.
func (h *TiersHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	seatmaps, err := h.gate.Remaining(r.Context(), id, types.CapabilitySeatmapCall)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	bookmarksLeft := 0
	if id.Role == types.RoleUser {
		bookmarksLeft, err = h.gate.Remaining(r.Context(), id, types.CapabilityBookmark)
		if err != nil {
			core.Error(w, r, err)
			return
		}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: usageView{
		SeatmapCallsRemaining: seatmaps,
		BookmarksRemaining:    bookmarksLeft,
	}})
}
