package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"seatscan/internal/core"
	"seatscan/internal/types"
)

// Searcher is the aggregation surface the handler needs.
type Searcher interface {
	Search(ctx context.Context, criteria types.SearchCriteria) (types.SearchResult, error)
}

// SearchGate is the limiter surface the handler needs. Search results carry
// seat maps, so a search consumes one seat-map call from the caller's budget.
type SearchGate interface {
	CanUse(ctx context.Context, id types.Identity, cap types.Capability) error
	Record(ctx context.Context, id types.Identity, cap types.Capability) error
	Remaining(ctx context.Context, id types.Identity, cap types.Capability) (int, error)
}

// ViewMetrics is the metrics surface the handler emits to. Nil-safe via the
// handler's guard; a missing emitter silently drops the data points.
type ViewMetrics interface {
	RecordSeatmapView(ctx context.Context, role types.Role)
	RecordLimitRejection(ctx context.Context, role types.Role)
}

// defaultMaxResultsCeiling caps max when no ceiling is configured.
const defaultMaxResultsCeiling = 50

// FlightsHandler serves flight search with merged provider results.
type FlightsHandler struct {
	searcher   Searcher
	gate       SearchGate
	metrics    ViewMetrics
	validator  *core.Validator
	maxResults int
	logger     *slog.Logger
}

// NewFlightsHandler creates a FlightsHandler. Metrics may be nil; a
// non-positive maxResults falls back to the default ceiling.
func NewFlightsHandler(searcher Searcher, gate SearchGate, metrics ViewMetrics, validator *core.Validator, maxResults int, logger *slog.Logger) *FlightsHandler {
	if maxResults <= 0 {
		maxResults = defaultMaxResultsCeiling
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FlightsHandler{
		searcher:   searcher,
		gate:       gate,
		metrics:    metrics,
		validator:  validator,
		maxResults: maxResults,
		logger:     logger,
	}
}

// RegisterRoutes mounts the flight search endpoint. The caller wraps the
// registrar in RequireAuth; both guests and users reach this handler.
func (h *FlightsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/flights/search", h.HandleSearch)
}

// searchQuery is the validated query-string DTO for flight search.
type searchQuery struct {
	Origin       string `validate:"required,iata"`
	Destination  string `validate:"required,iata"`
	Date         string `validate:"required,flightdate"`
	TravelClass  string `validate:"omitempty,travelclass"`
	CarrierCode  string `validate:"omitempty,alphanum,max=3"`
	FlightNumber string `validate:"omitempty,numeric,max=4"`
	MaxResults   int    `validate:"omitempty,min=1"`
}

// HandleSearch runs the two-provider aggregation. The limit check happens
// before any provider call and the usage record only after a successful
// merge, so a failed search never consumes quota.
func (h *FlightsHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	id, err := core.IdentityFromContext(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	q, err := h.parseQuery(r)
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

	result, err := h.searcher.Search(r.Context(), types.SearchCriteria{
		Origin:        q.Origin,
		Destination:   q.Destination,
		DepartureDate: q.Date,
		TravelClass:   types.TravelClass(q.TravelClass),
		CarrierCode:   q.CarrierCode,
		FlightNumber:  q.FlightNumber,
		MaxResults:    q.MaxResults,
	})
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.gate.Record(r.Context(), id, types.CapabilitySeatmapCall); err != nil {
		h.logger.Error("failed to record search usage", "identity", id.Key(), "error", err)
	}
	if h.metrics != nil {
		h.metrics.RecordSeatmapView(r.Context(), id.Role)
	}

	limit := q.MaxResults
	if limit <= 0 {
		limit = types.DefaultMaxResults
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: result,
		Meta: &core.ResponseMeta{Count: result.Count, Limit: limit},
	})
}

// parseQuery extracts and validates the search parameters.
func (h *FlightsHandler) parseQuery(r *http.Request) (searchQuery, error) {
	vals := r.URL.Query()
	q := searchQuery{
		Origin:       strings.ToUpper(strings.TrimSpace(vals.Get("origin"))),
		Destination:  strings.ToUpper(strings.TrimSpace(vals.Get("destination"))),
		Date:         strings.TrimSpace(vals.Get("date")),
		TravelClass:  strings.ToUpper(strings.TrimSpace(vals.Get("travelClass"))),
		CarrierCode:  strings.ToUpper(strings.TrimSpace(vals.Get("carrier"))),
		FlightNumber: strings.TrimSpace(vals.Get("flightNumber")),
	}
	if raw := vals.Get("max"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n > h.maxResults {
			return q, types.NewAppError(types.ErrCodeValidationMaxResults,
				fmt.Sprintf("max must be a number between 1 and %d", h.maxResults), err)
		}
		q.MaxResults = n
	}

	if q.Origin == q.Destination && q.Origin != "" {
		return q, types.NewAppError(types.ErrCodeValidationInvalidRoute,
			"origin and destination must differ", nil)
	}
	if err := h.validator.ValidateStruct(q); err != nil {
		return q, err
	}
	return q, nil
}
