package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"seatscan/internal/types"
)

// tokenRefreshBuffer refreshes provider credentials slightly before their
// stated expiry so an in-flight call never races the expiration.
const tokenRefreshBuffer = 60 * time.Second

// seatmapFetchConcurrency bounds the per-offer seat-map fan-out within one
// search call.
const seatmapFetchConcurrency = 4

// AmadeusConfig holds the configuration for the REST/OAuth provider adapter.
type AmadeusConfig struct {
	APIKey    string
	APISecret string
	Endpoint  string // base URL, no trailing slash
	Logger    *slog.Logger
}

// AmadeusAdapter is the REST/OAuth GDS adapter. It authenticates with an
// OAuth client-credentials token and refreshes it when within
// tokenRefreshBuffer of expiry. Search results are enriched with seat maps
// per offer; offers whose seat map cannot be fetched are omitted rather than
// failing the whole search.
type AmadeusAdapter struct {
	base      *BaseClient
	apiKey    string
	apiSecret string
	endpoint  string
	logger    *slog.Logger
	clock     types.Clock

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewAmadeusAdapter creates an AmadeusAdapter with the given HTTP client and config.
func NewAmadeusAdapter(httpClient *http.Client, cfg AmadeusConfig) *AmadeusAdapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"amadeus",
		DefaultRetryPolicy(),
		"seatscan/1.0",
	)
	return &AmadeusAdapter{
		base:      base,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		logger:    logger,
		clock:     types.RealClock{},
	}
}

// Tag returns AMADEUS.
func (a *AmadeusAdapter) Tag() types.ProviderTag {
	return types.ProviderAmadeus
}

// SearchFlights searches flight offers and attaches a seat map to each.
// Offers without a retrievable seat map are dropped; an empty result with a
// nil error means no seatmap-bearing flights matched.
func (a *AmadeusAdapter) SearchFlights(ctx context.Context, criteria types.SearchCriteria) ([]types.NormalizedOffer, error) {
	if err := a.ensureToken(ctx); err != nil {
		return nil, err
	}

	rawOffers, err := a.searchOffers(ctx, criteria)
	if err != nil {
		return nil, err
	}

	// Fetch seat maps per offer with bounded concurrency. A failed seat-map
	// fetch drops the offer, it does not fail the search.
	results := make([]types.NormalizedOffer, len(rawOffers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seatmapFetchConcurrency)
	for i, raw := range rawOffers {
		i, raw := i, raw
		g.Go(func() error {
			offer, err := a.normalizeOffer(raw)
			if err != nil {
				a.logger.Warn("skipping unparseable offer", "error", err)
				return nil
			}
			seatMap, err := a.fetchSeatMap(gctx, raw)
			if err != nil {
				a.logger.Warn("omitting flight, seat map unavailable",
					"offer_id", offer.ID,
					"error", err,
				)
				return nil
			}
			offer.SeatMap = seatMap
			results[i] = offer
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	offers := make([]types.NormalizedOffer, 0, len(results))
	for _, o := range results {
		if o.ID != "" {
			offers = append(offers, o)
		}
	}
	a.logger.Info("amadeus search complete", "offers", len(offers))
	return offers, nil
}

// GetSeatMap fetches the seat map for one flight. When the caller still
// holds the original offer payload it is used directly; otherwise a fresh
// offer is searched from the discrete routing fields first.
func (a *AmadeusAdapter) GetSeatMap(ctx context.Context, ref SeatMapRef) (types.SeatMapResult, error) {
	if err := a.ensureToken(ctx); err != nil {
		return types.SeatMapResult{}, err
	}

	raw := ref.RawOffer
	if raw == nil {
		rawOffers, err := a.searchOffers(ctx, types.SearchCriteria{
			Origin:        ref.Origin,
			Destination:   ref.Destination,
			DepartureDate: ref.DepartureDate,
			CarrierCode:   ref.CarrierCode,
			FlightNumber:  ref.FlightNumber,
			MaxResults:    1,
		})
		if err != nil {
			return types.SeatMapResult{}, err
		}
		if len(rawOffers) == 0 {
			return types.SeatMapResult{}, types.NewAppError(
				types.ErrCodeSeatmapUnavailable,
				"no flight offer found for the requested flight",
				nil,
			)
		}
		raw = rawOffers[0]
	}

	seatMap, err := a.fetchSeatMap(ctx, raw)
	if err != nil {
		return types.SeatMapResult{}, err
	}
	return types.SeatMapResult{
		OfferID:     ref.OfferID,
		ProviderTag: types.ProviderAmadeus,
		SeatMap:     seatMap,
		Available:   true,
	}, nil
}

// ensureToken refreshes the OAuth client-credentials token when missing or
// within the refresh buffer of expiry. The lock covers the whole refresh so
// concurrent callers do not each hit the token endpoint.
func (a *AmadeusAdapter) ensureToken(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && a.clock.Now().Before(a.expiresAt.Add(-tokenRefreshBuffer)) {
		return nil
	}

	params := url.Values{}
	params.Set("grant_type", "client_credentials")
	params.Set("client_id", a.apiKey)
	params.Set("client_secret", a.apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/v1/security/oauth2/token", strings.NewReader(params.Encode()))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create amadeus token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		a.accessToken = ""
		return types.NewAppError(
			types.ErrCodeProviderAuth,
			fmt.Sprintf("amadeus token request failed (%d): %s", resp.StatusCode, truncateBody(body)),
			nil,
		)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode amadeus token response", err)
	}
	if tokenResp.AccessToken == "" {
		return types.NewAppError(types.ErrCodeProviderAuth, "amadeus returned empty access token", nil)
	}

	a.accessToken = tokenResp.AccessToken
	a.expiresAt = a.clock.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	a.logger.Info("amadeus token refreshed", "expires_in", tokenResp.ExpiresIn)
	return nil
}

// searchOffers calls the flight-offers search endpoint and returns the raw
// offer payloads. The flight-number filter is applied client-side; the
// upstream search endpoint only filters by carrier.
func (a *AmadeusAdapter) searchOffers(ctx context.Context, criteria types.SearchCriteria) ([]json.RawMessage, error) {
	params := url.Values{}
	params.Set("originLocationCode", criteria.Origin)
	params.Set("destinationLocationCode", criteria.Destination)
	params.Set("departureDate", criteria.DepartureDate)
	params.Set("adults", "1")
	max := criteria.MaxResults
	if max <= 0 {
		max = types.DefaultMaxResults
	}
	params.Set("max", fmt.Sprintf("%d", max))
	if criteria.TravelClass != "" {
		params.Set("travelClass", string(criteria.TravelClass))
	}
	if criteria.CarrierCode != "" {
		params.Set("includedAirlineCodes", criteria.CarrierCode)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		a.endpoint+"/v2/shopping/flight-offers?"+params.Encode(), nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create amadeus search request", err)
	}
	a.authorize(req)

	resp, err := a.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, types.NewAppError(
			types.ErrCodeProviderUnavailable,
			fmt.Sprintf("amadeus flight search failed (%d): %s", resp.StatusCode, truncateBody(body)),
			nil,
		)
	}

	var searchResp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode amadeus search response", err)
	}

	if criteria.FlightNumber == "" {
		return searchResp.Data, nil
	}
	filtered := make([]json.RawMessage, 0, len(searchResp.Data))
	for _, raw := range searchResp.Data {
		var probe amadeusOffer
		if err := json.Unmarshal(raw, &probe); err != nil {
			continue
		}
		if seg, ok := probe.firstSegment(); ok && seg.Number == criteria.FlightNumber {
			filtered = append(filtered, raw)
		}
	}
	return filtered, nil
}

// fetchSeatMap posts the raw offer to the seat-map endpoint and normalizes
// the layout.
func (a *AmadeusAdapter) fetchSeatMap(ctx context.Context, rawOffer json.RawMessage) (*types.SeatMapData, error) {
	payload, err := json.Marshal(map[string]any{"data": []json.RawMessage{rawOffer}})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal seat map request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/v1/shopping/seatmaps", strings.NewReader(string(payload)))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create seat map request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	a.authorize(req)

	resp, err := a.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, types.NewAppError(
			types.ErrCodeProviderUnavailable,
			fmt.Sprintf("amadeus seat map request failed (%d): %s", resp.StatusCode, truncateBody(body)),
			nil,
		)
	}

	var seatResp struct {
		Data []struct {
			Decks []struct {
				DeckType string `json:"deckType"`
				Seats    []struct {
					Number               string   `json:"number"`
					Cabin                string   `json:"cabin"`
					CharacteristicsCodes []string `json:"characteristicsCodes"`
					TravelerPricing      []struct {
						SeatAvailabilityStatus string `json:"seatAvailabilityStatus"`
					} `json:"travelerPricing"`
				} `json:"seats"`
			} `json:"decks"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&seatResp); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode seat map response", err)
	}
	if len(seatResp.Data) == 0 {
		return nil, types.NewAppError(types.ErrCodeSeatmapUnavailable, "amadeus returned no seat map data", nil)
	}

	data := &types.SeatMapData{}
	for _, deck := range seatResp.Data[0].Decks {
		d := types.SeatDeck{DeckType: deck.DeckType}
		for _, s := range deck.Seats {
			available := len(s.TravelerPricing) > 0 && s.TravelerPricing[0].SeatAvailabilityStatus == "AVAILABLE"
			d.Seats = append(d.Seats, types.Seat{
				Number:          s.Number,
				CabinClass:      s.Cabin,
				Available:       available,
				Characteristics: s.CharacteristicsCodes,
			})
		}
		data.Decks = append(data.Decks, d)
	}
	return data, nil
}

func (a *AmadeusAdapter) authorize(req *http.Request) {
	a.mu.Lock()
	token := a.accessToken
	a.mu.Unlock()
	req.Header.Set("Authorization", "Bearer "+token)
}

// amadeusOffer is the minimal slice of the offer payload needed for
// normalization and routing.
type amadeusOffer struct {
	ID          string `json:"id"`
	Itineraries []struct {
		Segments []amadeusSegment `json:"segments"`
	} `json:"itineraries"`
}

type amadeusSegment struct {
	CarrierCode string `json:"carrierCode"`
	Number      string `json:"number"`
	Departure   struct {
		IataCode string `json:"iataCode"`
		At       string `json:"at"`
	} `json:"departure"`
	Arrival struct {
		IataCode string `json:"iataCode"`
	} `json:"arrival"`
}

func (o amadeusOffer) firstSegment() (amadeusSegment, bool) {
	if len(o.Itineraries) == 0 || len(o.Itineraries[0].Segments) == 0 {
		return amadeusSegment{}, false
	}
	return o.Itineraries[0].Segments[0], true
}

// normalizeOffer maps a raw offer payload into the common shape. Offers with
// no segments still normalize (with empty routing fields) and simply bypass
// deduplication downstream.
func (a *AmadeusAdapter) normalizeOffer(raw json.RawMessage) (types.NormalizedOffer, error) {
	var offer amadeusOffer
	if err := json.Unmarshal(raw, &offer); err != nil {
		return types.NormalizedOffer{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to parse amadeus offer", err)
	}

	var carrier, number, origin, destination string
	var departureAt time.Time
	if seg, ok := offer.firstSegment(); ok {
		carrier = seg.CarrierCode
		number = seg.Number
		origin = seg.Departure.IataCode
		destination = seg.Arrival.IataCode
		if t, err := time.Parse("2006-01-02T15:04:05", seg.Departure.At); err == nil {
			departureAt = t
		}
	}

	return types.NewNormalizedOffer(offer.ID, types.ProviderAmadeus,
		carrier, number, origin, destination, departureAt, raw)
}
