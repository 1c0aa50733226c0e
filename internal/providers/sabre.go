package providers

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"seatscan/internal/types"
)

// sabreSessionLifetime is how long a stateful session token is assumed valid.
// The upstream invalidates idle sessions after fifteen minutes; we renew one
// minute early via tokenRefreshBuffer.
const sabreSessionLifetime = 15 * time.Minute

// SabreAdapterConfig holds the configuration for the SOAP/session provider
// adapter.
type SabreAdapterConfig struct {
	Username string
	Password string
	PCC      string
	Endpoint string
	Logger   *slog.Logger
}

// SabreAdapter is the SOAP/session GDS adapter. Unlike the OAuth provider it
// authenticates with a stateful session token created once and reused until
// near expiry. Seat-map lookups are field-based: the upstream has no notion
// of an opaque offer payload, so every query carries the discrete carrier,
// flight number, route, and date.
type SabreAdapter struct {
	base     *BaseClient
	username string
	password string
	pcc      string
	endpoint string
	logger   *slog.Logger
	clock    types.Clock

	mu           sync.Mutex
	sessionToken string
	sessionExp   time.Time
}

// NewSabreAdapter creates a SabreAdapter with the given HTTP client and config.
func NewSabreAdapter(httpClient *http.Client, cfg SabreAdapterConfig) *SabreAdapter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"sabre",
		DefaultRetryPolicy(),
		"seatscan/1.0",
	)
	return &SabreAdapter{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		pcc:      cfg.PCC,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		logger:   logger,
		clock:    types.RealClock{},
	}
}

// Tag returns SABRE.
func (s *SabreAdapter) Tag() types.ProviderTag {
	return types.ProviderSabre
}

// SearchFlights runs an availability query and attaches a seat map to each
// returned flight. Flights whose seat map cannot be fetched are dropped.
func (s *SabreAdapter) SearchFlights(ctx context.Context, criteria types.SearchCriteria) ([]types.NormalizedOffer, error) {
	if err := s.ensureSession(ctx); err != nil {
		return nil, err
	}

	flights, err := s.searchAvailability(ctx, criteria)
	if err != nil {
		return nil, err
	}

	max := criteria.MaxResults
	if max <= 0 {
		max = types.DefaultMaxResults
	}

	offers := make([]types.NormalizedOffer, 0, len(flights))
	for _, f := range flights {
		if criteria.FlightNumber != "" && f.FlightNumber != criteria.FlightNumber {
			continue
		}
		if criteria.CarrierCode != "" && f.CarrierCode != criteria.CarrierCode {
			continue
		}

		offer, err := s.normalizeFlight(f)
		if err != nil {
			s.logger.Warn("skipping unnormalizable flight", "error", err)
			continue
		}
		seatMap, err := s.fetchSeatMap(ctx, sabreSeatMapQuery{
			CarrierCode:   f.CarrierCode,
			FlightNumber:  f.FlightNumber,
			Origin:        f.Origin,
			Destination:   f.Destination,
			DepartureDate: f.DepartureDate,
		})
		if err != nil {
			s.logger.Warn("omitting flight, seat map unavailable",
				"carrier", f.CarrierCode,
				"flight", f.FlightNumber,
				"error", err,
			)
			continue
		}
		offer.SeatMap = seatMap
		offers = append(offers, offer)
		if len(offers) >= max {
			break
		}
	}
	s.logger.Info("sabre search complete", "offers", len(offers))
	return offers, nil
}

// GetSeatMap fetches the seat map for one flight using the discrete routing
// fields. The opaque RawOffer is never consulted; the upstream query is
// field-based.
func (s *SabreAdapter) GetSeatMap(ctx context.Context, ref SeatMapRef) (types.SeatMapResult, error) {
	if err := s.ensureSession(ctx); err != nil {
		return types.SeatMapResult{}, err
	}
	if ref.CarrierCode == "" || ref.FlightNumber == "" || ref.Origin == "" || ref.Destination == "" || ref.DepartureDate == "" {
		return types.SeatMapResult{}, types.NewAppError(
			types.ErrCodeValidationMissingSource,
			"seat map lookup requires carrier, flight number, route, and date",
			nil,
		)
	}

	seatMap, err := s.fetchSeatMap(ctx, sabreSeatMapQuery{
		CarrierCode:   ref.CarrierCode,
		FlightNumber:  ref.FlightNumber,
		Origin:        ref.Origin,
		Destination:   ref.Destination,
		DepartureDate: ref.DepartureDate,
	})
	if err != nil {
		return types.SeatMapResult{}, err
	}
	return types.SeatMapResult{
		OfferID:     ref.OfferID,
		ProviderTag: types.ProviderSabre,
		SeatMap:     seatMap,
		Available:   true,
	}, nil
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// ensureSession creates or renews the stateful session token when missing or
// within the refresh buffer of its assumed expiry.
func (s *SabreAdapter) ensureSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sessionToken != "" && s.clock.Now().Before(s.sessionExp.Add(-tokenRefreshBuffer)) {
		return nil
	}

	env := sabreEnvelope{
		Header: sabreHeader{
			Security: &sabreSecurity{
				UsernameToken: &sabreUsernameToken{
					Username:     s.username,
					Password:     s.password,
					Organization: s.pcc,
					Domain:       "DEFAULT",
				},
			},
		},
		Body: sabreBody{SessionCreateRQ: &sabreSessionCreateRQ{}},
	}

	var resp sabreEnvelope
	if err := s.soapCall(ctx, "SessionCreateRQ", env, &resp); err != nil {
		s.sessionToken = ""
		return err
	}
	if resp.Header.Security == nil || resp.Header.Security.BinarySecurityToken == "" {
		s.sessionToken = ""
		return types.NewAppError(types.ErrCodeProviderAuth, "sabre session create returned no security token", nil)
	}

	s.sessionToken = resp.Header.Security.BinarySecurityToken
	s.sessionExp = s.clock.Now().Add(sabreSessionLifetime)
	s.logger.Info("sabre session created")
	return nil
}

// ---------------------------------------------------------------------------
// Upstream calls
// ---------------------------------------------------------------------------

// sabreFlight is one availability row extracted from the response.
type sabreFlight struct {
	CarrierCode   string `json:"carrierCode"`
	FlightNumber  string `json:"flightNumber"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departureDate"` // YYYY-MM-DD
	DepartureTime string `json:"departureTime"` // HH:MM, may be empty
}

type sabreSeatMapQuery struct {
	CarrierCode   string
	FlightNumber  string
	Origin        string
	Destination   string
	DepartureDate string
}

func (s *SabreAdapter) searchAvailability(ctx context.Context, criteria types.SearchCriteria) ([]sabreFlight, error) {
	env := s.sessionEnvelope()
	env.Body.AirAvailRQ = &sabreAirAvailRQ{
		Origin:        criteria.Origin,
		Destination:   criteria.Destination,
		DepartureDate: criteria.DepartureDate,
	}

	var resp sabreEnvelope
	if err := s.soapCall(ctx, "OTA_AirAvailLLSRQ", env, &resp); err != nil {
		return nil, err
	}
	if resp.Body.AirAvailRS == nil {
		return nil, types.NewAppError(types.ErrCodeProviderUnavailable, "sabre availability response missing body", nil)
	}

	flights := make([]sabreFlight, 0, len(resp.Body.AirAvailRS.Flights))
	for _, f := range resp.Body.AirAvailRS.Flights {
		flights = append(flights, sabreFlight{
			CarrierCode:   f.Carrier,
			FlightNumber:  f.Number,
			Origin:        f.Origin,
			Destination:   f.Destination,
			DepartureDate: f.DepartureDate,
			DepartureTime: f.DepartureTime,
		})
	}
	return flights, nil
}

func (s *SabreAdapter) fetchSeatMap(ctx context.Context, q sabreSeatMapQuery) (*types.SeatMapData, error) {
	env := s.sessionEnvelope()
	env.Body.SeatMapRQ = &sabreSeatMapRQ{
		Carrier:       q.CarrierCode,
		FlightNumber:  q.FlightNumber,
		Origin:        q.Origin,
		Destination:   q.Destination,
		DepartureDate: q.DepartureDate,
	}

	var resp sabreEnvelope
	if err := s.soapCall(ctx, "EnhancedSeatMapRQ", env, &resp); err != nil {
		return nil, err
	}
	if resp.Body.SeatMapRS == nil || len(resp.Body.SeatMapRS.Cabins) == 0 {
		return nil, types.NewAppError(types.ErrCodeSeatmapUnavailable, "sabre returned no seat map data", nil)
	}

	data := &types.SeatMapData{}
	for _, cabin := range resp.Body.SeatMapRS.Cabins {
		deck := types.SeatDeck{DeckType: cabin.CabinClass}
		for _, row := range cabin.Rows {
			for _, seat := range row.Seats {
				deck.Seats = append(deck.Seats, types.Seat{
					Number:          fmt.Sprintf("%s%s", row.RowNumber, seat.Column),
					CabinClass:      cabin.CabinClass,
					Available:       !seat.Occupied,
					Characteristics: seat.Facilities,
				})
			}
		}
		data.Decks = append(data.Decks, deck)
	}
	return data, nil
}

// normalizeFlight maps an availability row into the common offer shape. The
// raw payload is the JSON form of the row so a bookmark snapshot survives for
// replay even though the upstream query is field-based.
func (s *SabreAdapter) normalizeFlight(f sabreFlight) (types.NormalizedOffer, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return types.NormalizedOffer{}, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode flight snapshot", err)
	}

	var departureAt time.Time
	stamp := f.DepartureDate
	if f.DepartureTime != "" {
		stamp += "T" + f.DepartureTime
		if t, err := time.Parse("2006-01-02T15:04", stamp); err == nil {
			departureAt = t
		}
	}
	if departureAt.IsZero() {
		if t, err := time.Parse("2006-01-02", f.DepartureDate); err == nil {
			departureAt = t
		}
	}

	id := fmt.Sprintf("%s%s-%s%s-%s", f.CarrierCode, f.FlightNumber, f.Origin, f.Destination, f.DepartureDate)
	return types.NewNormalizedOffer(id, types.ProviderSabre,
		f.CarrierCode, f.FlightNumber, f.Origin, f.Destination, departureAt, raw)
}

// sessionEnvelope returns an envelope carrying the current session token.
// Callers hold no lock; the token read is guarded.
func (s *SabreAdapter) sessionEnvelope() sabreEnvelope {
	s.mu.Lock()
	token := s.sessionToken
	s.mu.Unlock()
	return sabreEnvelope{
		Header: sabreHeader{
			Security: &sabreSecurity{BinarySecurityToken: token},
		},
	}
}

// soapCall posts the envelope and decodes the response, surfacing SOAP faults
// as provider errors.
func (s *SabreAdapter) soapCall(ctx context.Context, action string, env sabreEnvelope, out *sabreEnvelope) error {
	payload, err := xml.Marshal(env)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal soap envelope", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint,
		strings.NewReader(xml.Header+string(payload)))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create soap request", err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", action)

	resp, err := s.base.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return types.NewAppError(
			types.ErrCodeProviderUnavailable,
			fmt.Sprintf("sabre %s failed (%d): %s", action, resp.StatusCode, truncateBody(body)),
			nil,
		)
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to decode soap response", err)
	}
	if out.Body.Fault != nil {
		return types.NewAppError(
			types.ErrCodeProviderUnavailable,
			fmt.Sprintf("sabre %s fault: %s", action, out.Body.Fault.String),
			nil,
		)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type sabreEnvelope struct {
	XMLName xml.Name    `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Header  sabreHeader `xml:"Header"`
	Body    sabreBody   `xml:"Body"`
}

type sabreHeader struct {
	Security *sabreSecurity `xml:"Security,omitempty"`
}

type sabreSecurity struct {
	UsernameToken       *sabreUsernameToken `xml:"UsernameToken,omitempty"`
	BinarySecurityToken string              `xml:"BinarySecurityToken,omitempty"`
}

type sabreUsernameToken struct {
	Username     string `xml:"Username"`
	Password     string `xml:"Password"`
	Organization string `xml:"Organization"`
	Domain       string `xml:"Domain"`
}

type sabreBody struct {
	SessionCreateRQ *sabreSessionCreateRQ `xml:"SessionCreateRQ,omitempty"`
	AirAvailRQ      *sabreAirAvailRQ      `xml:"OTA_AirAvailRQ,omitempty"`
	AirAvailRS      *sabreAirAvailRS      `xml:"OTA_AirAvailRS,omitempty"`
	SeatMapRQ       *sabreSeatMapRQ       `xml:"EnhancedSeatMapRQ,omitempty"`
	SeatMapRS       *sabreSeatMapRS       `xml:"EnhancedSeatMapRS,omitempty"`
	Fault           *sabreFault           `xml:"Fault,omitempty"`
}

type sabreSessionCreateRQ struct{}

type sabreAirAvailRQ struct {
	Origin        string `xml:"OriginDestinationInformation>OriginLocation"`
	Destination   string `xml:"OriginDestinationInformation>DestinationLocation"`
	DepartureDate string `xml:"OriginDestinationInformation>DepartureDateTime"`
}

type sabreAirAvailRS struct {
	Flights []sabreFlightSegment `xml:"OriginDestinationOptions>OriginDestinationOption>FlightSegment"`
}

type sabreFlightSegment struct {
	Carrier       string `xml:"Carrier,attr"`
	Number        string `xml:"FlightNumber,attr"`
	Origin        string `xml:"Origin,attr"`
	Destination   string `xml:"Destination,attr"`
	DepartureDate string `xml:"DepartureDate,attr"`
	DepartureTime string `xml:"DepartureTime,attr"`
}

type sabreSeatMapRQ struct {
	Carrier       string `xml:"SeatMapQueryEnhanced>Flight>Operating"`
	FlightNumber  string `xml:"SeatMapQueryEnhanced>Flight>Number"`
	Origin        string `xml:"SeatMapQueryEnhanced>Flight>DepartureAirport"`
	Destination   string `xml:"SeatMapQueryEnhanced>Flight>ArrivalAirport"`
	DepartureDate string `xml:"SeatMapQueryEnhanced>Flight>DepartureDate"`
}

type sabreSeatMapRS struct {
	Cabins []sabreCabin `xml:"SeatMap>Cabin"`
}

type sabreCabin struct {
	CabinClass string     `xml:"CabinClass,attr"`
	Rows       []sabreRow `xml:"Row"`
}

type sabreRow struct {
	RowNumber string      `xml:"RowNumber,attr"`
	Seats     []sabreSeat `xml:"Seat"`
}

type sabreSeat struct {
	Column     string   `xml:"Column,attr"`
	Occupied   bool     `xml:"Occupied,attr"`
	Facilities []string `xml:"Facilities>Detail"`
}

type sabreFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}
