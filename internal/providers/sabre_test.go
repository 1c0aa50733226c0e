package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"seatscan/internal/types"
)

const sabreEnvelopeOpen = `<?xml version="1.0" encoding="UTF-8"?>` +
	`<Envelope xmlns="http://schemas.xmlsoap.org/soap/envelope/">`

// sabreFixture fakes the SOAP endpoint, dispatching on the SOAPAction header.
type sabreFixture struct {
	srv         *httptest.Server
	sessionHits atomic.Int32

	flightsXML    string          // FlightSegment elements for availability
	brokenFlights map[string]bool // flight numbers whose seat-map query returns no data
	faultAll      bool
}

func newSabreFixture(t *testing.T) *sabreFixture {
	t.Helper()
	f := &sabreFixture{brokenFlights: map[string]bool{}}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if f.faultAll {
			fmt.Fprint(w, sabreEnvelopeOpen+
				`<Header/><Body><Fault><faultcode>soap-env:Client</faultcode>`+
				`<faultstring>USG_INVALID_SECURITY_TOKEN</faultstring></Fault></Body></Envelope>`)
			return
		}
		switch r.Header.Get("SOAPAction") {
		case "SessionCreateRQ":
			f.sessionHits.Add(1)
			assert.Contains(t, string(body), "<Username>agent</Username>")
			assert.Contains(t, string(body), "<Organization>7AB8</Organization>")
			fmt.Fprintf(w, sabreEnvelopeOpen+
				`<Header><Security><BinarySecurityToken>sess-%d</BinarySecurityToken></Security></Header>`+
				`<Body/></Envelope>`, f.sessionHits.Load())
		case "OTA_AirAvailLLSRQ":
			assert.Contains(t, string(body), "<BinarySecurityToken>sess-1</BinarySecurityToken>")
			fmt.Fprint(w, sabreEnvelopeOpen+
				`<Header/><Body><OTA_AirAvailRS><OriginDestinationOptions><OriginDestinationOption>`+
				f.flightsXML+
				`</OriginDestinationOption></OriginDestinationOptions></OTA_AirAvailRS></Body></Envelope>`)
		case "EnhancedSeatMapRQ":
			for number := range f.brokenFlights {
				if strings.Contains(string(body), "<Number>"+number+"</Number>") {
					fmt.Fprint(w, sabreEnvelopeOpen+
						`<Header/><Body><EnhancedSeatMapRS><SeatMap/></EnhancedSeatMapRS></Body></Envelope>`)
					return
				}
			}
			fmt.Fprint(w, sabreEnvelopeOpen+
				`<Header/><Body><EnhancedSeatMapRS><SeatMap>`+
				`<Cabin CabinClass="ECONOMY"><Row RowNumber="12">`+
				`<Seat Column="A" Occupied="false"><Facilities><Detail>WINDOW</Detail></Facilities></Seat>`+
				`<Seat Column="B" Occupied="true"/>`+
				`</Row></Cabin>`+
				`</SeatMap></EnhancedSeatMapRS></Body></Envelope>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func sabreFlightXML(carrier, number string) string {
	return fmt.Sprintf(`<FlightSegment Carrier=%q FlightNumber=%q Origin="FRA" Destination="JFK" `+
		`DepartureDate="2026-09-10" DepartureTime="08:00"/>`, carrier, number)
}

func newSabreUnderTest(f *sabreFixture) (*SabreAdapter, *movableClock) {
	s := NewSabreAdapter(&http.Client{Timeout: time.Second}, SabreAdapterConfig{
		Username: "agent",
		Password: "pw",
		PCC:      "7AB8",
		Endpoint: f.srv.URL,
	})
	clock := &movableClock{now: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)}
	s.clock = clock
	return s, clock
}

func TestSabreSearchNormalizesFlights(t *testing.T) {
	f := newSabreFixture(t)
	f.flightsXML = sabreFlightXML("LH", "400")
	s, _ := newSabreUnderTest(f)

	offers, err := s.SearchFlights(context.Background(), types.SearchCriteria{
		Origin: "FRA", Destination: "JFK", DepartureDate: "2026-09-10",
	})
	require.NoError(t, err)
	require.Len(t, offers, 1)

	o := offers[0]
	assert.Equal(t, types.ProviderSabre, o.ProviderTag)
	assert.Equal(t, "LH", o.CarrierCode)
	assert.Equal(t, "400", o.FlightNumber)
	assert.Equal(t, "FRA", o.Origin)
	assert.Equal(t, "JFK", o.Destination)
	assert.Equal(t, time.Date(2026, 9, 10, 8, 0, 0, 0, time.UTC), o.DepartureAt)

	// The snapshot is the JSON form of the availability row, so a bookmark can
	// replay the field-based query later.
	var row struct {
		FlightNumber string `json:"flightNumber"`
	}
	require.NoError(t, json.Unmarshal(o.RawPayload, &row))
	assert.Equal(t, "400", row.FlightNumber)

	require.NotNil(t, o.SeatMap)
	require.Len(t, o.SeatMap.Decks, 1)
	seats := o.SeatMap.Decks[0].Seats
	require.Len(t, seats, 2)
	assert.Equal(t, "12A", seats[0].Number)
	assert.True(t, seats[0].Available)
	assert.Equal(t, []string{"WINDOW"}, seats[0].Characteristics)
	assert.Equal(t, "12B", seats[1].Number)
	assert.False(t, seats[1].Available)
}

func TestSabreDropsFlightsWithoutSeatMaps(t *testing.T) {
	f := newSabreFixture(t)
	f.flightsXML = sabreFlightXML("LH", "400") + sabreFlightXML("LH", "410")
	f.brokenFlights["410"] = true
	s, _ := newSabreUnderTest(f)

	offers, err := s.SearchFlights(context.Background(), types.SearchCriteria{
		Origin: "FRA", Destination: "JFK", DepartureDate: "2026-09-10",
	})
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.Equal(t, "400", offers[0].FlightNumber)
}

func TestSabreSessionReusedUntilRefreshBuffer(t *testing.T) {
	f := newSabreFixture(t)
	f.flightsXML = sabreFlightXML("LH", "400")
	s, clock := newSabreUnderTest(f)
	ctx := context.Background()
	criteria := types.SearchCriteria{Origin: "FRA", Destination: "JFK", DepartureDate: "2026-09-10"}

	_, err := s.SearchFlights(ctx, criteria)
	require.NoError(t, err)
	_, err = s.SearchFlights(ctx, criteria)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.sessionHits.Load(), "session is reused across calls")

	// Fifteen-minute lifetime, renewed one minute early.
	clock.now = clock.now.Add(14*time.Minute + 30*time.Second)
	require.NoError(t, s.ensureSession(ctx))
	assert.Equal(t, int32(2), f.sessionHits.Load())
}

func TestSabreGetSeatMapRequiresDiscreteFields(t *testing.T) {
	f := newSabreFixture(t)
	s, _ := newSabreUnderTest(f)

	_, err := s.GetSeatMap(context.Background(), SeatMapRef{
		CarrierCode: "LH", FlightNumber: "400", Origin: "FRA",
		// Destination and DepartureDate missing.
	})
	requireAppCode(t, err, types.ErrCodeValidationMissingSource)
}

func TestSabreGetSeatMapIgnoresRawOffer(t *testing.T) {
	f := newSabreFixture(t)
	s, _ := newSabreUnderTest(f)

	result, err := s.GetSeatMap(context.Background(), SeatMapRef{
		OfferID:     "bm-1",
		RawOffer:    json.RawMessage(`{"not":"consulted"}`),
		CarrierCode: "LH", FlightNumber: "400",
		Origin: "FRA", Destination: "JFK", DepartureDate: "2026-09-10",
	})
	require.NoError(t, err)
	assert.Equal(t, types.ProviderSabre, result.ProviderTag)
	assert.True(t, result.Available)
	require.NotNil(t, result.SeatMap)
}

func TestSabreSoapFaultSurfacesAsProviderError(t *testing.T) {
	f := newSabreFixture(t)
	f.faultAll = true
	s, _ := newSabreUnderTest(f)

	_, err := s.SearchFlights(context.Background(), types.SearchCriteria{
		Origin: "FRA", Destination: "JFK", DepartureDate: "2026-09-10",
	})
	requireAppCode(t, err, types.ErrCodeProviderUnavailable)
	assert.Contains(t, err.Error(), "USG_INVALID_SECURITY_TOKEN")
}
