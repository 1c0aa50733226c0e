package types

import (
	"encoding/json"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Identity
// ---------------------------------------------------------------------------

// Identity is the discriminated union produced by token resolution. Exactly
// one of Guest/User is set, matching Role.
type Identity struct {
	Role  Role
	Guest *GuestIdentity
	User  *User
}

// Key returns the identity key used for usage counters: the user id for
// registered users, the source IP for guests.
func (i Identity) Key() string {
	if i.Role == RoleGuest && i.Guest != nil {
		return i.Guest.IPAddress
	}
	if i.User != nil {
		return i.User.UserID
	}
	return ""
}

// GuestIdentity is an unauthenticated caller tracked by source IP.
// CallsUsed mirrors the advisory usage snapshot embedded in the guest token at
// issuance; the persisted per-IP counter is the authoritative count.
type GuestIdentity struct {
	IPAddress string
	SessionID string
	CallsUsed int
}

// User is a registered account. Tier and Status are re-fetched per request so
// that suspension and tier changes take effect immediately.
type User struct {
	UserID       string      `json:"userId" dynamodbav:"userId"`
	Email        string      `json:"email" dynamodbav:"email"`
	PasswordHash string      `json:"-" dynamodbav:"passwordHash"`
	Tier         AccountTier `json:"tier" dynamodbav:"tier"`
	Status       UserStatus  `json:"status" dynamodbav:"status"`
	AuthProvider string      `json:"authProvider" dynamodbav:"authProvider"`
	CreatedAt    time.Time   `json:"createdAt" dynamodbav:"createdAt"`
}

// ---------------------------------------------------------------------------
// Tier definitions and usage counters
// ---------------------------------------------------------------------------

// TierDefinition is the store-backed limit record for one account tier.
// A limit of UnlimitedLimit (-1) means no cap; 0 means the capability is not
// included in the tier at all.
type TierDefinition struct {
	TierID             string      `json:"tierId" dynamodbav:"tierId"`
	TierName           AccountTier `json:"tierName" dynamodbav:"tierName"`
	DisplayName        string      `json:"displayName" dynamodbav:"displayName"`
	MaxBookmarks       int         `json:"maxBookmarksPerMonth" dynamodbav:"maxBookmarks"`
	MaxSeatmapCalls    int         `json:"maxSeatmapCallsPerMonth" dynamodbav:"maxSeatmapCalls"`
	CanDowngrade       bool        `json:"canDowngrade" dynamodbav:"canDowngrade"`
	PubliclyAccessible bool        `json:"publiclyAccessible" dynamodbav:"publiclyAccessible"`
	Active             bool        `json:"active" dynamodbav:"active"`
	UpdatedAt          time.Time   `json:"updatedAt" dynamodbav:"updatedAt"`
}

// LimitFor returns the tier's limit for the given capability.
func (d TierDefinition) LimitFor(cap Capability) int {
	if cap == CapabilityBookmark {
		return d.MaxBookmarks
	}
	return d.MaxSeatmapCalls
}

// UsageCounter tracks a registered user's consumption for one calendar month.
// PeriodKey is the UTC year-month (e.g. "2026-08"). Counters are created on
// first use and age out of the store via the TTL attribute.
type UsageCounter struct {
	IdentityKey      string    `dynamodbav:"identityKey"`
	PeriodKey        string    `dynamodbav:"periodKey"`
	BookmarksCreated int       `dynamodbav:"bookmarksCreated"`
	SeatmapCallsUsed int       `dynamodbav:"seatmapCallsUsed"`
	UpdatedAt        time.Time `dynamodbav:"updatedAt"`
	ExpiresAt        int64     `dynamodbav:"expiresAt"` // store TTL, epoch seconds
}

// PeriodKeyFor formats the calendar-month period key for a point in time, UTC.
func PeriodKeyFor(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// GuestAccessRecord tracks seat-map usage for one source IP. Unlike user
// counters the window is fixed-length rather than calendar-aligned, and the
// expiry is pushed out on every recorded use so an active guest does not lose
// the record mid-session.
type GuestAccessRecord struct {
	IPAddress        string    `dynamodbav:"ipAddress"`
	SeatmapCallsUsed int       `dynamodbav:"seatmapCallsUsed"`
	FirstSeenAt      time.Time `dynamodbav:"firstSeenAt"`
	LastCallAt       time.Time `dynamodbav:"lastCallAt"`
	ExpiresAt        int64     `dynamodbav:"expiresAt"` // store TTL, epoch seconds
}

// Remaining returns how many seat-map views the guest has left.
func (g GuestAccessRecord) Remaining() int {
	if r := GuestSeatmapBudget - g.SeatmapCallsUsed; r > 0 {
		return r
	}
	return 0
}

// ---------------------------------------------------------------------------
// Offers and seat maps
// ---------------------------------------------------------------------------

// NormalizedOffer is the common in-memory shape both provider adapters produce.
// ProviderTag is mandatory: an offer that cannot be routed back to a provider
// for a seat-map refresh is useless, so construction fails fast instead of
// defaulting.
type NormalizedOffer struct {
	ID              string          `json:"id"`
	ProviderTag     ProviderTag     `json:"providerTag"`
	CarrierCode     string          `json:"carrierCode"`
	FlightNumber    string          `json:"flightNumber"`
	Origin          string          `json:"origin"`
	Destination     string          `json:"destination"`
	DepartureAt     time.Time       `json:"departureAt"`
	RawPayload      json.RawMessage `json:"rawPayload,omitempty"`
	SeatMap         *SeatMapData    `json:"seatMap,omitempty"`
}

// NewNormalizedOffer validates the routing-critical fields and returns the
// offer. A missing or blank provider tag is a constructor-level error, never a
// silent default.
func NewNormalizedOffer(id string, tag ProviderTag, carrier, number, origin, destination string, departureAt time.Time, raw json.RawMessage) (NormalizedOffer, error) {
	if strings.TrimSpace(string(tag)) == "" {
		return NormalizedOffer{}, NewAppError(ErrCodeValidationMissingSource,
			"offer is missing a provider tag and cannot be routed for seat-map refresh", nil)
	}
	if !tag.Valid() {
		return NormalizedOffer{}, NewAppErrorWithDetails(ErrCodeValidationMissingSource,
			"offer carries an unknown provider tag", nil,
			map[string]any{"provider_tag": string(tag)})
	}
	return NormalizedOffer{
		ID:           id,
		ProviderTag:  tag,
		CarrierCode:  carrier,
		FlightNumber: number,
		Origin:       origin,
		Destination:  destination,
		DepartureAt:  departureAt,
		RawPayload:   raw,
	}, nil
}

// MergeKey derives the cross-provider identity of a flight: carrier + flight
// number + route + departure date (date only, not time). Offers missing
// segment data yield an empty key and simply fail to deduplicate against
// anything, which is an accepted imprecision.
func (o NormalizedOffer) MergeKey() string {
	if o.CarrierCode == "" || o.FlightNumber == "" || o.Origin == "" || o.Destination == "" {
		return ""
	}
	return o.CarrierCode + o.FlightNumber + o.Origin + o.Destination + o.DepartureAt.UTC().Format("2006-01-02")
}

// SeatMapData is the per-flight seat layout returned by a provider.
type SeatMapData struct {
	Decks []SeatDeck `json:"decks"`
}

// SeatDeck is one cabin deck of seats.
type SeatDeck struct {
	DeckType string `json:"deckType,omitempty"`
	Seats    []Seat `json:"seats"`
}

// Seat is one physical seat with its availability and characteristics.
type Seat struct {
	Number          string   `json:"number"`
	CabinClass      string   `json:"cabinClass,omitempty"`
	Available       bool     `json:"available"`
	Characteristics []string `json:"characteristics,omitempty"`
}

// SeatMapResult is the outcome of a seat-map call. Either Seats is populated
// and Error is empty, or the reverse; never both meaningfully set.
type SeatMapResult struct {
	OfferID     string       `json:"offerId,omitempty"`
	ProviderTag ProviderTag  `json:"providerTag"`
	SeatMap     *SeatMapData `json:"seatMap,omitempty"`
	Available   bool         `json:"available"`
	Error       string       `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Search
// ---------------------------------------------------------------------------

// SearchCriteria is the normalized flight-search input shared by both
// provider adapters.
type SearchCriteria struct {
	Origin        string
	Destination   string
	DepartureDate string // YYYY-MM-DD
	TravelClass   TravelClass
	CarrierCode   string
	FlightNumber  string
	MaxResults    int
}

// SearchResult is the merged, deduplicated output of the aggregator.
// Sources always names both providers regardless of which contributed.
type SearchResult struct {
	Offers  []NormalizedOffer `json:"offers"`
	Sources string            `json:"sources"`
	Count   int               `json:"count"`
}

// ---------------------------------------------------------------------------
// Bookmarks
// ---------------------------------------------------------------------------

// Bookmark is a persisted offer snapshot. ProviderTag is captured explicitly
// at creation time so that replay never traverses the raw snapshot to decide
// routing. Snapshot holds the gzip-compressed raw provider offer.
type Bookmark struct {
	UserID       string      `dynamodbav:"userId"`
	BookmarkID   string      `dynamodbav:"bookmarkId"`
	Title        string      `dynamodbav:"title"`
	ProviderTag  ProviderTag `dynamodbav:"providerTag"`
	CarrierCode  string      `dynamodbav:"carrierCode"`
	FlightNumber string      `dynamodbav:"flightNumber"`
	Origin       string      `dynamodbav:"origin"`
	Destination  string      `dynamodbav:"destination"`
	DepartureAt  time.Time   `dynamodbav:"departureAt"`
	Snapshot     []byte      `dynamodbav:"snapshot"`
	AlertEnabled bool        `dynamodbav:"alertEnabled"`
	CreatedAt    time.Time   `dynamodbav:"createdAt"`
	ExpiresAt    int64       `dynamodbav:"expiresAt"` // store TTL, epoch seconds
}

// Expired reports whether the bookmark's TTL has passed at the given time.
func (b Bookmark) Expired(now time.Time) bool {
	return b.ExpiresAt > 0 && now.Unix() >= b.ExpiresAt
}
