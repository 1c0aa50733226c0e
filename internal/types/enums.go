package types

// ProviderTag identifies which GDS minted an offer. It is persisted inside
// bookmark records so that seat-map refreshes can be routed back to the
// provider that originally produced the data.
type ProviderTag string

const (
	ProviderAmadeus ProviderTag = "AMADEUS"
	ProviderSabre   ProviderTag = "SABRE"
)

// Valid reports whether the tag names a known provider.
func (p ProviderTag) Valid() bool {
	return p == ProviderAmadeus || p == ProviderSabre
}

// AccountTier identifies the service level of a registered user.
// The set is closed; tier definitions for each value live in the tier store.
type AccountTier string

const (
	TierFree     AccountTier = "FREE"
	TierPro      AccountTier = "PRO"
	TierBusiness AccountTier = "BUSINESS"
	TierDev      AccountTier = "DEV"
)

// Valid reports whether the tier is one of the closed set.
func (t AccountTier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierBusiness, TierDev:
		return true
	}
	return false
}

// UserStatus represents the account lifecycle state of a user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
)

// Role discriminates the two identity classes carried in a token.
type Role string

const (
	RoleGuest Role = "guest"
	RoleUser  Role = "user"
)

// Capability names a limited action checked against tier definitions.
type Capability string

const (
	CapabilityBookmark    Capability = "bookmark"
	CapabilitySeatmapCall Capability = "seatmap_call"
)

// TravelClass is the cabin class filter accepted by flight search.
type TravelClass string

const (
	ClassEconomy  TravelClass = "ECONOMY"
	ClassPremium  TravelClass = "PREMIUM_ECONOMY"
	ClassBusiness TravelClass = "BUSINESS"
	ClassFirst    TravelClass = "FIRST"
)

// UnlimitedLimit is the sentinel tier limit meaning "no cap". A limit of 0
// means the capability is entirely unavailable for the tier, which is distinct
// from "exhausted this period".
const UnlimitedLimit = -1

// GuestSeatmapBudget is the fixed lifetime number of seat-map views a guest
// identity (keyed by source IP) may consume.
const GuestSeatmapBudget = 2

// DefaultMaxResults caps merged search results when the caller does not
// specify a maximum.
const DefaultMaxResults = 10
