package tiers

import (
	"context"
	"fmt"
	"log/slog"

	"seatscan/internal/types"
)

// UsageStore is the counter access the limiter needs for registered users.
type UsageStore interface {
	GetOrCreate(ctx context.Context, identityKey, periodKey string) (types.UsageCounter, error)
	Save(ctx context.Context, counter types.UsageCounter) error
}

// GuestStore is the counter access the limiter needs for guests.
type GuestStore interface {
	GetOrCreate(ctx context.Context, ip string) (types.GuestAccessRecord, error)
	RecordSeatmapCall(ctx context.Context, rec types.GuestAccessRecord) error
}

// Limiter enforces per-identity usage limits. Users are checked against the
// tier catalog over calendar-month counters; guests against a fixed lifetime
// budget keyed by source IP.
//
// CanUse and Record are separate calls: Record must only run after the
// gated action actually succeeded. Two concurrent requests from the same
// identity can therefore both pass CanUse before either records, so limits
// are best-effort with a small bounded overshoot under concurrent load. This
// is the documented semantic, not a defect to tighten silently.
type Limiter struct {
	catalog *Catalog
	usage   UsageStore
	guests  GuestStore
	clock   types.Clock
	logger  *slog.Logger
}

// NewLimiter creates a Limiter. Nil clock/logger get the usual defaults.
func NewLimiter(catalog *Catalog, usage UsageStore, guests GuestStore, clock types.Clock, logger *slog.Logger) *Limiter {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{catalog: catalog, usage: usage, guests: guests, clock: clock, logger: logger}
}

// CanUse returns nil when the identity may perform the capability now, or an
// AppError describing the refusal: a tier with limit 0 surfaces "not included
// in tier" (upsell), an exhausted period surfaces the count, and a poisoned
// catalog surfaces the fail-closed rejection untouched.
func (l *Limiter) CanUse(ctx context.Context, id types.Identity, cap types.Capability) error {
	if id.Role == types.RoleGuest {
		return l.canUseGuest(ctx, id, cap)
	}
	return l.canUseUser(ctx, id, cap)
}

// Record persists one use of the capability. Callers invoke it only after the
// corresponding action succeeded.
func (l *Limiter) Record(ctx context.Context, id types.Identity, cap types.Capability) error {
	if id.Role == types.RoleGuest {
		rec, err := l.guests.GetOrCreate(ctx, id.Guest.IPAddress)
		if err != nil {
			return err
		}
		if err := l.guests.RecordSeatmapCall(ctx, rec); err != nil {
			return err
		}
		l.logger.Info("recorded guest seatmap call",
			"ip", id.Guest.IPAddress,
			"used", rec.SeatmapCallsUsed+1,
			"budget", types.GuestSeatmapBudget,
		)
		return nil
	}

	periodKey := types.PeriodKeyFor(l.clock.Now())
	counter, err := l.usage.GetOrCreate(ctx, id.Key(), periodKey)
	if err != nil {
		return err
	}
	switch cap {
	case types.CapabilityBookmark:
		counter.BookmarksCreated++
	case types.CapabilitySeatmapCall:
		counter.SeatmapCallsUsed++
	}
	if err := l.usage.Save(ctx, counter); err != nil {
		return err
	}
	l.logger.Info("recorded usage",
		"identity", id.Key(),
		"capability", string(cap),
		"period", periodKey,
	)
	return nil
}

// Remaining reports how many uses the identity has left this period, with
// UnlimitedLimit passed through for uncapped tiers.
func (l *Limiter) Remaining(ctx context.Context, id types.Identity, cap types.Capability) (int, error) {
	if id.Role == types.RoleGuest {
		rec, err := l.guests.GetOrCreate(ctx, id.Guest.IPAddress)
		if err != nil {
			return 0, err
		}
		return rec.Remaining(), nil
	}

	limit, err := l.catalog.LimitFor(ctx, id.User.Tier, cap)
	if err != nil {
		return 0, err
	}
	if limit == types.UnlimitedLimit {
		return types.UnlimitedLimit, nil
	}
	counter, err := l.usage.GetOrCreate(ctx, id.Key(), types.PeriodKeyFor(l.clock.Now()))
	if err != nil {
		return 0, err
	}
	used := counterValue(counter, cap)
	if remaining := limit - used; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

func (l *Limiter) canUseGuest(ctx context.Context, id types.Identity, cap types.Capability) error {
	// Guests have no bookmark entitlement at all.
	if cap == types.CapabilityBookmark {
		return types.NewAppError(types.ErrCodeAuthGuestForbidden,
			"bookmarks require a registered account", nil)
	}

	rec, err := l.guests.GetOrCreate(ctx, id.Guest.IPAddress)
	if err != nil {
		return err
	}
	if rec.SeatmapCallsUsed >= types.GuestSeatmapBudget {
		return types.NewAppErrorWithDetails(types.ErrCodeLimitGuestViews,
			fmt.Sprintf("you've used your %d free seat map views; register for full access", types.GuestSeatmapBudget),
			nil,
			map[string]any{"used": rec.SeatmapCallsUsed, "budget": types.GuestSeatmapBudget})
	}
	return nil
}

func (l *Limiter) canUseUser(ctx context.Context, id types.Identity, cap types.Capability) error {
	limit, err := l.catalog.LimitFor(ctx, id.User.Tier, cap)
	if err != nil {
		return err
	}
	if limit == types.UnlimitedLimit {
		return nil
	}
	if limit == 0 {
		// Zero entitlement: the capability is not in the tier at all, which
		// gets a different message than an exhausted period.
		return types.NewAppErrorWithDetails(types.ErrCodeLimitNotIncluded,
			fmt.Sprintf("%s is not available on the %s tier; upgrade for access", capabilityNoun(cap), id.User.Tier),
			nil,
			map[string]any{"tier": string(id.User.Tier), "capability": string(cap)})
	}

	counter, err := l.usage.GetOrCreate(ctx, id.Key(), types.PeriodKeyFor(l.clock.Now()))
	if err != nil {
		return err
	}
	used := counterValue(counter, cap)
	if used >= limit {
		code := types.ErrCodeLimitSeatmaps
		if cap == types.CapabilityBookmark {
			code = types.ErrCodeLimitBookmarks
		}
		return types.NewAppErrorWithDetails(code,
			fmt.Sprintf("monthly %s limit reached (%d/%d) for %s tier; upgrade for higher limits", capabilityNoun(cap), used, limit, id.User.Tier),
			nil,
			map[string]any{"used": used, "limit": limit, "tier": string(id.User.Tier)})
	}
	return nil
}

func counterValue(c types.UsageCounter, cap types.Capability) int {
	if cap == types.CapabilityBookmark {
		return c.BookmarksCreated
	}
	return c.SeatmapCallsUsed
}

func capabilityNoun(cap types.Capability) string {
	if cap == types.CapabilityBookmark {
		return "bookmark creation"
	}
	return "seat map access"
}
