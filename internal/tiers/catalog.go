// Package tiers implements the tier catalog and the usage limiter that gate
// every request.
package tiers

import (
	"context"
	"log/slog"
	"sync"

	"seatscan/internal/types"
)

// TierLister is the store access the catalog needs.
type TierLister interface {
	FindAllActive(ctx context.Context) ([]types.TierDefinition, error)
}

// catalogState is the catalog's load state machine. Poisoned is structurally
// distinct from unloaded and from loaded: a poisoned catalog never retries
// within the process lifetime.
type catalogState int

const (
	stateUnloaded catalogState = iota
	stateLoaded
	statePoisoned
)

// Catalog is a lazily-loaded, process-lifetime cache of tier definitions.
//
// The catalog fails closed: if the first scan errors or yields zero active
// definitions, it poisons itself and every subsequent call returns
// ErrCodeTierCatalogEmpty. An operational misconfiguration (missing tier
// data) must never be interpreted as "all limits lifted". Definitions are
// never individually invalidated; a new process picks up changes.
type Catalog struct {
	repo   TierLister
	logger *slog.Logger

	mu    sync.Mutex
	state catalogState
	defs  map[types.AccountTier]types.TierDefinition
}

// NewCatalog creates an unloaded Catalog. The first LimitFor or Definitions
// call triggers the store scan.
func NewCatalog(repo TierLister, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, logger: logger}
}

// errCatalogEmpty is the fail-closed rejection returned by a poisoned catalog.
func errCatalogEmpty() error {
	return types.NewAppError(types.ErrCodeTierCatalogEmpty,
		"tier catalog is unavailable; all limited capabilities are denied", nil)
}

// ensureLoaded runs the one-time scan under the lock so concurrent first
// requests do not each hit the store. After the first call the state is
// either loaded or poisoned for the remainder of the process.
func (c *Catalog) ensureLoaded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateLoaded:
		return nil
	case statePoisoned:
		return errCatalogEmpty()
	}

	defs, err := c.repo.FindAllActive(ctx)
	if err != nil {
		c.state = statePoisoned
		c.logger.Error("tier catalog load failed; denying all limited capabilities", "error", err)
		return errCatalogEmpty()
	}
	if len(defs) == 0 {
		c.state = statePoisoned
		c.logger.Error("tier catalog is empty; denying all limited capabilities")
		return errCatalogEmpty()
	}

	c.defs = make(map[types.AccountTier]types.TierDefinition, len(defs))
	for _, def := range defs {
		if !def.TierName.Valid() {
			c.logger.Warn("ignoring tier definition with unknown tier name", "tier", string(def.TierName))
			continue
		}
		c.defs[def.TierName] = def
	}
	if len(c.defs) == 0 {
		c.state = statePoisoned
		c.logger.Error("tier catalog had no usable definitions; denying all limited capabilities")
		return errCatalogEmpty()
	}

	c.state = stateLoaded
	c.logger.Info("tier catalog loaded", "tiers", len(c.defs))
	return nil
}

// LimitFor returns the tier's limit for the capability. A tier present in
// the closed set but absent from the catalog yields 0 (capability not
// included), which is distinct from "exhausted this period".
func (c *Catalog) LimitFor(ctx context.Context, tier types.AccountTier, cap types.Capability) (int, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return 0, err
	}

	c.mu.Lock()
	def, ok := c.defs[tier]
	c.mu.Unlock()
	if !ok {
		return 0, nil
	}
	return def.LimitFor(cap), nil
}

// Definition returns the full definition for a tier, if present.
func (c *Catalog) Definition(ctx context.Context, tier types.AccountTier) (types.TierDefinition, bool, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return types.TierDefinition{}, false, err
	}
	c.mu.Lock()
	def, ok := c.defs[tier]
	c.mu.Unlock()
	return def, ok, nil
}

// PublicDefinitions returns the publicly accessible tier definitions for the
// pricing surface. A poisoned catalog surfaces the same fail-closed error.
func (c *Catalog) PublicDefinitions(ctx context.Context) ([]types.TierDefinition, error) {
	if err := c.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.TierDefinition, 0, len(c.defs))
	for _, def := range c.defs {
		if def.PubliclyAccessible {
			out = append(out, def)
		}
	}
	return out, nil
}

// ValidateTransition enforces tier-change rules: a tier whose definition says
// it cannot downgrade (one-time purchases) is rejected.
func (c *Catalog) ValidateTransition(ctx context.Context, from, to types.AccountTier) error {
	def, ok, err := c.Definition(ctx, from)
	if err != nil {
		return err
	}
	if ok && !def.CanDowngrade {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictTierDowngrade,
			"current tier cannot be downgraded; contact support", nil,
			map[string]any{"from": string(from), "to": string(to)})
	}
	return nil
}
