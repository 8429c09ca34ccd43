package models

// DisplayMode is the rendering capability the display tier should offer for a
// tenant's catalog. Selection is a pure function of subscription tier and
// whether placements exist; the fusion engine only guarantees the
// item/placement bijection that makes the paginated view well-defined.
type DisplayMode string

const (
	DisplayModeListOnly            DisplayMode = "list_only"
	DisplayModePaginatedWithToggle DisplayMode = "paginated_with_toggle"
)

// TierLevel is the tenant's subscription tier, as reported by the platform.
type TierLevel int

const (
	TierFree TierLevel = iota
	TierStandard
	TierPremium
)

// SelectDisplayMode decides the display mode for a tenant. Paginated rendering
// requires both a paying tier and a committed catalog with placements.
func SelectDisplayMode(tier TierLevel, hasPlacements bool) DisplayMode {
	if tier >= TierStandard && hasPlacements {
		return DisplayModePaginatedWithToggle
	}
	return DisplayModeListOnly
}
