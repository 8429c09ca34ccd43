package models

import (
	"time"
)

// CatalogRecord is a raw, unvalidated item from the external scrape source.
// It is ephemeral: records become CatalogItems once an import run assigns IDs.
type CatalogRecord struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// PositionHint is a vision-model guess at an item's name and on-page location.
// Scoped to a single import run; never persisted.
type PositionHint struct {
	RawName    string  `json:"raw_name"`
	PageIndex  int     `json:"page_index"`
	XPercent   float64 `json:"x_percent"`  // [0,100]
	YPercent   float64 `json:"y_percent"`  // [0,100]
	Confidence float64 `json:"confidence"` // [0,1]
}

// CatalogItem is a persisted catalog item. Items are created in bulk by one
// import run and superseded wholesale by the next run for the same tenant;
// they are never individually patched.
// Field order matches schema: id, tenant_id, name, description, price, ...
type CatalogItem struct {
	ID           string    `json:"id" db:"id"`
	TenantID     string    `json:"tenant_id" db:"tenant_id"`
	Name         string    `json:"name" db:"name"`
	Description  *string   `json:"description,omitempty" db:"description"`
	Price        float64   `json:"price" db:"price"`
	Category     string    `json:"category" db:"category"`
	ImageURL     *string   `json:"image_url,omitempty" db:"image_url"`
	DisplayOrder int       `json:"display_order" db:"display_order"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// PlacementOrigin records how a placement was produced.
type PlacementOrigin string

const (
	// PlacementOriginMatched means the placement came from a vision hint.
	PlacementOriginMatched PlacementOrigin = "matched"
	// PlacementOriginSynthesized means the fallback layout invented it.
	PlacementOriginSynthesized PlacementOrigin = "synthesized"
)

// Default placement box size on the 0-100 coordinate scale.
const (
	DefaultPlacementWidthPercent  = 30.0
	DefaultPlacementHeightPercent = 12.0
)

// Placement is the persisted page/coordinate assignment for one catalog item.
// Exactly one placement exists per item in a committed snapshot.
type Placement struct {
	ItemID          string          `json:"item_id" db:"item_id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	PageIndex       int             `json:"page_index" db:"page_index"`
	XPercent        float64         `json:"x_percent" db:"x_percent"`
	YPercent        float64         `json:"y_percent" db:"y_percent"`
	WidthPercent    float64         `json:"width_percent" db:"width_percent"`
	HeightPercent   float64         `json:"height_percent" db:"height_percent"`
	Origin          PlacementOrigin `json:"origin" db:"origin"`
	MatchConfidence *float64        `json:"match_confidence,omitempty" db:"match_confidence"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// CatalogEntry pairs an item with its placement. The committed snapshot is a
// bijection: every item has exactly one placement and vice versa.
type CatalogEntry struct {
	Item      CatalogItem `json:"item"`
	Placement Placement   `json:"placement"`
}

// CatalogResponse is the read model returned to the display tier.
type CatalogResponse struct {
	TenantID    string         `json:"tenant_id"`
	Entries     []CatalogEntry `json:"entries"`
	DisplayMode DisplayMode    `json:"display_mode"`
}
