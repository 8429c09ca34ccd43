// Package layout places unmatched catalog items on a synthesized grid
package layout

import (
	"context"
	"math"

	"github.com/Gobusters/ectologger"

	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

const (
	gridColumns   = 2
	columnXOrigin = 15.0
	columnXStride = 50.0
	rowYOrigin    = 20.0
)

// Generator arranges items without position hints into a fixed per-page grid.
// Placement never fails: an item that cannot find a collision-free slot still
// lands on the overflow page with accepted overlap.
type Generator struct {
	logger           ectologger.Logger
	itemsPerPage     int
	collisionEpsilon float64
}

// NewGenerator creates a new Generator. itemsPerPage controls grid density;
// collisionEpsilon is the minimum Euclidean distance to any same-page
// placement, on the 0-100 coordinate scale.
func NewGenerator(itemsPerPage int, collisionEpsilon float64, logger ectologger.Logger) *Generator {
	if itemsPerPage < 1 {
		itemsPerPage = 1
	}
	return &Generator{
		logger:           logger,
		itemsPerPage:     itemsPerPage,
		collisionEpsilon: collisionEpsilon,
	}
}

type gridCursor struct {
	page int
	row  int
	col  int
}

// Layout synthesizes placements for unmatched items. Existing placements are
// obstacles for collision avoidance. Synthesis starts on the last known page
// so new items append after matched content, and wraps column-first, then
// row, then page. Page indexes never exceed pageCount: page pageCount is the
// single overflow page where overlap is accepted once the grid is exhausted.
func (g *Generator) Layout(ctx context.Context, unmatched []models.CatalogItem, existing []models.Placement, pageCount int) []models.Placement {
	ctx, span := tracing.StartSpan(ctx, "layout.Generator.Layout")
	defer span.End()

	if len(unmatched) == 0 {
		return nil
	}

	rowsPerPage := (g.itemsPerPage + gridColumns - 1) / gridColumns
	rowHeight := 100.0 / float64(rowsPerPage)

	startPage := pageCount - 1
	if startPage < 0 {
		startPage = 0
	}

	obstacles := make([]models.Placement, 0, len(existing)+len(unmatched))
	obstacles = append(obstacles, existing...)

	cursor := gridCursor{page: startPage}
	overflowSlot := 0
	overflowHits := 0

	placements := make([]models.Placement, 0, len(unmatched))
	for _, item := range unmatched {
		var x, y float64
		page := -1

		for cursor.page <= pageCount {
			x = columnXOrigin + float64(cursor.col)*columnXStride
			y = rowYOrigin + float64(cursor.row)*rowHeight
			if !g.collides(obstacles, cursor.page, x, y) {
				page = cursor.page
				g.advance(&cursor, rowsPerPage)
				break
			}
			g.advance(&cursor, rowsPerPage)
		}

		if page < 0 {
			// Grid exhausted: accept overlap on the overflow page.
			page = pageCount
			x = columnXOrigin + float64(overflowSlot%gridColumns)*columnXStride
			y = rowYOrigin + float64((overflowSlot/gridColumns)%rowsPerPage)*rowHeight
			overflowSlot++
			overflowHits++
		}

		placement := models.Placement{
			ItemID:        item.ID,
			TenantID:      item.TenantID,
			PageIndex:     page,
			XPercent:      x,
			YPercent:      y,
			WidthPercent:  models.DefaultPlacementWidthPercent,
			HeightPercent: models.DefaultPlacementHeightPercent,
			Origin:        models.PlacementOriginSynthesized,
		}
		placements = append(placements, placement)
		obstacles = append(obstacles, placement)
	}

	log := g.logger.WithContext(ctx).WithFields(map[string]any{
		"synthesized": len(placements),
		"start_page":  startPage,
	})
	if overflowHits > 0 {
		log.WithFields(map[string]any{"overflow_hits": overflowHits}).Warn("Grid capacity exhausted, accepted overlap on overflow page")
	} else {
		log.Debug("Fallback layout complete")
	}

	return placements
}

func (g *Generator) advance(c *gridCursor, rowsPerPage int) {
	c.col++
	if c.col >= gridColumns {
		c.col = 0
		c.row++
	}
	if c.row >= rowsPerPage {
		c.row = 0
		c.page++
	}
}

func (g *Generator) collides(obstacles []models.Placement, page int, x, y float64) bool {
	for _, p := range obstacles {
		if p.PageIndex != page {
			continue
		}
		dx := p.XPercent - x
		dy := p.YPercent - y
		if math.Sqrt(dx*dx+dy*dy) < g.collisionEpsilon {
			return true
		}
	}
	return false
}
