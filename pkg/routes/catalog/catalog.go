// Package catalog exposes the committed catalog read model
package catalog

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/amaan667/servio-fusion/internal/repositories/catalogitem"
	ctxmiddleware "github.com/amaan667/servio-fusion/pkg/context"
	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/redis"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

// Register registers catalog routes
func Register(g *echo.Group) {
	g.GET("", Get)
}

func parseTier(raw string) models.TierLevel {
	switch raw {
	case "standard":
		return models.TierStandard
	case "premium":
		return models.TierPremium
	default:
		return models.TierFree
	}
}

// Get returns the tenant's committed snapshot with its display mode
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "catalog_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	tier := parseTier(c.QueryParam("tier"))

	ctx, cache, err := ectoinject.GetContext[*redis.CatalogCache](ctx)
	if err != nil {
		cache = nil
	}

	entries, cached := cache.Get(ctx, tenantID)
	if !cached {
		ctx, repo, err := ectoinject.GetContext[*catalogitem.Repository](ctx)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
		}

		entries, err = repo.GetCatalog(ctx, tenantID)
		if err != nil {
			return err
		}
		cache.Set(ctx, tenantID, entries)
	}

	return c.JSON(http.StatusOK, models.CatalogResponse{
		TenantID:    tenantID,
		Entries:     entries,
		DisplayMode: models.SelectDisplayMode(tier, len(entries) > 0),
	})
}
