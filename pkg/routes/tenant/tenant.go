// Package tenant exposes tenant-scoped cleanup endpoints
package tenant

import (
	"net/http"

	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/amaan667/servio-fusion/internal/repositories/catalogitem"
	"github.com/amaan667/servio-fusion/pkg/events"
	"github.com/amaan667/servio-fusion/pkg/redis"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

// Register registers tenant routes
func Register(g *echo.Group) {
	g.DELETE("/tenant/:tenant_id", deleteTenantCatalog)
}

// deleteTenantCatalog removes the tenant's catalog snapshot entirely.
// Intended for offboarding and test cleanup.
func deleteTenantCatalog(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "tenant_handler.Delete")
	defer span.End()

	tenantID := c.Param("tenant_id")
	if tenantID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "tenant_id is required",
		})
	}

	ctx, repo, err := ectoinject.GetContext[*catalogitem.Repository](ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "failed to get repository",
		})
	}

	if err := repo.DeleteByTenant(ctx, tenantID); err != nil {
		return err
	}

	ctx, cache, err := ectoinject.GetContext[*redis.CatalogCache](ctx)
	if err == nil {
		cache.Invalidate(ctx, tenantID)
	}

	ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx)
	if err == nil && emitter != nil {
		emitter.CatalogDeleted(ctx, tenantID)
	}

	return c.JSON(http.StatusOK, map[string]string{
		"message":   "tenant catalog deleted",
		"tenant_id": tenantID,
	})
}
