// Package imports exposes the import run endpoints
package imports

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/amaan667/servio-fusion/internal/repositories/importrun"
	ctxmiddleware "github.com/amaan667/servio-fusion/pkg/context"
	"github.com/amaan667/servio-fusion/pkg/importer"
	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

var validate = validator.New()

// Register registers import routes
func Register(g *echo.Group) {
	g.POST("", Run)
	g.POST("/preview", Preview)
	g.GET("", List)
	g.GET("/:id", Get)
}

// Run executes a full import and replaces the tenant's catalog
func Run(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "imports_handler.Run")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.RunImportRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, pipeline, err := ectoinject.GetContext[*importer.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import pipeline")
	}

	result, err := pipeline.RunImport(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// Preview computes an import outcome without committing anything
func Preview(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "imports_handler.Preview")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.RunImportRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, pipeline, err := ectoinject.GetContext[*importer.Pipeline](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import pipeline")
	}

	result, err := pipeline.PreviewImport(ctx, tenantID, &req)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// List returns the tenant's recent import runs
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "imports_handler.List")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))

	ctx, repo, err := ectoinject.GetContext[*importrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	runs, err := repo.ListRecent(ctx, tenantID, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, runs)
}

// Get returns one import run by ID
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "imports_handler.Get")
	defer span.End()

	tenantID := ctxmiddleware.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	id := c.Param("id")
	if id == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "run id is required")
	}

	ctx, repo, err := ectoinject.GetContext[*importrun.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	run, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}
