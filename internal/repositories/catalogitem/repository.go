// Package catalogitem persists tenant catalog snapshots
package catalogitem

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/amaan667/servio-fusion/pkg/database"
	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

// Repository handles catalog item and placement persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new catalog item repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ReplaceAll swaps the tenant's entire catalog in one transaction: delete the
// previous snapshot, insert the new one. Readers never observe a half-written
// catalog; on any failure the previous snapshot stays live.
//
// len(items) == len(placements) is a caller precondition and is checked
// before any storage is touched.
func (r *Repository) ReplaceAll(ctx context.Context, tenantID string, items []models.CatalogItem, placements []models.Placement) error {
	ctx, span := tracing.StartSpan(ctx, "catalogitem.Repository.ReplaceAll")
	defer span.End()

	if len(items) != len(placements) {
		return &models.ImportError{
			Stage:   models.StagePersisting,
			Kind:    models.ErrorKindValidation,
			Message: fmt.Sprintf("item/placement count mismatch: %d items, %d placements", len(items), len(placements)),
		}
	}

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":  tenantID,
		"item_count": len(items),
	})

	ctx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return models.NewPersistenceError(err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for i := range items {
		items[i].CreatedAt = now
	}
	for i := range placements {
		placements[i].CreatedAt = now
	}

	// Placements cascade from items, but delete both explicitly so the
	// snapshot swap does not depend on schema details.
	if _, err := tx.ExecContext(ctx, "DELETE FROM placements WHERE tenant_id = $1", tenantID); err != nil {
		log.WithError(err).Error("Failed to delete previous placements")
		return models.NewPersistenceError(err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_items WHERE tenant_id = $1", tenantID); err != nil {
		log.WithError(err).Error("Failed to delete previous catalog items")
		return models.NewPersistenceError(err)
	}

	if len(items) > 0 {
		sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		sb.InsertInto("catalog_items")
		sb.Cols("id", "tenant_id", "name", "description", "price", "category", "image_url", "display_order", "created_at")
		for _, item := range items {
			sb.Values(item.ID, item.TenantID, item.Name, item.Description, item.Price, item.Category, item.ImageURL, item.DisplayOrder, item.CreatedAt)
		}

		query, args := sb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert catalog items")
			return models.NewPersistenceError(err)
		}

		pb := sqlbuilder.PostgreSQL.NewInsertBuilder()
		pb.InsertInto("placements")
		pb.Cols("item_id", "tenant_id", "page_index", "x_percent", "y_percent", "width_percent", "height_percent", "origin", "match_confidence", "created_at")
		for _, p := range placements {
			pb.Values(p.ItemID, p.TenantID, p.PageIndex, p.XPercent, p.YPercent, p.WidthPercent, p.HeightPercent, p.Origin, p.MatchConfidence, p.CreatedAt)
		}

		query, args = pb.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to insert placements")
			return models.NewPersistenceError(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.NewPersistenceError(err)
	}

	log.Info("Catalog snapshot replaced")
	return nil
}

// GetCatalog returns the tenant's committed snapshot as item/placement pairs,
// ordered by display order.
func (r *Repository) GetCatalog(ctx context.Context, tenantID string) ([]models.CatalogEntry, error) {
	ctx, span := tracing.StartSpan(ctx, "catalogitem.Repository.GetCatalog")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "name", "description", "price", "category", "image_url", "display_order", "created_at")
	sb.From("catalog_items")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("display_order ASC")

	query, args := sb.Build()
	var items []models.CatalogItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list catalog items")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read catalog")
	}

	pb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	pb.Select("item_id", "tenant_id", "page_index", "x_percent", "y_percent", "width_percent", "height_percent", "origin", "match_confidence", "created_at")
	pb.From("placements")
	pb.Where(pb.Equal("tenant_id", tenantID))

	query, args = pb.Build()
	var placements []models.Placement
	if err := r.db.SelectContext(ctx, &placements, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list placements")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to read catalog")
	}

	byItemID := make(map[string]models.Placement, len(placements))
	for _, p := range placements {
		byItemID[p.ItemID] = p
	}

	entries := make([]models.CatalogEntry, 0, len(items))
	for _, item := range items {
		placement, ok := byItemID[item.ID]
		if !ok {
			// A committed snapshot is a bijection; a missing placement means
			// corrupted storage, not a recoverable read.
			r.logger.WithContext(ctx).WithFields(map[string]any{"item_id": item.ID}).Error("Catalog item has no placement")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "catalog snapshot is inconsistent")
		}
		entries = append(entries, models.CatalogEntry{Item: item, Placement: placement})
	}

	return entries, nil
}

// DeleteByTenant removes the tenant's snapshot entirely
func (r *Repository) DeleteByTenant(ctx context.Context, tenantID string) error {
	ctx, span := tracing.StartSpan(ctx, "catalogitem.Repository.DeleteByTenant")
	defer span.End()

	ctx, tx, err := database.GetTx(ctx, r.logger, r.db, nil)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete catalog")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.ExecContext(ctx, "DELETE FROM placements WHERE tenant_id = $1", tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete placements")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete catalog")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM catalog_items WHERE tenant_id = $1", tenantID); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete catalog items")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete catalog")
	}

	if err := tx.Commit(ctx); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete catalog")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID}).Info("Tenant catalog deleted")
	return nil
}
