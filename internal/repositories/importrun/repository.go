// Package importrun persists the audit trail of import runs
package importrun

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/amaan667/servio-fusion/pkg/database"
	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

// Repository handles import run persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import run repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create records the start of a run
func (r *Repository) Create(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Create")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.Stage == "" {
		run.Stage = models.StageValidating
	}
	run.StartedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("import_runs")
	sb.Cols("id", "tenant_id", "stage", "matched_count", "unmatched_count", "match_rate", "page_count", "error", "started_at", "finished_at")
	sb.Values(run.ID, run.TenantID, run.Stage, run.MatchedCount, run.UnmatchedCount, run.MatchRate, run.PageCount, run.Error, run.StartedAt, run.FinishedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to create import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import run")
	}

	return run, nil
}

// UpdateStage advances a run to a non-terminal stage
func (r *Repository) UpdateStage(ctx context.Context, tenantID, id string, stage models.ImportStage) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.UpdateStage")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("import_runs")
	sb.Set(sb.Assign("stage", stage))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": id, "stage": stage}).Error("Failed to update import run stage")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import run")
	}

	return nil
}

// Finish writes the terminal state of a run
func (r *Repository) Finish(ctx context.Context, run *models.ImportRun) error {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	run.FinishedAt = &now

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("import_runs")
	sb.Set(
		sb.Assign("stage", run.Stage),
		sb.Assign("matched_count", run.MatchedCount),
		sb.Assign("unmatched_count", run.UnmatchedCount),
		sb.Assign("match_rate", run.MatchRate),
		sb.Assign("page_count", run.PageCount),
		sb.Assign("error", run.Error),
		sb.Assign("finished_at", run.FinishedAt),
	)
	sb.Where(
		sb.Equal("id", run.ID),
		sb.Equal("tenant_id", run.TenantID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"run_id": run.ID}).Error("Failed to finish import run")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update import run")
	}

	return nil
}

// Get retrieves a run by ID
func (r *Repository) Get(ctx context.Context, tenantID, id string) (*models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "stage", "matched_count", "unmatched_count", "match_rate", "page_count", "error", "started_at", "finished_at")
	sb.From("import_runs")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var run models.ImportRun
	if err := r.db.GetContext(ctx, &run, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("import run %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get import run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import run")
	}

	return &run, nil
}

// ListRecent retrieves the tenant's most recent runs
func (r *Repository) ListRecent(ctx context.Context, tenantID string, limit int) ([]models.ImportRun, error) {
	ctx, span := tracing.StartSpan(ctx, "importrun.Repository.ListRecent")
	defer span.End()

	if limit < 1 || limit > 200 {
		limit = 50
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "stage", "matched_count", "unmatched_count", "match_rate", "page_count", "error", "started_at", "finished_at")
	sb.From("import_runs")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("started_at DESC")
	sb.Limit(limit)

	query, args := sb.Build()
	var runs []models.ImportRun
	if err := r.db.SelectContext(ctx, &runs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list import runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import runs")
	}

	return runs, nil
}
