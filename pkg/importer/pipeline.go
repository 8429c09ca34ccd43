// Package importer runs the catalog fusion pipeline: fetch, extract, match,
// lay out, persist.
package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/codeGROOVE-dev/retry"
	"github.com/google/uuid"

	"github.com/amaan667/servio-fusion/pkg/layout"
	"github.com/amaan667/servio-fusion/pkg/matching"
	"github.com/amaan667/servio-fusion/pkg/metrics"
	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/source"
	"github.com/amaan667/servio-fusion/pkg/tracing"
	"github.com/amaan667/servio-fusion/pkg/vision"
)

// CatalogStore is the persistence surface the pipeline commits to
type CatalogStore interface {
	ReplaceAll(ctx context.Context, tenantID string, items []models.CatalogItem, placements []models.Placement) error
	GetCatalog(ctx context.Context, tenantID string) ([]models.CatalogEntry, error)
}

// RunStore records the audit trail of runs
type RunStore interface {
	Create(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error)
	UpdateStage(ctx context.Context, tenantID, id string, stage models.ImportStage) error
	Finish(ctx context.Context, run *models.ImportRun) error
}

// EventSink announces run outcomes downstream
type EventSink interface {
	CatalogReplaced(ctx context.Context, tenantID, runID string, itemCount, matchedCount, unmatchedCount int, matchRate float64)
	ImportFailed(ctx context.Context, tenantID, runID, failedStage, reason string)
}

// CacheInvalidator drops stale read-model entries after a commit
type CacheInvalidator interface {
	Invalidate(ctx context.Context, tenantID string)
}

// Config tunes the pipeline's retry and concurrency behavior
type Config struct {
	SourceRetryAttempts uint
	VisionRetryAttempts uint
	HintConcurrency     int
	RetryDelay          time.Duration
	RetryMaxJitter      time.Duration
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() Config {
	return Config{
		SourceRetryAttempts: 3,
		VisionRetryAttempts: 3,
		HintConcurrency:     4,
		RetryDelay:          500 * time.Millisecond,
		RetryMaxJitter:      250 * time.Millisecond,
	}
}

// Pipeline orchestrates one import run end to end
type Pipeline struct {
	logger    ectologger.Logger
	fetcher   source.Fetcher
	extractor vision.HintExtractor
	matcher   *matching.Matcher
	layout    *layout.Generator
	catalog   CatalogStore
	runs      RunStore
	events    EventSink
	cache     CacheInvalidator
	cfg       Config
	locks     tenantLocks
}

// NewPipeline creates a new Pipeline. events and cache may be nil.
func NewPipeline(
	logger ectologger.Logger,
	fetcher source.Fetcher,
	extractor vision.HintExtractor,
	matcher *matching.Matcher,
	layoutGen *layout.Generator,
	catalog CatalogStore,
	runs RunStore,
	events EventSink,
	cache CacheInvalidator,
	cfg Config,
) *Pipeline {
	if cfg.HintConcurrency < 1 {
		cfg.HintConcurrency = 1
	}
	return &Pipeline{
		logger:    logger,
		fetcher:   fetcher,
		extractor: extractor,
		matcher:   matcher,
		layout:    layoutGen,
		catalog:   catalog,
		runs:      runs,
		events:    events,
		cache:     cache,
		cfg:       cfg,
	}
}

// snapshot is the full computed output of the non-persisting stages
type snapshot struct {
	items      []models.CatalogItem
	placements []models.Placement
	entries    []models.CatalogEntry
	matched    int
	unmatched  int
	pageCount  int
}

// RunImport executes the full pipeline and atomically replaces the tenant's
// catalog. A concurrent run for the same tenant is rejected, never queued.
func (p *Pipeline) RunImport(ctx context.Context, tenantID string, req *models.RunImportRequest) (*models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Pipeline.RunImport")
	defer span.End()

	started := time.Now()

	if err := validateRequest(tenantID, req); err != nil {
		return nil, err
	}

	run, err := p.runs.Create(ctx, &models.ImportRun{
		TenantID:  tenantID,
		Stage:     models.StageValidating,
		PageCount: len(req.PageImages),
	})
	if err != nil {
		return nil, err
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    run.ID,
	})

	snap, err := p.compute(ctx, tenantID, run.ID, req, func(stage models.ImportStage) {
		if stageErr := p.runs.UpdateStage(ctx, tenantID, run.ID, stage); stageErr != nil {
			log.WithError(stageErr).Warnf("Failed to record stage %s", stage)
		}
	})
	if err != nil {
		p.failRun(ctx, run, err, started)
		return nil, err
	}

	// Cancellation is honored up to here. Once persisting starts the
	// transaction runs to commit or rollback as a unit.
	if ctx.Err() != nil {
		err := models.NewExternalServiceError(models.StagePersisting, "run cancelled before persisting", ctx.Err())
		p.failRun(ctx, run, err, started)
		return nil, err
	}

	release, ok := p.locks.tryAcquire(tenantID)
	if !ok {
		metrics.ConcurrentReplaceRejections.WithLabelValues(tenantID).Inc()
		err := models.NewConcurrentReplaceError()
		p.failRun(ctx, run, err, started)
		return nil, err
	}
	defer release()

	if stageErr := p.runs.UpdateStage(ctx, tenantID, run.ID, models.StagePersisting); stageErr != nil {
		log.WithError(stageErr).Warn("Failed to record persisting stage")
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := p.catalog.ReplaceAll(persistCtx, tenantID, snap.items, snap.placements); err != nil {
		p.failRun(persistCtx, run, err, started)
		return nil, err
	}

	if p.cache != nil {
		p.cache.Invalidate(persistCtx, tenantID)
	}

	matchRate := 0.0
	if len(snap.items) > 0 {
		matchRate = float64(snap.matched) / float64(len(snap.items))
	}

	run.Stage = models.StageCommitted
	run.MatchedCount = snap.matched
	run.UnmatchedCount = snap.unmatched
	run.MatchRate = matchRate
	if finishErr := p.runs.Finish(persistCtx, run); finishErr != nil {
		log.WithError(finishErr).Warn("Failed to record run completion")
	}

	metrics.RecordImportRun(tenantID, "committed", time.Since(started).Seconds())
	metrics.RecordMatchOutcome(matchRate)
	metrics.ItemsPersisted.WithLabelValues(tenantID).Add(float64(len(snap.items)))

	if p.events != nil {
		p.events.CatalogReplaced(persistCtx, tenantID, run.ID, len(snap.items), snap.matched, snap.unmatched, matchRate)
	}

	log.WithFields(map[string]any{
		"matched":    snap.matched,
		"unmatched":  snap.unmatched,
		"match_rate": matchRate,
	}).Info("Import run committed")

	return &models.ImportResult{
		RunID:          run.ID,
		TenantID:       tenantID,
		MatchedCount:   snap.matched,
		UnmatchedCount: snap.unmatched,
		MatchRate:      matchRate,
		PageCount:      snap.pageCount,
		Entries:        snap.entries,
		Committed:      true,
	}, nil
}

// PreviewImport runs the same computation as RunImport but never touches
// storage, the audit trail, the cache, or the event stream.
func (p *Pipeline) PreviewImport(ctx context.Context, tenantID string, req *models.RunImportRequest) (*models.ImportResult, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Pipeline.PreviewImport")
	defer span.End()

	if err := validateRequest(tenantID, req); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	snap, err := p.compute(ctx, tenantID, runID, req, func(models.ImportStage) {})
	if err != nil {
		return nil, err
	}

	matchRate := 0.0
	if len(snap.items) > 0 {
		matchRate = float64(snap.matched) / float64(len(snap.items))
	}

	return &models.ImportResult{
		RunID:          runID,
		TenantID:       tenantID,
		MatchedCount:   snap.matched,
		UnmatchedCount: snap.unmatched,
		MatchRate:      matchRate,
		PageCount:      snap.pageCount,
		Entries:        snap.entries,
		Committed:      false,
	}, nil
}

func validateRequest(tenantID string, req *models.RunImportRequest) error {
	if strings.TrimSpace(tenantID) == "" {
		return models.NewValidationError("tenant id is required")
	}
	if req == nil || len(req.PageImages) == 0 {
		return models.NewValidationError("at least one page image is required")
	}
	for i, page := range req.PageImages {
		if len(page.Data) == 0 {
			return models.NewValidationError(fmt.Sprintf("page image %d is empty", i))
		}
		if !strings.HasPrefix(page.MIMEType, "image/") {
			return models.NewValidationError(fmt.Sprintf("page image %d has unsupported mime type %q", i, page.MIMEType))
		}
	}
	if req.SourceRef != nil && strings.TrimSpace(*req.SourceRef) == "" {
		return models.NewValidationError("source ref must not be blank when present")
	}
	return nil
}

// compute runs the non-persisting stages and assembles the full snapshot.
// advance is called as each stage begins.
func (p *Pipeline) compute(ctx context.Context, tenantID, runID string, req *models.RunImportRequest, advance func(models.ImportStage)) (*snapshot, error) {
	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id": tenantID,
		"run_id":    runID,
	})

	advance(models.StageFetchingSource)
	records, err := p.fetchRecords(ctx, req.SourceRef)
	if err != nil {
		return nil, err
	}

	items := make([]models.CatalogItem, len(records))
	for i, record := range records {
		items[i] = models.CatalogItem{
			ID:           uuid.New().String(),
			TenantID:     tenantID,
			Name:         record.Name,
			Description:  record.Description,
			Price:        record.Price,
			Category:     record.Category,
			ImageURL:     record.ImageURL,
			DisplayOrder: i,
		}
	}

	advance(models.StageExtractingHints)
	hints, err := p.extractAllHints(ctx, req.PageImages)
	if err != nil {
		return nil, err
	}

	advance(models.StageMatching)
	outcome := p.matcher.Match(ctx, records, hints)

	matchedPlacements := make([]models.Placement, 0, len(outcome.Matches))
	for _, m := range outcome.Matches {
		hint := hints[m.HintIndex]
		score := m.Score
		matchedPlacements = append(matchedPlacements, models.Placement{
			ItemID:          items[m.ItemIndex].ID,
			TenantID:        tenantID,
			PageIndex:       hint.PageIndex,
			XPercent:        hint.XPercent,
			YPercent:        hint.YPercent,
			WidthPercent:    models.DefaultPlacementWidthPercent,
			HeightPercent:   models.DefaultPlacementHeightPercent,
			Origin:          models.PlacementOriginMatched,
			MatchConfidence: &score,
		})
	}

	advance(models.StageLayingOutFallback)
	unmatchedItems := make([]models.CatalogItem, 0, len(outcome.UnmatchedItems))
	for _, idx := range outcome.UnmatchedItems {
		unmatchedItems = append(unmatchedItems, items[idx])
	}
	synthesized := p.layout.Layout(ctx, unmatchedItems, matchedPlacements, len(req.PageImages))

	placements := append(matchedPlacements, synthesized...)

	byItemID := make(map[string]models.Placement, len(placements))
	for _, placement := range placements {
		byItemID[placement.ItemID] = placement
	}
	entries := make([]models.CatalogEntry, len(items))
	for i, item := range items {
		entries[i] = models.CatalogEntry{Item: item, Placement: byItemID[item.ID]}
	}

	log.WithFields(map[string]any{
		"items":   len(items),
		"hints":   len(hints),
		"matched": len(outcome.Matches),
	}).Debug("Snapshot computed")

	return &snapshot{
		items:      items,
		placements: placements,
		entries:    entries,
		matched:    len(outcome.Matches),
		unmatched:  len(outcome.UnmatchedItems),
		pageCount:  len(req.PageImages),
	}, nil
}

// fetchRecords pulls the scraped listing, retrying transient fetch failures.
// A nil sourceRef means there is nothing to fetch and every page-derived hint
// is discarded downstream for lack of items.
func (p *Pipeline) fetchRecords(ctx context.Context, sourceRef *string) ([]models.CatalogRecord, error) {
	if sourceRef == nil {
		return nil, nil
	}

	start := time.Now()
	records, err := retry.DoWithData(
		func() ([]models.CatalogRecord, error) {
			return p.fetcher.FetchCatalog(ctx, *sourceRef)
		},
		retry.Context(ctx),
		retry.Attempts(p.cfg.SourceRetryAttempts),
		retry.Delay(p.cfg.RetryDelay),
		retry.MaxJitter(p.cfg.RetryMaxJitter),
		retry.RetryIf(func(err error) bool {
			var fetchErr *source.FetchError
			return errors.As(err, &fetchErr)
		}),
		retry.OnRetry(func(n uint, err error) {
			p.logger.WithContext(ctx).WithError(err).Warnf("Retrying source fetch, attempt %d", n+1)
		}),
	)
	metrics.SourceFetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if models.IsImportError(err) {
			return nil, err
		}
		return nil, models.NewExternalServiceError(models.StageFetchingSource, "fetching catalog listing failed", err)
	}
	return records, nil
}

// extractAllHints runs per-page vision extraction with bounded parallelism.
// Page order in the combined hint list follows page index, not completion
// order, so matching input is deterministic.
func (p *Pipeline) extractAllHints(ctx context.Context, pages []models.PageImage) ([]models.PositionHint, error) {
	type pageResult struct {
		hints []models.PositionHint
		err   error
	}

	results := make([]pageResult, len(pages))
	sem := make(chan struct{}, p.cfg.HintConcurrency)
	var wg sync.WaitGroup

	for i, page := range pages {
		wg.Add(1)
		go func(idx int, page models.PageImage) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = pageResult{err: ctx.Err()}
				return
			}

			start := time.Now()
			hints, err := retry.DoWithData(
				func() ([]models.PositionHint, error) {
					return p.extractor.ExtractHints(ctx, page, idx)
				},
				retry.Context(ctx),
				retry.Attempts(p.cfg.VisionRetryAttempts),
				retry.Delay(p.cfg.RetryDelay),
				retry.MaxJitter(p.cfg.RetryMaxJitter),
				retry.RetryIf(func(err error) bool {
					var visionErr *vision.VisionError
					return errors.As(err, &visionErr)
				}),
				retry.OnRetry(func(n uint, err error) {
					p.logger.WithContext(ctx).WithError(err).Warnf("Retrying hint extraction for page %d, attempt %d", idx, n+1)
				}),
			)
			metrics.HintExtractionDuration.Observe(time.Since(start).Seconds())
			results[idx] = pageResult{hints: hints, err: err}
		}(i, page)
	}
	wg.Wait()

	var all []models.PositionHint
	for idx, result := range results {
		if result.err != nil {
			metrics.HintExtractionFailures.Inc()
			return nil, models.NewExternalServiceError(models.StageExtractingHints, fmt.Sprintf("hint extraction failed for page %d", idx), result.err)
		}
		all = append(all, result.hints...)
	}
	return all, nil
}

// failRun records a terminal failure on the audit trail and the event stream
func (p *Pipeline) failRun(ctx context.Context, run *models.ImportRun, cause error, started time.Time) {
	stage := models.StageValidating
	var importErr *models.ImportError
	if errors.As(cause, &importErr) {
		stage = importErr.Stage
	}

	msg := cause.Error()
	run.Stage = models.StageFailed
	run.Error = &msg
	if err := p.runs.Finish(ctx, run); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to record run failure")
	}

	metrics.RecordImportRun(run.TenantID, "failed", time.Since(started).Seconds())

	if p.events != nil {
		p.events.ImportFailed(ctx, run.TenantID, run.ID, string(stage), msg)
	}
}
