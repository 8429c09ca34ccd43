package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaan667/servio-fusion/pkg/layout"
	"github.com/amaan667/servio-fusion/pkg/logging"
	"github.com/amaan667/servio-fusion/pkg/matching"
	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/source"
	"github.com/amaan667/servio-fusion/pkg/vision"
)

type fakeFetcher struct {
	mu       sync.Mutex
	records  []models.CatalogRecord
	failures int
	calls    int
}

func (f *fakeFetcher) FetchCatalog(ctx context.Context, sourceRef string) ([]models.CatalogRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, &source.FetchError{SourceRef: sourceRef, StatusCode: 503}
	}
	return f.records, nil
}

type fakeExtractor struct {
	mu       sync.Mutex
	hints    map[int][]models.PositionHint
	failPage int
	failures int
	block    chan struct{}
}

func (f *fakeExtractor) ExtractHints(ctx context.Context, page models.PageImage, pageIndex int) ([]models.PositionHint, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if pageIndex == f.failPage && f.failures > 0 {
		f.failures--
		return nil, &vision.VisionError{PageIndex: pageIndex, Err: errors.New("model unavailable")}
	}
	return f.hints[pageIndex], nil
}

type fakeCatalogStore struct {
	mu         sync.Mutex
	snapshot   []models.CatalogEntry
	replaceErr error
	replaces   int
	enter      chan struct{}
	release    chan struct{}
}

func (f *fakeCatalogStore) ReplaceAll(ctx context.Context, tenantID string, items []models.CatalogItem, placements []models.Placement) error {
	if f.enter != nil {
		f.enter <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	if f.replaceErr != nil {
		return f.replaceErr
	}
	entries := make([]models.CatalogEntry, len(items))
	for i := range items {
		entries[i] = models.CatalogEntry{Item: items[i], Placement: placements[i]}
	}
	f.snapshot = entries
	return nil
}

func (f *fakeCatalogStore) GetCatalog(ctx context.Context, tenantID string) ([]models.CatalogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, nil
}

type fakeRunStore struct {
	mu       sync.Mutex
	creates  int
	stages   []models.ImportStage
	finished []models.ImportRun
}

func (f *fakeRunStore) Create(ctx context.Context, run *models.ImportRun) (*models.ImportRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	run.ID = fmt.Sprintf("run-%d", f.creates)
	return run, nil
}

func (f *fakeRunStore) UpdateStage(ctx context.Context, tenantID, id string, stage models.ImportStage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
	return nil
}

func (f *fakeRunStore) Finish(ctx context.Context, run *models.ImportRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, *run)
	return nil
}

func testConfig() Config {
	return Config{
		SourceRetryAttempts: 3,
		VisionRetryAttempts: 3,
		HintConcurrency:     2,
		RetryDelay:          time.Millisecond,
		RetryMaxJitter:      time.Millisecond,
	}
}

func newPipeline(fetcher *fakeFetcher, extractor *fakeExtractor, catalog *fakeCatalogStore, runs *fakeRunStore) *Pipeline {
	logger := logging.NewNop()
	return NewPipeline(
		logger,
		fetcher,
		extractor,
		matching.NewMatcher(0.70, logger),
		layout.NewGenerator(6, 5.0, logger),
		catalog,
		runs,
		nil,
		nil,
		testConfig(),
	)
}

func strPtr(s string) *string { return &s }

func pages(n int) []models.PageImage {
	out := make([]models.PageImage, n)
	for i := range out {
		out[i] = models.PageImage{MIMEType: "image/png", Data: []byte{0x89, 0x50}}
	}
	return out
}

func TestPipeline_RunImport(t *testing.T) {
	ctx := context.Background()

	t.Run("should commit a snapshot with matched and fallback placements", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{
			{Name: "Grilled Halloumi", Price: 7.5},
			{Name: "Houmous", Price: 4.0},
			{Name: "Mystery Dish", Price: 9.0},
		}}
		extractor := &fakeExtractor{hints: map[int][]models.PositionHint{
			0: {
				{RawName: "Grilled Haloumi", PageIndex: 0, XPercent: 25, YPercent: 35, Confidence: 0.9},
				{RawName: "Hummus", PageIndex: 0, XPercent: 25, YPercent: 45, Confidence: 0.85},
			},
		}}
		catalog := &fakeCatalogStore{}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		result, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		})

		require.NoError(t, err)
		assert.True(t, result.Committed)
		assert.Equal(t, 2, result.MatchedCount)
		assert.Equal(t, 1, result.UnmatchedCount)
		assert.InDelta(t, 2.0/3.0, result.MatchRate, 0.0001)
		require.Len(t, result.Entries, 3)

		// Every item has exactly one placement.
		for _, entry := range result.Entries {
			assert.Equal(t, entry.Item.ID, entry.Placement.ItemID)
		}
		assert.Equal(t, models.PlacementOriginMatched, result.Entries[0].Placement.Origin)
		assert.Equal(t, models.PlacementOriginSynthesized, result.Entries[2].Placement.Origin)

		snapshot, _ := catalog.GetCatalog(ctx, "t1")
		assert.Len(t, snapshot, 3)

		require.NotEmpty(t, runs.finished)
		assert.Equal(t, models.StageCommitted, runs.finished[0].Stage)
	})

	t.Run("should keep the prior snapshot when the replace fails", func(t *testing.T) {
		prior := []models.CatalogEntry{{Item: models.CatalogItem{ID: "old", TenantID: "t1", Name: "Old Item"}}}
		fetcher := &fakeFetcher{records: []models.CatalogRecord{{Name: "New Item"}}}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{snapshot: prior, replaceErr: models.NewPersistenceError(errors.New("disk full"))}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		_, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		})

		var importErr *models.ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, models.ErrorKindPersistence, importErr.Kind)

		snapshot, _ := catalog.GetCatalog(ctx, "t1")
		assert.Equal(t, prior, snapshot)

		require.NotEmpty(t, runs.finished)
		assert.Equal(t, models.StageFailed, runs.finished[0].Stage)
	})

	t.Run("should reject a concurrent replace for the same tenant", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{{Name: "Item"}}}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{
			enter:   make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		req := &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		}

		firstDone := make(chan error, 1)
		go func() {
			_, err := pipeline.RunImport(ctx, "t1", req)
			firstDone <- err
		}()

		// Wait until the first run holds the lock inside ReplaceAll.
		<-catalog.enter

		_, err := pipeline.RunImport(ctx, "t1", req)
		var importErr *models.ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, models.ErrorKindConcurrentReplace, importErr.Kind)

		close(catalog.release)
		require.NoError(t, <-firstDone)
	})

	t.Run("should allow replaces for different tenants concurrently", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{{Name: "Item"}}}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{
			enter:   make(chan struct{}, 1),
			release: make(chan struct{}),
		}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		req := &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		}

		firstDone := make(chan error, 1)
		go func() {
			_, err := pipeline.RunImport(ctx, "t1", req)
			firstDone <- err
		}()
		<-catalog.enter

		secondDone := make(chan error, 1)
		go func() {
			_, err := pipeline.RunImport(ctx, "t2", req)
			secondDone <- err
		}()

		// The second tenant reaches ReplaceAll while the first still holds
		// its own lock.
		<-catalog.enter

		close(catalog.release)
		require.NoError(t, <-firstDone)
		require.NoError(t, <-secondDone)
	})

	t.Run("should retry transient fetch failures", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{{Name: "Item"}}, failures: 2}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		result, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		})

		require.NoError(t, err)
		assert.True(t, result.Committed)
		assert.Equal(t, 3, fetcher.calls)
	})

	t.Run("should fail the run when fetch retries are exhausted", func(t *testing.T) {
		fetcher := &fakeFetcher{failures: 10}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		_, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		})

		var importErr *models.ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, models.ErrorKindExternalService, importErr.Kind)
		assert.Equal(t, models.StageFetchingSource, importErr.Stage)
		assert.Equal(t, 0, catalog.replaces)
	})

	t.Run("should fail the run when a page extraction keeps failing", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{{Name: "Item"}}}
		extractor := &fakeExtractor{failPage: 1, failures: 10}
		catalog := &fakeCatalogStore{}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		_, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(2),
		})

		var importErr *models.ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, models.StageExtractingHints, importErr.Stage)
		assert.Equal(t, 0, catalog.replaces)
	})

	t.Run("should combine hints across pages in page order", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{
			{Name: "First"}, {Name: "Second"},
		}}
		extractor := &fakeExtractor{hints: map[int][]models.PositionHint{
			0: {{RawName: "First", PageIndex: 0, XPercent: 10, YPercent: 10, Confidence: 0.9}},
			1: {{RawName: "Second", PageIndex: 1, XPercent: 20, YPercent: 20, Confidence: 0.9}},
		}}
		catalog := &fakeCatalogStore{}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		result, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(2),
		})

		require.NoError(t, err)
		assert.Equal(t, 2, result.MatchedCount)
		assert.Equal(t, 0, result.Entries[0].Placement.PageIndex)
		assert.Equal(t, 1, result.Entries[1].Placement.PageIndex)
	})

	t.Run("should reject invalid requests before doing any work", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		cases := []struct {
			name     string
			tenantID string
			req      *models.RunImportRequest
		}{
			{"blank tenant", "  ", &models.RunImportRequest{PageImages: pages(1)}},
			{"no pages", "t1", &models.RunImportRequest{}},
			{"empty page data", "t1", &models.RunImportRequest{PageImages: []models.PageImage{{MIMEType: "image/png"}}}},
			{"bad mime type", "t1", &models.RunImportRequest{PageImages: []models.PageImage{{MIMEType: "text/plain", Data: []byte("x")}}}},
			{"blank source ref", "t1", &models.RunImportRequest{SourceRef: strPtr("  "), PageImages: pages(1)}},
		}

		for _, tc := range cases {
			_, err := pipeline.RunImport(ctx, tc.tenantID, tc.req)
			var importErr *models.ImportError
			require.ErrorAs(t, err, &importErr, tc.name)
			assert.Equal(t, models.ErrorKindValidation, importErr.Kind, tc.name)
		}

		assert.Equal(t, 0, fetcher.calls)
		assert.Equal(t, 0, runs.creates)
	})

	t.Run("should commit an empty snapshot when no source ref is given", func(t *testing.T) {
		fetcher := &fakeFetcher{}
		extractor := &fakeExtractor{}
		catalog := &fakeCatalogStore{snapshot: []models.CatalogEntry{{Item: models.CatalogItem{ID: "old"}}}}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		result, err := pipeline.RunImport(ctx, "t1", &models.RunImportRequest{PageImages: pages(1)})

		require.NoError(t, err)
		assert.True(t, result.Committed)
		assert.Empty(t, result.Entries)
		assert.Equal(t, 0, fetcher.calls)

		snapshot, _ := catalog.GetCatalog(ctx, "t1")
		assert.Empty(t, snapshot)
	})
}

func TestPipeline_PreviewImport(t *testing.T) {
	ctx := context.Background()

	t.Run("should compute the same counts without touching storage", func(t *testing.T) {
		fetcher := &fakeFetcher{records: []models.CatalogRecord{
			{Name: "Halloumi"}, {Name: "Unknown Dish"},
		}}
		extractor := &fakeExtractor{hints: map[int][]models.PositionHint{
			0: {{RawName: "Haloumi", PageIndex: 0, XPercent: 30, YPercent: 40, Confidence: 0.9}},
		}}
		prior := []models.CatalogEntry{{Item: models.CatalogItem{ID: "old", TenantID: "t1"}}}
		catalog := &fakeCatalogStore{snapshot: prior}
		runs := &fakeRunStore{}
		pipeline := newPipeline(fetcher, extractor, catalog, runs)

		result, err := pipeline.PreviewImport(ctx, "t1", &models.RunImportRequest{
			SourceRef:  strPtr("https://example.com/listing"),
			PageImages: pages(1),
		})

		require.NoError(t, err)
		assert.False(t, result.Committed)
		assert.Equal(t, 1, result.MatchedCount)
		assert.Equal(t, 1, result.UnmatchedCount)
		assert.NotEmpty(t, result.RunID)

		// Preview is side-effect-free.
		assert.Equal(t, 0, catalog.replaces)
		assert.Equal(t, 0, runs.creates)
		snapshot, _ := catalog.GetCatalog(ctx, "t1")
		assert.Equal(t, prior, snapshot)
	})

	t.Run("should surface validation failures", func(t *testing.T) {
		pipeline := newPipeline(&fakeFetcher{}, &fakeExtractor{}, &fakeCatalogStore{}, &fakeRunStore{})

		_, err := pipeline.PreviewImport(ctx, "t1", &models.RunImportRequest{})

		var importErr *models.ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, models.ErrorKindValidation, importErr.Kind)
	})
}
