// Package source fetches scraped catalog listings for an import run
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/amaan667/servio-fusion/pkg/models"
	"github.com/amaan667/servio-fusion/pkg/tracing"
)

const (
	// DefaultTimeout is the default fetch timeout
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize is the maximum listing body size (10MB)
	MaxResponseSize = 10 * 1024 * 1024
)

// FetchError is a transient failure talking to the listing source. The
// pipeline retries these with backoff.
type FetchError struct {
	SourceRef  string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %q: unexpected status %d", e.SourceRef, e.StatusCode)
	}
	return fmt.Sprintf("fetch %q: %v", e.SourceRef, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Fetcher retrieves the scraped catalog listing for a source reference
type Fetcher interface {
	FetchCatalog(ctx context.Context, sourceRef string) ([]models.CatalogRecord, error)
}

// HTTPFetcher fetches JSON catalog listings over HTTP
type HTTPFetcher struct {
	client *http.Client
	logger ectologger.Logger
}

// NewHTTPFetcher creates a new HTTPFetcher
func NewHTTPFetcher(timeout time.Duration, logger ectologger.Logger) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
			Timeout: timeout,
		},
		logger: logger,
	}
}

// listingPayload is the wire shape of a scraped listing
type listingPayload struct {
	Items []models.CatalogRecord `json:"items"`
}

// FetchCatalog downloads and decodes the listing at sourceRef. The ref must
// be an absolute http(s) URL; anything else is a validation failure, not a
// FetchError.
func (f *HTTPFetcher) FetchCatalog(ctx context.Context, sourceRef string) ([]models.CatalogRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "source.HTTPFetcher.FetchCatalog")
	defer span.End()

	log := f.logger.WithContext(ctx).WithField("source_ref", sourceRef)

	parsed, err := url.Parse(sourceRef)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, models.NewValidationError(fmt.Sprintf("source ref %q is not an absolute http(s) url", sourceRef))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceRef, nil)
	if err != nil {
		return nil, models.NewValidationError(fmt.Sprintf("building request for %q: %v", sourceRef, err))
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		log.WithError(err).Errorf("Listing fetch failed: %s", sourceRef)
		return nil, &FetchError{SourceRef: sourceRef, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, &FetchError{SourceRef: sourceRef, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, &FetchError{SourceRef: sourceRef, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(body) > MaxResponseSize {
		return nil, &FetchError{SourceRef: sourceRef, Err: fmt.Errorf("listing body exceeds %d bytes", MaxResponseSize)}
	}

	records, err := decodeListing(body)
	if err != nil {
		return nil, &FetchError{SourceRef: sourceRef, Err: err}
	}

	log.WithFields(map[string]any{
		"item_count":  len(records),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Listing fetched")

	return records, nil
}

// decodeListing accepts either a bare array of records or an object with an
// items field.
func decodeListing(body []byte) ([]models.CatalogRecord, error) {
	var records []models.CatalogRecord
	if err := json.Unmarshal(body, &records); err == nil {
		return records, nil
	}

	var payload listingPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	return payload.Items, nil
}
