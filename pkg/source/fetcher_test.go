package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amaan667/servio-fusion/pkg/logging"
	"github.com/amaan667/servio-fusion/pkg/models"
)

func TestHTTPFetcher_FetchCatalog(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewNop()

	t.Run("should decode a bare array listing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			w.Write([]byte(`[{"name": "Halloumi", "price": 7.5, "category": "Starters"}]`))
		}))
		defer server.Close()

		records, err := NewHTTPFetcher(0, logger).FetchCatalog(ctx, server.URL)

		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "Halloumi", records[0].Name)
		assert.Equal(t, 7.5, records[0].Price)
	})

	t.Run("should decode an items wrapper listing", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"items": [{"name": "Hummus", "price": 4}, {"name": "Falafel", "price": 5}]}`))
		}))
		defer server.Close()

		records, err := NewHTTPFetcher(0, logger).FetchCatalog(ctx, server.URL)

		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("should return FetchError on non-200 status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		_, err := NewHTTPFetcher(0, logger).FetchCatalog(ctx, server.URL)

		var fetchErr *FetchError
		require.ErrorAs(t, err, &fetchErr)
		assert.Equal(t, http.StatusServiceUnavailable, fetchErr.StatusCode)
	})

	t.Run("should return FetchError on malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		_, err := NewHTTPFetcher(0, logger).FetchCatalog(ctx, server.URL)

		var fetchErr *FetchError
		assert.ErrorAs(t, err, &fetchErr)
	})

	t.Run("should reject a non-http source ref as validation failure", func(t *testing.T) {
		_, err := NewHTTPFetcher(0, logger).FetchCatalog(ctx, "ftp://example.com/menu")

		var importErr *models.ImportError
		require.ErrorAs(t, err, &importErr)
		assert.Equal(t, models.ErrorKindValidation, importErr.Kind)
	})

	t.Run("should honor context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer server.Close()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := NewHTTPFetcher(0, logger).FetchCatalog(cancelled, server.URL)

		var fetchErr *FetchError
		assert.ErrorAs(t, err, &fetchErr)
	})
}
