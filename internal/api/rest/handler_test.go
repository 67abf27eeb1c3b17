package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumapics/gallery-backend/internal/api/middleware"
	"github.com/lumapics/gallery-backend/internal/dedup"
	"github.com/lumapics/gallery-backend/internal/domain"
	"github.com/lumapics/gallery-backend/internal/logger"
)

const testAPIKey = "test-api-key"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := logger.Initialize(logger.Config{Debug: false}); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

// fakeCache is an in-memory registry.Cache for handler tests
type fakeCache struct {
	mu       sync.Mutex
	records  []domain.AssetRecord
	getAllE  error
	getOneE  error
	clearE   error
	upserted []domain.AssetRecord
	removed  []string
	cleared  bool
}

func (f *fakeCache) GetAll(ctx context.Context, forceRefresh bool) ([]domain.AssetRecord, error) {
	if f.getAllE != nil {
		return nil, f.getAllE
	}
	return f.records, nil
}

func (f *fakeCache) GetSync() []domain.AssetRecord { return f.records }

func (f *fakeCache) GetOne(ctx context.Context, id string) (*domain.AssetRecord, error) {
	if f.getOneE != nil {
		return nil, f.getOneE
	}
	for _, rec := range f.records {
		if rec.ID == id {
			r := rec
			return &r, nil
		}
	}
	return nil, domain.ErrAssetNotFound
}

func (f *fakeCache) Upsert(ctx context.Context, rec domain.AssetRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, rec)
}

func (f *fakeCache) Remove(ctx context.Context, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
}

func (f *fakeCache) ClearAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return f.clearE
}

func newTestRouter(cache *fakeCache) *gin.Engine {
	router := gin.New()
	handler := NewHandler(cache, dedup.New(cache))
	SetupRoutes(router, handler, middleware.AuthConfig{APIKeys: []string{testAPIKey}})
	return router
}

func doRequest(router *gin.Engine, method, path, body string, authed bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "ApiKey "+testAPIKey)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&fakeCache{})
	w := doRequest(router, http.MethodGet, "/health", "", false)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListAssets(t *testing.T) {
	cache := &fakeCache{records: []domain.AssetRecord{
		{ID: "1", Namespace: "ns1"},
		{ID: "2", Namespace: "ns2"},
	}}
	router := newTestRouter(cache)

	t.Run("all assets", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/assets", "", false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp listAssetsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Count)
		assert.Len(t, resp.Assets, 2)
	})

	t.Run("namespace filter", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/assets?namespace=ns1", "", false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp listAssetsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		require.Len(t, resp.Assets, 1)
		assert.Equal(t, "1", resp.Assets[0].ID)
	})

	t.Run("empty cache yields empty list not null", func(t *testing.T) {
		emptyRouter := newTestRouter(&fakeCache{})
		w := doRequest(emptyRouter, http.MethodGet, "/api/v1/assets", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"assets":[],"count":0}`, w.Body.String())
	})

	t.Run("upstream unavailable maps to 502", func(t *testing.T) {
		errRouter := newTestRouter(&fakeCache{getAllE: domain.ErrUpstreamUnavailable})
		w := doRequest(errRouter, http.MethodGet, "/api/v1/assets", "", false)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), "upstream_unavailable")
	})
}

func TestGetAsset(t *testing.T) {
	cache := &fakeCache{records: []domain.AssetRecord{{ID: "abc", Filename: "x.jpg"}}}
	router := newTestRouter(cache)

	t.Run("found", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/assets/abc", "", false)
		require.Equal(t, http.StatusOK, w.Code)

		var rec domain.AssetRecord
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
		assert.Equal(t, "abc", rec.ID)
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/assets/missing", "", false)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "not_found")
	})

	t.Run("upstream unavailable", func(t *testing.T) {
		errRouter := newTestRouter(&fakeCache{getOneE: domain.ErrUpstreamUnavailable})
		w := doRequest(errRouter, http.MethodGet, "/api/v1/assets/abc", "", false)
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}

func TestUpsertAsset(t *testing.T) {
	t.Run("requires auth", func(t *testing.T) {
		router := newTestRouter(&fakeCache{})
		w := doRequest(router, http.MethodPut, "/api/v1/assets/abc", `{"filename":"x.jpg"}`, false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("path id is authoritative", func(t *testing.T) {
		cache := &fakeCache{}
		router := newTestRouter(cache)
		w := doRequest(router, http.MethodPut, "/api/v1/assets/abc", `{"filename":"x.jpg","folder":"Trips"}`, true)
		require.Equal(t, http.StatusOK, w.Code)

		require.Len(t, cache.upserted, 1)
		assert.Equal(t, "abc", cache.upserted[0].ID)
		assert.Equal(t, "Trips", cache.upserted[0].Folder)
	})

	t.Run("body id mismatch is rejected", func(t *testing.T) {
		cache := &fakeCache{}
		router := newTestRouter(cache)
		w := doRequest(router, http.MethodPut, "/api/v1/assets/abc", `{"id":"other"}`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Empty(t, cache.upserted)
	})

	t.Run("invalid JSON is rejected", func(t *testing.T) {
		router := newTestRouter(&fakeCache{})
		w := doRequest(router, http.MethodPut, "/api/v1/assets/abc", `{broken`, true)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteAsset(t *testing.T) {
	t.Run("requires auth", func(t *testing.T) {
		router := newTestRouter(&fakeCache{})
		w := doRequest(router, http.MethodDelete, "/api/v1/assets/abc", "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("deletes and returns no content", func(t *testing.T) {
		cache := &fakeCache{}
		router := newTestRouter(cache)
		w := doRequest(router, http.MethodDelete, "/api/v1/assets/abc", "", true)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"abc"}, cache.removed)
	})
}

func TestClearCache(t *testing.T) {
	t.Run("requires auth", func(t *testing.T) {
		router := newTestRouter(&fakeCache{})
		w := doRequest(router, http.MethodPost, "/api/v1/cache/clear", "", false)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("clears", func(t *testing.T) {
		cache := &fakeCache{}
		router := newTestRouter(cache)
		w := doRequest(router, http.MethodPost, "/api/v1/cache/clear", "", true)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.True(t, cache.cleared)
	})
}

func TestFindDuplicates(t *testing.T) {
	hash := strings.Repeat("a", 64)
	records := []domain.AssetRecord{
		{ID: "1", ContentHash: hash, Namespace: "ns1"},
		{ID: "2", OriginalURL: "https://example.com/p", Namespace: "ns1"},
	}
	for i := range records {
		records[i].Normalize()
	}
	router := newTestRouter(&fakeCache{records: records})

	t.Run("by content hash", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/duplicates?content_hash="+hash, "", false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp duplicatesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.ByContentHash, 1)
		assert.Equal(t, "1", resp.ByContentHash[0].ID)
		assert.Empty(t, resp.ByOriginalURL)
	})

	t.Run("by original url", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/duplicates?original_url=https%3A%2F%2Fexample.com%2Fp", "", false)
		require.Equal(t, http.StatusOK, w.Code)

		var resp duplicatesResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.ByOriginalURL, 1)
		assert.Equal(t, "2", resp.ByOriginalURL[0].ID)
	})

	t.Run("no key is a bad request", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/duplicates", "", false)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("malformed hash yields empty lists", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/duplicates?content_hash=short", "", false)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"byContentHash":[],"byOriginalUrl":[]}`, w.Body.String())
	})
}
