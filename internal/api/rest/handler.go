package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumapics/gallery-backend/internal/dedup"
	"github.com/lumapics/gallery-backend/internal/domain"
	"github.com/lumapics/gallery-backend/internal/registry"
)

// Handler serves the cache layer's consumer boundary over HTTP
type Handler struct {
	cache    registry.Cache
	detector *dedup.Detector
}

// NewHandler creates a new REST handler
func NewHandler(cache registry.Cache, detector *dedup.Detector) *Handler {
	return &Handler{
		cache:    cache,
		detector: detector,
	}
}

// HealthCheck responds to health probes
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type listAssetsResponse struct {
	Assets []domain.AssetRecord `json:"assets"`
	Count  int                  `json:"count"`
}

// ListAssets returns the cached asset listing. Supports force_refresh and a
// namespace filter.
func (h *Handler) ListAssets(c *gin.Context) {
	forceRefresh := c.Query("force_refresh") == "true"
	namespace := c.Query("namespace")

	assets, err := h.cache.GetAll(c.Request.Context(), forceRefresh)
	if err != nil {
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			respondUpstreamUnavailable(c, err)
			return
		}
		respondInternalError(c, err, "Failed to list assets")
		return
	}

	if namespace != "" {
		filtered := make([]domain.AssetRecord, 0, len(assets))
		for _, rec := range assets {
			if rec.Namespace == namespace {
				filtered = append(filtered, rec)
			}
		}
		assets = filtered
	}

	if assets == nil {
		assets = []domain.AssetRecord{}
	}
	c.JSON(http.StatusOK, listAssetsResponse{Assets: assets, Count: len(assets)})
}

// GetAsset returns a single asset by id
func (h *Handler) GetAsset(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.cache.GetOne(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrAssetNotFound):
			respondNotFound(c, "Asset not found")
		case errors.Is(err, domain.ErrUpstreamUnavailable):
			respondUpstreamUnavailable(c, err)
		default:
			respondInternalError(c, err, "Failed to fetch asset")
		}
		return
	}

	c.JSON(http.StatusOK, rec)
}

// UpsertAsset installs or replaces an asset record. The path id is
// authoritative.
func (h *Handler) UpsertAsset(c *gin.Context) {
	id := c.Param("id")

	var rec domain.AssetRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		respondBadRequest(c, "Invalid asset record", err.Error())
		return
	}

	if rec.ID == "" {
		rec.ID = id
	}
	if rec.ID != id {
		respondBadRequest(c, "Body id does not match path id")
		return
	}

	h.cache.Upsert(c.Request.Context(), rec)
	c.JSON(http.StatusOK, rec)
}

// DeleteAsset removes an asset record from the cache
func (h *Handler) DeleteAsset(c *gin.Context) {
	h.cache.Remove(c.Request.Context(), c.Param("id"))
	c.Status(http.StatusNoContent)
}

// ClearCache resets the registry and deletes the persisted snapshot.
// Operator-triggered invalidation.
func (h *Handler) ClearCache(c *gin.Context) {
	if err := h.cache.ClearAll(c.Request.Context()); err != nil {
		respondInternalError(c, err, "Failed to clear cache")
		return
	}
	c.Status(http.StatusNoContent)
}

type duplicatesResponse struct {
	ByContentHash []domain.AssetRecord `json:"byContentHash"`
	ByOriginalURL []domain.AssetRecord `json:"byOriginalUrl"`
}

// FindDuplicates evaluates the duplicate predicates against the resident
// registry state. Invalid keys yield empty lists, not errors.
func (h *Handler) FindDuplicates(c *gin.Context) {
	contentHash := c.Query("content_hash")
	originalURL := c.Query("original_url")
	namespace := c.Query("namespace")

	if contentHash == "" && originalURL == "" {
		respondBadRequest(c, "Provide content_hash or original_url")
		return
	}

	response := duplicatesResponse{
		ByContentHash: []domain.AssetRecord{},
		ByOriginalURL: []domain.AssetRecord{},
	}
	if contentHash != "" {
		if matches := h.detector.FindByContentHash(contentHash, namespace); matches != nil {
			response.ByContentHash = matches
		}
	}
	if originalURL != "" {
		if matches := h.detector.FindByOriginalURL(originalURL, namespace); matches != nil {
			response.ByOriginalURL = matches
		}
	}

	c.JSON(http.StatusOK, response)
}
