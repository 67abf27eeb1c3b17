package dedup

import (
	"github.com/lumapics/gallery-backend/internal/domain"
	"github.com/lumapics/gallery-backend/internal/registry"
)

// Detector answers the upload path's duplicate queries against the resident
// registry state. Both predicates are pure: no mutation, no network calls,
// safe on every upload attempt.
type Detector struct {
	cache registry.Cache
}

// New creates a duplicate detector over the given registry
func New(cache registry.Cache) *Detector {
	return &Detector{cache: cache}
}

// FindByContentHash returns every record whose content hash matches, scoped
// to namespace when non-empty. A hash that is not 64 hex characters after
// lowercasing yields an empty result, not an error.
func (d *Detector) FindByContentHash(hash, namespace string) []domain.AssetRecord {
	normalized := domain.NormalizeContentHash(hash)
	if normalized == "" {
		return nil
	}

	var matches []domain.AssetRecord
	for _, rec := range d.cache.GetSync() {
		if rec.ContentHash != normalized {
			continue
		}
		if namespace != "" && rec.Namespace != namespace {
			continue
		}
		matches = append(matches, rec)
	}
	return matches
}

// FindByOriginalURL returns every record whose normalized original URL
// matches the normalized form of rawURL, scoped to namespace when non-empty.
// An unparseable URL yields an empty result.
func (d *Detector) FindByOriginalURL(rawURL, namespace string) []domain.AssetRecord {
	normalized := domain.NormalizeURL(rawURL)
	if normalized == "" {
		return nil
	}

	var matches []domain.AssetRecord
	for _, rec := range d.cache.GetSync() {
		if rec.OriginalURLNormalized != normalized {
			continue
		}
		if namespace != "" && rec.Namespace != namespace {
			continue
		}
		matches = append(matches, rec)
	}
	return matches
}
