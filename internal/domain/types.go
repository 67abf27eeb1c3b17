package domain

import (
	"time"
)

// AssetRecord is the canonical, normalized image metadata entity served by the
// cache. ID is assigned by the upstream image API and never mutated; every
// other field is optional.
type AssetRecord struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename,omitempty"`
	DisplayName string    `json:"displayName,omitempty"`
	Uploaded    time.Time `json:"uploaded"`
	VariantURLs []string  `json:"variantUrls,omitempty"`
	Folder      string    `json:"folder,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Description string    `json:"description,omitempty"`

	// OriginalURL/SourceURL keep the value as authored; the *Normalized forms
	// are derived once at transform time and used as duplicate-detection keys.
	OriginalURL           string `json:"originalUrl,omitempty"`
	OriginalURLNormalized string `json:"originalUrlNormalized,omitempty"`
	SourceURL             string `json:"sourceUrl,omitempty"`
	SourceURLNormalized   string `json:"sourceUrlNormalized,omitempty"`

	Namespace string `json:"namespace,omitempty"`

	// ContentHash is the SHA-256 of the final image bytes, 64 lowercase hex
	// characters. Values failing that shape are coerced to absent.
	ContentHash string `json:"contentHash,omitempty"`

	AltText            string            `json:"altText,omitempty"`
	ExifSummary        map[string]string `json:"exifSummary,omitempty"`
	ParentID           string            `json:"parentId,omitempty"`
	LinkedAssetID      string            `json:"linkedAssetId,omitempty"`
	VariationSortOrder *int              `json:"variationSortOrder,omitempty"`

	HasEmbedding     bool `json:"hasEmbedding,omitempty"`
	HasTextEmbedding bool `json:"hasTextEmbedding,omitempty"`
}

// Normalize derives the cached lookup keys from the raw fields: normalized
// URL forms, content hash shape coercion, and the displayName fallback.
func (r *AssetRecord) Normalize() {
	if r.DisplayName == "" {
		r.DisplayName = r.Filename
	}
	r.OriginalURLNormalized = NormalizeURL(r.OriginalURL)
	r.SourceURLNormalized = NormalizeURL(r.SourceURL)
	r.ContentHash = NormalizeContentHash(r.ContentHash)
}

// MetadataOverride is a locally persisted partial AssetRecord. It preserves
// fields authored through this service that the upstream API has not yet
// reflected in its own metadata. A field applies only when the freshly
// transformed upstream value is absent; upstream data always wins.
type MetadataOverride struct {
	DisplayName        string            `json:"displayName,omitempty"`
	Folder             string            `json:"folder,omitempty"`
	Tags               []string          `json:"tags,omitempty"`
	Description        string            `json:"description,omitempty"`
	OriginalURL        string            `json:"originalUrl,omitempty"`
	SourceURL          string            `json:"sourceUrl,omitempty"`
	Namespace          string            `json:"namespace,omitempty"`
	ContentHash        string            `json:"contentHash,omitempty"`
	AltText            string            `json:"altText,omitempty"`
	ExifSummary        map[string]string `json:"exifSummary,omitempty"`
	ParentID           string            `json:"parentId,omitempty"`
	LinkedAssetID      string            `json:"linkedAssetId,omitempty"`
	VariationSortOrder *int              `json:"variationSortOrder,omitempty"`
	HasEmbedding       bool              `json:"hasEmbedding,omitempty"`
	HasTextEmbedding   bool              `json:"hasTextEmbedding,omitempty"`
}

// OverrideFromRecord captures the full overrideable field set of a record.
// Upserts write this snapshot so locally authored state survives an upstream
// metadata lag.
func OverrideFromRecord(rec AssetRecord) MetadataOverride {
	return MetadataOverride{
		DisplayName:        rec.DisplayName,
		Folder:             rec.Folder,
		Tags:               rec.Tags,
		Description:        rec.Description,
		OriginalURL:        rec.OriginalURL,
		SourceURL:          rec.SourceURL,
		Namespace:          rec.Namespace,
		ContentHash:        rec.ContentHash,
		AltText:            rec.AltText,
		ExifSummary:        rec.ExifSummary,
		ParentID:           rec.ParentID,
		LinkedAssetID:      rec.LinkedAssetID,
		VariationSortOrder: rec.VariationSortOrder,
		HasEmbedding:       rec.HasEmbedding,
		HasTextEmbedding:   rec.HasTextEmbedding,
	}
}

// ApplyTo fills the absent fields of rec from the override. Present upstream
// values are left untouched.
func (m MetadataOverride) ApplyTo(rec *AssetRecord) {
	if rec.DisplayName == "" {
		rec.DisplayName = m.DisplayName
	}
	if rec.Folder == "" {
		rec.Folder = m.Folder
	}
	if len(rec.Tags) == 0 {
		rec.Tags = m.Tags
	}
	if rec.Description == "" {
		rec.Description = m.Description
	}
	if rec.OriginalURL == "" {
		rec.OriginalURL = m.OriginalURL
	}
	if rec.SourceURL == "" {
		rec.SourceURL = m.SourceURL
	}
	if rec.Namespace == "" {
		rec.Namespace = m.Namespace
	}
	if rec.ContentHash == "" {
		rec.ContentHash = m.ContentHash
	}
	if rec.AltText == "" {
		rec.AltText = m.AltText
	}
	if len(rec.ExifSummary) == 0 {
		rec.ExifSummary = m.ExifSummary
	}
	if rec.ParentID == "" {
		rec.ParentID = m.ParentID
	}
	if rec.LinkedAssetID == "" {
		rec.LinkedAssetID = m.LinkedAssetID
	}
	if rec.VariationSortOrder == nil {
		rec.VariationSortOrder = m.VariationSortOrder
	}
	if !rec.HasEmbedding {
		rec.HasEmbedding = m.HasEmbedding
	}
	if !rec.HasTextEmbedding {
		rec.HasTextEmbedding = m.HasTextEmbedding
	}
}
