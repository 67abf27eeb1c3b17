package upstream

import (
	"encoding/json"

	"github.com/lumapics/gallery-backend/internal/domain"
)

// metaKey is the upstream metadata entry the gallery app serializes its
// extended fields into, as a JSON-encoded string.
const metaKey = "gallery"

// parseGalleryMeta extracts the extended gallery fields from the upstream
// metadata blob. Parsing is defensive: the blob is untyped, so every field is
// pulled out individually and anything with the wrong shape is treated as
// absent. Never fails.
func parseGalleryMeta(meta map[string]string, rec *domain.AssetRecord) {
	raw, ok := meta[metaKey]
	if !ok || raw == "" {
		return
	}

	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return
	}

	rec.DisplayName = asString(fields["displayName"])
	rec.Folder = asString(fields["folder"])
	rec.Tags = asStringSlice(fields["tags"])
	rec.Description = asString(fields["description"])
	rec.OriginalURL = asString(fields["originalUrl"])
	rec.SourceURL = asString(fields["sourceUrl"])
	rec.Namespace = asString(fields["namespace"])
	rec.ContentHash = asString(fields["contentHash"])
	rec.AltText = asString(fields["altText"])
	rec.ExifSummary = asStringMap(fields["exif"])
	rec.ParentID = asString(fields["parentId"])
	rec.LinkedAssetID = asString(fields["linkedAssetId"])
	rec.VariationSortOrder = asIntPtr(fields["variationSortOrder"])
	rec.HasEmbedding = asBool(fields["hasEmbedding"])
	rec.HasTextEmbedding = asBool(fields["hasTextEmbedding"])
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asBool(v interface{}) bool {
	b, _ := v.(bool)
	return b
}

func asIntPtr(v interface{}) *int {
	// JSON numbers decode as float64
	f, ok := v.(float64)
	if !ok {
		return nil
	}
	n := int(f)
	return &n
}

func asStringSlice(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func asStringMap(v interface{}) map[string]string {
	items, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(items))
	for key, item := range items {
		if s, ok := item.(string); ok {
			out[key] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
