package upstream

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lumapics/gallery-backend/internal/domain"
	"github.com/lumapics/gallery-backend/internal/logger"
	"github.com/lumapics/gallery-backend/internal/overlay"
)

// Walker enumerates the upstream listing page by page and transforms each raw
// record into the canonical AssetRecord shape, overlay applied. It has no
// side effects on the registry; callers own when to install the result.
type Walker struct {
	client   Client
	overlay  *overlay.Overlay
	pageSize int
	maxPages int
}

// NewWalker creates a page walker. maxPages bounds pathological pagination
// from a misbehaving upstream; 0 disables the cap.
func NewWalker(client Client, ov *overlay.Overlay, pageSize, maxPages int) *Walker {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Walker{
		client:   client,
		overlay:  ov,
		pageSize: pageSize,
		maxPages: maxPages,
	}
}

// WalkAll fetches every page starting at 1 and returns the full ordered
// record list. It stops on the first page shorter than the page size. When
// the safety cap is hit it logs a warning and returns the possibly incomplete
// result instead of looping forever.
func (w *Walker) WalkAll(ctx context.Context) ([]domain.AssetRecord, error) {
	var records []domain.AssetRecord

	for page := 1; ; page++ {
		if w.maxPages > 0 && page > w.maxPages {
			logger.WarnCtx(ctx, "upstream page walk hit safety cap, result may be incomplete",
				zap.Int("max_pages", w.maxPages),
				zap.Int("records", len(records)))
			break
		}

		raws, err := w.client.ListPage(ctx, page, w.pageSize)
		if err != nil {
			return nil, fmt.Errorf("upstream page walk failed at page %d: %w", page, err)
		}

		for _, raw := range raws {
			records = append(records, w.Transform(raw))
		}

		if len(raws) < w.pageSize {
			break
		}
	}

	return records, nil
}

// Transform normalizes one raw upstream record into the canonical shape:
// parse the metadata blob, fill gaps from the override overlay, then derive
// the cached lookup keys.
func (w *Walker) Transform(raw RawAsset) domain.AssetRecord {
	rec := domain.AssetRecord{
		ID:          raw.ID,
		Filename:    raw.Filename,
		Uploaded:    raw.Uploaded,
		VariantURLs: raw.Variants,
	}

	parseGalleryMeta(raw.Meta, &rec)
	rec = w.overlay.Apply(rec)
	rec.Normalize()

	return rec
}
