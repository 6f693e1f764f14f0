// Package syncer turns extracted product records into idempotent database
// writes: brand resolution, taxonomy mapping, the item upsert plus its
// dependent image and color rows, and the end-of-run availability sweep.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

// Syncer persists extracted records through an ItemStore. Safe for
// concurrent use; brand ids are resolved once and cached for the run.
type Syncer struct {
	store  catalog.ItemStore
	mapper catalog.CategoryMapper
	log    *zap.Logger

	mu       sync.Mutex
	brandIDs map[string]string
	observed map[string]map[string]struct{}
}

// New builds a Syncer. mapper may be nil, in which case every record is
// persisted without taxonomy linkage.
func New(store catalog.ItemStore, mapper catalog.CategoryMapper, log *zap.Logger) *Syncer {
	return &Syncer{
		store:    store,
		mapper:   mapper,
		log:      log,
		brandIDs: make(map[string]string),
		observed: make(map[string]map[string]struct{}),
	}
}

// SyncRecord writes one record for the given brand and returns the item
// id. A missing category mapping is downgraded to a warning; the item is
// stored without category linkage rather than dropped.
func (s *Syncer) SyncRecord(ctx context.Context, brand string, rec *catalog.ExtractedRecord) (string, error) {
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return "", err
	}

	brandID, err := s.brandID(ctx, brand)
	if err != nil {
		return "", fmt.Errorf("resolve brand %q: %w", brand, err)
	}

	item := catalog.Item{
		Name:           rec.Name,
		Description:    rec.Description,
		Price:          s.price(rec),
		BrandID:        brandID,
		Sizes:          NormalizeSizes(rec.AllSizes),
		SizesAvailable: NormalizeSizes(rec.AvailableSizes),
		Available:      rec.Available,
	}

	if s.mapper != nil {
		categoryID, subcategoryID, err := s.mapper.Lookup(rec.Category, rec.Subcategory)
		switch {
		case errors.Is(err, catalog.ErrNoMapping):
			s.log.Warn("no category mapping, storing item without linkage",
				zap.String("url", rec.SourceURL),
				zap.String("category", rec.Category),
				zap.String("subcategory", rec.Subcategory))
		case err != nil:
			return "", fmt.Errorf("lookup mapping %s/%s: %w", rec.Category, rec.Subcategory, err)
		default:
			item.CategoryID = &categoryID
			item.SubcategoryID = &subcategoryID
		}
	}

	itemID, updated, err := s.store.UpsertItem(ctx, item)
	if err != nil {
		return "", err
	}
	if err := s.store.ReplaceImages(ctx, itemID, rec.ImageURLs); err != nil {
		return "", err
	}
	if err := s.store.ReplaceColors(ctx, itemID, rec.Colors); err != nil {
		return "", err
	}

	s.markObserved(brandID, rec.Name)
	s.log.Debug("synced item",
		zap.String("item_id", itemID),
		zap.String("name", rec.Name),
		zap.Bool("updated", updated))
	return itemID, nil
}

// SweepAvailability marks items that were not observed this run as
// unavailable, per brand, and returns the total number flipped. Call it
// once after the run's records have all been synced.
func (s *Syncer) SweepAvailability(ctx context.Context) (int, error) {
	s.mu.Lock()
	snapshot := make(map[string][]string, len(s.observed))
	for brandID, names := range s.observed {
		list := make([]string, 0, len(names))
		for name := range names {
			list = append(list, name)
		}
		snapshot[brandID] = list
	}
	s.mu.Unlock()

	total := 0
	for brandID, names := range snapshot {
		n, err := s.store.SyncAvailability(ctx, brandID, names)
		if err != nil {
			return total, fmt.Errorf("sweep availability for brand %s: %w", brandID, err)
		}
		if n > 0 {
			s.log.Info("availability sweep flipped items",
				zap.String("brand_id", brandID), zap.Int("count", n))
		}
		total += n
	}
	return total, nil
}

// price prefers the sale price over the crossed-out regular price.
func (s *Syncer) price(rec *catalog.ExtractedRecord) float64 {
	if p := NormalizePrice(rec.PriceText); p > 0 {
		return p
	}
	return NormalizePrice(rec.OldPriceText)
}

func (s *Syncer) brandID(ctx context.Context, brand string) (string, error) {
	s.mu.Lock()
	if id, ok := s.brandIDs[brand]; ok {
		s.mu.Unlock()
		return id, nil
	}
	s.mu.Unlock()

	id, err := s.store.GetOrCreateBrand(ctx, brand)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.brandIDs[brand] = id
	s.mu.Unlock()
	return id, nil
}

func (s *Syncer) markObserved(brandID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, ok := s.observed[brandID]
	if !ok {
		names = make(map[string]struct{})
		s.observed[brandID] = names
	}
	names[name] = struct{}{}
}
