// Package postgres provides the Postgres-backed item store used by the
// sync layer.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
	"github.com/grupo-alas/catalog-sync/internal/metrics"
)

// DB is the subset of pgxpool.Pool the store needs. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ItemStore implements catalog.ItemStore on Postgres. Items are matched
// by the (name, brand_id) natural key; dependent entities are replaced
// wholesale on every sync.
type ItemStore struct {
	db   DB
	pool *pgxpool.Pool
	log  *zap.Logger
}

// NewItemStore opens a connection pool for dsn.
func NewItemStore(ctx context.Context, dsn string, log *zap.Logger) (*ItemStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	metrics.Init()
	return &ItemStore{db: pool, pool: pool, log: log}, nil
}

// NewItemStoreWithDB wires a store over an existing connection source.
func NewItemStoreWithDB(db DB, log *zap.Logger) *ItemStore {
	metrics.Init()
	return &ItemStore{db: db, log: log}
}

// Close closes the underlying pool if the store owns one.
func (s *ItemStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertItem inserts or updates by the (name, brand_id) natural key.
// Transitions worth operator attention are logged: availability flips
// and available-size set changes (compared as sets, not slices).
func (s *ItemStore) UpsertItem(ctx context.Context, item catalog.Item) (string, bool, error) {
	var (
		id           string
		oldAvailable bool
		oldSizes     []string
	)
	err := s.db.QueryRow(ctx,
		`SELECT item_id, available, sizes_available FROM items WHERE name = $1 AND brand_id = $2`,
		item.Name, item.BrandID,
	).Scan(&id, &oldAvailable, &oldSizes)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = s.db.QueryRow(ctx,
			`INSERT INTO items (
				name, description, price, brand_id,
				main_category_id, subcategory_id,
				sizes, sizes_available, available,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
			RETURNING item_id`,
			item.Name, item.Description, item.Price, item.BrandID,
			item.CategoryID, item.SubcategoryID,
			item.Sizes, item.SizesAvailable, item.Available,
		).Scan(&id)
		if err != nil {
			return "", false, fmt.Errorf("insert item %q: %w", item.Name, err)
		}
		s.log.Info("created item",
			zap.String("item_id", id), zap.String("name", item.Name))
		metrics.ObserveSyncTransition("created")
		return id, false, nil

	case err != nil:
		return "", false, fmt.Errorf("lookup item %q: %w", item.Name, err)
	}

	_, err = s.db.Exec(ctx,
		`UPDATE items SET
			description = $1, price = $2, sizes = $3,
			sizes_available = $4, available = $5, updated_at = NOW()
		WHERE item_id = $6`,
		item.Description, item.Price, item.Sizes,
		item.SizesAvailable, item.Available, id,
	)
	if err != nil {
		return "", false, fmt.Errorf("update item %q: %w", item.Name, err)
	}
	metrics.ObserveSyncTransition("updated")

	if oldAvailable && !item.Available {
		s.log.Warn("item became unavailable",
			zap.String("item_id", id), zap.String("name", item.Name))
		metrics.ObserveSyncTransition("became_unavailable")
	} else if !oldAvailable && item.Available {
		s.log.Info("item became available",
			zap.String("item_id", id), zap.String("name", item.Name))
		metrics.ObserveSyncTransition("became_available")
	}
	if !sameSet(oldSizes, item.SizesAvailable) {
		s.log.Info("item size availability changed",
			zap.String("item_id", id),
			zap.String("name", item.Name),
			zap.Strings("before", oldSizes),
			zap.Strings("after", item.SizesAvailable))
		metrics.ObserveSyncTransition("sizes_changed")
	}
	return id, true, nil
}

// ReplaceImages swaps the item's image rows; the first URL becomes the
// primary image. An empty extraction leaves the current rows alone.
func (s *ItemStore) ReplaceImages(ctx context.Context, itemID string, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM item_images WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete images for %s: %w", itemID, err)
	}
	for i, u := range urls {
		_, err := s.db.Exec(ctx,
			`INSERT INTO item_images (item_id, url, is_primary, created_at)
			 VALUES ($1, $2, $3, NOW())`,
			itemID, u, i == 0,
		)
		if err != nil {
			return fmt.Errorf("insert image for %s: %w", itemID, err)
		}
	}
	return nil
}

// ReplaceColors swaps the item's color links, creating unknown colors on
// demand with a name-derived hex fallback.
func (s *ItemStore) ReplaceColors(ctx context.Context, itemID string, colors []string) error {
	if len(colors) == 0 {
		return nil
	}
	colorIDs := make([]string, 0, len(colors))
	for _, name := range colors {
		id, err := s.getOrCreateColor(ctx, name)
		if err != nil {
			return err
		}
		colorIDs = append(colorIDs, id)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM item_x_item_colors WHERE item_id = $1`, itemID); err != nil {
		return fmt.Errorf("delete color links for %s: %w", itemID, err)
	}
	for _, colorID := range colorIDs {
		_, err := s.db.Exec(ctx,
			`INSERT INTO item_x_item_colors (item_id, color_id, created_at)
			 VALUES ($1, $2, NOW())
			 ON CONFLICT (item_id, color_id) DO NOTHING`,
			itemID, colorID,
		)
		if err != nil {
			return fmt.Errorf("link color for %s: %w", itemID, err)
		}
	}
	return nil
}

func (s *ItemStore) getOrCreateColor(ctx context.Context, name string) (string, error) {
	upper := strings.ToUpper(name)
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT color_id FROM item_colors WHERE name = $1`, upper,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup color %q: %w", name, err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO item_colors (name, hex_code, created_at)
		 VALUES ($1, $2, NOW())
		 RETURNING color_id`,
		upper, colorHex(upper),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create color %q: %w", name, err)
	}
	s.log.Info("created color", zap.String("name", upper), zap.String("color_id", id))
	return id, nil
}

// GetOrCreateBrand resolves a brand name to its id, creating the row on
// first sighting.
func (s *ItemStore) GetOrCreateBrand(ctx context.Context, name string) (string, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`SELECT brand_id FROM brands WHERE name = $1`, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("lookup brand %q: %w", name, err)
	}
	err = s.db.QueryRow(ctx,
		`INSERT INTO brands (name, created_at, updated_at)
		 VALUES ($1, NOW(), NOW())
		 RETURNING brand_id`,
		name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("create brand %q: %w", name, err)
	}
	s.log.Info("created brand", zap.String("name", name), zap.String("brand_id", id))
	return id, nil
}

// SyncAvailability flips to unavailable every available item of the
// brand whose name was not observed in the current run. Items are never
// deleted; absence only toggles the flag.
func (s *ItemStore) SyncAvailability(ctx context.Context, brandID string, observedNames []string) (int, error) {
	rows, err := s.db.Query(ctx,
		`SELECT item_id, name FROM items WHERE brand_id = $1 AND available = true`,
		brandID,
	)
	if err != nil {
		return 0, fmt.Errorf("list available items: %w", err)
	}
	defer rows.Close()

	observed := make(map[string]struct{}, len(observedNames))
	for _, n := range observedNames {
		observed[n] = struct{}{}
	}

	var vanished []string
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return 0, fmt.Errorf("scan item row: %w", err)
		}
		if _, ok := observed[name]; !ok {
			vanished = append(vanished, id)
			s.log.Warn("item not observed this run, marking unavailable",
				zap.String("item_id", id), zap.String("name", name))
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate items: %w", err)
	}
	if len(vanished) == 0 {
		return 0, nil
	}

	_, err = s.db.Exec(ctx,
		`UPDATE items SET available = false, updated_at = NOW() WHERE item_id = ANY($1)`,
		vanished,
	)
	if err != nil {
		return 0, fmt.Errorf("mark items unavailable: %w", err)
	}
	for range vanished {
		metrics.ObserveSyncTransition("swept_unavailable")
	}
	return len(vanished), nil
}

var colorHexes = map[string]string{
	"NEGRO":    "#000000",
	"BLANCO":   "#FFFFFF",
	"AZUL":     "#0000FF",
	"ROJO":     "#FF0000",
	"VERDE":    "#00FF00",
	"AMARILLO": "#FFFF00",
	"GRIS":     "#808080",
	"ROSA":     "#FFC0CB",
	"CRUDO":    "#F5F5DC",
	"BEIGE":    "#F5F5DC",
	"CAMEL":    "#C19A6B",
	"CELESTE":  "#87CEEB",
}

func colorHex(name string) string {
	if hex, ok := colorHexes[name]; ok {
		return hex
	}
	return "#CCCCCC"
}

func sameSet(a, b []string) bool {
	setA := toSet(a)
	setB := toSet(b)
	if len(setA) != len(setB) {
		return false
	}
	for k := range setA {
		if _, ok := setB[k]; !ok {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
