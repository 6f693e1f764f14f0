// Package mapping resolves storefront category names to the catalog
// database's taxonomy ids. The table ships with a built-in default and
// can be overridden from a YAML file.
package mapping

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

type categoryEntry struct {
	CategoryID    string            `yaml:"category_id"`
	Subcategories map[string]string `yaml:"subcategories"`
}

// Table implements catalog.CategoryMapper over a static lookup table.
type Table struct {
	entries map[string]categoryEntry
}

// Load reads a mapping table from a YAML file.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML mapping document of the form:
//
//	WOMAN:
//	  category_id: "124af253-..."
//	  subcategories:
//	    JEANS: "0885711c-..."
func Parse(data []byte) (*Table, error) {
	entries := make(map[string]categoryEntry)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse mapping file: %w", err)
	}
	for name, entry := range entries {
		if entry.CategoryID == "" {
			return nil, fmt.Errorf("mapping entry %q has no category_id", name)
		}
	}
	return &Table{entries: entries}, nil
}

// Lookup resolves a (category, subcategory) pair. A miss at either level
// returns catalog.ErrNoMapping.
func (t *Table) Lookup(category, subcategory string) (string, string, error) {
	entry, ok := t.entries[category]
	if !ok {
		return "", "", fmt.Errorf("category %q: %w", category, catalog.ErrNoMapping)
	}
	subID, ok := entry.Subcategories[subcategory]
	if !ok {
		return "", "", fmt.Errorf("subcategory %s/%s: %w", category, subcategory, catalog.ErrNoMapping)
	}
	return entry.CategoryID, subID, nil
}

// Default returns the shipped Rapsodia table. Both storefront sections
// map onto the same garment taxonomy.
func Default() *Table {
	const (
		prendasID = "124af253-3a60-417c-88d9-47bfe3835479"
		jeansID   = "0885711c-7e8c-4bdb-a924-6d3cd48cb269"
		pantsID   = "b27e6165-8c44-4f86-b5b0-564f05049f29"
		topsID    = "7095e13c-470f-4352-a8f0-542119a42c09"
		dressesID = "4e2d0317-dbc8-44a8-be44-22111b5c3921"
		coatsID   = "93488394-8772-4ae5-82b4-1dc898118fba"
	)
	return &Table{entries: map[string]categoryEntry{
		"WOMAN": {
			CategoryID: prendasID,
			Subcategories: map[string]string{
				"JEANS":            jeansID,
				"PANTALONES":       pantsID,
				"REMERAS":          topsID,
				"CAMISAS_Y_TOPS":   topsID,
				"VESTIDOS":         dressesID,
				"BUZOS_SWEATERS":   coatsID,
				"CAMPERAS_KIMONOS": coatsID,
			},
		},
		"GIRLS": {
			CategoryID: prendasID,
			Subcategories: map[string]string{
				"JEANS":           jeansID,
				"PANTALONES":      pantsID,
				"REMERAS_CAMISAS": topsID,
				"BUZOS_SWEATERS":  coatsID,
				"CAMPERAS_SACOS":  coatsID,
			},
		},
	}}
}
