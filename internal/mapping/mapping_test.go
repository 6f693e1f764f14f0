package mapping

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grupo-alas/catalog-sync/internal/catalog"
)

func TestDefaultTable(t *testing.T) {
	t.Parallel()

	table := Default()

	catID, subID, err := table.Lookup("WOMAN", "VESTIDOS")
	require.NoError(t, err)
	assert.Equal(t, "124af253-3a60-417c-88d9-47bfe3835479", catID)
	assert.Equal(t, "4e2d0317-dbc8-44a8-be44-22111b5c3921", subID)

	// Girls tops map onto the shared garment taxonomy.
	catID, subID, err = table.Lookup("GIRLS", "REMERAS_CAMISAS")
	require.NoError(t, err)
	assert.Equal(t, "124af253-3a60-417c-88d9-47bfe3835479", catID)
	assert.Equal(t, "7095e13c-470f-4352-a8f0-542119a42c09", subID)
}

func TestLookup_Misses(t *testing.T) {
	t.Parallel()

	table := Default()

	_, _, err := table.Lookup("UNKNOWN", "GENERAL")
	assert.True(t, errors.Is(err, catalog.ErrNoMapping))

	_, _, err = table.Lookup("WOMAN", "GENERAL")
	assert.True(t, errors.Is(err, catalog.ErrNoMapping))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	doc := `
WOMAN:
  category_id: "cat-1"
  subcategories:
    VESTIDOS: "sub-1"
`
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	table, err := Load(path)
	require.NoError(t, err)

	catID, subID, err := table.Lookup("WOMAN", "VESTIDOS")
	require.NoError(t, err)
	assert.Equal(t, "cat-1", catID)
	assert.Equal(t, "sub-1", subID)
}

func TestParse_RejectsMissingCategoryID(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("WOMAN:\n  subcategories:\n    VESTIDOS: sub-1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category_id")
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
