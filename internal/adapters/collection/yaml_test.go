package collection_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/buylist/internal/adapters/collection"
	"github.com/alejandrodnm/buylist/internal/domain"
)

const sample = `
cards:
  - name: Lightning Bolt
    set: Magic 2010
    quantity: 3
  - name: Lightning Bolt
    set: Magic 2010
    foil: foil
    quantity: 1
  - name: Lightning Bolt
    set: Magic 2010
    quantity: 1
  - name: Counterspell
    set: Alpha
    quantity: 1
    condition: LP
`

func TestYAMLReader_LoadCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collection.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	cards, err := collection.NewYAMLReader(path).LoadCollection(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 3, "las filas repetidas se fusionan")

	assert.Equal(t, "Lightning Bolt", cards[0].Card.Name)
	assert.Equal(t, 4, cards[0].Quantity)
	assert.Equal(t, domain.ConditionNM, cards[0].Condition)
	assert.True(t, cards[1].Card.IsFoil())
	assert.Equal(t, domain.ConditionLP, cards[2].Condition)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing set", "cards:\n  - name: Bolt\n    quantity: 1\n"},
		{"zero quantity", "cards:\n  - name: Bolt\n    set: M10\n    quantity: 0\n"},
		{"bad foil", "cards:\n  - name: Bolt\n    set: M10\n    foil: shiny\n    quantity: 1\n"},
		{"malformed", "cards: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := collection.Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestParse_Empty(t *testing.T) {
	cards, err := collection.Parse([]byte("cards: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cards)
}

func TestYAMLReader_MissingFile(t *testing.T) {
	_, err := collection.NewYAMLReader(filepath.Join(t.TempDir(), "nope.yaml")).LoadCollection(context.Background())
	assert.Error(t, err)
}
