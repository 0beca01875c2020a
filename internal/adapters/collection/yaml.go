// Package collection lee la colección de cartas desde un fichero YAML.
package collection

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/alejandrodnm/buylist/internal/domain"
)

type file struct {
	Cards []domain.CollectionCard `yaml:"cards"`
}

// YAMLReader implementa ports.CollectionReader. Relee el fichero en cada
// llamada para que las ediciones externas se vean en el siguiente ciclo.
type YAMLReader struct {
	path string
}

// NewYAMLReader crea el lector.
func NewYAMLReader(path string) *YAMLReader {
	return &YAMLReader{path: path}
}

// LoadCollection lee, valida y normaliza la colección. Las filas con la
// misma identidad se fusionan sumando cantidades.
func (r *YAMLReader) LoadCollection(ctx context.Context) ([]domain.CollectionCard, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("collection.LoadCollection: read %q: %w", r.path, err)
	}
	return Parse(data)
}

// Parse interpreta el YAML de una colección.
func Parse(data []byte) ([]domain.CollectionCard, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("collection.Parse: %w", err)
	}

	out := make([]domain.CollectionCard, 0, len(f.Cards))
	index := make(map[string]int, len(f.Cards))
	for i, c := range f.Cards {
		if c.Condition == "" {
			c.Condition = domain.ConditionNM
		}
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("collection.Parse: card %d: %w", i+1, err)
		}
		key := c.Card.Key()
		if j, ok := index[key]; ok {
			out[j].Quantity += c.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, c)
	}
	return out, nil
}
