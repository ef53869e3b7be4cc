package collab

import (
	"fmt"
	"os"
	"strings"

	"scenecraft/internal/types"

	"gopkg.in/yaml.v3"
)

// CatalogEntry describes one placeable asset. The catalog is scanned from
// the glTF asset library offline; at runtime it is a plain YAML file.
type CatalogEntry struct {
	Name        string  `yaml:"name"`
	Category    string  `yaml:"category"`
	Subcategory string  `yaml:"subcategory,omitempty"`
	ModelPath   string  `yaml:"model_path"`
	YOffset     float64 `yaml:"y_offset,omitempty"`
	Scale       *struct {
		X float64 `yaml:"x"`
		Y float64 `yaml:"y"`
		Z float64 `yaml:"z"`
	} `yaml:"scale,omitempty"`
	BoundingBox *struct {
		Min [3]float64 `yaml:"min"`
		Max [3]float64 `yaml:"max"`
	} `yaml:"bounding_box,omitempty"`
}

// Catalog is the set of assets the resolver can instantiate.
type Catalog struct {
	Entries []CatalogEntry `yaml:"assets"`
}

// LoadCatalog reads the asset catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("malformed catalog %s: %w", path, err)
	}
	return &cat, nil
}

// Find returns the first entry whose name matches the query,
// case-insensitively, preferring exact matches over substring matches.
func (c *Catalog) Find(query string) (CatalogEntry, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return CatalogEntry{}, false
	}
	for _, e := range c.Entries {
		if strings.ToLower(e.Name) == q {
			return e, true
		}
	}
	for _, e := range c.Entries {
		if strings.Contains(strings.ToLower(e.Name), q) {
			return e, true
		}
	}
	return CatalogEntry{}, false
}

// Instantiate builds a pending scene object from a catalog entry.
// No id, position, or rotation: those are assigned later in the turn.
func (e CatalogEntry) Instantiate() types.SceneObject {
	obj := types.SceneObject{
		Name:        e.Name,
		Category:    e.Category,
		Subcategory: e.Subcategory,
		ModelPath:   e.ModelPath,
		Scale:       types.Vector3{X: 1, Y: 1, Z: 1},
		YOffset:     e.YOffset,
		Properties:  map[string]interface{}{"movable": true},
	}
	if e.Scale != nil {
		obj.Scale = types.Vector3{X: e.Scale.X, Y: e.Scale.Y, Z: e.Scale.Z}
	}
	if e.BoundingBox != nil {
		obj.BoundingBox = &types.BoundingBox{
			Min: types.Vector3{X: e.BoundingBox.Min[0], Y: e.BoundingBox.Min[1], Z: e.BoundingBox.Min[2]},
			Max: types.Vector3{X: e.BoundingBox.Max[0], Y: e.BoundingBox.Max[1], Z: e.BoundingBox.Max[2]},
		}
	}
	return obj
}
