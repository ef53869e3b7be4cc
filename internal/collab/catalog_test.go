package collab

import (
	"os"
	"path/filepath"
	"testing"
)

const testCatalogYAML = `assets:
  - name: chair
    category: furniture
    subcategory: seating
    model_path: models/furniture/chair.glb
    y_offset: 0.02
    bounding_box:
      min: [-0.25, 0.0, -0.25]
      max: [0.25, 0.9, 0.25]
  - name: office chair
    category: furniture
    subcategory: seating
    model_path: models/furniture/office_chair.glb
  - name: floor lamp
    category: lighting
    model_path: models/lighting/floor_lamp.glb
    scale:
      x: 1.2
      y: 1.2
      z: 1.2
`

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalogYAML), 0644); err != nil {
		t.Fatal(err)
	}
	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestCatalogFind(t *testing.T) {
	cat := loadTestCatalog(t)

	// Exact match wins over substring: "chair" must not return "office chair".
	entry, ok := cat.Find("chair")
	if !ok || entry.Name != "chair" {
		t.Errorf("Find(chair) = %+v, %v", entry, ok)
	}

	entry, ok = cat.Find("OFFICE CHAIR")
	if !ok || entry.Name != "office chair" {
		t.Errorf("case-insensitive Find = %+v, %v", entry, ok)
	}

	// Substring fallback.
	entry, ok = cat.Find("lamp")
	if !ok || entry.Name != "floor lamp" {
		t.Errorf("substring Find = %+v, %v", entry, ok)
	}

	if _, ok := cat.Find("unicorn"); ok {
		t.Error("unknown asset should not resolve")
	}
	if _, ok := cat.Find(""); ok {
		t.Error("blank query should not resolve")
	}
}

func TestInstantiate(t *testing.T) {
	cat := loadTestCatalog(t)

	entry, _ := cat.Find("chair")
	obj := entry.Instantiate()

	if obj.ID != "" || obj.Position != nil || obj.Rotation != nil {
		t.Errorf("instantiated object must be pending: %+v", obj)
	}
	if obj.Placed() {
		t.Error("instantiated object reports placed")
	}
	if obj.Name != "chair" || obj.Category != "furniture" || obj.ModelPath != "models/furniture/chair.glb" {
		t.Errorf("metadata not carried: %+v", obj)
	}
	if obj.YOffset != 0.02 {
		t.Errorf("yOffset = %v", obj.YOffset)
	}
	if obj.BoundingBox == nil || obj.BoundingBox.Max.Y != 0.9 {
		t.Errorf("bounding box = %+v", obj.BoundingBox)
	}
	if obj.Scale.X != 1 {
		t.Errorf("default scale = %+v", obj.Scale)
	}
	if !obj.Movable() {
		t.Error("instantiated object should be movable")
	}

	lamp, _ := cat.Find("floor lamp")
	if got := lamp.Instantiate(); got.Scale.X != 1.2 {
		t.Errorf("explicit scale = %+v", got.Scale)
	}
}

func TestLoadCatalogErrors(t *testing.T) {
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing catalog should error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("assets: [not: valid: yaml: {"), 0644)
	if _, err := LoadCatalog(path); err == nil {
		t.Fatal("malformed catalog should error")
	}
}
