package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"scenecraft/internal/logging"
	"scenecraft/internal/types"
)

// Snapshot is the authoritative external representation of the scene,
// exchanged with the WebXR front end.
type Snapshot struct {
	Objects []types.SceneObject `json:"objects"`
}

// LoadFile reads a scene snapshot from disk. A missing or malformed file is
// an error - startup must abort rather than continue with a silently empty
// scene.
func LoadFile(path string) ([]types.SceneObject, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene data %s: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("malformed scene data %s: %w", path, err)
	}
	if snap.Objects == nil {
		return nil, fmt.Errorf("scene data %s has no objects field", path)
	}

	logging.Scene("loaded %d objects from %s", len(snap.Objects), path)
	return snap.Objects, nil
}

// Flush writes the current scene to disk atomically (temp file + rename).
// The engine calls this at end-of-turn checkpoints, not on every mutation.
func (s *Store) Flush(path string) error {
	timer := logging.StartTimer(logging.CategoryScene, "Flush")
	defer timer.Stop()

	snap := Snapshot{Objects: s.Snapshot()}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scene: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create scene directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".scene-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp scene file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write scene data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp scene file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace scene file: %w", err)
	}

	logging.SceneDebug("flushed %d objects to %s", len(snap.Objects), path)
	return nil
}
