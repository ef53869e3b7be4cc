package scene

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scenecraft/internal/types"

	"go.uber.org/goleak"
)

func writeScene(t *testing.T, path string, objects ...types.SceneObject) {
	t.Helper()
	s := NewStore()
	for _, obj := range objects {
		if _, err := s.Add(obj); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Flush(path); err != nil {
		t.Fatal(err)
	}
}

func waitForCount(t *testing.T, s *Store, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Count() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("store count = %d, want %d", s.Count(), want)
}

func TestWatcherReloadsExternalEdit(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sceneData.json")
	writeScene(t, path, chair("chair_01", 0, -1, 0))

	objects, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	store, err := NewStoreFromObjects(objects)
	if err != nil {
		t.Fatal(err)
	}

	reloaded := make(chan struct{}, 8)
	w, err := NewWatcher(store, path, func() { reloaded <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// Simulate the front end rewriting the file.
	writeScene(t, path, chair("chair_01", 0, -1, 0), chair("sofa_01", 2, -1, 0))

	waitForCount(t, store, 2)
	select {
	case <-reloaded:
	case <-time.After(5 * time.Second):
		t.Fatal("onReload callback never fired")
	}
}

func TestWatcherSuppressSkipsOwnFlush(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sceneData.json")
	writeScene(t, path, chair("chair_01", 0, -1, 0))

	store := NewStore()
	reloaded := make(chan struct{}, 8)
	w, err := NewWatcher(store, path, func() { reloaded <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	w.Suppress(3 * time.Second)
	writeScene(t, path, chair("chair_01", 0, -1, 0))

	select {
	case <-reloaded:
		t.Fatal("suppressed write still triggered a reload")
	case <-time.After(time.Second):
	}
	if store.Count() != 0 {
		t.Errorf("store count = %d, suppressed reload should not apply", store.Count())
	}
}

func TestWatcherIgnoresMalformedWrite(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "sceneData.json")
	writeScene(t, path, chair("chair_01", 0, -1, 0))

	objects, _ := LoadFile(path)
	store, _ := NewStoreFromObjects(objects)

	w, err := NewWatcher(store, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	// A partial write shows up as malformed JSON; the scene must survive it.
	if err := os.WriteFile(path, []byte(`{"objects": [{"id": "chai`), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(time.Second)
	if store.Count() != 1 {
		t.Errorf("store count = %d, want 1 (malformed write must not clear the scene)", store.Count())
	}
}
