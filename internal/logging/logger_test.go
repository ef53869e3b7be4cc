package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// readCategoryLog returns the contents of the log file for a category, or ""
// if none was written.
func readCategoryLog(t *testing.T, ws string, category Category) string {
	t.Helper()
	dir := filepath.Join(ws, ".scenecraft", "logs")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read log dir: %v", err)
	}
	for _, e := range entries {
		if !strings.Contains(e.Name(), string(category)) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			t.Fatal(err)
		}
		return string(data)
	}
	return ""
}

func TestInitializeDebugModeWritesCategoryFiles(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{DebugMode: true, Level: "debug"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(CloseAll)

	if !IsDebugMode() {
		t.Fatal("debug mode should be on")
	}
	Workflow("engine started turn %d", 7)
	CloseAll()

	got := readCategoryLog(t, ws, CategoryWorkflow)
	if got == "" {
		t.Fatal("no workflow log file written")
	}
	if !strings.Contains(got, "engine started turn 7") {
		t.Errorf("workflow log missing entry: %s", got)
	}
}

func TestInitializeProductionModeIsSilent(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(CloseAll)

	if IsDebugMode() {
		t.Fatal("debug mode should be off by default")
	}
	Workflow("dropped on the floor")

	if _, err := os.Stat(filepath.Join(ws, ".scenecraft")); !os.IsNotExist(err) {
		t.Errorf("production mode must not create a log directory (stat err = %v)", err)
	}
}

func TestCategoryToggle(t *testing.T) {
	ws := t.TempDir()
	err := Initialize(ws, Options{
		DebugMode:  true,
		Level:      "debug",
		Categories: map[string]bool{"scene": false},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(CloseAll)

	if IsCategoryEnabled(CategoryScene) {
		t.Error("scene category should be disabled")
	}
	if !IsCategoryEnabled(CategoryWorkflow) {
		t.Error("unlisted categories default to enabled")
	}
}

func TestLevelFiltering(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws, Options{DebugMode: true, Level: "warn"}); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(CloseAll)

	l := Get(CategoryVerify)
	l.Debug("quiet %d", 1)
	l.Info("quiet %d", 2)
	l.Warn("loud %d", 3)
	CloseAll()

	got := readCategoryLog(t, ws, CategoryVerify)
	if strings.Contains(got, "quiet") {
		t.Errorf("level filter leaked: %s", got)
	}
	if !strings.Contains(got, "loud 3") {
		t.Errorf("warn entry missing: %s", got)
	}
}
