package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindWebDir_FindsBundledUI(t *testing.T) {
	dir := findWebDir()
	if dir == "" {
		t.Fatal("findWebDir() found no web directory")
	}

	for _, name := range []string{"index.html", "app.js"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("web UI is missing %s: %v", name, err)
		}
	}
}
