package export

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDirMakerIdempotent(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "inst", "Table")

	d := newDirMaker()
	if err := d.ensure(target); err != nil {
		t.Fatalf("first ensure: %v", err)
	}
	if err := d.ensure(target); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("%s is not a directory", target)
	}
}

func TestDirMakerAcceptsPreexistingDirectory(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "existing")
	if err := os.MkdirAll(target, 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	d := newDirMaker()
	if err := d.ensure(target); err != nil {
		t.Fatalf("ensure on existing directory: %v", err)
	}
}
