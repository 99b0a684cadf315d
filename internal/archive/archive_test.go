package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rowjay/mssql-admin-utility/internal/config"
	"github.com/rowjay/mssql-admin-utility/internal/storage"
)

func TestExtension(t *testing.T) {
	cases := []struct {
		compression string
		encrypted   bool
		want        string
	}{
		{TypeNone, false, "tar"},
		{TypeGzip, false, "tar.gz"},
		{TypeZstd, false, "tar.zst"},
		{TypeZstd, true, "tar.zst.enc"},
		{TypeNone, true, "tar.enc"},
	}
	for _, tc := range cases {
		if got := extension(tc.compression, tc.encrypted); got != tc.want {
			t.Errorf("extension(%s, %v) = %s, want %s", tc.compression, tc.encrypted, got, tc.want)
		}
	}
}

func TestWrapWriterRejectsUnknownKind(t *testing.T) {
	if _, err := wrapWriter("lz4", io.Discard); err == nil {
		t.Fatalf("expected error for unsupported compression")
	}
}

func TestWrapWriterGzipRoundtrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := wrapWriter(TypeGzip, &buf)
	if err != nil {
		t.Fatalf("wrap: %v", err)
	}
	if _, err := w.Write([]byte("CREATE TABLE [dbo].[t] ([id] [int] NOT NULL);")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(out), "CREATE TABLE") {
		t.Fatalf("roundtrip lost content: %q", out)
	}
}

func writeExportTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"dbhost_1433/db1/Table/dbo.orders.sql": "CREATE TABLE [dbo].[orders] ([id] [int] NOT NULL);\nGO\n",
		"dbhost_1433/db1/View/dbo.v_orders.sql": "CREATE VIEW dbo.v_orders AS SELECT id FROM dbo.orders;\n",
	}
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return root
}

func TestPackUncompressedToLocalStore(t *testing.T) {
	tree := writeExportTree(t)
	store := storage.NewLocal(t.TempDir())
	packer := New(config.ArchiveConfig{Compression: TypeNone, Prefix: "archives"}, store, zerolog.Nop())

	result, err := packer.Pack(context.Background(), tree, `dbhost\PROD`, "database")
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if !strings.HasSuffix(result.Key, ".tar") {
		t.Fatalf("unexpected key: %s", result.Key)
	}
	if result.Manifest.FileCount != 2 {
		t.Fatalf("expected 2 files counted, got %d", result.Manifest.FileCount)
	}
	if result.Manifest.Instance != `dbhost\PROD` || result.Manifest.Scope != "database" {
		t.Fatalf("manifest misattributed: %+v", result.Manifest)
	}

	// The tar object holds both scripts under their relative paths.
	object, err := store.Get(context.Background(), result.Key)
	if err != nil {
		t.Fatalf("get archive: %v", err)
	}
	defer object.Close()

	names := map[string]bool{}
	tr := tar.NewReader(object)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read tar: %v", err)
		}
		names[header.Name] = true
	}
	if !names["dbhost_1433/db1/Table/dbo.orders.sql"] || !names["dbhost_1433/db1/View/dbo.v_orders.sql"] {
		t.Fatalf("tar missing entries: %v", names)
	}

	// A manifest object sits beside the archive.
	manifestReader, err := store.Get(context.Background(), storage.ManifestKey(result.Key))
	if err != nil {
		t.Fatalf("get manifest: %v", err)
	}
	defer manifestReader.Close()
	var manifest storage.Manifest
	if err := json.NewDecoder(manifestReader).Decode(&manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest.Key != result.Key {
		t.Fatalf("manifest key mismatch: %s vs %s", manifest.Key, result.Key)
	}
}

func TestPackRejectsMissingSource(t *testing.T) {
	store := storage.NewLocal(t.TempDir())
	packer := New(config.ArchiveConfig{Compression: TypeNone}, store, zerolog.Nop())
	if _, err := packer.Pack(context.Background(), filepath.Join(t.TempDir(), "missing"), "dbhost", "server"); err == nil {
		t.Fatalf("expected error for missing source directory")
	}
}

func TestPackRequiresKeyWhenEncrypting(t *testing.T) {
	tree := writeExportTree(t)
	store := storage.NewLocal(t.TempDir())
	packer := New(config.ArchiveConfig{Compression: TypeZstd, Encryption: true}, store, zerolog.Nop())
	if _, err := packer.Pack(context.Background(), tree, "dbhost", "server"); err == nil {
		t.Fatalf("expected error when encryption key is missing")
	}
}

func TestListFiltersManifests(t *testing.T) {
	tree := writeExportTree(t)
	store := storage.NewLocal(t.TempDir())
	packer := New(config.ArchiveConfig{Compression: TypeGzip, Prefix: "archives"}, store, zerolog.Nop())

	if _, err := packer.Pack(context.Background(), tree, "dbhost", "database"); err != nil {
		t.Fatalf("pack: %v", err)
	}

	objects, err := packer.List(context.Background(), "dbhost")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(objects) != 1 {
		t.Fatalf("expected only the archive object, got %d", len(objects))
	}
	if strings.HasSuffix(objects[0].Key, storage.ManifestSuffix) {
		t.Fatalf("manifest leaked into listing: %s", objects[0].Key)
	}
}
