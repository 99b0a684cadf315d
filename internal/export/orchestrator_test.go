package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testExporter(src Source, renderer Renderer) *Exporter {
	return New(src, renderer, zerolog.Nop())
}

func mustNotExist(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected %s to not exist", path)
	}
}

func mustContain(t *testing.T, path, fragment string) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !strings.Contains(string(data), fragment) {
		t.Fatalf("%s does not contain %q: %s", path, fragment, data)
	}
}

func TestExportDatabaseObjectsTwoDatabases(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.orders", "dbo.customers")
	src.add("db1", CategoryProcedures, TagStoredProcedure, "dbo.usp_load")
	src.add("db2", CategoryTables, TagTable, "dbo.audit")

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	sel := ParseDatabaseSelector("db1,db2")
	summary, err := exp.ExportDatabaseObjects(context.Background(), sel, AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summary.Databases) != 2 {
		t.Fatalf("expected 2 database targets, got %d", len(summary.Databases))
	}
	if summary.Discovered != 4 || summary.Written != 4 || summary.Skipped != 0 {
		t.Fatalf("unexpected counts: %+v", summary)
	}

	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", "Table", "dbo.orders.sql"), "dbo.orders")
	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", "Table", "dbo.customers.sql"), "dbo.customers")
	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", "StoredProcedure", "dbo.usp_load.sql"), "dbo.usp_load")
	mustContain(t, filepath.Join(root, "dbhost:1433", "db2", "Table", "dbo.audit.sql"), "dbo.audit")

	// db2 has no procedures, so no directory for the category appears.
	mustNotExist(t, filepath.Join(root, "dbhost:1433", "db2", "StoredProcedure"))
}

func TestExportDatabaseObjectsDisabledCategoryWritesNothing(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.orders")
	src.add("db1", CategoryViews, TagView, "dbo.v_orders")

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	flags := AllDatabaseFlags()
	flags.Views = false

	if _, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1"), flags, Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", "Table", "dbo.orders.sql"), "dbo.orders")
	mustNotExist(t, filepath.Join(root, "dbhost:1433", "db1", "View"))
}

func TestExportDatabaseObjectsAllFlagsFalseCreatesNoDirectories(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.orders")

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1"), DatabaseFlags{}, Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Discovered != 0 || summary.Written != 0 {
		t.Fatalf("unexpected counts: %+v", summary)
	}
	mustNotExist(t, filepath.Join(root, "dbhost:1433"))
}

func TestExportDatabaseObjectsCategoryFailureIsIsolated(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.orders")
	src.add("db1", CategoryViews, TagView, "dbo.v_orders")
	src.add("db2", CategoryTables, TagTable, "dbo.audit")
	src.failCategory("db1", CategoryViews, errors.New("deadlock victim"))

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1,db2"), AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(summary.CategoryFailures) != 1 {
		t.Fatalf("expected one category failure, got %v", summary.CategoryFailures)
	}
	failure := summary.CategoryFailures[0]
	if failure.Database != "db1" || failure.Category != CategoryViews {
		t.Fatalf("failure not attributed: %+v", failure)
	}

	// Other categories of db1 and all of db2 still export.
	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", "Table", "dbo.orders.sql"), "dbo.orders")
	mustContain(t, filepath.Join(root, "dbhost:1433", "db2", "Table", "dbo.audit.sql"), "dbo.audit")
	for _, db := range summary.Databases {
		if db.Failed {
			t.Fatalf("no database should be marked failed: %+v", db)
		}
	}
}

func TestExportDatabaseObjectsNonexistentDatabaseYieldsEmptyResults(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.orders")

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1,ghostdb"), AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Databases) != 2 {
		t.Fatalf("expected both names attempted, got %d", len(summary.Databases))
	}
	ghost := summary.Databases[1]
	if ghost.Name != "ghostdb" || ghost.Discovered != 0 || ghost.Failed {
		t.Fatalf("unexpected result for unknown database: %+v", ghost)
	}
	if len(summary.CategoryFailures) == 0 {
		t.Fatalf("expected category failures recorded for unknown database")
	}
}

func TestExportDatabaseObjectsRendererFailureSkipsObject(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.good", "dbo.bad", "dbo.also_good")

	root := t.TempDir()
	renderer := &fakeRenderer{failFor: map[string]error{"dbo.bad": errors.New("encrypted module")}}
	exp := testExporter(src, renderer)
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1"), AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Written != 2 || summary.Skipped != 1 {
		t.Fatalf("unexpected counts: written=%d skipped=%d", summary.Written, summary.Skipped)
	}
	if len(summary.ObjectFailures) != 1 || summary.ObjectFailures[0].Name != "dbo.bad" {
		t.Fatalf("unexpected object failures: %v", summary.ObjectFailures)
	}
	mustNotExist(t, filepath.Join(root, "dbhost:1433", "db1", "Table", "dbo.bad.sql"))
	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", "Table", "dbo.also_good.sql"), "dbo.also_good")
}

func TestExportDatabaseObjectsResolvesAllSentinel(t *testing.T) {
	src := newFakeSource()
	src.databases = []string{"db1"}
	src.add("db1", CategoryTables, TagTable, "dbo.orders")

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("ALL"), AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(summary.Databases) != 1 || summary.Databases[0].Name != "db1" {
		t.Fatalf("unexpected targets: %+v", summary.Databases)
	}
}

func TestExportDatabaseObjectsAllSentinelResolutionFailureIsFatal(t *testing.T) {
	src := newFakeSource()
	src.databaseErr = errors.New("connection reset")

	exp := testExporter(src, &fakeRenderer{})
	_, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("ALL"), AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: t.TempDir(),
	})
	if err == nil {
		t.Fatalf("expected resolution failure to be fatal")
	}
}

func TestExportDatabaseObjectsTimestampComputedOncePerRun(t *testing.T) {
	src := newFakeSource()
	src.add("db1", CategoryTables, TagTable, "dbo.a")
	src.add("db2", CategoryTables, TagTable, "dbo.b")

	// A clock that jumps one hour per reading: if the timestamp were
	// recomputed per database, the two trees would diverge.
	calls := 0
	clock := func() time.Time {
		calls++
		return time.Date(2024, 1, 1, 10+calls, 0, 0, 0, time.UTC)
	}

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1,db2"), AllDatabaseFlags(), Options{
		Instance:     "dbhost:1433",
		OutputRoot:   root,
		UseTimestamp: true,
		Now:          clock,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Timestamp == "" {
		t.Fatalf("expected a run timestamp")
	}
	mustContain(t, filepath.Join(root, "dbhost:1433", "db1", summary.Timestamp, "Table", "dbo.a.sql"), "dbo.a")
	mustContain(t, filepath.Join(root, "dbhost:1433", "db2", summary.Timestamp, "Table", "dbo.b.sql"), "dbo.b")
}

func TestExportServerObjectsLoginsOnly(t *testing.T) {
	src := newFakeSource()
	src.addServer(CategoryLogins, TagLogin, "app_user", "report_user")
	src.addServer(CategoryRoles, TagServerRole, "ops")
	src.addServer(CategoryJobs, TagJob, "nightly")

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportServerObjects(context.Background(), ServerFlags{Logins: true}, Options{
		Instance:     "dbhost:1433",
		OutputRoot:   root,
		UseTimestamp: true,
		Now:          func() time.Time { return time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Discovered != 2 || summary.Written != 2 {
		t.Fatalf("unexpected counts: %+v", summary)
	}

	loginDir := filepath.Join(root, "dbhost:1433", "20240101_100000", "Login")
	mustContain(t, filepath.Join(loginDir, "app_user.sql"), "app_user")
	mustContain(t, filepath.Join(loginDir, "report_user.sql"), "report_user")
	mustNotExist(t, filepath.Join(root, "dbhost:1433", "20240101_100000", "ServerRole"))
	mustNotExist(t, filepath.Join(root, "dbhost:1433", "20240101_100000", "Job"))
}

func TestExportCollisionLastWriteWins(t *testing.T) {
	src := newFakeSource()
	// Both names sanitize to dbo.a_b within the same type directory.
	src.add("db1", CategoryTables, TagTable, `dbo.a\b`, `dbo.[a\b]`)

	root := t.TempDir()
	exp := testExporter(src, &fakeRenderer{})
	summary, err := exp.ExportDatabaseObjects(context.Background(), ParseDatabaseSelector("db1"), AllDatabaseFlags(), Options{
		Instance:   "dbhost:1433",
		OutputRoot: root,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Written != 2 {
		t.Fatalf("both objects should report written, got %d", summary.Written)
	}

	dir := filepath.Join(root, "dbhost:1433", "db1", "Table")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file after collision, got %d", len(entries))
	}
	// The later object in collection order wins.
	mustContain(t, filepath.Join(dir, "dbo.a_b.sql"), `dbo.[a\b]`)
}

func TestParseDatabaseSelector(t *testing.T) {
	sel := ParseDatabaseSelector(" db1 , db2,db1,, db3 ")
	if sel.All {
		t.Fatalf("explicit list must not be the ALL sentinel")
	}
	want := []string{"db1", "db2", "db3"}
	if len(sel.Names) != len(want) {
		t.Fatalf("unexpected names: %v", sel.Names)
	}
	for i, name := range want {
		if sel.Names[i] != name {
			t.Fatalf("position %d: got %s, want %s", i, sel.Names[i], name)
		}
	}

	if !ParseDatabaseSelector("all").All {
		t.Fatalf("lowercase all should select every user database")
	}
}
