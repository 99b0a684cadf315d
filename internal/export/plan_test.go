package export

import (
	"path/filepath"
	"testing"
)

func TestPlanObjectServerScope(t *testing.T) {
	plan := PlanObject("/out", "dbhost:1433", "", "", TagLogin, "app_user")
	want := filepath.Join("/out", "dbhost:1433", "Login", "app_user.sql")
	if plan.FullPath != want {
		t.Fatalf("unexpected path: %s", plan.FullPath)
	}
}

func TestPlanObjectServerScopeTimestamp(t *testing.T) {
	plan := PlanObject("/out", "dbhost:1433", "20240101_100000", "", TagServerRole, "ops")
	want := filepath.Join("/out", "dbhost:1433", "20240101_100000", "ServerRole", "ops.sql")
	if plan.FullPath != want {
		t.Fatalf("unexpected path: %s", plan.FullPath)
	}
}

func TestPlanObjectDatabaseScopeNestsTimestampInsideDatabase(t *testing.T) {
	plan := PlanObject("/out", "dbhost:1433", "20240101_100000", "appdb", TagTable, "dbo.Orders")
	want := filepath.Join("/out", "dbhost:1433", "appdb", "20240101_100000", "Table", "dbo.Orders.sql")
	if plan.FullPath != want {
		t.Fatalf("unexpected path: %s", plan.FullPath)
	}
	if plan.Dir != filepath.Dir(plan.FullPath) {
		t.Fatalf("dir %s does not match full path %s", plan.Dir, plan.FullPath)
	}
	if plan.FileName != "dbo.Orders.sql" {
		t.Fatalf("unexpected file name: %s", plan.FileName)
	}
}

func TestPlanObjectSanitizesInstanceAndDatabase(t *testing.T) {
	plan := PlanObject("/out", `dbhost\PROD`, "", `app[db]`, TagView, "dbo.v")
	want := filepath.Join("/out", "dbhost_PROD", "appdb", "View", "dbo.v.sql")
	if plan.FullPath != want {
		t.Fatalf("unexpected path: %s", plan.FullPath)
	}
}
