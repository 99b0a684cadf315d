package export

import (
	"context"
	"errors"
	"testing"
)

func TestCollectDatabaseAllFlagsFalse(t *testing.T) {
	src := newFakeSource()
	src.add("appdb", CategoryTables, TagTable, "dbo.a")

	objects, failures := CollectDatabase(context.Background(), src, "appdb", DatabaseFlags{})
	if len(objects) != 0 {
		t.Fatalf("expected no objects, got %d", len(objects))
	}
	if len(failures) != 0 {
		t.Fatalf("expected no failures, got %d", len(failures))
	}
}

func TestCollectDatabaseOrderFollowsCategories(t *testing.T) {
	src := newFakeSource()
	src.add("appdb", CategoryViews, TagView, "dbo.v1")
	src.add("appdb", CategoryTables, TagTable, "dbo.t1", "dbo.t2")
	src.add("appdb", CategoryFunctions, TagUserDefinedFunction, "dbo.f1")

	objects, failures := CollectDatabase(context.Background(), src, "appdb", AllDatabaseFlags())
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	want := []string{"dbo.t1", "dbo.t2", "dbo.v1", "dbo.f1"}
	if len(objects) != len(want) {
		t.Fatalf("expected %d objects, got %d", len(want), len(objects))
	}
	for i, name := range want {
		if objects[i].Name != name {
			t.Fatalf("position %d: got %s, want %s", i, objects[i].Name, name)
		}
	}
}

func TestCollectDatabaseCategoryFailureIsIsolated(t *testing.T) {
	src := newFakeSource()
	src.add("appdb", CategoryTables, TagTable, "dbo.t1")
	src.add("appdb", CategoryViews, TagView, "dbo.v1")
	src.failCategory("appdb", CategoryTables, errors.New("timeout"))

	objects, failures := CollectDatabase(context.Background(), src, "appdb", AllDatabaseFlags())
	if len(objects) != 1 || objects[0].Name != "dbo.v1" {
		t.Fatalf("expected only the view, got %v", objects)
	}
	if len(failures) != 1 {
		t.Fatalf("expected one failure, got %d", len(failures))
	}
	if failures[0].Database != "appdb" || failures[0].Category != CategoryTables {
		t.Fatalf("failure not attributed: %+v", failures[0])
	}
}

func TestCollectServerSelectedCategoriesOnly(t *testing.T) {
	src := newFakeSource()
	src.addServer(CategoryRoles, TagServerRole, "ops")
	src.addServer(CategoryLogins, TagLogin, "app_user", "report_user")
	src.addServer(CategoryJobs, TagJob, "nightly")

	objects, failures := CollectServer(context.Background(), src, ServerFlags{Logins: true})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(objects) != 2 {
		t.Fatalf("expected 2 logins, got %d", len(objects))
	}
	for _, obj := range objects {
		if obj.Tag != TagLogin {
			t.Fatalf("unexpected tag: %s", obj.Tag)
		}
	}
}

func TestCollectServerMailContributesSeparateEntries(t *testing.T) {
	src := newFakeSource()
	src.server[CategoryMail] = []Object{
		{Name: "DatabaseMail", Tag: TagMail},
		{Name: "alerts-account", Tag: TagMailAccount},
		{Name: "default-profile", Tag: TagMailProfile},
	}

	objects, _ := CollectServer(context.Background(), src, ServerFlags{Mail: true})
	if len(objects) != 3 {
		t.Fatalf("expected 3 mail entries, got %d", len(objects))
	}
	if objects[0].Tag != TagMail || objects[1].Tag != TagMailAccount || objects[2].Tag != TagMailProfile {
		t.Fatalf("unexpected mail entry tags: %v", objects)
	}
}
