package export

import (
	"context"
	"fmt"
)

// fakeSource serves canned objects per category and supports failure
// injection, standing in for the live catalog.
type fakeSource struct {
	databases   []string
	databaseErr error

	perDB    map[string]map[Category][]Object
	server   map[Category][]Object
	failures map[string]error // key: string(category) or string(category)+"/"+database
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		perDB:    map[string]map[Category][]Object{},
		server:   map[Category][]Object{},
		failures: map[string]error{},
	}
}

func (f *fakeSource) add(database string, cat Category, tag TypeTag, names ...string) {
	if f.perDB[database] == nil {
		f.perDB[database] = map[Category][]Object{}
	}
	for _, name := range names {
		f.perDB[database][cat] = append(f.perDB[database][cat], Object{Name: name, Tag: tag, Database: database})
	}
}

func (f *fakeSource) addServer(cat Category, tag TypeTag, names ...string) {
	for _, name := range names {
		f.server[cat] = append(f.server[cat], Object{Name: name, Tag: tag})
	}
}

func (f *fakeSource) failCategory(database string, cat Category, err error) {
	if database == "" {
		f.failures[string(cat)] = err
		return
	}
	f.failures[string(cat)+"/"+database] = err
}

func (f *fakeSource) dbCategory(database string, cat Category) ([]Object, error) {
	if err, ok := f.failures[string(cat)+"/"+database]; ok {
		return nil, err
	}
	if _, known := f.perDB[database]; !known {
		return nil, fmt.Errorf("database %s does not exist", database)
	}
	return f.perDB[database][cat], nil
}

func (f *fakeSource) serverCategory(cat Category) ([]Object, error) {
	if err, ok := f.failures[string(cat)]; ok {
		return nil, err
	}
	return f.server[cat], nil
}

func (f *fakeSource) UserDatabases(context.Context) ([]string, error) {
	return f.databases, f.databaseErr
}

func (f *fakeSource) Tables(_ context.Context, db string) ([]Object, error) {
	return f.dbCategory(db, CategoryTables)
}

func (f *fakeSource) Views(_ context.Context, db string) ([]Object, error) {
	return f.dbCategory(db, CategoryViews)
}

func (f *fakeSource) Procedures(_ context.Context, db string) ([]Object, error) {
	return f.dbCategory(db, CategoryProcedures)
}

func (f *fakeSource) Functions(_ context.Context, db string) ([]Object, error) {
	return f.dbCategory(db, CategoryFunctions)
}

func (f *fakeSource) ServerRoles(context.Context) ([]Object, error) {
	return f.serverCategory(CategoryRoles)
}

func (f *fakeSource) Logins(context.Context) ([]Object, error) {
	return f.serverCategory(CategoryLogins)
}

func (f *fakeSource) LinkedServers(context.Context) ([]Object, error) {
	return f.serverCategory(CategoryLinkedServers)
}

func (f *fakeSource) ServerTriggers(context.Context) ([]Object, error) {
	return f.serverCategory(CategoryTriggers)
}

func (f *fakeSource) MailObjects(context.Context) ([]Object, error) {
	return f.serverCategory(CategoryMail)
}

func (f *fakeSource) JobObjects(context.Context) ([]Object, error) {
	return f.serverCategory(CategoryJobs)
}

// fakeRenderer emits one line per object and can fail on demand.
type fakeRenderer struct {
	failFor map[string]error
}

func (r *fakeRenderer) Render(_ context.Context, obj Object, _ ScriptOptions) (string, error) {
	if r.failFor != nil {
		if err, ok := r.failFor[obj.Name]; ok {
			return "", err
		}
	}
	return fmt.Sprintf("-- %s %s\n", obj.Tag, obj.Name), nil
}
