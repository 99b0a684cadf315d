package export

import (
	"context"
	"strings"
)

// TypeTag classifies an exported object and names its directory under the
// export root. The set is closed; the collector assigns a tag when it appends
// objects from a category, so downstream stages never inspect object internals.
type TypeTag string

const (
	TagTable               TypeTag = "Table"
	TagView                TypeTag = "View"
	TagStoredProcedure     TypeTag = "StoredProcedure"
	TagUserDefinedFunction TypeTag = "UserDefinedFunction"
	TagServerRole          TypeTag = "ServerRole"
	TagLogin               TypeTag = "Login"
	TagLinkedServer        TypeTag = "LinkedServer"
	TagServerTrigger       TypeTag = "ServerTrigger"
	TagMail                TypeTag = "Mail"
	TagMailAccount         TypeTag = "MailAccount"
	TagMailProfile         TypeTag = "MailProfile"
	TagOperator            TypeTag = "Operator"
	TagJob                 TypeTag = "Job"
	TagAlert               TypeTag = "Alert"
)

// Object is one exportable catalog object: a display name, the tag assigned at
// collection time, the owning database (empty for server-level objects), and an
// opaque handle the renderer resolves back into catalog state.
type Object struct {
	Name     string
	Tag      TypeTag
	Database string
	Ref      any
}

// Category names one enumerable group of objects for failure reporting.
type Category string

const (
	CategoryTables        Category = "tables"
	CategoryViews         Category = "views"
	CategoryProcedures    Category = "procedures"
	CategoryFunctions     Category = "functions"
	CategoryRoles         Category = "roles"
	CategoryLogins        Category = "logins"
	CategoryLinkedServers Category = "linked-servers"
	CategoryTriggers      Category = "triggers"
	CategoryMail          Category = "mail"
	CategoryJobs          Category = "jobs"
)

// Source is the catalog the collector enumerates. Implementations return only
// non-system objects; built-in roles, service accounts and system databases
// never appear regardless of inclusion flags.
type Source interface {
	UserDatabases(ctx context.Context) ([]string, error)

	Tables(ctx context.Context, database string) ([]Object, error)
	Views(ctx context.Context, database string) ([]Object, error)
	Procedures(ctx context.Context, database string) ([]Object, error)
	Functions(ctx context.Context, database string) ([]Object, error)

	ServerRoles(ctx context.Context) ([]Object, error)
	Logins(ctx context.Context) ([]Object, error)
	LinkedServers(ctx context.Context) ([]Object, error)
	ServerTriggers(ctx context.Context) ([]Object, error)
	MailObjects(ctx context.Context) ([]Object, error)
	JobObjects(ctx context.Context) ([]Object, error)
}

// Renderer turns one object into script text. Rendering is supplied by the
// catalog layer; the pipeline only moves the result onto disk.
type Renderer interface {
	Render(ctx context.Context, obj Object, opts ScriptOptions) (string, error)
}

// DatabaseFlags selects object categories for the database-scoped export.
type DatabaseFlags struct {
	Tables     bool
	Views      bool
	Procedures bool
	Functions  bool
}

// AllDatabaseFlags enables every database-scoped category.
func AllDatabaseFlags() DatabaseFlags {
	return DatabaseFlags{Tables: true, Views: true, Procedures: true, Functions: true}
}

// ServerFlags selects object categories for the server-scoped export. Jobs
// covers the whole job subsystem (operators, jobs, alerts); Mail covers the
// mail root object plus its accounts and profiles.
type ServerFlags struct {
	Roles         bool
	Logins        bool
	LinkedServers bool
	Triggers      bool
	Mail          bool
	Jobs          bool
}

// AllServerFlags enables every server-scoped category.
func AllServerFlags() ServerFlags {
	return ServerFlags{Roles: true, Logins: true, LinkedServers: true, Triggers: true, Mail: true, Jobs: true}
}

// DatabaseSelector is either the "all user databases" sentinel or an explicit
// ordered list of database names.
type DatabaseSelector struct {
	All   bool
	Names []string
}

// ParseDatabaseSelector builds a selector from caller input: the literal "ALL"
// (any case) selects every user database; otherwise the value is a
// comma-separated list, trimmed and deduplicated, order preserved. Names are
// used verbatim later even if they do not exist on the server.
func ParseDatabaseSelector(raw string) DatabaseSelector {
	if strings.EqualFold(strings.TrimSpace(raw), "ALL") {
		return DatabaseSelector{All: true}
	}
	seen := map[string]struct{}{}
	var names []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return DatabaseSelector{Names: names}
}
