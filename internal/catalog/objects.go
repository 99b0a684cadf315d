package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rowjay/mssql-admin-utility/internal/export"
)

// ref is the opaque handle stored on collected objects. The scripter resolves
// it back into catalog state; the pipeline never looks inside.
type ref struct {
	database string
	schema   string
	name     string
	objectID int64
	kind     string
}

// systemDatabases are excluded from the "all user databases" selector by name.
var systemDatabases = []string{"master", "model", "msdb", "tempdb", "distribution"}

// IsSystemDatabase reports whether name matches a system database.
func IsSystemDatabase(name string) bool {
	for _, sys := range systemDatabases {
		if strings.EqualFold(name, sys) {
			return true
		}
	}
	return false
}

// UserDatabases lists online user databases, system databases excluded.
func (c *Client) UserDatabases(ctx context.Context) ([]string, error) {
	names := make([]string, len(systemDatabases))
	for i, sys := range systemDatabases {
		names[i] = quoteLiteral(sys)
	}
	query := fmt.Sprintf(`SELECT name FROM sys.databases
		WHERE name NOT IN (%s)
		AND state_desc = 'ONLINE'
		ORDER BY name`, strings.Join(names, ", "))
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	return scanStrings(rows)
}

// schemaObjects runs a two-column (schema, name, object_id) query inside one
// database and tags the results.
func (c *Client) schemaObjects(ctx context.Context, database, query string, tag export.TypeTag, kind string) ([]export.Object, error) {
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf(query, bracket(database), bracket(database)))
	if err != nil {
		return nil, fmt.Errorf("enumerate %s in %s: %w", tag, database, err)
	}
	defer rows.Close()

	var objects []export.Object
	for rows.Next() {
		var schema, name string
		var objectID int64
		if err := rows.Scan(&schema, &name, &objectID); err != nil {
			return nil, err
		}
		objects = append(objects, export.Object{
			Name:     schema + "." + name,
			Tag:      tag,
			Database: database,
			Ref:      ref{database: database, schema: schema, name: name, objectID: objectID, kind: kind},
		})
	}
	return objects, rows.Err()
}

// Tables lists non-system user tables of one database.
func (c *Client) Tables(ctx context.Context, database string) ([]export.Object, error) {
	query := `SELECT s.name, t.name, t.object_id
		FROM %s.sys.tables t
		JOIN %s.sys.schemas s ON s.schema_id = t.schema_id
		WHERE t.is_ms_shipped = 0
		ORDER BY s.name, t.name`
	return c.schemaObjects(ctx, database, query, export.TagTable, "table")
}

// Views lists non-system views of one database.
func (c *Client) Views(ctx context.Context, database string) ([]export.Object, error) {
	query := `SELECT s.name, v.name, v.object_id
		FROM %s.sys.views v
		JOIN %s.sys.schemas s ON s.schema_id = v.schema_id
		WHERE v.is_ms_shipped = 0
		ORDER BY s.name, v.name`
	return c.schemaObjects(ctx, database, query, export.TagView, "module")
}

// Procedures lists non-system stored procedures of one database.
func (c *Client) Procedures(ctx context.Context, database string) ([]export.Object, error) {
	query := `SELECT s.name, p.name, p.object_id
		FROM %s.sys.procedures p
		JOIN %s.sys.schemas s ON s.schema_id = p.schema_id
		WHERE p.is_ms_shipped = 0
		ORDER BY s.name, p.name`
	return c.schemaObjects(ctx, database, query, export.TagStoredProcedure, "module")
}

// Functions lists scalar, inline and table-valued user functions of one database.
func (c *Client) Functions(ctx context.Context, database string) ([]export.Object, error) {
	query := `SELECT s.name, o.name, o.object_id
		FROM %s.sys.objects o
		JOIN %s.sys.schemas s ON s.schema_id = o.schema_id
		WHERE o.type IN ('FN', 'IF', 'TF') AND o.is_ms_shipped = 0
		ORDER BY s.name, o.name`
	return c.schemaObjects(ctx, database, query, export.TagUserDefinedFunction, "module")
}

// serverNames runs a single-column name query and tags the results.
func (c *Client) serverNames(ctx context.Context, query string, tag export.TypeTag, kind string, args ...any) ([]export.Object, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", tag, err)
	}
	defer rows.Close()

	var objects []export.Object
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		objects = append(objects, export.Object{
			Name: name,
			Tag:  tag,
			Ref:  ref{name: name, kind: kind},
		})
	}
	return objects, rows.Err()
}

// ServerRoles lists user-defined server roles. Fixed built-in roles and the
// public role never appear.
func (c *Client) ServerRoles(ctx context.Context) ([]export.Object, error) {
	query := `SELECT name FROM sys.server_principals
		WHERE type = 'R' AND is_fixed_role = 0 AND name <> 'public'
		ORDER BY name`
	return c.serverNames(ctx, query, export.TagServerRole, "role")
}

// Logins lists SQL and Windows logins, excluding certificate-backed system
// accounts (##...##), machine/service accounts and the sa login.
func (c *Client) Logins(ctx context.Context) ([]export.Object, error) {
	query := `SELECT name FROM sys.server_principals
		WHERE type IN ('S', 'U', 'G')
		AND name NOT LIKE '##%'
		AND name NOT LIKE 'NT %'
		AND name <> 'sa'
		ORDER BY name`
	return c.serverNames(ctx, query, export.TagLogin, "login")
}

// LinkedServers lists configured linked servers.
func (c *Client) LinkedServers(ctx context.Context) ([]export.Object, error) {
	query := `SELECT name FROM sys.servers WHERE is_linked = 1 ORDER BY name`
	return c.serverNames(ctx, query, export.TagLinkedServer, "linkedserver")
}

// ServerTriggers lists server-level DDL triggers.
func (c *Client) ServerTriggers(ctx context.Context) ([]export.Object, error) {
	query := `SELECT name FROM sys.server_triggers WHERE is_ms_shipped = 0 ORDER BY name`
	return c.serverNames(ctx, query, export.TagServerTrigger, "servertrigger")
}

// MailObjects lists the mail subsystem: the root configuration object plus
// each account and profile as separate entries.
func (c *Client) MailObjects(ctx context.Context) ([]export.Object, error) {
	objects := []export.Object{{
		Name: "DatabaseMail",
		Tag:  export.TagMail,
		Ref:  ref{name: "DatabaseMail", kind: "mail"},
	}}

	accounts, err := c.serverNames(ctx,
		`SELECT name FROM msdb.dbo.sysmail_account ORDER BY name`,
		export.TagMailAccount, "mailaccount")
	if err != nil {
		return nil, err
	}
	objects = append(objects, accounts...)

	profiles, err := c.serverNames(ctx,
		`SELECT name FROM msdb.dbo.sysmail_profile ORDER BY name`,
		export.TagMailProfile, "mailprofile")
	if err != nil {
		return nil, err
	}
	return append(objects, profiles...), nil
}

// JobObjects lists the job subsystem: operators, jobs and alerts.
func (c *Client) JobObjects(ctx context.Context) ([]export.Object, error) {
	operators, err := c.serverNames(ctx,
		`SELECT name FROM msdb.dbo.sysoperators ORDER BY name`,
		export.TagOperator, "operator")
	if err != nil {
		return nil, err
	}
	jobs, err := c.serverNames(ctx,
		`SELECT name FROM msdb.dbo.sysjobs ORDER BY name`,
		export.TagJob, "job")
	if err != nil {
		return nil, err
	}
	alerts, err := c.serverNames(ctx,
		`SELECT name FROM msdb.dbo.sysalerts ORDER BY name`,
		export.TagAlert, "alert")
	if err != nil {
		return nil, err
	}

	objects := append(operators, jobs...)
	return append(objects, alerts...), nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}
