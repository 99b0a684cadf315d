package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rowjay/mssql-admin-utility/internal/export"
)

// Scripter renders one catalog object into script text. It honors the policy
// knobs handed down by the exporter; rendering a single object never pulls in
// dependency objects.
type Scripter struct {
	c   *Client
	now func() time.Time
}

// Scripter returns a renderer bound to this catalog connection.
func (c *Client) Scripter() *Scripter {
	return &Scripter{c: c, now: time.Now}
}

func (s *Scripter) Render(ctx context.Context, obj export.Object, opts export.ScriptOptions) (string, error) {
	r, ok := obj.Ref.(ref)
	if !ok {
		return "", fmt.Errorf("object %s carries a foreign handle", obj.Name)
	}

	var body string
	var err error
	switch r.kind {
	case "table":
		body, err = s.tableDDL(ctx, r, opts)
	case "module":
		body, err = s.moduleDefinition(ctx, r)
	case "servertrigger":
		body, err = s.serverTriggerDefinition(ctx, r)
	case "role":
		body, err = s.serverRoleDDL(ctx, r)
	case "login":
		body, err = s.loginDDL(ctx, r)
	case "linkedserver":
		body, err = s.linkedServerDDL(ctx, r)
	case "mail":
		body, err = s.mailRootDDL(ctx)
	case "mailaccount":
		body, err = s.mailAccountDDL(ctx, r)
	case "mailprofile":
		body, err = s.mailProfileDDL(ctx, r)
	case "operator":
		body, err = s.operatorDDL(ctx, r)
	case "job":
		body, err = s.jobDDL(ctx, r)
	case "alert":
		body, err = s.alertDDL(ctx, r)
	default:
		err = fmt.Errorf("no renderer for object kind %q", r.kind)
	}
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if opts.IncludeHeaders {
		fmt.Fprintf(&b, "/****** Object: %s %s    Scripted %s from %s ******/\n",
			obj.Tag, obj.Name, s.now().UTC().Format(time.RFC3339), s.c.instance)
	}
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteString("\n")
	}
	return b.String(), nil
}

// moduleDefinition fetches the stored T-SQL of a view, procedure or function.
func (s *Scripter) moduleDefinition(ctx context.Context, r ref) (string, error) {
	query := fmt.Sprintf(`SELECT definition FROM %s.sys.sql_modules WHERE object_id = @p1`, bracket(r.database))
	var definition sql.NullString
	err := s.c.db.QueryRowContext(ctx, query, r.objectID).Scan(&definition)
	if err == sql.ErrNoRows || (err == nil && !definition.Valid) {
		return "", fmt.Errorf("definition of %s.%s is not available (encrypted module?)", r.schema, r.name)
	}
	if err != nil {
		return "", fmt.Errorf("fetch definition of %s.%s: %w", r.schema, r.name, err)
	}
	return definition.String, nil
}

func (s *Scripter) serverTriggerDefinition(ctx context.Context, r ref) (string, error) {
	query := `SELECT m.definition FROM sys.server_sql_modules m
		JOIN sys.server_triggers t ON t.object_id = m.object_id
		WHERE t.name = @p1`
	var definition sql.NullString
	err := s.c.db.QueryRowContext(ctx, query, r.name).Scan(&definition)
	if err == sql.ErrNoRows || (err == nil && !definition.Valid) {
		return "", fmt.Errorf("definition of server trigger %s is not available", r.name)
	}
	if err != nil {
		return "", fmt.Errorf("fetch server trigger %s: %w", r.name, err)
	}
	return definition.String, nil
}

// serverRoleDDL scripts the role plus its membership, members sorted by name.
func (s *Scripter) serverRoleDDL(ctx context.Context, r ref) (string, error) {
	var owner string
	err := s.c.db.QueryRowContext(ctx,
		`SELECT o.name FROM sys.server_principals p
		 JOIN sys.server_principals o ON o.principal_id = p.owning_principal_id
		 WHERE p.name = @p1`, r.name).Scan(&owner)
	if err != nil && err != sql.ErrNoRows {
		return "", fmt.Errorf("fetch role %s: %w", r.name, err)
	}

	var b strings.Builder
	if owner != "" {
		fmt.Fprintf(&b, "CREATE SERVER ROLE %s AUTHORIZATION %s;\nGO\n", bracket(r.name), bracket(owner))
	} else {
		fmt.Fprintf(&b, "CREATE SERVER ROLE %s;\nGO\n", bracket(r.name))
	}

	members, err := s.RoleMembers(ctx, r.name)
	if err != nil {
		return "", err
	}
	for _, member := range members {
		fmt.Fprintf(&b, "ALTER SERVER ROLE %s ADD MEMBER %s;\n", bracket(r.name), bracket(member))
	}
	return b.String(), nil
}

// RoleMembers lists the members of one server role, sorted by name.
func (s *Scripter) RoleMembers(ctx context.Context, role string) ([]string, error) {
	rows, err := s.c.db.QueryContext(ctx,
		`SELECT m.name FROM sys.server_role_members rm
		 JOIN sys.server_principals r ON r.principal_id = rm.role_principal_id
		 JOIN sys.server_principals m ON m.principal_id = rm.member_principal_id
		 WHERE r.name = @p1
		 ORDER BY m.name`, role)
	if err != nil {
		return nil, fmt.Errorf("fetch members of role %s: %w", role, err)
	}
	return scanStrings(rows)
}

func (s *Scripter) loginDDL(ctx context.Context, r ref) (string, error) {
	var typ, defaultDB string
	var disabled bool
	err := s.c.db.QueryRowContext(ctx,
		`SELECT type, ISNULL(default_database_name, 'master'), is_disabled
		 FROM sys.server_principals WHERE name = @p1`, r.name).
		Scan(&typ, &defaultDB, &disabled)
	if err != nil {
		return "", fmt.Errorf("fetch login %s: %w", r.name, err)
	}

	var b strings.Builder
	switch typ {
	case "U", "G":
		fmt.Fprintf(&b, "CREATE LOGIN %s FROM WINDOWS WITH DEFAULT_DATABASE = %s;\n", bracket(r.name), bracket(defaultDB))
	default:
		// Password hashes are not scripted; the placeholder must be replaced
		// before the script is replayed.
		fmt.Fprintf(&b, "CREATE LOGIN %s WITH PASSWORD = N'<password not scripted>', DEFAULT_DATABASE = %s;\n", bracket(r.name), bracket(defaultDB))
	}
	if disabled {
		fmt.Fprintf(&b, "ALTER LOGIN %s DISABLE;\n", bracket(r.name))
	}
	return b.String(), nil
}

func (s *Scripter) linkedServerDDL(ctx context.Context, r ref) (string, error) {
	var product, provider, dataSource sql.NullString
	err := s.c.db.QueryRowContext(ctx,
		`SELECT product, provider, data_source FROM sys.servers WHERE name = @p1 AND is_linked = 1`, r.name).
		Scan(&product, &provider, &dataSource)
	if err != nil {
		return "", fmt.Errorf("fetch linked server %s: %w", r.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXEC master.dbo.sp_addlinkedserver @server = %s", quoteLiteral(r.name))
	if product.Valid {
		fmt.Fprintf(&b, ", @srvproduct = %s", quoteLiteral(product.String))
	}
	if provider.Valid && provider.String != "" {
		fmt.Fprintf(&b, ", @provider = %s", quoteLiteral(provider.String))
	}
	if dataSource.Valid && dataSource.String != "" {
		fmt.Fprintf(&b, ", @datasrc = %s", quoteLiteral(dataSource.String))
	}
	b.WriteString(";\n")
	return b.String(), nil
}

// mailRootDDL scripts enabling Database Mail; accounts and profiles are
// separate export entries.
func (s *Scripter) mailRootDDL(ctx context.Context) (string, error) {
	var accounts, profiles int
	if err := s.c.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM msdb.dbo.sysmail_account),
		        (SELECT COUNT(*) FROM msdb.dbo.sysmail_profile)`).
		Scan(&accounts, &profiles); err != nil {
		return "", fmt.Errorf("fetch mail configuration: %w", err)
	}

	var b strings.Builder
	b.WriteString("EXEC sp_configure 'show advanced options', 1;\nRECONFIGURE;\n")
	b.WriteString("EXEC sp_configure 'Database Mail XPs', 1;\nRECONFIGURE;\n")
	fmt.Fprintf(&b, "-- %d account(s), %d profile(s) scripted separately\n", accounts, profiles)
	return b.String(), nil
}

func (s *Scripter) mailAccountDDL(ctx context.Context, r ref) (string, error) {
	var email, replyTo, displayName, server sql.NullString
	var port sql.NullInt64
	err := s.c.db.QueryRowContext(ctx,
		`SELECT a.email_address, a.replyto_address, a.display_name, srv.servername, srv.port
		 FROM msdb.dbo.sysmail_account a
		 LEFT JOIN msdb.dbo.sysmail_server srv ON srv.account_id = a.account_id
		 WHERE a.name = @p1`, r.name).
		Scan(&email, &replyTo, &displayName, &server, &port)
	if err != nil {
		return "", fmt.Errorf("fetch mail account %s: %w", r.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXEC msdb.dbo.sysmail_add_account_sp @account_name = %s", quoteLiteral(r.name))
	if email.Valid {
		fmt.Fprintf(&b, ", @email_address = %s", quoteLiteral(email.String))
	}
	if displayName.Valid && displayName.String != "" {
		fmt.Fprintf(&b, ", @display_name = %s", quoteLiteral(displayName.String))
	}
	if replyTo.Valid && replyTo.String != "" {
		fmt.Fprintf(&b, ", @replyto_address = %s", quoteLiteral(replyTo.String))
	}
	if server.Valid {
		fmt.Fprintf(&b, ", @mailserver_name = %s", quoteLiteral(server.String))
	}
	if port.Valid {
		fmt.Fprintf(&b, ", @port = %d", port.Int64)
	}
	b.WriteString(";\n")
	return b.String(), nil
}

func (s *Scripter) mailProfileDDL(ctx context.Context, r ref) (string, error) {
	var description sql.NullString
	err := s.c.db.QueryRowContext(ctx,
		`SELECT description FROM msdb.dbo.sysmail_profile WHERE name = @p1`, r.name).
		Scan(&description)
	if err != nil {
		return "", fmt.Errorf("fetch mail profile %s: %w", r.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXEC msdb.dbo.sysmail_add_profile_sp @profile_name = %s", quoteLiteral(r.name))
	if description.Valid && description.String != "" {
		fmt.Fprintf(&b, ", @description = %s", quoteLiteral(description.String))
	}
	b.WriteString(";\n")

	rows, err := s.c.db.QueryContext(ctx,
		`SELECT a.name, pa.sequence_number
		 FROM msdb.dbo.sysmail_profileaccount pa
		 JOIN msdb.dbo.sysmail_profile p ON p.profile_id = pa.profile_id
		 JOIN msdb.dbo.sysmail_account a ON a.account_id = pa.account_id
		 WHERE p.name = @p1
		 ORDER BY pa.sequence_number`, r.name)
	if err != nil {
		return "", fmt.Errorf("fetch accounts of profile %s: %w", r.name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var account string
		var seq int
		if err := rows.Scan(&account, &seq); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "EXEC msdb.dbo.sysmail_add_profileaccount_sp @profile_name = %s, @account_name = %s, @sequence_number = %d;\n",
			quoteLiteral(r.name), quoteLiteral(account), seq)
	}
	return b.String(), rows.Err()
}

func (s *Scripter) operatorDDL(ctx context.Context, r ref) (string, error) {
	var email sql.NullString
	var enabled bool
	err := s.c.db.QueryRowContext(ctx,
		`SELECT email_address, enabled FROM msdb.dbo.sysoperators WHERE name = @p1`, r.name).
		Scan(&email, &enabled)
	if err != nil {
		return "", fmt.Errorf("fetch operator %s: %w", r.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXEC msdb.dbo.sp_add_operator @name = %s, @enabled = %d", quoteLiteral(r.name), boolBit(enabled))
	if email.Valid && email.String != "" {
		fmt.Fprintf(&b, ", @email_address = %s", quoteLiteral(email.String))
	}
	b.WriteString(";\n")
	return b.String(), nil
}

func (s *Scripter) jobDDL(ctx context.Context, r ref) (string, error) {
	var description sql.NullString
	var enabled bool
	err := s.c.db.QueryRowContext(ctx,
		`SELECT description, enabled FROM msdb.dbo.sysjobs WHERE name = @p1`, r.name).
		Scan(&description, &enabled)
	if err != nil {
		return "", fmt.Errorf("fetch job %s: %w", r.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXEC msdb.dbo.sp_add_job @job_name = %s, @enabled = %d", quoteLiteral(r.name), boolBit(enabled))
	if description.Valid && description.String != "" {
		fmt.Fprintf(&b, ", @description = %s", quoteLiteral(description.String))
	}
	b.WriteString(";\n")

	rows, err := s.c.db.QueryContext(ctx,
		`SELECT s.step_id, s.step_name, s.subsystem, s.command
		 FROM msdb.dbo.sysjobsteps s
		 JOIN msdb.dbo.sysjobs j ON j.job_id = s.job_id
		 WHERE j.name = @p1
		 ORDER BY s.step_id`, r.name)
	if err != nil {
		return "", fmt.Errorf("fetch steps of job %s: %w", r.name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var stepID int
		var stepName, subsystem string
		var command sql.NullString
		if err := rows.Scan(&stepID, &stepName, &subsystem, &command); err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "EXEC msdb.dbo.sp_add_jobstep @job_name = %s, @step_id = %d, @step_name = %s, @subsystem = %s",
			quoteLiteral(r.name), stepID, quoteLiteral(stepName), quoteLiteral(subsystem))
		if command.Valid {
			fmt.Fprintf(&b, ", @command = %s", quoteLiteral(command.String))
		}
		b.WriteString(";\n")
	}
	return b.String(), rows.Err()
}

func (s *Scripter) alertDDL(ctx context.Context, r ref) (string, error) {
	var messageID, severity int
	var enabled bool
	err := s.c.db.QueryRowContext(ctx,
		`SELECT message_id, severity, enabled FROM msdb.dbo.sysalerts WHERE name = @p1`, r.name).
		Scan(&messageID, &severity, &enabled)
	if err != nil {
		return "", fmt.Errorf("fetch alert %s: %w", r.name, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "EXEC msdb.dbo.sp_add_alert @name = %s, @enabled = %d", quoteLiteral(r.name), boolBit(enabled))
	if messageID > 0 {
		fmt.Fprintf(&b, ", @message_id = %d", messageID)
	}
	if severity > 0 {
		fmt.Fprintf(&b, ", @severity = %d", severity)
	}
	b.WriteString(";\n")
	return b.String(), nil
}

func boolBit(v bool) int {
	if v {
		return 1
	}
	return 0
}
