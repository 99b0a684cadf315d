package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rowjay/mssql-admin-utility/internal/archive"
	"github.com/rowjay/mssql-admin-utility/internal/catalog"
	"github.com/rowjay/mssql-admin-utility/internal/config"
	"github.com/rowjay/mssql-admin-utility/internal/export"
	"github.com/rowjay/mssql-admin-utility/internal/lock"
	"github.com/rowjay/mssql-admin-utility/internal/logging"
	"github.com/rowjay/mssql-admin-utility/internal/notify"
	"github.com/rowjay/mssql-admin-utility/internal/report"
	"github.com/rowjay/mssql-admin-utility/internal/storage"
	"github.com/rowjay/mssql-admin-utility/internal/util"
	"github.com/rowjay/mssql-admin-utility/internal/version"
)

type rootFlags struct {
	ConfigPath string
	LogLevel   string
	LogFormat  string
}

type overrideFlags struct {
	Host      string
	Port      int
	Username  string
	Password  string
	Encrypt   string
	TrustCert bool

	OutputRoot string
	Timestamp  bool
	Databases  string
}

func main() {
	root := &rootFlags{}
	overrides := &overrideFlags{}

	rootCmd := &cobra.Command{
		Use:   "msau",
		Short: "SQL Server inventory and script export utility",
	}

	rootCmd.PersistentFlags().StringVar(&root.ConfigPath, "config", "", "Path to config file (yaml/toml/json or .enc)")
	rootCmd.PersistentFlags().StringVar(&root.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&root.LogFormat, "log-format", "", "Log format (json, console)")

	rootCmd.PersistentFlags().StringVar(&overrides.Host, "host", "", "SQL Server host")
	rootCmd.PersistentFlags().IntVar(&overrides.Port, "port", 0, "SQL Server port")
	rootCmd.PersistentFlags().StringVar(&overrides.Username, "user", "", "SQL Server login")
	rootCmd.PersistentFlags().StringVar(&overrides.Password, "password", "", "SQL Server password")
	rootCmd.PersistentFlags().StringVar(&overrides.Encrypt, "encrypt", "", "Connection encryption (disable, false, true)")
	rootCmd.PersistentFlags().BoolVar(&overrides.TrustCert, "trust-server-cert", false, "Trust the server TLS certificate")

	rootCmd.AddCommand(newExportCmd(root, overrides))
	rootCmd.AddCommand(newReportCmd(root, overrides))
	rootCmd.AddCommand(newArchiveCmd(root, overrides))
	rootCmd.AddCommand(newValidateCmd(root, overrides))
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newExportCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export catalog objects to script files",
	}

	dbFlags := export.AllDatabaseFlags()
	databases := &cobra.Command{
		Use:   "databases",
		Short: "Export schema objects of one or more databases",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			return runExport(cfg, logger, func(ctx context.Context, exp *export.Exporter, opts export.Options) (*export.RunSummary, error) {
				sel := export.ParseDatabaseSelector(cfg.Export.Databases)
				return exp.ExportDatabaseObjects(ctx, sel, dbFlags, opts)
			})
		},
	}
	databases.Flags().StringVar(&overrides.Databases, "databases", "", `Databases to export ("ALL" or comma-separated list)`)
	databases.Flags().StringVar(&overrides.OutputRoot, "output", "", "Export root directory")
	databases.Flags().BoolVar(&overrides.Timestamp, "timestamp", false, "Nest scripts in a per-run timestamp directory")
	databases.Flags().BoolVar(&dbFlags.Tables, "include-tables", true, "Export tables")
	databases.Flags().BoolVar(&dbFlags.Views, "include-views", true, "Export views")
	databases.Flags().BoolVar(&dbFlags.Procedures, "include-procedures", true, "Export stored procedures")
	databases.Flags().BoolVar(&dbFlags.Functions, "include-functions", true, "Export user-defined functions")

	srvFlags := export.AllServerFlags()
	server := &cobra.Command{
		Use:   "server",
		Short: "Export server-level objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			return runExport(cfg, logger, func(ctx context.Context, exp *export.Exporter, opts export.Options) (*export.RunSummary, error) {
				return exp.ExportServerObjects(ctx, srvFlags, opts)
			})
		},
	}
	server.Flags().StringVar(&overrides.OutputRoot, "output", "", "Export root directory")
	server.Flags().BoolVar(&overrides.Timestamp, "timestamp", false, "Nest scripts in a per-run timestamp directory")
	server.Flags().BoolVar(&srvFlags.Roles, "include-roles", true, "Export server roles")
	server.Flags().BoolVar(&srvFlags.Logins, "include-logins", true, "Export logins")
	server.Flags().BoolVar(&srvFlags.LinkedServers, "include-linked-servers", true, "Export linked servers")
	server.Flags().BoolVar(&srvFlags.Triggers, "include-triggers", true, "Export server triggers")
	server.Flags().BoolVar(&srvFlags.Mail, "include-mail", true, "Export Database Mail objects")
	server.Flags().BoolVar(&srvFlags.Jobs, "include-jobs", true, "Export Agent jobs, operators and alerts")

	cmd.AddCommand(databases)
	cmd.AddCommand(server)
	return cmd
}

// runExport owns the shared export plumbing: lock, connect, run, summarize,
// notify. The scope-specific call is injected.
func runExport(cfg *config.Config, logger zerolog.Logger, run func(context.Context, *export.Exporter, export.Options) (*export.RunSummary, error)) error {
	guard, err := lock.Acquire(cfg.Global.LockFile)
	if err != nil {
		return err
	}
	defer guard.Release()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
	defer cancel()

	client, err := connectCatalog(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	exp := export.New(client, client.Scripter(), logging.Component(logger, "export"))
	opts := export.Options{
		Instance:     client.Instance(),
		OutputRoot:   cfg.Export.OutputRoot,
		UseTimestamp: cfg.Export.UseTimestamp,
	}

	start := time.Now()
	summary, err := run(ctx, exp, opts)
	sendNotification(cfg, logger, summary, start, err)
	if err != nil {
		return err
	}

	logger.Info().
		Str("scope", summary.Scope).
		Int("discovered", summary.Discovered).
		Int("written", summary.Written).
		Int("skipped", summary.Skipped).
		Int("category_failures", len(summary.CategoryFailures)).
		Strs("failed_databases", summary.FailedDatabases()).
		Msg("export completed")
	return printJSON(summary)
}

func sendNotification(cfg *config.Config, logger zerolog.Logger, summary *export.RunSummary, start time.Time, runErr error) {
	notifier := notify.FromConfig(cfg.Notifications)
	if len(notifier.Targets) == 0 {
		return
	}
	event := notify.Event{
		Type:      "export",
		Status:    "success",
		Instance:  fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		StartedAt: start,
		EndedAt:   time.Now(),
		Duration:  time.Since(start).String(),
	}
	if summary != nil {
		event.Scope = summary.Scope
		event.Databases = len(summary.Databases)
		event.Discovered = summary.Discovered
		event.Written = summary.Written
		event.Skipped = summary.Skipped
	}
	if runErr != nil {
		event.Status = "failed"
		event.Error = runErr.Error()
	}
	if err := notifier.Notify(context.Background(), event); err != nil {
		logger.Warn().Err(err).Msg("notification failed")
	}
}

func newReportCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Inventory reports against the instance and its host",
	}

	var backupLimit int
	kinds := []struct {
		use   string
		short string
		run   func(ctx context.Context, svc *report.Service) (any, error)
	}{
		{"disks", "Disk volumes hosting database files", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Disks(ctx) }},
		{"host", "Host hardware and OS facts", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Host(ctx) }},
		{"services", "SQL Server service status", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Services(ctx) }},
		{"config", "Instance configuration values", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Configuration(ctx) }},
		{"databases", "Database properties", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Databases(ctx) }},
		{"backups", "Backup history, newest first", func(ctx context.Context, svc *report.Service) (any, error) { return svc.BackupHistory(ctx, backupLimit) }},
		{"uptime", "Instance start time and uptime", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Uptime(ctx) }},
		{"permissions", "Server-level permissions by grantee", func(ctx context.Context, svc *report.Service) (any, error) { return svc.Permissions(ctx) }},
		{"role-members", "Server role membership, sorted by name", func(ctx context.Context, svc *report.Service) (any, error) { return svc.RoleMemberships(ctx) }},
	}

	for _, kind := range kinds {
		run := kind.run
		sub := &cobra.Command{
			Use:   kind.use,
			Short: kind.short,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, logger, err := setup(root, overrides)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
				defer cancel()

				client, err := connectCatalog(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer client.Close()

				result, err := run(ctx, report.New(client.DB()))
				if err != nil {
					return err
				}
				return printJSON(result)
			},
		}
		if kind.use == "backups" {
			sub.Flags().IntVar(&backupLimit, "limit", 50, "Rows of backup history to return")
		}
		cmd.AddCommand(sub)
	}
	return cmd
}

func newArchiveCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	var source string
	var scope string

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Pack and upload a finished export tree",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an archive from an export tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			if source == "" {
				return fmt.Errorf("--source is required")
			}
			cfg, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			guard, err := lock.Acquire(cfg.Global.LockFile)
			if err != nil {
				return err
			}
			defer guard.Release()

			store, err := storage.New(cfg.Storage)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			packer := archive.New(cfg.Archive, store, logging.Component(logger, "archive"))
			instance := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			res, err := packer.Pack(ctx, source, instance, scope)
			if err != nil {
				return err
			}
			logger.Info().Str("key", res.Key).Int64("size", res.Manifest.SizeBytes).Int("files", res.Manifest.FileCount).Msg("archive created")
			return nil
		},
	}
	create.Flags().StringVar(&source, "source", "", "Export tree to archive")
	create.Flags().StringVar(&scope, "scope", export.ScopeDatabase, "Scope label recorded in the archive key (database, server)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored archives for the configured instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			store, err := storage.New(cfg.Storage)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			packer := archive.New(cfg.Archive, store, logging.Component(logger, "archive"))
			instance := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			items, err := packer.List(ctx, instance)
			if err != nil {
				return err
			}
			for _, item := range items {
				fmt.Printf("%s\t%d\t%s\n", item.Key, item.Size, item.Modified.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(create)
	cmd.AddCommand(list)
	return cmd
}

func newValidateCmd(root *rootFlags, overrides *overrideFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and catalog connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(root, overrides)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Global.OperationTimeout)
			defer cancel()

			client, err := connectCatalog(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			if _, err := storage.New(cfg.Storage); err != nil {
				return err
			}
			logger.Info().Str("instance", client.Instance()).Msg("validation succeeded")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	var input string
	var output string
	var key string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Config utilities",
	}

	encrypt := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" || output == "" || key == "" {
				return fmt.Errorf("--input, --output, and --key are required")
			}
			return config.EncryptConfigFile(input, output, key)
		},
	}
	encrypt.Flags().StringVar(&input, "input", "", "Input config file")
	encrypt.Flags().StringVar(&output, "output", "", "Output encrypted config file")
	encrypt.Flags().StringVar(&key, "key", "", "Encryption key (base64 or hex)")

	cmd.AddCommand(encrypt)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("msau %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}

func setup(root *rootFlags, overrides *overrideFlags) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(root.ConfigPath)
	if err != nil {
		return nil, zerolog.Logger{}, err
	}
	applyOverrides(cfg, root, overrides)
	logger := logging.Configure(cfg.Global.LogLevel, cfg.Global.LogFormat)
	return cfg, logger, nil
}

func connectCatalog(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*catalog.Client, error) {
	if cfg.Server.Host == "" {
		return nil, fmt.Errorf("server host is required")
	}
	var client *catalog.Client
	err := util.Retry(ctx, cfg.Global.ConnectRetries, cfg.Global.ConnectBackoff, func() error {
		var cerr error
		client, cerr = catalog.Connect(ctx, cfg.Server)
		if cerr != nil {
			logger.Warn().Err(cerr).Msg("catalog connection failed")
		}
		return cerr
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func applyOverrides(cfg *config.Config, root *rootFlags, overrides *overrideFlags) {
	if root.LogLevel != "" {
		cfg.Global.LogLevel = root.LogLevel
	}
	if root.LogFormat != "" {
		cfg.Global.LogFormat = root.LogFormat
	}

	if overrides.Host != "" {
		cfg.Server.Host = overrides.Host
	}
	if overrides.Port != 0 {
		cfg.Server.Port = overrides.Port
	}
	if overrides.Username != "" {
		cfg.Server.Username = overrides.Username
	}
	if overrides.Password != "" {
		cfg.Server.Password = overrides.Password
	}
	if overrides.Encrypt != "" {
		cfg.Server.Encrypt = strings.ToLower(overrides.Encrypt)
	}
	if overrides.TrustCert {
		cfg.Server.TrustServerCertificate = true
	}

	if overrides.OutputRoot != "" {
		cfg.Export.OutputRoot = overrides.OutputRoot
	}
	if overrides.Timestamp {
		cfg.Export.UseTimestamp = true
	}
	if overrides.Databases != "" {
		cfg.Export.Databases = overrides.Databases
	}
}

func printJSON(v any) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}
