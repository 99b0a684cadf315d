package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/rowjay/mssql-admin-utility/internal/config"
)

// Client is the catalog handle for one SQL Server instance. All enumeration
// and scripting queries run over this single connection pool; access is
// serialized by the export pipeline.
type Client struct {
	db       *sql.DB
	instance string
}

// Connect opens the catalog connection and verifies it with a ping.
func Connect(ctx context.Context, cfg config.ServerConfig) (*Client, error) {
	query := url.Values{}
	query.Set("app name", cfg.AppName)
	if cfg.Encrypt != "" {
		query.Set("encrypt", cfg.Encrypt)
	}
	if cfg.TrustServerCertificate {
		query.Set("trustservercertificate", "true")
	}
	if cfg.ConnectionTimeout > 0 {
		query.Set("dial timeout", fmt.Sprintf("%d", int(cfg.ConnectionTimeout.Seconds())))
	}

	dsn := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		RawQuery: query.Encode(),
	}

	db, err := sql.Open("sqlserver", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("open catalog connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("reach catalog %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Client{db: db, instance: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)}, nil
}

// Instance returns the address identifier used in export paths.
func (c *Client) Instance() string { return c.instance }

// DB exposes the underlying handle for the report queries.
func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// bracket quotes an identifier for interpolation into a catalog query.
// Identifiers cannot be bound as parameters, so closing brackets are doubled.
func bracket(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// quoteLiteral escapes a string literal for generated script text.
func quoteLiteral(v string) string {
	return "N'" + strings.ReplaceAll(v, "'", "''") + "'"
}
