package config

import "time"

// Config is the root configuration schema.
type Config struct {
	Global        GlobalConfig        `mapstructure:"global"`
	Server        ServerConfig        `mapstructure:"server"`
	Export        ExportConfig        `mapstructure:"export"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
}

type GlobalConfig struct {
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"` // json or console
	LockFile         string        `mapstructure:"lock_file"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConfigPassphrase string        `mapstructure:"config_passphrase"` // optional; may come from env
	ConnectRetries   int           `mapstructure:"connect_retries"`
	ConnectBackoff   time.Duration `mapstructure:"connect_backoff"`
}

// ServerConfig addresses one SQL Server instance.
type ServerConfig struct {
	Host                   string        `mapstructure:"host"`
	Port                   int           `mapstructure:"port"`
	Username               string        `mapstructure:"username"`
	Password               string        `mapstructure:"password"`
	Encrypt                string        `mapstructure:"encrypt"` // disable, false, true
	TrustServerCertificate bool          `mapstructure:"trust_server_certificate"`
	ConnectionTimeout      time.Duration `mapstructure:"connection_timeout"`
	AppName                string        `mapstructure:"app_name"`
}

// ExportConfig shapes the script export tree.
type ExportConfig struct {
	OutputRoot   string `mapstructure:"output_root"`
	UseTimestamp bool   `mapstructure:"use_timestamp"`
	Databases    string `mapstructure:"databases"` // "ALL" or comma-separated list
}

// ArchiveConfig controls packing a finished export tree for upload.
type ArchiveConfig struct {
	Compression   string `mapstructure:"compression"` // none, gzip, zstd
	Encryption    bool   `mapstructure:"encryption"`
	EncryptionKey string `mapstructure:"encryption_key"`
	Prefix        string `mapstructure:"prefix"`
}

type StorageConfig struct {
	Backend string     `mapstructure:"backend"` // local, s3
	Local   LocalStore `mapstructure:"local"`
	S3      S3Store    `mapstructure:"s3"`
}

type LocalStore struct {
	Path string `mapstructure:"path"`
}

type S3Store struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKey       string `mapstructure:"access_key"`
	SecretKey       string `mapstructure:"secret_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	SessionToken    string `mapstructure:"session_token"`
	TLSInsecureSkip bool   `mapstructure:"tls_insecure_skip"`
}

type NotificationsConfig struct {
	Webhooks   []WebhookConfig  `mapstructure:"webhooks"`
	Mattermost []MattermostHook `mapstructure:"mattermost"`
}

type WebhookConfig struct {
	Name    string            `mapstructure:"name"`
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type MattermostHook struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}
