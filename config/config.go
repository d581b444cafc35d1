// Package config provides configuration management for lfsauth.
// It handles loading and validating configuration from YAML/JSON files and environment variables.
package config

import "time"

// DefaultBackendKey is the fs/s3 map key holding settings of the unnamed default backend
const DefaultBackendKey = "default"

// AppConfig represents the complete application configuration
type AppConfig struct {
	Server  ServerConfig               `koanf:"server"`
	Auth    AuthConfig                 `koanf:"auth"`
	Log     LogConfig                  `koanf:"log"`
	Metrics MetricsConfig              `koanf:"metrics"`
	Storage StorageConfig              `koanf:"storage"`
	FS      map[string]FSBackendConfig `koanf:"fs"`
	S3      map[string]S3BackendConfig `koanf:"s3"`
	LFS     LFSConfig                  `koanf:"lfs"`

	// Warnings lists values the loader replaced with defaults
	Warnings []string `koanf:"-"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	ListenAddr   string        `koanf:"listen_addr"`
	ExternalURL  string        `koanf:"external_url"` // base URL clients use to reach this service
	CertFile     string        `koanf:"cert_file"`    // TLS is enabled when both cert and key are set
	KeyFile      string        `koanf:"key_file"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// SSH authenticate endpoint limiter, requests per second and burst
	SSHAuthRateLimit float64 `koanf:"ssh_auth_rate_limit"`
	SSHAuthBurst     int     `koanf:"ssh_auth_burst"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	APIKeys              []string `koanf:"api_keys"` // "name:key" or bare key
	SSHExpirationSeconds int      `koanf:"ssh_expiration_seconds"`
	KnownUsers           []string `koanf:"known_users"` // empty accepts every user
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Sanitize selects how identities are redacted: production, development or debug
	Sanitize string `koanf:"sanitize"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	ListenAddr string `koanf:"listen_addr"` // empty serves /metrics on the main listener
}

// StorageConfig selects the default backend
type StorageConfig struct {
	Backend string `koanf:"backend"`  // "fs" or "s3"
	DataDir string `koanf:"data_dir"` // fallback directory for fs backends
}

// FSBackendConfig holds the settings of one filesystem backend
type FSBackendConfig struct {
	Directory         string `koanf:"directory"`
	ExpirationSeconds int    `koanf:"expiration_seconds"`
}

// S3BackendConfig holds the settings of one S3 backend
type S3BackendConfig struct {
	Hostname          string `koanf:"hostname"` // custom endpoint, enables path-style addressing
	Region            string `koanf:"region"`
	Bucket            string `koanf:"bucket"`
	StorageClass      string `koanf:"storage_class"`
	AccessKey         string `koanf:"access_key"`
	SecretKey         string `koanf:"secret_key"`
	ExpirationSeconds int    `koanf:"expiration_seconds"`
	DisableSSLVerify  bool   `koanf:"disable_ssl_verify"`
	VerifyBucket      bool   `koanf:"verify_bucket"` // HeadBucket when the handle is built
}

// LFSConfig holds per-namespace and per-project LFS settings
type LFSConfig struct {
	Namespaces []NamespaceConfig `koanf:"namespaces"` // evaluated in declared order
	Projects   []ProjectConfig   `koanf:"projects"`
}

// NamespaceConfig applies to every project whose name matches Pattern
type NamespaceConfig struct {
	Pattern       string `koanf:"pattern"`
	Enabled       bool   `koanf:"enabled"`
	ReadOnly      bool   `koanf:"read_only"`
	MaxObjectSize int64  `koanf:"max_object_size"` // bytes, zero means unlimited
	Backend       string `koanf:"backend"`
}

// ProjectConfig pins a single project to a backend
type ProjectConfig struct {
	Name    string `koanf:"name"`
	Backend string `koanf:"backend"`
}

// FSBackend returns the settings of a filesystem backend; empty name selects the default
func (c *AppConfig) FSBackend(name string) (FSBackendConfig, bool) {
	if name == "" {
		name = DefaultBackendKey
	}
	cfg, ok := c.FS[name]
	return cfg, ok
}

// S3Backend returns the settings of an S3 backend; empty name selects the default
func (c *AppConfig) S3Backend(name string) (S3BackendConfig, bool) {
	if name == "" {
		name = DefaultBackendKey
	}
	cfg, ok := c.S3[name]
	return cfg, ok
}
