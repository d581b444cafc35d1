package config

import "time"

const (
	// DefaultSSHExpirationSeconds is the lifetime of SSH-minted transfer tokens
	DefaultSSHExpirationSeconds = 10

	// DefaultFSExpirationSeconds is the lifetime of filesystem content tokens
	DefaultFSExpirationSeconds = 10

	// DefaultS3ExpirationSeconds is the lifetime of presigned S3 URLs
	DefaultS3ExpirationSeconds = 60

	// DefaultS3StorageClass is applied to uploads when none is configured
	DefaultS3StorageClass = "REDUCED_REDUNDANCY"
)

// DefaultAppConfig returns an AppConfig struct with sensible default values
func DefaultAppConfig() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			ListenAddr:       ":8080",
			ExternalURL:      "http://localhost:8080",
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			SSHAuthRateLimit: 100,
			SSHAuthBurst:     20,
		},
		Auth: AuthConfig{
			APIKeys:              []string{},
			SSHExpirationSeconds: DefaultSSHExpirationSeconds,
			KnownUsers:           []string{},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			ListenAddr: "",
		},
		Storage: StorageConfig{
			Backend: "fs",
			DataDir: "/var/lib/lfsauth",
		},
		FS: make(map[string]FSBackendConfig),
		S3: make(map[string]S3BackendConfig),
	}
}
