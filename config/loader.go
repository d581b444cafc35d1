package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override. Nested keys are separated by
// a double underscore: LFSAUTH_AUTH__SSH_EXPIRATION_SECONDS=30.
const EnvPrefix = "LFSAUTH_"

// listKeys are split on commas when given through the environment
var listKeys = map[string]bool{
	"auth.api_keys":    true,
	"auth.known_users": true,
}

// LoadConfig loads configuration from multiple sources with strict priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml, config.yml or config.json)
// 3. Defaults (lowest priority)
func LoadConfig() (AppConfig, error) {
	return LoadConfigFromFile("")
}

// LoadConfigFromFile loads configuration from multiple sources with a specific config file:
// 1. Environment variables (highest priority)
// 2. Specified config file or default config files
// 3. Defaults (lowest priority)
func LoadConfigFromFile(configFilePath string) (AppConfig, error) {
	k := koanf.New(".")

	// Load default configuration first
	if err := k.Load(structs.Provider(DefaultAppConfig(), "koanf"), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load default config: %w", err)
	}

	if configFilePath != "" {
		if _, err := os.Stat(configFilePath); err != nil {
			return AppConfig{}, fmt.Errorf("specified config file %s not found: %w", configFilePath, err)
		}
		if err := k.Load(file.Provider(configFilePath), parserFor(configFilePath)); err != nil {
			return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
		}
	} else {
		for _, configFile := range []string{"config.yaml", "config.yml", "config.json"} {
			if _, err := os.Stat(configFile); err == nil {
				if err := k.Load(file.Provider(configFile), parserFor(configFile)); err != nil {
					return AppConfig{}, fmt.Errorf("failed to load config file %s: %w", configFile, err)
				}
				break
			}
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", envKeyValue), nil); err != nil {
		return AppConfig{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	warnings := repairExpirations(k)

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyBackendDefaults(&cfg)
	cfg.Warnings = append(warnings, danglingBackendRefs(&cfg)...)

	if err := Validate(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func parserFor(path string) koanf.Parser {
	switch {
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return yaml.Parser()
	case strings.HasSuffix(path, ".json"):
		return json.Parser()
	default:
		return yaml.Parser()
	}
}

// envKeyValue maps LFSAUTH_FS__ARCHIVE__DIRECTORY to fs.archive.directory
func envKeyValue(key, value string) (string, interface{}) {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	key = strings.ReplaceAll(key, "__", ".")
	if listKeys[key] {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return key, items
	}
	return key, value
}

// repairExpirations replaces malformed or non-positive expiry settings with their
// defaults so a typo does not take the service down.
func repairExpirations(k *koanf.Koanf) []string {
	var warnings []string
	repair := func(key string, def int) {
		if !k.Exists(key) {
			k.Set(key, def)
			return
		}
		raw := k.Get(key)
		if n, ok := asInt(raw); ok && n > 0 {
			k.Set(key, n)
			return
		}
		warnings = append(warnings,
			fmt.Sprintf("invalid value %v for %s, using default %d", raw, key, def))
		k.Set(key, def)
	}

	repair("auth.ssh_expiration_seconds", DefaultSSHExpirationSeconds)
	for _, name := range sortedKeys(k.MapKeys("fs")) {
		repair("fs."+name+".expiration_seconds", DefaultFSExpirationSeconds)
	}
	for _, name := range sortedKeys(k.MapKeys("s3")) {
		repair("s3."+name+".expiration_seconds", DefaultS3ExpirationSeconds)
	}
	return warnings
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}

func applyBackendDefaults(cfg *AppConfig) {
	if cfg.FS == nil {
		cfg.FS = make(map[string]FSBackendConfig)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]S3BackendConfig)
	}
	for name, s3cfg := range cfg.S3 {
		if s3cfg.StorageClass == "" {
			s3cfg.StorageClass = DefaultS3StorageClass
			cfg.S3[name] = s3cfg
		}
	}
	cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(cfg.Storage.Backend))
}

// danglingBackendRefs reports namespace and project entries naming backends that
// are not configured. They fail at resolution time rather than at startup.
func danglingBackendRefs(cfg *AppConfig) []string {
	var warnings []string
	for i, ns := range cfg.LFS.Namespaces {
		if !cfg.HasBackend(ns.Backend) {
			warnings = append(warnings,
				fmt.Sprintf("lfs.namespaces[%d] (%s) references unknown backend %q", i, ns.Pattern, ns.Backend))
		}
	}
	for i, p := range cfg.LFS.Projects {
		if !cfg.HasBackend(p.Backend) {
			warnings = append(warnings,
				fmt.Sprintf("lfs.projects[%d] (%s) references unknown backend %q", i, p.Name, p.Backend))
		}
	}
	return warnings
}

// HasBackend reports whether name is empty, the default, or a configured fs/s3 backend
func (c *AppConfig) HasBackend(name string) bool {
	if name == "" || name == DefaultBackendKey {
		return true
	}
	_, fs := c.FS[name]
	_, s3 := c.S3[name]
	return fs || s3
}

// Validate checks required fields and reports every problem found
func Validate(cfg *AppConfig) error {
	var result *multierror.Error

	if cfg.Server.ListenAddr == "" {
		result = multierror.Append(result, errors.New("server.listen_addr is required"))
	}
	if u, err := url.Parse(cfg.Server.ExternalURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		result = multierror.Append(result,
			fmt.Errorf("server.external_url must be an absolute http(s) URL, got %q", cfg.Server.ExternalURL))
	}
	if (cfg.Server.CertFile == "") != (cfg.Server.KeyFile == "") {
		result = multierror.Append(result, errors.New("server.cert_file and server.key_file must be set together"))
	}

	if len(cfg.Auth.APIKeys) == 0 {
		result = multierror.Append(result, errors.New("auth.api_keys must contain at least one key"))
	}

	switch cfg.Storage.Backend {
	case "fs", "s3":
	default:
		result = multierror.Append(result,
			fmt.Errorf("storage.backend must be \"fs\" or \"s3\", got %q", cfg.Storage.Backend))
	}

	for _, name := range sortedKeys(mapKeys(cfg.FS)) {
		if _, dup := cfg.S3[name]; dup && name != DefaultBackendKey {
			result = multierror.Append(result,
				fmt.Errorf("backend %q is configured as both fs and s3", name))
		}
		if cfg.FS[name].Directory == "" && cfg.Storage.DataDir == "" {
			result = multierror.Append(result,
				fmt.Errorf("fs.%s.directory is required when storage.data_dir is empty", name))
		}
	}
	for _, name := range sortedKeys(mapKeys(cfg.S3)) {
		s3cfg := cfg.S3[name]
		if s3cfg.Bucket == "" {
			result = multierror.Append(result, fmt.Errorf("s3.%s.bucket is required", name))
		}
		if s3cfg.Region == "" {
			result = multierror.Append(result, fmt.Errorf("s3.%s.region is required", name))
		}
	}
	if cfg.Storage.Backend == "s3" {
		if _, ok := cfg.S3[DefaultBackendKey]; !ok {
			result = multierror.Append(result,
				errors.New("s3.default must be configured when storage.backend is s3"))
		}
	}
	if cfg.Storage.Backend == "fs" && cfg.Storage.DataDir == "" && cfg.FS[DefaultBackendKey].Directory == "" {
		result = multierror.Append(result,
			errors.New("storage.data_dir or fs.default.directory is required when storage.backend is fs"))
	}

	for i, ns := range cfg.LFS.Namespaces {
		if strings.TrimSpace(ns.Pattern) == "" {
			result = multierror.Append(result, fmt.Errorf("lfs.namespaces[%d].pattern is required", i))
		}
		if ns.MaxObjectSize < 0 {
			result = multierror.Append(result,
				fmt.Errorf("lfs.namespaces[%d].max_object_size must not be negative", i))
		}
	}
	for i, p := range cfg.LFS.Projects {
		if p.Name == "" {
			result = multierror.Append(result, fmt.Errorf("lfs.projects[%d].name is required", i))
		}
	}

	return result.ErrorOrNil()
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
