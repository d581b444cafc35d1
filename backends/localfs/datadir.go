package localfs

import (
	"fmt"
	"os"

	"github.com/ebogdum/lfsauth/config"
)

// ResolveDataDirectory returns the directory a filesystem backend stores objects in.
// A backend without its own directory uses the shared default.
func ResolveDataDirectory(cfg config.FSBackendConfig, defaultDir string) string {
	if cfg.Directory != "" {
		return cfg.Directory
	}
	return defaultDir
}

// EnsureDataDirectory creates dir when missing and checks that it is a readable directory
func EnsureDataDirectory(dir string) error {
	if dir == "" {
		return fmt.Errorf("data directory is not configured")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("data directory %s is not accessible: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data directory %s is not a directory", dir)
	}

	f, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("data directory %s is not readable: %w", dir, err)
	}
	return f.Close()
}
