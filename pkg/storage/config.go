package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Backend names accepted in Config.Backend.
const (
	BackendNone     = "none"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
)

// Config is the storage.* section as NewBackend consumes it.
type Config struct {
	Backend       string // none, local or postgres; empty means none
	WorkspaceRoot string // local backend root; defaults to DefaultWorkspaceRoot
	DatabaseURL   string // postgres connection string
}

// Validate normalises c in place. The backend name is lower-cased, a
// local root is defaulted, expanded and made absolute.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case "", BackendNone:
		c.Backend = BackendNone
	case BackendLocal:
		root, err := resolveRoot(c.WorkspaceRoot)
		if err != nil {
			return err
		}
		c.WorkspaceRoot = root
	case BackendPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return NewInvalidInputError("database_url", "required for the postgres backend")
		}
	default:
		return NewInvalidInputError("backend", fmt.Sprintf("unknown backend %q", c.Backend))
	}
	return nil
}

func resolveRoot(root string) (string, error) {
	if root == "" {
		return DefaultWorkspaceRoot()
	}
	if rest, ok := strings.CutPrefix(root, "~/"); ok {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand workspace root: %w", err)
		}
		root = filepath.Join(home, rest)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", NewInvalidInputError("workspace_root", err.Error())
	}
	return abs, nil
}

// DefaultWorkspaceRoot is the per-user data directory:
//
//	Linux    $XDG_DATA_HOME/framecast (~/.local/share/framecast)
//	macOS    ~/Library/Application Support/Framecast
//	Windows  %AppData%\Framecast
func DefaultWorkspaceRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, "Framecast"), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Framecast"), nil
	}
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "framecast"), nil
}
