package storage

import (
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tmp := t.TempDir()

	tests := []struct {
		name        string
		cfg         Config
		wantBackend string
		wantRoot    func(string) bool
		wantField   string
	}{
		{name: "empty backend means none", cfg: Config{}, wantBackend: BackendNone},
		{name: "none ignores the rest", cfg: Config{Backend: "NONE", WorkspaceRoot: "rel"}, wantBackend: BackendNone},
		{
			name:        "case and space insensitive",
			cfg:         Config{Backend: " Local ", WorkspaceRoot: tmp},
			wantBackend: BackendLocal,
			wantRoot:    func(r string) bool { return r == tmp },
		},
		{
			name:        "tilde expanded",
			cfg:         Config{Backend: BackendLocal, WorkspaceRoot: "~/framecast-archive"},
			wantBackend: BackendLocal,
			wantRoot:    func(r string) bool { return filepath.IsAbs(r) && filepath.Base(r) == "framecast-archive" },
		},
		{
			name:        "relative made absolute",
			cfg:         Config{Backend: BackendLocal, WorkspaceRoot: "relative/path"},
			wantBackend: BackendLocal,
			wantRoot:    filepath.IsAbs,
		},
		{
			name:        "postgres with url",
			cfg:         Config{Backend: "postgres", DatabaseURL: "postgres://localhost/framecast"},
			wantBackend: BackendPostgres,
		},
		{name: "postgres without url", cfg: Config{Backend: BackendPostgres, DatabaseURL: "  "}, wantField: "database_url"},
		{name: "unknown backend", cfg: Config{Backend: "s3"}, wantField: "backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Validate()
			if tt.wantField != "" {
				var in *InvalidInputError
				require.ErrorAs(t, err, &in)
				assert.Equal(t, tt.wantField, in.Field)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBackend, cfg.Backend)
			if tt.wantRoot != nil {
				assert.True(t, tt.wantRoot(cfg.WorkspaceRoot), cfg.WorkspaceRoot)
			}
		})
	}
}

func TestConfig_Validate_DefaultsLocalRoot(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG layout only applies on linux")
	}
	dir := t.TempDir()
	t.Setenv("XDG_DATA_HOME", dir)

	cfg := Config{Backend: BackendLocal}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join(dir, "framecast"), cfg.WorkspaceRoot)
}

func TestDefaultWorkspaceRoot(t *testing.T) {
	root, err := DefaultWorkspaceRoot()
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(root))
	assert.Contains(t, []string{"framecast", "Framecast"}, filepath.Base(root))
}
