package migrator_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	. "github.com/pseudomuto/changekeeper/pkg/migrator"
	"github.com/stretchr/testify/require"
)

func TestLoadChangelog(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []Descriptor
		wantErr string
	}{
		{
			name: "file_path records",
			input: `
- id: 1
  file_path: migrations/0001_create_users.sql
- id: 2
  file_path: migrations/0002_seed.sql
`,
			want: []Descriptor{
				{ID: 1, Locator: "migrations/0001_create_users.sql"},
				{ID: 2, Locator: "migrations/0002_seed.sql"},
			},
		},
		{
			name: "declaration order is preserved over numeric order",
			input: `
- id: 20
  file_path: b.sql
- id: 3
  locator: a.sql
- id: 11
  file_path: c.sql
  locator: c.sql
`,
			want: []Descriptor{
				{ID: 20, Locator: "b.sql"},
				{ID: 3, Locator: "a.sql"},
				{ID: 11, Locator: "c.sql"},
			},
		},
		{
			name:  "json document",
			input: `[{"id": 1, "file_path": "a.sql"}, {"id": 2, "file_path": "b.sql"}]`,
			want: []Descriptor{
				{ID: 1, Locator: "a.sql"},
				{ID: 2, Locator: "b.sql"},
			},
		},
		{
			name:  "empty sequence",
			input: "[]",
			want:  []Descriptor{},
		},
		{
			name:    "empty document",
			input:   "",
			wantErr: "changelog document is empty",
		},
		{
			name:    "not a sequence",
			input:   "id: 1\nfile_path: a.sql\n",
			wantErr: "must be a sequence of migrations",
		},
		{
			name:    "scalar record",
			input:   "- a.sql\n",
			wantErr: "must be a mapping",
		},
		{
			name:    "missing id",
			input:   "- file_path: a.sql\n",
			wantErr: "missing id",
		},
		{
			name:    "non integer id",
			input:   "- id: one\n  file_path: a.sql\n",
			wantErr: "failed to decode migration",
		},
		{
			name:  "zero and negative ids",
			input: "- id: 0\n  file_path: a.sql\n- id: -5\n  file_path: b.sql\n",
			want: []Descriptor{
				{ID: 0, Locator: "a.sql"},
				{ID: -5, Locator: "b.sql"},
			},
		},
		{
			name:    "missing locator",
			input:   "- id: 1\n",
			wantErr: "migration 1 is missing file_path",
		},
		{
			name:    "conflicting locators",
			input:   "- id: 1\n  file_path: a.sql\n  locator: b.sql\n",
			wantErr: "declares both",
		},
		{
			name:    "absolute locator",
			input:   "- id: 1\n  file_path: /etc/passwd\n",
			wantErr: "invalid file_path",
		},
		{
			name:    "locator escaping the changelog directory",
			input:   "- id: 1\n  file_path: ../secrets.sql\n",
			wantErr: "invalid file_path",
		},
		{
			name:    "duplicate ids",
			input:   "- id: 1\n  file_path: a.sql\n- id: 2\n  file_path: b.sql\n- id: 1\n  file_path: c.sql\n",
			wantErr: "duplicate migration id 1 in entries 1 and 3",
		},
		{
			name:    "malformed yaml",
			input:   "- id: [1\n",
			wantErr: "failed to parse changelog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadChangelog(strings.NewReader(tt.input))
			if tt.wantErr != "" {
				var cfgErr *ConfigError
				require.ErrorAs(t, err, &cfgErr)
				require.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFileChangelog_Load(t *testing.T) {
	fsys := fstest.MapFS{
		"changelog.yaml": {Data: []byte("- id: 1\n  file_path: a.sql\n")},
		"broken.yaml":    {Data: []byte("- id: 1\n")},
	}

	t.Run("valid changelog", func(t *testing.T) {
		got, err := FileChangelog{FS: fsys, Path: "changelog.yaml"}.Load()
		require.NoError(t, err)
		require.Equal(t, []Descriptor{{ID: 1, Locator: "a.sql"}}, got)
	})

	t.Run("missing changelog", func(t *testing.T) {
		_, err := FileChangelog{FS: fsys, Path: "nope.yaml"}.Load()

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "nope.yaml", cfgErr.Path)
		require.Contains(t, err.Error(), "failed to read changelog")
	})

	t.Run("invalid changelog carries its path", func(t *testing.T) {
		_, err := FileChangelog{FS: fsys, Path: "broken.yaml"}.Load()

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Equal(t, "broken.yaml", cfgErr.Path)
		require.Contains(t, err.Error(), "invalid changelog broken.yaml")
	})
}

func TestAppendDescriptor(t *testing.T) {
	t.Run("appends to an existing changelog", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "changelog.yaml")
		require.NoError(t, os.WriteFile(file, []byte("# managed by changekeeper\n- id: 1\n  file_path: a.sql\n"), 0o600))

		require.NoError(t, AppendDescriptor(file, Descriptor{ID: 2, Locator: "migrations/0002_b.sql"}))

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		require.Contains(t, string(data), "# managed by changekeeper")

		got, err := LoadChangelog(strings.NewReader(string(data)))
		require.NoError(t, err)
		require.Equal(t, []Descriptor{
			{ID: 1, Locator: "a.sql"},
			{ID: 2, Locator: "migrations/0002_b.sql"},
		}, got)

		info, err := os.Stat(file)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("appends to an empty file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "changelog.yaml")
		require.NoError(t, os.WriteFile(file, nil, 0o644))

		require.NoError(t, AppendDescriptor(file, Descriptor{ID: 1, Locator: "a.sql"}))

		data, err := os.ReadFile(file)
		require.NoError(t, err)

		got, err := LoadChangelog(strings.NewReader(string(data)))
		require.NoError(t, err)
		require.Equal(t, []Descriptor{{ID: 1, Locator: "a.sql"}}, got)
	})

	t.Run("appends to a flow sequence", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "changelog.yaml")
		require.NoError(t, os.WriteFile(file, []byte("[]\n"), 0o644))

		require.NoError(t, AppendDescriptor(file, Descriptor{ID: 5, Locator: "e.sql"}))

		data, err := os.ReadFile(file)
		require.NoError(t, err)
		require.Equal(t, "- id: 5\n  file_path: e.sql\n", string(data))
	})

	t.Run("rejects a non sequence changelog", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "changelog.yaml")
		require.NoError(t, os.WriteFile(file, []byte("id: 1\n"), 0o644))

		err := AppendDescriptor(file, Descriptor{ID: 2, Locator: "b.sql"})

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})

	t.Run("missing file", func(t *testing.T) {
		err := AppendDescriptor(filepath.Join(t.TempDir(), "nope.yaml"), Descriptor{ID: 1, Locator: "a.sql"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read changelog")
	})
}

func TestNextID(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []Descriptor
		want        int64
	}{
		{name: "empty changelog", want: 1},
		{name: "sequential", descriptors: []Descriptor{{ID: 1}, {ID: 2}}, want: 3},
		{name: "out of order", descriptors: []Descriptor{{ID: 10}, {ID: 4}}, want: 11},
		{name: "non-positive ids", descriptors: []Descriptor{{ID: 0}, {ID: -5}}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NextID(tt.descriptors))
		})
	}
}
