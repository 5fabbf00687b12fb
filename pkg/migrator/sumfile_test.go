package migrator_test

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	. "github.com/pseudomuto/changekeeper/pkg/migrator"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

var sumFS = fstest.MapFS{
	"migrations/0001_create_users.sql": {Data: []byte("CREATE TABLE users (id INTEGER PRIMARY KEY, email TEXT NOT NULL);\n")},
	"migrations/0002_seed_admin.sql":   {Data: []byte("INSERT INTO users (id, email) VALUES (1, 'admin@example.com');\n")},
}

var sumDescriptors = []Descriptor{
	{ID: 1, Locator: "migrations/0001_create_users.sql"},
	{ID: 2, Locator: "migrations/0002_seed_admin.sql"},
}

func TestSumFile(t *testing.T) {
	t.Run("NewSumFile creates empty structure", func(t *testing.T) {
		sum := NewSumFile()
		require.NotNil(t, sum)
		require.Equal(t, 0, sum.Len())
		require.Empty(t, sum.TotalHash)
	})

	t.Run("WriteTo matches golden output", func(t *testing.T) {
		sum, err := BuildSumFile(sumFS, sumDescriptors)
		require.NoError(t, err)
		require.Equal(t, 2, sum.Len())

		var buf bytes.Buffer
		n, err := sum.WriteTo(&buf)
		require.NoError(t, err)
		require.Equal(t, int64(buf.Len()), n)
		require.True(t, strings.HasPrefix(sum.TotalHash, "h1:"))

		golden.Assert(t, buf.String(), "changelog.sum")
	})

	t.Run("empty sum file is a single newline", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := NewSumFile().WriteTo(&buf)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)
		require.Equal(t, "\n", buf.String())
	})

	t.Run("declaration order changes the total hash", func(t *testing.T) {
		forward, err := BuildSumFile(sumFS, sumDescriptors)
		require.NoError(t, err)

		reversed, err := BuildSumFile(sumFS, []Descriptor{sumDescriptors[1], sumDescriptors[0]})
		require.NoError(t, err)

		var a, b bytes.Buffer
		_, err = forward.WriteTo(&a)
		require.NoError(t, err)
		_, err = reversed.WriteTo(&b)
		require.NoError(t, err)

		require.NotEqual(t, forward.TotalHash, reversed.TotalHash)
	})

	t.Run("BuildSumFile reports missing content with the migration id", func(t *testing.T) {
		_, err := BuildSumFile(sumFS, []Descriptor{{ID: 7, Locator: "missing.sql"}})

		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		require.Equal(t, int64(7), nf.MigrationID)
		require.Equal(t, "missing.sql", nf.Locator)
	})
}

func TestLoadSumFile(t *testing.T) {
	t.Run("round trips the golden file", func(t *testing.T) {
		sum, err := LoadSumFile(bytes.NewReader(golden.Get(t, "changelog.sum")))
		require.NoError(t, err)
		require.Equal(t, "h1:ZKvActLHOyawemROxNWffJk6pTqrkjvYGI+4oX01heY=", sum.TotalHash)
		require.Equal(t, []SumEntry{
			{ID: 1, Locator: "migrations/0001_create_users.sql", Fingerprint: "e5798479aff139d3ab019665a17ef53b226773ced4aee85a1be5a29ded690932"},
			{ID: 2, Locator: "migrations/0002_seed_admin.sql", Fingerprint: "0585f0adb84d26291029666897c09dca34c20f8be58ec9b316b48e2b89c1f607"},
		}, sum.Entries())
	})

	t.Run("empty input", func(t *testing.T) {
		sum, err := LoadSumFile(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, 0, sum.Len())
	})

	tests := []struct {
		name    string
		input   string
		wantErr string
	}{
		{
			name:    "bad total prefix",
			input:   "sha:abc\n",
			wantErr: "invalid total hash format",
		},
		{
			name:    "entry with a short fingerprint",
			input:   "h1:abc\n1 migrations/0001.sql abc123\n",
			wantErr: "invalid fingerprint",
		},
		{
			name:    "entry with a bad id",
			input:   "h1:abc\none migrations/0001.sql e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n",
			wantErr: "invalid migration id",
		},
		{
			name:    "single field",
			input:   "h1:abc\ngarbage\n",
			wantErr: "invalid sum entry",
		},
		{
			name:    "total hash does not match entries",
			input:   "h1:abc\n1 empty.sql e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855\n",
			wantErr: "does not match its entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSumFile(strings.NewReader(tt.input))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSumFile_Verify(t *testing.T) {
	pinned, err := BuildSumFile(sumFS, sumDescriptors)
	require.NoError(t, err)

	t.Run("unchanged content passes", func(t *testing.T) {
		require.NoError(t, pinned.Verify(sumFS, sumDescriptors))
	})

	t.Run("modified content fails", func(t *testing.T) {
		fsys := fstest.MapFS{
			"migrations/0001_create_users.sql": sumFS["migrations/0001_create_users.sql"],
			"migrations/0002_seed_admin.sql":   {Data: []byte("INSERT INTO users (id, email) VALUES (2, 'root@example.com');\n")},
		}

		err := pinned.Verify(fsys, sumDescriptors)

		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Contains(t, err.Error(), "migration 2 (migrations/0002_seed_admin.sql) changed")
	})

	t.Run("added migration fails", func(t *testing.T) {
		fsys := fstest.MapFS{
			"migrations/0001_create_users.sql": sumFS["migrations/0001_create_users.sql"],
			"migrations/0002_seed_admin.sql":   sumFS["migrations/0002_seed_admin.sql"],
			"migrations/0003_more.sql":         {Data: []byte("SELECT 1;")},
		}

		err := pinned.Verify(fsys, append(sumDescriptors, Descriptor{ID: 3, Locator: "migrations/0003_more.sql"}))
		require.Error(t, err)
		require.Contains(t, err.Error(), "migration 3 (migrations/0003_more.sql) is not in the sum file")
	})

	t.Run("removed migration fails", func(t *testing.T) {
		err := pinned.Verify(sumFS, sumDescriptors[:1])
		require.Error(t, err)
		require.Contains(t, err.Error(), "migration 2 (migrations/0002_seed_admin.sql) is in the sum file but not in the changelog")
	})

	t.Run("reordered migrations fail", func(t *testing.T) {
		err := pinned.Verify(sumFS, []Descriptor{sumDescriptors[1], sumDescriptors[0]})
		require.Error(t, err)
		require.Contains(t, err.Error(), "moved or changed locator")
	})
}
