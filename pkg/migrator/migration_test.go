package migrator_test

import (
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
	"github.com/stretchr/testify/require"
)

func TestLoadMigration(t *testing.T) {
	fsys := fstest.MapFS{
		"a.sql":              {Data: []byte("CREATE TABLE t(x int);")},
		"b.sql":              {Data: []byte("INSERT INTO t VALUES (1);")},
		"empty.sql":          {Data: []byte{}},
		"migrations/ü.sql":   {Data: []byte("INSERT INTO t VALUES ('über');")},
		"migrations/bom.sql": {Data: []byte("\xef\xbb\xbfSELECT 1;")},
	}

	tests := []struct {
		name        string
		descriptor  migrator.Descriptor
		fingerprint string
		statements  []string
	}{
		{
			name:        "single statement",
			descriptor:  migrator.Descriptor{ID: 1, Locator: "a.sql"},
			fingerprint: migrator.Fingerprint([]byte("CREATE TABLE t(x int);")),
			statements:  []string{"CREATE TABLE t(x int)"},
		},
		{
			name:        "empty content",
			descriptor:  migrator.Descriptor{ID: 2, Locator: "empty.sql"},
			fingerprint: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
			statements:  []string{},
		},
		{
			name:        "unicode content",
			descriptor:  migrator.Descriptor{ID: 3, Locator: "migrations/ü.sql"},
			fingerprint: migrator.Fingerprint([]byte("INSERT INTO t VALUES ('über');")),
			statements:  []string{"INSERT INTO t VALUES ('über')"},
		},
		{
			name:        "byte order mark is kept",
			descriptor:  migrator.Descriptor{ID: 4, Locator: "migrations/bom.sql"},
			fingerprint: migrator.Fingerprint([]byte("\xef\xbb\xbfSELECT 1;")),
			statements:  []string{"\xef\xbb\xbfSELECT 1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := migrator.LoadMigration(fsys, tt.descriptor)
			require.NoError(t, err)
			require.Equal(t, tt.descriptor, m.Descriptor)
			require.Equal(t, tt.fingerprint, m.Fingerprint)
			require.Equal(t, migrator.Fingerprint(m.Content), m.Fingerprint)

			stmts, err := m.Statements(migrator.NaiveSplitter{})
			require.NoError(t, err)
			require.Equal(t, tt.statements, stmts)
		})
	}

	t.Run("missing content reports the migration id", func(t *testing.T) {
		_, err := migrator.LoadMigration(fsys, migrator.Descriptor{ID: 1, Locator: "missing.sql"})

		var nf *migrator.NotFoundError
		require.ErrorAs(t, err, &nf)
		require.Equal(t, int64(1), nf.MigrationID)
		require.Equal(t, "missing.sql", nf.Locator)
		require.Contains(t, err.Error(), "migration 1: content not found at missing.sql")
	})
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"a.sql": {Data: []byte("CREATE TABLE t(x int);")},
		"b.sql": {Data: []byte("INSERT INTO t VALUES (1);")},
	}

	t.Run("preserves order", func(t *testing.T) {
		migrations, err := migrator.LoadMigrations(fsys, []migrator.Descriptor{
			{ID: 2, Locator: "b.sql"},
			{ID: 1, Locator: "a.sql"},
		})
		require.NoError(t, err)
		require.Len(t, migrations, 2)
		require.Equal(t, int64(2), migrations[0].ID)
		require.Equal(t, int64(1), migrations[1].ID)
	})

	t.Run("stops at the first missing file", func(t *testing.T) {
		_, err := migrator.LoadMigrations(fsys, []migrator.Descriptor{
			{ID: 1, Locator: "a.sql"},
			{ID: 2, Locator: "missing.sql"},
			{ID: 3, Locator: "also-missing.sql"},
		})

		var nf *migrator.NotFoundError
		require.ErrorAs(t, err, &nf)
		require.Equal(t, int64(2), nf.MigrationID)
	})
}

func TestMigration_Statements(t *testing.T) {
	m := &migrator.Migration{
		Descriptor: migrator.Descriptor{ID: 9, Locator: "bad.sql"},
		Content:    []byte("INSERT INTO t VALUES ('unterminated);"),
	}

	_, err := m.Statements(migrator.LexicalSplitter{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to split migration 9 (bad.sql)")

	stmts, err := m.Statements(migrator.NaiveSplitter{})
	require.NoError(t, err)
	require.Equal(t, []string{"INSERT INTO t VALUES ('unterminated)"}, stmts)
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "config without path",
			err:  &migrator.ConfigError{Err: cause},
			want: "invalid changelog: boom",
		},
		{
			name: "config with path",
			err:  &migrator.ConfigError{Path: "changelog.yaml", Err: cause},
			want: "invalid changelog changelog.yaml: boom",
		},
		{
			name: "drift",
			err:  &migrator.DriftError{MigrationID: 1, Locator: "a.sql", Recorded: "aaa", Current: "bbb"},
			want: "migration 1 (a.sql) has been modified after it was applied: recorded fingerprint aaa, current bbb",
		},
		{
			name: "execution at a statement",
			err:  &migrator.ExecutionError{MigrationID: 2, Locator: "b.sql", Statement: 3, Err: cause},
			want: "migration 2 (b.sql) failed at statement 3: boom",
		},
		{
			name: "execution outside a statement",
			err:  &migrator.ExecutionError{MigrationID: 2, Locator: "b.sql", Err: cause},
			want: "migration 2 (b.sql) failed: boom",
		},
		{
			name: "ledger with migration",
			err:  &migrator.LedgerError{Op: "record", MigrationID: 4, HasMigration: true, Err: cause},
			want: "ledger: record (migration 4): boom",
		},
		{
			name: "ledger with migration zero",
			err:  &migrator.LedgerError{Op: "record", MigrationID: 0, HasMigration: true, Err: cause},
			want: "ledger: record (migration 0): boom",
		},
		{
			name: "ledger without migration",
			err:  &migrator.LedgerError{Op: "load", Err: cause},
			want: "ledger: load: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
			if tt.name != "drift" {
				require.ErrorIs(t, tt.err, cause)
				require.Equal(t, cause, errors.Cause(tt.err))
			}
		})
	}
}
