package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/ledger"
	"github.com/stretchr/testify/require"
)

// RequireValidProject asserts that a project structure is correctly initialized
func RequireValidProject(t *testing.T, projectDir string) {
	t.Helper()

	require.FileExists(t, filepath.Join(projectDir, "changekeeper.yaml"), "changekeeper.yaml should exist")
	require.FileExists(t, filepath.Join(projectDir, "db", "changelog.yaml"), "changelog.yaml should exist")
	require.DirExists(t, filepath.Join(projectDir, "db", "migrations"), "migrations directory should exist")
}

// RequireApplied asserts that exactly the given migration ids are recorded in
// the fixture's ledger.
func (p *ProjectFixture) RequireApplied(ids ...int64) {
	p.t.Helper()

	ctx := context.Background()
	client, err := database.Open(ctx, p.Config.Database.Driver, p.Config.Database.DSN)
	require.NoError(p.t, err)
	defer client.Close()

	led := ledger.New(client, ledger.WithTable(p.Config.Ledger.Table))
	exists, err := led.Exists(ctx)
	require.NoError(p.t, err)

	if len(ids) == 0 && !exists {
		return
	}
	require.True(p.t, exists, "ledger table should exist")

	applied, err := led.LoadAll(ctx)
	require.NoError(p.t, err)

	var got []int64
	for _, entry := range applied.Entries() {
		got = append(got, entry.MigrationID)
	}

	require.ElementsMatch(p.t, ids, got, "applied migrations")
}
