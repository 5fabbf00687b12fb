package docker_test

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/pseudomuto/changekeeper/pkg/docker"
	"github.com/pseudomuto/changekeeper/pkg/executor"
	"github.com/pseudomuto/changekeeper/pkg/ledger"
	"github.com/pseudomuto/changekeeper/pkg/migrator"
	"github.com/stretchr/testify/require"
)

// skipIfNoDocker skips the test if Docker is not available
func skipIfNoDocker(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping Docker tests in short mode")
	}

	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("Docker not available")
	}

	if err := exec.Command("docker", "ps").Run(); err != nil {
		t.Skip("Docker daemon not running")
	}
}

func startPostgres(t *testing.T) *docker.Container {
	t.Helper()
	skipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container := docker.New()
	require.NoError(t, container.Start(ctx))
	t.Cleanup(func() { _ = container.Stop(context.Background()) })

	return container
}

func TestContainer_NotRunning(t *testing.T) {
	container := docker.New()
	require.False(t, container.IsRunning())

	_, err := container.GetDSN(context.Background())
	require.ErrorContains(t, err, "container is not running")

	require.NoError(t, container.Stop(context.Background()), "stopping a stopped container is a no-op")
}

func TestContainer_StartStop(t *testing.T) {
	container := startPostgres(t)
	ctx := context.Background()

	require.True(t, container.IsRunning())
	require.ErrorContains(t, container.Start(ctx), "already running")

	dsn, err := container.GetDSN(ctx)
	require.NoError(t, err)
	require.Contains(t, dsn, "postgres://changekeeper:changekeeper@")
	require.Contains(t, dsn, "sslmode=disable")

	client, err := container.Open(ctx)
	require.NoError(t, err)
	defer client.Close()

	version, err := client.Version(ctx)
	require.NoError(t, err)
	require.True(t, version.IsAtLeast(16, 0), version.Raw)

	require.NoError(t, container.Stop(ctx))
	require.False(t, container.IsRunning())
}

func TestPostgres_Migrations(t *testing.T) {
	container := startPostgres(t)
	ctx := context.Background()

	fsys := fstest.MapFS{
		"changelog.yaml": {Data: []byte("- id: 1\n  file_path: a.sql\n- id: 2\n  file_path: b.sql\n- id: 3\n  file_path: c.sql\n")},
		"a.sql":          {Data: []byte("CREATE TABLE accounts (id BIGSERIAL PRIMARY KEY, email TEXT NOT NULL);")},
		"b.sql":          {Data: []byte("INSERT INTO accounts (email) VALUES ('a@example.com');\nINSERT INTO accounts (email) VALUES ('b@example.com');")},
		"c.sql":          {Data: []byte("CREATE INDEX accounts_email ON accounts (email);")},
	}

	newExecutor := func(t *testing.T, client *database.Client) *executor.Executor {
		t.Helper()

		runner, err := executor.New(executor.Config{
			DB:        client,
			Ledger:    ledger.New(client),
			Locker:    client.NewLocker(ledger.DefaultTable, time.Minute),
			Changelog: migrator.FileChangelog{FS: fsys, Path: "changelog.yaml"},
			FS:        fsys,
		})
		require.NoError(t, err)
		return runner
	}

	t.Run("concurrent runners apply each migration once", func(t *testing.T) {
		const runners = 4

		var (
			wg      sync.WaitGroup
			reports = make([]*executor.Report, runners)
			errs    = make([]error, runners)
		)

		for i := range runners {
			client, err := container.Open(ctx)
			require.NoError(t, err)
			t.Cleanup(func() { _ = client.Close() })

			runner := newExecutor(t, client)

			wg.Add(1)
			go func() {
				defer wg.Done()
				reports[i], errs[i] = runner.Run(ctx)
			}()
		}
		wg.Wait()

		committed := 0
		for i := range runners {
			require.NoError(t, errs[i])
			committed += reports[i].Count(executor.StatusCommitted)
		}
		require.Equal(t, 3, committed)
	})

	t.Run("failed migration leaves no trace", func(t *testing.T) {
		fsys["changelog.yaml"] = &fstest.MapFile{Data: []byte("- id: 1\n  file_path: a.sql\n- id: 2\n  file_path: b.sql\n- id: 3\n  file_path: c.sql\n- id: 4\n  file_path: d.sql\n")}
		fsys["d.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE audit (id INT);\nINSERT INTO missing_table VALUES (1);")}

		client, err := container.Open(ctx)
		require.NoError(t, err)
		defer client.Close()

		report, err := newExecutor(t, client).Run(ctx)
		require.Error(t, err)
		require.Equal(t, executor.ReasonExecutionFailure, report.Failure.Reason)
		require.Equal(t, int64(4), report.Failure.MigrationID)

		applied, err := ledger.New(client).LoadAll(ctx)
		require.NoError(t, err)
		require.Equal(t, 3, applied.Count())

		rows, err := client.QueryContext(ctx, "SELECT to_regclass('audit') IS NULL")
		require.NoError(t, err)
		defer rows.Close()

		var missing bool
		require.True(t, rows.Next())
		require.NoError(t, rows.Scan(&missing))
		require.True(t, missing, "DDL of the failed migration is rolled back")
	})

	t.Run("mixed case ledger table", func(t *testing.T) {
		client, err := container.Open(ctx)
		require.NoError(t, err)
		defer client.Close()

		l := ledger.New(client, ledger.WithTable("SchemaHistory"))
		require.NoError(t, l.EnsureSchema(ctx))

		exists, err := l.Exists(ctx)
		require.NoError(t, err)
		require.True(t, exists)
	})
}
