package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/changekeeper/pkg/database"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

const (
	// DefaultPostgresVersion is the image tag used when none is specified.
	DefaultPostgresVersion = "16-alpine"

	defaultDatabase = "changekeeper"
	defaultUsername = "changekeeper"
	defaultPassword = "changekeeper"
)

type (
	// DockerOptions represents options for running PostgreSQL in Docker.
	DockerOptions struct {
		// Version is the postgres image tag (default: 16-alpine).
		Version string

		// Database, Username and Password default to "changekeeper".
		Database string
		Username string
		Password string

		// InitScripts are run by the image's entrypoint before the container
		// reports ready.
		InitScripts []string
	}

	// Container manages a disposable PostgreSQL container for migration testing.
	Container struct {
		options   DockerOptions
		container *postgres.PostgresContainer
	}
)

// New creates a new Docker container with default options.
//
// Example:
//
//	container := docker.New()
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer container.Stop(ctx)
//
//	client, err := container.Open(ctx)
func New() *Container {
	return NewWithOptions(DockerOptions{})
}

// NewWithOptions creates a new Docker container with custom options.
func NewWithOptions(opts DockerOptions) *Container {
	if opts.Version == "" {
		opts.Version = DefaultPostgresVersion
	}
	if opts.Database == "" {
		opts.Database = defaultDatabase
	}
	if opts.Username == "" {
		opts.Username = defaultUsername
	}
	if opts.Password == "" {
		opts.Password = defaultPassword
	}

	return &Container{options: opts}
}

// Start starts the container and waits until PostgreSQL accepts connections.
func (c *Container) Start(ctx context.Context) error {
	if c.container != nil {
		return errors.New("container is already running")
	}

	customizers := []testcontainers.ContainerCustomizer{
		postgres.WithDatabase(c.options.Database),
		postgres.WithUsername(c.options.Username),
		postgres.WithPassword(c.options.Password),
		postgres.BasicWaitStrategies(),
		testcontainers.WithEnv(map[string]string{"TZ": "UTC"}),
	}

	if len(c.options.InitScripts) > 0 {
		customizers = append(customizers, postgres.WithInitScripts(c.options.InitScripts...))
	}

	container, err := postgres.Run(ctx, fmt.Sprintf("postgres:%s", c.options.Version), customizers...)
	if err != nil {
		return errors.Wrap(err, "failed to start PostgreSQL container")
	}

	c.container = container
	return nil
}

// Stop stops and removes the container.
func (c *Container) Stop(ctx context.Context) error {
	if c.container == nil {
		return nil
	}

	err := testcontainers.TerminateContainer(c.container, testcontainers.StopContext(ctx))
	c.container = nil

	return errors.Wrap(err, "failed to stop PostgreSQL container")
}

// GetDSN returns a connection string for the running container.
func (c *Container) GetDSN(ctx context.Context) (string, error) {
	if c.container == nil {
		return "", errors.New("container is not running")
	}

	dsn, err := c.container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return "", errors.Wrap(err, "failed to get connection string")
	}

	return dsn, nil
}

// Open connects a database.Client to the running container.
func (c *Container) Open(ctx context.Context) (*database.Client, error) {
	dsn, err := c.GetDSN(ctx)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return database.Open(ctx, database.DialectPostgres, dsn)
}

// IsRunning returns true if the container is currently running.
func (c *Container) IsRunning() bool {
	return c.container != nil
}
