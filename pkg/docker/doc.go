// Package docker runs disposable PostgreSQL containers with testcontainers so
// migrations can be exercised against a real server.
//
// # Usage Example
//
//	container := docker.NewWithOptions(docker.DockerOptions{Version: "16-alpine"})
//	if err := container.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	defer func() { _ = container.Stop(ctx) }()
//
//	client, err := container.Open(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// Tests that use a container should skip when testing.Short() is set or
// when no Docker daemon is reachable.
package docker
