// Package cmd provides CLI commands for the changekeeper tool.
//
// Commands are plain *cli.Command values built by constructors that receive
// their dependencies (config, project, logger) from fx. Module registers them
// in the "commands" group and Run assembles the application from that group.
//
// # Available Commands
//
//   - init: Scaffold changekeeper.yaml, the changelog and the migrations directory
//   - new: Declare a migration and create its empty SQL file
//   - migrate (apply, up): Apply pending migrations, or show them with --dry-run
//   - status: List every declared migration and its state
//   - verify: Fail when applied migrations drifted or the sum file is stale
//   - rehash: Regenerate changelog.sum
//   - unlock: Remove a stale SQLite migration lock
//
// # Configuration
//
// The project is the directory holding changekeeper.yaml. Set
// CHANGEKEEPER_CONFIG to use a config file elsewhere. Commands that touch the
// database accept --driver and --dsn to override the configured store.
//
// # Example Usage
//
//	changekeeper init --driver postgres --dsn "postgres://app@localhost:5432/app?sslmode=disable"
//	changekeeper new create users
//	changekeeper rehash
//	changekeeper migrate --dry-run
//	changekeeper migrate --pushgateway http://pushgateway:9091
//	changekeeper status
//	changekeeper verify --dsn "$DATABASE_URL"
package cmd
