// Package cmd implements the statemap command-line interface. Sub-commands
// are go-flags commands (load, show, resolve, rooms, delete, publish, sync);
// configuration, logging, telemetry and opening the store live in shared.go,
// config.go and telemetry.go.
package cmd
