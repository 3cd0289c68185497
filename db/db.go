// Package db carries the embedded schema migrations so deployments do not
// need the SQL files on disk next to the binary.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
