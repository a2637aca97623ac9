// Package migrations embeds the schema of the SQLite credential cache.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
