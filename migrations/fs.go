// Package migrations embeds the SQL schema migrations for dataguard.
package migrations

import "embed"

// FS holds the migration files consumed by the golang-migrate iofs source.
//
//go:embed *.sql
var FS embed.FS
