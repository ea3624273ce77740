// Package migrations embeds the SQL schema of the ledger, cursor, journal,
// graph, deferred edge and search tables.
package migrations

import "embed"

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS
