// Package migrations holds the SQL schema for the Postgres record store.
package migrations

import "embed"

// PostgresFS carries the schema files under postgres/.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
