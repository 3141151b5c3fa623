// Package migrations contains the schema migrations for the query index.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
