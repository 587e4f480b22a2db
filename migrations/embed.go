// Package migrations embeds the SQL schema for the transform job audit table.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
