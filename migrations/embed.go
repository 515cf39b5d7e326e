// Package migrations embeds the SQL schema of the checkout attempt log.
package migrations

import "embed"

// FS holds the *.up.sql files applied at startup.
//
//go:embed *.up.sql
var FS embed.FS
