// Package migrations embeds the schema so the binary migrates itself without a migrations directory on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
