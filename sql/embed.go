// Package migrations embeds the goose database migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
