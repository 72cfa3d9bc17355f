// Package migrations embeds the PostgreSQL schema applied by goose.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
