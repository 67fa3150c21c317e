// Package migrations embeds the SQL schema for the action key store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
