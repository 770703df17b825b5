// Package migrations embeds the SQL schema for the transactions table
// read by the references store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
