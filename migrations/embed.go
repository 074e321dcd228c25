// Package migrations holds the numbered SQL files applied by `clinic-server migrate up`.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
