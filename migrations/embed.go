// Package migrations carries the SQL schema applied by the seed tool.
package migrations

import "embed"

// Files holds the ordered migration scripts.
//
//go:embed *.sql
var Files embed.FS
