// Package migrations embeds the SQL migration files so both the migrate
// command and integration tests can apply them without relying on relative
// path calculations that break when files move.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed *.sql
var embeddedMigrations embed.FS

// FS returns a filesystem containing all migration files at its root.
func FS() fs.FS {
	return fs.FS(embeddedMigrations)
}
