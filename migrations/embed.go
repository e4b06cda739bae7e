// Package migrations compiles the schema files into the binary and
// registers them with the database package.
package migrations

import (
	"embed"

	"github.com/edgeberry/edgeberry-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
