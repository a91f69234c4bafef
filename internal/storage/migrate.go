package storage

import (
	"embed"
	"io/fs"

	"household/internal/sqlitedb"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations returns the local store schema, rooted at the migrations directory.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err) // embedded path is fixed at compile time
	}
	return sub
}

func RunMigrations(dbPath string) error {
	return sqlitedb.Migrate(dbPath, Migrations())
}
