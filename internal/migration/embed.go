package migration

import "embed"

const migrationsDir = "sql"

//go:embed sql/*.sql
var embeddedMigrations embed.FS
