// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migration files live in an fs.FS (normally embedded into the binary) and
// follow the naming convention {version}_{description}.sql, for example
// "001_initial_schema.sql". Applied versions are recorded in a
// schema_migrations table together with a checksum of the file, so a file
// that is edited after it was applied is reported instead of silently
// skipped.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(files, "migrations"), migration.NewExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
