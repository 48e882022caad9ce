// Package pg connects to PostgreSQL through a pgx pool, applies embedded
// goose migrations and classifies driver errors.
//
// Stores in this module are written against database/sql. OpenDB bridges the
// pool into a *sql.DB so those stores share the pool's connections:
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil { ... }
//	if err := pg.Migrate(ctx, pool, migrations.FS, cfg, log); err != nil { ... }
//	db := pg.OpenDB(pool)
package pg
