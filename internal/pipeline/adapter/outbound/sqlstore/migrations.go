package sqlstore

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations applies the schema migrations for the sessions table. Migration
// ids are recorded in "<table>_migrations" so several tables can share a database.
func runMigrations(db *gorm.DB, table string) error {
	opts := *gormigrate.DefaultOptions
	opts.TableName = table + "_migrations"

	m := gormigrate.New(db, &opts, []*gormigrate.Migration{
		{
			ID: "001_sessions",
			Migrate: func(tx *gorm.DB) error {
				return tx.Table(table).AutoMigrate(&sessionRecord{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(table)
			},
		},
	})
	return m.Migrate()
}
