package migrate

import (
	"database/sql"

	"github.com/golang-migrate/migrate/v4"
	pgdriver "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/mikeydub/go-indexer/service/persist/postgres"
	"github.com/mikeydub/go-indexer/util"
)

// RunCoreDBMigration migrates the indexer database to the latest schema
func RunCoreDBMigration() error {
	client, err := postgres.NewClient()
	if err != nil {
		return err
	}

	m, err := RunMigration(client, "./db/migrations/core")
	if err != nil && err != migrate.ErrNoChange {
		return err
	}

	m.Close()
	return nil
}

// RunMigration runs all migrations in the specified directory
func RunMigration(client *sql.DB, file string) (*migrate.Migrate, error) {
	m, err := newMigrateInstance(client, file)
	if err != nil {
		return nil, err
	}

	return m, m.Up()
}

func newMigrateInstance(client *sql.DB, file string) (*migrate.Migrate, error) {
	dir, err := util.FindFile(file, 3)
	if err != nil {
		return nil, err
	}

	d, err := pgdriver.WithInstance(client, &pgdriver.Config{})
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", d)
	if err != nil {
		return nil, err
	}

	return m, nil
}
