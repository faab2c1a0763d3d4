package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/data/stats"
	"github.com/code-payments/keys-server/pkg/keys/data/stats/tests"

	postgrestest "github.com/code-payments/keys-server/pkg/database/postgres/test"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	// Used for testing ONLY, the table and migrations are external to this repository
	tableCreate = `
		CREATE TABLE keys__core_statswriter (
			id SERIAL NOT NULL PRIMARY KEY,

			writer TEXT NOT NULL UNIQUE,

			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE TABLE keys__core_statsvolume (
			id SERIAL NOT NULL PRIMARY KEY,

			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			volume NUMERIC(78, 0) NOT NULL CHECK (volume >= 0 AND volume < 2::numeric ^ 256),
			trade_count BIGINT NOT NULL,

			last_updated_at TIMESTAMP WITH TIME ZONE NOT NULL,

			CONSTRAINT keys__core_statsvolume__uniq__kind__and__key UNIQUE (kind, key)
		);
	`

	// Used for testing ONLY, the table and migrations are external to this repository
	tableDestroy = `
		DROP TABLE keys__core_statswriter;
		DROP TABLE keys__core_statsvolume;
	`
)

var (
	testStore stats.Store
	teardown  func()
)

func TestMain(m *testing.M) {
	log := logrus.StandardLogger()

	testPool, err := dockertest.NewPool("")
	if err != nil {
		log.WithError(err).Error("Error creating docker pool")
		os.Exit(1)
	}

	db, cleanUpFunc, err := postgrestest.StartPostgresDB(testPool)
	if err != nil {
		log.WithError(err).Error("Error starting postgres image")
		os.Exit(1)
	}
	defer db.Close()

	if err := createTestTables(db); err != nil {
		log.WithError(err).Error("Error creating test tables")
		cleanUpFunc()
		os.Exit(1)
	}

	testStore = New(db)
	teardown = func() {
		if pc := recover(); pc != nil {
			cleanUpFunc()
			panic(pc)
		}

		if err := resetTestTables(db); err != nil {
			log.WithError(err).Error("Error resetting test tables")
			cleanUpFunc()
			os.Exit(1)
		}
	}

	code := m.Run()
	cleanUpFunc()
	os.Exit(code)
}

func TestStatsPostgresStore(t *testing.T) {
	tests.RunTests(t, testStore, teardown)
}

func createTestTables(db *sql.DB) error {
	_, err := db.Exec(tableCreate)
	return err
}

func resetTestTables(db *sql.DB) error {
	if _, err := db.Exec(tableDestroy); err != nil {
		return err
	}
	return createTestTables(db)
}
