package postgres

import (
	"database/sql"
	"os"
	"testing"

	"github.com/ory/dockertest/v3"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/data/trade"
	"github.com/code-payments/keys-server/pkg/keys/data/trade/tests"

	postgrestest "github.com/code-payments/keys-server/pkg/database/postgres/test"

	_ "github.com/jackc/pgx/v4/stdlib"
)

const (
	// Used for testing ONLY, the table and migrations are external to this repository
	tableCreate = `
		CREATE TABLE keys__core_trade (
			id SERIAL NOT NULL PRIMARY KEY,

			trade_id TEXT NOT NULL UNIQUE,

			subject TEXT NOT NULL,
			trader TEXT NOT NULL,
			rights_holder TEXT NOT NULL,
			referrer TEXT NOT NULL,

			direction SMALLINT NOT NULL,
			rail TEXT NOT NULL,
			amount BIGINT NOT NULL CHECK (amount > 0),

			gross_price NUMERIC(78, 0) NOT NULL,
			protocol_fee NUMERIC(78, 0) NOT NULL,
			subject_fee NUMERIC(78, 0) NOT NULL,
			referrer_fee NUMERIC(78, 0) NOT NULL,
			total NUMERIC(78, 0) NOT NULL,

			supply BIGINT NOT NULL,

			created_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX keys__core_trade__subject ON keys__core_trade (subject, id);
		CREATE INDEX keys__core_trade__trader ON keys__core_trade (trader, id);
	`

	// Used for testing ONLY, the table and migrations are external to this repository
	tableDestroy = `
		DROP TABLE keys__core_trade;
	`
)

var (
	testStore trade.Store
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

func TestTradePostgresStore(t *testing.T) {
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
