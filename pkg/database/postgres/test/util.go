// Package test runs disposable postgres instances for store tests.
package test

import (
	"database/sql"
	"net/url"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	_ "github.com/jackc/pgx/v4/stdlib" //nolint:revive

	"github.com/code-payments/keys-server/pkg/retry"
	"github.com/code-payments/keys-server/pkg/retry/backoff"
)

const (
	image    = "postgres"
	imageTag = "14.5"

	// Containers are reaped by docker after this long, even if the test
	// binary never gets to purge them.
	maxContainerLifetime = 2 * time.Minute

	readinessInterval = 500 * time.Millisecond
	readinessAttempts = 50
)

var credentials = url.UserPassword("keys", "keys-test-password")

const database = "keys_test"

// StartPostgresDB starts a throwaway postgres container and returns a pgx
// backed client connected to it. The returned purge func removes the
// container and is a no-op when err is non-nil.
func StartPostgresDB(pool *dockertest.Pool) (*sql.DB, func(), error) {
	password, _ := credentials.Password()

	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: image,
			Tag:        imageTag,
			Env: []string{
				"POSTGRES_USER=" + credentials.Username(),
				"POSTGRES_PASSWORD=" + password,
				"POSTGRES_DB=" + database,
			},
		},
		func(host *docker.HostConfig) {
			host.AutoRemove = true
			host.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "error running postgres container")
	}
	_ = resource.Expire(uint(maxContainerLifetime.Seconds()))

	purge := func() {
		if err := pool.Purge(resource); err != nil {
			logrus.StandardLogger().WithError(err).Warn("failure purging postgres container")
		}
	}

	dsn := url.URL{
		Scheme:   "postgres",
		User:     credentials,
		Host:     resource.GetHostPort("5432/tcp"),
		Path:     database,
		RawQuery: "sslmode=disable",
	}

	db, err := sql.Open("pgx", dsn.String())
	if err != nil {
		purge()
		return nil, func() {}, errors.Wrap(err, "error opening postgres client")
	}

	_, err = retry.Retry(
		db.Ping,
		retry.Limit(readinessAttempts),
		retry.Backoff(backoff.Constant(readinessInterval), readinessInterval),
	)
	if err != nil {
		db.Close()
		purge()
		return nil, func() {}, errors.Wrap(err, "postgres container never became ready")
	}

	return db, purge, nil
}
