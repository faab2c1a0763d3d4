// Package etcdtest runs disposable etcd nodes for lock tests.
package etcdtest

import (
	"context"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
)

const (
	image    = "quay.io/coreos/etcd"
	imageTag = "v3.5.13"

	clientPort = "2379/tcp"

	maxContainerLifetime = 2 * time.Minute
	probeTimeout         = time.Second
	probeKey             = "/keys-server/etcdtest/probe"
)

// StartEtcd runs a single node etcd container and returns a client connected
// to it. teardown is always safe to call, even on error.
func StartEtcd(pool *dockertest.Pool) (*v3.Client, func(), error) {
	resource, err := pool.RunWithOptions(
		&dockertest.RunOptions{
			Repository: image,
			Tag:        imageTag,
			Cmd: []string{
				"etcd",
				"--listen-client-urls=http://0.0.0.0:2379",
				"--advertise-client-urls=http://0.0.0.0:2379",
			},
		},
		func(host *docker.HostConfig) {
			host.AutoRemove = true
			host.RestartPolicy = docker.RestartPolicy{Name: "no"}
		},
	)
	if err != nil {
		return nil, func() {}, errors.Wrap(err, "error running etcd container")
	}
	_ = resource.Expire(uint(maxContainerLifetime.Seconds()))

	var client *v3.Client
	teardown := func() {
		if client != nil {
			client.Close()
		}
		if err := pool.Purge(resource); err != nil {
			logrus.StandardLogger().WithError(err).Warn("failure purging etcd container")
		}
	}

	client, err = v3.New(v3.Config{
		Endpoints:   []string{resource.GetHostPort(clientPort)},
		DialTimeout: probeTimeout,
	})
	if err != nil {
		teardown()
		return nil, func() {}, errors.Wrap(err, "error creating etcd client")
	}

	probe := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()

		_, err := client.Get(ctx, probeKey)
		return err
	}
	if err := pool.Retry(probe); err != nil {
		teardown()
		return nil, func() {}, errors.Wrap(err, "etcd container never became ready")
	}

	return client, teardown, nil
}
