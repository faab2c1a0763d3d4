//go:build integration

package etcd

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/require"
	v3 "go.etcd.io/etcd/client/v3"

	"github.com/code-payments/keys-server/pkg/etcdtest"
	"github.com/code-payments/keys-server/pkg/lock"
)

func TestLock(t *testing.T) {
	pool, err := dockertest.NewPool("")
	require.NoError(t, err)

	client, teardown, err := etcdtest.StartEtcd(pool)
	require.NoError(t, err)
	defer teardown()

	for _, tc := range []struct {
		name string
		f    func(t *testing.T, client *v3.Client)
	}{
		{name: "Happy", f: testHappy},
		{name: "Contention", f: testContention},
		{name: "Cancellation", f: testCancellation},
		{name: "Close", f: testClose},
		{name: "DoubleAcquire", f: testDoubleAcquire},
		{name: "DoubleUnlock", f: testDoubleUnlock},
	} {
		t.Run(tc.name, func(t *testing.T) { tc.f(t, client) })
	}
}

func TestInvalidTTL(t *testing.T) {
	for _, ttl := range []time.Duration{0, 500 * time.Millisecond, 2 * time.Minute} {
		_, err := NewManager(nil, "/keys/locks", ttl, "keys-server")
		require.Error(t, err)
	}
}

func testHappy(t *testing.T, client *v3.Client) {
	m, err := NewManager(client, "/keys/locks", 10*time.Second, "keys-server-0")
	require.NoError(t, err)
	defer m.Close()

	l, err := m.Create(context.Background(), "trade")
	require.NoError(t, err)
	require.False(t, l.IsLocked())

	lostCh, err := l.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, l.IsLocked())

	kvs, err := client.Get(context.Background(), "/keys/locks/trade", v3.WithPrefix())
	require.NoError(t, err)
	require.Len(t, kvs.Kvs, 1)
	require.Equal(t, "keys-server-0", string(kvs.Kvs[0].Value))

	require.NoError(t, l.Unlock(context.Background()))
	<-lostCh
	require.False(t, l.IsLocked())
}

func testContention(t *testing.T, client *v3.Client) {
	managers := make([]*Manager, 2)
	for i := range managers {
		var err error
		managers[i], err = NewManager(client, "/keys/locks", 10*time.Second, fmt.Sprintf("keys-server-%d", i))
		require.NoError(t, err)
		defer managers[i].Close()
	}

	first, err := managers[0].Create(context.Background(), "trade")
	require.NoError(t, err)
	_, err = first.Acquire(context.Background())
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := managers[1].Create(context.Background(), "trade")
		require.NoError(t, err)

		_, err = second.Acquire(context.Background())
		require.NoError(t, err)
		close(acquired)

		require.NoError(t, second.Unlock(context.Background()))
	}()

	select {
	case <-acquired:
		require.FailNow(t, "lock acquired by two managers")
	case <-time.After(2 * time.Second):
	}

	require.NoError(t, first.Unlock(context.Background()))

	select {
	case <-acquired:
	case <-time.After(10 * time.Second):
		require.FailNow(t, "lock never handed over")
	}
}

func testCancellation(t *testing.T, client *v3.Client) {
	m, err := NewManager(client, "/keys/locks", 10*time.Second, "keys-server-0")
	require.NoError(t, err)
	defer m.Close()

	l, err := m.Create(context.Background(), "trade")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lostCh, err := l.Acquire(ctx)
	require.NoError(t, err)
	cancel()

	<-lostCh

	_, err = l.Acquire(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func testClose(t *testing.T, client *v3.Client) {
	m, err := NewManager(client, "/keys/locks", 10*time.Second, "keys-server-0")
	require.NoError(t, err)
	defer m.Close()

	l, err := m.Create(context.Background(), "trade")
	require.NoError(t, err)

	lostCh, err := l.Acquire(context.Background())
	require.NoError(t, err)

	m.Close()
	<-lostCh

	_, err = l.Acquire(context.Background())
	require.Equal(t, lock.ErrClosed, err)

	l, err = m.Create(context.Background(), "trade")
	require.Nil(t, l)
	require.Equal(t, lock.ErrClosed, err)
}

func testDoubleAcquire(t *testing.T, client *v3.Client) {
	m, err := NewManager(client, "/keys/locks", 10*time.Second, "keys-server-0")
	require.NoError(t, err)
	defer m.Close()

	l, err := m.Create(context.Background(), "trade")
	require.NoError(t, err)

	_, err = l.Acquire(context.Background())
	require.NoError(t, err)

	_, err = l.Acquire(context.Background())
	require.Equal(t, lock.ErrAlreadyAcquired, err)

	require.NoError(t, l.Unlock(context.Background()))
}

func testDoubleUnlock(t *testing.T, client *v3.Client) {
	m, err := NewManager(client, "/keys/locks", 10*time.Second, "keys-server-0")
	require.NoError(t, err)
	defer m.Close()

	l, err := m.Create(context.Background(), "trade")
	require.NoError(t, err)

	lostCh, err := l.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, l.Unlock(context.Background()))
	require.NoError(t, l.Unlock(context.Background()))

	<-lostCh
}
