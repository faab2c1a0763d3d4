package etcd

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.etcd.io/etcd/api/v3/mvccpb"
	v3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"github.com/code-payments/keys-server/pkg/lock"
)

const (
	minLockTTL = time.Second
	maxLockTTL = time.Minute

	sessionRetryInterval = time.Second
)

// Manager creates locks backed by etcd elections. All locks share one session,
// so closing the Manager releases every lock it handed out.
type Manager struct {
	log       *logrus.Entry
	client    *v3.Client
	rootKey   string
	ttl       int
	candidate string

	closeOnce sync.Once
	closeCh   chan struct{}

	sessionMu sync.Mutex
	session   *concurrency.Session
}

// NewManager returns a Manager storing locks under rootKey. candidate is the
// value written to a held lock's key, which identifies the holder to operators.
func NewManager(client *v3.Client, rootKey string, ttl time.Duration, candidate string) (*Manager, error) {
	if ttl < minLockTTL || ttl > maxLockTTL {
		return nil, errors.Errorf("invalid lock ttl %v, must be within [%v, %v]", ttl, minLockTTL, maxLockTTL)
	}

	m := &Manager{
		log: logrus.StandardLogger().WithFields(logrus.Fields{
			"type": "lock/etcd/manager",
			"root": rootKey,
		}),
		client:    client,
		rootKey:   rootKey,
		ttl:       int(ttl.Round(time.Second).Seconds()),
		candidate: candidate,
		closeCh:   make(chan struct{}),
	}

	session, err := m.newSession()
	if err != nil {
		return nil, errors.Wrap(err, "error creating etcd session")
	}
	m.session = session

	// A session can end for good, for example after the cluster loses quorum
	// for longer than the TTL. Keep replacing it so locks recover once the
	// cluster does.
	go m.keepSession()

	return m, nil
}

func (m *Manager) Create(_ context.Context, name string) (lock.DistributedLock, error) {
	if m.currentSession() == nil {
		return nil, lock.ErrClosed
	}

	key := path.Join(m.rootKey, name)
	return &Lock{
		log: m.log.WithFields(logrus.Fields{
			"type": "lock/etcd/lock",
			"key":  key,
		}),
		manager: m,
		key:     key,
	}, nil
}

// Close ends the shared session. Every lock held through this Manager is
// released.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		m.sessionMu.Lock()
		defer m.sessionMu.Unlock()

		close(m.closeCh)

		if err := m.session.Close(); err != nil {
			m.log.WithError(err).Warn("failure closing etcd session")
		}
		m.session = nil
	})
}

func (m *Manager) newSession() (*concurrency.Session, error) {
	return concurrency.NewSession(
		m.client,
		concurrency.WithTTL(m.ttl),
		concurrency.WithContext(v3.WithRequireLeader(context.Background())),
	)
}

func (m *Manager) currentSession() *concurrency.Session {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()

	return m.session
}

func (m *Manager) keepSession() {
	for {
		session := m.currentSession()
		if session == nil {
			return
		}

		select {
		case <-m.closeCh:
			return
		case <-session.Done():
		}

		m.log.Info("etcd session ended, creating a new one")

		for {
			replacement, err := m.newSession()
			if err == nil {
				m.sessionMu.Lock()
				if m.session == nil {
					// Closed while we were reconnecting
					m.sessionMu.Unlock()
					replacement.Close()
					return
				}
				m.session = replacement
				m.sessionMu.Unlock()
				break
			}

			m.log.WithError(err).Warn("failure creating etcd session, retrying")

			select {
			case <-m.closeCh:
				return
			case <-time.After(sessionRetryInterval):
			}
		}
	}
}

// Lock is a lock.DistributedLock held by winning an etcd election
type Lock struct {
	log     *logrus.Entry
	manager *Manager
	key     string

	mu       sync.Mutex
	election *concurrency.Election
}

func (l *Lock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != nil {
		return nil, lock.ErrAlreadyAcquired
	}

	session := l.manager.currentSession()
	if session == nil {
		return nil, lock.ErrClosed
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)

	election := concurrency.NewElection(session, l.key)
	if err := election.Campaign(watchCtx, l.manager.candidate); err != nil {
		cancelWatch()
		return nil, errors.Wrap(err, "error campaigning for lock")
	}
	l.election = election

	l.log.Debug("lock acquired")

	lostCh := make(chan struct{})
	watchCh := session.Client().Watch(
		v3.WithRequireLeader(watchCtx),
		election.Key(),
		v3.WithRev(election.Rev()),
	)

	go func() {
		defer cancelWatch()
		defer l.release(ctx, election)

		// Signal the loss before cleaning up, since resigning blocks while the
		// cluster has no leader
		defer close(lostCh)

		l.watch(session, election, watchCh)
	}()

	return lostCh, nil
}

// watch returns once the lock can no longer be considered held
func (l *Lock) watch(session *concurrency.Session, election *concurrency.Election, watchCh v3.WatchChan) {
	for {
		select {
		case <-session.Done():
			l.log.Warn("etcd session ended, lock lost")
			return

		case resp, ok := <-watchCh:
			if !ok {
				return
			}

			if err := resp.Err(); err != nil {
				l.log.WithError(err).Warn("failure watching lock key")
				return
			}

			for _, event := range resp.Events {
				switch event.Type {
				case mvccpb.PUT:
					if event.Kv.CreateRevision != election.Rev() {
						l.log.Warn("lock key was recreated, assuming lock lost")
						return
					}
				case mvccpb.DELETE:
					l.log.Trace("lock key deleted")
					return
				}
			}
		}
	}
}

func (l *Lock) release(ctx context.Context, election *concurrency.Election) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election != election {
		return
	}

	if err := election.Resign(ctx); err != nil {
		l.log.WithError(err).Warn("failure resigning lost lock")
	}
	l.election = nil
}

func (l *Lock) Unlock(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.election == nil {
		return nil
	}

	err := l.election.Resign(ctx)
	l.election = nil
	return err
}

func (l *Lock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.election != nil && l.election.Key() != ""
}
