package lock

import (
	"context"
	"sync"
)

// LocalManager is a Manager whose locks only exclude holders within this
// process. It suits single instance deployments and tests.
type LocalManager struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocalManager() *LocalManager {
	return &LocalManager{
		locks: make(map[string]chan struct{}),
	}
}

func (m *LocalManager) Create(_ context.Context, name string) (DistributedLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sem, ok := m.locks[name]
	if !ok {
		sem = make(chan struct{}, 1)
		m.locks[name] = sem
	}

	return &localLock{sem: sem}, nil
}

type localLock struct {
	sem chan struct{}

	mu     sync.Mutex
	held   bool
	lostCh chan struct{}
}

func (l *localLock) Acquire(ctx context.Context) (<-chan struct{}, error) {
	l.mu.Lock()
	if l.held {
		l.mu.Unlock()
		return nil, ErrAlreadyAcquired
	}
	l.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = true
	l.lostCh = make(chan struct{})
	return l.lostCh, nil
}

func (l *localLock) Unlock(_ context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.held {
		return nil
	}

	l.held = false
	close(l.lostCh)
	<-l.sem
	return nil
}

func (l *localLock) IsLocked() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}
