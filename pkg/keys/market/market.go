// Package market orchestrates key trades on a per-subject bonding curve.
//
// Every trade prices against the curve, splits fees, moves value through a
// payment gateway and updates the subject ledger within a single database
// transaction. Ledger effects are applied before any value leaves the escrow,
// and any failed transfer rolls back the entire trade.
package market

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/data"
	"github.com/code-payments/keys-server/pkg/keys/ledger"
	"github.com/code-payments/keys-server/pkg/keys/payment"
	"github.com/code-payments/keys-server/pkg/keys/registry"
	"github.com/code-payments/keys-server/pkg/keys/stats"
	"github.com/code-payments/keys-server/pkg/lock"
)

const (
	tradeLockName = "keys-market-trade"

	maxSubjectLength = 256
)

// Market is the entry point for quotes, trades and administration of the keys
// market. It is safe for concurrent use, but trades and parameter changes are
// fully serialized.
type Market struct {
	log  *logrus.Entry
	conf *conf

	data     data.DatabaseData
	ledger   *ledger.Ledger
	registry registry.Registry
	notifier *stats.Notifier
	gateway  payment.Gateway

	localLocks       *lock.LocalManager
	distributedLocks lock.Manager
}

// New returns a Market settling trades through gateway.
//
// The local trade lock only serializes trades within this process. Deployments
// running more than one instance against the same database must also supply
// distributedLocks, which is otherwise nil.
func New(
	data data.DatabaseData,
	registry registry.Registry,
	notifier *stats.Notifier,
	gateway payment.Gateway,
	distributedLocks lock.Manager,
	configProvider ConfigProvider,
) *Market {
	return &Market{
		log:  logrus.StandardLogger().WithField("type", "keys/market"),
		conf: configProvider(),

		data:     data,
		ledger:   ledger.New(data),
		registry: registry,
		notifier: notifier,
		gateway:  gateway,

		localLocks:       lock.NewLocalManager(),
		distributedLocks: distributedLocks,
	}
}

// Rail is the payment rail trades settle on
func (m *Market) Rail() payment.Rail {
	return m.gateway.Rail()
}

// withTradeLock runs fn while holding the trade lock. The channel passed to fn
// is closed if the lock is lost before fn returns.
func (m *Market) withTradeLock(ctx context.Context, fn func(ctx context.Context, lost <-chan struct{}) error) error {
	if inTrade(ctx) {
		return ErrReentrantCall
	}
	ctx = withTradeMarker(ctx)

	acquireCtx, cancel := context.WithTimeout(ctx, m.conf.tradeLockTimeout.Get(ctx))
	defer cancel()

	start := time.Now()

	local, err := m.localLocks.Create(ctx, tradeLockName)
	if err != nil {
		return errors.Wrap(err, "error creating local trade lock")
	}
	if _, err := local.Acquire(acquireCtx); err != nil {
		return errors.Wrap(err, "error acquiring local trade lock")
	}
	defer local.Unlock(ctx)

	var lost <-chan struct{}
	if m.distributedLocks != nil {
		distributed, err := m.distributedLocks.Create(ctx, tradeLockName)
		if err != nil {
			return errors.Wrap(err, "error creating distributed trade lock")
		}

		lost, err = distributed.Acquire(acquireCtx)
		if err != nil {
			return errors.Wrap(err, "error acquiring distributed trade lock")
		}
		defer func() {
			if err := distributed.Unlock(context.Background()); err != nil {
				m.log.WithError(err).Warn("failure releasing distributed trade lock")
			}
		}()
	}

	recordTradeLockWait(ctx, start)
	return fn(ctx, lost)
}

// executeInTx runs fn within a database transaction that is rolled back if
// the trade lock is lost before fn completes.
func (m *Market) executeInTx(ctx context.Context, lost <-chan struct{}, fn func(ctx context.Context) error) error {
	return m.data.ExecuteInTx(ctx, sql.LevelDefault, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}

		select {
		case <-lost:
			return ErrTradeLockLost
		default:
		}
		return nil
	})
}

func validateSubject(subject string) error {
	if len(subject) == 0 || len(subject) > maxSubjectLength {
		return ErrInvalidSubject
	}
	return nil
}

func validateAddress(address common.Address) error {
	if address.IsZero() {
		return ErrInvalidAddress
	}
	return nil
}

func now() time.Time {
	return time.Now().UTC()
}
