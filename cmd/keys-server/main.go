package main

import (
	"context"
	"database/sql"
	"os"
	"sync"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	v3 "go.etcd.io/etcd/client/v3"
	"google.golang.org/grpc"

	pg "github.com/code-payments/keys-server/pkg/database/postgres"
	"github.com/code-payments/keys-server/pkg/grpc/app"
	"github.com/code-payments/keys-server/pkg/keys/auth"
	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/keys/data"
	stats_data "github.com/code-payments/keys-server/pkg/keys/data/stats"
	stats_memory "github.com/code-payments/keys-server/pkg/keys/data/stats/memory"
	stats_postgres "github.com/code-payments/keys-server/pkg/keys/data/stats/postgres"
	"github.com/code-payments/keys-server/pkg/keys/market"
	"github.com/code-payments/keys-server/pkg/keys/payment"
	"github.com/code-payments/keys-server/pkg/keys/registry"
	registry_memory "github.com/code-payments/keys-server/pkg/keys/registry/memory"
	registry_postgres "github.com/code-payments/keys-server/pkg/keys/registry/postgres"
	market_server "github.com/code-payments/keys-server/pkg/keys/server/grpc/market"
	"github.com/code-payments/keys-server/pkg/keys/stats"
	"github.com/code-payments/keys-server/pkg/lock"
	etcd_lock "github.com/code-payments/keys-server/pkg/lock/etcd"
	"github.com/code-payments/keys-server/pkg/metrics"
)

type config struct {
	Database struct {
		Host               string        `mapstructure:"host"`
		Port               int           `mapstructure:"port"`
		User               string        `mapstructure:"user"`
		Password           string        `mapstructure:"password"`
		DbName             string        `mapstructure:"db_name"`
		SSLMode            string        `mapstructure:"ssl_mode"`
		MaxOpenConnections int           `mapstructure:"max_open_connections"`
		MaxIdleConnections int           `mapstructure:"max_idle_connections"`
		ConnMaxLifetime    time.Duration `mapstructure:"conn_max_lifetime"`
	} `mapstructure:"database"`

	// Rail is the payment rail trades settle on, either native or token
	Rail string `mapstructure:"rail"`

	// Escrow is the address holding value collected by the market
	Escrow string `mapstructure:"escrow"`

	// StatsIdentity is the writer identity the market reports volume as. The
	// sink's owner manages the allow-list, so volume is dropped until this
	// identity is on it.
	StatsIdentity string `mapstructure:"stats_identity"`

	// RegisterStatsWriter adds StatsIdentity to the allow-list on startup. It's
	// meant for local runs where the market owns the sink's store.
	RegisterStatsWriter bool `mapstructure:"register_stats_writer"`

	// Subjects seeds the in memory registry, mapping subjects to rights-holders.
	// It's ignored when a database is configured.
	Subjects map[string]string `mapstructure:"subjects"`

	EtcdEndpoints []string      `mapstructure:"etcd_endpoints"`
	LockTTL       time.Duration `mapstructure:"lock_ttl"`
}

// Requests are small JSON documents, so anything larger is rejected early
const maxRequestSize = 64 * 1024

var defaultConfig = config{
	Rail:          string(payment.RailNative),
	StatsIdentity: "keys-market",
	LockTTL:       10 * time.Second,
}

type keysApp struct {
	log *logrus.Entry

	db          *sql.DB
	etcdClient  *v3.Client
	lockManager *etcd_lock.Manager
	server      market_server.MarketServer

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
}

func (a *keysApp) Init(appConfig app.Config, metricsProvider *newrelic.Application) error {
	ctx := context.Background()
	if metricsProvider != nil {
		ctx = metrics.NewContext(ctx, metricsProvider)
	}

	conf := defaultConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &conf,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(map[string]interface{}(appConfig)); err != nil {
		return errors.Wrap(err, "invalid app config")
	}

	escrow, err := common.NewAddressFromString(conf.Escrow)
	if err != nil {
		return errors.Wrap(err, "invalid escrow address")
	}

	var dataProvider data.DatabaseData
	var subjectRegistry registry.Registry
	var statsStore stats_data.Store
	if len(conf.Database.Host) > 0 {
		a.db, err = pg.Open(ctx, &pg.Config{
			User:               conf.Database.User,
			Password:           conf.Database.Password,
			Host:               conf.Database.Host,
			Port:               conf.Database.Port,
			DbName:             conf.Database.DbName,
			SSLMode:            conf.Database.SSLMode,
			MaxOpenConnections: conf.Database.MaxOpenConnections,
			MaxIdleConnections: conf.Database.MaxIdleConnections,
			ConnMaxLifetime:    conf.Database.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}

		dataProvider = data.NewDatabaseProviderFromDB(a.db)
		subjectRegistry = registry_postgres.New(a.db)
		statsStore = stats_postgres.New(a.db)
	} else {
		a.log.Warn("no database configured, market state will not survive a restart")

		memoryRegistry := registry_memory.New()
		for subject, holder := range conf.Subjects {
			address, err := common.NewAddressFromString(holder)
			if err != nil {
				return errors.Wrapf(err, "invalid rights-holder for subject %s", subject)
			}
			memoryRegistry.Set(subject, address)
		}

		dataProvider = data.NewTestDatabaseProvider()
		subjectRegistry = memoryRegistry
		statsStore = stats_memory.New()
	}

	sink := stats.NewStoreSink(statsStore)
	if err := setupStatsWriter(ctx, a.log, sink, conf.StatsIdentity, conf.RegisterStatsWriter); err != nil {
		return err
	}

	gateway, err := payment.New(payment.Rail(conf.Rail), dataProvider, escrow.String(), payment.NewHooks())
	if err != nil {
		return err
	}

	var distributedLocks lock.Manager
	if len(conf.EtcdEndpoints) > 0 {
		a.etcdClient, err = v3.New(v3.Config{
			Endpoints:   conf.EtcdEndpoints,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			return errors.Wrap(err, "error connecting to etcd")
		}

		hostname, _ := os.Hostname()
		a.lockManager, err = etcd_lock.NewManager(a.etcdClient, "/keys-server/locks", conf.LockTTL, hostname)
		if err != nil {
			return err
		}
		distributedLocks = a.lockManager
	}

	keysMarket := market.New(
		dataProvider,
		subjectRegistry,
		stats.NewNotifier(sink, conf.StatsIdentity),
		gateway,
		distributedLocks,
		market.WithEnvConfigs(),
	)

	a.server = market_server.NewMarketServer(keysMarket, auth.NewSignatureVerifier(), market_server.WithEnvConfigs())

	a.log.WithFields(logrus.Fields{
		"rail":   conf.Rail,
		"escrow": escrow.String(),
	}).Info("keys market initialized")
	return nil
}

// setupStatsWriter adds identity to the sink's allow-list only when register
// is set. Otherwise the allow-list is left to the sink's owner, and a missing
// entry is only reported.
func setupStatsWriter(ctx context.Context, log *logrus.Entry, sink *stats.StoreSink, identity string, register bool) error {
	if register {
		return errors.Wrap(sink.AddWriter(ctx, identity), "error adding stats writer")
	}

	isWriter, err := sink.IsWriter(ctx, identity)
	if err != nil {
		log.WithError(err).Warn("failure checking stats writer")
		return nil
	}
	if !isWriter {
		log.WithField("stats_identity", identity).Warn("market is not an allowed stats writer, volume will not be recorded")
	}
	return nil
}

func (a *keysApp) RegisterWithGRPC(server *grpc.Server) {
	market_server.RegisterMarketServer(server, a.server)
}

func (a *keysApp) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

func (a *keysApp) Stop() {
	a.shutdownOnce.Do(func() {
		if a.lockManager != nil {
			a.lockManager.Close()
		}
		if a.etcdClient != nil {
			a.etcdClient.Close()
		}
		if a.db != nil {
			a.db.Close()
		}
		close(a.shutdownCh)
	})
}

func main() {
	log := logrus.StandardLogger().WithField("type", "keys-server")

	keysApp := &keysApp{
		log:        log,
		shutdownCh: make(chan struct{}),
	}

	if err := app.Run(keysApp, app.WithServerOption(grpc.MaxRecvMsgSize(maxRequestSize))); err != nil {
		log.WithError(err).Error("error running service")
		os.Exit(1)
	}
}
