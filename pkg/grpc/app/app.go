package app

import (
	"context"
	"crypto/tls"
	"expvar"
	"flag"
	"io"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_logrus "github.com/grpc-ecosystem/go-grpc-middleware/logging/logrus"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"gopkg.in/natefinch/lumberjack.v2"

	grpc_util "github.com/code-payments/keys-server/pkg/grpc"
	_ "github.com/code-payments/keys-server/pkg/grpc/codec"
	"github.com/code-payments/keys-server/pkg/grpc/headers"
	"github.com/code-payments/keys-server/pkg/grpc/metrics"
	metrics_util "github.com/code-payments/keys-server/pkg/metrics"
	"github.com/code-payments/keys-server/pkg/osutil"
)

// App is a long lived application serving gRPC requests. Its lifecycle is
// tied to the process: it's initialized before the gRPC servers start, and
// stopped after they stop serving.
type App interface {
	// Init blocks until the application is ready to receive requests
	Init(config Config, metricsProvider *newrelic.Application) error

	// RegisterWithGRPC registers the application's services with a server.
	// It's called once per server.
	RegisterWithGRPC(server *grpc.Server)

	// ShutdownChan is closed when the application stops on its own, which
	// shuts down the servers.
	ShutdownChan() <-chan struct{}

	// Stop releases the application's resources. It must be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run loads the process config, initializes app and serves it until a signal
// is received or something shuts down.
func Run(app App, options ...Option) error {
	flag.Parse()

	log := logrus.StandardLogger().WithField("type", "grpc/app")

	config, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	metricsProvider, err := newMetricsProvider(config)
	if err != nil {
		return err
	}
	configureLogger(config, metricsProvider)

	startDebugServer(config, log)

	ballast := allocateBallast(config)
	defer func() {
		// Keeps the ballast reachable until the process is done
		if len(ballast) > 0 {
			ballast[0] = 1
		}
	}()

	restartCh, err := scheduleRestarts(config)
	if err != nil {
		return err
	}

	listeners, err := listen(config)
	if err != nil {
		return err
	}

	opts := opts{}
	opts.unaryServerInterceptors, opts.streamServerInterceptors = defaultInterceptors(config, metricsProvider, log)
	for _, o := range options {
		o(&opts)
	}

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		return errors.Wrap(err, "failed to initialize application")
	}

	serverOptions := append([]grpc.ServerOption{
		grpc_middleware.WithUnaryServerChain(opts.unaryServerInterceptors...),
		grpc_middleware.WithStreamServerChain(opts.streamServerInterceptors...),
	}, opts.serverOptions...)

	var servers []*grpc.Server
	serverDoneCh := make(chan struct{}, 2)
	serve := func(lis net.Listener, serverOptions ...grpc.ServerOption) {
		server := grpc.NewServer(serverOptions...)
		app.RegisterWithGRPC(server)
		healthgrpc.RegisterHealthServer(server, health.NewServer())
		servers = append(servers, server)

		go func() {
			if err := server.Serve(lis); err != nil {
				log.WithError(err).WithField("address", lis.Addr().String()).Error("grpc serve stopped")
			}
			serverDoneCh <- struct{}{}
		}()
	}

	serve(listeners.insecure, serverOptions...)
	if listeners.secure != nil {
		serve(listeners.secure, append(serverOptions, grpc.Creds(listeners.creds))...)
	}

	select {
	case <-osSigCh:
		log.Info("interrupt received, shutting down")
	case <-serverDoneCh:
		log.Info("grpc server shutdown")
	case <-restartCh:
		log.Info("scheduled restart")
	case <-app.ShutdownChan():
		log.Info("app shutdown")
	}

	stoppedCh := make(chan struct{})
	go func() {
		for _, server := range servers {
			server.GracefulStop()
		}
		app.Stop()
		close(stoppedCh)
	}()

	select {
	case <-stoppedCh:
		return nil
	case <-time.After(config.ShutdownGracePeriod):
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

func newMetricsProvider(config BaseConfig) (*newrelic.Application, error) {
	if len(config.NewRelicLicenseKey) == 0 {
		return nil, nil
	}

	nr, err := newrelic.NewApplication(
		newrelic.ConfigFromEnvironment(),
		newrelic.ConfigAppName(config.AppName),
		newrelic.ConfigLicense(config.NewRelicLicenseKey),
		newrelic.ConfigDistributedTracerEnabled(true),
		newrelic.ConfigAppLogForwardingEnabled(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to new relic")
	}
	return nr, nil
}

// startDebugServer serves expvar and pprof on the debug address, which is
// expected to be private. The default mux is reset so importing those
// packages never exposes them elsewhere.
func startDebugServer(config BaseConfig, log *logrus.Entry) {
	http.DefaultServeMux = http.NewServeMux()

	if !config.EnableExpvar && !config.EnablePprof {
		return
	}

	mux := http.NewServeMux()
	if config.EnableExpvar {
		mux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	go func() {
		for {
			if err := http.ListenAndServe(config.DebugListenAddress, mux); err != nil {
				log.WithError(err).Warn("debug http server failed, retrying in 5s")
			}
			time.Sleep(5 * time.Second)
		}
	}()
}

// allocateBallast reserves a share of system memory, capped at half, to make
// the GC less eager.
func allocateBallast(config BaseConfig) []byte {
	if !config.EnableBallast {
		return nil
	}

	capacity := config.BallastCapacity
	if capacity > maxBallastCapacity {
		capacity = maxBallastCapacity
	}
	return make([]byte, uint64(capacity*float32(osutil.GetTotalMemory())))
}

// scheduleRestarts returns a channel closed at the next scheduled restart, or
// nil when restarts are disabled.
func scheduleRestarts(config BaseConfig) (<-chan struct{}, error) {
	if !config.EnableMemoryLeakCron {
		return nil, nil
	}

	restartCh := make(chan struct{})
	job := cron.New(cron.WithLocation(time.Local))
	_, err := job.AddFunc(config.MemoryLeakCronSchedule, func() {
		select {
		case <-restartCh:
		default:
			close(restartCh)
		}
	})
	if err != nil {
		return nil, errors.Wrap(err, "invalid memory leak cron schedule")
	}
	job.Start()

	return restartCh, nil
}

type listeners struct {
	insecure net.Listener

	secure net.Listener
	creds  credentials.TransportCredentials
}

// listen opens the insecure listener, and the TLS listener when a certificate
// is configured.
func listen(config BaseConfig) (*listeners, error) {
	insecure, err := net.Listen("tcp", config.InsecureListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", config.InsecureListenAddress)
	}

	res := &listeners{insecure: insecure}
	if len(config.TLSCertificate) == 0 {
		return res, nil
	}

	certBytes, err := LoadFile(config.TLSCertificate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tls certificate")
	}
	keyBytes, err := LoadFile(config.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load tls key")
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		return nil, errors.Wrap(err, "invalid certificate/private key")
	}
	res.creds = credentials.NewServerTLSFromCert(&cert)

	res.secure, err = net.Listen("tcp", config.ListenAddress)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to listen on %s", config.ListenAddress)
	}
	return res, nil
}

// defaultInterceptors builds the chains every server runs. Headers come
// first since the metrics interceptor reads the client IP from them, and
// metrics sit above logging so panics recovered below are still reported.
func defaultInterceptors(config BaseConfig, metricsProvider *newrelic.Application, log *logrus.Entry) ([]grpc.UnaryServerInterceptor, []grpc.StreamServerInterceptor) {
	requestLog := logrus.StandardLogger().WithField("type", "grpc/request")
	requestLogDecider := grpc_logrus.WithDecider(func(fullMethodName string, err error) bool {
		return !grpc_util.IsHealthCheckEndpoint(fullMethodName)
	})
	recoveryHandler := grpc_recovery.WithRecoveryHandlerContext(func(ctx context.Context, p interface{}) error {
		log.WithFields(logrus.Fields{
			"panic":      p,
			"request_id": headers.RequestId(ctx),
		}).Error("recovered from panic in grpc handler")
		return status.Error(codes.Internal, "")
	})

	unary := []grpc.UnaryServerInterceptor{
		headers.UnaryServerInterceptor(),
		metrics.CustomNewRelicUnaryServerInterceptor(metricsProvider),
		grpc_logrus.UnaryServerInterceptor(requestLog, requestLogDecider),
		grpc_recovery.UnaryServerInterceptor(recoveryHandler),
	}
	stream := []grpc.StreamServerInterceptor{
		headers.StreamServerInterceptor(),
		metrics.CustomNewRelicStreamServerInterceptor(metricsProvider),
		grpc_logrus.StreamServerInterceptor(requestLog, requestLogDecider),
		grpc_recovery.StreamServerInterceptor(recoveryHandler),
	}

	if config.DisableEverything {
		unary = append(unary, grpc_util.DisableEverythingUnaryServerInterceptor())
		stream = append(stream, grpc_util.DisableEverythingStreamServerInterceptor())
	}
	return unary, stream
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	var formatter logrus.Formatter = &logrus.JSONFormatter{}
	if metricsProvider != nil {
		formatter = metrics_util.NewLogFormatter(metricsProvider, formatter)
	}
	logrus.SetFormatter(formatter)

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	var output io.Writer = os.Stdout
	if len(config.LogFile) > 0 {
		output = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    config.LogFileMaxSizeMB,
			MaxBackups: config.LogFileMaxBackups,
			MaxAge:     config.LogFileMaxAgeDays,
			Compress:   true,
		})
	}
	logrus.SetOutput(output)
}
