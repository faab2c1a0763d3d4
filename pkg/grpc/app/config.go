package app

import (
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the application specific configuration.
// It is passed to the App.Init function, and is optional.
type Config map[string]interface{}

// BaseConfig contains the base configuration for services, as well as the
// application itself.
type BaseConfig struct {
	LogLevel string `mapstructure:"log_level"`

	// LogFile optionally mirrors logs to a size rotated file
	LogFile           string `mapstructure:"log_file"`
	LogFileMaxSizeMB  int    `mapstructure:"log_file_max_size_mb"`
	LogFileMaxBackups int    `mapstructure:"log_file_max_backups"`
	LogFileMaxAgeDays int    `mapstructure:"log_file_max_age_days"`

	AppName string `mapstructure:"app_name"`

	ListenAddress         string `mapstructure:"listen_address"`
	InsecureListenAddress string `mapstructure:"insecure_listen_address"`
	DebugListenAddress    string `mapstructure:"debug_listen_address"`

	// TLSCertificate is an optional URL that specified a TLS certificate to be
	// used for the gRPC server.
	//
	// Only the file scheme is supported. If no scheme is specified, file is
	// used.
	TLSCertificate string `mapstructure:"tls_certificate"`
	// TLSKey is an optional URL that specifies a TLS Private Key to be used for the
	// gRPC server. Supports the same schemes as TLSCertificate.
	TLSKey string `mapstructure:"tls_private_key"`

	ShutdownGracePeriod time.Duration `mapstructure:"shutdown_grace_period"`

	// DisableEverything rejects every RPC except health checks with UNAVAILABLE
	DisableEverything bool `mapstructure:"disable_everything"`

	EnablePprof  bool `mapstructure:"enable_pprof"`
	EnableExpvar bool `mapstructure:"enable_expvar"`

	// Ballast for improving Go GC performance, as a share of total memory
	// capped at maxBallastCapacity
	EnableBallast   bool    `mapstructure:"enable_ballast"`
	BallastCapacity float32 `mapstructure:"ballast_capacity"`

	// Periodically restart the application on a cron schedule
	EnableMemoryLeakCron   bool   `mapstructure:"enable_memory_leak_cron"`
	MemoryLeakCronSchedule string `mapstructure:"memory_leak_cron_schedule"`

	// Metrics configuration across many providers
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`

	// Application specific settings, decoded by the app with mapstructure
	AppConfig Config `mapstructure:"app"`
}

var defaultConfig = BaseConfig{
	LogLevel: "info",

	LogFileMaxSizeMB:  100,
	LogFileMaxBackups: 5,
	LogFileMaxAgeDays: 28,

	ListenAddress:         ":8085",
	InsecureListenAddress: "localhost:8086",
	DebugListenAddress:    ":8123",

	ShutdownGracePeriod: 30 * time.Second,

	EnablePprof:  true,
	EnableExpvar: true,

	EnableBallast:   true,
	BallastCapacity: 0.333,

	EnableMemoryLeakCron:   false,
	MemoryLeakCronSchedule: "0 5 * * *",
}

const maxBallastCapacity = 0.5

// envBoundKeys are the BaseConfig keys that can be set from an environment
// variable of the same name in upper case
var envBoundKeys = []string{
	"log_level",
	"log_file",
	"log_file_max_size_mb",
	"log_file_max_backups",
	"log_file_max_age_days",
	"app_name",
	"listen_address",
	"insecure_listen_address",
	"debug_listen_address",
	"tls_certificate",
	"tls_private_key",
	"shutdown_grace_period",
	"disable_everything",
	"enable_pprof",
	"enable_expvar",
	"enable_ballast",
	"ballast_capacity",
	"enable_memory_leak_cron",
	"memory_leak_cron_schedule",
	"new_relic_license_key",
}

func init() {
	for _, key := range envBoundKeys {
		_ = viper.BindEnv(key, strings.ToUpper(key))
	}
}

// loadConfig reads the config file at path, when it exists, on top of the
// defaults and environment.
func loadConfig(path string) (BaseConfig, error) {
	// viper only reports a missing file it searched for itself, so an explicit
	// path is checked here
	if _, err := os.Stat(path); err == nil {
		viper.SetConfigFile(path)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	if _, isConfigNotFound := err.(viper.ConfigFileNotFoundError); err != nil && !isConfigNotFound {
		return BaseConfig{}, errors.Wrap(err, "failed to load config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}
	return config, config.validate()
}

func (c BaseConfig) validate() error {
	if len(c.AppName) == 0 {
		return errors.New("must specify an application name")
	}
	if len(c.TLSCertificate) > 0 && len(c.TLSKey) == 0 {
		return errors.New("tls key must be provided if certificate is specified")
	}
	if c.EnableBallast && c.BallastCapacity <= 0 {
		return errors.New("ballast capacity must be positive")
	}
	if len(c.LogFile) > 0 && c.LogFileMaxSizeMB <= 0 {
		return errors.New("log file max size must be positive")
	}
	return nil
}
