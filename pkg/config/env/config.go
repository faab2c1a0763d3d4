// Package env provides config values read from environment variables.
package env

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/code-payments/keys-server/pkg/config"
	"github.com/code-payments/keys-server/pkg/config/wrapper"
)

// variable is a config.Config over one environment variable. The variable
// is read once, when the config is created, and surrounding whitespace is
// ignored.
type variable struct {
	name  string
	value string
}

// NewConfig returns a config.Config for the environment variable named key,
// matched case insensitively by upper casing it.
func NewConfig(key string) config.Config {
	name := strings.ToUpper(key)
	return &variable{
		name:  name,
		value: strings.TrimSpace(os.Getenv(name)),
	}
}

// Get implements config.Config.Get
func (v *variable) Get(_ context.Context) (interface{}, error) {
	if len(v.value) == 0 {
		return nil, config.ErrNoValue
	}
	return []byte(v.value), nil
}

// Shutdown implements config.Config.Shutdown
func (v *variable) Shutdown() {}

func (v *variable) String() string {
	return v.name
}

// NewUint64Config creates an environment backed uint64 config
func NewUint64Config(key string, defaultValue uint64) config.Uint64 {
	return wrapper.NewUint64Config(NewConfig(key), defaultValue)
}

// NewBoolConfig creates an environment backed bool config
func NewBoolConfig(key string, defaultValue bool) config.Bool {
	return wrapper.NewBoolConfig(NewConfig(key), defaultValue)
}

// NewDurationConfig creates an environment backed duration config
func NewDurationConfig(key string, defaultValue time.Duration) config.Duration {
	return wrapper.NewDurationConfig(NewConfig(key), defaultValue)
}

// NewParsedConfig creates an environment backed config whose raw value is
// decoded with parse, such as an address or fee percentage.
func NewParsedConfig[T any](key string, defaultValue T, parse wrapper.ParseFunc[T]) config.Value[T] {
	return wrapper.NewConfig(NewConfig(key), defaultValue, parse)
}
