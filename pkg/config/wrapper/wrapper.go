package wrapper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/keys-server/pkg/config"
)

// ErrUnsuportedConversion indicates the wrapper does not implement conversion from the source type
var ErrUnsuportedConversion = errors.New("config: wrapper conversion from source type not implemented")

// ParseFunc decodes a raw config value, as provided by sources like env, into T.
type ParseFunc[T any] func(raw []byte) (T, error)

// Config is a typed wrapper over a config.Config. Raw []byte values are
// decoded with the configured ParseFunc, while values already of type T are
// used directly.
type Config[T any] struct {
	override     config.Config
	defaultValue T
	parse        ParseFunc[T]

	stateMu   sync.RWMutex
	lastValue T
}

// NewConfig returns a new typed config utility wrapper
func NewConfig[T any](override config.Config, defaultValue T, parse ParseFunc[T]) config.Value[T] {
	return &Config[T]{
		override:     override,
		defaultValue: defaultValue,
		parse:        parse,
		lastValue:    defaultValue,
	}
}

// GetSafe gets a config value and propagates any errors that arise. A best-effort
// attempt is made to return the last known value
func (c *Config[T]) GetSafe(ctx context.Context) (T, error) {
	override, err := c.override.Get(ctx)

	c.stateMu.RLock()
	lastValue := c.lastValue
	c.stateMu.RUnlock()

	if err == config.ErrNoValue {
		c.setLast(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return lastValue, err
	}

	var newValue T
	switch override := override.(type) {
	case T:
		newValue = override
	case []byte:
		if c.parse == nil {
			return lastValue, ErrUnsuportedConversion
		}

		newValue, err = c.parse(override)
		if err != nil {
			return lastValue, err
		}
	default:
		return lastValue, ErrUnsuportedConversion
	}

	c.setLast(newValue)
	return newValue, nil
}

// Get is a wrapper for GetSafe that ignores the returned error
func (c *Config[T]) Get(ctx context.Context) T {
	val, _ := c.GetSafe(ctx)
	return val
}

// Shutdown signals the config to stop all underlying resources
func (c *Config[T]) Shutdown() {
	c.override.Shutdown()
}

func (c *Config[T]) setLast(val T) {
	c.stateMu.Lock()
	c.lastValue = val
	c.stateMu.Unlock()
}

// NewBoolConfig returns a new bool config utility wrapper
func NewBoolConfig(override config.Config, defaultValue bool) config.Bool {
	return NewConfig(override, defaultValue, func(raw []byte) (bool, error) {
		return strconv.ParseBool(string(raw))
	})
}

// NewUint64Config returns a new uint64 config utility wrapper
func NewUint64Config(override config.Config, defaultValue uint64) config.Uint64 {
	return NewConfig(override, defaultValue, func(raw []byte) (uint64, error) {
		return strconv.ParseUint(string(raw), 10, 64)
	})
}

// NewStringConfig returns a new string config utility wrapper
func NewStringConfig(override config.Config, defaultValue string) config.String {
	return NewConfig(override, defaultValue, func(raw []byte) (string, error) {
		return string(raw), nil
	})
}

// NewDurationConfig returns a new time.Duration config utility wrapper
func NewDurationConfig(override config.Config, defaultValue time.Duration) config.Duration {
	return NewConfig(override, defaultValue, func(raw []byte) (time.Duration, error) {
		return time.ParseDuration(string(raw))
	})
}
