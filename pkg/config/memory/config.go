// Package memory provides config values held in memory, for tests and manual
// overrides.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/code-payments/keys-server/pkg/config"
	"github.com/code-payments/keys-server/pkg/config/wrapper"
)

// ErrInduced is the error returned by Get after InduceErrors
var ErrInduced = errors.New("in memory config: induced error")

type state struct {
	value    interface{}
	err      error
	shutdown bool
}

// Config is a config.Config whose value is set directly by the caller
type Config struct {
	mu    sync.RWMutex
	state state
}

// NewConfig returns a config holding value. A nil value means no value is set.
func NewConfig(value interface{}) *Config {
	return &Config{state: state{value: value}}
}

// Get implements config.Config.Get
func (c *Config) Get(_ context.Context) (interface{}, error) {
	c.mu.RLock()
	s := c.state
	c.mu.RUnlock()

	switch {
	case s.shutdown:
		return nil, config.ErrShutdown
	case s.err != nil:
		return nil, s.err
	case s.value == nil:
		return nil, config.ErrNoValue
	}
	return s.value, nil
}

// Shutdown implements config.Config.Shutdown
func (c *Config) Shutdown() {
	c.update(func(s *state) { s.shutdown = true })
}

// SetValue sets the value returned by subsequent Get calls
func (c *Config) SetValue(value interface{}) {
	c.update(func(s *state) { s.value = value })
}

// ClearValue makes subsequent Get calls return config.ErrNoValue
func (c *Config) ClearValue() {
	c.SetValue(nil)
}

// InduceErrors makes subsequent Get calls fail with ErrInduced, regardless
// of the value set.
func (c *Config) InduceErrors() {
	c.update(func(s *state) { s.err = ErrInduced })
}

// StopInducingErrors undoes InduceErrors
func (c *Config) StopInducingErrors() {
	c.update(func(s *state) { s.err = nil })
}

func (c *Config) update(fn func(s *state)) {
	c.mu.Lock()
	fn(&c.state)
	c.mu.Unlock()
}

// NewValue returns a typed config that always yields value. It's intended for
// manual overrides in tests.
func NewValue[T any](value T) config.Value[T] {
	return wrapper.NewConfig[T](NewConfig(value), value, nil)
}
