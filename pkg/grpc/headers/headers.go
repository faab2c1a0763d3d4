// Package headers carries gRPC metadata through a request's context so
// handlers can read inbound values and attach values to downstream calls.
package headers

import (
	"context"
	"strings"
	"sync"
)

// Type is the class of a header, which decides how it's named on the wire
// and whether it survives across service hops.
type Type int

const (
	// Inbound binary headers were received from the caller and are not
	// forwarded.
	Inbound Type = iota
	// Outbound binary headers are sent on the next service call only.
	Outbound
	// Root headers are set by edge layers and forwarded on every call.
	Root
	// Propagating headers can be set by anyone and are forwarded on every
	// call.
	Propagating
	// ASCII headers are plain text headers received from the caller. Values
	// set locally are sent on the next service call.
	ASCII
)

func (t Type) prefix() string {
	switch t {
	case Root:
		return "root-"
	case Propagating:
		return "prop-"
	}
	return ""
}

func (t Type) String() string {
	switch t {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	case Root:
		return "root"
	case Propagating:
		return "propagating"
	case ASCII:
		return "ascii"
	}
	return "unknown"
}

var allTypes = []Type{Inbound, Outbound, Root, Propagating, ASCII}

type contextKey struct{}

// store holds every header class for one request. Values are kept as
// strings, which is how gRPC metadata carries binary values too.
type store struct {
	mu     sync.RWMutex
	values map[Type]map[string]string
}

func newStore() *store {
	s := &store{values: make(map[Type]map[string]string)}
	for _, t := range allTypes {
		s.values[t] = make(map[string]string)
	}
	return s
}

func (s *store) set(t Type, name, value string) {
	s.mu.Lock()
	s.values[t][name] = value
	s.mu.Unlock()
}

func (s *store) get(t Type, name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.values[t][name]
	return value, ok
}

// forwarded returns the headers that should be sent on an outgoing call
func (s *store) forwarded() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make(map[string]string)
	for _, t := range []Type{Root, Propagating, Outbound, ASCII} {
		for name, value := range s.values[t] {
			res[name] = value
		}
	}
	return res
}

func storeFromContext(ctx context.Context) (*store, bool) {
	s, ok := ctx.Value(contextKey{}).(*store)
	return s, ok
}

func binaryName(name string) string {
	name = strings.ToLower(name)
	if strings.HasSuffix(name, "-bin") {
		return name
	}
	return name + "-bin"
}
