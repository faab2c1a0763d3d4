package headers

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// RequestIdHeader identifies a request across log lines and service hops
const RequestIdHeader = "x-request-id"

// ErrNotInitialized is returned when the context was never prepared by
// ContextWithHeaders or a server interceptor.
var ErrNotInitialized = errors.New("headers are not initialized")

// ContextWithHeaders prepares a fresh context to carry headers. Contexts
// created by the server interceptors are already prepared.
func ContextWithHeaders(ctx context.Context) context.Context {
	if AreHeadersInitialized(ctx) {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, newStore())
}

// AreHeadersInitialized reports whether ctx can carry headers
func AreHeadersInitialized(ctx context.Context) bool {
	_, ok := storeFromContext(ctx)
	return ok
}

// SetHeader sets a binary header sent on the next service call only
func SetHeader(ctx context.Context, name string, data []byte) error {
	return setBinary(ctx, Outbound, name, data)
}

// SetPropagatingHeader sets a binary header forwarded on every future call
func SetPropagatingHeader(ctx context.Context, name string, data []byte) error {
	return setBinary(ctx, Propagating, name, data)
}

// SetASCIIHeader sets a text header sent on the next service call
func SetASCIIHeader(ctx context.Context, name, value string) error {
	s, ok := storeFromContext(ctx)
	if !ok {
		return ErrNotInitialized
	}
	s.set(ASCII, strings.ToLower(name), value)
	return nil
}

// GetHeader gets a binary header received from the caller
func GetHeader(ctx context.Context, name string) ([]byte, error) {
	return getBinary(ctx, Inbound, name)
}

// GetPropagatingHeader gets a binary header forwarded through the call chain
func GetPropagatingHeader(ctx context.Context, name string) ([]byte, error) {
	return getBinary(ctx, Propagating, name)
}

// GetRootHeader gets a binary header set by the edge layer
func GetRootHeader(ctx context.Context, name string) ([]byte, error) {
	return getBinary(ctx, Root, name)
}

// GetASCIIHeaderByName gets a text header. A missing header is an empty
// string and no error.
func GetASCIIHeaderByName(ctx context.Context, name string) (string, error) {
	s, ok := storeFromContext(ctx)
	if !ok {
		return "", ErrNotInitialized
	}
	value, _ := s.get(ASCII, strings.ToLower(name))
	return value, nil
}

// RequestId gets the request id of the current call, if any
func RequestId(ctx context.Context) string {
	requestId, _ := GetASCIIHeaderByName(ctx, RequestIdHeader)
	return requestId
}

func setBinary(ctx context.Context, t Type, name string, data []byte) error {
	s, ok := storeFromContext(ctx)
	if !ok {
		return ErrNotInitialized
	}
	s.set(t, t.prefix()+binaryName(name), string(data))
	return nil
}

func getBinary(ctx context.Context, t Type, name string) ([]byte, error) {
	s, ok := storeFromContext(ctx)
	if !ok {
		return nil, ErrNotInitialized
	}

	value, ok := s.get(t, t.prefix()+binaryName(name))
	if !ok {
		return nil, errors.Errorf("%s header %s not found", t, name)
	}
	return []byte(value), nil
}
