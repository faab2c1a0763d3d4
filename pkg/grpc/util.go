package grpc

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

var errInvalidFullMethodName = errors.New("invalid full method name")

// ParseFullMethodName splits a full method name, such as
// "/keys.market.v1.Market/Buy", into its package, service and method. The
// package must be non-empty.
func ParseFullMethodName(fullMethodName string) (packageName, serviceName, methodName string, err error) {
	qualifiedService, methodName, ok := strings.Cut(strings.TrimPrefix(fullMethodName, "/"), "/")
	if !ok || !strings.HasPrefix(fullMethodName, "/") || !isIdentifier(methodName) {
		return "", "", "", errInvalidFullMethodName
	}

	lastDot := strings.LastIndex(qualifiedService, ".")
	if lastDot < 0 {
		return "", "", "", errInvalidFullMethodName
	}
	packageName, serviceName = qualifiedService[:lastDot], qualifiedService[lastDot+1:]

	if !isIdentifier(serviceName) {
		return "", "", "", errInvalidFullMethodName
	}
	for _, part := range strings.Split(packageName, ".") {
		if !isIdentifier(part) {
			return "", "", "", errInvalidFullMethodName
		}
	}
	return packageName, serviceName, methodName, nil
}

// IsHealthCheckEndpoint returns whether a method is the health check endpoint
func IsHealthCheckEndpoint(fullMethodName string) bool {
	return fullMethodName == healthgrpc.Health_Check_FullMethodName
}

// DisableEverythingUnaryServerInterceptor rejects every unary call except
// health checks with UNAVAILABLE. It's the kill switch for halting trading
// without taking instances out of rotation.
func DisableEverythingUnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if IsHealthCheckEndpoint(info.FullMethod) {
			return handler(ctx, req)
		}
		return nil, errUnavailable()
	}
}

// DisableEverythingStreamServerInterceptor rejects every streaming call with
// UNAVAILABLE.
func DisableEverythingStreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return errUnavailable()
	}
}

func errUnavailable() error {
	return status.Error(codes.Unavailable, "temporarily unavailable")
}

func isIdentifier(value string) bool {
	if len(value) == 0 {
		return false
	}
	for _, r := range value {
		isAlphaNumeric := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !isAlphaNumeric && r != '_' {
			return false
		}
	}
	return true
}
