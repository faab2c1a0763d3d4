package app

import (
	"google.golang.org/grpc"
)

// Option customizes the gRPC servers started by Run
type Option func(o *opts)

type opts struct {
	unaryServerInterceptors  []grpc.UnaryServerInterceptor
	streamServerInterceptors []grpc.StreamServerInterceptor
	serverOptions            []grpc.ServerOption
}

// WithUnaryServerInterceptor appends an interceptor to the unary chain. It
// runs after the default interceptors, in the order options are given.
func WithUnaryServerInterceptor(interceptor grpc.UnaryServerInterceptor) Option {
	return func(o *opts) {
		o.unaryServerInterceptors = append(o.unaryServerInterceptors, interceptor)
	}
}

// WithStreamServerInterceptor appends an interceptor to the stream chain. It
// runs after the default interceptors, in the order options are given.
func WithStreamServerInterceptor(interceptor grpc.StreamServerInterceptor) Option {
	return func(o *opts) {
		o.streamServerInterceptors = append(o.streamServerInterceptors, interceptor)
	}
}

// WithServerOption passes a raw option, such as a message size limit, to both
// the secure and insecure servers.
func WithServerOption(option grpc.ServerOption) Option {
	return func(o *opts) {
		o.serverOptions = append(o.serverOptions, option)
	}
}
