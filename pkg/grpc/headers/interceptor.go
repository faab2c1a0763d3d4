package headers

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// UnaryServerInterceptor loads the incoming metadata into the request context
// and assigns a request id when the caller didn't send one.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	log := logrus.StandardLogger().WithField("type", "headers/interceptor")

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		return handler(fromIncoming(ctx, log), req)
	}
}

// StreamServerInterceptor is the streaming version of UnaryServerInterceptor
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	log := logrus.StandardLogger().WithField("type", "headers/interceptor")

	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &serverStream{ServerStream: ss, ctx: fromIncoming(ss.Context(), log)})
	}
}

// UnaryClientInterceptor sends the forwardable headers in ctx with the call
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(toOutgoing(ctx), method, req, reply, cc, opts...)
	}
}

// StreamClientInterceptor sends the forwardable headers in ctx with the stream
func StreamClientInterceptor() grpc.StreamClientInterceptor {
	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(toOutgoing(ctx), desc, cc, method, opts...)
	}
}

type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *serverStream) Context() context.Context {
	return s.ctx
}

func fromIncoming(ctx context.Context, log *logrus.Entry) context.Context {
	s := newStore()

	md, _ := metadata.FromIncomingContext(ctx)
	for name, values := range md {
		if len(values) == 0 {
			continue
		}

		switch {
		case strings.HasPrefix(name, Root.prefix()):
			s.set(Root, name, values[0])
		case strings.HasPrefix(name, Propagating.prefix()):
			s.set(Propagating, name, values[0])
		case strings.HasSuffix(name, "-bin"):
			s.set(Inbound, name, values[0])
		default:
			s.set(ASCII, name, values[0])
		}
	}

	if _, ok := s.get(ASCII, RequestIdHeader); !ok {
		requestId := uuid.NewString()
		s.set(ASCII, RequestIdHeader, requestId)
		log.WithField("request_id", requestId).Trace("assigned request id")
	}

	return context.WithValue(ctx, contextKey{}, s)
}

func toOutgoing(ctx context.Context) context.Context {
	s, ok := storeFromContext(ctx)
	if !ok {
		return ctx
	}

	for name, value := range s.forwarded() {
		switch name {
		case "content-type", "user-agent", ":authority":
			continue
		}
		ctx = metadata.AppendToOutgoingContext(ctx, name, value)
	}
	return ctx
}
