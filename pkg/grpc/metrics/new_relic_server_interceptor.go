package metrics

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	grpc_core "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/code-payments/keys-server/pkg/grpc"
	"github.com/code-payments/keys-server/pkg/grpc/client"
	"github.com/code-payments/keys-server/pkg/metrics"
)

const (
	grpcRequestPackageAttributeKey = "grpc.request.package"
	grpcRequestServiceAttributeKey = "grpc.request.service"
	grpcRequestMethodAttributeKey  = "grpc.request.method"

	grpcResponseStatusCodeAttributeKey      = "grpc.response.statusCode"
	grpcResponseStatusMessageAttributeKey   = "grpc.response.statusMessage"
	grpcResponseStatusCodeLevelAttributeKey = "grpc.response.statusCodeLevel"

	resultCodeAttributeKey      = "keys.response.resultCode"
	resultCodeLevelAttributeKey = "keys.response.resultCodeLevel"

	clientIPAttributeKey = "grpc.client.ip"
)

type level string

const (
	infoLevel    level = "info"
	warningLevel level = "warning"
	errorLevel   level = "error"
)

// Anything missing from these tables is reported at the error level, which
// also notices an error on the transaction.
var (
	statusCodeLevels = map[codes.Code]level{
		codes.OK:              infoLevel,
		codes.AlreadyExists:   infoLevel,
		codes.Canceled:        infoLevel,
		codes.InvalidArgument: infoLevel,
		codes.NotFound:        infoLevel,
		codes.Unauthenticated: infoLevel,

		codes.Aborted:            warningLevel,
		codes.DeadlineExceeded:   warningLevel,
		codes.FailedPrecondition: warningLevel,
		codes.OutOfRange:         warningLevel,
		codes.PermissionDenied:   warningLevel,
		codes.ResourceExhausted:  warningLevel,
		codes.Unavailable:        warningLevel,
	}

	resultCodeLevels = map[string]level{
		"OK":                 infoLevel,
		"SUBJECT_NOT_FOUND":  infoLevel,
		"TRADE_NOT_FOUND":    infoLevel,
		"LAST_KEY_PROTECTED": infoLevel,

		"DENIED":               warningLevel,
		"RATE_LIMITED":         warningLevel,
		"INSUFFICIENT_PAYMENT": warningLevel,
		"INSUFFICIENT_BALANCE": warningLevel,
		"INSUFFICIENT_FUNDS":   warningLevel,
		"UNEXPECTED_VALUE":     warningLevel,
		"UNSUPPORTED_ON_RAIL":  warningLevel,
		"FEE_TOO_HIGH":         warningLevel,
		"INVALID_PARAMETERS":   warningLevel,
		"TRANSFER_FAILED":      warningLevel,
		"REENTRANT_CALL":       warningLevel,
		"OVERFLOW":             warningLevel,
	}
)

// ResultCoder is implemented by responses carrying a business result
// alongside an OK gRPC status
type ResultCoder interface {
	GetResultCode() string
}

// CustomNewRelicUnaryServerInterceptor reports every unary call as a New Relic
// transaction, tagged with the gRPC status and business result. Handlers get
// the application in their context for custom events and metrics. It's a
// no-op when app is nil.
func CustomNewRelicUnaryServerInterceptor(app *newrelic.Application) grpc_core.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc_core.UnaryServerInfo, handler grpc_core.UnaryHandler) (interface{}, error) {
		if app == nil {
			return handler(ctx, req)
		}

		ctx, txn := startTransaction(ctx, app, info.FullMethod)
		defer txn.End()

		resp, err := handler(ctx, req)
		includeGRPCStatusCode(txn, err)
		if err != nil {
			return nil, err
		}

		includeResultCode(txn, resp)
		return resp, nil
	}
}

// CustomNewRelicStreamServerInterceptor is the streaming version of
// CustomNewRelicUnaryServerInterceptor. Result codes are taken from every
// message sent.
func CustomNewRelicStreamServerInterceptor(app *newrelic.Application) grpc_core.StreamServerInterceptor {
	return func(srv interface{}, ss grpc_core.ServerStream, info *grpc_core.StreamServerInfo, handler grpc_core.StreamHandler) error {
		if app == nil {
			return handler(srv, ss)
		}

		ctx, txn := startTransaction(ss.Context(), app, info.FullMethod)
		defer txn.End()

		err := handler(srv, &wrappedStream{ServerStream: ss, ctx: ctx, txn: txn})
		includeGRPCStatusCode(txn, err)
		return err
	}
}

type wrappedStream struct {
	grpc_core.ServerStream
	ctx context.Context
	txn *newrelic.Transaction
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

func (w *wrappedStream) SendMsg(m interface{}) error {
	includeResultCode(w.txn, m)
	return w.ServerStream.SendMsg(m)
}

func startTransaction(ctx context.Context, app *newrelic.Application, fullMethod string) (context.Context, *newrelic.Transaction) {
	method := strings.TrimPrefix(fullMethod, "/")

	// Signatures travel in the request body, so metadata is safe to forward
	var hdrs http.Header
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		hdrs = make(http.Header, len(md))
		for k, vs := range md {
			for _, v := range vs {
				hdrs.Add(k, v)
			}
		}
	}

	txn := app.StartTransaction(method)
	txn.SetWebRequest(newrelic.WebRequest{
		Header:    hdrs,
		URL:       requestURL(method, hdrs.Get(":authority")),
		Method:    method,
		Transport: newrelic.TransportHTTP,
	})

	ctx = metrics.NewContext(ctx, app)
	ctx = newrelic.NewContext(ctx, txn)

	if packageName, serviceName, methodName, err := grpc.ParseFullMethodName(fullMethod); err == nil {
		txn.AddAttribute(grpcRequestPackageAttributeKey, packageName)
		txn.AddAttribute(grpcRequestServiceAttributeKey, serviceName)
		txn.AddAttribute(grpcRequestMethodAttributeKey, methodName)
	}
	if ip, err := client.GetIPAddr(ctx); err == nil {
		txn.AddAttribute(clientIPAttributeKey, ip)
	}

	return ctx, txn
}

func requestURL(method, authority string) *url.URL {
	host := strings.TrimPrefix(authority, "dns:///")
	if strings.HasPrefix(authority, "unix:") {
		host = "localhost"
	}
	return &url.URL{
		Scheme: "grpc",
		Host:   host,
		Path:   method,
	}
}

func includeGRPCStatusCode(txn *newrelic.Transaction, err error) {
	s := status.Convert(err)

	lvl, ok := statusCodeLevels[s.Code()]
	if !ok {
		lvl = errorLevel
	}

	txn.SetWebResponse(nil).WriteHeader(int(codes.OK))
	txn.AddAttribute(grpcResponseStatusCodeAttributeKey, s.Code().String())
	txn.AddAttribute(grpcResponseStatusMessageAttributeKey, s.Message())
	txn.AddAttribute(grpcResponseStatusCodeLevelAttributeKey, string(lvl))

	if lvl == errorLevel {
		txn.NoticeError(&newrelic.Error{
			Message: s.Message(),
			Class:   "gRPC Status: " + s.Code().String(),
		})
	}
}

func includeResultCode(txn *newrelic.Transaction, msg interface{}) {
	coder, ok := msg.(ResultCoder)
	if !ok {
		return
	}

	resultCode := strings.ToUpper(coder.GetResultCode())
	if len(resultCode) == 0 {
		return
	}

	lvl, ok := resultCodeLevels[resultCode]
	if !ok {
		lvl = errorLevel
	}

	txn.AddAttribute(resultCodeAttributeKey, resultCode)
	txn.AddAttribute(resultCodeLevelAttributeKey, string(lvl))

	if lvl == errorLevel {
		txn.NoticeError(&newrelic.Error{
			Class: "Keys RPC Result: " + resultCode,
		})
	}
}
