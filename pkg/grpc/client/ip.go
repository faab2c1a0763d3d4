package client

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
)

const (
	clientIPHeader = "x-forwarded-for"
)

// GetIPAddr gets the client's IP address. The first hop of x-forwarded-for
// takes precedence over the address of the connected peer, which is usually
// a load balancer.
func GetIPAddr(ctx context.Context) (string, error) {
	mtdt, ok := metadata.FromIncomingContext(ctx)
	if ok {
		ipHeaders := mtdt.Get(clientIPHeader)
		if len(ipHeaders) > 0 {
			first := strings.TrimSpace(strings.Split(ipHeaders[0], ",")[0])
			if len(first) > 0 {
				return first, nil
			}
		}
	}

	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "", errors.New("client ip not available")
	}

	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String(), nil
	}
	return host, nil
}

// InjectLoggingMetadata adds the client's IP address to log, when known
func InjectLoggingMetadata(ctx context.Context, log *logrus.Entry) *logrus.Entry {
	if ip, err := GetIPAddr(ctx); err == nil {
		return log.WithField("client_ip", ip)
	}
	return log
}
