package market

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/code-payments/keys-server/pkg/grpc/client"
	"github.com/code-payments/keys-server/pkg/keys/common"
	"github.com/code-payments/keys-server/pkg/rate"
)

// limiter limits signed calls by owner and unsigned calls by client IP
type limiter struct {
	log   *logrus.Entry
	owner rate.Limiter
	ip    rate.Limiter
}

func newLimiter(ctor rate.LimiterCtor, ownerLimit, ipLimit float64) *limiter {
	return &limiter{
		log:   logrus.StandardLogger().WithField("type", "keys/server/market/limiter"),
		owner: ctor(ownerLimit),
		ip:    ctor(ipLimit),
	}
}

func (l *limiter) allowOwner(owner common.Address) bool {
	allowed, err := l.owner.Allow(owner.String())
	if err != nil {
		l.log.WithError(err).WithField("owner", owner.String()).Warn("failure checking owner rate limit")
		return true
	}
	return allowed
}

// allowClient fails open when the client IP is unknown
func (l *limiter) allowClient(ctx context.Context) bool {
	ip, err := client.GetIPAddr(ctx)
	if err != nil {
		return true
	}

	allowed, err := l.ip.Allow(ip)
	if err != nil {
		l.log.WithError(err).WithField("ip", ip).Warn("failure checking ip rate limit")
		return true
	}
	return allowed
}
