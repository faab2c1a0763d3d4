package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestUnaryInterceptor_NoApplication(t *testing.T) {
	interceptor := CustomNewRelicUnaryServerInterceptor(nil)

	resp, err := interceptor(
		context.Background(),
		"request",
		&grpc.UnaryServerInfo{FullMethod: "/keys.market.v1.Market/QuoteBuy"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return req.(string) + " handled", nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "request handled", resp)
}

func TestRequestURL(t *testing.T) {
	u := requestURL("keys.market.v1.Market/Buy", "dns:///keys.example.com:8085")
	assert.Equal(t, "grpc", u.Scheme)
	assert.Equal(t, "keys.example.com:8085", u.Host)
	assert.Equal(t, "keys.market.v1.Market/Buy", u.Path)

	assert.Equal(t, "localhost", requestURL("keys.market.v1.Market/Buy", "unix:/tmp/keys.sock").Host)
}

func TestResultCodeLevels(t *testing.T) {
	assert.Equal(t, infoLevel, resultCodeLevels["OK"])
	assert.Equal(t, warningLevel, resultCodeLevels["TRANSFER_FAILED"])

	_, ok := resultCodeLevels["SOMETHING_NEW"]
	assert.False(t, ok)
}
