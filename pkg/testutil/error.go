package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ResultCoder is a response carrying a business result code
type ResultCoder interface {
	GetResultCode() string
}

// AssertStatusErrorWithCode verifies err is a gRPC status error with code
func AssertStatusErrorWithCode(t *testing.T, err error, code codes.Code) {
	t.Helper()

	require.Error(t, err)
	s, ok := status.FromError(err)
	require.True(t, ok, "not a status error: %v", err)
	assert.Equal(t, code, s.Code(), s.Message())
}

// AssertResultCode verifies a call succeeded at the transport level and
// returned the expected business result.
func AssertResultCode(t *testing.T, resp ResultCoder, err error, expected string) {
	t.Helper()

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, expected, resp.GetResultCode())
}
