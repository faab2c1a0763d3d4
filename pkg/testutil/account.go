package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/keys-server/pkg/keys/common"
)

// NewRandomAccount generates a signing account for a trader, admin or
// rights-holder.
func NewRandomAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err, "error generating account")
	return account
}

// NewRandomAddress generates an address nobody holds the key for, such as an
// escrow or fee receiver in tests.
func NewRandomAddress(t *testing.T) common.Address {
	return NewRandomAccount(t).Address()
}
