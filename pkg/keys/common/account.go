package common

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/pkg/errors"
)

// Account is an address with an optional private key, which is only known
// for accounts controlled by this process (eg. the market escrow) and in
// tests.
type Account struct {
	address    Address
	privateKey ed25519.PrivateKey
}

func NewAccountFromAddress(address Address) *Account {
	return &Account{address: address}
}

func NewAccountFromPrivateKey(privateKey ed25519.PrivateKey) (*Account, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("invalid private key length: %d", len(privateKey))
	}

	address, err := NewAddressFromBytes(privateKey.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, err
	}

	return &Account{
		address:    address,
		privateKey: privateKey,
	}, nil
}

// NewAccountFromSeed derives an account from a 32 byte ed25519 seed
func NewAccountFromSeed(seed []byte) (*Account, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("invalid seed length: %d", len(seed))
	}
	return NewAccountFromPrivateKey(ed25519.NewKeyFromSeed(seed))
}

func NewRandomAccount() (*Account, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "error generating private key")
	}
	return NewAccountFromPrivateKey(privateKey)
}

func (a *Account) Address() Address {
	return a.address
}

func (a *Account) HasPrivateKey() bool {
	return a.privateKey != nil
}

// Sign signs message with the account's private key
func (a *Account) Sign(message []byte) ([]byte, error) {
	if !a.HasPrivateKey() {
		return nil, errors.New("private key not available")
	}
	return ed25519.Sign(a.privateKey, message), nil
}

// Verify verifies signature was produced by this account over message
func (a *Account) Verify(message, signature []byte) bool {
	return len(signature) == ed25519.SignatureSize && ed25519.Verify(a.address.PublicKey(), message, signature)
}
