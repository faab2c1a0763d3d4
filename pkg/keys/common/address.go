package common

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// AddressLength is the size of an address in bytes
const AddressLength = ed25519.PublicKeySize

// ZeroAddress is the unset address. Value sent to it is never collected.
var ZeroAddress Address

// Address identifies a participant in the market: a trader, a rights-holder,
// the fee receiver or the market's own escrow. Addresses are ed25519 public
// keys and are rendered in base58.
type Address [AddressLength]byte

func NewAddressFromBytes(b []byte) (Address, error) {
	var address Address
	if len(b) != AddressLength {
		return address, errors.Errorf("invalid address length: %d", len(b))
	}

	copy(address[:], b)
	return address, nil
}

func NewAddressFromString(value string) (Address, error) {
	decoded, err := base58.Decode(value)
	if err != nil {
		return ZeroAddress, errors.Wrap(err, "invalid base58 address")
	}
	return NewAddressFromBytes(decoded)
}

func MustNewAddressFromString(value string) Address {
	address, err := NewAddressFromString(value)
	if err != nil {
		panic(err)
	}
	return address
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

func (a Address) Bytes() []byte {
	return bytes.Clone(a[:])
}

func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a.Bytes())
}

func (a Address) String() string {
	return base58.Encode(a[:])
}

// MarshalText implements encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Empty text decodes to
// the zero address.
func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = ZeroAddress
		return nil
	}

	decoded, err := NewAddressFromString(string(text))
	if err != nil {
		return err
	}

	*a = decoded
	return nil
}
