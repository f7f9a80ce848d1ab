// Package address defines the 32-byte addresses used for identities, token
// identifiers, program ids and record locations, and the deterministic
// derivation of record addresses from a program id plus seeds.
package address

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/mr-tron/base58"

	"xdao.co/tokenreg/cidutil"
)

// Size is the byte length of an Address.
const Size = 32

// Address is a 32-byte key. Its text form is base58.
type Address [Size]byte

// Zero is the all-zero address. It is never a valid authority.
var Zero Address

var ErrInvalid = errors.New("address: invalid address")

func (a Address) String() string { return base58.Encode(a[:]) }

func (a Address) IsZero() bool { return a == Zero }

func (a Address) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, a[:])
	return out
}

// CID returns the address as a CIDv1 (raw + sha2-256), for backends keyed by CID.
func (a Address) CID() cid.Cid { return cidutil.FromDigest(a) }

func (a Address) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Parse decodes a base58 address.
func Parse(s string) (Address, error) {
	if s == "" {
		return Zero, fmt.Errorf("%w: empty", ErrInvalid)
	}
	b, err := base58.Decode(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return FromBytes(b)
}

// MustParse is like Parse but panics on error. Intended for constants.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// FromBytes copies a 32-byte slice into an Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("%w: want %d bytes, got %d", ErrInvalid, Size, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// FromCID is the inverse of Address.CID.
func FromCID(id cid.Cid) (Address, error) {
	d, err := cidutil.ToDigest(id)
	if err != nil {
		return Zero, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return Address(d), nil
}
