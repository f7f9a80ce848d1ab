// Package record holds the registry's persistent records and their account
// encoding: an 8-byte type discriminator followed by a CBOR array body.
package record

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"xdao.co/tokenreg/address"
	"xdao.co/tokenreg/cidutil"
	"xdao.co/tokenreg/storage"
)

// DiscriminatorSize is the length of the type tag prefixing every record.
const DiscriminatorSize = 8

// Discriminator identifies the record type stored in an account.
type Discriminator [DiscriminatorSize]byte

var (
	ErrOwnerMismatch         = errors.New("record: account owner mismatch")
	ErrDiscriminatorMismatch = errors.New("record: account discriminator mismatch")
	ErrTruncated             = errors.New("record: account data truncated")
	ErrTooLarge              = errors.New("record: encoded record exceeds its space")
	ErrInvalidText           = errors.New("record: text field is not valid UTF-8")
)

// DiscriminatorFor returns the first 8 bytes of sha256("account:" + name).
func DiscriminatorFor(name string) Discriminator {
	var d Discriminator
	sum, err := cidutil.SHA256([]byte("account:" + name))
	if err != nil {
		panic(fmt.Sprintf("record: hashing discriminator: %v", err))
	}
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		IndefLength:     cbor.IndefLengthForbidden,
		MaxNestedLevels: 16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// encode prefixes the CBOR form of body with disc and checks the result fits
// within space bytes.
func encode(disc Discriminator, body any, space int) ([]byte, error) {
	payload, err := encMode.Marshal(body)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, DiscriminatorSize+len(payload))
	out = append(out, disc[:]...)
	out = append(out, payload...)
	if len(out) > space {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(out), space)
	}
	return out, nil
}

// decode verifies owner and discriminator before unmarshalling the body.
func decode(acct storage.Account, owner address.Address, disc Discriminator, body any) error {
	if acct.Owner != owner {
		return fmt.Errorf("%w: owned by %s", ErrOwnerMismatch, acct.Owner)
	}
	if len(acct.Data) < DiscriminatorSize {
		return ErrTruncated
	}
	if !bytes.Equal(acct.Data[:DiscriminatorSize], disc[:]) {
		return ErrDiscriminatorMismatch
	}
	if err := decMode.Unmarshal(acct.Data[DiscriminatorSize:], body); err != nil {
		return fmt.Errorf("record: decode: %w", err)
	}
	return nil
}

func addressField(b []byte, field string) (address.Address, error) {
	a, err := address.FromBytes(b)
	if err != nil {
		return address.Zero, fmt.Errorf("record: %s: %w", field, err)
	}
	return a, nil
}
