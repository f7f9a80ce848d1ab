package storage

import (
	"context"
	"fmt"

	"xdao.co/tokenreg/address"
)

// MaxDataSize bounds an account's data in bytes.
const MaxDataSize = 10 * 1024

// Account is one addressed record. Owner is the program allowed to write it.
type Account struct {
	Owner address.Address
	Data  []byte
}

// Clone returns a deep copy of a.
func (a Account) Clone() Account {
	return Account{Owner: a.Owner, Data: append([]byte(nil), a.Data...)}
}

// Reader loads accounts by address.
//
// Get MUST return ErrNotFound when the address holds no account.
type Reader interface {
	Get(ctx context.Context, addr address.Address) (Account, error)
}

// Tx is the view of the store inside one atomic update.
//
// Contract:
//   - Create MUST fail with ErrAlreadyExists when the address is occupied. Creation
//     is the only mutual-exclusion primitive the registry relies on.
//   - Put MUST fail with ErrNotFound when the address is empty and with
//     ErrOwnerMismatch when the owner differs from the stored owner.
//   - Reads observe the transaction's own writes.
type Tx interface {
	Reader
	Create(ctx context.Context, addr address.Address, acct Account) error
	Put(ctx context.Context, addr address.Address, acct Account) error
}

// Store is an account store with all-or-nothing updates.
//
// Update runs fn inside a transaction. When fn returns an error nothing is
// applied and the error is returned unchanged. Conflicting updates are
// serialized.
type Store interface {
	Reader
	Update(ctx context.Context, fn func(tx Tx) error) error
	// Addresses lists every occupied address in ascending byte order.
	Addresses(ctx context.Context) ([]address.Address, error)
	Close() error
}

// CheckAccount validates an address/account pair before a write.
func CheckAccount(addr address.Address, acct Account) error {
	if addr.IsZero() {
		return ErrInvalidAddress
	}
	if acct.Owner.IsZero() {
		return fmt.Errorf("%w: zero owner", ErrOwnerMismatch)
	}
	if len(acct.Data) > MaxDataSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, len(acct.Data))
	}
	return nil
}
